package studio

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/generation"
	"orbitstudio/internal/lro"
)

type stepClock struct {
	mu    sync.Mutex
	tasks []*stepTimer
}

type stepTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *stepTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *stepClock) AfterFunc(_ time.Duration, f func()) lro.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{f: f}
	c.tasks = append(c.tasks, t)
	return t
}

// fireAll runs every live task queued so far, once.
func (c *stepClock) fireAll() {
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = nil
	c.mu.Unlock()
	for _, t := range tasks {
		t.mu.Lock()
		live := !t.stopped
		t.stopped = true
		t.mu.Unlock()
		if live {
			t.f()
		}
	}
}

type fakeInitiator struct {
	mu      sync.Mutex
	handles []domain.OperationHandle
	err     error
}

func (f *fakeInitiator) Initiate(_ context.Context, form domain.FormData, app *domain.AppContext) (generation.Initiation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return generation.Initiation{}, f.err
	}
	h := domain.OperationHandle("projects/p/locations/l/publishers/google/models/m/operations/" + string(rune('a'+len(f.handles))))
	f.handles = append(f.handles, h)
	prompt := generation.BuildPrompt(form)
	return generation.Initiation{
		Handle: h,
		Prompt: prompt,
		Request: domain.RequestContext{
			Prompt:      prompt,
			AspectRatio: form.AspectRatio,
			Resolution:  form.Resolution,
			SampleCount: form.SampleCount,
			UserID:      app.UserID,
		},
	}, nil
}

// handleFetcher answers per handle; handles without a script stay pending.
type handleFetcher struct {
	mu      sync.Mutex
	answers map[domain.OperationHandle]domain.OperationStatus
	calls   map[domain.OperationHandle]int
}

func newHandleFetcher() *handleFetcher {
	return &handleFetcher{
		answers: make(map[domain.OperationHandle]domain.OperationStatus),
		calls:   make(map[domain.OperationHandle]int),
	}
}

func (f *handleFetcher) set(h domain.OperationHandle, st domain.OperationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[h] = st
}

func (f *handleFetcher) FetchOperation(_ context.Context, h domain.OperationHandle) (domain.OperationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[h]++
	return f.answers[h], nil
}

func (f *handleFetcher) count(h domain.OperationHandle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[h]
}

type memoryRepo struct {
	mu   sync.Mutex
	gens map[string]*domain.Generation
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{gens: make(map[string]*domain.Generation)}
}

func (m *memoryRepo) Create(_ context.Context, gen *domain.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gen
	m.gens[gen.ID] = &cp
	return nil
}

func (m *memoryRepo) UpdateProgress(_ context.Context, id string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gens[id]; ok && g.Status == domain.GenerationStatusPolling {
		g.Attempts = attempts
	}
	return nil
}

func (m *memoryRepo) Complete(_ context.Context, id string, status domain.GenerationStatus, outputs []domain.OutputRecord, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gens[id]; ok && g.Status == domain.GenerationStatusPolling {
		g.Status = status
		g.Outputs = outputs
		g.ErrorMessage = errMsg
	}
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memoryRepo) ListPolling(_ context.Context, limit int) ([]*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Generation
	for _, g := range m.gens {
		if g.Status == domain.GenerationStatusPolling {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) status(id string) domain.GenerationStatus {
	g, err := m.GetByID(context.Background(), id)
	if err != nil {
		return ""
	}
	return g.Status
}

type fixture struct {
	studio    *Studio
	clock     *stepClock
	fetcher   *handleFetcher
	repo      *memoryRepo
	initiator *fakeInitiator
}

func newFixture(t *testing.T, cfg lro.Config) *fixture {
	t.Helper()
	f := &fixture{clock: &stepClock{}, fetcher: newHandleFetcher(), repo: newMemoryRepo(), initiator: &fakeInitiator{}}
	enrich := func(raw []domain.GeneratedVideo, rc domain.RequestContext) []domain.OutputRecord {
		out := make([]domain.OutputRecord, len(raw))
		for i, v := range raw {
			out[i] = domain.OutputRecord{GCSURI: v.GCSURI, Prompt: rc.Prompt}
		}
		return out
	}
	s, err := New(Options{
		Initiator:     f.initiator,
		Fetcher:       f.fetcher,
		Enrich:        enrich,
		Repository:    f.repo,
		Polling:       cfg,
		PollerOptions: []lro.Option{lro.WithClock(f.clock)},
	})
	require.NoError(t, err)
	f.studio = s
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return f
}

func form() domain.FormData {
	return domain.FormData{
		Images:     []domain.ReferenceImage{{FileName: "a.png", MimeType: "image/png", Data: []byte{1}}},
		Background: "Black",
	}
}

var app = &domain.AppContext{GCSURI: "gs://bucket", UserID: "u-1"}

func TestGenerateRecordsSuccess(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	gen, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status(gen.ID))
	assert.Equal(t, 4, gen.SampleCount, "defaults are applied")
	assert.Equal(t, "u-1", gen.UserID)

	f.clock.fireAll()
	stored, _ := f.repo.GetByID(context.Background(), gen.ID)
	assert.Equal(t, 1, stored.Attempts)

	f.fetcher.set(gen.Operation, domain.OperationStatus{Done: true, Videos: []domain.GeneratedVideo{{GCSURI: "gs://bucket/u-1/generated-videos/1.mp4"}}})
	f.clock.fireAll()

	stored, err = f.studio.Get(context.Background(), gen.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusSucceeded, stored.Status)
	require.Len(t, stored.Outputs, 1)
	assert.Equal(t, generation.BasePrompt+", Black background", stored.Outputs[0].Prompt)

	assert.Eventually(t, func() bool {
		_, ok := f.studio.Active("u-1", "surface-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestGenerateSupersedesRunningJob(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	first, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)
	f.clock.fireAll()

	second, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.repo.status(first.ID) == domain.GenerationStatusCancelled
	}, time.Second, 5*time.Millisecond)
	active, ok := f.studio.Active("u-1", "surface-1")
	require.True(t, ok)
	assert.Equal(t, second.ID, active)

	f.fetcher.set(first.Operation, domain.OperationStatus{Done: true, Videos: []domain.GeneratedVideo{{GCSURI: "gs://x/old.mp4"}}})
	f.clock.fireAll()
	assert.Equal(t, 1, f.fetcher.count(first.Operation), "cancelled job is not queried again")
	assert.Equal(t, domain.GenerationStatusCancelled, f.repo.status(first.ID))
	assert.Equal(t, 1, f.fetcher.count(second.Operation))
}

func TestSurfacesAreIndependent(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	a, err := f.studio.Generate(context.Background(), "surface-a", form(), app)
	require.NoError(t, err)
	b, err := f.studio.Generate(context.Background(), "surface-b", form(), app)
	require.NoError(t, err)

	f.fetcher.set(a.Operation, domain.OperationStatus{Done: true, Error: &domain.OperationError{Code: 8, Message: "Resource exhausted"}})
	f.clock.fireAll()

	assert.Equal(t, domain.GenerationStatusFailed, f.repo.status(a.ID))
	stored, _ := f.repo.GetByID(context.Background(), a.ID)
	assert.Equal(t, domain.RateLimitMessage, stored.ErrorMessage)
	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status(b.ID))
}

func TestUsersOnSameSurfaceAreIndependent(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())
	other := &domain.AppContext{GCSURI: "gs://bucket", UserID: "u-2"}

	mine, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)
	theirs, err := f.studio.Generate(context.Background(), "surface-1", form(), other)
	require.NoError(t, err)

	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status(mine.ID), "second user does not supersede the first")
	active, ok := f.studio.Active("u-1", "surface-1")
	require.True(t, ok)
	assert.Equal(t, mine.ID, active)

	require.NoError(t, f.studio.Cancel("u-2", "surface-1"))
	assert.Eventually(t, func() bool {
		return f.repo.status(theirs.ID) == domain.GenerationStatusCancelled
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status(mine.ID))

	f.clock.fireAll()
	assert.Equal(t, 1, f.fetcher.count(mine.Operation))
	assert.Equal(t, 0, f.fetcher.count(theirs.Operation))
}

func TestCancelIsScopedToOwner(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	gen, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)

	assert.ErrorIs(t, f.studio.Cancel("u-2", "surface-1"), ErrNoActiveJob)
	_, ok := f.studio.Active("u-2", "surface-1")
	assert.False(t, ok)
	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status(gen.ID))
}

func TestCancelRecordsCancelled(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	gen, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)

	require.NoError(t, f.studio.Cancel("u-1", "surface-1"))
	assert.Eventually(t, func() bool {
		return f.repo.status(gen.ID) == domain.GenerationStatusCancelled
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.studio.Cancel("u-1", "surface-1") == ErrNoActiveJob
	}, time.Second, 5*time.Millisecond)
}

func TestSilentExhaustionIsStillRecorded(t *testing.T) {
	cfg := lro.DefaultConfig()
	cfg.MaxAttempts = 2
	f := newFixture(t, cfg)

	gen, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		f.clock.fireAll()
	}

	assert.Eventually(t, func() bool {
		return f.repo.status(gen.ID) == domain.GenerationStatusExhausted
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.fetcher.count(gen.Operation))
}

func TestSurfacedExhaustionCarriesMessage(t *testing.T) {
	cfg := lro.DefaultConfig()
	cfg.MaxAttempts = 1
	cfg.SurfaceExhaustion = true
	f := newFixture(t, cfg)

	gen, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)
	f.clock.fireAll()
	f.clock.fireAll()

	stored, _ := f.repo.GetByID(context.Background(), gen.ID)
	assert.Equal(t, domain.GenerationStatusExhausted, stored.Status)
	assert.Contains(t, stored.ErrorMessage, string(gen.Operation))
}

func TestGenerateInitiationFailureKeepsPreviousJob(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	first, err := f.studio.Generate(context.Background(), "surface-1", form(), app)
	require.NoError(t, err)

	f.initiator.err = domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, nil)
	_, err = f.studio.Generate(context.Background(), "surface-1", form(), app)
	assert.ErrorIs(t, err, domain.ErrRateLimit)

	active, ok := f.studio.Active("u-1", "surface-1")
	require.True(t, ok)
	assert.Equal(t, first.ID, active)
}

func TestCloseCancelsEverything(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())

	a, _ := f.studio.Generate(context.Background(), "surface-a", form(), app)
	b, _ := f.studio.Generate(context.Background(), "surface-b", form(), app)

	require.NoError(t, f.studio.Close(context.Background()))
	assert.Equal(t, domain.GenerationStatusCancelled, f.repo.status(a.ID))
	assert.Equal(t, domain.GenerationStatusCancelled, f.repo.status(b.ID))

	_, err := f.studio.Generate(context.Background(), "surface-a", form(), app)
	assert.Error(t, err)
}

func TestResumeRestartsPersistedJobs(t *testing.T) {
	f := newFixture(t, lro.DefaultConfig())
	ctx := context.Background()
	now := time.Now()
	seed := []*domain.Generation{
		{ID: "old", SurfaceID: "left", Operation: "projects/p/locations/l/publishers/google/models/veo-3.0-generate-001/operations/old", CreatedAt: now.Add(-time.Minute)},
		{ID: "new", SurfaceID: "left", Operation: "projects/p/locations/l/publishers/google/models/veo-3.0-generate-001/operations/new", CreatedAt: now},
		{ID: "other", SurfaceID: "right", Operation: "projects/p/locations/l/publishers/google/models/veo-3.0-generate-001/operations/other", CreatedAt: now},
		{ID: "guest", UserID: "u-2", SurfaceID: "left", Operation: "projects/p/locations/l/publishers/google/models/veo-3.0-generate-001/operations/guest", CreatedAt: now.Add(-2 * time.Minute)},
	}
	for _, g := range seed {
		if g.UserID == "" {
			g.UserID = "u-1"
		}
		g.Status = domain.GenerationStatusPolling
		g.Prompt = "resumed prompt"
		g.SampleCount = 1
		require.NoError(t, f.repo.Create(ctx, g))
	}

	n, err := f.studio.Resume(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, domain.GenerationStatusCancelled, f.repo.status("old"))
	assert.Equal(t, domain.GenerationStatusPolling, f.repo.status("guest"), "another user's surface is not superseded")
	guest, ok := f.studio.Active("u-2", "left")
	require.True(t, ok)
	assert.Equal(t, "guest", guest)
	active, ok := f.studio.Active("u-1", "left")
	require.True(t, ok)
	assert.Equal(t, "new", active)

	f.fetcher.set(seed[1].Operation, domain.OperationStatus{Done: true, Videos: []domain.GeneratedVideo{{GCSURI: "gs://b/v.mp4"}}})
	f.clock.fireAll()
	stored, err := f.repo.GetByID(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusSucceeded, stored.Status)
	require.Len(t, stored.Outputs, 1)
	assert.Equal(t, "resumed prompt", stored.Outputs[0].Prompt)
	assert.Equal(t, 0, f.fetcher.count(seed[0].Operation))
}

func TestModelFromHandle(t *testing.T) {
	assert.Equal(t, "veo-3.0-generate-001", modelFromHandle("projects/p/locations/l/publishers/google/models/veo-3.0-generate-001/operations/1"))
	assert.Equal(t, "", modelFromHandle("operations/1"))
}

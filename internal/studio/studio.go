// Package studio owns the generation jobs of every display surface. A surface
// runs at most one job: starting a new one cancels the previous poller.
package studio

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/generation"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/lro"
	"orbitstudio/internal/metrics"
)

var (
	// ErrNoActiveJob is returned by Cancel for a surface without a running job.
	ErrNoActiveJob = errors.New("studio: no active job on surface")
	ErrClosed      = errors.New("studio: closed")
)

// writeTimeout bounds every repository write issued from a poller callback.
const writeTimeout = 5 * time.Second

// Initiator submits one generation. *generation.Initiator implements it.
type Initiator interface {
	Initiate(ctx context.Context, form domain.FormData, app *domain.AppContext) (generation.Initiation, error)
}

// Options wires a Studio.
type Options struct {
	Initiator  Initiator
	Fetcher    lro.Fetcher
	Enrich     lro.EnrichFunc
	Repository domain.GenerationRepository
	Polling    lro.Config
	// PollerOptions are applied to every poller, e.g. lro.WithClock in tests.
	PollerOptions []lro.Option
	Metrics       *metrics.Collector
	Logger        *infra.Logger
}

// surfaceKey scopes a surface to its owner; two users never share a job.
type surfaceKey struct {
	userID    string
	surfaceID string
}

type session struct {
	generationID string
	poller       *lro.Poller
}

// Studio routes form submissions to pollers, one per surface, and records
// their progress through the repository.
type Studio struct {
	initiator Initiator
	fetcher   lro.Fetcher
	enrich    lro.EnrichFunc
	repo      domain.GenerationRepository
	polling   lro.Config
	pollOpts  []lro.Option
	metrics   *metrics.Collector
	logger    *infra.Logger
	newID     func() string

	// ctx outlives individual requests; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	surfaces map[surfaceKey]*session
	closed   bool
}

// New creates a Studio.
func New(opts Options) (*Studio, error) {
	if opts.Initiator == nil || opts.Fetcher == nil || opts.Repository == nil {
		return nil, errors.New("studio: initiator, fetcher and repository are required")
	}
	logger := infra.LoggerOrDiscard(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Studio{
		initiator: opts.Initiator,
		fetcher:   opts.Fetcher,
		enrich:    opts.Enrich,
		repo:      opts.Repository,
		polling:   opts.Polling,
		pollOpts:  append([]lro.Option{lro.WithLogger(logger)}, opts.PollerOptions...),
		metrics:   opts.Metrics,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
		ctx:       ctx,
		cancel:    cancel,
		surfaces:  make(map[surfaceKey]*session),
	}, nil
}

// Generate initiates a job for surfaceID on behalf of app.UserID, persists it
// and starts polling. Any job the same user already runs on the surface is
// cancelled once the new one has been accepted by the backend.
func (s *Studio) Generate(ctx context.Context, surfaceID string, form domain.FormData, app *domain.AppContext) (*domain.Generation, error) {
	form = generation.ApplyDefaults(form)
	init, err := s.initiator.Initiate(ctx, form, app)
	if err != nil {
		return nil, err
	}
	sampleCount, _ := generation.SampleCount(form)

	gen := &domain.Generation{
		ID:          s.newID(),
		SurfaceID:   surfaceID,
		UserID:      init.Request.UserID,
		Operation:   init.Handle,
		Prompt:      init.Prompt,
		AspectRatio: init.Request.AspectRatio,
		Resolution:  init.Request.Resolution,
		SampleCount: sampleCount,
		Status:      domain.GenerationStatusPolling,
	}
	if err := s.repo.Create(ctx, gen); err != nil {
		s.logger.Error().Err(err).Str("operation", string(init.Handle)).Msg("studio: persist generation failed")
		return nil, err
	}

	if err := s.launch(surfaceKey{userID: gen.UserID, surfaceID: surfaceID}, gen, init.Request, "new"); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("surface_id", surfaceID).
		Str("generation_id", gen.ID).
		Str("operation", string(init.Handle)).
		Msg("studio: generation started")
	return gen, nil
}

// Resume restarts polling for generations persisted as in flight, typically
// left behind by a previous process. The newest generation of each user's
// surface wins; older ones on the same surface are recorded as cancelled.
func (s *Studio) Resume(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListPolling(ctx, limit)
	if err != nil {
		return 0, err
	}
	resumed := 0
	seen := make(map[surfaceKey]bool, len(pending))
	for _, gen := range pending {
		key := surfaceKey{userID: gen.UserID, surfaceID: gen.SurfaceID}
		if seen[key] {
			s.complete(gen.ID, domain.GenerationStatusCancelled, nil, "")
			continue
		}
		seen[key] = true
		if _, busy := s.Active(gen.UserID, gen.SurfaceID); busy {
			continue
		}
		rc := domain.RequestContext{
			Prompt:       gen.Prompt,
			AspectRatio:  gen.AspectRatio,
			Resolution:   gen.Resolution,
			SampleCount:  strconv.Itoa(gen.SampleCount),
			UserID:       gen.UserID,
			ModelVersion: modelFromHandle(gen.Operation),
		}
		if err := s.launch(key, gen, rc, "resumed"); err != nil {
			return resumed, err
		}
		resumed++
		s.logger.Info().
			Str("surface_id", gen.SurfaceID).
			Str("user_id", gen.UserID).
			Str("generation_id", gen.ID).
			Str("operation", string(gen.Operation)).
			Msg("studio: generation resumed")
	}
	return resumed, nil
}

// launch binds a poller for gen to key, replacing any job already there.
func (s *Studio) launch(key surfaceKey, gen *domain.Generation, rc domain.RequestContext, source string) error {
	sess := &session{generationID: gen.ID}
	sess.poller = lro.New(s.fetcher, s.enrich, s.sinkFor(gen.ID), s.polling, s.pollOpts...)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.complete(gen.ID, domain.GenerationStatusCancelled, nil, "")
		return ErrClosed
	}
	previous := s.surfaces[key]
	s.surfaces[key] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	if previous != nil {
		previous.poller.Cancel()
		s.logger.Info().
			Str("surface_id", key.surfaceID).
			Str("user_id", key.userID).
			Str("generation_id", previous.generationID).
			Msg("studio: superseded running job")
	}

	if err := sess.poller.Start(s.ctx, gen.Operation, rc); err != nil {
		s.wg.Done()
		return err
	}
	s.metrics.GenerationStarted(source)
	go s.watch(key, sess)
	return nil
}

// Get returns a persisted generation.
func (s *Studio) Get(ctx context.Context, id string) (*domain.Generation, error) {
	return s.repo.GetByID(ctx, id)
}

// Cancel stops the job userID runs on surfaceID.
func (s *Studio) Cancel(userID, surfaceID string) error {
	s.mu.Lock()
	sess := s.surfaces[surfaceKey{userID: userID, surfaceID: surfaceID}]
	s.mu.Unlock()
	if sess == nil {
		return ErrNoActiveJob
	}
	sess.poller.Cancel()
	return nil
}

// Active returns the generation id userID runs on surfaceID, if any.
func (s *Studio) Active(userID, surfaceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.surfaces[surfaceKey{userID: userID, surfaceID: surfaceID}]
	if !ok {
		return "", false
	}
	return sess.generationID, true
}

// Close cancels every running job and waits until their final state is
// recorded or ctx ends.
func (s *Studio) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.surfaces))
	for _, sess := range s.surfaces {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.poller.Cancel()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Studio) sinkFor(id string) lro.Sink {
	return lro.SinkFuncs{
		OnWaiting: func(p lro.Progress) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			s.metrics.PollPending()
			if err := s.repo.UpdateProgress(ctx, id, p.Attempt); err != nil {
				s.logger.Warn().Err(err).Str("generation_id", id).Msg("studio: record progress failed")
			}
		},
		OnDone: func(r lro.Result) {
			status := statusFor(r.State)
			s.metrics.GenerationFinished(string(status), r.Attempts)
			s.complete(id, status, r.Outputs, domain.UserMessage(r.Err, ""))
		},
	}
}

// watch records outcomes the poller does not report through its sink and
// frees the surface.
func (s *Studio) watch(key surfaceKey, sess *session) {
	defer s.wg.Done()
	<-sess.poller.Done()

	switch sess.poller.State() {
	case lro.StateCancelled:
		s.metrics.GenerationFinished(string(domain.GenerationStatusCancelled), sess.poller.Attempts())
		s.complete(sess.generationID, domain.GenerationStatusCancelled, nil, "")
	case lro.StateExhausted:
		if !s.polling.SurfaceExhaustion {
			s.metrics.GenerationFinished(string(domain.GenerationStatusExhausted), sess.poller.Attempts())
			s.complete(sess.generationID, domain.GenerationStatusExhausted, nil, "")
		}
	}
	s.metrics.SurfaceReleased()
	s.logger.Debug().
		Str("surface_id", key.surfaceID).
		Str("generation_id", sess.generationID).
		Str("operation", string(sess.poller.Handle())).
		Str("state", sess.poller.State().String()).
		Msg("studio: surface released")

	s.mu.Lock()
	if s.surfaces[key] == sess {
		delete(s.surfaces, key)
	}
	s.mu.Unlock()
}

func (s *Studio) complete(id string, status domain.GenerationStatus, outputs []domain.OutputRecord, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.repo.Complete(ctx, id, status, outputs, message); err != nil {
		s.logger.Error().Err(err).Str("generation_id", id).Str("status", string(status)).Msg("studio: record outcome failed")
	}
}

func statusFor(state lro.State) domain.GenerationStatus {
	switch state {
	case lro.StateSucceeded:
		return domain.GenerationStatusSucceeded
	case lro.StateExhausted:
		return domain.GenerationStatusExhausted
	case lro.StateCancelled:
		return domain.GenerationStatusCancelled
	}
	return domain.GenerationStatusFailed
}

// modelFromHandle extracts the model id from
// projects/{p}/locations/{l}/publishers/{pub}/models/{model}/operations/{id}.
func modelFromHandle(h domain.OperationHandle) string {
	parts := strings.Split(string(h), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "models" {
			return parts[i+1]
		}
	}
	return ""
}

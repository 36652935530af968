package lro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/infra"
)

// State is a Poller lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateSucceeded
	StateFailed
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// ErrAlreadyStarted is returned by Start on a Poller that left Idle.
var ErrAlreadyStarted = errors.New("lro: poller already started")

// Fetcher performs one status query. Errors should be *domain.Error values;
// anything else is reported as a generic polling failure.
type Fetcher interface {
	FetchOperation(ctx context.Context, handle domain.OperationHandle) (domain.OperationStatus, error)
}

// EnrichFunc maps raw outputs of a finished operation to display records.
type EnrichFunc func(raw []domain.GeneratedVideo, rc domain.RequestContext) []domain.OutputRecord

// PassThrough copies each raw video and the request context into a record
// without any derived fields. New falls back to it when enrich is nil.
func PassThrough(raw []domain.GeneratedVideo, rc domain.RequestContext) []domain.OutputRecord {
	out := make([]domain.OutputRecord, 0, len(raw))
	for _, v := range raw {
		out = append(out, domain.OutputRecord{
			GCSURI:       v.GCSURI,
			Format:       v.MimeType,
			Prompt:       rc.Prompt,
			AspectRatio:  rc.AspectRatio,
			Resolution:   rc.Resolution,
			Author:       rc.UserID,
			ModelVersion: rc.ModelVersion,
		})
	}
	return out
}

// Progress is delivered after every "not done yet" answer.
type Progress struct {
	Handle    domain.OperationHandle
	Attempt   int
	NextDelay time.Duration
}

// Result is the single terminal outcome of a job: Succeeded with Outputs,
// or Failed/Exhausted with Err.
type Result struct {
	Handle   domain.OperationHandle
	State    State
	Outputs  []domain.OutputRecord
	Err      error
	Attempts int
}

// Sink receives the notifications of one job. Calls never overlap and Done
// is called at most once.
type Sink interface {
	Waiting(Progress)
	Done(Result)
}

// SinkFuncs adapts plain functions to Sink; nil fields are ignored.
type SinkFuncs struct {
	OnWaiting func(Progress)
	OnDone    func(Result)
}

func (s SinkFuncs) Waiting(p Progress) {
	if s.OnWaiting != nil {
		s.OnWaiting(p)
	}
}

func (s SinkFuncs) Done(r Result) {
	if s.OnDone != nil {
		s.OnDone(r)
	}
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces the runtime clock.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithBackOff replaces the interval sequence derived from Config.
func WithBackOff(b backoff.BackOff) Option {
	return func(p *Poller) { p.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(l *infra.Logger) Option {
	return func(p *Poller) { p.logger = infra.LoggerOrDiscard(l) }
}

// Poller tracks one operation. It is single use: Start once, then wait for
// a terminal state or Cancel.
type Poller struct {
	fetcher Fetcher
	enrich  EnrichFunc
	sink    Sink
	cfg     Config
	clock   Clock
	backoff backoff.BackOff
	logger  *infra.Logger
	done    chan struct{}
	release sync.Once

	mu       sync.Mutex
	state    State
	ctx      context.Context
	handle   domain.OperationHandle
	request  domain.RequestContext
	attempts int
	timer    Timer
}

// New creates an idle Poller.
func New(fetcher Fetcher, enrich EnrichFunc, sink Sink, cfg Config, opts ...Option) *Poller {
	cfg = cfg.normalized()
	p := &Poller{
		fetcher: fetcher,
		enrich:  enrich,
		sink:    sink,
		cfg:     cfg,
		clock:   RealClock{},
		logger:  infra.LoggerOrDiscard(nil),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.backoff == nil {
		p.backoff = NewBackOff(cfg)
	}
	if p.sink == nil {
		p.sink = SinkFuncs{}
	}
	if p.enrich == nil {
		p.enrich = PassThrough
	}
	return p
}

// Start moves Idle to Polling and schedules the first status query. ctx
// bounds every query; when it ends the poller stops as Cancelled.
func (p *Poller) Start(ctx context.Context, handle domain.OperationHandle, rc domain.RequestContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return ErrAlreadyStarted
	}
	p.state = StatePolling
	p.ctx = ctx
	p.handle = handle
	p.request = rc
	p.attempts = 0
	p.backoff.Reset()
	p.timer = p.clock.AfterFunc(p.cfg.FirstDelay, p.tick)
	p.logger.Debug().Str("operation", string(handle)).Msg("lro: polling started")
	return nil
}

// Cancel stops the job. A query already in flight is not aborted but its
// answer is discarded. Calling Cancel again, or after a terminal state, does
// nothing.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.logger.Debug().Str("operation", string(p.handle)).Int("attempts", p.attempts).Msg("lro: polling cancelled")
	p.state = StateCancelled
	p.closeDone()
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many ticks have fired.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Handle returns the operation being tracked.
func (p *Poller) Handle() domain.OperationHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Done is closed once the poller reaches any terminal state.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) tick() {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	if p.ctx.Err() != nil {
		p.state = StateCancelled
		p.mu.Unlock()
		p.closeDone()
		return
	}

	p.attempts++
	attempt, handle, ctx := p.attempts, p.handle, p.ctx
	if attempt > p.cfg.MaxAttempts {
		p.state = StateExhausted
		p.mu.Unlock()
		defer p.closeDone()
		p.logger.Warn().
			Str("operation", string(handle)).
			Int("max_attempts", p.cfg.MaxAttempts).
			Msg("lro: polling budget exhausted")
		if p.cfg.SurfaceExhaustion {
			p.sink.Done(Result{
				Handle:   handle,
				State:    StateExhausted,
				Err:      domain.ExhaustedError(handle, p.cfg.MaxAttempts),
				Attempts: p.cfg.MaxAttempts,
			})
		}
		return
	}
	p.mu.Unlock()

	status, err := p.fetcher.FetchOperation(ctx, handle)

	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		p.logger.Debug().Str("operation", string(handle)).Msg("lro: discarding answer received after cancel")
		return
	}
	if err != nil && ctx.Err() != nil {
		p.state = StateCancelled
		p.mu.Unlock()
		p.closeDone()
		return
	}

	if err == nil && !status.Done {
		delay := p.backoff.NextBackOff()
		p.mu.Unlock()
		p.sink.Waiting(Progress{Handle: handle, Attempt: attempt, NextDelay: delay})
		p.mu.Lock()
		if p.state == StatePolling {
			p.timer = p.clock.AfterFunc(delay, p.tick)
		}
		p.mu.Unlock()
		p.logger.Debug().
			Str("operation", string(handle)).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Msg("lro: operation still running")
		return
	}

	result := p.outcome(status, err)
	result.Handle = handle
	result.Attempts = attempt
	p.state = result.State
	p.mu.Unlock()
	defer p.closeDone()

	ev := p.logger.Info()
	if result.Err != nil {
		ev = p.logger.Error().Err(result.Err)
	}
	ev.Str("operation", string(handle)).
		Str("state", result.State.String()).
		Int("attempts", attempt).
		Int("outputs", len(result.Outputs)).
		Msg("lro: operation finished")
	p.sink.Done(result)
}

// outcome classifies a query that either failed or reported done. It runs
// with p.mu held.
func (p *Poller) outcome(status domain.OperationStatus, err error) Result {
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			de = domain.NewError(domain.ErrTransport, domain.PollFailureMessage, err)
		}
		return Result{State: StateFailed, Err: de}
	}
	if status.Error != nil {
		return Result{State: StateFailed, Err: domain.ClassifyOperationError(*status.Error)}
	}
	if len(status.Videos) > 0 {
		return Result{State: StateSucceeded, Outputs: p.enrich(status.Videos, p.request)}
	}
	return Result{State: StateFailed, Err: domain.NewError(domain.ErrEmptyResult, domain.EmptyResultMessage, nil)}
}

// closeDone releases Done waiters once the terminal notification, if any,
// has been delivered.
func (p *Poller) closeDone() {
	p.release.Do(func() { close(p.done) })
}

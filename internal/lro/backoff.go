package lro

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config tunes one Poller.
type Config struct {
	// FirstDelay is the wait before the first status query.
	FirstDelay      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Multiplier grows the interval after every "not done" answer.
	Multiplier float64
	// JitterFactor spreads each delay uniformly over
	// [interval*(1-JitterFactor/2), interval*(1+JitterFactor/2)].
	JitterFactor float64
	MaxAttempts  int
	// SurfaceExhaustion delivers a domain.ErrExhausted result to the sink when
	// the attempt budget runs out. When false the poller just stops.
	SurfaceExhaustion bool
}

// DefaultConfig mirrors the studio's polling cadence: 6s growing by 20% up
// to 60s, 20% jitter, 30 attempts, silent exhaustion.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 6 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      1.2,
		JitterFactor:    0.2,
		MaxAttempts:     30,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = max(d.MaxInterval, c.InitialInterval)
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFactor < 0 || c.JitterFactor > 2 {
		c.JitterFactor = d.JitterFactor
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.FirstDelay < 0 {
		c.FirstDelay = 0
	}
	return c
}

// NewBackOff builds the exponential, jittered interval sequence for cfg.
// Delays are rounded to the millisecond.
func NewBackOff(cfg Config) backoff.BackOff {
	cfg = cfg.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.JitterFactor / 2
	b.Reset()
	return roundedBackOff{b: b}
}

type roundedBackOff struct {
	b backoff.BackOff
}

func (r roundedBackOff) NextBackOff() time.Duration {
	d := r.b.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	return d.Round(time.Millisecond)
}

func (r roundedBackOff) Reset() { r.b.Reset() }

// Package etl holds the pure decision logic of the ingestion pipeline: retry
// backoff, load-status normalization and the CSV rewrite into graph load files.
package etl

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// MaxQueueDelay is the longest delivery delay the throttle queue accepts.
const MaxQueueDelay = 900 * time.Second

var (
	// ErrInvalidBackoffBase indicates the base backoff is not positive.
	ErrInvalidBackoffBase = errors.New("base backoff must be positive")
	// ErrInvalidBackoffMax indicates the max backoff is smaller than the base.
	ErrInvalidBackoffMax = errors.New("max backoff must be >= base backoff")
	// ErrInvalidJitter indicates the jitter factor is outside [0, 1).
	ErrInvalidJitter = errors.New("jitter factor must be in [0, 1)")
)

// BackoffOptions configures a BackoffPolicy.
type BackoffOptions struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// Floor is applied to every delay (the queue's standard message delay).
	Floor time.Duration
	// Ceiling defaults to MaxQueueDelay.
	Ceiling time.Duration
	// Rand returns values in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// BackoffPolicy computes re-enqueue delays for retryable transform outcomes.
type BackoffPolicy struct {
	base    time.Duration
	max     time.Duration
	jitter  float64
	floor   time.Duration
	ceiling time.Duration
	rand    func() float64
}

// NewBackoffPolicy validates opts and builds a policy.
func NewBackoffPolicy(opts BackoffOptions) (*BackoffPolicy, error) {
	if opts.Base <= 0 {
		return nil, ErrInvalidBackoffBase
	}
	if opts.Max < opts.Base {
		return nil, ErrInvalidBackoffMax
	}
	if opts.Jitter < 0 || opts.Jitter >= 1 || math.IsNaN(opts.Jitter) {
		return nil, ErrInvalidJitter
	}
	ceiling := opts.Ceiling
	if ceiling <= 0 || ceiling > MaxQueueDelay {
		ceiling = MaxQueueDelay
	}
	floor := max(opts.Floor, 0)
	if floor > ceiling {
		floor = ceiling
	}
	r := opts.Rand
	if r == nil {
		r = rand.Float64
	}
	return &BackoffPolicy{
		base:    opts.Base,
		max:     opts.Max,
		jitter:  opts.Jitter,
		floor:   floor,
		ceiling: ceiling,
		rand:    r,
	}, nil
}

// Unjittered returns min(max, base*2^attempt). It is monotonically
// non-decreasing in attempt and never overflows.
func (p *BackoffPolicy) Unjittered(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^62 ns is far beyond any sane max, so larger exponents saturate.
	if attempt >= 62 {
		return p.max
	}
	scaled := float64(p.base) * math.Exp2(float64(attempt))
	if scaled >= float64(p.max) {
		return p.max
	}
	return time.Duration(scaled)
}

// Delay returns the jittered delay for attempt, clamped to [floor, ceiling].
// r must be in [0, 1); it maps linearly onto the (1 - jitter, 1 + jitter) band.
func (p *BackoffPolicy) Delay(attempt int, r float64) time.Duration {
	r = math.Min(math.Max(r, 0), 1)
	factor := 1 + p.jitter*(2*r-1)
	d := time.Duration(float64(p.Unjittered(attempt)) * factor)
	return p.clamp(d)
}

func (p *BackoffPolicy) clamp(d time.Duration) time.Duration {
	if d < p.floor {
		d = p.floor
	}
	if d > p.ceiling {
		d = p.ceiling
	}
	return d
}

// RetryDecision is the outcome of Decide.
type RetryDecision struct {
	Retry       bool
	NextAttempt int
	Delay       time.Duration
}

// Decide reports whether the attempt that just failed may be retried, and
// with what delay. Retries stop once the next attempt would exceed maxRetries.
func (p *BackoffPolicy) Decide(attempt, maxRetries int) RetryDecision {
	next := attempt + 1
	if next > maxRetries {
		return RetryDecision{Retry: false, NextAttempt: next}
	}
	return RetryDecision{
		Retry:       true,
		NextAttempt: next,
		Delay:       p.Delay(attempt, p.rand()),
	}
}

// Floor returns the minimum delay applied to every re-enqueue.
func (p *BackoffPolicy) Floor() time.Duration {
	return p.floor
}

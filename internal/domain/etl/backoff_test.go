package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T, r func() float64) *BackoffPolicy {
	t.Helper()
	p, err := NewBackoffPolicy(BackoffOptions{
		Base:   10 * time.Second,
		Max:    100 * time.Second,
		Jitter: 0.25,
		Floor:  5 * time.Second,
		Rand:   r,
	})
	require.NoError(t, err)
	return p
}

func TestNewBackoffPolicy_Validation(t *testing.T) {
	_, err := NewBackoffPolicy(BackoffOptions{Base: 0, Max: time.Second})
	require.ErrorIs(t, err, ErrInvalidBackoffBase)

	_, err = NewBackoffPolicy(BackoffOptions{Base: 2 * time.Second, Max: time.Second})
	require.ErrorIs(t, err, ErrInvalidBackoffMax)

	_, err = NewBackoffPolicy(BackoffOptions{Base: time.Second, Max: time.Second, Jitter: 1})
	require.ErrorIs(t, err, ErrInvalidJitter)

	_, err = NewBackoffPolicy(BackoffOptions{Base: time.Second, Max: time.Second, Jitter: -0.1})
	require.ErrorIs(t, err, ErrInvalidJitter)
}

func TestBackoffPolicy_UnjitteredMonotonic(t *testing.T) {
	p := newTestPolicy(t, nil)

	assert.Equal(t, 10*time.Second, p.Unjittered(0))
	assert.Equal(t, 20*time.Second, p.Unjittered(1))
	assert.Equal(t, 40*time.Second, p.Unjittered(2))
	assert.Equal(t, 80*time.Second, p.Unjittered(3))
	assert.Equal(t, 100*time.Second, p.Unjittered(4))

	prev := time.Duration(0)
	for attempt := 0; attempt < 200; attempt++ {
		d := p.Unjittered(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 100*time.Second, "attempt %d", attempt)
		prev = d
	}
}

func TestBackoffPolicy_DelayWithinJitterBand(t *testing.T) {
	p := newTestPolicy(t, nil)

	for attempt := 0; attempt < 12; attempt++ {
		u := p.Unjittered(attempt)
		lo := time.Duration(float64(u) * 0.75)
		hi := time.Duration(float64(u) * 1.25)
		for _, r := range []float64{0, 0.1, 0.5, 0.9, 0.999999} {
			d := p.Delay(attempt, r)
			assert.GreaterOrEqual(t, d, lo, "attempt %d r %v", attempt, r)
			assert.LessOrEqual(t, d, hi, "attempt %d r %v", attempt, r)
			assert.LessOrEqual(t, d, MaxQueueDelay)
		}
	}
	assert.Equal(t, 10*time.Second, p.Delay(0, 0.5))
}

func TestBackoffPolicy_ClampsToFloorAndCeiling(t *testing.T) {
	p, err := NewBackoffPolicy(BackoffOptions{
		Base:   time.Second,
		Max:    2 * time.Hour,
		Jitter: 0.5,
		Floor:  5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, p.Delay(0, 0), "floor applies")
	assert.Equal(t, MaxQueueDelay, p.Delay(30, 0.99), "queue ceiling applies")
}

func TestBackoffPolicy_Decide(t *testing.T) {
	p := newTestPolicy(t, func() float64 { return 0.5 })

	d := p.Decide(0, 10)
	assert.True(t, d.Retry)
	assert.Equal(t, 1, d.NextAttempt)
	assert.Equal(t, 10*time.Second, d.Delay)

	d = p.Decide(9, 10)
	assert.True(t, d.Retry)
	assert.Equal(t, 10, d.NextAttempt)

	d = p.Decide(10, 10)
	assert.False(t, d.Retry)
	assert.Equal(t, 11, d.NextAttempt)
	assert.Zero(t, d.Delay)

	d = p.Decide(0, 0)
	assert.False(t, d.Retry, "no retries configured")
}

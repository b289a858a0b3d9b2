package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote failed")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", s)
	b.now = clock.Now
	b.expiry = clock.Now().Add(b.set.Window)
	return b, clock
}

func call(b *Breaker, fail bool) error {
	return b.Do(context.Background(), func(context.Context) error {
		if fail {
			return errRemote
		}
		return nil
	})
}

func TestBreakerTransitions(t *testing.T) {
	trip3 := func(c Counts) bool { return c.ConsecutiveFailures >= 3 }

	tests := []struct {
		name     string
		calls    []bool // true = failure
		expected State
	}{
		{name: "stays closed on successes", calls: []bool{false, false, false}, expected: StateClosed},
		{name: "opens after consecutive failures", calls: []bool{true, true, true}, expected: StateOpen},
		{name: "success resets the streak", calls: []bool{true, true, false, true, true}, expected: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(Settings{Trip: trip3})
			for _, fail := range tt.calls {
				_ = call(b, fail)
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, clock := newTestBreaker(Settings{
		Cooldown: 10 * time.Second,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	require.ErrorIs(t, call(b, true), errRemote)
	require.Equal(t, StateOpen, b.State())

	ran := false
	err := b.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, call(b, false))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{
		Cooldown: time.Second,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_ = call(b, true)
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = call(b, true)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b, _ := newTestBreaker(Settings{Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})

	err := b.Do(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().Successes)
}

func TestBreakerStateChangeHook(t *testing.T) {
	var seen []string
	b, _ := newTestBreaker(Settings{
		Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(name string, from, to State) {
			seen = append(seen, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = call(b, true)
	assert.Equal(t, []string{"test:closed->open"}, seen)
}

func TestBreakerWindowReset(t *testing.T) {
	b, clock := newTestBreaker(Settings{Window: time.Minute, Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 }})

	_ = call(b, true)
	_ = call(b, true)
	clock.Advance(2 * time.Minute)
	_ = call(b, true)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})

	assert.Panics(t, func() {
		_ = b.Do(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many probe requests")
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the breaker.
type Settings struct {
	// Probes is the number of trial calls allowed while half-open.
	Probes uint32
	// Window is how long closed-state counts accumulate before reset.
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Trip decides whether the counts justify opening.
	Trip func(c Counts) bool
	// IsFailure classifies a call result. Cancellation by the caller is
	// not the remote's fault and is ignored by the default.
	IsFailure func(err error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// Counts are the statistics of the current window.
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker stops calling an unhealthy remote for a cooldown period.
type Breaker struct {
	name string
	set  Settings
	now  func() time.Time

	mu         sync.Mutex
	state      State
	counts     Counts
	expiry     time.Time
	generation uint64
}

// New creates a breaker, filling unset settings with defaults.
func New(name string, s Settings) *Breaker {
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.Window == 0 {
		s.Window = time.Minute
	}
	if s.Cooldown == 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trip == nil {
		s.Trip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}

	b := &Breaker{name: name, set: s, now: time.Now}
	b.expiry = b.now().Add(s.Window)
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the position after applying any elapsed timeouts.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.now())
	return b.state
}

// Counts returns a copy of the window statistics.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker rejects the call. A panic inside fn counts
// as a failure and is re-raised.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			b.record(gen, true)
		}
	}()

	err = fn(ctx)
	done = true
	b.record(gen, b.set.IsFailure(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	switch b.state {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.set.Probes {
			return b.generation, ErrTooManyRequests
		}
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if gen != b.generation {
		return
	}

	if !failed {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.set.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		if b.set.Trip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// advance applies window resets and cooldown expiry. Caller holds mu.
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.generation++
			b.counts = Counts{}
			b.expiry = now.Add(b.set.Window)
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.counts = Counts{}

	switch to {
	case StateClosed:
		b.expiry = now.Add(b.set.Window)
	case StateOpen:
		b.expiry = now.Add(b.set.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.set.OnStateChange != nil {
		b.set.OnStateChange(b.name, from, to)
	}
}

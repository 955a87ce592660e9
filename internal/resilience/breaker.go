// Package resilience provides the shared failure-isolation primitives used
// by the proof resolver and the AI judge: a three-state circuit breaker with
// pure transition logic, and a reusable retry combinator.
//
// Both are explicitly constructed and injected into the components that need
// them. Production wiring shares single instances process-wide; tests build
// fresh ones for isolation.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// Default breaker settings shared by every external call path.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 60 * time.Second
)

// ErrBreakerOpen indicates the circuit breaker rejected a call without
// executing it. Callers treat this as "the strategy didn't run this time",
// not as a failure of the underlying dependency.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// State is a circuit breaker state.
type State int

const (
	// StateClosed allows all calls through. This is the healthy default.
	StateClosed State = iota

	// StateOpen rejects calls immediately until the cooldown elapses.
	StateOpen

	// StateHalfOpen allows exactly one trial call to probe recovery.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Event is an input to the breaker's transition function.
type Event int

const (
	// EventSuccess reports a successful call.
	EventSuccess Event = iota

	// EventFailure reports a failed call (including timeouts).
	EventFailure
)

// snapshot is the breaker's complete transition state. Keeping transitions
// pure over this value makes the state machine testable without clocks or
// mutexes.
type snapshot struct {
	state       State
	failures    int
	lastFailure time.Time
}

// next computes the successor snapshot for an observed call outcome.
// It encodes the full contract: maxFailures consecutive failures open the
// circuit, a half-open success closes it and resets the failure count, and
// a half-open failure re-opens it and restarts the cooldown clock.
func next(cur snapshot, ev Event, now time.Time, maxFailures int) snapshot {
	switch ev {
	case EventSuccess:
		return snapshot{state: StateClosed}
	case EventFailure:
		out := snapshot{failures: cur.failures + 1, lastFailure: now}
		if cur.state == StateHalfOpen || out.failures >= maxFailures {
			out.state = StateOpen
		}
		return out
	}
	return cur
}

// admit decides whether a call may proceed, transitioning open → half-open
// once the cooldown has elapsed. While a half-open trial is in flight,
// further callers are rejected so exactly one probe reaches the dependency.
func admit(cur snapshot, now time.Time, cooldown time.Duration) (snapshot, bool) {
	switch cur.state {
	case StateClosed:
		return cur, true
	case StateHalfOpen:
		return cur, false
	default: // StateOpen
		if now.Sub(cur.lastFailure) < cooldown {
			return cur, false
		}
		cur.state = StateHalfOpen
		return cur, true
	}
}

// Breaker is a concurrency-safe three-state circuit breaker.
// The same abstraction guards the indexed-log strategy, the direct
// chain-log strategy, and the vision-LLM call path.
type Breaker struct {
	mu          sync.Mutex
	snap        snapshot
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and stays open for cooldown before allowing a trial call.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Do executes fn through the breaker. If the circuit is open and the
// cooldown has not elapsed, it returns ErrBreakerOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	snap, ok := admit(b.snap, b.now(), b.cooldown)
	b.snap = snap
	if !ok {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	ev := EventSuccess
	if err != nil {
		ev = EventFailure
	}
	b.snap = next(b.snap, ev, b.now(), b.maxFailures)
	b.mu.Unlock()

	return err
}

// State returns the breaker's current state for monitoring.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.state
}

// setClock overrides the breaker's clock. Test hook.
func (b *Breaker) setClock(now func() time.Time) { b.now = now }

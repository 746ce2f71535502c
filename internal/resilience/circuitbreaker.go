// Package resilience provides the circuit breaker guarding remote scoring and
// the ordered failover used for script sources.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). It
// never retries: a rejected or failed call is returned to the caller as is.
// [FallbackGroup] composes several instances of one collaborator type, each
// behind its own breaker, and tries them in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed, or when the half-open trial call
// budget is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected with [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the trial state entered after the reset timeout. A
	// limited number of calls are let through; if they succeed the breaker
	// closes, a single failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages and hooks.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing trials.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trials needed to close the
	// breaker again. At most this many trials run concurrently. Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error returned by the guarded call counts
	// against the breaker. Default: every error except context cancellation
	// and deadline expiry of the caller's own context.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every state transition. It runs
	// outside the breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	trialsInFlight  int
	trialSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// transition describes a state change to report once the lock is released.
type transition struct {
	from, to State
}

// Execute runs fn if the breaker allows it and records the outcome.
//
// In the open state it returns [ErrCircuitOpen] without calling fn. If ctx is
// already done, ctx.Err() is returned and nothing is recorded. Errors that
// IsFailure rejects neither trip nor heal the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trial, tr, err := cb.admit()
	cb.notify(tr)
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	cb.notify(cb.record(ctx, trial, callErr))
	return callErr
}

// admit decides whether a call may proceed and whether it is a half-open trial call.
func (cb *CircuitBreaker) admit() (trial bool, tr *transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, nil, ErrCircuitOpen
		}
		tr = cb.setState(StateHalfOpen)
		cb.trialsInFlight = 0
		cb.trialSuccesses = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.trialsInFlight+cb.trialSuccesses >= cb.halfOpenMax {
			return false, tr, ErrCircuitOpen
		}
		cb.trialsInFlight++
		return true, tr, nil
	}
	return false, tr, nil
}

// record accounts for the outcome of an admitted call.
func (cb *CircuitBreaker) record(ctx context.Context, trial bool, err error) *transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialsInFlight--
	}

	switch {
	case err == nil:
		return cb.recordSuccess(trial)
	case cb.countsAsFailure(ctx, err):
		return cb.recordFailure(trial)
	default:
		return nil
	}
}

func (cb *CircuitBreaker) countsAsFailure(ctx context.Context, err error) bool {
	if cb.isFailure != nil {
		return cb.isFailure(err)
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return false
	}
	return true
}

// recordFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(trial bool) *transition {
	if trial || cb.state == StateHalfOpen {
		cb.openedAt = cb.now()
		cb.consecutiveFail = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return cb.setState(StateOpen)
	}

	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		cb.openedAt = cb.now()
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
		return cb.setState(StateOpen)
	}
	return nil
}

// recordSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(trial bool) *transition {
	if !trial {
		if cb.state == StateClosed {
			cb.consecutiveFail = 0
		}
		return nil
	}
	if cb.state != StateHalfOpen {
		return nil
	}
	cb.trialSuccesses++
	if cb.trialSuccesses < cb.halfOpenMax {
		return nil
	}
	cb.consecutiveFail = 0
	cb.trialSuccesses = 0
	slog.Info("circuit breaker closed after successful trials", "name", cb.name)
	return cb.setState(StateClosed)
}

// setState switches to s. Must be called with cb.mu held.
func (cb *CircuitBreaker) setState(s State) *transition {
	if cb.state == s {
		return nil
	}
	tr := &transition{from: cb.state, to: s}
	cb.state = s
	return tr
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr != nil && cb.onStateChange != nil {
		cb.onStateChange(cb.name, tr.from, tr.to)
	}
}

// Name returns the label the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.setState(StateClosed)
	cb.consecutiveFail = 0
	cb.trialsInFlight = 0
	cb.trialSuccesses = 0
	cb.mu.Unlock()

	slog.Info("circuit breaker manually reset", "name", cb.name)
	cb.notify(tr)
}

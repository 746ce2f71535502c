// Package countdown implements the per-round recording timer.
//
// A [Timer] runs at most one countdown at a time. Every run is identified by
// a [Handle]; the completion callback receives the handle of the run that
// expired so callers can ignore expiries they no longer care about. A run
// that is stopped, or superseded by a new Start, never fires.
package countdown

import (
	"sync"
	"time"

	"github.com/MrWong99/recita/pkg/script"
)

// Durations of the recording window per script level.
const (
	ShortDuration   = 1500 * time.Millisecond
	DefaultDuration = 3000 * time.Millisecond
)

// Handle identifies one countdown run. The zero Handle never refers to a run.
type Handle uint64

// CompletionFunc is called exactly once per run that expires naturally, with
// finished set to true. It runs on its own goroutine and must not block for
// long.
type CompletionFunc func(h Handle, finished bool)

// Timer is a cancelable, re-entrant countdown.
type Timer struct {
	onComplete CompletionFunc

	mu      sync.Mutex
	current Handle
	next    Handle
	timer   *time.Timer
	started time.Time
	length  time.Duration
}

// New creates a Timer that reports natural expiry to onComplete.
func New(onComplete CompletionFunc) *Timer {
	return &Timer{onComplete: onComplete}
}

// Start begins a countdown of d, cancelling any run already in progress.
func (t *Timer) Start(d time.Duration) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.next++
	h := t.next
	t.current = h
	t.started = time.Now()
	t.length = d
	t.timer = time.AfterFunc(d, func() { t.fire(h) })
	return h
}

func (t *Timer) fire(h Handle) {
	t.mu.Lock()
	if t.current != h {
		t.mu.Unlock()
		return
	}
	t.current = 0
	t.timer = nil
	t.mu.Unlock()

	if t.onComplete != nil {
		t.onComplete(h, true)
	}
}

// Stop cancels run h without firing. It reports whether h was still running.
func (t *Timer) Stop(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == 0 || t.current != h {
		return false
	}
	t.stopLocked()
	return true
}

// StopAll cancels whatever run is in progress.
func (t *Timer) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.current = 0
}

// Running returns the handle of the active run, or 0 if none.
func (t *Timer) Running() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Remaining returns how much of the active run is left, or 0 if none.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == 0 {
		return 0
	}
	return max(0, t.length-time.Since(t.started))
}

// DurationFor returns the built-in recording window for a script level:
// ShortDuration for level "1" and DefaultDuration for every other level.
func DurationFor(level script.Level) time.Duration {
	return Schedule{}.For(level)
}

// Schedule is a configurable level-to-duration table. The zero Schedule
// behaves like [DurationFor].
type Schedule struct {
	// Levels overrides the window for specific levels.
	Levels map[script.Level]time.Duration

	// Default replaces DefaultDuration for levels without an override.
	Default time.Duration
}

// For returns the recording window for level.
func (s Schedule) For(level script.Level) time.Duration {
	if d, ok := s.Levels[level]; ok && d > 0 {
		return d
	}
	if level == script.LevelShort {
		return ShortDuration
	}
	if s.Default > 0 {
		return s.Default
	}
	return DefaultDuration
}

package practice

import (
	"time"

	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/pkg/script"
)

// Phase is the controller's position in the session state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetchingScripts
	PhaseRoundActive
	PhaseScoring
	// PhaseAwaitingRetry follows a failed recording or scoring call. The
	// round only continues on an explicit retry or restart.
	PhaseAwaitingRetry
	// PhasePaused follows a user cancellation and waits for resume or exit.
	PhasePaused
	PhaseComplete
	PhaseExited
)

// String returns the snake_case phase name used on the wire.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingScripts:
		return "fetching_scripts"
	case PhaseRoundActive:
		return "round_active"
	case PhaseScoring:
		return "scoring"
	case PhaseAwaitingRetry:
		return "awaiting_retry"
	case PhasePaused:
		return "paused"
	case PhaseComplete:
		return "complete"
	case PhaseExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseExited
}

// EventKind identifies what happened in an [Event].
type EventKind int

const (
	EventRoundStarted EventKind = iota
	EventScoring
	EventRoundScored
	EventRecordingFailed
	EventScoringFailed
	EventPaused
	EventSessionComplete
	EventExited
)

// String returns the snake_case event name used on the wire.
func (k EventKind) String() string {
	switch k {
	case EventRoundStarted:
		return "round_started"
	case EventScoring:
		return "scoring"
	case EventRoundScored:
		return "round_scored"
	case EventRecordingFailed:
		return "recording_failed"
	case EventScoringFailed:
		return "scoring_failed"
	case EventPaused:
		return "paused"
	case EventSessionComplete:
		return "session_complete"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is a notification from the controller to its owner. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind  EventKind
	Round int
	Epoch uint64

	// Script and Duration are set on EventRoundStarted.
	Script   script.Script
	Duration time.Duration

	// Raw and Display are set on EventRoundScored.
	Raw     float64
	Display int

	// Result is set on EventSessionComplete.
	Result *score.AggregateResult

	// Err is set on the failure events.
	Err error
}

// Snapshot is a point-in-time copy of a controller's state.
type Snapshot struct {
	SessionID string
	Phase     Phase
	Round     int
	Epoch     uint64
	Script    script.Script
	Scores    []float64
	Remaining int
}

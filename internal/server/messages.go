package server

import (
	"context"
	"errors"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/internal/ranking"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/internal/resilience"
	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/internal/scoring"
	"github.com/MrWong99/recita/pkg/script"
)

// Client message types.
const (
	msgStart   = "start"
	msgCancel  = "cancel"
	msgResume  = "resume"
	msgExit    = "exit"
	msgRetry   = "retry"
	msgRestart = "restart"
	msgSubmit  = "submit"
)

// Server-only message types. Controller events use [practice.EventKind]'s
// string form as their type.
const (
	msgStarted   = "started"
	msgSubmitted = "submitted"
	msgError     = "error"
)

// Audio codecs accepted in binary frames.
const (
	codecPCM16 = "pcm16"
	codecOpus  = "opus"
)

// clientMessage is a text frame sent by the client.
type clientMessage struct {
	Type string `json:"type"`

	// start and submit
	Name string `json:"name,omitempty"`

	// start
	MicPermission bool   `json:"mic_permission,omitempty"`
	Codec         string `json:"codec,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
}

// serverMessage is a text frame sent to the client.
type serverMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	Round int    `json:"round,omitempty"`
	Epoch uint64 `json:"epoch,omitempty"`

	// round_started
	Script     *script.Script `json:"script,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`

	// round_scored
	Raw     *float64 `json:"raw,omitempty"`
	Display *int     `json:"display,omitempty"`

	// session_complete
	Result  *score.AggregateResult `json:"result,omitempty"`
	Message string                 `json:"message,omitempty"`

	// submitted
	Average *float64 `json:"average,omitempty"`

	// error and failure events
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func eventMessage(sessionID string, e practice.Event) serverMessage {
	m := serverMessage{
		Type:      e.Kind.String(),
		SessionID: sessionID,
		Round:     e.Round,
		Epoch:     e.Epoch,
	}
	switch e.Kind {
	case practice.EventRoundStarted:
		s := e.Script
		m.Script = &s
		m.DurationMS = e.Duration.Milliseconds()
	case practice.EventRoundScored:
		raw, display := e.Raw, e.Display
		m.Raw = &raw
		m.Display = &display
	case practice.EventSessionComplete:
		if e.Result != nil {
			m.Result = e.Result
			m.Message = e.Result.Tier.Message()
		}
	}
	if e.Err != nil {
		m.Code = errorCode(e.Err)
		m.Error = e.Err.Error()
	}
	return m
}

func errorMessage(code string, err error) serverMessage {
	return serverMessage{Type: msgError, Code: code, Error: err.Error()}
}

// errorCode maps known errors to stable client-facing codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, practice.ErrNotAllowed):
		return "not_allowed"
	case errors.Is(err, practice.ErrSessionOver):
		return "session_over"
	case errors.Is(err, recording.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, script.ErrNoScriptsAvailable):
		return "no_scripts"
	case errors.Is(err, recording.ErrNoAudio):
		return "no_audio"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "scoring_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, scoring.ErrScoringService):
		return "scoring_failed"
	case errors.Is(err, app.ErrTooManySessions):
		return "capacity"
	case errors.Is(err, app.ErrRankingDisabled):
		return "ranking_disabled"
	case errors.Is(err, ranking.ErrInvalidSubmission):
		return "invalid_submission"
	}
	return "internal"
}

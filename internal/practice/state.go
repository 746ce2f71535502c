package practice

import (
	"errors"
	"slices"

	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/pkg/script"
)

// errNoRoundLeft is returned by Record once every script has been consumed.
var errNoRoundLeft = errors.New("practice: no round left to record")

// SessionState tracks a session's progress. Scripts holds the scripts not
// yet scored, with the current round's script first; Scores holds one raw
// score per finished round in play order. The two always add up to
// [score.Rounds] entries.
type SessionState struct {
	Scripts []script.Script
	Scores  []float64
}

// Round returns the zero-based index of the round currently being played,
// which equals the number of rounds already scored.
func (s *SessionState) Round() int { return len(s.Scores) }

// Current returns the script of the round being played.
func (s *SessionState) Current() (script.Script, bool) {
	if len(s.Scripts) == 0 {
		return script.Script{}, false
	}
	return s.Scripts[0], true
}

// Record stores raw as the current round's score and advances to the next
// script.
func (s *SessionState) Record(raw float64) error {
	if len(s.Scripts) == 0 {
		return errNoRoundLeft
	}
	s.Scripts = s.Scripts[1:]
	s.Scores = append(s.Scores, raw)
	return nil
}

// Complete reports whether every round has been scored.
func (s *SessionState) Complete() bool {
	return len(s.Scripts) == 0 && len(s.Scores) == score.Rounds
}

// clone returns a deep copy safe to hand to other goroutines.
func (s *SessionState) clone() SessionState {
	return SessionState{Scripts: slices.Clone(s.Scripts), Scores: slices.Clone(s.Scores)}
}

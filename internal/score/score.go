// Package score converts raw pronunciation-similarity values returned by a
// scoring backend into the banded 0–100 display scale and reduces a finished
// session into its aggregate result.
//
// Everything in this package is pure and safe for concurrent use.
package score

import "math"

// Rounds is the number of rounds in a complete practice session.
const Rounds = 6

// band maps a half-open raw interval (lo, hi] to a display score.
type band struct {
	lo, hi  float64
	display int
}

// bands lists the interior intervals checked after the two open-ended
// guards in [Normalize]. Order matters: the first matching entry wins.
var bands = []band{
	{lo: 1.2, hi: 1.22, display: 65},
	{lo: 1.22, hi: 1.24, display: 67},
	{lo: 1.24, hi: 1.27, display: 70},
	{lo: 1.27, hi: 1.3, display: 73},
	{lo: 1.3, hi: 1.33, display: 75},
	{lo: 1.33, hi: 1.36, display: 77},
	{lo: 1.36, hi: 1.39, display: 80},
	{lo: 1.39, hi: 1.41, display: 83},
	{lo: 1.41, hi: 1.43, display: 85},
	{lo: 1.43, hi: 1.45, display: 87},
	{lo: 1.45, hi: 1.55, display: 90},
	{lo: 1.55, hi: 1.95, display: 93},
	{lo: 1.95, hi: 2.3, display: 95},
	{lo: 2.3, hi: 2.5, display: 97},
}

// DisplayValues is the complete set of values [Normalize] can return.
var DisplayValues = []int{0, 50, 60, 65, 67, 70, 73, 75, 77, 80, 83, 85, 87, 90, 93, 95, 97, 100}

// Normalize maps a raw similarity score to its display band.
//
// Values above 2.5 map to 100 and values below 1.0 map to 50; [1.0, 1.2]
// maps to 60 and the remaining intervals are upper-inclusive. Inputs that
// match no band (NaN) return 0, which callers should treat as a data error.
func Normalize(raw float64) int {
	switch {
	case raw > 2.5:
		return 100
	case raw < 1.0:
		return 50
	case raw >= 1.0 && raw <= 1.2:
		return 60
	}
	for _, b := range bands {
		if raw > b.lo && raw <= b.hi {
			return b.display
		}
	}
	return 0
}

// Tier is a feedback bracket on the display scale.
type Tier int

const (
	TierLowest Tier = iota
	TierLow
	TierNeedsImprovement
	TierFair
	TierGood
	TierHigh
	TierHighest
)

// TierFor returns the tier whose band holds display. The top band is
// [95, 100]; anything outside the display scale, NaN included, lands in
// [TierLowest].
func TierFor(display float64) Tier {
	switch {
	case display > 100:
		return TierLowest
	case display >= 95:
		return TierHighest
	case display >= 90:
		return TierHigh
	case display >= 85:
		return TierGood
	case display >= 80:
		return TierFair
	case display >= 75:
		return TierNeedsImprovement
	case display >= 70:
		return TierLow
	default:
		return TierLowest
	}
}

// Label returns the stable machine-facing name of the tier.
func (t Tier) Label() string {
	switch t {
	case TierHighest:
		return "highest tier"
	case TierHigh:
		return "high tier"
	case TierGood:
		return "good tier"
	case TierFair:
		return "fair tier"
	case TierNeedsImprovement:
		return "needs-improvement tier"
	case TierLow:
		return "low tier"
	default:
		return "lowest tier"
	}
}

// Message returns the remark shown to the learner on the result screen.
func (t Tier) Message() string {
	switch t {
	case TierHighest:
		return "Are you a news anchor?"
	case TierHigh:
		return "King Sejong would be delighted!"
	case TierGood:
		return "You've clearly studied your Korean!"
	case TierFair:
		return "Your pronunciation isn't bad at all!"
	case TierNeedsImprovement:
		return "Shall we study Hangul a little more?"
	case TierLow:
		return "Let's learn Hangul step by step!"
	default:
		return "Let's take Hangul one careful step at a time!"
	}
}

// String implements fmt.Stringer.
func (t Tier) String() string { return t.Label() }

// Comment returns the tier label for a display-scale score.
func Comment(display float64) string {
	return TierFor(display).Label()
}

// roundTo1 rounds half away from zero to one decimal place.
func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}

package score

import (
	"errors"
	"fmt"
)

// ErrIncompleteSession is returned by [Aggregate] when it is given anything
// other than exactly [Rounds] scores.
var ErrIncompleteSession = errors.New("score: incomplete session")

// AggregateResult is the final outcome of a completed session. It is
// computed once and never mutated.
type AggregateResult struct {
	// PerRound holds the display score of each round in play order.
	PerRound []int `json:"per_round"`

	// Average is the mean of PerRound rounded to one decimal place.
	Average float64 `json:"average"`

	// Comment is the tier label for Average.
	Comment string `json:"comment"`

	// Tier is the feedback bracket Comment was derived from.
	Tier Tier `json:"-"`

	// Message is the learner-facing remark for Tier.
	Message string `json:"message"`
}

// Aggregate reduces the raw scores of a finished session. Each raw score is
// normalised independently; the average is taken over the display values.
func Aggregate(raw []float64) (AggregateResult, error) {
	if len(raw) != Rounds {
		return AggregateResult{}, fmt.Errorf("%w: got %d scores, want %d", ErrIncompleteSession, len(raw), Rounds)
	}

	perRound := make([]int, len(raw))
	sum := 0
	for i, r := range raw {
		perRound[i] = Normalize(r)
		sum += perRound[i]
	}

	avg := roundTo1(float64(sum) / float64(len(perRound)))
	tier := TierFor(avg)
	return AggregateResult{
		PerRound: perRound,
		Average:  avg,
		Comment:  tier.Label(),
		Tier:     tier,
		Message:  tier.Message(),
	}, nil
}

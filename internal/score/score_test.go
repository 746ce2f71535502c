package score

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  float64
		want int
	}{
		{2.6, 100},
		{0.5, 50},
		{1.2, 60},
		{1.0, 60},
		{1.21, 65},
		{1.22, 65},
		{1.23, 67},
		{1.25, 70},
		{1.28, 73},
		{1.3, 73},
		{1.31, 75},
		{1.35, 77},
		{1.38, 80},
		{1.4, 83},
		{1.42, 85},
		{1.44, 87},
		{1.5, 90},
		{1.9, 93},
		{2.0, 95},
		{2.3, 95},
		{2.31, 97},
		{2.5, 97},
		{math.Inf(1), 100},
		{math.Inf(-1), 50},
		{-3, 50},
	}

	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestNormalize_NaNFallsBackToZero(t *testing.T) {
	t.Parallel()

	if got := Normalize(math.NaN()); got != 0 {
		t.Errorf("Normalize(NaN) = %d, want 0", got)
	}
}

func TestNormalize_AlwaysReturnsBandValue(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 10_000 {
		raw := rng.Float64()*4 - 0.5
		got := Normalize(raw)
		if !slices.Contains(DisplayValues, got) {
			t.Fatalf("Normalize(%v) = %d, not a band value", raw, got)
		}
		if got == 0 {
			t.Fatalf("Normalize(%v) hit the fallback for a finite input", raw)
		}
	}
}

func TestNormalize_Monotonic(t *testing.T) {
	t.Parallel()

	prev := Normalize(0)
	for raw := 0.0; raw <= 3.0; raw += 0.001 {
		got := Normalize(raw)
		if got < prev {
			t.Fatalf("Normalize(%v) = %d dropped below previous %d", raw, got, prev)
		}
		prev = got
	}
}

func TestComment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		display float64
		want    string
	}{
		{math.Inf(1), "lowest tier"},
		{150, "lowest tier"},
		{100.5, "lowest tier"},
		{100, "highest tier"},
		{95, "highest tier"},
		{94.9, "high tier"},
		{90, "high tier"},
		{89.9, "good tier"},
		{85, "good tier"},
		{84.5, "fair tier"},
		{80, "fair tier"},
		{79.9, "needs-improvement tier"},
		{75, "needs-improvement tier"},
		{74.9, "low tier"},
		{70, "low tier"},
		{69.9, "lowest tier"},
		{0, "lowest tier"},
		{math.NaN(), "lowest tier"},
	}

	for _, tt := range tests {
		if got := Comment(tt.display); got != tt.want {
			t.Errorf("Comment(%v) = %q, want %q", tt.display, got, tt.want)
		}
	}
}

func TestTier_Message(t *testing.T) {
	t.Parallel()

	seen := make(map[string]Tier)
	for tier := TierLowest; tier <= TierHighest; tier++ {
		msg := tier.Message()
		if msg == "" {
			t.Errorf("Tier(%d).Message() is empty", tier)
		}
		if prev, ok := seen[msg]; ok {
			t.Errorf("Tier(%d) and Tier(%d) share message %q", tier, prev, msg)
		}
		seen[msg] = tier
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	t.Run("all top band", func(t *testing.T) {
		t.Parallel()
		res, err := Aggregate([]float64{2.6, 2.6, 2.6, 2.6, 2.6, 2.6})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []int{100, 100, 100, 100, 100, 100}; !slices.Equal(res.PerRound, want) {
			t.Errorf("PerRound = %v, want %v", res.PerRound, want)
		}
		if res.Average != 100.0 {
			t.Errorf("Average = %v, want 100.0", res.Average)
		}
		if res.Comment != "highest tier" {
			t.Errorf("Comment = %q, want %q", res.Comment, "highest tier")
		}
	})

	t.Run("mixed rounds to one decimal", func(t *testing.T) {
		t.Parallel()
		// 100 + 50 + 60 + 65 + 97 + 95 = 467, 467/6 = 77.8333...
		res, err := Aggregate([]float64{2.6, 0.5, 1.2, 1.21, 2.31, 2.3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []int{100, 50, 60, 65, 97, 95}; !slices.Equal(res.PerRound, want) {
			t.Errorf("PerRound = %v, want %v", res.PerRound, want)
		}
		if res.Average != 77.8 {
			t.Errorf("Average = %v, want 77.8", res.Average)
		}
		if res.Comment != "needs-improvement tier" {
			t.Errorf("Comment = %q, want %q", res.Comment, "needs-improvement tier")
		}
		if res.Tier != TierNeedsImprovement {
			t.Errorf("Tier = %v, want %v", res.Tier, TierNeedsImprovement)
		}
	})

	t.Run("sentinel raw scores", func(t *testing.T) {
		t.Parallel()
		res, err := Aggregate([]float64{1, 1, 1, 1, 1, 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Average != 60 {
			t.Errorf("Average = %v, want 60", res.Average)
		}
		if res.Comment != "lowest tier" {
			t.Errorf("Comment = %q, want %q", res.Comment, "lowest tier")
		}
	})
}

func TestAggregate_IncompleteSession(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 5, 7} {
		_, err := Aggregate(make([]float64, n))
		if !errors.Is(err, ErrIncompleteSession) {
			t.Errorf("Aggregate(len=%d) error = %v, want ErrIncompleteSession", n, err)
		}
	}
}

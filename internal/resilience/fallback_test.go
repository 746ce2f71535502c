package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/recita/pkg/script"
	"github.com/MrWong99/recita/pkg/script/mock"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(context.Background(), func(context.Context, string) error {
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want last error wrapped", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenEntry(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("secondary", "secondary")

	calls := map[string]int{}
	for i := 0; i < 3; i++ {
		_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
			calls[v]++
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	if calls["primary"] != 2 {
		t.Errorf("primary calls = %d, want 2 (breaker should open)", calls["primary"])
	}
	if calls["secondary"] != 3 {
		t.Errorf("secondary calls = %d, want 3", calls["secondary"])
	}
}

func TestFallbackGroup_StopsOnDoneContext(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := fg.Execute(ctx, func(ctx context.Context, v string) error {
		calls++
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
	if got := fg.Names(); len(got) != 2 || got[0] != "ten" || got[1] != "twenty" {
		t.Errorf("Names() = %v", got)
	}
}

func TestScriptFallback(t *testing.T) {
	local := []script.Script{{Content: "간장 공장 공장장", Level: "1"}}

	t.Run("primary error falls back", func(t *testing.T) {
		primary := &mock.Repository{ListErr: errors.New("connection refused")}
		secondary := &mock.Repository{Scripts: local}
		f := NewScriptFallback(primary, "http", FallbackConfig{})
		f.AddFallback("file", secondary)

		got, err := f.List(context.Background())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].Content != local[0].Content {
			t.Errorf("List = %v", got)
		}
		if primary.Calls() != 1 || secondary.Calls() != 1 {
			t.Errorf("calls = %d/%d, want 1/1", primary.Calls(), secondary.Calls())
		}
	})

	t.Run("empty primary falls back", func(t *testing.T) {
		f := NewScriptFallback(&mock.Repository{}, "postgres", FallbackConfig{})
		f.AddFallback("file", &mock.Repository{Scripts: local})
		got, err := f.List(context.Background())
		if err != nil || len(got) != 1 {
			t.Fatalf("List = %v, %v", got, err)
		}
		if s := f.Sources(); len(s) != 2 || s[0] != "postgres" {
			t.Errorf("Sources() = %v", s)
		}
	})

	t.Run("all empty", func(t *testing.T) {
		f := NewScriptFallback(&mock.Repository{}, "file", FallbackConfig{})
		_, err := f.List(context.Background())
		if !errors.Is(err, script.ErrNoScriptsAvailable) {
			t.Fatalf("err = %v, want ErrNoScriptsAvailable", err)
		}
	})
}

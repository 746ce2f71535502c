package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/recita/internal/resilience"
	"github.com/MrWong99/recita/pkg/script"
)

// ScriptsChecker passes when repo can supply at least min valid scripts,
// which is what a session needs to start.
func ScriptsChecker(repo script.Repository, min int) Checker {
	return Checker{
		Name: "scripts",
		Check: func(ctx context.Context) error {
			all, err := repo.List(ctx)
			if err != nil {
				return err
			}
			n := 0
			for _, s := range all {
				if s.Validate() == nil {
					n++
				}
			}
			if n < min {
				return fmt.Errorf("%d usable scripts, need %d", n, min)
			}
			return nil
		},
	}
}

// BreakerChecker degrades readiness while cb is open. Sessions still record
// with the breaker open, so the check is optional. A half-open breaker is
// reported as ready so trial calls can reach the backend.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name:     "breaker:" + cb.Name(),
		Optional: true,
		Check: func(context.Context) error {
			if cb.State() == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
			return nil
		},
	}
}

// CapacityChecker fails when active() has reached limit(). A limit of zero
// means unlimited. Both are read on every check so a reloaded cap applies.
func CapacityChecker(active, limit func() int) Checker {
	return Checker{
		Name: "capacity",
		Check: func(context.Context) error {
			max := limit()
			if max <= 0 {
				return nil
			}
			if n := active(); n >= max {
				return fmt.Errorf("%d of %d sessions in use", n, max)
			}
			return nil
		},
	}
}

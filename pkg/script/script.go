// Package script defines the practice script model, the repository contract
// that backends implement, and the sampling used to pick a session's rounds.
//
// Backends live in sub-packages: [github.com/MrWong99/recita/pkg/script/httpstore]
// fetches from the legacy REST service, while postgres and sqlite read a
// local scripts table. [MemStore] and the YAML loader in this package cover
// file-based deployments and tests.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ErrNoScriptsAvailable is returned when the repository cannot supply enough
// distinct scripts to run a session.
var ErrNoScriptsAvailable = errors.New("script: no scripts available")

// Level is the difficulty level of a script. Level "1" scripts are short and
// get a shorter recording window.
type Level string

// LevelShort is the level that selects the short recording window.
const LevelShort Level = "1"

// UnmarshalJSON accepts both "1" and 1, since the legacy script service
// stores levels as numbers.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Level(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("script: level must be a string or number: %w", err)
	}
	*l = Level(n.String())
	return nil
}

// Script is a single sentence the learner reads aloud. Scripts are immutable
// once fetched.
type Script struct {
	Content string `json:"content" yaml:"content"`
	Level   Level  `json:"level"   yaml:"level"`
}

// Validate reports whether s can be used in a round.
func (s Script) Validate() error {
	if strings.TrimSpace(s.Content) == "" {
		return errors.New("script: content is required")
	}
	return nil
}

// Repository supplies the pool of scripts sessions sample from.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// List returns every available script. Order is not significant.
	List(ctx context.Context) ([]Script, error)
}

// Sample picks n scripts uniformly at random without replacement from pool.
// The pool is not modified. A nil rng uses the package-level source.
//
// Returns [ErrNoScriptsAvailable] if pool holds fewer than n scripts.
func Sample(pool []Script, n int, rng *rand.Rand) ([]Script, error) {
	if len(pool) == 0 || len(pool) < n {
		return nil, fmt.Errorf("%w: need %d, pool has %d", ErrNoScriptsAvailable, n, len(pool))
	}
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	// Partial Fisher-Yates over a copy.
	cp := make([]Script, len(pool))
	copy(cp, pool)
	for i := range n {
		j := i + intN(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:n:n], nil
}

// Fetch lists repo and samples n scripts from it. Scripts that fail
// [Script.Validate] are skipped before sampling.
func Fetch(ctx context.Context, repo Repository, n int, rng *rand.Rand) ([]Script, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("script: list: %w", err)
	}
	pool := all[:0:0]
	for _, s := range all {
		if s.Validate() == nil {
			pool = append(pool, s)
		}
	}
	return Sample(pool, n, rng)
}

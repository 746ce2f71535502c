// Package mock provides a test double for [script.Repository].
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/recita/pkg/script"
)

// Repository is a mock implementation of script.Repository.
type Repository struct {
	mu sync.Mutex

	// Scripts is returned by List.
	Scripts []script.Script

	// ListErr, if non-nil, is returned as the error from List.
	ListErr error

	// ListCalls counts calls to List.
	ListCalls int
}

// List records the call and returns a copy of Scripts, ListErr.
func (r *Repository) List(_ context.Context) ([]script.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls++
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	return slices.Clone(r.Scripts), nil
}

// Calls returns the number of List calls. Thread-safe.
func (r *Repository) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ListCalls
}

var _ script.Repository = (*Repository)(nil)

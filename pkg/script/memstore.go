package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Compile-time assertion that MemStore satisfies the Repository interface.
var _ Repository = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Repository]. The zero value is ready
// to use.
type MemStore struct {
	mu      sync.RWMutex
	scripts []Script
}

// NewMemStore returns a [MemStore] seeded with scripts.
func NewMemStore(scripts ...Script) *MemStore {
	return &MemStore{scripts: slices.Clone(scripts)}
}

// Add appends scripts to the store after validating each one.
func (s *MemStore) Add(scripts ...Script) error {
	for i, sc := range scripts {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, scripts...)
	return nil
}

// List implements [Repository.List]. The returned slice is a copy.
func (s *MemStore) List(_ context.Context) ([]Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scripts), nil
}

// Len returns the number of stored scripts.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}

// File is the top-level structure of a script YAML file.
//
// Example:
//
//	scripts:
//	  - content: "간장 공장 공장장은 강 공장장이다"
//	    level: "2"
//	  - content: "안녕하세요"
//	    level: "1"
type File struct {
	Scripts []Script `yaml:"scripts"`
}

// LoadFile reads a script YAML file from disk into a new [MemStore].
func LoadFile(path string) (*MemStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	store, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return store, nil
}

// LoadFromReader decodes script YAML from r into a new [MemStore].
func LoadFromReader(r io.Reader) (*MemStore, error) {
	var sf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("script: decode yaml: %w", err)
	}
	store := &MemStore{}
	if err := store.Add(sf.Scripts...); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return store, nil
}

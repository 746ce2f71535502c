package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/recita/pkg/provider/scoring"
	"github.com/MrWong99/recita/pkg/provider/stt"
	"github.com/MrWong99/recita/pkg/script"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ScriptStore is an opened script source. Close releases connections or
// files held by the store and may be nil.
type ScriptStore struct {
	Repository script.Repository
	Close      func() error
}

// ScriptFactory opens the script source described by cfg. Fallbacks are
// handled by the caller.
type ScriptFactory func(ctx context.Context, cfg ScriptsConfig) (ScriptStore, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	scoring map[string]func(ProviderEntry) (scoring.Provider, error)
	stt     map[string]func(ProviderEntry) (stt.Transcriber, error)
	scripts map[ScriptSource]ScriptFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		scoring: make(map[string]func(ProviderEntry) (scoring.Provider, error)),
		stt:     make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		scripts: make(map[ScriptSource]ScriptFactory),
	}
}

// RegisterScoring registers a scoring provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterScoring(name string, factory func(ProviderEntry) (scoring.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoring[name] = factory
}

// RegisterTranscriber registers a speech-to-text factory under name.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterScripts registers the factory for a script source.
func (r *Registry) RegisterScripts(source ScriptSource, factory ScriptFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[source] = factory
}

// CreateScoring instantiates a scoring provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateScoring(entry ProviderEntry) (scoring.Provider, error) {
	r.mu.RLock()
	factory, ok := r.scoring[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scoring/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranscriber instantiates a speech-to-text backend using the factory
// registered under entry.Name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// OpenScripts opens the script source cfg describes.
func (r *Registry) OpenScripts(ctx context.Context, cfg ScriptsConfig) (ScriptStore, error) {
	r.mu.RLock()
	factory, ok := r.scripts[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return ScriptStore{}, fmt.Errorf("%w: scripts/%q", ErrProviderNotRegistered, cfg.Source)
	}
	return factory(ctx, cfg)
}

// Names returns the registered names for kind ("scoring", "transcription" or
// "scripts"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	switch kind {
	case "scoring":
		for n := range r.scoring {
			out = append(out, n)
		}
	case "transcription":
		for n := range r.stt {
			out = append(out, n)
		}
	case "scripts":
		for n := range r.scripts {
			out = append(out, string(n))
		}
	}
	sort.Strings(out)
	return out
}

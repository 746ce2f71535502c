package resilience

import (
	"context"

	"github.com/MrWong99/recita/pkg/script"
)

// ScriptFallback implements [script.Repository] with failover across several
// script sources, e.g. the remote script service backed by a local YAML file.
// An empty list counts as a failure so the next source is consulted.
type ScriptFallback struct {
	group *FallbackGroup[script.Repository]
}

var _ script.Repository = (*ScriptFallback)(nil)

// NewScriptFallback creates a [ScriptFallback] with primary as the preferred source.
func NewScriptFallback(primary script.Repository, primaryName string, cfg FallbackConfig) *ScriptFallback {
	return &ScriptFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional script source.
func (f *ScriptFallback) AddFallback(name string, repo script.Repository) {
	f.group.AddFallback(name, repo)
}

// Sources returns the source names in the order they are consulted.
func (f *ScriptFallback) Sources() []string { return f.group.Names() }

// List returns the scripts of the first source that yields a non-empty list.
func (f *ScriptFallback) List(ctx context.Context) ([]script.Script, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, r script.Repository) ([]script.Script, error) {
		list, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, script.ErrNoScriptsAvailable
		}
		return list, nil
	})
}

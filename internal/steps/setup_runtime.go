package steps

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docgate/internal/cache"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/runtime"
)

// DefaultCachePath is the dependency cache directory, relative to the
// checkout, when a setup-runtime step does not name one.
const DefaultCachePath = ".docgate/pip-cache"

func (e *Executor) setupRuntime(ctx context.Context, st *State, step config.StepConfig, out *tail) outcome {
	search := e.runtimeSearch
	if search == "" {
		search = st.searchPath()
	}
	rt, err := runtime.Locate(ctx, st.Check.Environment.Runtime, search)
	if err != nil {
		return outcome{exitCode: ExitFailure, err: err}
	}
	st.Runtime = rt
	st.PrependPath(rt.Dir())
	out.add(rt.Name + " " + rt.Reported + " at " + rt.Path)

	if step.Cache == nil || step.Cache.Manifest == "" {
		return outcome{}
	}

	src := st.Workspace.SourceDir()
	manifest := filepath.Join(src, filepath.FromSlash(step.Cache.Manifest))
	key, err := cache.Key(rt.Name, rt.Pinned, manifest)
	if err != nil {
		// The cache is optional; a missing manifest just disables it.
		slog.Warn("Dependency cache disabled", logfields.RunID(st.RunID), logfields.Error(err))
		out.add("cache disabled: " + err.Error())
		return outcome{}
	}

	rel := step.Cache.Path
	if rel == "" {
		rel = DefaultCachePath
	}
	dir := filepath.Join(src, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		out.add("cache disabled: " + err.Error())
		return outcome{}
	}
	st.Export("PIP_CACHE_DIR", dir)
	st.Export("DOCGATE_CACHE_DIR", dir)
	st.Export("DOCGATE_CACHE_KEY", key)

	if e.cache.Restore(ctx, key, dir) {
		out.add("cache hit: " + key)
	} else {
		out.add("cache miss: " + key)
	}
	st.saves = append(st.saves, cacheSave{key: key, dir: dir})
	return outcome{}
}

package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
)

// Manager restores and saves dependency caches. The cache is optional:
// backend errors are logged and reported as a miss or a skipped save, they
// never fail a run.
type Manager struct {
	store    Store
	recorder metrics.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager wraps store.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		store = NoneStore{}
	}
	m := &Manager{store: store, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.CacheConfig, opts ...Option) (*Manager, error) {
	switch cfg.Backend {
	case config.CacheBackendNone:
		return NewManager(NoneStore{}, opts...), nil
	case config.CacheBackendMinIO:
		s, err := NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return NewManager(s, opts...), nil
	case config.CacheBackendLocal, "":
		s, err := NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return NewManager(s, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// Restore unpacks the archive for key into dest and reports a hit.
func (m *Manager) Restore(ctx context.Context, key, dest string) bool {
	rc, ok, err := m.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache restore failed; continuing without cache", logfields.CacheKey(key), logfields.Error(err))
		m.recorder.IncCacheResult("restore", "error")
		return false
	}
	if !ok {
		slog.Info("Cache miss", logfields.CacheKey(key))
		m.recorder.IncCacheResult("restore", "miss")
		return false
	}
	defer func() { _ = rc.Close() }()

	if err := extractArchive(rc, dest); err != nil {
		slog.Warn("Cache archive unreadable; continuing without cache", logfields.CacheKey(key), logfields.Error(err))
		_ = os.RemoveAll(dest)
		_ = os.MkdirAll(dest, 0o750)
		m.recorder.IncCacheResult("restore", "error")
		return false
	}
	slog.Info("Cache restored", logfields.CacheKey(key), logfields.Path(dest))
	m.recorder.IncCacheResult("restore", "hit")
	return true
}

// Save archives src under key unless the key already exists. It reports
// whether a new archive was stored.
func (m *Manager) Save(ctx context.Context, key, src string) bool {
	if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
		slog.Debug("Nothing to cache", logfields.CacheKey(key), logfields.Path(src))
		return false
	}
	stored, err := m.store.Put(ctx, key, func(w io.Writer) error {
		return writeArchive(w, src)
	})
	switch {
	case err != nil:
		slog.Warn("Cache save failed", logfields.CacheKey(key), logfields.Error(err))
		m.recorder.IncCacheResult("save", "error")
	case !stored:
		slog.Debug("Cache entry already exists", logfields.CacheKey(key))
		m.recorder.IncCacheResult("save", "exists")
	default:
		slog.Info("Cache saved", logfields.CacheKey(key))
		m.recorder.IncCacheResult("save", "saved")
	}
	return stored
}

// Prune removes entries last updated before now-maxAge and returns how many
// were deleted.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, e.Key); err != nil {
			slog.Warn("Failed to prune cache entry", logfields.CacheKey(e.Key), logfields.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Pruned dependency cache", slog.Int("removed", removed), slog.Int("remaining", len(entries)-removed))
	}
	return removed, nil
}

package cache

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func TestKeyChangesOnlyWithManifestContent(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "requirements-docs.txt")
	require.NoError(t, os.WriteFile(manifest, []byte("sphinx==7.2\n"), 0o600))

	k1, err := Key("python", "3.12", manifest)
	require.NoError(t, err)
	k2, err := Key("python", "3.12", manifest)
	require.NoError(t, err)
	require.Equal(t, k1, k2, "same content must yield the same key")

	require.NoError(t, os.WriteFile(manifest, []byte("sphinx==7.3\n"), 0o600))
	k3, err := Key("python", "3.12", manifest)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3, "changed content must change the key")

	k4, err := Key("python", "3.11", manifest)
	require.NoError(t, err)
	require.NotEqual(t, k3, k4, "runtime version is part of the key")

	_, err = Key("python", "3.12", filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}

func TestKeyFor(t *testing.T) {
	require.Equal(t, "linux-python-3.12-abc", KeyFor("linux", "Python", "3.12", "abc"))
	require.Equal(t, "linux-my_rt-1_2-abc", KeyFor("linux", "my rt", "1/2", "abc"))
}

func TestArchiveRoundTripPreservesTree(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"wheels/sphinx.whl":  "wheel-bytes",
		"http/v2/index.json": "{}",
	})
	require.NoError(t, os.Symlink("wheels/sphinx.whl", filepath.Join(src, "latest")))

	var buf bytes.Buffer
	require.NoError(t, writeArchive(&buf, src))

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, extractArchive(&buf, dest))

	data, err := os.ReadFile(filepath.Join(dest, "wheels", "sphinx.whl"))
	require.NoError(t, err)
	require.Equal(t, "wheel-bytes", string(data))
	link, err := os.Readlink(filepath.Join(dest, "latest"))
	require.NoError(t, err)
	require.Equal(t, "wheels/sphinx.whl", link)
}

func TestLocalStoreIsImmutable(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := t.Context()

	stored, err := store.Put(ctx, "k", func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	})
	require.NoError(t, err)
	require.True(t, stored)

	called := false
	stored, err = store.Put(ctx, "k", func(w io.Writer) error {
		called = true
		_, err := w.Write([]byte("second"))
		return err
	})
	require.NoError(t, err)
	require.False(t, stored)
	require.False(t, called, "existing keys must not be rewritten")

	rc, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "first", string(data))

	_, ok, err = store.Get(ctx, "absent")
	require.NoError(t, err)
	require.False(t, ok)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "k", entries[0].Key)
}

func TestManagerRestoreAndSave(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)
	ctx := t.Context()

	dest := filepath.Join(t.TempDir(), "pip-cache")
	require.False(t, m.Restore(ctx, "key-1", dest), "first restore is a miss")

	writeTree(t, dest, map[string]string{"wheels/a.whl": "a"})
	require.True(t, m.Save(ctx, "key-1", dest))
	require.False(t, m.Save(ctx, "key-1", dest), "second save is skipped")

	other := filepath.Join(t.TempDir(), "pip-cache")
	require.True(t, m.Restore(ctx, "key-1", other))
	data, err := os.ReadFile(filepath.Join(other, "wheels", "a.whl"))
	require.NoError(t, err)
	require.Equal(t, "a", string(data))

	require.False(t, m.Save(ctx, "key-2", filepath.Join(t.TempDir(), "missing")))
}

type failingStore struct{ NoneStore }

func (failingStore) Get(context.Context, string) (io.ReadCloser, bool, error) {
	return nil, false, stderrors.New("backend down")
}

func (failingStore) Put(context.Context, string, func(io.Writer) error) (bool, error) {
	return false, stderrors.New("backend down")
}

func TestManagerBackendErrorsAreNotFatal(t *testing.T) {
	m := NewManager(failingStore{})
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a": "a"})

	require.False(t, m.Restore(t.Context(), "k", dir))
	require.False(t, m.Save(t.Context(), "k", dir))
}

func TestManagerRestoreCorruptArchiveIsMiss(t *testing.T) {
	cacheDir := t.TempDir()
	store, err := NewLocalStore(cacheDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "bad"+archiveExt), []byte("not gzip"), 0o600))

	dest := filepath.Join(t.TempDir(), "d")
	require.False(t, NewManager(store).Restore(t.Context(), "bad", dest))
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestManagerPrune(t *testing.T) {
	cacheDir := t.TempDir()
	store, err := NewLocalStore(cacheDir)
	require.NoError(t, err)
	m := NewManager(store)
	ctx := t.Context()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a"})
	for _, k := range []string{"old", "new"} {
		_, err := store.Put(ctx, k, func(w io.Writer) error { return writeArchive(w, src) })
		require.NoError(t, err)
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(cacheDir, "old"+archiveExt), past, past))

	removed, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].Key)
}

func TestOpenSelectsBackend(t *testing.T) {
	m, err := Open(t.Context(), config.CacheConfig{Backend: config.CacheBackendNone})
	require.NoError(t, err)
	require.IsType(t, NoneStore{}, m.store)

	m, err = Open(t.Context(), config.CacheConfig{Backend: config.CacheBackendLocal, Dir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &LocalStore{}, m.store)

	_, err = Open(t.Context(), config.CacheConfig{Backend: config.CacheBackendMinIO})
	require.Error(t, err)
}

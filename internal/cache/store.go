package cache

import (
	"context"
	"io"
	"time"
)

// Entry describes one stored cache archive.
type Entry struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// Store persists cache archives. Implementations never overwrite an
// existing key.
type Store interface {
	// Get returns a reader for key, or ok=false on a miss.
	Get(ctx context.Context, key string) (rc io.ReadCloser, ok bool, err error)
	// Put stores the archive produced by write under key. It returns
	// stored=false without calling write when key already exists.
	Put(ctx context.Context, key string, write func(io.Writer) error) (stored bool, err error)
	// List returns all entries.
	List(ctx context.Context) ([]Entry, error)
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NoneStore is the disabled backend: every lookup misses and saves are dropped.
type NoneStore struct{}

func (NoneStore) Get(context.Context, string) (io.ReadCloser, bool, error) { return nil, false, nil }
func (NoneStore) Put(context.Context, string, func(io.Writer) error) (bool, error) {
	return false, nil
}
func (NoneStore) List(context.Context) ([]Entry, error) { return nil, nil }
func (NoneStore) Delete(context.Context, string) error  { return nil }

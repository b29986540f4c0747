// Package concurrency implements the per-group supersede guard for check runs.
//
// Every run acquires a lease on its group key. Runs sharing a key never
// execute at the same time: a lease waits for every earlier lease of the key
// to be released before it may start. A new acquisition supersedes earlier
// leases that have not started yet, and with cancel-in-progress also the one
// currently executing. Superseded leases have their cancel function invoked
// and never start.
package concurrency

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrSuperseded is returned by Wait when a newer run took over the key.
var ErrSuperseded = errors.New("run superseded by a newer run in the same concurrency group")

// GroupKey expands ${check}, ${repo} and ${ref} in template. An empty repo
// drops the placeholder together with one adjacent dash, so local runs key
// on check and ref alone.
func GroupKey(template, check, repo, ref string) string {
	pairs := []string{"${check}", check, "${ref}", ref}
	if repo == "" {
		pairs = append(pairs, "-${repo}", "", "${repo}-", "", "${repo}", "")
	} else {
		pairs = append(pairs, "${repo}", repo)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Lease is a run's claim on a concurrency group.
type Lease struct {
	Key   string
	RunID string

	cancel     context.CancelFunc
	waitFor    []chan struct{}
	done       chan struct{}
	started    bool
	superseded bool
	released   bool
}

// Guard tracks leases per group key.
type Guard struct {
	mu     sync.Mutex
	active map[string][]*Lease
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string][]*Lease)}
}

// Acquire registers runID as the newest holder of key and returns the IDs of
// the runs it supersedes. cancel is invoked if this lease is later superseded.
func (g *Guard) Acquire(key, runID string, cancel context.CancelFunc, cancelInProgress bool) (*Lease, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := &Lease{Key: key, RunID: runID, cancel: cancel, done: make(chan struct{})}
	var superseded []string
	for _, p := range g.active[key] {
		l.waitFor = append(l.waitFor, p.done)
		if p.superseded || (p.started && !cancelInProgress) {
			continue
		}
		p.superseded = true
		if p.cancel != nil {
			p.cancel()
		}
		superseded = append(superseded, p.RunID)
	}
	g.active[key] = append(g.active[key], l)
	return l, superseded
}

// Wait blocks until every earlier lease of the key is released, then marks
// l as started. It returns ErrSuperseded if l lost the key, or the context
// error if ctx ends first.
func (g *Guard) Wait(ctx context.Context, l *Lease) error {
	for _, ch := range l.waitFor {
		select {
		case <-ch:
		case <-ctx.Done():
			if !g.IsCurrent(l) {
				return ErrSuperseded
			}
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if l.superseded || l.released {
		return ErrSuperseded
	}
	l.started = true
	return nil
}

// IsCurrent reports whether l still holds its key.
func (g *Guard) IsCurrent(l *Lease) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !l.superseded && !l.released
}

// Release frees l. Releasing twice is a no-op.
func (g *Guard) Release(l *Lease) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	close(l.done)

	leases := slices.DeleteFunc(g.active[l.Key], func(x *Lease) bool { return x == l })
	if len(leases) == 0 {
		delete(g.active, l.Key)
		return
	}
	g.active[l.Key] = leases
}

// Holder returns the run ID of the newest non-superseded lease for key.
func (g *Guard) Holder(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	leases := g.active[key]
	for i := len(leases) - 1; i >= 0; i-- {
		if !leases[i].superseded {
			return leases[i].RunID, true
		}
	}
	return "", false
}

// Len returns the number of keys with unreleased leases.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Package eventstore provides event sourcing primitives for run tracking.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/steps"
)

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*check.Report // runID -> report
	history  []*check.Report          // finished runs, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*check.Report),
		history: make([]*check.Report, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
// This is typically called at startup.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*check.Report)
	p.history = make([]*check.Report, 0, p.maxSize)

	for _, event := range events {
		p.applyEventLocked(event)
	}

	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].CompletedAt.After(p.history[j].CompletedAt)
	})
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	r, exists := p.runs[runID]
	if !exists {
		r = &check.Report{RunID: runID, Status: check.StatusQueued}
		p.runs[runID] = r
	}

	switch event.Type() {
	case TypeRunQueued:
		var payload RunQueuedPayload
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			r.Check = payload.Check
			r.Forge = payload.Forge
			r.Repository = payload.Repository
			r.Number = payload.Number
			r.ChangeRef = payload.ChangeRef
			r.Group = payload.Group
			r.MatchedPaths = payload.MatchedPaths
			r.HeadSHA = payload.HeadSHA
			r.Environment.Image = payload.Image
			r.Environment.Runtime = payload.Runtime
		}

	case TypeRunStarted:
		r.Status = check.StatusRunning
		r.StartedAt = event.Timestamp()

	case TypeStepCompleted:
		var res steps.Result
		if err := json.Unmarshal(event.Payload(), &res); err == nil {
			r.Steps = append(r.Steps, res)
		}

	case TypeRunSucceeded, TypeRunFailed, TypeRunCanceled:
		var full check.Report
		if err := json.Unmarshal(event.Payload(), &full); err == nil && full.RunID == runID {
			*r = full
		} else {
			r.Status = terminalStatus(event.Type())
			r.CompletedAt = event.Timestamp()
		}
		p.addToHistoryLocked(r)
	}
}

func terminalStatus(eventType string) check.Status {
	switch eventType {
	case TypeRunSucceeded:
		return check.StatusSucceeded
	case TypeRunCanceled:
		return check.StatusCanceled
	default:
		return check.StatusFailed
	}
}

// addToHistoryLocked adds a finished run to history if not already present.
func (p *RunHistoryProjection) addToHistoryLocked(r *check.Report) {
	for _, h := range p.history {
		if h.RunID == r.RunID {
			return
		}
	}

	p.history = append([]*check.Report{r}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops finished runs that fell out of the bounded history.
// Caller must hold p.mu (write lock).
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, r := range p.runs {
		if !r.Status.Terminal() {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// History returns finished runs, newest first.
func (p *RunHistoryProjection) History() []*check.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*check.Report, len(p.history))
	for i, r := range p.history {
		cp := *r
		out[i] = &cp
	}
	return out
}

// Unfinished returns runs with no terminal event, such as runs interrupted
// by a daemon restart.
func (p *RunHistoryProjection) Unfinished() []*check.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*check.Report
	for _, r := range p.runs {
		if !r.Status.Terminal() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// Run returns the report for a specific run.
func (p *RunHistoryProjection) Run(runID string) (*check.Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.runs[runID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

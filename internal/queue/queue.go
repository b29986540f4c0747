// Package queue schedules check runs: it evaluates the trigger rule for each
// incoming event, applies the concurrency guard and executes accepted runs
// on a bounded worker pool. Runs are never retried.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/concurrency"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
	"git.home.luguber.info/inful/docgate/internal/notify"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const (
	defaultWorkers     = 2
	defaultSize        = 100
	defaultHistorySize = 50
	reportTimeout      = 30 * time.Second
)

var (
	// ErrQueueFull is returned when the queue has no free slot.
	ErrQueueFull = errors.DaemonError("run queue is full").Retryable().Build()

	// ErrQueueStopped is returned by Submit after Stop.
	ErrQueueStopped = errors.DaemonError("run queue is stopped").Build()
)

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, req check.Request) (*check.Report, error)
}

// Submission is the outcome of Submit.
type Submission struct {
	Decision   trigger.Decision `json:"decision"`
	RunID      string           `json:"run_id,omitempty"`
	Group      string           `json:"group,omitempty"`
	Superseded []string         `json:"superseded,omitempty"`
}

type job struct {
	seq     uint64
	event   trigger.Event
	request check.Request
	lease   *concurrency.Lease
	ctx     context.Context
	cancel  context.CancelFunc

	// report is guarded by Queue.mu.
	report *check.Report
}

// Queue is a bounded run queue served by a fixed worker pool.
type Queue struct {
	runner   Runner
	checkFn  func() config.CheckConfig
	guard    *concurrency.Guard
	reporter notify.Reporter
	recorder metrics.Recorder
	authFor  func(ev trigger.Event) *config.AuthConfig

	workers     int
	size        int
	historySize int

	submitMu sync.Mutex
	jobs     chan *job
	stopCh   chan struct{}
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc

	mu      sync.RWMutex
	seq     uint64
	active  map[string]*job
	history []*check.Report
	running int
	started bool
	stopped bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent runs.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithSize sets the number of runs that may wait for a worker.
func WithSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.size = n
		}
	}
}

// WithHistorySize sets how many finished runs are kept in memory.
func WithHistorySize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.historySize = n
		}
	}
}

// WithReporter sets the lifecycle reporter.
func WithReporter(r notify.Reporter) Option {
	return func(q *Queue) {
		if r != nil {
			q.reporter = r
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.recorder = r
		}
	}
}

// WithGuard shares a concurrency guard.
func WithGuard(g *concurrency.Guard) Option {
	return func(q *Queue) {
		if g != nil {
			q.guard = g
		}
	}
}

// WithAuthResolver sets how clone credentials are found for an event.
func WithAuthResolver(f func(ev trigger.Event) *config.AuthConfig) Option {
	return func(q *Queue) {
		if f != nil {
			q.authFor = f
		}
	}
}

// New creates a queue. checkFn is consulted on every Submit so a reloaded
// configuration applies to the next event.
func New(runner Runner, checkFn func() config.CheckConfig, opts ...Option) *Queue {
	q := &Queue{
		runner:      runner,
		checkFn:     checkFn,
		guard:       concurrency.NewGuard(),
		reporter:    notify.NewMulti(),
		recorder:    metrics.NoopRecorder{},
		authFor:     func(trigger.Event) *config.AuthConfig { return nil },
		workers:     defaultWorkers,
		size:        defaultSize,
		historySize: defaultHistorySize,
		stopCh:      make(chan struct{}),
		active:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan *job, q.size)
	q.baseCtx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Start launches the workers.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	slog.Info("Starting run queue", slog.Int("workers", q.workers), slog.Int("max_size", q.size))
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels queued and running runs and waits for the workers until ctx
// ends. Runs still waiting in the queue are reported canceled.
func (q *Queue) Stop(ctx context.Context) error {
	q.submitMu.Lock()
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.submitMu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()
	q.submitMu.Unlock()

	slog.Info("Stopping run queue")
	q.cancel()
	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.DaemonError("timed out waiting for runs to stop").WithCause(ctx.Err()).Build()
	}

	for {
		select {
		case j := <-q.jobs:
			q.abandon(j, "daemon stopping")
		default:
			slog.Info("Run queue stopped")
			return nil
		}
	}
}

// Submit evaluates ev against the check's trigger. A matching event becomes
// a queued run that supersedes earlier runs of its concurrency group. A
// non-matching event creates nothing and Submission.RunID stays empty.
func (q *Queue) Submit(ctx context.Context, ev trigger.Event) (Submission, error) {
	chk := q.checkFn()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	dec := trigger.NewRule(chk.Trigger).Matches(ev)
	q.recorder.IncTriggerDecision(dec.Run)
	log := slog.With(logfields.Check(chk.Name), logfields.ChangeRef(ev.ChangeRef), logfields.Event(ev.Kind))
	if !dec.Run {
		log.Info("Event skipped", slog.String("reason", dec.Reason))
		return Submission{Decision: dec}, nil
	}

	q.submitMu.Lock()
	defer q.submitMu.Unlock()

	q.mu.RLock()
	stopped := q.stopped
	q.mu.RUnlock()
	if stopped {
		return Submission{Decision: dec}, ErrQueueStopped
	}
	if len(q.jobs) >= cap(q.jobs) {
		return Submission{Decision: dec}, ErrQueueFull.WithContext("capacity", cap(q.jobs))
	}

	runID := check.NewRunID()
	group := concurrency.GroupKey(chk.Concurrency.Group, chk.Name, ev.Scope(), ev.ChangeRef)
	req := check.Request{
		RunID:        runID,
		Check:        chk,
		Event:        ev,
		GitAuth:      q.authFor(ev),
		Group:        group,
		MatchedPaths: dec.MatchedPaths,
	}
	jctx, cancel := context.WithCancel(q.baseCtx)
	j := &job{event: ev, request: req, ctx: jctx, cancel: cancel, report: check.NewReport(req)}

	// The guard and the supersede marks change together so a worker never
	// sees a canceled run without its SupersededBy.
	q.mu.Lock()
	lease, superseded := q.guard.Acquire(group, runID, cancel, chk.Concurrency.CancelsInProgress())
	j.lease = lease
	for _, id := range superseded {
		if sj, ok := q.active[id]; ok {
			sj.report.SupersededBy = runID
		}
	}
	q.seq++
	j.seq = q.seq
	q.active[runID] = j
	snap := *j.report
	q.mu.Unlock()

	for _, id := range superseded {
		q.recorder.IncSuperseded()
		log.Info("Run superseded", logfields.RunID(id), slog.String("superseded_by", runID), logfields.Group(group))
	}

	rctx, rcancel := reportContext(ctx)
	_ = q.reporter.RunQueued(rctx, &snap, ev)
	rcancel()

	q.jobs <- j
	q.recorder.SetQueueDepth(len(q.jobs))
	log.Info("Run queued",
		logfields.RunID(runID),
		logfields.Group(group),
		slog.Int("matched_paths", len(dec.MatchedPaths)),
		slog.String("reason", dec.Reason))

	return Submission{Decision: dec, RunID: runID, Group: group, Superseded: superseded}, nil
}

func (q *Queue) worker(workerID string) {
	defer q.wg.Done()
	slog.Debug("Run worker started", logfields.Worker(workerID))

	for {
		select {
		case <-q.stopCh:
			slog.Debug("Run worker stopped", logfields.Worker(workerID))
			return
		case j := <-q.jobs:
			q.recorder.SetQueueDepth(len(q.jobs))
			q.process(j, workerID)
		}
	}
}

func (q *Queue) process(j *job, workerID string) {
	defer j.cancel()
	log := slog.With(logfields.RunID(j.request.RunID), logfields.Worker(workerID), logfields.Group(j.lease.Key))

	err := j.ctx.Err()
	if err == nil {
		err = q.guard.Wait(j.ctx, j.lease)
	}
	if err != nil {
		q.mu.RLock()
		by := j.report.SupersededBy
		q.mu.RUnlock()
		reason := "canceled before start: " + err.Error()
		if by != "" {
			reason = "superseded by run " + by
		}
		log.Info("Run will not start", slog.String("reason", reason))
		q.abandon(j, reason)
		return
	}

	q.mu.Lock()
	j.report.Status = check.StatusRunning
	j.report.StartedAt = time.Now()
	q.running++
	running := q.running
	snap := *j.report
	q.mu.Unlock()
	q.recorder.SetRunningRuns(running)

	rctx, rcancel := reportContext(context.Background())
	_ = q.reporter.RunStarted(rctx, &snap, j.event)
	rcancel()

	final, _ := q.runner.Run(j.ctx, j.request)
	q.guard.Release(j.lease)
	if final == nil {
		final = &snap
		final.Cancel("runner returned no report")
	}

	q.mu.Lock()
	final.SupersededBy = j.report.SupersededBy
	j.report = final
	q.running--
	running = q.running
	q.mu.Unlock()
	q.recorder.SetRunningRuns(running)

	q.finish(j, final)
}

// abandon finishes a run that never started.
func (q *Queue) abandon(j *job, reason string) {
	q.guard.Release(j.lease)
	j.cancel()
	q.mu.Lock()
	j.report.Cancel(reason)
	final := j.report
	q.mu.Unlock()
	q.recorder.IncRunOutcome(string(check.StatusCanceled))
	q.finish(j, final)
}

func (q *Queue) finish(j *job, final *check.Report) {
	snap := *final
	rctx, rcancel := reportContext(context.Background())
	_ = q.reporter.RunFinished(rctx, &snap, j.event)
	rcancel()

	q.mu.Lock()
	delete(q.active, j.request.RunID)
	q.addHistoryLocked(final)
	q.mu.Unlock()
}

func (q *Queue) addHistoryLocked(r *check.Report) {
	q.history = append([]*check.Report{r}, q.history...)
	if len(q.history) > q.historySize {
		q.history = q.history[:q.historySize]
	}
}

func reportContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), reportTimeout)
}

// Snapshot returns a copy of the run's current report.
func (q *Queue) Snapshot(runID string) (*check.Report, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if j, ok := q.active[runID]; ok {
		cp := *j.report
		return &cp, true
	}
	for _, r := range q.history {
		if r.RunID == runID {
			cp := *r
			return &cp, true
		}
	}
	return nil, false
}

// List returns active runs in submission order followed by finished runs,
// newest first.
func (q *Queue) List() []*check.Report {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*job, 0, len(q.active))
	for _, j := range q.active {
		active = append(active, j)
	}
	slices.SortFunc(active, func(a, b *job) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]*check.Report, 0, len(active)+len(q.history))
	for _, j := range active {
		cp := *j.report
		out = append(out, &cp)
	}
	for _, r := range q.history {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Len returns the number of runs waiting for a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Seed loads finished runs recovered from the event store, newest first.
// Runs that never reached a terminal state were interrupted by a restart;
// they are marked canceled and reported so their pending status is cleared.
func (q *Queue) Seed(ctx context.Context, reports []*check.Report) {
	var finished []*check.Report
	for _, r := range reports {
		if r == nil {
			continue
		}
		if !r.Status.Terminal() {
			r.Cancel("interrupted by daemon restart")
			ev := trigger.Event{
				Kind:       trigger.KindPullRequest,
				Forge:      r.Forge,
				Repository: r.Repository,
				Number:     r.Number,
				ChangeRef:  r.ChangeRef,
				HeadSHA:    r.HeadSHA,
			}
			rctx, rcancel := reportContext(ctx)
			_ = q.reporter.RunFinished(rctx, r, ev)
			rcancel()
		}
		finished = append(finished, r)
	}
	slices.SortStableFunc(finished, func(a, b *check.Report) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(finished) - 1; i >= 0; i-- {
		q.addHistoryLocked(finished[i])
	}
}

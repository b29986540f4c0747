package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docgate/internal/cache"
	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/eventstore"
	"git.home.luguber.info/inful/docgate/internal/forge"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
	"git.home.luguber.info/inful/docgate/internal/notify"
	"git.home.luguber.info/inful/docgate/internal/queue"
	"git.home.luguber.info/inful/docgate/internal/server/httpserver"
	"git.home.luguber.info/inful/docgate/internal/steps"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// ShutdownGrace bounds how long Run waits for in-flight work on shutdown.
const ShutdownGrace = 30 * time.Second

const eventStoreFile = "events.db"

// Daemon receives forge webhooks and runs the check for matching changes.
type Daemon struct {
	configPath string
	status     atomic.Value // Status
	startTime  time.Time

	mu     sync.RWMutex
	config *config.Config

	forges     *forge.Manager
	store      eventstore.Store
	projection *eventstore.RunHistoryProjection
	journal    *eventstore.Journal
	cache      *cache.Manager
	queue      *queue.Queue
	httpServer *httpserver.Server
	scheduler  *Scheduler
	watcher    *ConfigWatcher
	nats       *notify.JetStream
	registry   *prom.Registry
}

// New wires the daemon's components from cfg. configPath enables hot reload
// when non-empty. Runs left unfinished by a previous process are reported as
// canceled before New returns.
func New(ctx context.Context, cfg *config.Config, configPath string) (*Daemon, error) {
	d := &Daemon{configPath: configPath, config: cfg, startTime: time.Now()}
	d.status.Store(StatusStopped)

	if err := os.MkdirAll(cfg.Daemon.Storage.DataDir, 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create data directory").
			WithContext("path", cfg.Daemon.Storage.DataDir).
			Build()
	}

	forges, err := forge.CreateForgeManager(cfg.Forges)
	if err != nil {
		return nil, err
	}
	d.forges = forges

	d.registry = prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(d.registry)

	if err := d.openHistory(ctx); err != nil {
		return nil, err
	}

	cm, err := cache.Open(ctx, cfg.Cache, cache.WithRecorder(recorder))
	if err != nil {
		d.closeStore()
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to open dependency cache").
			WithContext("backend", string(cfg.Cache.Backend)).
			Build()
	}
	d.cache = cm

	reporters := notify.NewMulti(d.journal, notify.NewForgeStatus(d.forges, cfg.Daemon.PublicURL))
	if n := cfg.Events.NATS; n != nil && n.Enabled {
		js, err := notify.ConnectJetStream(ctx, n)
		if err != nil {
			d.closeStore()
			return nil, err
		}
		d.nats = js
		reporters.Add(notify.NewBus(js, n.Subject))
	}

	executor := steps.NewExecutor(steps.WithCache(cm), steps.WithRecorder(recorder))
	task := check.NewTask(workspace.NewManager(cfg.Daemon.Storage.DataDir, cfg.Check.Environment.KeepWorkspaces), executor, check.WithRecorder(recorder))

	d.queue = queue.New(task, d.currentCheck,
		queue.WithWorkers(cfg.Daemon.Workers),
		queue.WithSize(cfg.Daemon.QueueSize),
		queue.WithHistorySize(cfg.Daemon.HistorySize),
		queue.WithReporter(reporters),
		queue.WithRecorder(recorder),
		queue.WithAuthResolver(d.authFor),
	)
	d.queue.Seed(ctx, append(d.projection.Unfinished(), d.projection.History()...))

	opts := httpserver.Options{
		Forges:    d.forges,
		Submitter: d.queue,
		Runs:      d.queue,
		StartTime: d.startTime,
	}
	if cfg.Monitoring.Metrics.Enabled {
		opts.MetricsHandler = metrics.HTTPHandler(d.registry)
	}
	d.httpServer = httpserver.New(cfg, opts)

	return d, nil
}

func (d *Daemon) openHistory(ctx context.Context) error {
	path := d.config.Daemon.Storage.EventStore
	if path == "" {
		path = filepath.Join(d.config.Daemon.Storage.DataDir, eventStoreFile)
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to open event store").
			WithContext("path", path).
			Build()
	}
	d.store = store
	d.projection = eventstore.NewRunHistoryProjection(store, d.config.Daemon.HistorySize)
	if err := d.projection.Rebuild(ctx); err != nil {
		d.closeStore()
		return errors.WrapError(err, errors.CategoryDaemon, "failed to rebuild run history").Build()
	}
	d.journal = eventstore.NewJournal(store, d.projection)
	slog.Info("Run history loaded",
		logfields.Path(path),
		slog.Int("runs", len(d.projection.History())),
		slog.Int("unfinished", len(d.projection.Unfinished())))
	return nil
}

// Start launches the queue workers, maintenance jobs, config watcher and
// HTTP servers.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.status.CompareAndSwap(StatusStopped, StatusStarting) {
		return errors.DaemonError("daemon is not stopped").
			WithContext("status", string(d.GetStatus())).
			Build()
	}
	cfg := d.GetConfig()
	slog.Info("Starting docgate daemon",
		logfields.Check(cfg.Check.Name),
		slog.Int("forges", len(cfg.Forges)),
		slog.Int("workers", cfg.Daemon.Workers))

	d.queue.Start()

	scheduler, err := NewScheduler()
	if err != nil {
		d.status.Store(StatusStopped)
		return err
	}
	d.scheduler = scheduler
	if err := d.scheduleMaintenance(cfg); err != nil {
		d.status.Store(StatusStopped)
		return err
	}
	d.scheduler.Start(ctx)

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			slog.Warn("Configuration hot reload disabled", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			slog.Warn("Configuration hot reload disabled", logfields.Error(err))
		} else {
			d.watcher = w
		}
	}

	if err := d.httpServer.Start(ctx); err != nil {
		d.status.Store(StatusRunning)
		_ = d.Stop(context.Background())
		return err
	}

	d.status.Store(StatusRunning)
	slog.Info("docgate daemon started")
	return nil
}

// Run starts the daemon and blocks until ctx is done, then shuts down within
// ShutdownGrace.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownGrace)
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop shuts components down in reverse start order. Queued and running runs
// are canceled and reported before the event store closes.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.GetStatus() == StatusStopping {
		return nil
	}
	started := d.GetStatus() != StatusStopped
	d.status.Store(StatusStopping)
	slog.Info("Stopping docgate daemon")

	if started {
		var g errgroup.Group
		if d.watcher != nil {
			g.Go(func() error { return d.watcher.Stop(ctx) })
		}
		if d.scheduler != nil {
			g.Go(func() error { return d.scheduler.Stop(ctx) })
		}
		g.Go(func() error { return d.httpServer.Stop(ctx) })
		if err := g.Wait(); err != nil {
			slog.Error("Failed to stop component", logfields.Error(err))
		}
	}

	if err := d.queue.Stop(ctx); err != nil {
		slog.Error("Failed to drain run queue", logfields.Error(err))
	}
	if d.nats != nil {
		d.nats.Close()
		d.nats = nil
	}
	d.closeStore()

	d.status.Store(StatusStopped)
	slog.Info("docgate daemon stopped", logfields.Duration(time.Since(d.startTime)))
	return nil
}

func (d *Daemon) closeStore() {
	if d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		slog.Error("Failed to close event store", logfields.Error(err))
	}
	d.store = nil
}

// GetStatus returns the daemon lifecycle state.
func (d *Daemon) GetStatus() Status {
	return d.status.Load().(Status)
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Queue exposes the run queue.
func (d *Daemon) Queue() *queue.Queue {
	return d.queue
}

func (d *Daemon) currentCheck() config.CheckConfig {
	return d.GetConfig().Check
}

// authFor returns the clone credentials of the forge an event came from.
func (d *Daemon) authFor(ev trigger.Event) *config.AuthConfig {
	if ev.Forge == "" {
		return nil
	}
	_, fc, ok := d.forges.GetForge(ev.Forge)
	if !ok {
		return nil
	}
	return fc.Auth
}

// ReloadConfig applies a new configuration. The check definition and forge
// clients take effect for the next event; listener ports, storage and worker
// counts need a restart.
func (d *Daemon) ReloadConfig(_ context.Context, next *config.Config) error {
	if err := d.forges.Reload(next.Forges); err != nil {
		return err
	}

	d.mu.Lock()
	prev := d.config
	d.config = next
	d.mu.Unlock()

	if prev.Daemon.HTTP != next.Daemon.HTTP {
		slog.Warn("HTTP listener and admin token changes require a restart")
	}
	if prev.Daemon.Storage != next.Daemon.Storage || prev.Daemon.Workers != next.Daemon.Workers || prev.Daemon.QueueSize != next.Daemon.QueueSize {
		slog.Warn("Storage and worker changes require a restart")
	}
	if len(prev.Forges) != len(next.Forges) {
		slog.Warn("Webhook routes are fixed at startup; restart to serve added forges")
	}
	slog.Info("Configuration applied",
		logfields.Check(next.Check.Name),
		slog.Int("steps", len(next.Check.Steps)),
		slog.String("paths", fmt.Sprint(next.Check.Trigger.Paths)))
	return nil
}

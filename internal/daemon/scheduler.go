package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// maintenanceTimeout bounds one cache prune or history compaction.
const maintenanceTimeout = 5 * time.Minute

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval. A run still in progress when the
// next one is due is skipped. Returns the job ID.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval for %s must be positive, got %s", name, interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// scheduleMaintenance registers cache pruning and history compaction.
func (d *Daemon) scheduleMaintenance(cfg *config.Config) error {
	prune, err := time.ParseDuration(cfg.Cache.PruneSchedule)
	if err != nil {
		return fmt.Errorf("cache prune_schedule: %w", err)
	}
	compact, err := time.ParseDuration(cfg.Daemon.CompactSchedule)
	if err != nil {
		return fmt.Errorf("daemon compact_schedule: %w", err)
	}
	if _, err := d.scheduler.ScheduleEvery("cache-prune", prune, d.pruneCache); err != nil {
		return err
	}
	if _, err := d.scheduler.ScheduleEvery("history-compact", compact, d.compactHistory); err != nil {
		return err
	}
	return nil
}

// pruneCache removes dependency cache entries older than cache.max_age.
func (d *Daemon) pruneCache() {
	maxAge, err := time.ParseDuration(d.GetConfig().Cache.MaxAge)
	if err != nil {
		slog.Error("Invalid cache max_age", logfields.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()
	if _, err := d.cache.Prune(ctx, maxAge); err != nil {
		slog.Error("Cache prune failed", logfields.Error(err))
	}
}

// compactHistory drops stored run events older than history_retention.
func (d *Daemon) compactHistory() {
	retention, err := time.ParseDuration(d.GetConfig().Daemon.HistoryRetention)
	if err != nil {
		slog.Error("Invalid history_retention", logfields.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()
	n, err := d.journal.Compact(ctx, retention)
	if err != nil {
		slog.Error("History compaction failed", logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Info("Compacted run history", slog.Int64("events_removed", n), logfields.Duration(retention))
	}
}

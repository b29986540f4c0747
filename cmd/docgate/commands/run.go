package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"git.home.luguber.info/inful/docgate/internal/cache"
	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/concurrency"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/git"
	"git.home.luguber.info/inful/docgate/internal/steps"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Workdir string   `short:"w" help:"Source tree to run against" default:"." type:"existingdir"`
	Changed []string `help:"Changed paths, relative to the repository root (comma separated)"`
	Base    string   `help:"Compute changed paths between this revision and HEAD"`
	Ref     string   `help:"Change reference recorded on the report" default:"local"`
	Force   bool     `help:"Run even when no changed path matches the trigger paths"`
	Quiet   bool     `short:"q" help:"Do not mirror step output to stdout"`
	Report  string   `help:"Write the JSON run report to this file" type:"path"`
	Summary string   `help:"Write the Markdown run summary to this file" type:"path" env:"GITHUB_STEP_SUMMARY"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return r.run(ctx, g, cfg)
}

func (r *RunCmd) run(ctx context.Context, g *Global, cfg *config.Config) error {
	src, err := filepath.Abs(r.Workdir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}

	paths := append([]string(nil), r.Changed...)
	if r.Base != "" {
		diff, err := git.ChangedPaths(src, r.Base, "")
		if err != nil {
			return err
		}
		paths = append(paths, diff...)
	}

	ev := trigger.Event{
		Kind:         trigger.KindManual,
		ChangeRef:    r.Ref,
		ChangedPaths: paths,
		Force:        r.Force || (len(r.Changed) == 0 && r.Base == ""),
		ReceivedAt:   time.Now(),
	}
	decision := trigger.NewRule(cfg.Check.Trigger).Matches(ev)
	if !decision.Run {
		_, _ = fmt.Fprintf(g.Stdout, "skipped: %s\n", decision.Reason)
		return nil
	}
	slog.Info("Trigger matched", slog.String("reason", decision.Reason), slog.Int("matched", len(decision.MatchedPaths)))

	cm, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	opts := []steps.Option{steps.WithCache(cm)}
	if !r.Quiet {
		opts = append(opts, steps.WithOutput(g.Stdout))
	}
	task := check.NewTask(workspace.NewManager("", cfg.Check.Environment.KeepWorkspaces), steps.NewExecutor(opts...))

	report, runErr := task.Run(ctx, check.Request{
		Check:        cfg.Check,
		Event:        ev,
		SourceDir:    src,
		Group:        concurrency.GroupKey(cfg.Check.Concurrency.Group, cfg.Check.Name, ev.Scope(), ev.ChangeRef),
		MatchedPaths: decision.MatchedPaths,
	})
	if err := r.writeOutputs(report); err != nil {
		slog.Warn("Failed to write run outputs", slog.String("error", err.Error()))
	}
	_, _ = fmt.Fprintf(g.Stdout, "%s: %s (exit %d)\n", report.Check, report.Status, report.ExitCode)
	return runErr
}

func (r *RunCmd) writeOutputs(report *check.Report) error {
	if r.Report != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := os.WriteFile(r.Report, data, 0o600); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if r.Summary != "" {
		f, err := os.OpenFile(r.Summary, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open summary: %w", err)
		}
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(report.Markdown()); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

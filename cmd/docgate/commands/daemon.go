package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docgate/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	DataDir string `short:"d" help:"Override daemon.storage.data_dir"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if d.DataDir != "" {
		cfg.Daemon.Storage.DataDir = d.DataDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Starting daemon mode", slog.String("data_dir", cfg.Daemon.Storage.DataDir))
	dm, err := daemon.New(ctx, cfg, root.Config)
	if err != nil {
		return err
	}
	if err := dm.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}

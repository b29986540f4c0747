package commands

import (
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docgate.yaml" env:"DOCGATE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Run the documentation check once against a local source tree"`
	Match    MatchCmd    `cmd:"" help:"Evaluate the trigger rule for a set of changed paths"`
	Daemon   DaemonCmd   `cmd:"" help:"Serve forge webhooks and run the check for matching changes"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
	Validate ValidateCmd `cmd:"" help:"Load and validate a configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// Execute runs the selected command and returns the process exit code.
func Execute(ctx *kong.Context, g *Global, cli *CLI) int {
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	err := ctx.Run(g, cli)
	if err == nil {
		return 0
	}
	adapter := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
	var status exitStatus
	if !stderrors.As(err, &status) {
		adapter.Report(err)
	}
	return adapter.ExitCodeFor(err)
}

// exitStatus ends the process with a status the command already explained.
type exitStatus int

func (e exitStatus) Error() string { return "exit status " + strconv.Itoa(int(e)) }

func (e exitStatus) ExitCode() int { return int(e) }

// loadConfig loads the file named by --config and applies its logging
// settings. --verbose always wins over the configured level.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Logging, root.Verbose)
	return cfg, nil
}

func configureLogging(lc config.LoggingConfig, verbose bool) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

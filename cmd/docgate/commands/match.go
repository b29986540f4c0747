package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/git"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// MatchCmd implements the 'match' command.
type MatchCmd struct {
	Paths    []string `arg:"" optional:"" help:"Changed paths to evaluate"`
	Base     string   `help:"Add the paths changed between this revision and HEAD"`
	Workdir  string   `short:"w" help:"Repository used with --base" default:"." type:"existingdir"`
	Event    string   `help:"Event kind to evaluate" default:"pull_request"`
	Action   string   `help:"Event action to evaluate" default:"synchronize"`
	JSON     bool     `help:"Print the decision as JSON"`
	ExitCode bool     `name:"exit-code" help:"Exit 1 when the check would be skipped"`
}

func (m *MatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	paths := append([]string(nil), m.Paths...)
	if m.Base != "" {
		diff, err := git.ChangedPaths(m.Workdir, m.Base, "")
		if err != nil {
			return err
		}
		paths = append(paths, diff...)
	}

	d := trigger.NewRule(cfg.Check.Trigger).Matches(trigger.Event{Kind: m.Event, Action: m.Action, ChangedPaths: paths})
	if m.JSON {
		enc := json.NewEncoder(g.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode decision: %w", err)
		}
	} else {
		verdict := "skip"
		if d.Run {
			verdict = "run"
		}
		_, _ = fmt.Fprintf(g.Stdout, "%s: %s\n", verdict, d.Reason)
		if len(d.MatchedPaths) > 0 {
			_, _ = fmt.Fprintf(g.Stdout, "  %s\n", strings.Join(d.MatchedPaths, "\n  "))
		}
	}

	if m.ExitCode && !d.Run {
		return exitStatus(1)
	}
	return nil
}

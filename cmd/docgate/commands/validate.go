package commands

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	Print bool `help:"Print the effective configuration with defaults applied"`
}

func (v *ValidateCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if v.Print {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		_, _ = g.Stdout.Write(data)
		return nil
	}
	_, _ = fmt.Fprintf(g.Stdout, "%s: valid (check %q, %d steps, %d trigger paths, %d forges)\n",
		root.Config, cfg.Check.Name, len(cfg.Check.Steps), len(cfg.Check.Trigger.Paths), len(cfg.Forges))
	return nil
}

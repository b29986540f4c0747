package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docgate/cmd/docgate/commands"
	"git.home.luguber.info/inful/docgate/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Stdout: os.Stdout}
	parser := kong.Parse(cli,
		kong.Name("docgate"),
		kong.Description("Build documentation for proposed changes and gate merges on the result."),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
	)
	os.Exit(commands.Execute(parser, global, cli))
}

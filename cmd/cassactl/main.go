// Command cassactl inspects and repairs a household snapshot file offline.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"cassa/internal/cli"
	"cassa/internal/config"
	"cassa/internal/core"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	core.SetCurrencyGlyph(cfg.CurrencyGlyph)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands(cfg) {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func commands(cfg *config.Config) []subcommands.Command {
	f := &fileFlags{household: cfg.HouseholdID, policy: cfg.LedgerPolicy, profile: cfg.ProfilePath}
	return []subcommands.Command{
		&showCmd{fileFlags: f},
		&verifyCmd{fileFlags: f},
		&debtsCmd{fileFlags: f},
		&searchCmd{fileFlags: f},
		&deleteCmd{fileFlags: f, in: os.Stdin},
		&settleCmd{fileFlags: f},
	}
}

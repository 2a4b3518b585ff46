// snapmink is the command-line interface for go-snapmink snapshot stores.
//
// Usage:
//
//	snapmink <command> [flags]
//
// Commands:
//
//	init        Write a snapmink.yaml
//	migrate     Create the event and snapshot storage
//	inspect     Compare a stream with its snapshot
//	rebuild     Rebuild snapshots for aggregates
//	snapshot    Delete or list stored snapshots
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// The stock binary has no aggregate types registered, so rebuild is only
// useful from a program that embeds the commands package:
//
//	registry := commands.NewRegistry()
//	registry.MustRegister(commands.AggregateType{
//	    Name:    "Order",
//	    Factory: func(id string) snapmink.Aggregate { return NewOrder(id) },
//	    Events:  []interface{}{OrderCreated{}, ItemAdded{}},
//	})
//	commands.Execute(commands.WithRegistry(registry))
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-snapmink/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

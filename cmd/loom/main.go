// Package main provides the CLI entry point for the loom conversational
// agent runtime core.
//
// loom wires the message bus, session dispatcher, tool gateway, and
// observability backbone together and blocks on the inbound queue until
// interrupted. Channel adapters, LLM provider transport, and config-file
// loading are not loom's job (see SPEC_FULL.md's Non-goals) — embed this
// package's wiring in a host binary that owns those concerns, or feed the
// inbound bus over its own transport (stdin, a unix socket, a gRPC service)
// once the process is up.
//
// # Basic usage
//
//	loom run --workspace ./workspace --log-format json
//
// # Environment variables
//
// loom itself reads none; a host binary embedding this package is expected
// to resolve its own provider credentials and channel configuration before
// constructing the pieces main.go wires together.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "loom - conversational agent runtime core",
		Long: `loom dispatches per-session conversational turns through a reason-act
orchestrator, a sanitized tool gateway, and a compressing context builder,
with a JSONL observability sink and a health aggregator alongside.

Channel adapters and LLM provider transport are not included — loom expects
a host process to publish onto the inbound bus and supply a provider.Client.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildRunCmd(), buildHealthCmd())
	return rootCmd
}

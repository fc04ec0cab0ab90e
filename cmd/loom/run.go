package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/pkg/models"
	"github.com/haasonsaas/loom/pkg/provider"
)

// stubProvider is a placeholder provider.Client so `loom run` is runnable
// standalone for a smoke test. Real LLM provider transport is out of scope
// (SPEC_FULL.md non-goal); a host embedding this package should pass its own
// provider.Client into wireRuntime instead of relying on this one.
type stubProvider struct{}

func (stubProvider) Chat(_ context.Context, messages []models.Message, _ []models.ToolDefinition, _ string, _ int, _ float64) (models.LLMResponse, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			last = messages[i].Content
			break
		}
	}
	return models.LLMResponse{
		Content: fmt.Sprintf("no provider configured; echoing input: %s", last),
	}, nil
}

func buildRunCmd() *cobra.Command {
	rt := config.DefaultRuntime()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher loop until interrupted",
		Long: `Starts the message bus and session dispatcher and blocks, consuming the
inbound queue, until SIGINT/SIGTERM. Nothing publishes to the inbound queue
on its own — a host process (or another tool talking to this same binary over
whatever transport it adds) is expected to call bus.PublishInbound.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rtimeComponents, err := wireRuntime(rt, stubProvider{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rtimeComponents.close(); cerr != nil {
					rtimeComponents.logger.Error(cmd.Context(), "shutdown error", "error", cerr)
				}
			}()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rtimeComponents.logger.Info(ctx, "loom dispatcher starting", "workspace", rt.Workspace, "lock_mode", string(rt.LockMode))
			err = rtimeComponents.dispatcher.Run(ctx)
			if err != nil && ctx.Err() == nil {
				return err
			}
			rtimeComponents.logger.Info(context.Background(), "loom dispatcher stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&rt.Workspace, "workspace", rt.Workspace, "Workspace directory for sessions, memory, and the diagnostic sink")
	flags.StringVar(&rt.LogLevel, "log-level", rt.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&rt.LogFormat, "log-format", rt.LogFormat, "Log format: text or json")
	flags.StringVar(&rt.SinkPath, "sink-path", rt.SinkPath, "Path to the JSONL diagnostic sink")
	flags.IntVar(&rt.SinkRotateBytes, "sink-rotate-bytes", rt.SinkRotateBytes, "Rotate the diagnostic sink after this many bytes")
	flags.IntVar(&rt.SinkMaxBackups, "sink-max-backups", rt.SinkMaxBackups, "Number of rotated diagnostic sink backups to keep")
	flags.StringVar((*string)(&rt.LockMode), "lock-mode", string(rt.LockMode), "Turn serialization mode: global or per-session")
	flags.StringVar(&rt.OTLPEndpoint, "otlp-endpoint", rt.OTLPEndpoint, "OTLP collector endpoint for tracing (disabled if empty)")
	flags.StringVar(&rt.Model, "model", rt.Model, "Default model name passed to the provider client")
	flags.IntVar(&rt.MaxTokens, "max-tokens", rt.MaxTokens, "Default max_tokens per model call")
	flags.Float64Var(&rt.Temperature, "temperature", rt.Temperature, "Default sampling temperature")
	flags.IntVar(&rt.MaxIterations, "max-iterations", rt.MaxIterations, "Reason-act loop iteration cap per turn")
	flags.IntVar(&rt.MemoryWindow, "memory-window", rt.MemoryWindow, "Messages since last consolidation before background archiving fires")

	return cmd
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/config"
)

func buildHealthCmd() *cobra.Command {
	rt := config.DefaultRuntime()

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print one health snapshot as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rtimeComponents, err := wireRuntime(rt, stubProvider{})
			if err != nil {
				return err
			}
			defer rtimeComponents.close()

			snapshot := rtimeComponents.health.Collect(cmd.Context())
			out, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal health snapshot: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if snapshot.Readiness != 0 {
				return fmt.Errorf("not ready: %s", snapshot.Readiness)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&rt.Workspace, "workspace", rt.Workspace, "Workspace directory to check")
	flags.StringVar(&rt.SinkPath, "sink-path", rt.SinkPath, "Path to the JSONL diagnostic sink")

	return cmd
}

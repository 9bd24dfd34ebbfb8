package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/murmur/internal/mcptools"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the voice tools over MCP on stdin/stdout",
		Long: `Serve the voice tools (speak, stop_speaking, pause_speaking,
resume_speaking, voice_status, list_voices) to an MCP client over stdio.
Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := rt.manager.Close(ctx); err != nil {
					slog.Warn("queue shutdown error", "err", err)
				}
			}()

			err = mcptools.Serve(cmd.Context(), mcptools.New(rt.manager, version))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

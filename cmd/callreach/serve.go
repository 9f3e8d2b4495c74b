package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/callreach/internal/mcptools"
	"github.com/spf13/cobra"
)

func newServeMCPCmd(flags *rootFlags) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve call graph queries as MCP tools over stdio or HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, _, err := flags.openProvider(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer p.Close()

			server := mcptools.NewCallGraphMCPServer(mcptools.NewCallGraphService(p))
			logger := flags.logger(cmd.ErrOrStderr())
			if httpAddr != "" {
				logger.Info("serving MCP over HTTP", slog.String("addr", httpAddr), slog.String("root", p.Root()))
				return mcptools.RunHTTP(ctx, server, httpAddr)
			}
			logger.Debug("serving MCP over stdio", slog.String("root", p.Root()))
			return mcptools.RunStdio(ctx, server)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for the streamable HTTP transport (default: stdio)")
	return cmd
}

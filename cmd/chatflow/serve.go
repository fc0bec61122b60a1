package main

import (
	"context"
	"net"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the chat API: flow management under /api/flows, chat sessions under /api/chat,
a server-sent event stream per session, /health, /info and Prometheus /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("flows") {
			cfg.Flows.Dir, _ = cmd.Flags().GetString("flows")
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		app, err := cli.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		ln, err := net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return err
		}
		if err := cli.Serve(ctx, app, ln, logger); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped by signal", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().String("flows", "", "Directory of flow definitions (JSON or YAML) to preload")
}

package main

import (
	"context"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <flow-file>",
	Short: "Export the flow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the flow. With --session, the nodes the session
visited and its current node are highlighted, reading the session from the configured store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var s *domain.Session
		if id, _ := cmd.Flags().GetString("session"); id != "" {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Flows.Dir = ""
			ctx := context.Background()
			app, err := cli.NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			if s, err = app.Sessions.Get(ctx, id); err != nil {
				return err
			}
		}
		return cli.Graph(cmd.OutOrStdout(), args[0], s)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Session ID to overlay on the graph")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <flow-file|dir>",
	Short: "Chat with a flow in the terminal",
	Long: `Runs a flow interactively. Bot messages are rendered as markdown when stdout is a terminal.
Type /reset to start over and /quit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); !debug {
			logger = logging.NewNop()
		}
		flowID, _ := cmd.Flags().GetString("flow")
		userID, _ := cmd.Flags().GetString("user")

		var extra []chatflow.Option
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if info.IsDir() {
			cfg.Flows.Dir = args[0]
			if flowID == "" {
				repo, err := file.LoadDir(args[0])
				if err != nil {
					return err
				}
				if len(repo.Flows()) != 1 {
					return fmt.Errorf("%s holds %d flows, pick one with --flow", args[0], len(repo.Flows()))
				}
				flowID = repo.Flows()[0].ID
			}
		} else {
			flow, err := file.LoadFile(args[0])
			if err != nil {
				return err
			}
			store, err := memory.NewFromFlows(flow)
			if err != nil {
				return err
			}
			cfg.Flows.Dir = ""
			extra = append(extra, chatflow.WithFlowStore(store))
			flowID = flow.ID
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		app, err := cli.NewApp(ctx, cfg, logger, extra...)
		if err != nil {
			return err
		}
		defer app.Close()

		printer := tui.NewPrinter(cmd.OutOrStdout())
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet && printer.Rich() {
			tui.PrintBanner(cmd.OutOrStdout(), chatflow.Version)
		}

		_, err = cli.RunChat(ctx, app, cli.ChatOptions{
			FlowID:  flowID,
			UserID:  userID,
			In:      cmd.InOrStdin(),
			Printer: printer,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("flow", "", "Flow ID to run when the path is a directory")
	chatCmd.Flags().String("user", os.Getenv("USER"), "User ID recorded on the session")
	chatCmd.Flags().Bool("debug", false, "Write logs to stderr")
	chatCmd.Flags().BoolP("quiet", "q", false, "Hide the banner")
}

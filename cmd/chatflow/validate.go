package main

import (
	"errors"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Check flow definitions for consistency",
	Long: `Validates flow definition files (or every definition in a directory) and reports
errors and warnings: missing start node, dangling edges, unreachable nodes, loops without input, etc.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		activation, _ := cmd.Flags().GetBool("activation")

		ok, err := cli.Validate(cmd.OutOrStdout(), args, activation)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("validation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("activation", false, "Only report errors that block activation")
}

package main

import (
	"fmt"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "chatflow.toml"
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.Init(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

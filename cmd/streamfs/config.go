package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		printJSON(cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an example config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExample(args[0]); err != nil {
			return failure(err, "Write %s failed", args[0])
		}
		result(map[string]interface{}{"path": args[0]}, "Wrote %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
}

package internal

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long:  `Config prints the configuration after defaults, file, environment and flags are applied. text output is yaml.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := format
		if f == "" || f == "text" {
			f = "yaml"
		}
		return writeReport(cmd.OutOrStdout(), f, cfg, nil)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

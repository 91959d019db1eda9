// Package cmd implements the openport command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/config"
	"github.com/telhawk-systems/openport/internal/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "openport",
	Short: "Open port confirmation sensor",
	Long: `openport confirms that ports seen serving outbound traffic are really
open and reachable from the internet, and raises an alarm when both a local
scan and the external confirmation service agree.

It also keeps a bounded history of the confirmation service's rate-limit
usage.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat(cmd)); err != nil {
			return err
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/telhawk/openport/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", output.FormatTable, "output format: table, json, yaml")
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/features"
)

var featureCmd = &cobra.Command{
	Use:   "feature",
	Short: "Read or override runtime feature flags",
}

var featureGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show whether a feature is on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		p := features.NewProvider(rdb, cfg.Features.Key, cfg.Features.Defaults, newLogger(cfg))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], onOff(p.IsFeatureOn(cmd.Context(), args[0])))
		return nil
	},
}

var featureSetCmd = &cobra.Command{
	Use:   "set <name> <on|off>",
	Short: "Override a feature at runtime",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}

		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		p := features.NewProvider(rdb, cfg.Features.Key, cfg.Features.Defaults, newLogger(cfg))
		if err := p.Set(cmd.Context(), args[0], on); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], onOff(on))
		return nil
	},
}

func init() {
	featureCmd.AddCommand(featureGetCmd)
	featureCmd.AddCommand(featureSetCmd)
	rootCmd.AddCommand(featureCmd)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid flag value %q (use on or off)", s)
	}
	return b, nil
}

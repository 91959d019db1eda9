package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/netinfo"
)

var publicIPCmd = &cobra.Command{
	Use:   "publicip",
	Short: "Show or refresh the recorded public address",
}

var publicIPShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the public address the sensor will confirm against",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ip, err := netinfo.NewStore(rdb, cfg.PublicIP.Key, cfg.PublicIP.Field).PublicIP(cmd.Context())
		if errors.Is(err, netinfo.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "no public ip recorded")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ip)
		return nil
	},
}

var publicIPRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Discover the public address over STUN and record it",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		prober := netinfo.STUNProber{Servers: cfg.PublicIP.STUNServers, Timeout: cfg.PublicIP.STUNTimeout}
		ip, err := prober.Probe(cmd.Context())
		if err != nil {
			return err
		}
		if err := netinfo.NewStore(rdb, cfg.PublicIP.Key, cfg.PublicIP.Field).SetPublicIP(cmd.Context(), ip); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ip)
		return nil
	},
}

func init() {
	publicIPCmd.AddCommand(publicIPShowCmd)
	publicIPCmd.AddCommand(publicIPRefreshCmd)
	rootCmd.AddCommand(publicIPCmd)
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/seeder"
)

var (
	seedCount    int
	seedInterval string
	seedSeed     int64
	seedHosts    []string
	seedPorts    []int
	seedSubnet   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic connection events",
	Long: `Generate NewOutPortConn events with random hosts, ports and MACs and
publish them on the sensor's subject.

Examples:
  # 20 events from 192.168.1.0/24, one per second
  openport seed --count 20 --interval 1s

  # Replay a fixed set of hosts
  openport seed --hosts 10.0.0.5,10.0.0.6 --ports 22,443`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := parseDuration(seedInterval)
		if err != nil {
			return err
		}

		logger := newLogger(cfg)
		broker, err := newNATS(cfg, logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := seeder.NewRunner(seeder.Config{
			Subject:  cfg.Pipeline.Subject,
			Count:    seedCount,
			Interval: interval,
			Seed:     seedSeed,
			Hosts:    seedHosts,
			Ports:    seedPorts,
			Subnet:   seedSubnet,
		}, broker, logger)

		sent, err := runner.Run(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "published %d flow events\n", sent)
		if err != nil {
			return err
		}
		return broker.Drain()
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of events to publish")
	seedCmd.Flags().StringVar(&seedInterval, "interval", "0s", "delay between events")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 for a random seed)")
	seedCmd.Flags().StringSliceVar(&seedHosts, "hosts", nil, "local hosts to draw from")
	seedCmd.Flags().IntSliceVar(&seedPorts, "ports", nil, "ports to draw from (default: common service ports)")
	seedCmd.Flags().StringVar(&seedSubnet, "subnet", "192.168.1", "/24 prefix used when --hosts is empty")
	rootCmd.AddCommand(seedCmd)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

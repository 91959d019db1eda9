package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/models"
	"github.com/telhawk-systems/openport/internal/output"
	"github.com/telhawk-systems/openport/internal/ratelimit"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the confirmation quota ledger",
	Long:  "List or trim the stored rate-limit windows of the confirmation service",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored quota windows, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		samples, err := ratelimit.NewRedisStore(rdb, cfg.Ledger.Key).Samples(cmd.Context())
		if err != nil {
			return err
		}
		if samples == nil {
			samples = []models.QuotaSample{}
		}
		return renderSamples(cmd, samples)
	},
}

var ledgerTrimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Drop all but the newest quota windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		store := ratelimit.NewRedisStore(rdb, cfg.Ledger.Key)
		ledger := ratelimit.New(store, ledgerConfig(cfg), newLogger(cfg))
		if err := ledger.Trim(cmd.Context()); err != nil {
			return err
		}

		count, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ledger trimmed: %d of %d windows kept\n", count, ledger.Capacity())
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerTrimCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func renderSamples(cmd *cobra.Command, samples []models.QuotaSample) error {
	w := cmd.OutOrStdout()
	if handled, err := output.Structured(w, outputFormat(cmd), samples); handled || err != nil {
		return err
	}

	if len(samples) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No quota windows recorded")
		return nil
	}

	table := output.NewTable("WINDOW END", "TIME (UTC)", "USED", "LIMIT")
	for _, s := range samples {
		table.AddRow(
			strconv.FormatInt(s.WindowEnd, 10),
			time.Unix(s.WindowEnd, 0).UTC().Format(time.RFC3339),
			strconv.FormatInt(s.Used, 10),
			strconv.FormatInt(s.Limit, 10),
		)
	}
	return table.Render(w)
}

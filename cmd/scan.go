package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/internal/output"
	"github.com/telhawk-systems/openport/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan <host> <port>",
	Short: "Run the local port scan once",
	Long: `Scan a single host and port with the configured nmap settings and print
the observed state and service. An empty state means the scan was
inconclusive.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}

		s := scanner.New(scanner.Config{
			Binary:  cfg.Scanner.Binary,
			Sudo:    cfg.Scanner.Sudo,
			Timeout: cfg.Scanner.Timeout,
		}, scanRunner, newLogger(cfg))
		result := s.ConfirmOpenPort(cmd.Context(), args[0], port)

		w := cmd.OutOrStdout()
		if handled, err := output.Structured(w, outputFormat(cmd), result); handled || err != nil {
			return err
		}

		state := result.State
		if state == "" {
			state = "inconclusive"
		}
		table := output.NewTable("HOST", "PORT", "STATE", "SERVICE")
		table.AddRow(args[0], args[1], state, result.ServiceName)
		return table.Render(w)
	},
}

// scanRunner is replaced in tests. Nil selects the exec runner.
var scanRunner scanner.Runner

func init() {
	rootCmd.AddCommand(scanCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/alarm"
	"github.com/telhawk-systems/openport/internal/confirm"
	"github.com/telhawk-systems/openport/internal/features"
	"github.com/telhawk-systems/openport/internal/netinfo"
	"github.com/telhawk-systems/openport/internal/ratelimit"
	"github.com/telhawk-systems/openport/internal/scanner"
	"github.com/telhawk-systems/openport/internal/sensor"
	"github.com/telhawk-systems/openport/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the open port sensor",
	Long: `Subscribe to connection events, confirm candidate ports with a local scan
and the external confirmation service, and enqueue alarms for confirmed ports.

The ops server exposes /healthz, /readyz, /metrics and /api/v1/ratelimit.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cfg)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting open port sensor",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"confirm_url", cfg.Confirm.URL,
		"nats_url", cfg.NATS.URL)

	rdb, err := newRedis(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WarnContext(ctx, "redis not reachable at startup", logging.Error(err))
	}

	broker, err := newNATS(cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	ledger, err := ratelimit.Shared(ctx, ratelimit.NewRedisStore(rdb, cfg.Ledger.Key), ledgerConfig(cfg), logger)
	if err != nil {
		logger.WarnContext(ctx, "initial quota ledger trim failed", logging.Error(err))
	}
	defer ledger.Stop()

	addresses := netinfo.NewStore(rdb, cfg.PublicIP.Key, cfg.PublicIP.Field)
	if cfg.PublicIP.RefreshEnabled {
		refresher := netinfo.NewRefresher(netinfo.STUNProber{
			Servers: cfg.PublicIP.STUNServers,
			Timeout: cfg.PublicIP.STUNTimeout,
		}, addresses, cfg.PublicIP.RefreshInterval, logger)
		go refresher.Start(ctx)
		defer refresher.Stop()
	}

	s := sensor.New(sensor.Config{
		Subject:     cfg.Pipeline.Subject,
		Queue:       cfg.Pipeline.Queue,
		MaxInFlight: cfg.Pipeline.MaxInFlight,
	}, sensor.Dependencies{
		Features: features.NewProvider(rdb, cfg.Features.Key, cfg.Features.Defaults, logger),
		Scanner: scanner.New(scanner.Config{
			Binary:  cfg.Scanner.Binary,
			Sudo:    cfg.Scanner.Sudo,
			Timeout: cfg.Scanner.Timeout,
		}, nil, logger),
		Addresses: addresses,
		Confirmer: confirm.New(confirm.Config{
			BaseURL: cfg.Confirm.URL,
			Token:   cfg.Confirm.Token,
			Timeout: cfg.Confirm.Timeout,
		}, ledger, logger),
		Alarms: alarm.NewManager(rdb, broker, cfg.Pipeline.AlarmSubject, logger),
	}, logger)
	if err := s.Start(ctx, broker); err != nil {
		return fmt.Errorf("start sensor: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(server.NewHandler(ledger, rdb, broker, logger)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down open port sensor")
	case runErr = <-serverErr:
		logger.Error("ops server failed", logging.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("ops server shutdown failed", logging.Error(shutdownErr))
	}

	s.Stop()
	if drainErr := broker.Drain(); drainErr != nil {
		logger.Warn("NATS drain failed", logging.Error(drainErr))
	}
	return runErr
}

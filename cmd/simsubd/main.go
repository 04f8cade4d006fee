// simsubd serves the reference subscription registry: the subscription
// service, the policy service and the notification channel over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkkko/simsub/internal/config"
	"github.com/nkkko/simsub/internal/engine"
	"github.com/nkkko/simsub/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configFile string
	var overrides config.Overrides

	flagSet := pflag.NewFlagSet("simsubd", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "path to YAML configuration file")
	flagSet.StringVar(&overrides.DataDir, "data-dir", "", "directory of the Badger record store")
	flagSet.StringVar(&overrides.ServerAddr, "addr", "", "HTTP listen address")
	flagSet.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&overrides.StorageType, "storage", "", "record store (memory or badger)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfig(configFile, overrides)
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.ToLoggingConfig()); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	e, err := engine.CreateEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Caught signal, initiating shutdown")
	case err = <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Engine failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

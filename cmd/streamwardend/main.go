package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/SoarinFerret/StreamWarden/internal/config"
	"github.com/SoarinFerret/StreamWarden/internal/engine"
	"github.com/SoarinFerret/StreamWarden/internal/logging"
	"github.com/SoarinFerret/StreamWarden/internal/notify"
	"github.com/SoarinFerret/StreamWarden/internal/plex"
)

func main() {
	// check for argument to determine config location
	argPath := config.DefaultPath
	if len(os.Args) > 1 {
		argPath = os.Args[1]
	}

	cfg, err := config.LoadConfigFromFile(argPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", argPath, err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Str("path", argPath).Msg("using config file")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error().Err(err).Msg("watcher stopped")
		cancel()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	client, err := plex.NewClient(cfg.Server.URL, cfg.Server.Token, plex.Options{
		Timeout:            cfg.Server.Timeout.Std(),
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify != nil && *cfg.Server.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return err
	}

	e, err := engine.NewEngine(client, cfg, logger, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	if cfg.Notify.Desktop {
		e.SetNotifier(notify.New(cfg.Notify.BusAddress))
	}

	logger.Info().Str("server", cfg.Server.URL).Msg("connected to plex")
	return e.Watch(ctx)
}

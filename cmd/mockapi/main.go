// Command mockapi serves seeded resources with the production API envelope
// for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/config"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/internal/mockapi"
	"github.com/goliatone/go-resource-cache/registry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mockapi:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("mockapi", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration file")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before the configuration")
	addr := flags.String("addr", "", "listen address (overrides mockapi.addr)")
	records := flags.Int("records", -1, "records seeded per collection (overrides mockapi.records)")
	latency := flags.Duration("latency", -1, "artificial latency per request (overrides mockapi.latency)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := gotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.MockAPI.Addr = *addr
	}
	if *records >= 0 {
		cfg.MockAPI.Records = *records
	}
	if *latency >= 0 {
		cfg.MockAPI.Latency = *latency
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if logging.ParseLevel(cfg.Log.Level) > zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := registry.Default()
	if cfg.Registry.File != "" {
		if reg, err = registry.Load(cfg.Registry.File); err != nil {
			return err
		}
	}

	server := mockapi.New(reg, mockapi.Config{
		Seed:        cfg.MockAPI.Seed,
		Records:     cfg.MockAPI.Records,
		Latency:     cfg.MockAPI.Latency,
		ScopeHeader: cfg.Backend.ScopeHeader,
	}, mockapi.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mock api",
		zap.String("addr", cfg.MockAPI.Addr),
		zap.Int("records", cfg.MockAPI.Records),
		zap.Strings("resources", reg.Names()))
	return server.Run(ctx, cfg.MockAPI.Addr)
}

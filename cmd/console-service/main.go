// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		socketPath  string
		logLevel    string
		showVersion bool
	)

	flags := pflag.NewFlagSet("console-service", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to console.yaml (default: $CONSOLE_CONFIG, else built-in defaults)")
	flags.StringVar(&socketPath, "socket", "", "socket path (overrides paths.socket)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("console-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	consoleService, err := newConsoleService(cfg, store, clock.Real(), logger)
	if err != nil {
		return err
	}

	logger.Info("console service running",
		"version", version.Info(),
		"socket", cfg.Paths.Socket,
		"backend", cfg.Store.Backend,
		"collections", cfg.CollectionNames(),
	)
	if err := consoleService.serve(ctx); err != nil {
		return err
	}
	logger.Info("console service stopped")
	return nil
}

// loadConfig reads configPath, then CONSOLE_CONFIG, falling back to
// the defaults when neither is set.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("CONSOLE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

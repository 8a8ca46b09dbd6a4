package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/httpeval"
	"github.com/GriffinCanCode/jseval/internal/infrastructure/config"
	"github.com/GriffinCanCode/jseval/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jseval/internal/jsruntime"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "http-eval: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("http-eval", pflag.ContinueOnError)
	udsPath := flags.String("udsPath", "", "Unix socket to listen on")
	configFile := flags.String("config", "", "YAML or TOML config file")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *udsPath == "" {
		return fmt.Errorf("--udsPath is required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, *logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := httpeval.NewServer(httpeval.Config{
		SocketPath: *udsPath,
		Engine: jsruntime.Options{
			Console:      cfg.Engine.Console,
			MaxCallStack: cfg.Engine.MaxCallStack,
		},
		Development: cfg.Logging.Development,
	}, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

// newLogger honors LOG_DEV with the debug console logger unless the command
// line pins a level.
func newLogger(cfg config.LogConfig, levelOverride string) (*logging.Logger, error) {
	if cfg.Development && levelOverride == "" {
		return logging.NewDevelopment(), nil
	}
	level := cfg.Level
	if levelOverride != "" {
		level = levelOverride
	}
	return logging.New(logging.Config{Level: level, Development: cfg.Development})
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

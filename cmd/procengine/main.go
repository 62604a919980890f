package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/procengine/app"
	"github.com/RezaEskandarii/procengine/supervisor"
	"github.com/RezaEskandarii/procengine/types/config"
)

func main() {
	configPath := flag.String("config", "procengine.yaml", "path to the YAML configuration file")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	logger.Info("procengine starting", "instance", cfg.Instance, "storage", cfg.StorageDriver, "gate", cfg.GateDriver)
	if err := container.Run(ctx); err != nil {
		if errors.Is(err, supervisor.ErrEngineUnhealthy) {
			log.Fatalf("shutting down: %v", err)
		}
		log.Fatalf("procengine: %v", err)
	}
}

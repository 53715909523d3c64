package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/config"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/core"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/httpui"
)

const defaultConfigPath = "config/attendanced.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting attendance kiosk",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctrl, err := core.New(cfg)
	if err != nil {
		slog.Error("failed to create controller", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpui.New(ctrl, cfg.HTTP.Listen)
	server.Start()

	errChan := make(chan error, 1)
	go func() {
		errChan <- ctrl.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-errChan:
		if err != nil {
			slog.Error("controller error", "error", err)
		} else {
			slog.Info("controller stopped (via MQTT shutdown command)")
		}
	}

	timeout := ctrl.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("local bridge shutdown failed", "error", err)
	}
	if err := ctrl.Close(); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("attendance kiosk stopped")
}

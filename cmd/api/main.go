package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"istruecaller/internal/app/bootstrap"
	"istruecaller/internal/platform/config"
	"istruecaller/internal/platform/logging"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (register, snapshot store, bus, workers).
// 3) Serve HTTP until SIGINT/SIGTERM, then checkpoint and exit.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildAPI(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("api shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("istruecaller api stopped with error: %v", err)
		return
	}
}

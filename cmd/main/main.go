package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-analytics/src/config"
	"market-analytics/src/logger"
)

// -----------------------------------------------------------------------------

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// 4. Setup Components
	store, err := setupDatabase(conf, appLogger)
	if err != nil {
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := setupPipeline(ctx, conf, appLogger, store)

	// 5. Start Servers
	servers := startServers(conf, app, appLogger)

	// 6. Start refresh workers and cron triggers, then warm preloaded datasets
	app.orchestrator.Start()
	app.scheduler.Start()
	preloadDatasets(conf, app.orchestrator, appLogger)

	// 7. Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	for _, srv := range servers {
		if err := srv.Stop(); err != nil {
			appLogger.Warning("server stop: %v", err)
		}
	}
	app.scheduler.Stop()
	app.orchestrator.Stop()
	cancel()
	appLogger.Info("Shutdown complete.")
}

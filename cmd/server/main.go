package main

import (
	"log"
	"os"

	"github.com/lotchurch/congregate/core/logging"
	"github.com/lotchurch/congregate/core/server"
	"github.com/lotchurch/congregate/internal/config"
)

func main() {
	initApp()
}

func initApp() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(server.NewConfigError("load_config", "failed to load configuration", err))
	}

	// Create new server instance
	srv := server.New(
		server.WithMode(cfg.Server.Dev),
		server.WithMetrics(cfg.Metrics.Enabled),
	)

	// Setup request logging, error handling and recovery
	logging.SetupLogging(srv)

	registerCollections(srv.App())
	registerPipeline(srv.App(), cfg)
	srv.App().RootCmd.AddCommand(newSeedCommand(srv.App()))

	// Without a subcommand the process serves, on the configured domain if any
	if len(os.Args) <= 1 {
		srv.App().RootCmd.SetArgs(serveArgs(cfg))
	}

	// Start the server
	if err := srv.Start(); err != nil {
		srv.App().Logger().Error("Fatal application error",
			"error", err,
			"uptime", srv.Stats().StartTime,
			"total_requests", srv.Stats().TotalRequests.Load(),
			"active_connections", srv.Stats().ActiveConnections.Load(),
			"last_request_time", srv.Stats().LastRequestTime.Load(),
		)
		log.Fatal(err)
	}
}

func serveArgs(cfg *config.Config) []string {
	if cfg.Server.Domain != "" {
		return []string{"serve", "--domain", cfg.Server.Domain}
	}
	return []string{"serve"}
}

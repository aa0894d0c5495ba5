// Audio Node - Bluetooth speaker routing daemon
//
// This is the main entry point for the audio node. Each node turns a
// small Linux host into a managed Bluetooth audio endpoint:
//   - Discovers, pairs and connects Bluetooth audio devices
//   - Routes device audio to local outputs with per-link volume
//   - Reconnects automatically when devices drop out of range
//   - Exposes a REST/WebSocket control surface for panels and apps
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/house-audio/audionode/migrations"

	"github.com/house-audio/audionode/internal/api"
	"github.com/house-audio/audionode/internal/audio"
	"github.com/house-audio/audionode/internal/bluetooth"
	"github.com/house-audio/audionode/internal/infrastructure/config"
	"github.com/house-audio/audionode/internal/infrastructure/database"
	"github.com/house-audio/audionode/internal/infrastructure/influxdb"
	"github.com/house-audio/audionode/internal/infrastructure/logging"
	"github.com/house-audio/audionode/internal/journal"
	"github.com/house-audio/audionode/internal/node"
	"github.com/house-audio/audionode/internal/routing"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting audio node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Assignment repository backs link restoration across connections
	assignments := routing.NewSQLiteRepository(db.DB)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bluetooth stack adapter; the monitor stream feeds the node manager
	btAdapter := bluetooth.NewCtl(cfg.Bluetooth, log.With("component", "bluetooth"))
	if err := btAdapter.StartMonitor(ctx); err != nil {
		return fmt.Errorf("starting bluetooth monitor: %w", err)
	}
	defer func() {
		log.Info("closing bluetooth adapter")
		if closeErr := btAdapter.Close(); closeErr != nil {
			log.Error("error closing bluetooth adapter", "error", closeErr)
		}
	}()
	log.Info("bluetooth monitor started", "adapter", cfg.Bluetooth.Adapter)

	// Audio backend; watches the output topology
	backend := audio.NewPipeWire(cfg.Audio, log.With("component", "audio"))
	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("starting audio backend: %w", err)
	}
	defer func() {
		log.Info("closing audio backend")
		if closeErr := backend.Close(); closeErr != nil {
			log.Error("error closing audio backend", "error", closeErr)
		}
	}()
	log.Info("audio backend started")

	// Node manager ties the stacks together
	nodeDeps := node.Deps{
		Config:      cfg,
		Logger:      log.With("component", "node"),
		Adapter:     btAdapter,
		Backend:     backend,
		Assignments: assignments,
	}
	if influxClient != nil {
		nodeDeps.Telemetry = influxClient
	}

	manager, err := node.NewManager(nodeDeps)
	if err != nil {
		return fmt.Errorf("creating node manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting node manager: %w", err)
	}
	defer func() {
		log.Info("stopping node manager")
		manager.Stop()
	}()

	// Event journal records manager activity for later inspection
	journalRepo := journal.NewSQLiteRepository(db.DB)
	retention := time.Duration(cfg.Node.EventRetentionDays) * 24 * time.Hour
	recorder := journal.NewRecorder(journalRepo, retention, log.With("component", "journal"))
	journalEvents, unsubscribeJournal := manager.Subscribe()
	defer unsubscribeJournal()
	go recorder.Run(ctx, journalEvents)

	// Control surface
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Node:     manager,
		Version:  version,
		Journal:  journalRepo,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure is healthy
	if err := healthCheck(ctx, db, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"node", cfg.Node.Name,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("audio node stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUDIONODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUDIONODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// Package main provides the API server entry point for the chain explorer
// service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chain-explorer/internal/adapter"
	"github.com/chain-explorer/internal/api"
	"github.com/chain-explorer/internal/config"
	"github.com/chain-explorer/internal/logging"
	"github.com/chain-explorer/internal/notifier"
	"github.com/chain-explorer/internal/storage"
	chainsync "github.com/chain-explorer/internal/sync"
	"github.com/chain-explorer/internal/types"
)

func main() {
	fmt.Println("Chain Explorer API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	blockRepo := storage.NewBlockRepository(postgres)
	txRepo := storage.NewTransactionRepository(postgres)
	addressRepo := storage.NewAddressRepository(postgres)
	contractRepo := storage.NewContractRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)
	cursorRepo := storage.NewSyncCursorRepository(postgres)
	statsRepo := storage.NewStatsRepository(clickhouse)
	queryCache := storage.NewQueryCache(redis)

	// Event hub feeds websocket sessions and the cache invalidator
	events := notifier.NewHub()
	defer events.Close()

	invalidatorID := startCacheInvalidator(events, queryCache)
	defer events.Unsubscribe(invalidatorID)

	// Initialize the sync engine when upstream endpoints are configured
	var engine *chainsync.Engine
	if cfg.Chain.SyncEnabled() {
		logger.WithFields(map[string]interface{}{
			"chain": cfg.Chain.ChainID,
			"rpc":   cfg.Chain.RPCURL,
		}).Info("Initializing chain adapter")

		chainAdapter, err := adapter.NewEthereumAdapter(&adapter.EthereumAdapterConfig{
			ChainID:   types.ChainID(cfg.Chain.ChainID),
			RPCURL:    cfg.Chain.RPCURL,
			WSURL:     cfg.Chain.WSURL,
			RateLimit: cfg.Sync.RPCRateLimit,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create chain adapter")
		}
		defer chainAdapter.Close()

		metadata, err := adapter.NewTokenMetadataReader(chainAdapter)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create token metadata reader")
		}

		engine, err = chainsync.NewEngine(&chainsync.EngineConfig{
			Chain:          types.ChainID(cfg.Chain.ChainID),
			ChainAdapter:   chainAdapter,
			Blocks:         blockRepo,
			Transactions:   txRepo,
			Addresses:      addressRepo,
			Contracts:      contractRepo,
			Tokens:         tokenRepo,
			Cursor:         cursorRepo,
			Stats:          statsRepo,
			Events:         events,
			Metadata:       metadata,
			CatchUpLimit:   cfg.Sync.CatchUpLimit,
			ReconnectDelay: cfg.Sync.ReconnectDelay,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create sync engine")
		}

		if err := engine.Start(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to start sync engine")
		}
		logger.Info("Sync engine started")
	} else {
		logger.Warn("CHAIN_RPC_URL or CHAIN_WS_URL not configured - running in query-only mode")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, &api.ServerDeps{
		Blocks:       blockRepo,
		Transactions: txRepo,
		Addresses:    addressRepo,
		Contracts:    contractRepo,
		Tokens:       tokenRepo,
		Cursor:       cursorRepo,
		Stats:        statsRepo,
		Cache:        queryCache,
		Events:       events,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if engine != nil {
		if err := engine.Stop(ctx); err != nil {
			logger.WithError(err).Error("Sync engine shutdown failed")
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// startCacheInvalidator subscribes to new-block events and drops the cached
// query windows they make stale
func startCacheInvalidator(events *notifier.Hub, cache *storage.QueryCache) string {
	id, ch := events.Subscribe()

	go func() {
		for event := range ch {
			if event.Kind != types.EventNewBlock {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cache.InvalidateChainWindows(ctx)
			cancel()
		}
	}()

	return id
}

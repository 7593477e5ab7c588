// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chain-explorer/internal/notifier"
	"github.com/chain-explorer/internal/storage"
	"github.com/gorilla/mux"
)

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	blockRepo    *storage.BlockRepository
	txRepo       *storage.TransactionRepository
	addressRepo  *storage.AddressRepository
	contractRepo *storage.ContractRepository
	tokenRepo    *storage.TokenRepository
	cursorRepo   *storage.SyncCursorRepository
	statsRepo    *storage.StatsRepository
	cache        *storage.QueryCache
	events       *notifier.Hub
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ServerDeps bundles the server's storage and event dependencies.
type ServerDeps struct {
	Blocks       *storage.BlockRepository
	Transactions *storage.TransactionRepository
	Addresses    *storage.AddressRepository
	Contracts    *storage.ContractRepository
	Tokens       *storage.TokenRepository
	Cursor       *storage.SyncCursorRepository
	Stats        *storage.StatsRepository // optional
	Cache        *storage.QueryCache      // optional
	Events       *notifier.Hub
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps *ServerDeps) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		blockRepo:    deps.Blocks,
		txRepo:       deps.Transactions,
		addressRepo:  deps.Addresses,
		contractRepo: deps.Contracts,
		tokenRepo:    deps.Tokens,
		cursorRepo:   deps.Cursor,
		statsRepo:    deps.Stats,
		cache:        deps.Cache,
		events:       deps.Events,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Event stream endpoint (websocket upgrade happens in the handler)
	s.router.HandleFunc("/ws", s.handleEventStream).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Block endpoints
	api.HandleFunc("/blocks", s.handleListBlocks).Methods("GET")
	api.HandleFunc("/blocks/{number:[0-9]+}", s.handleGetBlock).Methods("GET")
	api.HandleFunc("/blocks/{number:[0-9]+}/transactions", s.handleListBlockTransactions).Methods("GET")

	// Transaction endpoints
	api.HandleFunc("/transactions", s.handleListTransactions).Methods("GET")
	api.HandleFunc("/transactions/{hash}", s.handleGetTransaction).Methods("GET")

	// Address endpoints
	api.HandleFunc("/addresses", s.handleListTopAddresses).Methods("GET")
	api.HandleFunc("/addresses/{address}", s.handleGetAddress).Methods("GET")
	api.HandleFunc("/addresses/{address}/transactions", s.handleListAddressTransactions).Methods("GET")

	// Contract endpoints
	api.HandleFunc("/contracts/verified", s.handleListVerifiedContracts).Methods("GET")
	api.HandleFunc("/contracts/{address}", s.handleGetContract).Methods("GET")
	api.HandleFunc("/contracts/{address}/verify", s.handleVerifyContract).Methods("POST")

	// Token endpoints
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/tokens/{address}/logo", s.handleSubmitTokenLogo).Methods("POST")
	api.HandleFunc("/tokens/{address}/logo/review", s.handleReviewTokenLogo).Methods("POST")

	// Stats endpoints
	api.HandleFunc("/stats/daily", s.handleDailyStats).Methods("GET")
}

// handleHealth reports service liveness plus ingestion progress and feed
// connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "chain-explorer",
	}

	cursor, found, err := s.cursorRepo.Get(r.Context())
	if err != nil {
		log.Printf("[API] health cursor lookup failed: %v", err)
		response["sync"] = map[string]any{"available": false}
	} else if found {
		response["sync"] = map[string]any{
			"available":    true,
			"lastBlock":    cursor.LastBlock,
			"lastSyncedAt": cursor.LastSyncedAt,
			"connected":    cursor.Connected,
		}
	} else {
		response["sync"] = map[string]any{"available": true, "lastBlock": 0, "connected": false}
	}

	respondJSON(w, http.StatusOK, response)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

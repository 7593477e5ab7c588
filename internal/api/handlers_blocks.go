package api

import (
	"net/http"
	"strconv"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/storage"
	"github.com/gorilla/mux"
)

// parseLimit reads the limit query parameter with a default
func parseLimit(r *http.Request, defaultLimit int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return limit
}

// handleListBlocks returns the most recent blocks
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25)

	key := storage.LatestBlocksKey(limit)
	if s.cache != nil {
		var cached []*models.Block
		if s.cache.GetJSON(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, map[string]any{"blocks": cached})
			return
		}
	}

	blocks, err := s.blockRepo.ListLatest(r.Context(), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if s.cache != nil {
		s.cache.SetJSON(r.Context(), key, blocks)
	}

	respondJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// handleGetBlock returns a single block by height
func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	number, err := strconv.ParseUint(vars["number"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid block number", nil)
		return
	}

	block, err := s.blockRepo.GetByNumber(r.Context(), number)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, block)
}

// handleListBlockTransactions returns all transactions in a block
func (s *Server) handleListBlockTransactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	number, err := strconv.ParseUint(vars["number"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid block number", nil)
		return
	}

	transactions, err := s.txRepo.ListByBlock(r.Context(), number)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"blockNumber":  number,
		"transactions": transactions,
	})
}

package api

import (
	"net/http"
	"regexp"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/storage"
	"github.com/gorilla/mux"
)

var txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// handleListTransactions returns the most recent transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25)

	key := storage.LatestTxsKey(limit)
	if s.cache != nil {
		var cached []*models.Transaction
		if s.cache.GetJSON(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, map[string]any{"transactions": cached})
			return
		}
	}

	transactions, err := s.txRepo.ListLatest(r.Context(), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if s.cache != nil {
		s.cache.SetJSON(r.Context(), key, transactions)
	}

	respondJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// handleGetTransaction returns a single transaction by hash
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hash := vars["hash"]

	if !txHashRegex.MatchString(hash) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
			"invalid transaction hash (must be 0x followed by 64 hexadecimal characters)", nil)
		return
	}

	tx, err := s.txRepo.GetByHash(r.Context(), hash)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

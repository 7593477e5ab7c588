package api

import (
	"net/http"

	"github.com/chain-explorer/internal/storage"
	"github.com/gorilla/mux"
)

// handleListTopAddresses returns the busiest observed addresses
func (s *Server) handleListTopAddresses(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25)

	addresses, err := s.addressRepo.ListTop(r.Context(), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"addresses": addresses})
}

// handleGetAddress returns a single address record
func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	record, err := s.addressRepo.Get(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleListAddressTransactions returns transactions touching an address
func (s *Server) handleListAddressTransactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]
	limit := parseLimit(r, 25)

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	transactions, err := s.txRepo.ListByAddress(r.Context(), address, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"address":      address,
		"transactions": transactions,
	})
}

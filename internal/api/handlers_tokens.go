package api

import (
	"net/http"

	"github.com/chain-explorer/internal/storage"
	"github.com/chain-explorer/internal/types"
	"github.com/gorilla/mux"
)

// submitLogoRequest is the body of a token logo submission
type submitLogoRequest struct {
	LogoURL     string  `json:"logoUrl"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
}

// reviewLogoRequest is the body of an admin review decision
type reviewLogoRequest struct {
	Approve bool `json:"approve"`
}

// handleListTokens returns tokens, optionally filtered by logo state
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25)

	status := types.LogoStatus(r.URL.Query().Get("logoStatus"))
	switch status {
	case "":
		status = types.LogoApproved
	case types.LogoNone, types.LogoPending, types.LogoApproved:
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
			"logoStatus must be one of no_logo, pending, approved", nil)
		return
	}

	tokens, err := s.tokenRepo.ListByLogoStatus(r.Context(), status, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

// handleGetToken returns a single token record
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	token, err := s.tokenRepo.Get(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, token)
}

// handleSubmitTokenLogo records a logo submission and queues it for review
func (s *Server) handleSubmitTokenLogo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	var req submitLogoRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	if req.LogoURL == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "logoUrl is required", nil)
		return
	}

	token, err := s.tokenRepo.SubmitLogo(r.Context(), address, req.LogoURL, req.Description, req.Website)
	if err != nil {
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
		return
	}

	s.events.Publish(types.EventTokenLogoSubmitted, token)

	respondJSON(w, http.StatusOK, token)
}

// handleReviewTokenLogo applies an admin approval or rejection to a pending
// logo submission
func (s *Server) handleReviewTokenLogo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	var req reviewLogoRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	next := types.LogoNone
	if req.Approve {
		next = types.LogoApproved
	}

	token, err := s.tokenRepo.ReviewLogo(r.Context(), address, next)
	if err != nil {
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
		return
	}

	s.events.Publish(types.EventTokenLogoStatusChanged, token)

	respondJSON(w, http.StatusOK, token)
}

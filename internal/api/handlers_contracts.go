package api

import (
	"net/http"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/storage"
	"github.com/chain-explorer/internal/types"
	"github.com/gorilla/mux"
)

// verifyContractRequest is the body of a verification write-back
type verifyContractRequest struct {
	SourceCode          string `json:"sourceCode"`
	CompilerVersion     string `json:"compilerVersion"`
	OptimizationEnabled bool   `json:"optimizationEnabled"`
	OptimizationRuns    int    `json:"optimizationRuns"`
	ConstructorArgs     string `json:"constructorArgs"`
	ABI                 string `json:"abi"`
	ContractName        string `json:"contractName"`
}

// handleListVerifiedContracts returns verified contracts, newest first
func (s *Server) handleListVerifiedContracts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 25)

	contracts, err := s.contractRepo.ListVerified(r.Context(), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

// handleGetContract returns a single contract record
func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	contract, err := s.contractRepo.Get(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, contract)
}

// handleVerifyContract applies a successful verification result to a
// contract and announces it
func (s *Server) handleVerifyContract(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := storage.ValidateAddress(address); err != nil {
		respondWithError(w, err)
		return
	}

	var req verifyContractRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	if req.SourceCode == "" || req.CompilerVersion == "" || req.ContractName == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
			"sourceCode, compilerVersion and contractName are required", nil)
		return
	}

	payload := &models.VerificationPayload{
		SourceCode:          req.SourceCode,
		CompilerVersion:     req.CompilerVersion,
		OptimizationEnabled: req.OptimizationEnabled,
		OptimizationRuns:    req.OptimizationRuns,
		ConstructorArgs:     req.ConstructorArgs,
		ABI:                 req.ABI,
		ContractName:        req.ContractName,
	}

	if err := s.contractRepo.MarkVerified(r.Context(), address, payload); err != nil {
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
		return
	}

	contract, err := s.contractRepo.Get(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}

	s.events.Publish(types.EventContractVerified, contract)

	respondJSON(w, http.StatusOK, contract)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/chain-explorer/internal/storage"
)

// handleDailyStats returns per-day transaction counts and native volume
// over a trailing window
func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if s.statsRepo == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"stats backend is not configured", nil)
		return
	}

	days := 14
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
				"days must be between 1 and 365", nil)
			return
		}
		days = parsed
	}

	key := storage.DailyStatsKey(days)
	if s.cache != nil {
		var cached []*storage.DailyStat
		if s.cache.GetJSON(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, map[string]any{"days": days, "stats": cached})
			return
		}
	}

	stats, err := s.statsRepo.DailyStats(r.Context(), days)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if s.cache != nil {
		s.cache.SetJSON(r.Context(), key, stats)
	}

	respondJSON(w, http.StatusOK, map[string]any{"days": days, "stats": stats})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

const defaultDeadLetterLimit = 50

// DeadLetterHandler exposes permanently failed invocations for inspection
type DeadLetterHandler struct {
	deadLetters interfaces.DeadLetterStorage
	logger      arbor.ILogger
}

// NewDeadLetterHandler creates a new dead-letter handler
func NewDeadLetterHandler(deadLetters interfaces.DeadLetterStorage, logger arbor.ILogger) *DeadLetterHandler {
	return &DeadLetterHandler{
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// ListHandler returns recent dead-letter entries, newest first.
// GET /api/deadletters?limit=N
func (h *DeadLetterHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := defaultDeadLetterLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.deadLetters.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dead letters")
		WriteError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}
	if entries == nil {
		entries = []*models.DeadLetterEntry{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

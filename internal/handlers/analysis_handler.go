package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// AnalysisHandler exposes the run lifecycle over HTTP: submit a ticker,
// poll run status, read the latest report.
type AnalysisHandler struct {
	coordinator interfaces.RunCoordinator
	reports     interfaces.ReportStorage
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(coordinator interfaces.RunCoordinator, reports interfaces.ReportStorage, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		coordinator: coordinator,
		reports:     reports,
		validate:    validator.New(),
		logger:      logger,
	}
}

type analysisRequest struct {
	Ticker string `json:"ticker" validate:"required,min=1,max=10"`
}

// RequestAnalysisHandler starts an analysis run for a ticker.
// POST /api/analysis/request. The 202 response returns before any fetching
// happens; progress is read back via the status endpoint or the websocket.
func (h *AnalysisHandler) RequestAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "ticker is required (1-10 characters)")
		return
	}

	runID, err := h.coordinator.StartRun(r.Context(), req.Ticker)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("ticker", req.Ticker).
			Msg("Analysis request rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("ticker", req.Ticker).
		Str("run_id", runID).
		Msg("Analysis run accepted")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"ticker": strings.ToUpper(strings.TrimSpace(req.Ticker)),
		"status": "accepted",
	})
}

// GetStatusHandler returns the current state of a run.
// GET /api/analysis/status/{id}
func (h *AnalysisHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/analysis/status/")
	if runID == "" || strings.Contains(runID, "/") {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	status, err := h.coordinator.GetRunStatus(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// GetReportHandler returns the most recent report for a ticker.
// GET /api/analysis/report/{ticker}
func (h *AnalysisHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, "/api/analysis/report/")
	if ticker == "" || strings.Contains(ticker, "/") {
		WriteError(w, http.StatusBadRequest, "Ticker is required")
		return
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	report, err := h.reports.GetLatestReport(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "No report available for "+ticker)
			return
		}
		h.logger.Error().
			Err(err).
			Str("ticker", ticker).
			Msg("Failed to load report")
		WriteError(w, http.StatusInternalServerError, "Failed to load report")
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

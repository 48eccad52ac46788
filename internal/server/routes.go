package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (progress event relay)
	mux.HandleFunc("/ws", s.handlers.WebSocket.HandleWebSocket)

	// API routes - Analysis
	mux.HandleFunc("/api/analysis/request", s.handlers.Analysis.RequestAnalysisHandler) // POST - submit a ticker
	mux.HandleFunc("/api/analysis/status/", s.handlers.Analysis.GetStatusHandler)       // GET /{run_id}
	mux.HandleFunc("/api/analysis/report/", s.handlers.Analysis.GetReportHandler)       // GET /{ticker}

	// API routes - Operations
	mux.HandleFunc("/api/deadletters", s.handlers.DeadLetter.ListHandler) // GET - failed invocations

	// API routes - System
	mux.HandleFunc("/api/version", s.handlers.API.VersionHandler)
	mux.HandleFunc("/api/health", s.handlers.API.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handlers.API.NotFoundHandler)

	return mux
}

package server

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (global progress feed)
	mux.HandleFunc("/ws", s.app.WSHandler.ServeWS)

	// API routes - Crawl jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.CreateJobHandler)   // POST - submit crawl job
	mux.HandleFunc("/api/jobs/stats", s.app.StatusHandler.StatsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobRoutesHandler)  // GET /{id}, POST /{id}/cancel, GET /{id}/stream, GET /{id}/results

	// API routes - Chat (issue-grounded RAG chat)
	mux.HandleFunc("/api/chat", s.app.ChatHandler.ChatHandler)
	mux.HandleFunc("/api/chat/history/", s.app.ChatHandler.HistoryHandler)

	// API routes - Credentials
	mux.HandleFunc("/api/credentials", s.app.CredentialHandler.CredentialsHandler)       // POST (store), GET (fetch)
	mux.HandleFunc("/api/credentials/validate", s.app.CredentialHandler.ValidateHandler) // POST - live login probe

	// API routes - Search and issues
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)
	mux.HandleFunc("/api/issues", s.app.SearchHandler.IssuesHandler)
	mux.HandleFunc("/api/embeddings/backfill", s.app.SearchHandler.BackfillHandler)

	// Health and version
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	return mux
}

package main

import (
	"log/slog"
	"net/http"
)

// NewRouter registers all routes and wraps them with the middleware chain.
func NewRouter(h *StateHandler, cfg Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required; JWT middleware skips /healthz)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": cfg.StorageBackend})
	})

	// Settings
	mux.HandleFunc("GET /api/v1/users/{userId}/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/users/{userId}/settings", h.ReplaceSettings)
	mux.HandleFunc("POST /api/v1/users/{userId}/settings", h.ReplaceSettings)
	mux.HandleFunc("PATCH /api/v1/users/{userId}/settings", h.PatchSettings)

	// Consent
	mux.HandleFunc("GET /api/v1/users/{userId}/consent", h.GetConsent)
	mux.HandleFunc("GET /api/v1/users/{userId}/consent/snapshot", h.GetConsentSnapshot)
	mux.HandleFunc("PATCH /api/v1/users/{userId}/consent", h.PatchConsent)

	// Session identifiers
	mux.HandleFunc("GET /api/v1/users/{userId}/session", h.GetSession)
	mux.HandleFunc("PUT /api/v1/users/{userId}/session", h.PutSession)
	mux.HandleFunc("DELETE /api/v1/users/{userId}/session", h.DeleteSession)

	// Middleware chain: Recovery → RequestID → CORS → RequestLogging → JWTAuth → mux
	var handler http.Handler = mux
	handler = JWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.DevBypassAuth)(handler)
	handler = RequestLogging(logger)(handler)
	handler = CORS(cfg.CORSAllowOrigin)(handler)
	handler = RequestID()(handler)
	handler = Recovery(logger)(handler)

	return handler
}

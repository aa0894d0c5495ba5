package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Discovery
			r.Post("/discovery/start", s.handleStartDiscovery)
			r.Post("/discovery/stop", s.handleStopDiscovery)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{address}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleRemoveDevice)
					r.Post("/pair", s.handlePairDevice)
					r.Post("/connect", s.handleConnectDevice)
					r.Post("/disconnect", s.handleDisconnectDevice)

					// Link management for one device
					r.Post("/links", s.handleCreateLink)
					r.Delete("/links/{outputID}", s.handleDeleteLink)
					r.Put("/links/{outputID}/volume", s.handleSetLinkVolume)
				})
			})

			// Output and link views
			r.Get("/outputs", s.handleListOutputs)
			r.Get("/links", s.handleListLinks)

			// System status and event history
			r.Get("/system/status", s.handleSystemStatus)
			r.Get("/system/events", s.handleSystemEvents)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

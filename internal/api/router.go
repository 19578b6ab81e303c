package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/quickbars-hub/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(requirePermission(auth.PermEventSubscribe)).Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.With(requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.With(requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(requirePermission(auth.PermDeviceManage)).Delete("/", s.handleDeleteDevice)
					r.With(requirePermission(auth.PermDeviceRead)).Get("/entities", s.handleListEntities)
					r.With(requirePermission(auth.PermDeviceRead)).Get("/actions", s.handleListActions)
				})
			})

			r.Route("/discovery", func(r chi.Router) {
				r.With(requirePermission(auth.PermDeviceRead)).Get("/", s.handleListCandidates)
				r.With(requirePermission(auth.PermDiscoveryScan)).Post("/scan", s.handleScan)
			})

			r.Route("/pairing", func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceManage))
				r.Post("/start", s.handleStartPairing)
				r.Post("/confirm", s.handleConfirmPairing)
			})

			r.With(requirePermission(auth.PermDeviceOperate)).Post("/services/{name}", s.handleService)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"devices":        s.registry.Count(),
		"active_devices": len(s.registry.ListActive()),
		"ws_clients":     s.hub.ClientCount(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger) // Custom conditional HTTP logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(60 * time.Second))

	// WebSocket
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	// Presence channel auth
	r.Post("/api/realtime/auth", h.handleRealtimeAuth)

	// Guest profile
	r.Get("/api/user", h.handleGetUser)
	r.Patch("/api/user", h.handleUpdateUser)

	// Sessions
	r.Post("/api/session", h.handleCreateSession)
	r.Route("/api/session/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Post("/join", h.handleJoinSession)
		r.Get("/qr", h.handleSessionQR)
		r.Post("/chat", h.handleChat)

		// Round fallback surface
		r.Post("/vote", h.handleVote)
		r.Post("/countdown", h.handleCountdown)
		r.Post("/reveal", h.handleReveal)
		r.Post("/reveal-save", h.handleRevealSave)
		r.Post("/admin-edit", h.handleAdminEdit)
		r.Get("/spectator", h.handleGetSpectators)
		r.Post("/spectator", h.handleSetSpectator)
		r.Get("/active-story", h.handleGetActiveStory)
		r.Post("/active-story", h.handleSetActiveStory)

		// Stories
		r.Get("/stories", h.handleListStories)
		r.Post("/stories", h.handleCreateStory)
		r.Put("/stories/{storyId}", h.handleUpdateStory)
		r.Delete("/stories/{storyId}", h.handleDeleteStory)
		r.Put("/stories/{storyId}/average", h.handleManualAverage)
	})

	return r
}

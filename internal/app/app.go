package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/config"
	"github.com/harsharshh/storypointz/internal/handlers"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/repository"
	"github.com/harsharshh/storypointz/internal/services"
	"github.com/harsharshh/storypointz/internal/websocket"
)

// App holds all application dependencies
type App struct {
	log      logger.Logger
	cfg      *config.Config
	handlers *handlers.Handlers
	repo     *repository.Repository
	server   *http.Server
}

// New creates and initializes a new application instance
func New(log logger.Logger, cfg *config.Config) (*App, error) {
	repo, err := repository.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	authorizer := auth.New(cfg.RealtimeSecret)

	hub := websocket.New(log, authorizer)
	hub.Start()

	sessionService := services.NewSessionService(log, repo, hub, cfg.BaseURL)
	storyService := services.NewStoryService(log, repo, hub)
	roundService := services.NewRoundService(log, repo, hub)

	h := handlers.New(sessionService, storyService, roundService, authorizer, hub, log,
		cfg.CountdownSteps, time.Duration(cfg.CountdownStep))

	return &App{
		log:      log,
		cfg:      cfg,
		handlers: h,
		repo:     repo,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Run starts the HTTP server and blocks until it stops
func (a *App) Run() error {
	a.server = &http.Server{
		Addr:    a.cfg.ListenAddress,
		Handler: a.Router(),
	}

	a.log.Info("Server starting", "addr", a.cfg.ListenAddress, "base_url", a.cfg.BaseURL)
	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully and closes the database
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = a.server.Shutdown(shutdownCtx)
	}
	if closeErr := a.repo.Close(); err == nil {
		err = closeErr
	}
	a.log.Info("Server stopped")
	return err
}

package handlers

import (
	"time"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/services"
	"github.com/harsharshh/storypointz/internal/websocket"
)

// Identity headers carried by every authenticated request. The guest
// model has no passwords; the ID is minted at join time and kept by
// the client.
const (
	HeaderUserID   = "X-Spz-User-Id"
	HeaderUserName = "X-Spz-User-Name"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Session services.SessionServicer
	Story   services.StoryServicer
	Round   services.RoundServicer
	Auth    *auth.Authorizer
	Hub     *websocket.Hub
	Log     HTTPLogger

	// Countdown tuning handed to clients so every replica runs the
	// same local timer.
	CountdownSteps int
	CountdownStep  time.Duration
}

// HTTPLogger is an interface for loggers that support HTTP logging control
type HTTPLogger interface {
	IsHTTPLoggingEnabled() bool
}

// New creates a new Handlers instance with all dependencies
func New(
	session services.SessionServicer,
	story services.StoryServicer,
	round services.RoundServicer,
	authorizer *auth.Authorizer,
	hub *websocket.Hub,
	log HTTPLogger,
	countdownSteps int,
	countdownStep time.Duration,
) *Handlers {
	return &Handlers{
		Session:        session,
		Story:          story,
		Round:          round,
		Auth:           authorizer,
		Hub:            hub,
		Log:            log,
		CountdownSteps: countdownSteps,
		CountdownStep:  countdownStep,
	}
}

// NoopHTTPLogger is a test logger that always returns false for HTTP logging
type NoopHTTPLogger struct{}

func (NoopHTTPLogger) IsHTTPLoggingEnabled() bool { return false }

// NewForTesting creates a Handlers instance for API endpoint tests
func NewForTesting(
	session services.SessionServicer,
	story services.StoryServicer,
	round services.RoundServicer,
) *Handlers {
	return &Handlers{
		Session:        session,
		Story:          story,
		Round:          round,
		Auth:           auth.New("test-secret"),
		Log:            NoopHTTPLogger{},
		CountdownSteps: 3,
		CountdownStep:  time.Second,
	}
}

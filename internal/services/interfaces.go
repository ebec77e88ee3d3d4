package services

import (
	"context"

	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// Broadcaster pushes a server event to every subscriber of a session's
// presence channel. Implemented by the websocket hub.
type Broadcaster interface {
	Broadcast(channel, event string, payload interface{})
}

// SessionServicer defines the interface for session and guest user operations
type SessionServicer interface {
	CreateSession(ctx context.Context, name, creatorName string) (*models.Session, *models.User, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	JoinSession(ctx context.Context, sessionID, userID, name string) (*models.User, error)
	RequireMember(ctx context.Context, sessionID, userID string) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserName(ctx context.Context, userID, name string) (*models.User, error)
	SendChatMessage(ctx context.Context, sessionID string, msg roomsync.ChatMessage) (roomsync.ChatMessage, error)
	GenerateJoinQR(ctx context.Context, sessionID string) ([]byte, error)
}

// StoryServicer defines the interface for story operations
type StoryServicer interface {
	ListStories(ctx context.Context, sessionID string) ([]models.Story, error)
	GetStory(ctx context.Context, sessionID, storyID string) (*models.Story, error)
	CreateStory(ctx context.Context, sessionID, title string) (*models.Story, error)
	UpdateStoryTitle(ctx context.Context, sessionID, storyID, title string) (*models.Story, error)
	DeleteStory(ctx context.Context, sessionID, storyID string) error
	SetManualAverage(ctx context.Context, sessionID, storyID string, average float64) (*models.Story, error)
}

// RoundServicer defines the interface for live round operations
type RoundServicer interface {
	CastVote(ctx context.Context, sessionID, userID, value string) error
	StartCountdown(ctx context.Context, sessionID, by string) error
	Reveal(ctx context.Context, sessionID, by string) error
	SaveReveal(ctx context.Context, sessionID, storyID string, votes []models.StoryVote) (*models.Story, error)
	AdminEdit(ctx context.Context, sessionID, userID, value, by string) error
	SetSpectator(ctx context.Context, sessionID, userID string, spectator bool) error
	ListSpectators(ctx context.Context, sessionID string) ([]string, error)
	SetActiveStory(ctx context.Context, sessionID, userID, storyID string, roundActive bool) error
	GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error)
}

// Ensure concrete types implement interfaces
var (
	_ SessionServicer = (*SessionService)(nil)
	_ StoryServicer   = (*StoryService)(nil)
	_ RoundServicer   = (*RoundService)(nil)
)

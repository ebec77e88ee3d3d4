package repository

import (
	"context"

	"github.com/harsharshh/storypointz/internal/models"
)

// SessionRepository defines session data operations
type SessionRepository interface {
	CreateSession(ctx context.Context, id, name string) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	AddUserToSession(ctx context.Context, sessionID, userID string) error
	IsSessionMember(ctx context.Context, sessionID, userID string) (bool, error)
	SetActiveStory(ctx context.Context, sessionID, storyID string, roundActive bool) error
	GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error)
}

// UserRepository defines guest user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, id, name, email string) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserName(ctx context.Context, id, name string) error
	ListUserSessionIDs(ctx context.Context, userID string) ([]string, error)
}

// StoryRepository defines story data operations
type StoryRepository interface {
	CreateStory(ctx context.Context, id, sessionID, key, title string) error
	GetStory(ctx context.Context, sessionID, storyID string) (*models.Story, error)
	ListStories(ctx context.Context, sessionID string) ([]models.Story, error)
	UpdateStoryTitle(ctx context.Context, sessionID, storyID, title string) error
	DeleteStory(ctx context.Context, sessionID, storyID string) error
	CountStories(ctx context.Context, sessionID string) (int, error)
	SetStoryAverage(ctx context.Context, storyID string, average *float64, manual bool) error
}

// VoteRepository defines persisted vote operations
type VoteRepository interface {
	UpsertVote(ctx context.Context, userID, storyID, value string) error
	DeleteVote(ctx context.Context, userID, storyID string) error
	ListVotesForStory(ctx context.Context, storyID string) ([]models.StoryVote, error)
	DeleteVotesForStory(ctx context.Context, storyID string) error
}

// SpectatorRepository is the externally-owned spectator registry.
// Stored per session so every server instance sees the same flags;
// rows are deleted when the flag is cleared.
type SpectatorRepository interface {
	SetSpectator(ctx context.Context, sessionID, userID string, spectator bool) error
	ListSpectators(ctx context.Context, sessionID string) ([]string, error)
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	SessionRepository
	UserRepository
	StoryRepository
	VoteRepository
	SpectatorRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)

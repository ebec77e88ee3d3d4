package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/errors"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/internal/repository"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// SessionServiceRepository defines the repository methods needed by SessionService
type SessionServiceRepository interface {
	repository.SessionRepository
	repository.UserRepository
	repository.StoryRepository
}

// SessionService handles session lifecycle and guest user identity
type SessionService struct {
	log         logger.Logger
	repo        SessionServiceRepository
	broadcaster Broadcaster
	baseURL     string
}

// NewSessionService creates a new SessionService. baseURL is the
// externally visible server URL used when building join links.
func NewSessionService(log logger.Logger, repo SessionServiceRepository, broadcaster Broadcaster, baseURL string) *SessionService {
	return &SessionService{
		log:         log,
		repo:        repo,
		broadcaster: broadcaster,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// CreateSession creates a session with a default first story and the
// creating user already joined.
func (s *SessionService) CreateSession(ctx context.Context, name, creatorName string) (*models.Session, *models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrSessionNameRequired
	}
	creatorName = strings.TrimSpace(creatorName)
	if creatorName == "" {
		return nil, nil, ErrUserNameRequired
	}

	sessionID := uuid.NewString()
	if err := s.repo.CreateSession(ctx, sessionID, name); err != nil {
		return nil, nil, err
	}

	// Every session starts with one estimable story so the round has a
	// target before anyone adds their backlog.
	if err := s.repo.CreateStory(ctx, uuid.NewString(), sessionID, "S-1", "Untitled"); err != nil {
		return nil, nil, err
	}

	user, err := s.JoinSession(ctx, sessionID, "", creatorName)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("Session created", "session_id", sessionID, "name", name, "creator", user.ID)
	return &models.Session{ID: sessionID, Name: name}, user, nil
}

// GetSession fetches one session
func (s *SessionService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("session %s not found", id)
	}
	return session, err
}

// JoinSession attaches a guest user to a session, creating the user
// when no ID is supplied. Rejoining with a known ID is idempotent.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID, name string) (*models.User, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)

	var user *models.User
	if userID != "" {
		existing, err := s.repo.GetUser(ctx, userID)
		if err != nil && err != repository.ErrNotFound {
			return nil, err
		}
		user = existing
	}

	if user == nil {
		if name == "" {
			return nil, ErrUserNameRequired
		}
		if userID == "" {
			userID = uuid.NewString()
		}
		if err := s.repo.CreateUser(ctx, userID, name, ""); err != nil {
			return nil, err
		}
		user = &models.User{ID: userID, Name: name}
	} else if name != "" && name != user.Name {
		if err := s.repo.UpdateUserName(ctx, user.ID, name); err != nil {
			return nil, err
		}
		user.Name = name
	}

	if err := s.repo.AddUserToSession(ctx, sessionID, user.ID); err != nil {
		return nil, err
	}

	s.log.Info("User joined session", "session_id", sessionID, "user_id", user.ID)
	return user, nil
}

// RequireMember returns a forbidden error unless the user belongs to
// the session. Every round and story operation goes through this.
func (s *SessionService) RequireMember(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		return errors.Forbidden("missing user identity")
	}
	member, err := s.repo.IsSessionMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		return errors.Forbiddenf("user %s is not a member of session %s", userID, sessionID)
	}
	return nil
}

// GetUser fetches one guest user
func (s *SessionService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("user %s not found", id)
	}
	return user, err
}

// UpdateUserName renames a guest user and announces the new name on
// every session the user belongs to.
func (s *SessionService) UpdateUserName(ctx context.Context, userID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUserNameRequired
	}

	if err := s.repo.UpdateUserName(ctx, userID, name); err != nil {
		if err == repository.ErrNotFound {
			return nil, errors.NotFoundf("user %s not found", userID)
		}
		return nil, err
	}

	sessionIDs, err := s.repo.ListUserSessionIDs(ctx, userID)
	if err != nil {
		s.log.Warn("Failed to list sessions for rename broadcast", "user_id", userID, "error", err)
	}
	for _, sessionID := range sessionIDs {
		s.broadcast(sessionID, roomsync.EventUserName, roomsync.UserName{UserID: userID, Name: name})
	}

	s.log.Info("User renamed", "user_id", userID)
	return &models.User{ID: userID, Name: name}, nil
}

// SendChatMessage relays a chat line to the session's channel. Chat is
// transient: nothing is stored, and a missed message is simply gone.
// Author and timestamp are defaulted so minimal clients can omit them.
func (s *SessionService) SendChatMessage(ctx context.Context, sessionID string, msg roomsync.ChatMessage) (roomsync.ChatMessage, error) {
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.Body) == "" {
		return roomsync.ChatMessage{}, ErrChatMessageRequired
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return roomsync.ChatMessage{}, err
	}

	if msg.Author == "" {
		msg.Author = "Guest user"
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	s.broadcast(sessionID, roomsync.EventChatMessage, msg)
	s.log.Debug("Chat message relayed", "session_id", sessionID, "user_id", msg.UserID)
	return msg, nil
}

// GenerateJoinQR renders the session join link as a QR code PNG
func (s *SessionService) GenerateJoinQR(ctx context.Context, sessionID string) ([]byte, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	joinURL := fmt.Sprintf("%s/session/%s", s.baseURL, sessionID)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to generate QR code")
	}
	return png, nil
}

func (s *SessionService) broadcast(sessionID, event string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(channelFor(sessionID), event, payload)
}

// channelFor names the presence channel of a session
func channelFor(sessionID string) string {
	return auth.ChannelForSession(sessionID)
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/harsharshh/storypointz/internal/errors"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/internal/repository"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// StoryServiceRepository defines the repository methods needed by StoryService
type StoryServiceRepository interface {
	repository.StoryRepository
	repository.VoteRepository
	GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error)
	SetActiveStory(ctx context.Context, sessionID, storyID string, roundActive bool) error
}

// StoryService handles the per-session story backlog
type StoryService struct {
	log         logger.Logger
	repo        StoryServiceRepository
	broadcaster Broadcaster
}

// NewStoryService creates a new StoryService
func NewStoryService(log logger.Logger, repo StoryServiceRepository, broadcaster Broadcaster) *StoryService {
	return &StoryService{
		log:         log,
		repo:        repo,
		broadcaster: broadcaster,
	}
}

// ListStories returns a session's stories with stored averages
func (s *StoryService) ListStories(ctx context.Context, sessionID string) ([]models.Story, error) {
	return s.repo.ListStories(ctx, sessionID)
}

// GetStory fetches one story scoped to its session
func (s *StoryService) GetStory(ctx context.Context, sessionID, storyID string) (*models.Story, error) {
	story, err := s.repo.GetStory(ctx, sessionID, storyID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("story %s not found", storyID)
	}
	return story, err
}

// CreateStory appends a story with the next sequential key
func (s *StoryService) CreateStory(ctx context.Context, sessionID, title string) (*models.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrStoryTitleRequired
	}

	count, err := s.repo.CountStories(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := fmt.Sprintf("S-%d", count+1)
	if err := s.repo.CreateStory(ctx, id, sessionID, key, title); err != nil {
		return nil, err
	}

	s.log.Info("Story created", "session_id", sessionID, "story_id", id, "key", key)
	return &models.Story{ID: id, SessionID: sessionID, Key: key, Title: title}, nil
}

// UpdateStoryTitle renames a story
func (s *StoryService) UpdateStoryTitle(ctx context.Context, sessionID, storyID, title string) (*models.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrStoryTitleRequired
	}

	if err := s.repo.UpdateStoryTitle(ctx, sessionID, storyID, title); err != nil {
		if err == repository.ErrNotFound {
			return nil, errors.NotFoundf("story %s not found", storyID)
		}
		return nil, err
	}
	return s.GetStory(ctx, sessionID, storyID)
}

// DeleteStory removes a story, its persisted votes, and, when it was
// the active story, the session's active-story pointer.
func (s *StoryService) DeleteStory(ctx context.Context, sessionID, storyID string) error {
	if _, err := s.GetStory(ctx, sessionID, storyID); err != nil {
		return err
	}

	pointer, err := s.repo.GetActiveStory(ctx, sessionID)
	if err != nil && err != repository.ErrNotFound {
		return err
	}

	if err := s.repo.DeleteVotesForStory(ctx, storyID); err != nil {
		return err
	}
	if err := s.repo.DeleteStory(ctx, sessionID, storyID); err != nil {
		if err == repository.ErrNotFound {
			return errors.NotFoundf("story %s not found", storyID)
		}
		return err
	}

	if pointer != nil && pointer.StoryID == storyID {
		if err := s.repo.SetActiveStory(ctx, sessionID, "", false); err != nil {
			s.log.Warn("Failed to clear active story pointer", "session_id", sessionID, "error", err)
		}
	}

	s.log.Info("Story deleted", "session_id", sessionID, "story_id", storyID)
	return nil
}

// SetManualAverage overrides a story's stored average by hand and
// marks the override so a later reveal-save is known to replace it.
func (s *StoryService) SetManualAverage(ctx context.Context, sessionID, storyID string, average float64) (*models.Story, error) {
	if average < 0 {
		return nil, ErrInvalidAverage
	}
	if _, err := s.GetStory(ctx, sessionID, storyID); err != nil {
		return nil, err
	}

	if err := s.repo.SetStoryAverage(ctx, storyID, &average, true); err != nil {
		if err == repository.ErrNotFound {
			return nil, errors.NotFoundf("story %s not found", storyID)
		}
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(channelFor(sessionID), roomsync.EventStoryAvg, roomsync.StoryAvg{
			StoryID: storyID,
			Avg:     &average,
			Manual:  true,
		})
	}

	s.log.Info("Story average overridden", "session_id", sessionID, "story_id", storyID, "average", average)
	return s.GetStory(ctx, sessionID, storyID)
}

package services

import (
	"context"

	"github.com/harsharshh/storypointz/internal/errors"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/internal/repository"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// RoundServiceRepository defines the repository methods needed by RoundService
type RoundServiceRepository interface {
	repository.StoryRepository
	repository.VoteRepository
	repository.SpectatorRepository
	GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error)
	SetActiveStory(ctx context.Context, sessionID, storyID string, roundActive bool) error
}

// RoundService is the server half of the round protocol: the HTTP
// fallback broadcast surface plus the persistence bridge invoked on
// reveal. Live round state lives in the client replicas; the server
// only relays events and stores outcomes.
type RoundService struct {
	log         logger.Logger
	repo        RoundServiceRepository
	broadcaster Broadcaster
}

// NewRoundService creates a new RoundService
func NewRoundService(log logger.Logger, repo RoundServiceRepository, broadcaster Broadcaster) *RoundService {
	return &RoundService{
		log:         log,
		repo:        repo,
		broadcaster: broadcaster,
	}
}

// CastVote validates and broadcasts a vote. An empty value withdraws.
// Nothing is persisted until the reveal snapshot arrives.
func (s *RoundService) CastVote(ctx context.Context, sessionID, userID, value string) error {
	if value != "" && !roomsync.ValidToken(value) {
		return ErrInvalidVoteValue
	}

	spectators, err := s.repo.ListSpectators(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, id := range spectators {
		if id == userID {
			return ErrSpectatorVote
		}
	}

	s.broadcast(sessionID, roomsync.EventVoteCast, roomsync.VoteCast{UserID: userID, Value: value})
	return nil
}

// StartCountdown broadcasts the countdown start; replicas run their
// own timers from here.
func (s *RoundService) StartCountdown(ctx context.Context, sessionID, by string) error {
	s.broadcast(sessionID, roomsync.EventCountdown, roomsync.Countdown{By: by})
	return nil
}

// Reveal broadcasts an immediate reveal
func (s *RoundService) Reveal(ctx context.Context, sessionID, by string) error {
	s.broadcast(sessionID, roomsync.EventReveal, roomsync.Reveal{})
	return nil
}

// SaveReveal persists the revealing replica's vote snapshot and stores
// the recomputed average on the story, clearing any manual override.
// Replays of the same snapshot are idempotent.
func (s *RoundService) SaveReveal(ctx context.Context, sessionID, storyID string, votes []models.StoryVote) (*models.Story, error) {
	if _, err := s.repo.GetStory(ctx, sessionID, storyID); err != nil {
		if err == repository.ErrNotFound {
			return nil, errors.NotFoundf("story %s not found", storyID)
		}
		return nil, err
	}

	for _, v := range votes {
		if v.Value != "" && !roomsync.ValidToken(v.Value) {
			return nil, ErrInvalidVoteValue
		}
	}

	for _, v := range votes {
		if v.Value == "" {
			continue
		}
		if err := s.repo.UpsertVote(ctx, v.UserID, storyID, v.Value); err != nil {
			return nil, err
		}
	}

	return s.recomputeAverage(ctx, sessionID, storyID)
}

// AdminEdit broadcasts a post-reveal vote correction and, when the
// round's story already has saved votes, writes the correction through
// and refreshes the stored average.
func (s *RoundService) AdminEdit(ctx context.Context, sessionID, userID, value, by string) error {
	if value != "" && !roomsync.ValidToken(value) {
		return ErrInvalidVoteValue
	}

	s.broadcast(sessionID, roomsync.EventAdminEdit, roomsync.AdminEdit{UserID: userID, Value: value, By: by})

	pointer, err := s.repo.GetActiveStory(ctx, sessionID)
	if err != nil || pointer == nil || pointer.StoryID == "" {
		return err
	}

	saved, err := s.repo.ListVotesForStory(ctx, pointer.StoryID)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		// Round not saved yet; the live replicas hold the correction
		// until their reveal snapshot lands.
		return nil
	}

	if value == "" {
		err = s.repo.DeleteVote(ctx, userID, pointer.StoryID)
	} else {
		err = s.repo.UpsertVote(ctx, userID, pointer.StoryID, value)
	}
	if err != nil {
		return err
	}

	_, err = s.recomputeAverage(ctx, sessionID, pointer.StoryID)
	return err
}

// SetSpectator persists a spectator flag and broadcasts it
func (s *RoundService) SetSpectator(ctx context.Context, sessionID, userID string, spectator bool) error {
	if err := s.repo.SetSpectator(ctx, sessionID, userID, spectator); err != nil {
		return err
	}
	s.broadcast(sessionID, roomsync.EventSpectator, roomsync.Spectator{UserID: userID, Spectator: spectator})
	s.log.Info("Spectator flag changed", "session_id", sessionID, "user_id", userID, "spectator", spectator)
	return nil
}

// ListSpectators returns the session's spectator user ids
func (s *RoundService) ListSpectators(ctx context.Context, sessionID string) ([]string, error) {
	return s.repo.ListSpectators(ctx, sessionID)
}

// SetActiveStory repoints the session's live round at a story and
// broadcasts the switch, which resets every replica.
func (s *RoundService) SetActiveStory(ctx context.Context, sessionID, userID, storyID string, roundActive bool) error {
	if storyID != "" {
		if _, err := s.repo.GetStory(ctx, sessionID, storyID); err != nil {
			if err == repository.ErrNotFound {
				return errors.NotFoundf("story %s not found", storyID)
			}
			return err
		}
	}

	if err := s.repo.SetActiveStory(ctx, sessionID, storyID, roundActive); err != nil {
		if err == repository.ErrNotFound {
			return errors.NotFoundf("session %s not found", sessionID)
		}
		return err
	}

	s.broadcast(sessionID, roomsync.EventActiveStory, roomsync.ActiveStory{
		StoryID:     storyID,
		RoundActive: roundActive,
		By:          userID,
	})
	s.log.Info("Active story changed", "session_id", sessionID, "story_id", storyID, "round_active", roundActive)
	return nil
}

// GetActiveStory returns the persisted active-story pointer
func (s *RoundService) GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error) {
	pointer, err := s.repo.GetActiveStory(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("session %s not found", sessionID)
	}
	return pointer, err
}

// recomputeAverage recalculates a story's average from its saved votes
// and the session's spectator registry, stores it with the manual flag
// cleared, and broadcasts the fresh value.
func (s *RoundService) recomputeAverage(ctx context.Context, sessionID, storyID string) (*models.Story, error) {
	saved, err := s.repo.ListVotesForStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	spectatorIDs, err := s.repo.ListSpectators(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]string, len(saved))
	for _, v := range saved {
		votes[v.UserID] = v.Value
	}
	spectators := make(map[string]bool, len(spectatorIDs))
	for _, id := range spectatorIDs {
		spectators[id] = true
	}

	agg := roomsync.Aggregate(votes, spectators)
	if err := s.repo.SetStoryAverage(ctx, storyID, agg.Average, false); err != nil {
		return nil, err
	}

	s.broadcast(sessionID, roomsync.EventStoryAvg, roomsync.StoryAvg{
		StoryID: storyID,
		Avg:     agg.Average,
		Manual:  false,
	})
	s.log.Info("Story average saved", "session_id", sessionID, "story_id", storyID, "eligible", agg.EligibleCount)

	return s.repo.GetStory(ctx, sessionID, storyID)
}

func (s *RoundService) broadcast(sessionID, event string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(channelFor(sessionID), event, payload)
}

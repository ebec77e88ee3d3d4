package handlers

import (
	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// CreateSessionRequest creates a session with the creator joined
type CreateSessionRequest struct {
	Name     string `json:"name"`
	UserName string `json:"userName"`
}

// JoinSessionRequest attaches a (possibly new) guest user to a session
type JoinSessionRequest struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

// VoteRequest casts or withdraws a vote; empty value withdraws
type VoteRequest struct {
	UserID  string `json:"userId"`
	Value   string `json:"value"`
	StoryID string `json:"storyId,omitempty"`
}

// CountdownRequest starts the reveal countdown
type CountdownRequest struct {
	UserID string `json:"userId"`
}

// RevealRequest reveals the round immediately
type RevealRequest struct {
	UserID string `json:"userId"`
}

// RevealSaveRequest persists the revealing replica's vote snapshot
type RevealSaveRequest struct {
	UserID  string             `json:"userId"`
	StoryID string             `json:"storyId"`
	Votes   []models.StoryVote `json:"votes"`
}

// SpectatorRequest flips a participant's spectator flag
type SpectatorRequest struct {
	UserID    string `json:"userId"`
	Spectator bool   `json:"spectator"`
}

// ActiveStoryRequest repoints the live round
type ActiveStoryRequest struct {
	UserID      string `json:"userId"`
	StoryID     string `json:"storyId"`
	RoundActive bool   `json:"roundActive"`
}

// AdminEditRequest corrects another participant's revealed vote
type AdminEditRequest struct {
	UserID string `json:"userId"`
	Value  string `json:"value"`
	By     string `json:"by"`
}

// StoryRequest creates or renames a story
type StoryRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
}

// ManualAverageRequest overrides a story's stored average
type ManualAverageRequest struct {
	UserID string  `json:"userId"`
	Value  float64 `json:"value"`
}

// ChatRequest relays a chat message to the session's channel
type ChatRequest struct {
	UserID  string               `json:"userId"`
	Message roomsync.ChatMessage `json:"message"`
}

// UpdateUserRequest renames the calling guest user
type UpdateUserRequest struct {
	Name string `json:"name"`
}

// RealtimeAuthRequest signs a presence channel subscription
type RealtimeAuthRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

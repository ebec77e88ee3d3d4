package handlers

import "github.com/harsharshh/storypointz/internal/models"

// CreateSessionResponse returns the new session and the creator's identity
type CreateSessionResponse struct {
	Session *models.Session `json:"session"`
	User    *models.User    `json:"user"`
}

// SessionResponse is the full session view a joining client needs
type SessionResponse struct {
	Session     *models.Session            `json:"session"`
	Stories     []models.Story             `json:"stories"`
	ActiveStory *models.ActiveStoryPointer `json:"activeStory"`
	Spectators  []string                   `json:"spectators"`
	Countdown   CountdownSettings          `json:"countdown"`
}

// CountdownSettings tells clients how to run the shared reveal timer
type CountdownSettings struct {
	Steps      int   `json:"steps"`
	StepMillis int64 `json:"stepMillis"`
}

// SpectatorsResponse lists a session's spectator user ids
type SpectatorsResponse struct {
	UserIDs []string `json:"userIds"`
}

// RealtimeAuthResponse carries the subscription signature and the
// signed presence data the client must echo in its subscribe frame.
type RealtimeAuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

package roomsync

import (
	"encoding/json"
	"fmt"
)

// Server-originated event names (broadcast by the HTTP fallback layer).
const (
	EventVoteCast    = "vote-cast"
	EventCountdown   = "countdown"
	EventReveal      = "reveal"
	EventResetRound  = "reset-round"
	EventSpectator   = "spectator"
	EventAdminEdit   = "admin-edit"
	EventActiveStory = "active-story"
	EventStoryAvg    = "story-avg"
	EventUserName    = "user:name"
	EventChatMessage = "chat-message"
)

// Peer-originated client events. These are relayed between connected
// clients without touching the server round trip and may be dropped;
// anything that matters also has an HTTP fallback.
const (
	EventClientSyncRequest   = "client-sync-request"
	EventClientRevealNow     = "client-reveal-now"
	EventClientClearMyVote   = "client-clear-my-vote"
	EventClientResetRound    = "client-reset-round"
	EventClientCountdown     = "client-countdown"
	EventClientSpectator     = "client-spectator"
	EventClientSpectatorSync = "client-spectator-sync"
	EventClientAdminEdit     = "client-admin-edit"
)

// VoteCast carries one participant's (possibly empty) vote value.
// An empty value withdraws the vote.
type VoteCast struct {
	UserID string `json:"userId"`
	Value  string `json:"value"`
}

// Countdown announces that a participant started the reveal countdown.
type Countdown struct {
	By string `json:"by"`
}

// Reveal flips every replica to the revealed phase. It carries no
// payload; revealing an already-revealed round is a no-op.
type Reveal struct{}

// ResetRound clears the round on every replica. StoryID is set when
// the reset was caused by activating a different story.
type ResetRound struct {
	StoryID string `json:"storyId,omitempty"`
	By      string `json:"by,omitempty"`
}

// Spectator flags a participant in or out of spectator mode.
type Spectator struct {
	UserID    string `json:"userId"`
	Spectator bool   `json:"spectator"`
}

// SpectatorSync replays the full spectator set to a newly joined
// participant.
type SpectatorSync struct {
	UserIDs []string `json:"userIds"`
}

// SyncRequest asks peers already in the round for current phase and
// spectator state. From identifies the newcomer so replies can be
// scoped, though replies are broadcast and idempotent anyway.
type SyncRequest struct {
	From string `json:"from"`
}

// AdminEdit overwrites another participant's already-revealed vote.
type AdminEdit struct {
	UserID string `json:"userId"`
	Value  string `json:"value"`
	By     string `json:"by,omitempty"`
}

// ActiveStory moves every replica to a different story, resetting the
// round in the process.
type ActiveStory struct {
	StoryID     string `json:"storyId"`
	RoundActive bool   `json:"roundActive"`
	By          string `json:"by,omitempty"`
}

// StoryAvg publishes a story's stored average so open story lists
// update without a refetch. Manual marks a hand-entered override.
type StoryAvg struct {
	StoryID string   `json:"storyId"`
	Avg     *float64 `json:"avg"`
	Manual  bool     `json:"manual"`
}

// UserName announces a display-name change.
type UserName struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// ChatMessage is one transient session chat line. Chat is broadcast
// only and never persisted; the ID is client-minted so receivers can
// dedupe replays.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// DecodeEvent parses a raw payload into the typed struct for the given
// event name. Unknown event names and malformed payloads return an
// error so callers can drop the event instead of acting on garbage.
func DecodeEvent(name string, data json.RawMessage) (any, error) {
	var (
		v   any
		err error
	)
	switch name {
	case EventVoteCast:
		p := VoteCast{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventCountdown, EventClientCountdown:
		p := Countdown{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventReveal, EventClientRevealNow:
		v = Reveal{}
	case EventResetRound, EventClientResetRound:
		p := ResetRound{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventSpectator, EventClientSpectator:
		p := Spectator{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventClientSpectatorSync:
		p := SpectatorSync{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventClientSyncRequest:
		p := SyncRequest{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventAdminEdit, EventClientAdminEdit:
		p := AdminEdit{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventClientClearMyVote:
		p := VoteCast{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventActiveStory:
		p := ActiveStory{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventStoryAvg:
		p := StoryAvg{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventUserName:
		p := UserName{}
		err = json.Unmarshal(data, &p)
		v = p
	case EventChatMessage:
		p := ChatMessage{}
		err = json.Unmarshal(data, &p)
		v = p
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

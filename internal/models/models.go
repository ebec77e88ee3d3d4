package models

// Session is one shared estimation room.
type Session struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a per-browser guest identity attached to sessions it joined.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Story is one estimable work item inside a session. Average is the
// stored outcome of the last completed reveal, or a manual override
// when ManualOverride is set. The two provenances are mutually
// exclusive; last writer wins.
type Story struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"-"`
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Average        *float64 `json:"avg"`
	ManualOverride bool     `json:"manual,omitempty"`
}

// StoryVote is one persisted vote against a story, written through on
// reveal. At most one per (user, story); corrections overwrite.
type StoryVote struct {
	UserID  string `json:"userId"`
	StoryID string `json:"storyId"`
	Value   string `json:"value"`
}

// ActiveStoryPointer is the persisted per-session selection of which
// story the live round targets.
type ActiveStoryPointer struct {
	StoryID     string `json:"storyId"`
	RoundActive bool   `json:"roundActive"`
}

// WSMessage is the websocket frame envelope. Event names follow the
// presence-channel convention; Channel scopes the frame to one
// session's channel.
type WSMessage struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel,omitempty"`
	Payload interface{} `json:"data,omitempty"`
}

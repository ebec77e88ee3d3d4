package roomsync

import "context"

// Member is one connected participant as reported by the presence
// transport.
type Member struct {
	ID   string
	Name string
}

// EventHandler receives a decoded event payload.
type EventHandler func(payload any)

// Channel is the presence transport contract a replica binds to.
// Membership events fire exactly once per transition and are ordered
// per channel, but carry no ordering guarantee relative to custom
// events.
type Channel interface {
	// Bind registers a handler for a named event. Multiple handlers
	// per event are allowed; they run in registration order.
	Bind(event string, h EventHandler)

	// BindMemberAdded and BindMemberRemoved register membership
	// handlers.
	BindMemberAdded(h func(Member))
	BindMemberRemoved(h func(Member))

	// Trigger broadcasts a peer client event to every other current
	// subscriber. Delivery is best effort: no retry, no persistence,
	// and the sender never receives its own event.
	Trigger(event string, payload any) error

	// Members returns the current membership snapshot.
	Members() []Member

	// Me returns the local subscriber's identity.
	Me() Member

	// Close leaves the channel and releases resources.
	Close() error
}

// Fallback is the durable HTTP side of every peer broadcast. All
// methods are fire-and-forget from the replica's point of view:
// failures are logged by the implementation, never propagated into
// the round state machine.
type Fallback interface {
	CastVote(ctx context.Context, userID, value, storyID string) error
	StartCountdown(ctx context.Context, userID string) error
	Reveal(ctx context.Context, userID string) error
	SetSpectator(ctx context.Context, userID string, spectator bool) error
	SetActiveStory(ctx context.Context, userID, storyID string, roundActive bool) error
	AdminEdit(ctx context.Context, userID, value, by string) error
}

// Bridge persists a completed reveal. Invoked exactly once per
// transition into the revealed phase, and again after an admin
// correction. Best effort: a failed save never rolls back the locally
// displayed aggregate.
type Bridge interface {
	SaveReveal(ctx context.Context, storyID string, votes map[string]string) error
}

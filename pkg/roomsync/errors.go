package roomsync

import "errors"

var (
	// ErrInvalidVote is returned for values outside the deck and
	// reserved tokens.
	ErrInvalidVote = errors.New("invalid vote value")

	// ErrVotingClosed is returned when a vote arrives outside the
	// collecting and counting-down phases.
	ErrVotingClosed = errors.New("votes are not being accepted")

	// ErrSpectator is returned when a spectator tries to vote.
	ErrSpectator = errors.New("spectators cannot vote")

	// ErrBadPhase is returned when an action is not legal in the
	// current phase.
	ErrBadPhase = errors.New("action not allowed in current phase")

	// ErrCountdownRunning is returned when a countdown start is
	// requested while one is already in flight.
	ErrCountdownRunning = errors.New("countdown already running")
)

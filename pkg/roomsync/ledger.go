package roomsync

// Ledger is the per-round map from participant ID to submitted vote
// value. It is owned by a single replica and mutated only from that
// replica's event loop, so it carries no locking of its own.
//
// An empty value is a withdrawal: the entry is removed, making
// "withdrew" and "never voted" indistinguishable downstream.
type Ledger struct {
	votes map[string]string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{votes: make(map[string]string)}
}

// Set records a participant's vote, overwriting any prior value.
// Setting the withdrawal token clears the entry.
func (l *Ledger) Set(participantID, value string) {
	if value == TokenWithdrawn {
		delete(l.votes, participantID)
		return
	}
	l.votes[participantID] = value
}

// Clear removes a participant's vote.
func (l *Ledger) Clear(participantID string) {
	delete(l.votes, participantID)
}

// ClearAll wipes the ledger. Used on round reset.
func (l *Ledger) ClearAll() {
	l.votes = make(map[string]string)
}

// Merge replays a batch of votes, last event wins by arrival order.
// Withdrawal tokens in the batch clear entries. Embedders use this to
// seed a replica from a vote snapshot fetched over HTTP; the built-in
// late-join path converges through reveal replay instead.
func (l *Ledger) Merge(partial map[string]string) {
	for id, value := range partial {
		l.Set(id, value)
	}
}

// Get returns the participant's vote and whether one exists.
func (l *Ledger) Get(participantID string) (string, bool) {
	v, ok := l.votes[participantID]
	return v, ok
}

// Has reports whether a participant has a live vote.
func (l *Ledger) Has(participantID string) bool {
	_, ok := l.votes[participantID]
	return ok
}

// Len returns the number of live votes.
func (l *Ledger) Len() int {
	return len(l.votes)
}

// Snapshot returns a copy of the current votes.
func (l *Ledger) Snapshot() map[string]string {
	out := make(map[string]string, len(l.votes))
	for id, v := range l.votes {
		out[id] = v
	}
	return out
}

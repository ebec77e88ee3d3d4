package roomsync

import (
	"context"
	"sync"
	"time"
)

// Phase is the round lifecycle state of one replica.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCollecting
	PhaseCountingDown
	PhaseRevealed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCollecting:
		return "collecting"
	case PhaseCountingDown:
		return "counting-down"
	case PhaseRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// Logger is the subset of a structured logger the replica needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config wires a replica to its transport and durable fallbacks.
type Config struct {
	SessionID string
	StoryID   string // initial active story, may be empty
	Me        Member
	Channel   Channel
	Fallback  Fallback // optional; nil disables HTTP write-through
	Bridge    Bridge   // optional; nil disables reveal persistence
	Log       Logger   // optional

	// CountdownSteps and CountdownStep control the local reveal
	// countdown. Zero values mean 3 steps of one second.
	CountdownSteps int
	CountdownStep  time.Duration

	// OnStoryAvg receives story-average broadcasts so story lists can
	// update without a refetch. Optional.
	OnStoryAvg func(StoryAvg)

	// OnUpdate is called after any event changes replica state.
	// Optional; used by UI layers to re-render.
	OnUpdate func()
}

// Replica is one client's copy of the live round. There is no
// authoritative round anywhere; every connected client runs a replica
// and convergence comes from broadcast plus idempotent replay. All
// remote transitions are "move to the target phase if not already
// there", so duplicate and reordered events are harmless.
type Replica struct {
	cfg Config
	log Logger

	mu           sync.Mutex
	phase        Phase
	storyID      string
	ledger       *Ledger
	participants map[string]Member
	spectators   map[string]bool
	agg          *AggregateResult
	countdownGen int  // invalidates in-flight timers on reset
	counting     bool // a local countdown is running
	closed       bool
}

// NewReplica subscribes the replica to its channel, seeds membership,
// and asks peers for sync state. The caller owns the channel and
// closes the replica on session exit.
func NewReplica(cfg Config) *Replica {
	r := &Replica{
		cfg:          cfg,
		log:          cfg.Log,
		storyID:      cfg.StoryID,
		ledger:       NewLedger(),
		participants: make(map[string]Member),
		spectators:   make(map[string]bool),
	}
	if r.log == nil {
		r.log = noopLogger{}
	}
	if r.cfg.CountdownSteps <= 0 {
		r.cfg.CountdownSteps = 3
	}
	if r.cfg.CountdownStep <= 0 {
		r.cfg.CountdownStep = time.Second
	}
	r.phase = PhaseIdle
	if r.storyID != "" {
		r.phase = PhaseCollecting
	}

	ch := cfg.Channel
	r.participants[cfg.Me.ID] = cfg.Me
	for _, m := range ch.Members() {
		r.participants[m.ID] = m
	}

	ch.BindMemberAdded(r.onMemberAdded)
	ch.BindMemberRemoved(r.onMemberRemoved)
	ch.Bind(EventVoteCast, r.onVoteCast)
	ch.Bind(EventClientClearMyVote, r.onClearVote)
	ch.Bind(EventCountdown, r.onCountdown)
	ch.Bind(EventClientCountdown, r.onCountdown)
	ch.Bind(EventReveal, r.onReveal)
	ch.Bind(EventClientRevealNow, r.onReveal)
	ch.Bind(EventResetRound, r.onReset)
	ch.Bind(EventClientResetRound, r.onReset)
	ch.Bind(EventSpectator, r.onSpectator)
	ch.Bind(EventClientSpectator, r.onSpectator)
	ch.Bind(EventClientSpectatorSync, r.onSpectatorSync)
	ch.Bind(EventClientSyncRequest, r.onSyncRequest)
	ch.Bind(EventAdminEdit, r.onAdminEdit)
	ch.Bind(EventClientAdminEdit, r.onAdminEdit)
	ch.Bind(EventActiveStory, r.onActiveStory)
	ch.Bind(EventStoryAvg, r.onStoryAvg)

	// Late-join recovery: ask whoever is already in the round for
	// phase and spectator state. Best effort; a dropped request heals
	// on the next membership event.
	r.trigger(EventClientSyncRequest, SyncRequest{From: cfg.Me.ID})
	return r
}

// Phase returns the current local phase.
func (r *Replica) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// StoryID returns the active story id, empty when idle with no story.
func (r *Replica) StoryID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storyID
}

// Votes returns a snapshot of the ledger.
func (r *Replica) Votes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Snapshot()
}

// Participants returns the current membership snapshot.
func (r *Replica) Participants() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.participants))
	for _, m := range r.participants {
		out = append(out, m)
	}
	return out
}

// Spectators returns the ids currently flagged as spectators.
func (r *Replica) Spectators() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.spectators))
	for id, on := range r.spectators {
		if on {
			out = append(out, id)
		}
	}
	return out
}

// IsSpectator reports whether the given participant is a spectator.
func (r *Replica) IsSpectator(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spectators[id]
}

// Aggregate returns the revealed-round summary, or nil before reveal.
func (r *Replica) Aggregate() *AggregateResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agg == nil {
		return nil
	}
	cp := *r.agg
	return &cp
}

// Close cancels any running countdown and leaves the channel.
func (r *Replica) Close() error {
	r.mu.Lock()
	r.closed = true
	r.cancelCountdownLocked()
	r.mu.Unlock()
	return r.cfg.Channel.Close()
}

// SeedSpectators applies a spectator id list fetched over HTTP on
// load. Union semantics: seeding never unflags a locally known
// spectator, so it is safe relative to in-flight broadcasts.
func (r *Replica) SeedSpectators(ids []string) {
	r.mu.Lock()
	for _, id := range ids {
		r.spectators[id] = true
	}
	r.mu.Unlock()
	r.notify()
}

// SeedActiveStory applies the persisted active-story pointer fetched
// on load. A replica that already advanced past Idle keeps its state.
func (r *Replica) SeedActiveStory(storyID string, roundActive bool) {
	r.mu.Lock()
	if r.phase == PhaseIdle && storyID != "" {
		r.storyID = storyID
		if roundActive {
			r.phase = PhaseCollecting
		}
	}
	r.mu.Unlock()
	r.notify()
}

// CastVote records the local participant's vote optimistically and
// writes it through the HTTP fallback. An empty value withdraws; the
// withdrawal also goes out as a peer event so other replicas unmask
// the card immediately.
func (r *Replica) CastVote(ctx context.Context, value string) error {
	if !ValidToken(value) {
		return ErrInvalidVote
	}
	r.mu.Lock()
	if r.phase != PhaseCollecting && r.phase != PhaseCountingDown {
		r.mu.Unlock()
		return ErrVotingClosed
	}
	if r.spectators[r.cfg.Me.ID] {
		r.mu.Unlock()
		return ErrSpectator
	}
	r.ledger.Set(r.cfg.Me.ID, value)
	storyID := r.storyID
	r.mu.Unlock()
	r.notify()

	if value == TokenWithdrawn {
		r.trigger(EventClientClearMyVote, VoteCast{UserID: r.cfg.Me.ID})
	}
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.CastVote(ctx, r.cfg.Me.ID, value, storyID)
		}, "vote write-through failed")
	}
	return nil
}

// StartCountdown begins the shared 3-step countdown. Rejected while
// one is already running locally; every replica runs its own timer
// seeded by the same trigger event.
func (r *Replica) StartCountdown(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseCollecting {
		r.mu.Unlock()
		return ErrBadPhase
	}
	if r.counting {
		r.mu.Unlock()
		return ErrCountdownRunning
	}
	r.startCountdownLocked(true)
	r.mu.Unlock()
	r.notify()

	r.trigger(EventClientCountdown, Countdown{By: r.cfg.Me.ID})
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.StartCountdown(ctx, r.cfg.Me.ID)
		}, "countdown write-through failed")
	}
	return nil
}

// Reveal flips the round to revealed immediately, without a countdown.
func (r *Replica) Reveal(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseCollecting {
		r.mu.Unlock()
		return ErrBadPhase
	}
	r.revealLocked()
	r.saveRevealLocked()
	r.mu.Unlock()
	r.notify()

	r.trigger(EventClientRevealNow, Reveal{})
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.Reveal(ctx, r.cfg.Me.ID)
		}, "reveal write-through failed")
	}
	return nil
}

// Reset clears the round. With a non-empty storyID it doubles as
// "activate a different story".
func (r *Replica) Reset(ctx context.Context, storyID string) error {
	r.mu.Lock()
	r.resetLocked(storyID)
	active := r.phase == PhaseCollecting
	story := r.storyID
	r.mu.Unlock()
	r.notify()

	r.trigger(EventClientResetRound, ResetRound{StoryID: storyID, By: r.cfg.Me.ID})
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.SetActiveStory(ctx, r.cfg.Me.ID, story, active)
		}, "reset write-through failed")
	}
	return nil
}

// SetSpectator flips the local participant's spectator flag.
// Becoming a spectator mid-collection clears any live vote, since
// spectators cannot hold one.
func (r *Replica) SetSpectator(ctx context.Context, spectator bool) error {
	r.mu.Lock()
	r.applySpectatorLocked(r.cfg.Me.ID, spectator)
	r.mu.Unlock()
	r.notify()

	r.trigger(EventClientSpectator, Spectator{UserID: r.cfg.Me.ID, Spectator: spectator})
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.SetSpectator(ctx, r.cfg.Me.ID, spectator)
		}, "spectator write-through failed")
	}
	return nil
}

// AdminEdit overwrites another participant's revealed vote and
// re-aggregates. Any session member may correct; that trust tradeoff
// is deliberate for a collaborative estimation tool.
func (r *Replica) AdminEdit(ctx context.Context, userID, value string) error {
	if !ValidToken(value) {
		return ErrInvalidVote
	}
	r.mu.Lock()
	if r.phase != PhaseRevealed {
		r.mu.Unlock()
		return ErrBadPhase
	}
	r.ledger.Set(userID, value)
	r.recomputeLocked()
	storyID := r.storyID
	votes := r.ledger.Snapshot()
	r.mu.Unlock()
	r.notify()

	r.trigger(EventClientAdminEdit, AdminEdit{UserID: userID, Value: value, By: r.cfg.Me.ID})
	if r.cfg.Fallback != nil {
		r.fireAndForget(func() error {
			return r.cfg.Fallback.AdminEdit(ctx, userID, value, r.cfg.Me.ID)
		}, "admin edit write-through failed")
	}
	if r.cfg.Bridge != nil && storyID != "" {
		r.fireAndForget(func() error {
			return r.cfg.Bridge.SaveReveal(context.Background(), storyID, votes)
		}, "corrected reveal save failed")
	}
	return nil
}

// --- remote event handlers ---

func (r *Replica) onVoteCast(payload any) {
	p, ok := payload.(VoteCast)
	if !ok || !ValidToken(p.Value) {
		return
	}
	r.mu.Lock()
	if r.phase != PhaseCollecting && r.phase != PhaseCountingDown {
		r.mu.Unlock()
		return
	}
	r.ledger.Set(p.UserID, p.Value)
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onClearVote(payload any) {
	p, ok := payload.(VoteCast)
	if !ok {
		return
	}
	r.mu.Lock()
	if r.phase == PhaseCollecting || r.phase == PhaseCountingDown {
		r.ledger.Clear(p.UserID)
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onCountdown(payload any) {
	r.mu.Lock()
	if r.phase != PhaseCollecting || r.counting {
		r.mu.Unlock()
		return
	}
	r.startCountdownLocked(false)
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onReveal(payload any) {
	r.mu.Lock()
	if r.phase == PhaseRevealed {
		r.mu.Unlock()
		return
	}
	r.revealLocked()
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onReset(payload any) {
	p, _ := payload.(ResetRound)
	r.mu.Lock()
	r.resetLocked(p.StoryID)
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onSpectator(payload any) {
	p, ok := payload.(Spectator)
	if !ok {
		return
	}
	r.mu.Lock()
	r.applySpectatorLocked(p.UserID, p.Spectator)
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onSpectatorSync(payload any) {
	p, ok := payload.(SpectatorSync)
	if !ok {
		return
	}
	r.mu.Lock()
	for _, id := range p.UserIDs {
		r.spectators[id] = true
	}
	if r.phase == PhaseRevealed {
		r.recomputeLocked()
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onSyncRequest(payload any) {
	r.mu.Lock()
	revealed := r.phase == PhaseRevealed
	meSpectator := r.spectators[r.cfg.Me.ID]
	known := make([]string, 0, len(r.spectators))
	for id, on := range r.spectators {
		if on {
			known = append(known, id)
		}
	}
	r.mu.Unlock()

	if revealed {
		r.trigger(EventClientRevealNow, Reveal{})
	}
	if meSpectator {
		r.trigger(EventClientSpectator, Spectator{UserID: r.cfg.Me.ID, Spectator: true})
	}
	if len(known) > 0 {
		r.trigger(EventClientSpectatorSync, SpectatorSync{UserIDs: known})
	}
}

func (r *Replica) onAdminEdit(payload any) {
	p, ok := payload.(AdminEdit)
	if !ok || !ValidToken(p.Value) {
		return
	}
	r.mu.Lock()
	if r.phase != PhaseRevealed {
		r.mu.Unlock()
		return
	}
	r.ledger.Set(p.UserID, p.Value)
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onActiveStory(payload any) {
	p, ok := payload.(ActiveStory)
	if !ok {
		return
	}
	r.mu.Lock()
	r.resetLocked(p.StoryID)
	if p.StoryID != "" && !p.RoundActive {
		r.phase = PhaseIdle
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Replica) onStoryAvg(payload any) {
	p, ok := payload.(StoryAvg)
	if !ok {
		return
	}
	if r.cfg.OnStoryAvg != nil {
		r.cfg.OnStoryAvg(p)
	}
}

func (r *Replica) onMemberAdded(m Member) {
	r.mu.Lock()
	r.participants[m.ID] = m
	revealed := r.phase == PhaseRevealed
	meSpectator := r.spectators[r.cfg.Me.ID]
	r.mu.Unlock()
	r.notify()

	// Converge the newcomer without waiting for its sync request.
	// Both signals are idempotent on the receiving side.
	if revealed {
		r.trigger(EventClientRevealNow, Reveal{})
	}
	if meSpectator {
		r.trigger(EventClientSpectator, Spectator{UserID: r.cfg.Me.ID, Spectator: true})
	}
}

func (r *Replica) onMemberRemoved(m Member) {
	r.mu.Lock()
	delete(r.participants, m.ID)
	delete(r.spectators, m.ID)
	// A departed participant's in-progress vote is withdrawn; a
	// revealed vote stays frozen in the ledger.
	if r.phase == PhaseCollecting || r.phase == PhaseCountingDown {
		r.ledger.Clear(m.ID)
	} else if r.phase == PhaseRevealed {
		r.recomputeLocked()
	}
	r.mu.Unlock()
	r.notify()
}

// --- internal transitions (mu held) ---

// startCountdownLocked arms the local timer. initiated marks the
// replica whose participant pressed the button: that one also owns
// the reveal persistence, so a late joiner's empty ledger can never
// clobber the saved votes.
func (r *Replica) startCountdownLocked(initiated bool) {
	r.phase = PhaseCountingDown
	r.counting = true
	r.countdownGen++
	gen := r.countdownGen
	d := time.Duration(r.cfg.CountdownSteps) * r.cfg.CountdownStep
	time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.closed || gen != r.countdownGen || r.phase != PhaseCountingDown {
			r.mu.Unlock()
			return
		}
		r.counting = false
		r.revealLocked()
		if initiated {
			r.saveRevealLocked()
		}
		r.mu.Unlock()
		r.notify()
	})
}

func (r *Replica) cancelCountdownLocked() {
	r.countdownGen++
	r.counting = false
}

func (r *Replica) revealLocked() {
	r.cancelCountdownLocked()
	r.phase = PhaseRevealed
	r.recomputeLocked()
}

// saveRevealLocked writes the round through the persistence bridge.
// Only reveal initiators call this; replicas that merely received a
// reveal event keep their ledgers local.
func (r *Replica) saveRevealLocked() {
	if r.cfg.Bridge == nil || r.storyID == "" {
		return
	}
	storyID := r.storyID
	votes := r.ledger.Snapshot()
	r.fireAndForget(func() error {
		return r.cfg.Bridge.SaveReveal(context.Background(), storyID, votes)
	}, "reveal save failed")
}

func (r *Replica) resetLocked(storyID string) {
	r.cancelCountdownLocked()
	r.ledger.ClearAll()
	r.agg = nil
	if storyID != "" {
		r.storyID = storyID
	}
	if r.storyID == "" {
		r.phase = PhaseIdle
	} else {
		r.phase = PhaseCollecting
	}
}

func (r *Replica) recomputeLocked() {
	if r.phase != PhaseRevealed {
		return
	}
	res := Aggregate(r.ledger.Snapshot(), r.spectators)
	r.agg = &res
}

func (r *Replica) applySpectatorLocked(userID string, spectator bool) {
	if spectator {
		r.spectators[userID] = true
		if r.phase == PhaseCollecting || r.phase == PhaseCountingDown {
			r.ledger.Clear(userID)
		}
	} else {
		delete(r.spectators, userID)
	}
	if r.phase == PhaseRevealed {
		r.recomputeLocked()
	}
}

// --- plumbing ---

func (r *Replica) trigger(event string, payload any) {
	if err := r.cfg.Channel.Trigger(event, payload); err != nil {
		r.log.Debug("peer broadcast dropped", "event", event, "error", err)
	}
}

func (r *Replica) fireAndForget(fn func() error, msg string) {
	go func() {
		if err := fn(); err != nil {
			r.log.Warn(msg, "error", err)
		}
	}()
}

func (r *Replica) notify() {
	if r.cfg.OnUpdate != nil {
		r.cfg.OnUpdate()
	}
}

package repository

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harsharshh/storypointz/internal/models"
)

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// NewWithDB wraps an existing database handle. Used by tests that
// drive the repository against a mock connection.
func NewWithDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active_story_id TEXT,
			round_active BOOLEAN DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_users (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, user_id),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS stories (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			title TEXT NOT NULL,
			average REAL,
			manual_override BOOLEAN DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS story_votes (
			user_id TEXT NOT NULL,
			story_id TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, story_id),
			FOREIGN KEY (story_id) REFERENCES stories(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS spectators (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (session_id, user_id),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stories_session ON stories(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_story_votes_story ON story_votes(story_id)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// --- sessions ---

// CreateSession inserts a new session row
func (r *Repository) CreateSession(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name) VALUES (?, ?)`, id, name)
	return err
}

// GetSession fetches a session by id
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM sessions WHERE id = ?`, id).Scan(&s.ID, &s.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddUserToSession attaches a user to a session; re-joining is a no-op
func (r *Repository) AddUserToSession(ctx context.Context, sessionID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_users (session_id, user_id) VALUES (?, ?)`,
		sessionID, userID)
	return err
}

// IsSessionMember reports whether the user has joined the session
func (r *Repository) IsSessionMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM session_users WHERE session_id = ? AND user_id = ?`,
		sessionID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetActiveStory updates the session's active-story pointer.
// An empty storyID clears the pointer.
func (r *Repository) SetActiveStory(ctx context.Context, sessionID, storyID string, roundActive bool) error {
	var story any
	if storyID != "" {
		story = storyID
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active_story_id = ?, round_active = ? WHERE id = ?`,
		story, roundActive, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActiveStory returns the session's active-story pointer
func (r *Repository) GetActiveStory(ctx context.Context, sessionID string) (*models.ActiveStoryPointer, error) {
	var storyID sql.NullString
	var roundActive bool
	err := r.db.QueryRowContext(ctx,
		`SELECT active_story_id, round_active FROM sessions WHERE id = ?`,
		sessionID).Scan(&storyID, &roundActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.ActiveStoryPointer{StoryID: storyID.String, RoundActive: roundActive}, nil
}

// --- users ---

// CreateUser inserts a guest user
func (r *Repository) CreateUser(ctx context.Context, id, name, email string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`, id, name, email)
	return err
}

// GetUser fetches a user by id
func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var email sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Name, &email)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

// UpdateUserName renames a user
func (r *Repository) UpdateUserName(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserSessionIDs returns the ids of every session the user joined
func (r *Repository) ListUserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM session_users WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- stories ---

// CreateStory inserts a story row
func (r *Repository) CreateStory(ctx context.Context, id, sessionID, key, title string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stories (id, session_id, key, title) VALUES (?, ?, ?, ?)`,
		id, sessionID, key, title)
	return err
}

// GetStory fetches a story scoped to its session
func (r *Repository) GetStory(ctx context.Context, sessionID, storyID string) (*models.Story, error) {
	var s models.Story
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, key, title, average, manual_override
		 FROM stories WHERE id = ? AND session_id = ?`,
		storyID, sessionID).Scan(&s.ID, &s.SessionID, &s.Key, &s.Title, &avg, &s.ManualOverride)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		s.Average = &avg.Float64
	}
	return &s, nil
}

// ListStories returns a session's stories in creation order
func (r *Repository) ListStories(ctx context.Context, sessionID string) ([]models.Story, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, key, title, average, manual_override
		 FROM stories WHERE session_id = ? ORDER BY created_at, key`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		var s models.Story
		var avg sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Key, &s.Title, &avg, &s.ManualOverride); err != nil {
			return nil, err
		}
		if avg.Valid {
			s.Average = &avg.Float64
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// UpdateStoryTitle renames a story scoped to its session
func (r *Repository) UpdateStoryTitle(ctx context.Context, sessionID, storyID, title string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE stories SET title = ? WHERE id = ? AND session_id = ?`,
		title, storyID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStory removes a story and its votes
func (r *Repository) DeleteStory(ctx context.Context, sessionID, storyID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM story_votes WHERE story_id = ?`, storyID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM stories WHERE id = ? AND session_id = ?`, storyID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountStories returns the number of stories in a session
func (r *Repository) CountStories(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stories WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// SetStoryAverage stores a computed or manually overridden average.
// A nil average clears the stored value.
func (r *Repository) SetStoryAverage(ctx context.Context, storyID string, average *float64, manual bool) error {
	var avg any
	if average != nil {
		avg = *average
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE stories SET average = ?, manual_override = ? WHERE id = ?`,
		avg, manual, storyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- votes ---

// UpsertVote writes one persisted vote, last write wins
func (r *Repository) UpsertVote(ctx context.Context, userID, storyID, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO story_votes (user_id, story_id, value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, story_id) DO UPDATE SET value = excluded.value,
		 updated_at = CURRENT_TIMESTAMP`,
		userID, storyID, value)
	return err
}

// DeleteVote removes one persisted vote, used when an admin correction
// withdraws a vote after it was saved.
func (r *Repository) DeleteVote(ctx context.Context, userID, storyID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM story_votes WHERE user_id = ? AND story_id = ?`,
		userID, storyID)
	return err
}

// ListVotesForStory returns every persisted vote for a story
func (r *Repository) ListVotesForStory(ctx context.Context, storyID string) ([]models.StoryVote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, story_id, value FROM story_votes WHERE story_id = ?`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.StoryVote
	for rows.Next() {
		var v models.StoryVote
		if err := rows.Scan(&v.UserID, &v.StoryID, &v.Value); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// DeleteVotesForStory clears a story's persisted votes
func (r *Repository) DeleteVotesForStory(ctx context.Context, storyID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM story_votes WHERE story_id = ?`, storyID)
	return err
}

// --- spectators ---

// SetSpectator flags or unflags a user as a spectator for a session
func (r *Repository) SetSpectator(ctx context.Context, sessionID, userID string, spectator bool) error {
	if spectator {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO spectators (session_id, user_id) VALUES (?, ?)`,
			sessionID, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM spectators WHERE session_id = ? AND user_id = ?`,
		sessionID, userID)
	return err
}

// ListSpectators returns the user ids flagged for a session
func (r *Repository) ListSpectators(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM spectators WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

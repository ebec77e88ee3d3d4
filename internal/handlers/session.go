package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// identity returns the caller's user ID, from the request body value
// when present, falling back to the identity header.
func identity(r *http.Request, bodyUserID string) string {
	if bodyUserID != "" {
		return bodyUserID
	}
	return r.Header.Get(HeaderUserID)
}

// requireMember resolves the caller and checks session membership
func (h *Handlers) requireMember(r *http.Request, sessionID, bodyUserID string) (string, error) {
	userID := identity(r, bodyUserID)
	if err := h.Session.RequireMember(r.Context(), sessionID, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// handleCreateSession creates a session with a default story and the
// creator already joined.
func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	session, user, err := h.Session.CreateSession(r.Context(), req.Name, req.UserName)
	if err != nil {
		respondError(w, err)
		return
	}

	respondCreated(w, CreateSessionResponse{Session: session, User: user})
}

// handleGetSession returns the session with stories, active-story
// pointer and spectator registry, everything a joining client needs
// before its replica starts.
func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	session, err := h.Session.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	stories, err := h.Story.ListStories(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	pointer, err := h.Round.GetActiveStory(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	spectators, err := h.Round.ListSpectators(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, SessionResponse{
		Session:     session,
		Stories:     stories,
		ActiveStory: pointer,
		Spectators:  spectators,
		Countdown: CountdownSettings{
			Steps:      h.CountdownSteps,
			StepMillis: h.CountdownStep.Milliseconds(),
		},
	})
}

// handleJoinSession attaches a guest user to a session
func (h *Handlers) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, err := h.Session.JoinSession(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, user)
}

// handleChat broadcasts a transient chat message to the session.
// The normalized message (defaults applied) comes back so the sender
// can render exactly what everyone else received.
func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	msg, err := h.Session.SendChatMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, msg)
}

// handleSessionQR serves the join link as a QR code PNG
func (h *Handlers) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	png, err := h.Session.GenerateJoinQR(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// handleGetUser returns the calling guest user's profile
func (h *Handlers) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		respondError(w, Forbidden("missing "+HeaderUserID+" header"))
		return
	}

	user, err := h.Session.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, user)
}

// handleUpdateUser renames the calling guest user
func (h *Handlers) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		respondError(w, Forbidden("missing "+HeaderUserID+" header"))
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, err := h.Session.UpdateUserName(r.Context(), userID, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, user)
}

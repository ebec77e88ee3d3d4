package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleVote validates and broadcasts a vote; empty value withdraws
func (h *Handlers) handleVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	userID, err := h.requireMember(r, sessionID, req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.CastVote(r.Context(), sessionID, userID, req.Value); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "broadcast"})
}

// handleCountdown broadcasts a countdown start
func (h *Handlers) handleCountdown(w http.ResponseWriter, r *http.Request) {
	var req CountdownRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	userID, err := h.requireMember(r, sessionID, req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.StartCountdown(r.Context(), sessionID, userID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "broadcast"})
}

// handleReveal broadcasts an immediate reveal
func (h *Handlers) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	userID, err := h.requireMember(r, sessionID, req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.Reveal(r.Context(), sessionID, userID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "broadcast"})
}

// handleRevealSave persists the revealed vote snapshot and the
// recomputed story average.
func (h *Handlers) handleRevealSave(w http.ResponseWriter, r *http.Request) {
	var req RevealSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.StoryID == "" {
		respondError(w, BadRequest("storyId is required"))
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	story, err := h.Round.SaveReveal(r.Context(), sessionID, req.StoryID, req.Votes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, story)
}

// handleSetSpectator flips a spectator flag in the registry
func (h *Handlers) handleSetSpectator(w http.ResponseWriter, r *http.Request) {
	var req SpectatorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondError(w, BadRequest("userId is required"))
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.SetSpectator(r.Context(), sessionID, req.UserID, req.Spectator); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "saved"})
}

// handleGetSpectators lists the session's spectator registry
func (h *Handlers) handleGetSpectators(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	ids, err := h.Round.ListSpectators(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, SpectatorsResponse{UserIDs: ids})
}

// handleSetActiveStory repoints the live round
func (h *Handlers) handleSetActiveStory(w http.ResponseWriter, r *http.Request) {
	var req ActiveStoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	userID, err := h.requireMember(r, sessionID, req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.SetActiveStory(r.Context(), sessionID, userID, req.StoryID, req.RoundActive); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "saved"})
}

// handleGetActiveStory returns the persisted active-story pointer
func (h *Handlers) handleGetActiveStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	pointer, err := h.Round.GetActiveStory(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, pointer)
}

// handleAdminEdit corrects a revealed vote
func (h *Handlers) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	var req AdminEditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondError(w, BadRequest("userId is required"))
		return
	}

	sessionID := chi.URLParam(r, "id")
	by, err := h.requireMember(r, sessionID, req.By)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Round.AdminEdit(r.Context(), sessionID, req.UserID, req.Value, by); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "saved"})
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListStories returns the session's backlog with stored averages
func (h *Handlers) handleListStories(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	stories, err := h.Story.ListStories(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, stories)
}

// handleCreateStory appends a story to the backlog
func (h *Handlers) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req StoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	story, err := h.Story.CreateStory(r.Context(), sessionID, req.Title)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, story)
}

// handleUpdateStory renames a story
func (h *Handlers) handleUpdateStory(w http.ResponseWriter, r *http.Request) {
	var req StoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	story, err := h.Story.UpdateStoryTitle(r.Context(), sessionID, chi.URLParam(r, "storyId"), req.Title)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, story)
}

// handleDeleteStory removes a story and its persisted votes
func (h *Handlers) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, ""); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Story.DeleteStory(r.Context(), sessionID, chi.URLParam(r, "storyId")); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// handleManualAverage overrides a story's stored average by hand
func (h *Handlers) handleManualAverage(w http.ResponseWriter, r *http.Request) {
	var req ManualAverageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := h.requireMember(r, sessionID, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	story, err := h.Story.SetManualAverage(r.Context(), sessionID, chi.URLParam(r, "storyId"), req.Value)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, story)
}

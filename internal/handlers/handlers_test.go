package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/harsharshh/storypointz/internal/handlers"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/models"
	"github.com/harsharshh/storypointz/internal/services"
	"github.com/harsharshh/storypointz/internal/testutil"
	"github.com/harsharshh/storypointz/pkg/roomsync"
)

// recordingBroadcaster keeps broadcast events for assertions
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(channel, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

type testSetup struct {
	router      chi.Router
	broadcaster *recordingBroadcaster
	session     *models.Session
	user        *models.User
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()

	repo := testutil.NewTestRepository(t)
	log := logger.New()
	broadcaster := &recordingBroadcaster{}

	sessionSvc := services.NewSessionService(log, repo, broadcaster, "http://localhost:8080")
	storySvc := services.NewStoryService(log, repo, broadcaster)
	roundSvc := services.NewRoundService(log, repo, broadcaster)

	h := handlers.NewForTesting(sessionSvc, storySvc, roundSvc)

	session, user, err := sessionSvc.CreateSession(context.Background(), "Sprint", "Alice")
	if err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}

	return &testSetup{
		router:      h.Router(),
		broadcaster: broadcaster,
		session:     session,
		user:        user,
	}
}

// do issues a JSON request with the caller's identity header set
func (s *testSetup) do(t *testing.T, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(handlers.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleCreateSession(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session", map[string]string{
		"name":     "Planning",
		"userName": "Dana",
	}, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp handlers.CreateSessionResponse
	decodeBody(t, rec, &resp)
	if resp.Session == nil || resp.Session.Name != "Planning" {
		t.Errorf("unexpected session %+v", resp.Session)
	}
	if resp.User == nil || resp.User.Name != "Dana" {
		t.Errorf("unexpected user %+v", resp.User)
	}
}

func TestHandleCreateSession_Validation(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session", map[string]string{"name": ""}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = setup.do(t, http.MethodPost, "/api/session", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestHandleJoinSession(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/join",
		map[string]string{"name": "Bob"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var user models.User
	decodeBody(t, rec, &user)
	if user.ID == "" || user.Name != "Bob" {
		t.Errorf("unexpected user %+v", user)
	}

	rec = setup.do(t, http.MethodPost, "/api/session/nope/join",
		map[string]string{"name": "Bob"}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestHandleGetSession(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID, nil, setup.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp handlers.SessionResponse
	decodeBody(t, rec, &resp)
	if resp.Session == nil || resp.Session.ID != setup.session.ID {
		t.Errorf("unexpected session %+v", resp.Session)
	}
	if len(resp.Stories) != 1 || resp.Stories[0].Key != "S-1" {
		t.Errorf("expected default story, got %+v", resp.Stories)
	}
	if resp.ActiveStory == nil {
		t.Error("expected active-story pointer in response")
	}
}

func TestHandleGetSession_NonMember(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID, nil, "stranger")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-member, got %d", rec.Code)
	}

	rec = setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without identity, got %d", rec.Code)
	}
}

func TestHandleChat(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/chat",
		map[string]interface{}{
			"userId":  setup.user.ID,
			"message": map[string]string{"id": "m1", "userId": setup.user.ID, "body": "ready when you are"},
		}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !setup.broadcaster.has("chat-message") {
		t.Error("expected chat-message broadcast")
	}

	// The normalized message comes back with defaults applied
	var msg roomsync.ChatMessage
	decodeBody(t, rec, &msg)
	if msg.Body != "ready when you are" || msg.Author == "" || msg.Timestamp == "" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandleChat_Validation(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/chat",
		map[string]interface{}{
			"userId":  setup.user.ID,
			"message": map[string]string{"id": "m1", "body": "   "},
		}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank body, got %d", rec.Code)
	}
	if setup.broadcaster.has("chat-message") {
		t.Error("invalid message must not be broadcast")
	}
}

func TestHandleChat_NonMember(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/chat",
		map[string]interface{}{
			"userId":  "stranger",
			"message": map[string]string{"id": "m1", "body": "hello"},
		}, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if setup.broadcaster.has("chat-message") {
		t.Error("non-member chat must not be broadcast")
	}
}

func TestHandleVote(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/vote",
		map[string]string{"userId": setup.user.ID, "value": "8"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !setup.broadcaster.has("vote-cast") {
		t.Error("expected vote-cast broadcast")
	}
}

func TestHandleVote_InvalidToken(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/vote",
		map[string]string{"userId": setup.user.ID, "value": "42"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var apiErr map[string]string
	decodeBody(t, rec, &apiErr)
	if apiErr["code"] != "INVALID_VOTE_VALUE" {
		t.Errorf("expected INVALID_VOTE_VALUE code, got %s", apiErr["code"])
	}
}

func TestHandleVote_NonMember(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/vote",
		map[string]string{"userId": "stranger", "value": "5"}, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if setup.broadcaster.has("vote-cast") {
		t.Error("non-member vote must not be broadcast")
	}
}

func TestHandleCountdownAndReveal(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/countdown",
		map[string]string{"userId": setup.user.ID}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("countdown: expected 200, got %d", rec.Code)
	}
	rec = setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/reveal",
		map[string]string{"userId": setup.user.ID}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal: expected 200, got %d", rec.Code)
	}

	if !setup.broadcaster.has("countdown") || !setup.broadcaster.has("reveal") {
		t.Error("expected countdown and reveal broadcasts")
	}
}

func TestHandleRevealSave(t *testing.T) {
	setup := newTestSetup(t)

	var stories []models.Story
	rec := setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID+"/stories", nil, setup.user.ID)
	decodeBody(t, rec, &stories)

	rec = setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/reveal-save",
		map[string]interface{}{
			"userId":  setup.user.ID,
			"storyId": stories[0].ID,
			"votes":   []map[string]string{{"userId": setup.user.ID, "value": "5"}},
		}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var story models.Story
	decodeBody(t, rec, &story)
	if story.Average == nil || *story.Average != 5 {
		t.Errorf("expected stored average 5, got %+v", story.Average)
	}
	if !setup.broadcaster.has("story-avg") {
		t.Error("expected story-avg broadcast")
	}
}

func TestHandleRevealSave_MissingStory(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/reveal-save",
		map[string]interface{}{"userId": setup.user.ID, "votes": []map[string]string{}}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without storyId, got %d", rec.Code)
	}
}

func TestHandleSpectator(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/spectator",
		map[string]interface{}{"userId": setup.user.ID, "spectator": true}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID+"/spectator", nil, setup.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp handlers.SpectatorsResponse
	decodeBody(t, rec, &resp)
	if len(resp.UserIDs) != 1 || resp.UserIDs[0] != setup.user.ID {
		t.Errorf("unexpected spectators %v", resp.UserIDs)
	}
}

func TestHandleActiveStory(t *testing.T) {
	setup := newTestSetup(t)

	var stories []models.Story
	rec := setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID+"/stories", nil, setup.user.ID)
	decodeBody(t, rec, &stories)

	rec = setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/active-story",
		map[string]interface{}{"userId": setup.user.ID, "storyId": stories[0].ID, "roundActive": true}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID+"/active-story", nil, setup.user.ID)
	var pointer models.ActiveStoryPointer
	decodeBody(t, rec, &pointer)
	if pointer.StoryID != stories[0].ID || !pointer.RoundActive {
		t.Errorf("unexpected pointer %+v", pointer)
	}
	if !setup.broadcaster.has("active-story") {
		t.Error("expected active-story broadcast")
	}
}

func TestHandleAdminEdit(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/admin-edit",
		map[string]string{"userId": setup.user.ID, "value": "13", "by": setup.user.ID}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !setup.broadcaster.has("admin-edit") {
		t.Error("expected admin-edit broadcast")
	}

	rec = setup.do(t, http.MethodPost, "/api/session/"+setup.session.ID+"/admin-edit",
		map[string]string{"userId": "", "value": "13", "by": setup.user.ID}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without target user, got %d", rec.Code)
	}
}

func TestHandleStoriesCRUD(t *testing.T) {
	setup := newTestSetup(t)
	base := "/api/session/" + setup.session.ID + "/stories"

	rec := setup.do(t, http.MethodPost, base,
		map[string]string{"userId": setup.user.ID, "title": "Checkout flow"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Story
	decodeBody(t, rec, &created)
	if created.Key != "S-2" {
		t.Errorf("expected key S-2, got %s", created.Key)
	}

	rec = setup.do(t, http.MethodPut, fmt.Sprintf("%s/%s", base, created.ID),
		map[string]string{"userId": setup.user.ID, "title": "Renamed"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}

	rec = setup.do(t, http.MethodDelete, fmt.Sprintf("%s/%s", base, created.ID), nil, setup.user.ID)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}

	rec = setup.do(t, http.MethodGet, base, nil, setup.user.ID)
	var stories []models.Story
	decodeBody(t, rec, &stories)
	if len(stories) != 1 {
		t.Errorf("expected 1 story left, got %d", len(stories))
	}
}

func TestHandleManualAverage(t *testing.T) {
	setup := newTestSetup(t)

	var stories []models.Story
	rec := setup.do(t, http.MethodGet, "/api/session/"+setup.session.ID+"/stories", nil, setup.user.ID)
	decodeBody(t, rec, &stories)

	rec = setup.do(t, http.MethodPut,
		fmt.Sprintf("/api/session/%s/stories/%s/average", setup.session.ID, stories[0].ID),
		map[string]interface{}{"userId": setup.user.ID, "value": 8}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var story models.Story
	decodeBody(t, rec, &story)
	if story.Average == nil || *story.Average != 8 || !story.ManualOverride {
		t.Errorf("unexpected story %+v", story)
	}
}

func TestHandleUser(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodGet, "/api/user", nil, setup.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var user models.User
	decodeBody(t, rec, &user)
	if user.ID != setup.user.ID {
		t.Errorf("unexpected user %+v", user)
	}

	rec = setup.do(t, http.MethodPatch, "/api/user", map[string]string{"name": "Alicia"}, setup.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &user)
	if user.Name != "Alicia" {
		t.Errorf("expected renamed user, got %+v", user)
	}

	rec = setup.do(t, http.MethodGet, "/api/user", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without identity header, got %d", rec.Code)
	}
}

package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/handlers"
	"github.com/harsharshh/storypointz/internal/websocket"
)

func TestHandleRealtimeAuth_SignsForMember(t *testing.T) {
	setup := newTestSetup(t)
	channel := "presence-session-" + setup.session.ID

	rec := setup.do(t, http.MethodPost, "/api/realtime/auth", map[string]string{
		"socket_id":    "sock1",
		"channel_name": channel,
	}, setup.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp handlers.RealtimeAuthResponse
	decodeBody(t, rec, &resp)
	if resp.Auth == "" || resp.ChannelData == "" {
		t.Fatal("expected signature and channel data")
	}

	// Signature verifies against the test authorizer secret
	if !auth.New("test-secret").Verify("sock1", channel, []byte(resp.ChannelData), resp.Auth) {
		t.Error("expected signature to verify")
	}

	// Channel data announces the stored identity, not just the headers
	var member websocket.MemberInfo
	if err := json.Unmarshal([]byte(resp.ChannelData), &member); err != nil {
		t.Fatalf("failed to unmarshal channel data: %v", err)
	}
	if member.UserID != setup.user.ID || member.UserInfo.Name != "Alice" {
		t.Errorf("unexpected member info %+v", member)
	}
}

func TestHandleRealtimeAuth_FailsClosed(t *testing.T) {
	setup := newTestSetup(t)
	channel := "presence-session-" + setup.session.ID

	tests := []struct {
		name   string
		body   map[string]string
		userID string
		status int
	}{
		{"non-member", map[string]string{"socket_id": "s", "channel_name": channel}, "stranger", http.StatusForbidden},
		{"no identity", map[string]string{"socket_id": "s", "channel_name": channel}, "", http.StatusForbidden},
		{"bad channel", map[string]string{"socket_id": "s", "channel_name": "private-x"}, setup.user.ID, http.StatusForbidden},
		{"missing socket", map[string]string{"channel_name": channel}, setup.user.ID, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := setup.do(t, http.MethodPost, "/api/realtime/auth", tt.body, tt.userID)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleRealtimeAuth_UnknownSessionChannel(t *testing.T) {
	setup := newTestSetup(t)

	rec := setup.do(t, http.MethodPost, "/api/realtime/auth", map[string]string{
		"socket_id":    "sock1",
		"channel_name": "presence-session-nope",
	}, setup.user.ID)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unknown session, got %d", rec.Code)
	}
}

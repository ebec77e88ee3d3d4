package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/logger"
)

const testSecret = "test-secret"

// wireFrame mirrors the JSON a client sees on the wire
type wireFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := New(logger.New(), auth.New(testSecret))
	hub.Start()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)

	// Convert http://... to ws://...
	return hub, "ws" + server.URL[4:]
}

// dial connects a client and returns the connection plus the socket ID
// from the connection_established frame.
func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	f := readFrame(t, ws)
	if f.Event != EventConnectionEstablished {
		t.Fatalf("expected %s, got %s", EventConnectionEstablished, f.Event)
	}
	var data struct {
		SocketID string `json:"socket_id"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil || data.SocketID == "" {
		t.Fatalf("missing socket_id in %s", f.Data)
	}
	return ws, data.SocketID
}

func readFrame(t *testing.T, ws *websocket.Conn) wireFrame {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("failed to unmarshal frame %s: %v", raw, err)
	}
	return f
}

func sendFrame(t *testing.T, ws *websocket.Conn, f interface{}) {
	t.Helper()
	if err := ws.WriteJSON(f); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

// subscribeMember performs a full signed subscription and asserts success
func subscribeMember(t *testing.T, ws *websocket.Conn, socketID, channel, userID, name string) {
	t.Helper()

	channelData, _ := json.Marshal(map[string]interface{}{
		"user_id":   userID,
		"user_info": map[string]string{"name": name},
	})
	sig := auth.New(testSecret).Sign(socketID, channel, channelData)

	sendFrame(t, ws, map[string]interface{}{
		"event":   EventSubscribe,
		"channel": channel,
		"data": map[string]string{
			"auth":         sig,
			"channel_data": string(channelData),
		},
	})

	f := readFrame(t, ws)
	if f.Event != EventSubscriptionSucceeded {
		t.Fatalf("expected %s, got %s (%s)", EventSubscriptionSucceeded, f.Event, f.Data)
	}
	if f.Channel != channel {
		t.Fatalf("expected channel %s, got %s", channel, f.Channel)
	}
}

func TestNew_CreatesHubWithDependencies(t *testing.T) {
	hub := New(logger.New(), auth.New(testSecret))

	if hub == nil {
		t.Fatal("expected hub to be created")
	}
	if hub.clients == nil || hub.channels == nil {
		t.Error("expected maps to be initialized")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil || hub.subscribe == nil {
		t.Error("expected channels to be initialized")
	}
}

func TestServeWs_ConnectionEstablished(t *testing.T) {
	hub, url := newTestHub(t)

	_, socketID := dial(t, url)
	if socketID == "" {
		t.Fatal("expected a socket ID")
	}

	time.Sleep(50 * time.Millisecond)
	hub.mutex.RLock()
	clientCount := len(hub.clients)
	hub.mutex.RUnlock()

	if clientCount != 1 {
		t.Errorf("expected 1 client, got %d", clientCount)
	}
}

func TestSubscribe_SucceedsWithValidSignature(t *testing.T) {
	_, url := newTestHub(t)

	ws, socketID := dial(t, url)
	subscribeMember(t, ws, socketID, "presence-session-s1", "u1", "Alice")
}

func TestSubscribe_SnapshotContainsExistingMembers(t *testing.T) {
	_, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	channelData, _ := json.Marshal(map[string]interface{}{
		"user_id":   "u2",
		"user_info": map[string]string{"name": "Bob"},
	})
	ws2, sock2 := dial(t, url)
	sig := auth.New(testSecret).Sign(sock2, "presence-session-s1", channelData)
	sendFrame(t, ws2, map[string]interface{}{
		"event":   EventSubscribe,
		"channel": "presence-session-s1",
		"data": map[string]string{
			"auth":         sig,
			"channel_data": string(channelData),
		},
	})

	f := readFrame(t, ws2)
	if f.Event != EventSubscriptionSucceeded {
		t.Fatalf("expected %s, got %s", EventSubscriptionSucceeded, f.Event)
	}
	var data struct {
		Members []MemberInfo `json:"members"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal members: %v", err)
	}
	if len(data.Members) != 2 {
		t.Fatalf("expected 2 members in snapshot, got %d", len(data.Members))
	}

	// Existing member sees the newcomer
	f = readFrame(t, ws1)
	if f.Event != EventMemberAdded {
		t.Fatalf("expected %s, got %s", EventMemberAdded, f.Event)
	}
	var member MemberInfo
	if err := json.Unmarshal(f.Data, &member); err != nil || member.UserID != "u2" {
		t.Errorf("expected member_added for u2, got %s", f.Data)
	}
}

func TestSubscribe_RejectsBadSignature(t *testing.T) {
	_, url := newTestHub(t)

	ws, _ := dial(t, url)
	channelData := `{"user_id":"u1","user_info":{"name":"Mallory"}}`

	sendFrame(t, ws, map[string]interface{}{
		"event":   EventSubscribe,
		"channel": "presence-session-s1",
		"data": map[string]string{
			"auth":         "0000",
			"channel_data": channelData,
		},
	})

	f := readFrame(t, ws)
	if f.Event != EventSubscriptionError {
		t.Errorf("expected %s, got %s", EventSubscriptionError, f.Event)
	}
}

func TestSubscribe_RejectsNonPresenceChannel(t *testing.T) {
	_, url := newTestHub(t)

	ws, socketID := dial(t, url)
	channelData := []byte(`{"user_id":"u1","user_info":{"name":"Alice"}}`)
	sig := auth.New(testSecret).Sign(socketID, "private-admin", channelData)

	sendFrame(t, ws, map[string]interface{}{
		"event":   EventSubscribe,
		"channel": "private-admin",
		"data": map[string]string{
			"auth":         sig,
			"channel_data": string(channelData),
		},
	})

	f := readFrame(t, ws)
	if f.Event != EventSubscriptionError {
		t.Errorf("expected %s, got %s", EventSubscriptionError, f.Event)
	}
}

func TestClientEvent_RelayedToPeersOnly(t *testing.T) {
	_, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	ws2, sock2 := dial(t, url)
	subscribeMember(t, ws2, sock2, "presence-session-s1", "u2", "Bob")
	readFrame(t, ws1) // member_added for u2

	sendFrame(t, ws1, map[string]interface{}{
		"event":   "client-reveal-now",
		"channel": "presence-session-s1",
		"data":    map[string]string{"from": "u1"},
	})

	f := readFrame(t, ws2)
	if f.Event != "client-reveal-now" {
		t.Fatalf("expected relay of client-reveal-now, got %s", f.Event)
	}
	var data struct {
		From string `json:"from"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil || data.From != "u1" {
		t.Errorf("expected relayed payload, got %s", f.Data)
	}

	// Sender must not receive its own event
	ws1.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, raw, err := ws1.ReadMessage(); err == nil {
		t.Errorf("sender received its own event: %s", raw)
	}
}

func TestClientEvent_NotRelayedWithoutMembership(t *testing.T) {
	_, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	// ws2 never subscribes but tries to inject
	ws2, _ := dial(t, url)
	sendFrame(t, ws2, map[string]interface{}{
		"event":   "client-reset-round",
		"channel": "presence-session-s1",
		"data":    map[string]string{"by": "intruder"},
	})

	ws1.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, raw, err := ws1.ReadMessage(); err == nil {
		t.Errorf("member received event from non-member: %s", raw)
	}
}

func TestBroadcast_ReachesAllChannelMembers(t *testing.T) {
	hub, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	ws2, sock2 := dial(t, url)
	subscribeMember(t, ws2, sock2, "presence-session-s1", "u2", "Bob")
	readFrame(t, ws1) // member_added for u2

	// A member of another session must not see it
	ws3, sock3 := dial(t, url)
	subscribeMember(t, ws3, sock3, "presence-session-other", "u3", "Carol")

	hub.Broadcast("presence-session-s1", "vote-cast", map[string]string{
		"userId": "u1",
		"value":  "5",
	})

	for i, ws := range []*websocket.Conn{ws1, ws2} {
		f := readFrame(t, ws)
		if f.Event != "vote-cast" {
			t.Errorf("client %d: expected vote-cast, got %s", i+1, f.Event)
		}
	}

	ws3.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, raw, err := ws3.ReadMessage(); err == nil {
		t.Errorf("other session received event: %s", raw)
	}
}

func TestDisconnect_AnnouncesMemberRemoved(t *testing.T) {
	_, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	ws2, sock2 := dial(t, url)
	subscribeMember(t, ws2, sock2, "presence-session-s1", "u2", "Bob")
	readFrame(t, ws1) // member_added for u2

	ws2.Close()

	f := readFrame(t, ws1)
	if f.Event != EventMemberRemoved {
		t.Fatalf("expected %s, got %s", EventMemberRemoved, f.Event)
	}
	var data struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil || data.UserID != "u2" {
		t.Errorf("expected member_removed for u2, got %s", f.Data)
	}
}

func TestUnsubscribe_LeavesChannel(t *testing.T) {
	hub, url := newTestHub(t)

	ws1, sock1 := dial(t, url)
	subscribeMember(t, ws1, sock1, "presence-session-s1", "u1", "Alice")

	ws2, sock2 := dial(t, url)
	subscribeMember(t, ws2, sock2, "presence-session-s1", "u2", "Bob")
	readFrame(t, ws1) // member_added for u2

	sendFrame(t, ws2, map[string]interface{}{
		"event":   EventUnsubscribe,
		"channel": "presence-session-s1",
	})

	f := readFrame(t, ws1)
	if f.Event != EventMemberRemoved {
		t.Fatalf("expected %s, got %s", EventMemberRemoved, f.Event)
	}

	// Broadcasts no longer reach the departed client
	hub.Broadcast("presence-session-s1", "reveal", map[string]string{})
	readFrame(t, ws1)
	ws2.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, raw, err := ws2.ReadMessage(); err == nil {
		t.Errorf("unsubscribed client received event: %s", raw)
	}
}

func TestDisconnect_UnregistersClient(t *testing.T) {
	hub, url := newTestHub(t)

	ws, _ := dial(t, url)
	time.Sleep(50 * time.Millisecond)

	ws.Close()
	time.Sleep(200 * time.Millisecond)

	hub.mutex.RLock()
	clientCount := len(hub.clients)
	hub.mutex.RUnlock()

	if clientCount != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", clientCount)
	}
}

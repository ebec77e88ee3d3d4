package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/logger"
	"github.com/harsharshh/storypointz/internal/models"
)

// Event names used by the hub itself. Everything else on the wire is
// either a server round event or a peer-relayed client-* event.
const (
	EventConnectionEstablished = "connection_established"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// MemberInfo is the presence identity a client announces when
// subscribing. It is covered by the subscription signature.
type MemberInfo struct {
	UserID   string `json:"user_id"`
	UserInfo struct {
		Name string `json:"name"`
	} `json:"user_info"`
}

// subscribeData is the payload of a subscribe frame
type subscribeData struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

// frame is an incoming websocket frame before payload decoding
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// message is an outgoing channel-scoped message queued on the hub
type message struct {
	channel string
	event   string
	payload interface{}
	exclude *Client // sender of a relayed client event, nil for server events
}

type subscribeRequest struct {
	client *Client
	frame  frame
}

// Hub maintains the set of active clients and their presence channel
// memberships. All membership state is owned by the run goroutine.
type Hub struct {
	log        logger.Logger
	authorizer *auth.Authorizer

	clients  map[*Client]bool
	channels map[string]map[*Client]*MemberInfo

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscribeRequest
	unsubscribe chan subscribeRequest
	broadcast   chan message
	mutex       sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan models.WSMessage
	socketID string
}

// SocketID returns the identifier assigned to this connection
func (c *Client) SocketID() string {
	return c.socketID
}

// New creates a new Hub instance with injected dependencies
func New(log logger.Logger, authorizer *auth.Authorizer) *Hub {
	return &Hub{
		log:         log,
		authorizer:  authorizer,
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]*MemberInfo),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscribeRequest),
		unsubscribe: make(chan subscribeRequest),
		broadcast:   make(chan message),
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// run handles client registration, channel membership and message fanout
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.log.Debug("Client connected", "socket_id", client.socketID, "total_clients", len(h.clients))

			client.send <- models.WSMessage{
				Event:   EventConnectionEstablished,
				Payload: map[string]interface{}{"socket_id": client.socketID},
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			h.handleSubscribe(req)

		case req := <-h.unsubscribe:
			h.leaveChannel(req.client, req.frame.Channel)

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

// removeClient drops a client from every channel it joined and
// announces its departure to remaining members.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.mutex.Unlock()

	for channel := range h.channels {
		h.leaveChannel(client, channel)
	}
	h.log.Debug("Client disconnected", "socket_id", client.socketID)
}

func (h *Hub) handleSubscribe(req subscribeRequest) {
	client := req.client
	channel := req.frame.Channel

	var data subscribeData
	if err := json.Unmarshal(req.frame.Data, &data); err != nil {
		h.subscriptionError(client, channel, "malformed subscribe frame")
		return
	}

	if _, ok := auth.SessionIDFromChannel(channel); !ok {
		h.subscriptionError(client, channel, "unknown channel")
		return
	}

	if !h.authorizer.Verify(client.socketID, channel, []byte(data.ChannelData), data.Auth) {
		h.log.Warn("Rejected subscription with bad signature", "socket_id", client.socketID, "channel", channel)
		h.subscriptionError(client, channel, "forbidden")
		return
	}

	var member MemberInfo
	if err := json.Unmarshal([]byte(data.ChannelData), &member); err != nil || member.UserID == "" {
		h.subscriptionError(client, channel, "malformed channel data")
		return
	}

	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Client]*MemberInfo)
		h.channels[channel] = members
	}
	members[client] = &member

	// Snapshot before announcing so the newcomer sees itself exactly once.
	snapshot := make([]MemberInfo, 0, len(members))
	seen := make(map[string]bool)
	for _, m := range members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		snapshot = append(snapshot, *m)
	}

	client.trySend(models.WSMessage{
		Event:   EventSubscriptionSucceeded,
		Channel: channel,
		Payload: map[string]interface{}{"members": snapshot},
	})

	h.fanout(message{
		channel: channel,
		event:   EventMemberAdded,
		payload: member,
		exclude: client,
	})
	h.log.Debug("Client subscribed", "socket_id", client.socketID, "channel", channel, "user_id", member.UserID)
}

// leaveChannel removes one client from one channel, announcing
// member_removed only when no other connection of the same user remains.
func (h *Hub) leaveChannel(client *Client, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		return
	}
	member, ok := members[client]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.channels, channel)
	}

	for _, m := range members {
		if m.UserID == member.UserID {
			return
		}
	}
	h.fanout(message{
		channel: channel,
		event:   EventMemberRemoved,
		payload: map[string]interface{}{"user_id": member.UserID},
	})
}

func (h *Hub) subscriptionError(client *Client, channel, reason string) {
	client.trySend(models.WSMessage{
		Event:   EventSubscriptionError,
		Channel: channel,
		Payload: map[string]interface{}{"message": reason},
	})
}

// fanout delivers a message to every member of its channel, skipping
// the excluded sender and dropping clients that cannot keep up.
func (h *Hub) fanout(msg message) {
	members, ok := h.channels[msg.channel]
	if !ok {
		return
	}
	if msg.exclude != nil {
		if _, member := members[msg.exclude]; !member {
			// Relayed events require sender membership.
			return
		}
	}
	out := models.WSMessage{
		Event:   msg.event,
		Channel: msg.channel,
		Payload: msg.payload,
	}
	for client := range members {
		if client == msg.exclude {
			continue
		}
		if !client.trySend(out) {
			// Client's send channel is full, unregister
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// trySend queues a message without blocking the hub loop
func (c *Client) trySend(msg models.WSMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Broadcast sends a server event to every subscriber of a session's
// presence channel. It implements services.Broadcaster.
func (h *Hub) Broadcast(channel, event string, payload interface{}) {
	h.broadcast <- message{
		channel: channel,
		event:   event,
		payload: payload,
	}
}

// readPump pumps frames from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.hub.log.Debug("Dropping malformed frame", "socket_id", c.socketID)
			continue
		}

		switch {
		case f.Event == EventSubscribe:
			c.hub.subscribe <- subscribeRequest{client: c, frame: f}
		case f.Event == EventUnsubscribe:
			c.hub.unsubscribe <- subscribeRequest{client: c, frame: f}
		case strings.HasPrefix(f.Event, "client-"):
			// Peer events are relayed verbatim to everyone else on the
			// channel. The hub only checks the sender is a member.
			c.hub.relayClientEvent(c, f)
		default:
			c.hub.log.Debug("Ignoring frame", "event", f.Event, "socket_id", c.socketID)
		}
	}
}

// relayClientEvent forwards a client-* frame to the sender's channel peers
func (h *Hub) relayClientEvent(sender *Client, f frame) {
	h.broadcast <- message{
		channel: f.Channel,
		event:   f.Event,
		payload: f.Data,
		exclude: sender,
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			msgBytes, _ := json.Marshal(msg)
			w.Write(msgBytes)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan models.WSMessage, 256),
		socketID: auth.NewSocketID(),
	}
	h.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ChannelPrefix is the prefix of every presence channel name. The
// remainder of the name is the session ID the channel belongs to.
const ChannelPrefix = "presence-session-"

// Authorizer signs and verifies presence channel subscriptions.
// Clients POST to the auth endpoint before subscribing; the hub
// rejects subscribe frames whose signature does not verify.
type Authorizer struct {
	secret []byte
}

// New creates an Authorizer with the given shared secret
func New(secret string) *Authorizer {
	return &Authorizer{secret: []byte(secret)}
}

// Sign produces the subscription signature for a socket and channel.
// channelData is the JSON-encoded member info that will be announced
// to peers; it is covered by the signature so it cannot be forged.
func (a *Authorizer) Sign(socketID, channel string, channelData []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(socketID))
	mac.Write([]byte(":"))
	mac.Write([]byte(channel))
	mac.Write([]byte(":"))
	mac.Write(channelData)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a subscription signature in constant time
func (a *Authorizer) Verify(socketID, channel string, channelData []byte, signature string) bool {
	expected := a.Sign(socketID, channel, channelData)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SessionIDFromChannel extracts the session ID from a presence channel
// name. Returns false if the name is not a presence channel.
func SessionIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, ChannelPrefix) {
		return "", false
	}
	id := channel[len(ChannelPrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// ChannelForSession builds the presence channel name for a session
func ChannelForSession(sessionID string) string {
	return ChannelPrefix + sessionID
}

// NewSocketID generates a random socket identifier for a hub connection
func NewSocketID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

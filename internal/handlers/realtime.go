package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/harsharshh/storypointz/internal/auth"
	"github.com/harsharshh/storypointz/internal/websocket"
)

// handleRealtimeAuth signs a presence channel subscription for a
// session member. The returned channel_data is the exact byte string
// covered by the signature; the client echoes both in its subscribe
// frame and the hub verifies before joining. Fails closed.
func (h *Handlers) handleRealtimeAuth(w http.ResponseWriter, r *http.Request) {
	var req RealtimeAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.SocketID == "" || req.ChannelName == "" {
		respondError(w, BadRequest("socket_id and channel_name are required"))
		return
	}

	sessionID, ok := auth.SessionIDFromChannel(req.ChannelName)
	if !ok {
		respondError(w, Forbidden("unknown channel"))
		return
	}

	userID := r.Header.Get(HeaderUserID)
	if err := h.Session.RequireMember(r.Context(), sessionID, userID); err != nil {
		respondError(w, err)
		return
	}

	// Prefer the stored display name over the header so a stale client
	// cannot announce an outdated identity.
	name := r.Header.Get(HeaderUserName)
	if user, err := h.Session.GetUser(r.Context(), userID); err == nil {
		name = user.Name
	}

	member := websocket.MemberInfo{UserID: userID}
	member.UserInfo.Name = name
	channelData, err := json.Marshal(member)
	if err != nil {
		respondError(w, InternalError(err))
		return
	}

	respondOK(w, RealtimeAuthResponse{
		Auth:        h.Auth.Sign(req.SocketID, req.ChannelName, channelData),
		ChannelData: string(channelData),
	})
}

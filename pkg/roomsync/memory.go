package roomsync

import (
	"encoding/json"
	"sync"
)

// MemoryNetwork is an in-process presence transport. It backs the
// convergence tests and embedded clients that live in the same
// process as the hub. Delivery is synchronous and per-subscriber
// ordered; SetLossy simulates the transport dropping peer events so
// HTTP-fallback healing can be exercised.
type MemoryNetwork struct {
	mu       sync.Mutex
	channels map[string][]*MemoryChannel
	lossy    bool
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{channels: make(map[string][]*MemoryChannel)}
}

// SetLossy toggles dropping of all peer-triggered events.
func (n *MemoryNetwork) SetLossy(lossy bool) {
	n.mu.Lock()
	n.lossy = lossy
	n.mu.Unlock()
}

// Subscribe joins the named channel as the given member and fires
// member-added events at the existing subscribers.
func (n *MemoryNetwork) Subscribe(channel string, me Member) *MemoryChannel {
	c := &MemoryChannel{
		net:      n,
		name:     channel,
		me:       me,
		handlers: make(map[string][]EventHandler),
	}
	n.mu.Lock()
	peers := append([]*MemoryChannel(nil), n.channels[channel]...)
	n.channels[channel] = append(n.channels[channel], c)
	n.mu.Unlock()

	for _, p := range peers {
		p.memberAdded(me)
	}
	return c
}

// Broadcast delivers a server-originated event to every subscriber of
// the channel, including any sender. This is the path the HTTP
// fallback layer uses; it is never lossy.
func (n *MemoryNetwork) Broadcast(channel, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.mu.Lock()
	subs := append([]*MemoryChannel(nil), n.channels[channel]...)
	n.mu.Unlock()
	for _, s := range subs {
		s.deliver(event, raw)
	}
}

func (n *MemoryNetwork) remove(c *MemoryChannel) {
	n.mu.Lock()
	subs := n.channels[c.name]
	for i, s := range subs {
		if s == c {
			n.channels[c.name] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	peers := append([]*MemoryChannel(nil), n.channels[c.name]...)
	n.mu.Unlock()

	for _, p := range peers {
		p.memberRemoved(c.me)
	}
}

// MemoryChannel is one subscription on a MemoryNetwork.
type MemoryChannel struct {
	net  *MemoryNetwork
	name string
	me   Member

	mu         sync.Mutex
	handlers   map[string][]EventHandler
	addedFns   []func(Member)
	removedFns []func(Member)
	closed     bool
}

var _ Channel = (*MemoryChannel)(nil)

func (c *MemoryChannel) Bind(event string, h EventHandler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

func (c *MemoryChannel) BindMemberAdded(h func(Member)) {
	c.mu.Lock()
	c.addedFns = append(c.addedFns, h)
	c.mu.Unlock()
}

func (c *MemoryChannel) BindMemberRemoved(h func(Member)) {
	c.mu.Lock()
	c.removedFns = append(c.removedFns, h)
	c.mu.Unlock()
}

// Trigger delivers a peer event to every other subscriber. Lossy mode
// silently drops it, mirroring the no-guarantee contract of the real
// transport.
func (c *MemoryChannel) Trigger(event string, payload any) error {
	c.net.mu.Lock()
	lossy := c.net.lossy
	subs := append([]*MemoryChannel(nil), c.net.channels[c.name]...)
	c.net.mu.Unlock()
	if lossy {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if s == c {
			continue
		}
		s.deliver(event, raw)
	}
	return nil
}

func (c *MemoryChannel) Members() []Member {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	subs := c.net.channels[c.name]
	out := make([]Member, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.me)
	}
	return out
}

func (c *MemoryChannel) Me() Member { return c.me }

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.net.remove(c)
	return nil
}

func (c *MemoryChannel) deliver(event string, raw json.RawMessage) {
	payload, err := DecodeEvent(event, raw)
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	hs := append([]EventHandler(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (c *MemoryChannel) memberAdded(m Member) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := append([]func(Member){}, c.addedFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (c *MemoryChannel) memberRemoved(m Member) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := append([]func(Member){}, c.removedFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

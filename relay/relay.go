// Package relay is the in-process message channel between page keepers and
// the privileged daemon side. It mirrors the extension split the system
// replaces: the page context fires {type, url} messages and never learns
// whether anyone handled them; the daemon side registers handlers (open a
// tab, log an action) and broadcasts notifications back to every keeper.
//
// Delivery is fire-and-forget by design. Handler errors are logged and
// suppressed; a message lacking its required fields is ignored.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sharedock/sharedock/idgen"
)

// Message types.
const (
	TypeOpenSharing     = "openSharing"     // page → daemon: open URL in a new tab
	TypeSettingsUpdated = "settingsUpdated" // daemon → pages: re-render the control
)

// Message is the unit of cross-context communication.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Handler processes one message type on the daemon side.
type Handler func(ctx context.Context, msg Message) error

// Relay routes messages to registered handlers and fans broadcasts out to
// subscribers. Safe for concurrent use.
type Relay struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	subs     map[int]chan Message
	nextSub  int

	logger *slog.Logger
	newID  idgen.Generator
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithIDGenerator overrides the message ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(r *Relay) { r.newID = gen }
}

// New creates an empty Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		handlers: make(map[string]Handler),
		subs:     make(map[int]chan Message),
		logger:   slog.Default(),
		// In-process message IDs only need to be unique and readable in
		// logs; short nano IDs beat full UUIDs there.
		newID: idgen.Prefixed("msg_", idgen.NanoID(12)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal binds a handler to a message type, replacing any previous
// registration for that type.
func (r *Relay) RegisterLocal(msgType string, h Handler) {
	r.mu.Lock()
	r.handlers[msgType] = h
	r.mu.Unlock()
}

// Send delivers msg to its handler. Fire and forget: no handler, missing
// fields, and handler errors all end here: logged, never propagated.
func (r *Relay) Send(ctx context.Context, msg Message) {
	if msg.Type == "" {
		return
	}
	if msg.Type == TypeOpenSharing && msg.URL == "" {
		r.logger.Debug("relay: openSharing without url ignored")
		return
	}
	if msg.ID == "" {
		msg.ID = r.newID()
	}

	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("relay: no handler", "type", msg.Type)
		return
	}

	if err := h(ctx, msg); err != nil {
		r.logger.Warn("relay: handler failed", "type", msg.Type, "id", msg.ID, "error", err)
	}
}

// Subscribe returns a channel receiving every broadcast. The returned
// cancel function must be called when the consumer goes away. Slow
// consumers lose broadcasts instead of blocking the sender.
func (r *Relay) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 8)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast fans a message of the given type out to all subscribers.
func (r *Relay) Broadcast(msgType string) {
	if msgType == "" {
		return
	}
	msg := Message{ID: r.newID(), Type: msgType}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			r.logger.Debug("relay: subscriber full, broadcast dropped", "type", msgType)
		}
	}
}

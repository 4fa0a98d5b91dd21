package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tearschat/chatclient/internal/model"
)

// MessageHandler receives decoded inbound frames.
type MessageHandler func(model.Frame)

// ConnectionHandler receives connection-state changes.
type ConnectionHandler func(StateChange)

// StateChange describes a connection-state transition.
type StateChange struct {
	State model.ConnectionState
	Err   error // Transport error that caused the transition, if any
}

// UnsubscribeFunc removes a registration. Calling it twice is a no-op.
type UnsubscribeFunc func()

// registry is an ordered handler set keyed by subscription token.
type registry[H any] struct {
	mu       sync.RWMutex
	order    []uuid.UUID
	handlers map[uuid.UUID]H
}

func newRegistry[H any]() *registry[H] {
	return &registry[H]{handlers: make(map[uuid.UUID]H)}
}

func (r *registry[H]) add(h H) UnsubscribeFunc {
	id := uuid.New()

	r.mu.Lock()
	r.handlers[id] = h
	r.order = append(r.order, id)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, ok := r.handlers[id]; !ok {
			return
		}
		delete(r.handlers, id)
		for i, o := range r.order {
			if o == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// snapshot returns the registered handlers in registration order as of now.
// Handlers added after the snapshot is taken do not see the event being
// dispatched; handlers removed after still do.
func (r *registry[H]) snapshot() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]H, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.handlers[id])
	}
	return out
}

func (r *registry[H]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Bus routes inbound frames and connection-state changes to registered
// handlers. The zero value is not usable; call New.
type Bus struct {
	messages    *registry[MessageHandler]
	connections *registry[ConnectionHandler]
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		messages:    newRegistry[MessageHandler](),
		connections: newRegistry[ConnectionHandler](),
	}
}

// OnMessage registers a handler for inbound frames.
func (b *Bus) OnMessage(h MessageHandler) UnsubscribeFunc {
	return b.messages.add(h)
}

// OnConnectionChange registers a handler for connection-state changes.
func (b *Bus) OnConnectionChange(h ConnectionHandler) UnsubscribeFunc {
	return b.connections.add(h)
}

// PublishMessage delivers a frame to all message handlers registered at the
// time of the call.
func (b *Bus) PublishMessage(f model.Frame) {
	for _, h := range b.messages.snapshot() {
		h(f)
	}
}

// PublishConnectionChange delivers a state change to all connection handlers
// registered at the time of the call.
func (b *Bus) PublishConnectionChange(c StateChange) {
	for _, h := range b.connections.snapshot() {
		h(c)
	}
}

// MessageHandlerCount reports the number of registered message handlers.
func (b *Bus) MessageHandlerCount() int { return b.messages.len() }

// ConnectionHandlerCount reports the number of registered connection handlers.
func (b *Bus) ConnectionHandlerCount() int { return b.connections.len() }

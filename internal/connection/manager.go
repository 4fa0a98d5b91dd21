package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tearschat/chatclient/internal/eventbus"
	"github.com/tearschat/chatclient/internal/model"
)

// Manager owns at most one streaming socket at a time, bound to a single
// (room, token) pair. It drives the open/close/error state machine, decodes
// inbound frames onto the event bus, and reconnects after unintentional
// closes with a bounded fixed-delay policy.
type Manager struct {
	cfg    ManagerConfig
	bus    *eventbus.Bus
	logger *slog.Logger
	dial   DialFunc

	mu          sync.Mutex
	state       model.ConnectionState
	client      Client
	done        chan struct{} // closes to stop the active read loop
	gen         int           // bumps whenever the active client changes
	bound       bool
	roomID      int64
	token       string
	intentional bool
	attempts    int
	retryTimer  *time.Timer
	ctx         context.Context // from the last explicit Connect; reused by retries
}

// NewManager creates a connection manager publishing to the given bus.
func NewManager(cfg ManagerConfig, bus *eventbus.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		dial:   NewClient,
		state:  model.StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the streaming socket for the given room. A call with the
// same (roomID, token) as an already-open socket is a no-op; any other prior
// socket is first closed intentionally. The context is retained for
// automatic reconnects until the next Connect or Disconnect.
func (m *Manager) Connect(ctx context.Context, roomID int64, token string) error {
	m.mu.Lock()
	if m.bound && m.roomID == roomID && m.token == token &&
		m.client != nil && m.client.IsConnected() {
		m.mu.Unlock()
		m.logger.Debug("websocket already connected", "room_id", roomID)
		return nil
	}

	m.stopRetryLocked()
	m.closeClientLocked()

	m.bound = true
	m.roomID = roomID
	m.token = token
	m.intentional = false
	m.attempts = 0
	m.ctx = ctx
	m.state = model.StateConnecting
	m.mu.Unlock()

	m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateConnecting})

	return m.dialAndStart(ctx)
}

// Disconnect intentionally tears down the socket: no reconnect fires, the
// bound room and token are cleared, and any pending retry timer is
// cancelled. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.stopRetryLocked()
	m.closeClientLocked()
	m.bound = false
	m.roomID = 0
	m.token = ""
	wasDisconnected := m.state == model.StateDisconnected
	m.state = model.StateDisconnected
	m.mu.Unlock()

	if !wasDisconnected {
		m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateDisconnected})
	}
	m.logger.Debug("websocket disconnected intentionally")
}

// Send writes a message to the stream. It fails with ErrNotConnected unless
// the state is Connected and returns without awaiting acknowledgment: the
// server echoes the persisted message back as a frame.
func (m *Manager) Send(content string) error {
	m.mu.Lock()
	if m.state != model.StateConnected || m.client == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	cl := m.client
	m.mu.Unlock()

	data, err := json.Marshal(outboundFrame{Content: content})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := cl.Send(data); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// dialAndStart dials the room URL for the current binding and, on success,
// starts the read loop. A dial failure is treated like an unintentional
// close: an Error notification followed by the close/retry path.
func (m *Manager) dialAndStart(ctx context.Context) error {
	m.mu.Lock()
	url := roomURL(m.cfg.WSBaseURL, m.roomID, m.token)
	roomID := m.roomID
	startGen := m.gen
	m.mu.Unlock()

	cl := m.dial(m.clientConfig(url), m.logger.With("room_id", roomID))

	if err := cl.Connect(ctx); err != nil {
		m.mu.Lock()
		if m.gen == startGen && !m.intentional {
			m.state = model.StateError
		}
		m.mu.Unlock()

		m.logger.Warn("websocket dial failed", "room_id", roomID, "error", err)
		m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateError, Err: err})
		m.finishClose(startGen)
		return err
	}

	m.mu.Lock()
	if m.intentional || !m.bound || m.gen != startGen {
		// Disconnected or superseded while the dial was in flight.
		m.mu.Unlock()
		cl.Close()
		return nil
	}
	m.client = cl
	m.attempts = 0
	m.gen++
	gen := m.gen
	done := make(chan struct{})
	m.done = done
	m.state = model.StateConnected
	m.mu.Unlock()

	m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateConnected})
	m.logger.Info("websocket connected", "room_id", roomID)

	go m.readLoop(cl, gen, done)
	return nil
}

// readLoop decodes inbound frames onto the bus until the transport fails or
// the connection is replaced.
func (m *Manager) readLoop(cl Client, gen int, done chan struct{}) {
	for {
		select {
		case <-done:
			return

		case err := <-cl.Errors():
			m.handleTransportError(gen, err)
			return

		case data := <-cl.Messages():
			frame, err := model.DecodeFrame(data)
			if err != nil {
				// Malformed frames are dropped, never fatal.
				m.logger.Warn("dropping malformed frame", "error", err)
				continue
			}
			m.bus.PublishMessage(frame)
		}
	}
}

// handleTransportError runs the error-then-close sequence for an
// unintentional failure of the active connection.
func (m *Manager) handleTransportError(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen || m.intentional {
		// A newer connection took over, or the caller tore this one down.
		m.mu.Unlock()
		return
	}
	m.state = model.StateError
	m.mu.Unlock()

	m.logger.Warn("websocket transport error", "error", err)
	m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateError, Err: err})

	m.finishClose(gen)
}

// finishClose completes an unintentional close: the socket is released, the
// state drops to Disconnected, and a retry is scheduled while attempts
// remain under the policy cap. gen identifies the connection (or dial
// attempt) being closed; a stale gen means a newer binding took over.
func (m *Manager) finishClose(gen int) {
	m.mu.Lock()
	if m.intentional || !m.bound || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.closeClientLocked()
	m.state = model.StateDisconnected

	scheduled := false
	attempt := m.attempts
	if m.attempts < m.cfg.Policy.MaxAttempts {
		m.attempts++
		attempt = m.attempts
		scheduled = true
		ctx := m.ctx
		// The timer may fire after Stop; the retry re-checks this gen so a
		// callback racing a newer Connect cannot re-dial.
		retryGen := m.gen
		m.retryTimer = time.AfterFunc(m.cfg.Policy.Delay, func() { m.retry(ctx, retryGen) })
	}
	m.mu.Unlock()

	m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateDisconnected})

	if scheduled {
		m.logger.Info("reconnecting",
			"attempt", attempt,
			"max_attempts", m.cfg.Policy.MaxAttempts,
			"delay", m.cfg.Policy.Delay,
		)
	} else {
		m.logger.Warn("reconnect attempts exhausted", "attempts", attempt)
	}
}

// retry is the deferred reconnect task. It re-dials the last known binding
// unless Disconnect ran in the meantime or a newer Connect took over (gen
// advanced past the one this retry was scheduled for).
func (m *Manager) retry(ctx context.Context, gen int) {
	m.mu.Lock()
	m.retryTimer = nil
	if m.intentional || !m.bound || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = model.StateConnecting
	m.mu.Unlock()

	m.bus.PublishConnectionChange(eventbus.StateChange{State: model.StateConnecting})
	m.dialAndStart(ctx)
}

// stopRetryLocked cancels a pending reconnect timer. Caller holds m.mu.
func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// closeClientLocked releases the active socket and its read loop without
// touching the attempt counter. Caller holds m.mu.
func (m *Manager) closeClientLocked() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.gen++
}

func (m *Manager) clientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		PingInterval:     m.cfg.PingInterval,
		PingTimeout:      m.cfg.PingTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tearschat/chatclient/internal/api"
	"github.com/tearschat/chatclient/internal/eventbus"
	"github.com/tearschat/chatclient/internal/model"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	// StatusLoading means Load has not completed yet.
	StatusLoading Status = iota

	// StatusResolved means metadata and history are loaded and the live
	// stream is attached (or reconnecting).
	StatusResolved

	// StatusFailed means Load hit a fatal error. The session is unusable.
	StatusFailed
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChatAPI is the REST surface a session needs.
type ChatAPI interface {
	GetChat(ctx context.Context, chatID int64) (*api.ChatResponse, error)
	JoinChat(ctx context.Context, chatID int64) (*api.MembershipResponse, error)
	GetMessages(ctx context.Context, chatID int64, page, perPage int) (*api.MessagesPage, error)
	AddMember(ctx context.Context, chatID int64, username string) error
}

// Connector is the streaming surface a session needs.
type Connector interface {
	Connect(ctx context.Context, roomID int64, token string) error
	Disconnect()
	Send(content string) error
	State() model.ConnectionState
}

// Config holds session tuning knobs.
type Config struct {
	HistoryPerPage int // Page size for the initial history load
}

// DefaultHistoryPerPage matches the server's maximum page size.
const DefaultHistoryPerPage = 100

// Session is the per-room aggregate: resolved metadata, the merged message
// feed, and the live stream attachment. Create with New, then call Load
// exactly once. Safe for concurrent use after Load returns.
type Session struct {
	api    ChatAPI
	conn   Connector
	bus    *eventbus.Bus
	token  string
	logger *slog.Logger

	perPage int

	mu       sync.Mutex
	status   Status
	room     model.Room
	messages []model.Message
	seen     map[int64]struct{}
	closed   bool

	unsubMessages    eventbus.UnsubscribeFunc
	unsubConnections eventbus.UnsubscribeFunc
}

// New creates an unloaded session for one room.
func New(chatAPI ChatAPI, conn Connector, bus *eventbus.Bus, token string, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	perPage := cfg.HistoryPerPage
	if perPage <= 0 {
		perPage = DefaultHistoryPerPage
	}

	return &Session{
		api:     chatAPI,
		conn:    conn,
		bus:     bus,
		token:   token,
		logger:  logger,
		perPage: perPage,
		status:  StatusLoading,
		seen:    make(map[int64]struct{}),
	}
}

// Load resolves the room, loads history, and attaches the live stream.
//
// Metadata and membership come first: a public room the caller has not
// joined is joined automatically, then refetched so the member count
// reflects the join. History is loaded next, oldest-first; a Forbidden
// response is fatal, any other history failure degrades to an empty feed.
// Handlers are registered on the bus before the socket dial so no frame
// from the live stream can be missed. A failed initial dial is not fatal:
// the connection manager keeps retrying under its own policy.
func (s *Session) Load(ctx context.Context, roomID int64) error {
	room, err := s.resolveRoom(ctx, roomID)
	if err != nil {
		s.fail()
		return err
	}

	history, err := s.loadHistory(ctx, roomID)
	if err != nil {
		s.fail()
		return err
	}

	s.mu.Lock()
	s.room = room
	for _, msg := range history {
		if _, dup := s.seen[msg.ID]; dup {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg)
	}
	s.status = StatusResolved
	s.unsubMessages = s.bus.OnMessage(s.handleFrame)
	s.unsubConnections = s.bus.OnConnectionChange(s.handleStateChange)
	s.mu.Unlock()

	s.logger.Info("room session resolved",
		"room_id", room.ID,
		"room", room.Name,
		"role", string(room.Role),
		"history", len(history),
	)

	if err := s.conn.Connect(ctx, roomID, s.token); err != nil {
		s.logger.Warn("initial stream dial failed, reconnect pending", "room_id", roomID, "error", err)
	}

	return nil
}

// resolveRoom fetches room metadata and ensures the caller is a member,
// auto-joining public rooms at most once.
func (s *Session) resolveRoom(ctx context.Context, roomID int64) (model.Room, error) {
	chat, err := s.api.GetChat(ctx, roomID)
	if err != nil {
		return model.Room{}, classifyRoomErr(roomID, err)
	}

	room := chat.ToRoom()
	if room.Role != model.RoleNone {
		return room, nil
	}

	if room.IsPrivate {
		return model.Room{}, fmt.Errorf("%w: room %d is private", ErrPermissionDenied, roomID)
	}

	membership, err := s.api.JoinChat(ctx, roomID)
	if err != nil {
		if api.IsForbidden(err) {
			return model.Room{}, fmt.Errorf("%w: room %d: %v", ErrPermissionDenied, roomID, err)
		}
		return model.Room{}, fmt.Errorf("%w: room %d: %v", ErrJoinFailed, roomID, err)
	}
	s.logger.Info("joined room", "room_id", roomID, "role", membership.Role)

	// Refetch so role and member count reflect the join. If the refetch
	// fails we still have usable metadata from the first fetch.
	if updated, err := s.api.GetChat(ctx, roomID); err == nil {
		room = updated.ToRoom()
	} else {
		s.logger.Warn("metadata refetch after join failed", "room_id", roomID, "error", err)
		room.MemberCount++
	}
	if room.Role == model.RoleNone {
		room.Role = model.Role(membership.Role)
	}

	return room, nil
}

// loadHistory fetches the first page of persisted messages and reverses the
// server's newest-first order into chronological order.
func (s *Session) loadHistory(ctx context.Context, roomID int64) ([]model.Message, error) {
	page, err := s.api.GetMessages(ctx, roomID, 1, s.perPage)
	if err != nil {
		if api.IsForbidden(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		s.logger.Warn("history load failed, starting empty", "room_id", roomID, "error", err)
		return nil, nil
	}

	msgs := api.ToMessages(page.Items)
	slices.Reverse(msgs)
	return msgs, nil
}

// Send writes a message to the live stream. The server echoes the persisted
// message back as a frame, which is how it enters the feed.
func (s *Session) Send(content string) error {
	return s.conn.Send(content)
}

// AddMember adds a user to the room by username. Only the room owner may do
// this; the local member count is bumped on success.
func (s *Session) AddMember(ctx context.Context, username string) error {
	s.mu.Lock()
	if s.room.Role != model.RoleOwner {
		s.mu.Unlock()
		return fmt.Errorf("%w: only the owner may add members", ErrPermissionDenied)
	}
	roomID := s.room.ID
	s.mu.Unlock()

	if err := s.api.AddMember(ctx, roomID, username); err != nil {
		return err
	}

	s.mu.Lock()
	s.room.MemberCount++
	s.mu.Unlock()

	s.logger.Info("member added", "room_id", roomID, "username", username)
	return nil
}

// Close releases the bus subscriptions and tears down the socket.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubMessages := s.unsubMessages
	unsubConnections := s.unsubConnections
	s.unsubMessages = nil
	s.unsubConnections = nil
	roomID := s.room.ID
	s.mu.Unlock()

	if unsubMessages != nil {
		unsubMessages()
	}
	if unsubConnections != nil {
		unsubConnections()
	}
	s.conn.Disconnect()

	s.logger.Debug("room session closed", "room_id", roomID)
}

// Messages returns the merged feed in chronological order.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

// Room returns the resolved room metadata.
func (s *Session) Room() model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Status returns the session lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionState returns the live stream's connection state.
func (s *Session) ConnectionState() model.ConnectionState {
	return s.conn.State()
}

// handleFrame folds a live frame into the feed. Message frames are appended
// unless the id was already seen, which keeps the earliest occurrence when
// history and the stream overlap. Presence frames are informational.
func (s *Session) handleFrame(f model.Frame) {
	switch f.Type {
	case model.FrameMessage:
		msg := f.Message()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if _, dup := s.seen[msg.ID]; dup {
			s.mu.Unlock()
			s.logger.Debug("dropping duplicate message", "message_id", msg.ID)
			return
		}
		s.seen[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg)
		s.mu.Unlock()

	case model.FrameUserJoined:
		s.logger.Info("user joined", "username", f.Username)

	case model.FrameUserLeft:
		s.logger.Info("user left", "username", f.Username)

	default:
		s.logger.Debug("ignoring unknown frame type", "type", f.Type)
	}
}

func (s *Session) handleStateChange(c eventbus.StateChange) {
	if c.Err != nil {
		s.logger.Warn("stream state changed", "state", c.State.String(), "error", c.Err)
		return
	}
	s.logger.Debug("stream state changed", "state", c.State.String())
}

func (s *Session) fail() {
	s.mu.Lock()
	s.status = StatusFailed
	s.mu.Unlock()
}

// classifyRoomErr maps server responses onto the session's sentinel errors,
// keeping the server's detail text in the message.
func classifyRoomErr(roomID int64, err error) error {
	switch {
	case api.IsNotFound(err):
		return fmt.Errorf("%w: room %d: %v", ErrRoomNotFound, roomID, err)
	case api.IsForbidden(err):
		return fmt.Errorf("%w: room %d: %v", ErrPermissionDenied, roomID, err)
	default:
		return fmt.Errorf("resolve room %d: %w", roomID, err)
	}
}

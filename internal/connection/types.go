package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tearschat/chatclient/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStaleConn     = errors.New("connection stale (no ping)")
	ErrAlreadyClosed = errors.New("already closed")
)

// outboundFrame is the only payload the client writes to the stream. The
// server assigns id, author, and timestamp and echoes the message back as a
// FrameMessage frame.
type outboundFrame struct {
	Content string `json:"content"`
}

// ClientConfig configures a single WebSocket connection.
type ClientConfig struct {
	URL              string        // Full room-scoped URL, token included as a query parameter
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping cadence
	PingTimeout      time.Duration // Max silence before the connection is considered stale
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	WSBaseURL        string                // e.g. ws://localhost:8000
	Policy           model.ReconnectPolicy // Bounded fixed-delay retry
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	BufferSize       int
}

// DefaultManagerConfig returns sensible defaults. The retry policy matches
// the server's expectations: five attempts three seconds apart.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Policy: model.ReconnectPolicy{
			MaxAttempts: 5,
			Delay:       3 * time.Second,
		},
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		BufferSize:       256,
	}
}

// DialFunc constructs a Client for a given configuration. The manager uses
// NewClient by default; tests inject fakes.
type DialFunc func(cfg ClientConfig, logger *slog.Logger) Client

// roomURL builds the room-scoped streaming URL. The token travels as a query
// parameter because the WebSocket handshake cannot carry custom headers.
func roomURL(base string, roomID int64, token string) string {
	return fmt.Sprintf("%s/ws/chats/%d?token=%s", base, roomID, url.QueryEscape(token))
}

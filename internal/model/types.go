package model

import "time"

// ConnectionState is the lifecycle state of the room's streaming connection.
// Exactly one value holds at any instant; transitions happen only inside the
// connection manager.
type ConnectionState int

const (
	// StateDisconnected means no socket is open.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means the socket is open and ready.
	StateConnected

	// StateError means the transport reported a failure. The close that
	// follows drives reconnection.
	StateError
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Role is the caller's membership relation to a room.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"

	// RoleNone means the caller has no membership relation to the room.
	RoleNone Role = ""
)

// Message is a single chat message. Immutable once created; the server is
// the source of truth for ID, author, and CreatedAt.
type Message struct {
	ID         int64     // Unique within a room
	Content    string    // Message body
	AuthorID   int64     // Sending user's ID
	AuthorName string    // Display name, falling back to username
	CreatedAt  time.Time // Server-assigned creation time
}

// Room is chat room metadata as resolved for the calling user.
type Room struct {
	ID          int64  // Room ID
	Name        string // Display name
	IsPrivate   bool   // Private rooms reject non-members
	Role        Role   // Caller's role; RoleNone if not a member
	MemberCount int    // Current member count
}

// ReconnectPolicy bounds automatic reconnection after unintentional closes.
// The attempt counter resets to zero on every successful open and is never
// touched by an intentional close.
type ReconnectPolicy struct {
	MaxAttempts int           // Automatic attempts before giving up
	Delay       time.Duration // Fixed wait between attempts
}

// Timestamp layouts emitted by the chat server. RFC3339 is primary; presence
// events use a space-separated layout and some paths emit naive ISO 8601.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a server timestamp string. Returns the zero time for
// empty or unrecognized input.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

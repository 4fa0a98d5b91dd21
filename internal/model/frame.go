package model

import "encoding/json"

// Frame type discriminators used by the live stream.
const (
	FrameMessage    = "message"
	FrameUserJoined = "user_joined"
	FrameUserLeft   = "user_left"
)

// Frame is one decoded unit of payload pushed over the streaming connection,
// discriminated by Type. Only FrameMessage frames carry the full message
// fields; presence frames carry just the username.
type Frame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// DecodeFrame parses a raw frame from the stream.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Message converts a FrameMessage frame into a domain message.
func (f Frame) Message() Message {
	return Message{
		ID:         f.MessageID,
		Content:    f.Content,
		AuthorID:   f.UserID,
		AuthorName: f.Username,
		CreatedAt:  ParseTimestamp(f.Timestamp),
	}
}

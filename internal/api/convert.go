package api

import (
	"github.com/tearschat/chatclient/internal/model"
)

// ToRoom converts a chat response to the domain type.
func (r *ChatResponse) ToRoom() model.Room {
	return model.Room{
		ID:          r.ID,
		Name:        r.Name,
		IsPrivate:   r.IsPrivate,
		Role:        model.Role(r.Role),
		MemberCount: r.MemberCount,
	}
}

// ToMessage converts a persisted message to the domain type. The author name
// prefers the display name and falls back to the username.
func (m *APIMessage) ToMessage() model.Message {
	name := m.DisplayName
	if name == "" {
		name = m.Username
	}

	return model.Message{
		ID:         m.ID,
		Content:    m.Content,
		AuthorID:   m.UserID,
		AuthorName: name,
		CreatedAt:  model.ParseTimestamp(m.CreatedAt),
	}
}

// ToMessages converts a message page preserving the server's order.
func ToMessages(items []APIMessage) []model.Message {
	out := make([]model.Message, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToMessage())
	}
	return out
}

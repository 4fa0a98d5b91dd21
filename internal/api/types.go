package api

// ChatResponse from GET /chats/{id}.
type ChatResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsPrivate   bool   `json:"is_private"`
	Role        string `json:"role"` // "owner", "member", or empty when not a member
	MemberCount int    `json:"member_count"`
}

// MembershipResponse from POST /chats/{id}/join.
type MembershipResponse struct {
	ChatID int64  `json:"chat_id"`
	Role   string `json:"role"`
}

// APIMessage represents one persisted message from the chat server.
type APIMessage struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// PageMeta is the pagination envelope on list responses.
type PageMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// MessagesPage from GET /chats/{id}/messages. Items are newest-first.
type MessagesPage struct {
	Items []APIMessage `json:"items"`
	Meta  PageMeta     `json:"meta"`
}

// AddMemberRequest is the payload for POST /chats/{id}/members.
type AddMemberRequest struct {
	Username string `json:"username"`
}

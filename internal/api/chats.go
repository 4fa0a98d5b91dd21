package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetChat fetches room metadata, including the caller's role.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.get(ctx, fmt.Sprintf("/chats/%d", chatID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get chat %d: %w", chatID, err)
	}
	return &resp, nil
}

// JoinChat joins the caller to a room.
func (c *Client) JoinChat(ctx context.Context, chatID int64) (*MembershipResponse, error) {
	var resp MembershipResponse
	if err := c.post(ctx, fmt.Sprintf("/chats/%d/join", chatID), nil, &resp); err != nil {
		return nil, fmt.Errorf("join chat %d: %w", chatID, err)
	}
	return &resp, nil
}

// GetMessages fetches one page of persisted messages, newest-first.
func (c *Client) GetMessages(ctx context.Context, chatID int64, page, perPage int) (*MessagesPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}

	var resp MessagesPage
	if err := c.get(ctx, fmt.Sprintf("/chats/%d/messages", chatID), query, &resp); err != nil {
		return nil, fmt.Errorf("get messages for chat %d: %w", chatID, err)
	}
	return &resp, nil
}

// AddMember adds a user to the room by username. The server enforces that
// only the room owner may do this.
func (c *Client) AddMember(ctx context.Context, chatID int64, username string) error {
	payload := AddMemberRequest{Username: username}
	if err := c.post(ctx, fmt.Sprintf("/chats/%d/members", chatID), payload, nil); err != nil {
		return fmt.Errorf("add member to chat %d: %w", chatID, err)
	}
	return nil
}

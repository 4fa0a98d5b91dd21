// Package api provides the REST client for the chat server.
//
// Operations used by the room session:
//   - GET  /chats/{id}            room metadata with the caller's role
//   - POST /chats/{id}/join       join a public room
//   - GET  /chats/{id}/messages   newest-first message page
//   - POST /chats/{id}/members    add a member by username (owner only)
//
// Error bodies carry a "detail" string that is surfaced verbatim to the user.
package api

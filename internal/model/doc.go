// Package model defines the domain types shared across the chat client:
// messages, room metadata, membership roles, and connection state.
package model

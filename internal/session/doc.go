// Package session assembles the per-room chat view: it resolves room
// metadata and membership over the REST API, loads persisted history, and
// merges it with the live stream into one deduplicated chronological feed.
//
// A Session owns its event-bus subscriptions and the streaming socket for
// exactly one room. Close releases both; every Session must be closed.
package session

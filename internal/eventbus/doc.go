// Package eventbus implements the in-process publish/subscribe registry that
// decouples the streaming socket from its consumers.
//
// Two independent channels:
//   - message handlers receive decoded inbound frames
//   - connection handlers receive connection-state changes
//
// Dispatch iterates a snapshot of the registered handlers taken at fire time,
// so re-entrant subscribe/unsubscribe cannot loop or skip handlers.
package eventbus

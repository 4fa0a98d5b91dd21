// Package connection implements the streaming side of the chat client.
//
// Two layers:
//   - Client: a single WebSocket connection (dial, read loop, keepalive,
//     channel-based delivery of raw frames and transport errors)
//   - Manager: the per-room connection lifecycle (open/close/error
//     transitions, bounded fixed-delay reconnection, frame decoding,
//     event-bus notification)
package connection

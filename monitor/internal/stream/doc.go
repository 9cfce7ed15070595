// Package stream provides the push-stream transports used for live samples
// and alerts.
//
// A Dialer opens a Conn to a URL; Conn.Next blocks until the next named
// Event arrives or the connection fails. Two transports exist:
//
//   - SSEDialer: Server-Sent Events over a long-lived HTTP GET, framed by
//     github.com/vito/go-sse. Unnamed events are reported as "message".
//   - WSDialer: a gorilla/websocket connection carrying JSON envelopes
//     {"event": <name>, "data": <payload>}.
//
// Connections never retry on their own; reconnection belongs to the caller.
package stream

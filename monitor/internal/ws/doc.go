// Package ws pushes monitor snapshots to browsers over WebSocket.
//
// Hub.Run broadcasts the current snapshot to every client on a fixed
// interval and whenever the session publishes a change. Hub.ServeHTTP
// upgrades a request and sends the current snapshot immediately.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy. The monitor mounts the hub at /ws/stream.
package ws

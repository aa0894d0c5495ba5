// Package api provides the HTTP REST API and WebSocket server for the
// audio node.
//
// It exposes device discovery and lifecycle operations, output and link
// management, and real-time state updates to user interfaces (wall
// panels, mobile apps, the web admin).
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

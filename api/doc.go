// Package api provides the relay's HTTP surface.
//
// Endpoints:
//
// Relay:
//   - GET /ws?room=ID - Join a room as a websocket subscriber
//
// Rooms:
//   - GET /api/rooms - List live rooms
//   - GET /api/rooms/{id} - Get one room (404 when it is not live)
//
// Operations:
//   - GET /healthz - Liveness and room count
//   - GET /metrics - Prometheus metrics
//   - POST /mcp - MCP JSON-RPC endpoint
//
// Room responses carry the counters of room.Info:
//
//	{
//	  "id": "AB12CD",
//	  "created_at": "2024-01-01T12:00:00Z",
//	  "subscribers": 2,
//	  "published": 130,
//	  "dropped": 0,
//	  "enqueued": 12,
//	  "inbound_depth": 0,
//	  "has_hello": true,
//	  "has_identified": true
//	}
//
// Errors are returned as JSON with the matching status code:
//
//	{"error": "Room not found"}
//
// Every route is wrapped in a permissive CORS handler.
package api

// Package mcp exposes the relay's live rooms over the Model Context Protocol.
//
// MCP Tools:
//   - list_rooms: list live rooms with subscriber counts
//   - get_room: counters and handshake cache state for one room (room_id)
//
// The tools only read the registry. They cannot create, close or join rooms.
//
// Usage:
//
//	srv := mcp.NewServer(AppName, Version, registry)
//	router.Handle("/mcp", srv)
//
// ServeHTTP accepts one JSON-RPC message per POST and replies with the
// JSON-RPC response.
package mcp

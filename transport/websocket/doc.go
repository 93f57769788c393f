// Package websocket provides the subscriber side of the relay.
//
// Clients join a live room with GET /ws?room=ID. The room ID is matched case
// insensitively. A missing parameter is rejected with 400 and an unknown room
// with 404 "Room not found", before any upgrade.
//
// Connection Lifecycle:
//
// 1. The subscriber gets its own cursor on the room's fan-out
// 2. The cached Hello, if any, is sent as the first frame
// 3. Fan-out messages are forwarded as text frames (valid UTF-8) or binary
// 4. Client messages are queued for the producer
// 5. The room closing sends a 1001 "room closed" close frame
//
// Identify Interception:
//
// A text frame whose op is 1 (Identify) is answered straight from the room's
// cached Identified (op 2) when one exists, and is not forwarded. Only the
// first subscriber of a room reaches the producer's handshake.
//
// Usage:
//
//	bridge := websocket.NewBridge(logger)
//	router.Handle("/ws", websocket.NewHandler(ctx, registry, bridge))
//
// Concurrency:
//
// Each subscriber runs a write pump, a read pump and a ping pump. A slow
// subscriber only loses its own oldest messages. A subscriber leaving never
// affects the room or the registry.
package websocket

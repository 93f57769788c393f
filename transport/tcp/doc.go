// Package tcp implements the producer side of the relay.
//
// Each accepted TCP connection gets its own room. The bridge announces the
// room ID to the producer with a single JSON message:
//
//	{"internal":"welcome","room":"AB12CD"}
//
// and then runs two loops until either one stops:
//   - read: every chunk is scanned for Hello/Identified objects (which refresh
//     the room's handshake cache) and published unchanged to subscribers
//   - write: messages queued by subscribers are written back verbatim
//
// When the connection ends for any reason the room is removed from the
// registry and closed, which terminates every subscriber of that room. A
// producer that reconnects gets a new room ID.
//
// Usage:
//
//	bridge := tcp.NewBridge(registry, logger, tcp.Options{})
//	srv := tcp.NewServer(bridge, logger)
//	go srv.ListenAndServe(ctx, ":9000")
package tcp

// Package protocol understands the thin slice of the OBS-style control
// protocol that the relay cares about.
//
// Producers and subscribers exchange JSON objects carrying a numeric "op"
// field. The relay only recognizes three of them:
//   - Hello (op 0): emitted by the producer when it connects
//   - Identify (op 1): sent by a subscriber to negotiate the session
//   - Identified (op 2): the producer's answer to Identify
//
// Everything else is relayed without inspection.
//
// Framing:
//
// The producer side is a raw TCP stream. A single read may carry zero, one
// or several concatenated JSON objects. Scan classifies the objects found in
// one read; it never buffers across reads, so an object split over two reads
// is not classified (the bytes are still relayed).
//
// Usage:
//
//	for _, p := range protocol.Scan(chunk) {
//		if p.Op == protocol.OpHello {
//			cache(p.Raw)
//		}
//	}
//
//	op, ok := protocol.Opcode(frame)
package protocol

// Package room implements the relay's rooms and the registry that indexes
// them.
//
// A Room belongs to exactly one producer connection. It holds:
//   - a fan-out Broadcaster (producer -> subscribers), lossy under load
//   - an inbound queue (subscribers -> producer), blocking under load
//   - the cached Hello and Identified handshake messages
//
// Fan-out:
//
// The Broadcaster keeps the last N published messages in a ring. Each
// subscriber reads through its own Cursor starting at the moment it
// subscribed. A cursor that falls more than N messages behind silently skips
// the oldest ones; Cursor.Dropped reports how many were lost. Publishing never
// blocks the producer.
//
// Fan-in:
//
// EnqueueInbound blocks while the inbound queue is full, so a chatty
// subscriber is throttled by the producer's write speed without affecting
// anyone else. DrainInbound is called only by the producer bridge.
//
// Lifecycle:
//
// A room lives exactly as long as its producer. Close wakes every cursor and
// every blocked enqueuer with ErrRoomClosed. Subscribers are not counted for
// lifetime purposes: a room with no subscribers stays open.
//
// Registry:
//
//	reg := room.NewRegistry(room.RegistryOptions{})
//
//	r, err := reg.Open()      // generate ID, create, register
//	r, ok := reg.Lookup(id)   // subscriber join
//	reg.Remove(id)            // producer teardown, idempotent
//
// Room IDs are 6-character upper-case alphanumeric strings. The registry's
// CollisionPolicy decides whether a colliding ID is regenerated or replaces
// the live room.
package room

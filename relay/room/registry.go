package room

import (
	"crypto/rand"
	"math/big"
	"sort"
	"strings"
	"sync"
)

const (
	roomIDLength         = 6
	roomIDAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultMaxIDAttempts = 16
)

// IDGenerator produces room identifiers.
type IDGenerator func() string

// NewRoomID returns a random 6-character upper-case alphanumeric identifier.
// It does not consult any registry.
func NewRoomID() string {
	limit := big.NewInt(int64(len(roomIDAlphabet)))

	var sb strings.Builder
	sb.Grow(roomIDLength)
	for i := 0; i < roomIDLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		sb.WriteByte(roomIDAlphabet[n.Int64()])
	}
	return strings.ToUpper(sb.String())
}

// CollisionPolicy decides what happens when a generated room ID is already
// registered.
type CollisionPolicy int

const (
	// CollisionRetry regenerates the ID until a free one is found.
	CollisionRetry CollisionPolicy = iota
	// CollisionOverwrite replaces the live room under that ID. The replaced
	// room's subscribers keep running but the room is no longer reachable.
	CollisionOverwrite
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Policy        CollisionPolicy
	MaxIDAttempts int
	NewID         IDGenerator
	Room          Options
}

// Registry maps room IDs to live rooms. It is safe for concurrent use.
type Registry struct {
	opts  RegistryOptions
	rooms map[string]*Room
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.NewID == nil {
		opts.NewID = NewRoomID
	}
	if opts.MaxIDAttempts <= 0 {
		opts.MaxIDAttempts = DefaultMaxIDAttempts
	}
	return &Registry{
		opts:  opts,
		rooms: make(map[string]*Room),
	}
}

// Open generates an ID, creates a room with the registry's room options and
// registers it.
func (g *Registry) Open() (*Room, error) {
	attempts := 1
	if g.opts.Policy == CollisionRetry {
		attempts = g.opts.MaxIDAttempts
	}

	for i := 0; i < attempts; i++ {
		r := New(g.opts.NewID(), g.opts.Room)
		if err := g.Create(r); err == nil {
			return r, nil
		}
	}

	return nil, ErrRoomIDExhausted
}

// Create registers r under r.ID. Under CollisionRetry a taken ID yields
// ErrRoomExists; under CollisionOverwrite the earlier entry is replaced.
func (g *Registry) Create(r *Room) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.rooms[r.ID]; exists && g.opts.Policy == CollisionRetry {
		return ErrRoomExists
	}
	g.rooms[r.ID] = r
	return nil
}

// Lookup returns the live room registered under id.
func (g *Registry) Lookup(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.rooms[id]
	return r, ok
}

// Remove unregisters id. Removing an absent id is a no-op.
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, id)
}

// List returns all live rooms ordered by creation time.
func (g *Registry) List() []*Room {
	g.mu.RLock()
	result := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		result = append(result, r)
	}
	g.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

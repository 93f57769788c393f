package room

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
)

var roomIDPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func sequenceIDs(ids ...string) IDGenerator {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewRoomID()
		if !roomIDPattern.MatchString(id) {
			t.Fatalf("Room ID %q does not match %s", id, roomIDPattern)
		}
		seen[id] = true
	}
	if len(seen) < 190 {
		t.Errorf("Expected mostly distinct IDs, got %d distinct out of 200", len(seen))
	}
}

func TestRegistryOpen(t *testing.T) {
	reg := NewRegistry(RegistryOptions{NewID: sequenceIDs("AB12CD")})

	r, err := reg.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if r.ID != "AB12CD" {
		t.Errorf("Expected ID AB12CD, got %s", r.ID)
	}

	got, ok := reg.Lookup("AB12CD")
	if !ok || got != r {
		t.Error("Opened room is not reachable through Lookup")
	}
}

func TestRegistryOpenAppliesRoomOptions(t *testing.T) {
	reg := NewRegistry(RegistryOptions{
		NewID: sequenceIDs("OPTS01"),
		Room:  Options{FanoutCapacity: 7, InboundCapacity: 3},
	})

	r, err := reg.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(r.fanout.ring) != 7 || cap(r.inbound) != 3 {
		t.Errorf("Room options not applied: fanout=%d inbound=%d", len(r.fanout.ring), cap(r.inbound))
	}
}

func TestRegistryCollisionRetry(t *testing.T) {
	reg := NewRegistry(RegistryOptions{
		Policy: CollisionRetry,
		NewID:  sequenceIDs("SAME01", "SAME01", "OTHER1"),
	})

	first, err := reg.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	second, err := reg.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if second.ID != "OTHER1" {
		t.Errorf("Expected retry to pick OTHER1, got %s", second.ID)
	}
	if got, _ := reg.Lookup("SAME01"); got != first {
		t.Error("Retry policy must not replace the live room")
	}
}

func TestRegistryCollisionRetryExhausted(t *testing.T) {
	reg := NewRegistry(RegistryOptions{
		Policy:        CollisionRetry,
		MaxIDAttempts: 3,
		NewID:         sequenceIDs("FIXED1"),
	})

	if _, err := reg.Open(); err != nil {
		t.Fatalf("First Open failed: %v", err)
	}
	if _, err := reg.Open(); !errors.Is(err, ErrRoomIDExhausted) {
		t.Errorf("Expected ErrRoomIDExhausted, got %v", err)
	}
}

func TestRegistryCollisionOverwrite(t *testing.T) {
	reg := NewRegistry(RegistryOptions{
		Policy: CollisionOverwrite,
		NewID:  sequenceIDs("DUPE01"),
	})

	first, _ := reg.Open()
	second, err := reg.Open()
	if err != nil {
		t.Fatalf("Overwrite policy should not fail, got %v", err)
	}

	got, ok := reg.Lookup("DUPE01")
	if !ok || got != second || got == first {
		t.Error("Expected the later room to replace the earlier one")
	}
	if reg.Len() != 1 {
		t.Errorf("Expected 1 registered room, got %d", reg.Len())
	}
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	r := New("MANUAL", Options{})

	if err := reg.Create(r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := reg.Create(New("MANUAL", Options{})); !errors.Is(err, ErrRoomExists) {
		t.Errorf("Expected ErrRoomExists, got %v", err)
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	if _, ok := reg.Lookup("NOPE00"); ok {
		t.Error("Expected lookup of unknown room to fail")
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry(RegistryOptions{NewID: sequenceIDs("GONE01")})
	r, _ := reg.Open()

	reg.Remove(r.ID)
	reg.Remove(r.ID)
	reg.Remove("NEVER1")

	if _, ok := reg.Lookup(r.ID); ok {
		t.Error("Removed room is still reachable")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(RegistryOptions{NewID: sequenceIDs("LIST01", "LIST02", "LIST03")})
	for i := 0; i < 3; i++ {
		if _, err := reg.Open(); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}

	rooms := reg.List()
	if len(rooms) != 3 {
		t.Fatalf("Expected 3 rooms, got %d", len(rooms))
	}
	for i, r := range rooms {
		if expected := fmt.Sprintf("LIST0%d", i+1); r.ID != expected {
			t.Errorf("Expected %s at position %d, got %s", expected, i, r.ID)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := reg.Open()
			if err != nil {
				t.Errorf("Open failed: %v", err)
				return
			}
			reg.Lookup(r.ID)
			reg.List()
			reg.Remove(r.ID)
		}()
	}
	wg.Wait()

	if reg.Len() != 0 {
		t.Errorf("Expected empty registry after concurrent open/remove, got %d", reg.Len())
	}
}

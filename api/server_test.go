package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wricardo/sphincter/relay/protocol"
	"github.com/wricardo/sphincter/relay/room"
)

// marker answers with a fixed body so routing can be checked.
func marker(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func setupTestServer(t *testing.T, ids ...string) (*Server, *room.Registry) {
	t.Helper()

	i := 0
	reg := room.NewRegistry(room.RegistryOptions{NewID: func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}})
	for range ids {
		rm, err := reg.Open()
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(rm.Close)
	}

	return NewServer(reg, marker("ws"), marker("mcp"), zerolog.Nop()), reg
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestListRooms(t *testing.T) {
	server, _ := setupTestServer(t, "AAAAAA", "BBBBBB")

	rec := do(server, "GET", "/api/rooms")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response struct {
		Count int         `json:"count"`
		Rooms []room.Info `json:"rooms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Count != 2 || len(response.Rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d (%d)", response.Count, len(response.Rooms))
	}
	if response.Rooms[0].ID != "AAAAAA" || response.Rooms[1].ID != "BBBBBB" {
		t.Errorf("Unexpected room order: %s, %s", response.Rooms[0].ID, response.Rooms[1].ID)
	}
}

func TestListRoomsEmpty(t *testing.T) {
	reg := room.NewRegistry(room.RegistryOptions{})
	server := NewServer(reg, marker("ws"), marker("mcp"), zerolog.Nop())

	rec := do(server, "GET", "/api/rooms")

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	if response["count"] != float64(0) {
		t.Errorf("Expected count 0, got %v", response["count"])
	}
	if rooms, ok := response["rooms"].([]interface{}); !ok || len(rooms) != 0 {
		t.Errorf("Expected an empty rooms array, got %v", response["rooms"])
	}
}

func TestGetRoom(t *testing.T) {
	server, reg := setupTestServer(t, "AB12CD")

	rm, _ := reg.Lookup("AB12CD")
	rm.UpdateCache(protocol.OpIdentified, []byte(`{"op":2}`))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"existing room", "/api/rooms/AB12CD", http.StatusOK},
		{"lower case id", "/api/rooms/ab12cd", http.StatusOK},
		{"missing room", "/api/rooms/ZZZZZZ", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(server, "GET", tt.path)
			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}

			if tt.status == http.StatusNotFound {
				var errResp map[string]string
				json.NewDecoder(rec.Body).Decode(&errResp)
				if errResp["error"] != "Room not found" {
					t.Errorf("Expected 'Room not found', got %q", errResp["error"])
				}
				return
			}

			var info room.Info
			if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if info.ID != "AB12CD" {
				t.Errorf("Expected room AB12CD, got %s", info.ID)
			}
			if !info.HasIdentified || info.HasHello {
				t.Errorf("Unexpected cache flags: hello=%v identified=%v", info.HasHello, info.HasIdentified)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t, "AB12CD")

	rec := do(server, "GET", "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", response["status"])
	}
	if response["rooms"] != float64(1) {
		t.Errorf("Expected 1 room, got %v", response["rooms"])
	}
}

func TestMetrics(t *testing.T) {
	server, _ := setupTestServer(t, "AB12CD")

	rec := do(server, "GET", "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sphincter_rooms_active") {
		t.Error("Expected relay metrics in /metrics output")
	}
}

func TestRouting(t *testing.T) {
	server, _ := setupTestServer(t, "AB12CD")

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"websocket", "GET", "/ws?room=AB12CD", http.StatusOK, "ws"},
		{"mcp post", "POST", "/mcp", http.StatusOK, "mcp"},
		{"mcp get", "GET", "/mcp", http.StatusMethodNotAllowed, ""},
		{"unknown path", "GET", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(server, tt.method, tt.path)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" {
				body, _ := io.ReadAll(rec.Body)
				if string(body) != tt.body {
					t.Errorf("Expected body %q, got %q", tt.body, body)
				}
			}
		})
	}
}

func TestCORS(t *testing.T) {
	server, _ := setupTestServer(t, "AB12CD")

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/rooms", nil)
		req.Header.Set("Origin", "https://overlay.example.com")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Expected wildcard CORS origin, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/mcp", nil)
		req.Header.Set("Origin", "https://overlay.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		if rec.Code >= 300 {
			t.Errorf("Expected successful preflight, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("Expected POST to be allowed, got %q", got)
		}
	})
}

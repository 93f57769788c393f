package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/sphincter/relay/room"
)

// Rooms is the read-only view of the registry the admin tools need.
type Rooms interface {
	List() []*room.Room
	Lookup(id string) (*room.Room, bool)
}

// Server exposes live rooms as MCP tools.
type Server struct {
	rooms     Rooms
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server reading from rooms.
func NewServer(name, version string, rooms Rooms) *Server {
	s := &Server{rooms: rooms}

	s.mcpServer = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Sphincter relay - admin interface

Each producer connected over TCP owns one room, identified by a six character
code. Browser clients join a room over WebSocket with /ws?room=CODE.

AVAILABLE TOOLS:
- list_rooms: List live rooms with subscriber counts
- get_room: Show traffic counters and handshake cache state for one room`),
	)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all live relay rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListRooms)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get counters and handshake cache state of a room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Six character room code",
				},
			},
			Required: []string{"room_id"},
		},
	}, s.handleGetRoom)
}

// MCPServer returns the underlying server, e.g. for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeHTTP answers single JSON-RPC messages posted to /mcp.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := s.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

func (s *Server) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rooms := s.rooms.List()

	result := fmt.Sprintf("Live Rooms (%d):\n\n", len(rooms))
	for _, rm := range rooms {
		info := rm.Info()
		result += fmt.Sprintf("- %s (Subscribers: %d, Created: %s)\n",
			info.ID, info.Subscribers, info.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID, _ := args["room_id"].(string)
	roomID = strings.ToUpper(strings.TrimSpace(roomID))

	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	rm, ok := s.rooms.Lookup(roomID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Room %s not found", roomID)), nil
	}

	return mcp.NewToolResultText(formatRoomInfo(rm.Info())), nil
}

func formatRoomInfo(info room.Info) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Room: %s\n", info.ID)
	fmt.Fprintf(&b, "Created: %s (%s ago)\n",
		info.CreatedAt.Format(time.RFC3339), time.Since(info.CreatedAt).Round(time.Second))
	fmt.Fprintf(&b, "Subscribers: %d\n", info.Subscribers)
	fmt.Fprintf(&b, "Published: %d (dropped for lagging subscribers: %d)\n", info.Published, info.Dropped)
	fmt.Fprintf(&b, "Inbound: %d queued, %d total\n", info.InboundDepth, info.Enqueued)
	fmt.Fprintf(&b, "Hello cached: %s\n", yesNo(info.HasHello))
	fmt.Fprintf(&b, "Identified cached: %s\n", yesNo(info.HasIdentified))

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

package tabnotify

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabnotify/kit"
)

// RegisterMCP registers the tabnotify tools on an MCP server.
func (n *Notifier) RegisterMCP(srv *mcp.Server) {
	ep := n.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tabnotify_list",
		Description: "List bound browser tabs with their notification state.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, ep.list, func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})

	byID := []struct {
		name, desc string
		ep         kit.Endpoint
	}{
		{"tabnotify_status", "Show one tab's notification state and captured identity.", ep.status},
		{"tabnotify_start", "Start the notification on a tab: alternate title and cycle favicons.", ep.start},
		{"tabnotify_stop", "Stop the notification on a tab and restore its title and favicon.", ep.stop},
		{"tabnotify_toggle", "Toggle the notification on a tab.", ep.toggle},
	}
	for _, t := range byID {
		kit.RegisterMCPTool(srv, &mcp.Tool{
			Name:        t.name,
			Description: t.desc,
			InputSchema: kit.InputSchema(map[string]any{
				"id": map[string]any{"type": "string", "description": "Tab id"},
			}, "id"),
		}, t.ep, decodeTabReq)
	}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tabnotify_events",
		Description: "List recent notification events from the tab store, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Tab id; empty for all tabs"},
			"limit": map[string]any{"type": "integer", "description": "Maximum events (default 50)"},
		}),
	}, ep.events, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r eventsReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	})
}

func decodeTabReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r tabReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

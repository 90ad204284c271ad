package tabnotify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "tabnotify-test", Version: "0.1.0"}

func mcpSession(t *testing.T, n *Notifier) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	n.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (*mcp.CallToolResult, string) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var text string
	if len(res.Content) > 0 {
		if tc, ok := res.Content[0].(*mcp.TextContent); ok {
			text = tc.Text
		}
	}
	return res, text
}

func TestMCPTools(t *testing.T) {
	n, b, _ := newTestNotifier(t, nil)
	if err := n.BindTab(context.Background(), manualTab("inbox")); err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, n)

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"tabnotify_list", "tabnotify_start", "tabnotify_stop", "tabnotify_toggle", "tabnotify_status", "tabnotify_events"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}

	_, text := mcpCall(t, session, "tabnotify_list", map[string]any{})
	var list []TabStatus
	if err := json.Unmarshal([]byte(text), &list); err != nil || len(list) != 1 {
		t.Fatalf("list: %v %s", err, text)
	}

	res, text := mcpCall(t, session, "tabnotify_start", map[string]any{"id": "inbox"})
	if res.IsError {
		t.Fatalf("start: %s", text)
	}
	var st TabStatus
	json.Unmarshal([]byte(text), &st)
	if !st.Active || b.fake("inbox").CurrentTitle() != "📢 Come back!" {
		t.Errorf("start: %+v", st)
	}

	_, text = mcpCall(t, session, "tabnotify_toggle", map[string]any{"id": "inbox"})
	json.Unmarshal([]byte(text), &st)
	if st.Active {
		t.Error("toggle did not deactivate")
	}

	mcpCall(t, session, "tabnotify_start", map[string]any{"id": "inbox"})
	_, text = mcpCall(t, session, "tabnotify_stop", map[string]any{"id": "inbox"})
	json.Unmarshal([]byte(text), &st)
	if st.Active || b.fake("inbox").CurrentTitle() != "Inbox (3)" {
		t.Errorf("stop: %+v", st)
	}

	_, text = mcpCall(t, session, "tabnotify_status", map[string]any{"id": "inbox"})
	json.Unmarshal([]byte(text), &st)
	if st.ID != "inbox" || st.Snapshot == nil {
		t.Errorf("status: %+v", st)
	}

	res, text = mcpCall(t, session, "tabnotify_events", map[string]any{"id": "inbox"})
	if res.IsError || text != "[]" {
		t.Errorf("events without store: %v %s", res.IsError, text)
	}
}

func TestMCPToolErrors(t *testing.T) {
	n, _, _ := newTestNotifier(t, nil)
	session := mcpSession(t, n)

	if res, _ := mcpCall(t, session, "tabnotify_start", map[string]any{"id": "nope"}); !res.IsError {
		t.Error("unknown tab should be a tool error")
	}
	if res, _ := mcpCall(t, session, "tabnotify_status", map[string]any{}); !res.IsError {
		t.Error("missing id should be a tool error")
	}
}

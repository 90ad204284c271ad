package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	want := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("order: %v", order)
	}
}

func TestChainEmpty(t *testing.T) {
	base := func(context.Context, any) (any, error) { return 1, nil }
	if resp, _ := Chain()(base)(context.Background(), nil); resp != 1 {
		t.Fatalf("resp: %v", resp)
	}
}

func TestLoggingReportsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errBoom := errors.New("boom")

	ep := Logging(logger, "tabnotify_start")(func(context.Context, any) (any, error) {
		return nil, errBoom
	})
	ctx := WithTraceID(WithTransport(context.Background(), "mcp"), "abcd")
	if _, err := ep(ctx, nil); !errors.Is(err, errBoom) {
		t.Fatalf("err: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"endpoint=tabnotify_start", "transport=mcp", "trace_id=abcd", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "http" {
		t.Error("default transport")
	}
	if GetTraceID(ctx) != "" {
		t.Error("default trace id")
	}
}

func TestInputSchema(t *testing.T) {
	s := InputSchema(map[string]any{"id": map[string]any{"type": "string"}}, "id")
	if s["type"] != "object" {
		t.Errorf("type: %v", s["type"])
	}
	if req, _ := s["required"].([]string); len(req) != 1 || req[0] != "id" {
		t.Errorf("required: %v", s["required"])
	}
	if _, ok := InputSchema(nil)["required"]; ok {
		t.Error("required set with no names")
	}
}

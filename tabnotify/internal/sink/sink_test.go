package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/tabnotify/notify"
)

func testEvent() notify.Event {
	return notify.Event{
		ID:           "evt_1",
		ControllerID: "inbox",
		Type:         notify.EventActivated,
		Active:       true,
		Title:        "📢 Come back!",
		Timestamp:    1700000000000,
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %d", len(lines))
	}
	var env struct {
		Type string       `json:"type"`
		Data notify.Event `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "activated" || env.Data != testEvent() {
		t.Errorf("envelope: %+v", env)
	}
}

func TestCallback(t *testing.T) {
	var got notify.Event
	c := NewCallback(func(_ context.Context, ev notify.Event) error {
		got = ev
		return nil
	})
	if err := c.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if got != testEvent() {
		t.Errorf("got %+v", got)
	}
	if err := NewCallback(nil).Send(context.Background(), testEvent()); err != nil {
		t.Errorf("nil callback: %v", err)
	}
}

func TestWebhookDelivers(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type: %q", r.Header.Get("Content-Type"))
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	if err := w.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(body, []byte(`"controller_id":"inbox"`)) {
		t.Errorf("body: %s", body)
	}
}

func TestWebhookRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestWebhookGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := w.Send(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}

type failing struct{ closed bool }

func (f *failing) Send(context.Context, notify.Event) error { return errors.New("down") }
func (f *failing) Close() error                            { f.closed = true; return nil }

func TestRouterFansOut(t *testing.T) {
	var n atomic.Int32
	ok := NewCallback(func(context.Context, notify.Event) error { n.Add(1); return nil })
	bad := &failing{}

	r := NewRouter(nil, bad, ok, ok)
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
	err := r.Send(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v", err)
	}
	if n.Load() != 2 {
		t.Errorf("healthy sinks reached %d times, want 2", n.Load())
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !bad.closed {
		t.Error("sink not closed")
	}
}

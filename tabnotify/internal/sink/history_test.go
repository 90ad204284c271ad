package sink

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabnotify/dbopen"
	"github.com/hazyhaar/tabnotify/notify"
)

func historyEvent(id, ctrl string, typ notify.EventType, ts int64) notify.Event {
	return notify.Event{ID: id, ControllerID: ctrl, Type: typ, Active: typ == notify.EventActivated, Timestamp: ts}
}

func TestHistoryFlushOnClose(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(HistorySchema))
	h := NewHistory(db, WithHistoryFlushInterval(time.Hour))
	ctx := context.Background()

	h.Send(ctx, historyEvent("evt_1", "inbox", notify.EventBound, 1000))
	h.Send(ctx, historyEvent("evt_2", "inbox", notify.EventActivated, 2000))
	h.Send(ctx, historyEvent("evt_3", "chat", notify.EventBound, 1500))

	if got, _ := h.Query(ctx, "", 0); len(got) != 0 {
		t.Fatalf("events visible before flush: %d", len(got))
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := h.Query(ctx, "inbox", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "evt_2" || got[1].ID != "evt_1" {
		t.Fatalf("inbox history: %+v", got)
	}
	if !got[0].Active || got[0].Type != notify.EventActivated {
		t.Errorf("decoded event: %+v", got[0])
	}

	all, _ := h.Query(ctx, "", 2)
	if len(all) != 2 {
		t.Errorf("limit: got %d", len(all))
	}

	if err := h.Send(ctx, historyEvent("evt_4", "inbox", notify.EventBound, 3000)); err == nil {
		t.Error("send after close should fail")
	}
}

func TestHistoryBufferFullFlushes(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(HistorySchema))
	h := NewHistory(db, WithHistoryBuffer(2), WithHistoryFlushInterval(time.Hour))
	defer h.Close()
	ctx := context.Background()

	h.Send(ctx, historyEvent("evt_1", "inbox", notify.EventBound, 1000))
	h.Send(ctx, historyEvent("evt_2", "inbox", notify.EventActivated, 2000))

	got, err := h.Query(ctx, "inbox", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("full buffer not flushed: %d", len(got))
	}
}

func TestHistoryDuplicateIgnored(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(HistorySchema))
	h := NewHistory(db, WithHistoryFlushInterval(time.Hour))
	defer h.Close()
	ctx := context.Background()

	ev := historyEvent("evt_1", "inbox", notify.EventBound, 1000)
	h.Send(ctx, ev)
	h.Flush()
	h.Send(ctx, ev)
	h.Flush()

	got, _ := h.Query(ctx, "inbox", 0)
	if len(got) != 1 {
		t.Errorf("duplicate stored: %d", len(got))
	}
}

func TestHistoryCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(HistorySchema))
	h := NewHistory(db, WithHistoryFlushInterval(time.Hour))
	defer h.Close()
	ctx := context.Background()

	now := time.Now()
	h.Send(ctx, historyEvent("evt_old", "inbox", notify.EventBound, now.Add(-48*time.Hour).UnixMilli()))
	h.Send(ctx, historyEvent("evt_new", "inbox", notify.EventActivated, now.UnixMilli()))
	h.Flush()

	n, err := h.Cleanup(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	got, _ := h.Query(ctx, "inbox", 0)
	if len(got) != 1 || got[0].ID != "evt_new" {
		t.Errorf("after cleanup: %+v", got)
	}
}

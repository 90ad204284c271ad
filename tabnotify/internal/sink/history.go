package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/tabnotify/notify"
)

// HistorySchema is the event history table. It lives next to notify_tabs in
// the tab store.
const HistorySchema = `
CREATE TABLE IF NOT EXISTS notify_events (
    event_id      TEXT PRIMARY KEY,
    controller_id TEXT NOT NULL,
    event_type    TEXT NOT NULL,
    active        INTEGER NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    timestamp     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notify_events_controller
    ON notify_events(controller_id, timestamp DESC);
`

// History buffers events and writes them to SQLite in batches. Send never
// blocks on the database; a full buffer is flushed inline.
type History struct {
	db            *sql.DB
	logger        *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []notify.Event
	closed bool

	stop chan struct{}
	done chan struct{}
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryBuffer sets how many events are held before a forced flush.
// Default: 64.
func WithHistoryBuffer(n int) HistoryOption {
	return func(h *History) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHistoryFlushInterval sets the periodic flush. Default: 2s.
func WithHistoryFlushInterval(d time.Duration) HistoryOption {
	return func(h *History) {
		if d > 0 {
			h.flushInterval = d
		}
	}
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(l *slog.Logger) HistoryOption {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHistory creates a history sink on db. HistorySchema must already be
// applied.
func NewHistory(db *sql.DB, opts ...HistoryOption) *History {
	h := &History{
		db:            db,
		logger:        slog.Default(),
		bufferSize:    64,
		flushInterval: 2 * time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.buffer = make([]notify.Event, 0, h.bufferSize)
	go h.flushLoop()
	return h
}

// Send queues ev.
func (h *History) Send(_ context.Context, ev notify.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("sink: history closed")
	}
	h.buffer = append(h.buffer, ev)
	if len(h.buffer) >= h.bufferSize {
		h.flushLocked()
	}
	return nil
}

// Flush writes buffered events now.
func (h *History) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

// Query returns the most recent events of one controller, newest first.
// An empty controllerID matches every controller.
func (h *History) Query(ctx context.Context, controllerID string, limit int) ([]notify.Event, error) {
	q := "SELECT event_id, controller_id, event_type, active, title, timestamp FROM notify_events"
	var args []any
	if controllerID != "" {
		q += " WHERE controller_id = ?"
		args = append(args, controllerID)
	}
	q += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sink: query history: %w", err)
	}
	defer rows.Close()

	var out []notify.Event
	for rows.Next() {
		var ev notify.Event
		var typ string
		var active int
		if err := rows.Scan(&ev.ID, &ev.ControllerID, &typ, &active, &ev.Title, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("sink: scan history: %w", err)
		}
		ev.Type = notify.EventType(typ)
		ev.Active = active != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than before and returns how many went.
func (h *History) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM notify_events WHERE timestamp < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sink: cleanup history: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is left and stops the background loop. The database
// is not closed.
func (h *History) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done
	return nil
}

func (h *History) flushLoop() {
	defer close(h.done)
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			h.Flush()
			return
		case <-ticker.C:
			h.Flush()
		}
	}
}

func (h *History) flushLocked() {
	if len(h.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.logger.Error("sink: history begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO notify_events (event_id, controller_id, event_type, active, title, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		h.logger.Error("sink: history prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, ev := range h.buffer {
		active := 0
		if ev.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.ControllerID, string(ev.Type), active, ev.Title, ev.Timestamp); err != nil {
			h.logger.Error("sink: history insert", "event", ev.ID, "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		h.logger.Error("sink: history commit", "error", err)
		return
	}
	h.buffer = h.buffer[:0]
}

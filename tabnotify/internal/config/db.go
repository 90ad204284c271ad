package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabnotify/dbopen"
	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/watch"
)

// Schema for the notify_tabs table. Rows leave the active set by changing
// status, which also bumps updated_at so watchers notice.
const Schema = `
CREATE TABLE IF NOT EXISTS notify_tabs (
	id             TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	attach         INTEGER DEFAULT 0,
	surface        TEXT DEFAULT 'canvas',
	title          TEXT DEFAULT '',
	favicons       TEXT DEFAULT '[]',
	interval_ms    INTEGER DEFAULT 1000,
	manual_trigger INTEGER DEFAULT 0,
	status         TEXT DEFAULT 'active',
	updated_at     INTEGER NOT NULL
);
`

// LoadTabs reads every active tab.
func LoadTabs(ctx context.Context, db *sql.DB) ([]TabConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, attach, surface, title, favicons, interval_ms, manual_trigger
		FROM notify_tabs
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load tabs: %w", err)
	}
	defer rows.Close()

	var tabs []TabConfig
	for rows.Next() {
		var t TabConfig
		var attach, manual int
		var favJSON string
		var intervalMs int64

		if err := rows.Scan(&t.ID, &t.URL, &attach, &t.Surface, &t.Title,
			&favJSON, &intervalMs, &manual); err != nil {
			return nil, fmt.Errorf("config: scan tab: %w", err)
		}
		if err := json.Unmarshal([]byte(favJSON), &t.Favicons); err != nil {
			return nil, fmt.Errorf("config: tab %s favicons: %w", t.ID, err)
		}
		t.Attach = attach != 0
		t.ManualTrigger = manual != 0
		t.Interval = time.Duration(intervalMs) * time.Millisecond
		t.ApplyDefaults()
		tabs = append(tabs, t)
	}
	return tabs, rows.Err()
}

// SaveTab inserts or replaces a tab and marks it active.
func SaveTab(ctx context.Context, db *sql.DB, t TabConfig) error {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	favs := t.Favicons
	if favs == nil {
		favs = []favicon.Variant{}
	}
	favJSON, err := json.Marshal(favs)
	if err != nil {
		return fmt.Errorf("config: encode favicons: %w", err)
	}

	_, err = dbopen.Exec(ctx, db, `
		INSERT INTO notify_tabs (id, url, attach, surface, title, favicons,
		                         interval_ms, manual_trigger, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', `+nextStamp+`)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url, attach = excluded.attach, surface = excluded.surface,
			title = excluded.title, favicons = excluded.favicons,
			interval_ms = excluded.interval_ms, manual_trigger = excluded.manual_trigger,
			status = 'active', updated_at = excluded.updated_at
	`, t.ID, t.URL, boolInt(t.Attach), t.Surface, t.Title, string(favJSON),
		t.Interval.Milliseconds(), boolInt(t.ManualTrigger), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: save tab %s: %w", t.ID, err)
	}
	return nil
}

// DisableTab removes a tab from the active set. Unknown ids are not an error.
func DisableTab(ctx context.Context, db *sql.DB, id string) error {
	_, err := dbopen.Exec(ctx, db, `
		UPDATE notify_tabs SET status = 'disabled', updated_at = `+nextStamp+`
		WHERE id = ?
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("config: disable tab %s: %w", id, err)
	}
	return nil
}

// nextStamp is max(now, latest+1) so two writes in the same millisecond
// still move MAX(updated_at). It consumes one bind parameter (now).
const nextStamp = `MAX(?, (SELECT COALESCE(MAX(updated_at), 0) + 1 FROM notify_tabs))`

// WatchTabs creates a watcher that fires when any notify_tabs row changes.
func WatchTabs(db *sql.DB, logger *slog.Logger) *watch.Watcher {
	return watch.New(db, watch.Options{
		Interval: 200 * time.Millisecond,
		Debounce: 500 * time.Millisecond,
		Detector: watch.MaxColumn("notify_tabs", "updated_at"),
		Logger:   logger,
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

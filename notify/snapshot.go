package notify

import (
	"log/slog"

	"github.com/hazyhaar/tabnotify/host"
)

// Snapshot is the tab identity captured before any notification altered it.
type Snapshot struct {
	Title   string              `json:"title"`
	Entries []host.FaviconEntry `json:"entries"`
}

// snapshotManager captures the pre-existing identity once and writes it back
// on demand. Callers hold the controller lock.
type snapshotManager struct {
	env      host.Environment
	logger   *slog.Logger
	snap     Snapshot
	captured bool
}

// captureOnce reads the environment on the first successful call and returns
// the stored snapshot on every later call. The bool is false while nothing
// has been captured (host unavailable or unreadable).
func (m *snapshotManager) captureOnce() (Snapshot, bool) {
	if m.captured {
		return m.snap, true
	}
	if !m.env.Available() {
		return Snapshot{}, false
	}

	title, err := m.env.Title()
	if err != nil {
		m.logger.Warn("notify: capture title", "error", err)
		return Snapshot{}, false
	}
	entries, err := host.EnsureFavicons(m.env)
	if err != nil {
		m.logger.Warn("notify: capture favicons", "error", err)
		return Snapshot{}, false
	}

	m.snap = Snapshot{Title: title, Entries: entries}
	m.captured = true
	m.logger.Debug("notify: snapshot captured", "title", title, "favicons", len(entries))
	return m.snap, true
}

// restore writes the captured title back and, for every index present in
// both the snapshot and the live set, the captured href. Live entries past
// the snapshot's length are left untouched.
func (m *snapshotManager) restore() {
	if !m.captured || !m.env.Available() {
		return
	}

	if err := m.env.SetTitle(m.snap.Title); err != nil {
		m.logger.Warn("notify: restore title", "error", err)
	}

	live, err := host.EnsureFavicons(m.env)
	if err != nil {
		m.logger.Warn("notify: restore favicons", "error", err)
		return
	}
	for i, orig := range m.snap.Entries {
		if i >= len(live) {
			break
		}
		if err := m.env.SetFaviconHref(i, orig.Href); err != nil {
			m.logger.Warn("notify: restore favicon", "index", i, "error", err)
		}
	}
}

func (m *snapshotManager) discard() {
	m.snap = Snapshot{}
	m.captured = false
}

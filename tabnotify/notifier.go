// Package tabnotify is a daemon that binds notification controllers to
// browser tabs. Tabs come from a YAML file, an SQLite store (hot reloaded)
// or the API; each gets its own controller driving title and favicon.
//
// The daemon only hosts controllers. It does not decide when a user should
// be notified beyond what each controller's visibility binding does; callers
// drive manual tabs through the HTTP API, MCP tools or the Go API.
package tabnotify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/tabnotify/dbopen"
	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/notify"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/config"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/sink"
)

var (
	// ErrUnknownTab is returned for ids that are not bound.
	ErrUnknownTab = errors.New("tabnotify: unknown tab")
	// ErrTabBound is returned when binding an id that is already bound.
	ErrTabBound = errors.New("tabnotify: tab already bound")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tabnotify: closed")
)

const eventBuffer = 256

// Notifier is the top-level orchestrator: one controller per bound tab,
// events fanned out to sinks.
type Notifier struct {
	cfg    *config.Config
	binder Binder
	router *sink.Router
	logger *slog.Logger

	mu          sync.Mutex
	fileTabs    []TabConfig
	tabs        map[string]*boundTab
	db          *sql.DB
	history     *sink.History
	cancelWatch context.CancelFunc
	closed      bool

	events    chan notify.Event
	stopPump  context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

type boundTab struct {
	cfg     TabConfig
	ctrl    *notify.Controller
	binding *Binding
}

// New creates a Notifier that drives Chrome as configured in cfg.Browser.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return NewWithBinder(cfg, logger, newBrowserBinder(cfg.Browser, logger), sinks...)
}

// NewWithBinder creates a Notifier on a custom Binder.
func NewWithBinder(cfg *Config, logger *slog.Logger, binder Binder, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	pumpCtx, stop := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:       cfg,
		binder:    binder,
		router:    sink.NewRouter(logger, sinks...),
		logger:    logger,
		fileTabs:  slices.Clone(cfg.Tabs),
		tabs:      make(map[string]*boundTab),
		events:    make(chan notify.Event, eventBuffer),
		stopPump:  stop,
		startedAt: time.Now(),
	}
	n.wg.Add(1)
	go n.pump(pumpCtx)
	return n
}

// Start prepares the binder, opens the tab store if configured and binds
// every configured tab. A tab that fails to bind is logged and skipped.
func (n *Notifier) Start(ctx context.Context) error {
	if err := n.binder.Start(ctx, func() { n.rebindAll(ctx) }); err != nil {
		return err
	}

	tabs := n.fileTabsCopy()
	if n.cfg.Store.Path != "" {
		stored, err := n.openStore(ctx)
		if err != nil {
			return err
		}
		tabs = mergeTabs(tabs, stored)
	}

	for _, tc := range tabs {
		if err := n.BindTab(ctx, tc); err != nil {
			n.logger.Error("tabnotify: failed to bind tab", "id", tc.ID, "url", tc.URL, "error", err)
		}
	}
	n.logger.Info("tabnotify: started", "tabs", len(n.Statuses()), "sinks", n.router.Len())
	return nil
}

func (n *Notifier) openStore(ctx context.Context) ([]TabConfig, error) {
	db, err := dbopen.Open(n.cfg.Store.Path,
		dbopen.WithSchema(config.Schema),
		dbopen.WithSchema(sink.HistorySchema),
		dbopen.WithMkdirAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("tabnotify: open store: %w", err)
	}
	w := config.WatchTabs(db, n.logger)
	if err := w.Prime(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("tabnotify: read store version: %w", err)
	}
	stored, err := config.LoadTabs(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	history := sink.NewHistory(db, sink.WithHistoryLogger(n.logger))
	if retention := n.cfg.Store.Retention; retention > 0 {
		if removed, err := history.Cleanup(ctx, time.Now().Add(-retention)); err != nil {
			n.logger.Warn("tabnotify: history cleanup", "error", err)
		} else if removed > 0 {
			n.logger.Info("tabnotify: history cleanup", "removed", removed)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.db = db
	n.history = history
	n.cancelWatch = cancel
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		w.OnChange(watchCtx, func() error { return n.reloadFromStore(watchCtx) })
	}()

	n.logger.Info("tabnotify: tab store opened", "path", n.cfg.Store.Path, "tabs", len(stored))
	return stored, nil
}

func (n *Notifier) reloadFromStore(ctx context.Context) error {
	n.mu.Lock()
	db := n.db
	n.mu.Unlock()
	if db == nil {
		return nil
	}
	stored, err := config.LoadTabs(ctx, db)
	if err != nil {
		return err
	}
	return n.Reload(ctx, mergeTabs(n.fileTabsCopy(), stored))
}

// BindTab opens (or attaches to) the tab and binds a controller to it.
func (n *Notifier) BindTab(ctx context.Context, tc TabConfig) error {
	tc.ApplyDefaults()
	if err := tc.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if _, ok := n.tabs[tc.ID]; ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTabBound, tc.ID)
	}
	n.mu.Unlock()

	b, err := n.binder.Bind(ctx, tc)
	if err != nil {
		return fmt.Errorf("tabnotify: bind %s: %w", tc.ID, err)
	}
	ctrl := notify.Bind(b.Env, tc.Config,
		notify.WithID(tc.ID),
		notify.WithLogger(n.logger),
		notify.WithRenderer(favicon.NewRenderer(b.Surface, n.logger)),
		notify.WithObserver(n.observe),
	)
	bt := &boundTab{cfg: tc, ctrl: ctrl, binding: b}

	n.mu.Lock()
	if n.closed || n.tabs[tc.ID] != nil {
		closed := n.closed
		n.mu.Unlock()
		n.release(bt)
		if closed {
			return ErrClosed
		}
		return fmt.Errorf("%w: %s", ErrTabBound, tc.ID)
	}
	n.tabs[tc.ID] = bt
	n.mu.Unlock()

	n.logger.Info("tabnotify: tab bound", "id", tc.ID, "url", tc.URL, "surface", tc.Surface)
	return nil
}

// UnbindTab tears the tab's controller down, restoring its identity, and
// releases the tab.
func (n *Notifier) UnbindTab(id string) error {
	n.mu.Lock()
	bt, ok := n.tabs[id]
	delete(n.tabs, id)
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	n.release(bt)
	n.logger.Info("tabnotify: tab unbound", "id", id)
	return nil
}

// RemoveTab unbinds the tab and forgets it, so a later reload does not
// bring it back: file tabs are dropped from the in-memory list and stored
// tabs are disabled in the store.
func (n *Notifier) RemoveTab(ctx context.Context, id string) error {
	if err := n.UnbindTab(id); err != nil {
		return err
	}
	n.mu.Lock()
	n.fileTabs = slices.DeleteFunc(n.fileTabs, func(t TabConfig) bool { return t.ID == id })
	db := n.db
	n.mu.Unlock()
	if db != nil {
		return config.DisableTab(ctx, db, id)
	}
	return nil
}

// PersistTab adds or replaces a tab durably. With a tab store open the row
// is written and the store watcher binds it; otherwise the tab is rebound
// in memory only.
func (n *Notifier) PersistTab(ctx context.Context, tc TabConfig) error {
	n.mu.Lock()
	db := n.db
	n.mu.Unlock()
	if db != nil {
		return config.SaveTab(ctx, db, tc)
	}

	if err := n.UnbindTab(tc.ID); err != nil && !errors.Is(err, ErrUnknownTab) {
		return err
	}
	return n.BindTab(ctx, tc)
}

// Reload converges the bound set on tabs. Tabs that disappeared or whose
// config changed are torn down first; new or changed tabs are then bound.
// Unchanged tabs keep their controller and state.
func (n *Notifier) Reload(ctx context.Context, tabs []TabConfig) error {
	var errs []error
	desired := make(map[string]TabConfig, len(tabs))
	for _, tc := range tabs {
		tc.ApplyDefaults()
		if err := tc.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		desired[tc.ID] = tc
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	var stale []*boundTab
	for id, bt := range n.tabs {
		if want, ok := desired[id]; !ok || !want.Equal(bt.cfg) {
			stale = append(stale, bt)
			delete(n.tabs, id)
		}
	}
	var missing []string
	for id := range desired {
		if _, ok := n.tabs[id]; !ok {
			missing = append(missing, id)
		}
	}
	n.mu.Unlock()

	for _, bt := range stale {
		n.release(bt)
	}
	sort.Strings(missing)
	for _, id := range missing {
		if err := n.BindTab(ctx, desired[id]); err != nil {
			errs = append(errs, err)
		}
	}

	n.logger.Info("tabnotify: reloaded", "released", len(stale), "bound", len(missing), "errors", len(errs))
	return errors.Join(errs...)
}

// Activate starts the tab's notification.
func (n *Notifier) Activate(id string) (TabStatus, error) {
	return n.drive(id, (*notify.Controller).Start)
}

// Deactivate stops the tab's notification and restores its identity.
func (n *Notifier) Deactivate(id string) (TabStatus, error) {
	return n.drive(id, (*notify.Controller).Stop)
}

// Toggle flips the tab's notification.
func (n *Notifier) Toggle(id string) (TabStatus, error) {
	return n.drive(id, (*notify.Controller).Toggle)
}

func (n *Notifier) drive(id string, op func(*notify.Controller)) (TabStatus, error) {
	bt, err := n.lookup(id)
	if err != nil {
		return TabStatus{}, err
	}
	op(bt.ctrl)
	return statusOf(bt), nil
}

// Status reports one tab.
func (n *Notifier) Status(id string) (TabStatus, error) {
	bt, err := n.lookup(id)
	if err != nil {
		return TabStatus{}, err
	}
	return statusOf(bt), nil
}

// Statuses reports every bound tab, ordered by id.
func (n *Notifier) Statuses() []TabStatus {
	n.mu.Lock()
	tabs := make([]*boundTab, 0, len(n.tabs))
	for _, bt := range n.tabs {
		tabs = append(tabs, bt)
	}
	n.mu.Unlock()

	out := make([]TabStatus, 0, len(tabs))
	for _, bt := range tabs {
		out = append(out, statusOf(bt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Events returns the stored event history of one tab, newest first. An
// empty id returns every tab's events. Without a tab store there is no
// history and the result is empty.
func (n *Notifier) Events(ctx context.Context, id string, limit int) ([]notify.Event, error) {
	n.mu.Lock()
	history := n.history
	n.mu.Unlock()
	if history == nil {
		return nil, nil
	}
	history.Flush()
	return history.Query(ctx, id, limit)
}

// Close tears every controller down, closes the browser, flushes pending
// events to the sinks and closes them.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	tabs := make([]*boundTab, 0, len(n.tabs))
	for _, bt := range n.tabs {
		tabs = append(tabs, bt)
	}
	n.tabs = make(map[string]*boundTab)
	cancelWatch, db, history := n.cancelWatch, n.db, n.history
	n.mu.Unlock()

	if cancelWatch != nil {
		cancelWatch()
	}
	for _, bt := range tabs {
		n.release(bt)
	}

	var errs []error
	if err := n.binder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("tabnotify: close binder: %w", err))
	}
	n.stopPump()
	n.wg.Wait()
	if err := n.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if history != nil {
		history.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	n.logger.Info("tabnotify: closed", "tabs", len(tabs))
	return errors.Join(errs...)
}

// rebindAll rebuilds every binding after the browser connection was
// replaced. The old pages are gone, so restoring is best effort.
func (n *Notifier) rebindAll(ctx context.Context) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	tabs := make([]*boundTab, 0, len(n.tabs))
	for _, bt := range n.tabs {
		tabs = append(tabs, bt)
	}
	n.tabs = make(map[string]*boundTab)
	n.mu.Unlock()

	for _, bt := range tabs {
		n.release(bt)
	}
	for _, bt := range tabs {
		if err := n.BindTab(ctx, bt.cfg); err != nil {
			n.logger.Error("tabnotify: rebind failed", "id", bt.cfg.ID, "error", err)
		}
	}
	n.logger.Info("tabnotify: rebound after reconnect", "tabs", len(tabs))
}

func (n *Notifier) lookup(id string) (*boundTab, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	bt, ok := n.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	return bt, nil
}

func (n *Notifier) release(bt *boundTab) {
	bt.ctrl.Teardown()
	if bt.binding.Close != nil {
		if err := bt.binding.Close(); err != nil {
			n.logger.Warn("tabnotify: release tab", "id", bt.cfg.ID, "error", err)
		}
	}
}

func (n *Notifier) fileTabsCopy() []TabConfig {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.fileTabs)
}

// observe runs on controller goroutines; it must never block them.
func (n *Notifier) observe(ev notify.Event) {
	select {
	case n.events <- ev:
	default:
		n.logger.Warn("tabnotify: event buffer full, dropping", "tab", ev.ControllerID, "type", ev.Type)
	}
}

func (n *Notifier) pump(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case ev := <-n.events:
			n.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-n.events:
					n.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(ev notify.Event) {
	n.mu.Lock()
	history := n.history
	n.mu.Unlock()
	if history != nil {
		history.Send(context.Background(), ev)
	}
	if n.router.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.router.Send(ctx, ev); err != nil {
		n.logger.Debug("tabnotify: event delivery incomplete", "type", ev.Type, "error", err)
	}
}

// mergeTabs overlays stored tabs on file tabs by id, keeping file order
// first and appending stored-only tabs.
func mergeTabs(file, stored []TabConfig) []TabConfig {
	byID := make(map[string]int, len(file))
	out := slices.Clone(file)
	for i, t := range out {
		byID[t.ID] = i
	}
	for _, t := range stored {
		if i, ok := byID[t.ID]; ok {
			out[i] = t
			continue
		}
		byID[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

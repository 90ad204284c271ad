// Package notify implements the tab notification controller: a two-state
// machine that swaps a tab's title and cycles its favicon while active, and
// restores the identity it captured at bind time when deactivated.
//
// All environment effects go through a host.Environment. Operations are
// serialised by one mutex so timer ticks and visibility callbacks delivered
// on other goroutines behave as if run on a single event loop. Public
// methods never fail: host errors are logged and the step degrades to a
// no-op.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/host"
	"github.com/hazyhaar/tabnotify/idgen"
)

// State is a read-only view of the controller's internal state.
type State struct {
	Active bool             `json:"active"`
	Index  int              `json:"index"`
	Timer  host.TimerHandle `json:"timer,omitempty"`
	Closed bool             `json:"closed,omitempty"`
}

// Option configures a Controller at bind time.
type Option func(*Controller)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRenderer sets the favicon renderer. Default: an in-process
// favicon.ImageSurface.
func WithRenderer(r *favicon.Renderer) Option {
	return func(c *Controller) { c.render = r }
}

// WithObserver registers fn to receive lifecycle events. fn runs without the
// controller lock held and may call back into the controller.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithID sets the controller ID carried by events. Default: a fresh
// idgen.Controller ID.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// Controller drives one tab's identity.
type Controller struct {
	id       string
	env      host.Environment
	cfg      Config
	render   *favicon.Renderer
	logger   *slog.Logger
	observer func(Event)

	mu     sync.Mutex
	active bool
	closed bool
	snap   snapshotManager
	anim   animationLoop
	vis    visibilityBinding
}

// Bind creates a controller for env. It captures the tab's identity
// immediately and, unless cfg.ManualTrigger is set, subscribes to the
// visibility signal: hidden activates, visible deactivates.
func Bind(env host.Environment, cfg Config, opts ...Option) *Controller {
	cfg = cfg.clone()
	cfg.defaults()

	c := &Controller{
		env:    env,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.id == "" {
		c.id = idgen.Controller()
	}
	if c.render == nil {
		c.render = favicon.NewRenderer(favicon.NewImageSurface(), c.logger)
	}
	c.logger = c.logger.With("controller", c.id)

	c.snap = snapshotManager{env: env, logger: c.logger}
	c.anim = animationLoop{sched: env, lock: &c.mu}
	c.vis = visibilityBinding{env: env, logger: c.logger}

	c.mu.Lock()
	if env.Available() {
		c.snap.captureOnce()
	}
	if !cfg.ManualTrigger {
		c.vis.attach(c.Start, c.Stop)
	}
	c.mu.Unlock()

	c.logger.Info("notify: bound",
		"manual_trigger", cfg.ManualTrigger,
		"favicons", len(cfg.Favicons),
		"interval", cfg.Interval)
	c.emit(EventBound, false)
	return c
}

// ID returns the controller ID.
func (c *Controller) ID() string { return c.id }

// Config returns a copy of the bound configuration.
func (c *Controller) Config() Config { return c.cfg.clone() }

// Start activates the notification. No-op when already active, torn down,
// or when the host is unavailable.
func (c *Controller) Start() {
	c.mu.Lock()
	changed := c.startLocked()
	c.mu.Unlock()
	if changed {
		c.emit(EventActivated, true)
	}
}

// Stop deactivates the notification and restores the captured identity.
// No-op when already inactive, torn down, or when the host is unavailable.
func (c *Controller) Stop() {
	c.mu.Lock()
	changed := c.stopLocked()
	c.mu.Unlock()
	if changed {
		c.emit(EventDeactivated, false)
	}
}

// Toggle stops an active notification or starts an inactive one.
func (c *Controller) Toggle() {
	c.mu.Lock()
	var (
		changed bool
		typ     EventType
	)
	if c.active {
		changed, typ = c.stopLocked(), EventDeactivated
	} else {
		changed, typ = c.startLocked(), EventActivated
	}
	active := c.active
	c.mu.Unlock()
	if changed {
		c.emit(typ, active)
	}
}

// IsActive reports the current state without side effects.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns a copy of the internal state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Active: c.active,
		Index:  c.anim.index,
		Timer:  c.anim.handle,
		Closed: c.closed,
	}
}

// Snapshot returns the captured identity, if any.
func (c *Controller) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.captured {
		return Snapshot{}, false
	}
	s := c.snap.snap
	s.Entries = append([]host.FaviconEntry(nil), s.Entries...)
	return s, true
}

// Teardown unsubscribes from the visibility signal, cancels any running
// animation and restores the captured identity. The controller is inert
// afterwards. Calling Teardown more than once is a no-op.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.vis.detach()

	// The timer must not outlive the controller even if the host went
	// away, so cancel before the availability-gated stop.
	c.anim.stop()
	if c.active && c.env.Available() {
		c.snap.restore()
	}
	c.active = false
	c.closed = true
	c.snap.discard()
	c.mu.Unlock()

	c.logger.Info("notify: torn down")
	c.emit(EventTornDown, false)
}

func (c *Controller) startLocked() bool {
	if c.closed || c.active || !c.env.Available() {
		return false
	}
	if _, ok := c.snap.captureOnce(); !ok {
		// Never alter a tab whose identity could not be captured.
		c.logger.Warn("notify: start skipped, identity not captured")
		return false
	}

	if c.cfg.Title != "" {
		if err := c.env.SetTitle(c.cfg.Title); err != nil {
			c.logger.Warn("notify: set title", "error", err)
		}
	}
	if len(c.cfg.Favicons) > 0 {
		c.anim.start(c.cfg.Favicons, c.cfg.Interval, c.apply)
	}
	c.active = true
	c.logger.Debug("notify: activated")
	return true
}

func (c *Controller) stopLocked() bool {
	if c.closed || !c.active || !c.env.Available() {
		return false
	}
	c.anim.stop()
	c.snap.restore()
	c.active = false
	c.logger.Debug("notify: deactivated")
	return true
}

// apply writes one variant to every favicon-declaring element. An empty
// rendered reference skips the write instead of blanking the icon.
func (c *Controller) apply(v favicon.Variant) {
	if !c.env.Available() {
		return
	}
	ref := c.render.Render(v)
	if ref == "" {
		c.logger.Debug("notify: empty favicon reference, write skipped", "variant", v.String())
		return
	}
	entries, err := host.EnsureFavicons(c.env)
	if err != nil {
		c.logger.Warn("notify: list favicons", "error", err)
		return
	}
	for i := range entries {
		if err := c.env.SetFaviconHref(i, ref); err != nil {
			c.logger.Warn("notify: set favicon", "index", i, "error", err)
		}
	}
}

func (c *Controller) emit(typ EventType, active bool) {
	if c.observer == nil {
		return
	}
	c.observer(Event{
		ID:           idgen.Event(),
		ControllerID: c.id,
		Type:         typ,
		Active:       active,
		Title:        c.cfg.Title,
		Timestamp:    time.Now().UnixMilli(),
	})
}

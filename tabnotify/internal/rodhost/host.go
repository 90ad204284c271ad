// Package rodhost implements host.Environment on a live Chrome tab driven
// through go-rod: document.title, the <link rel*="icon"> elements in <head>,
// and the page's visibilitychange event relayed over Runtime.addBinding.
package rodhost

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tabnotify/host"
)

//go:embed visibility.js
var visibilityJS string

const bindingName = "__tabnotify_visibility"

const (
	jsAvailable = `() => typeof document !== "undefined" && !!(document.head || document.getElementsByTagName("head")[0])`
	jsTitle     = `() => document.title`
	jsSetTitle  = `(t) => { document.title = t; }`

	jsEntries = `() => {
		const head = document.head || document.getElementsByTagName("head")[0];
		return JSON.stringify(Array.from(head.querySelectorAll('link[rel*="icon"]')).map((l, i) => ({
			index: i, rel: l.getAttribute("rel") || "", href: l.getAttribute("href") || ""
		})));
	}`

	jsCreateDefaults = `() => {
		const head = document.head || document.getElementsByTagName("head")[0];
		const icon = document.createElement("link");
		icon.rel = "icon";
		icon.type = "image/x-icon";
		head.appendChild(icon);
		const apple = document.createElement("link");
		apple.rel = "apple-touch-icon";
		head.appendChild(apple);
	}`

	jsSetHref = `(i, href) => {
		const head = document.head || document.getElementsByTagName("head")[0];
		const link = head.querySelectorAll('link[rel*="icon"]')[i];
		if (!link) return;
		if (href === "") link.removeAttribute("href");
		else link.setAttribute("href", href);
	}`
)

// Host is a host.Environment backed by a Rod page. Timers run on a local
// TickerScheduler; every DOM access is one Runtime.evaluate round trip.
type Host struct {
	*host.TickerScheduler

	page    *rod.Page
	logger  *slog.Logger
	timeout time.Duration

	mu           sync.Mutex
	closed       bool
	nextSub      host.Subscription
	subs         map[host.Subscription]func(host.Visibility)
	cancelListen context.CancelFunc
	removeScript func() error
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTimeout bounds each DevTools round trip. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) { h.timeout = d }
}

// New creates a Host on page.
func New(page *rod.Page, opts ...Option) *Host {
	h := &Host{
		TickerScheduler: host.NewTickerScheduler(),
		page:            page,
		logger:          slog.Default(),
		timeout:         5 * time.Second,
		subs:            make(map[host.Subscription]func(host.Visibility)),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Host) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed || h.page == nil {
		return nil, fmt.Errorf("rodhost: page closed")
	}
	return h.page.Timeout(h.timeout).Eval(js, args...)
}

// Available implements host.Environment.
func (h *Host) Available() bool {
	res, err := h.eval(jsAvailable)
	if err != nil {
		h.logger.Debug("rodhost: availability check failed", "error", err)
		return false
	}
	return res.Value.Bool()
}

// Title implements host.Environment.
func (h *Host) Title() (string, error) {
	res, err := h.eval(jsTitle)
	if err != nil {
		return "", fmt.Errorf("rodhost: read title: %w", err)
	}
	return res.Value.Str(), nil
}

// SetTitle implements host.Environment.
func (h *Host) SetTitle(title string) error {
	if _, err := h.eval(jsSetTitle, title); err != nil {
		return fmt.Errorf("rodhost: set title: %w", err)
	}
	return nil
}

// FaviconEntries implements host.Environment.
func (h *Host) FaviconEntries() ([]host.FaviconEntry, error) {
	res, err := h.eval(jsEntries)
	if err != nil {
		return nil, fmt.Errorf("rodhost: list favicons: %w", err)
	}
	var entries []host.FaviconEntry
	if err := json.Unmarshal([]byte(res.Value.Str()), &entries); err != nil {
		return nil, fmt.Errorf("rodhost: decode favicons: %w", err)
	}
	return entries, nil
}

// CreateDefaultFavicons implements host.Environment.
func (h *Host) CreateDefaultFavicons() ([]host.FaviconEntry, error) {
	if _, err := h.eval(jsCreateDefaults); err != nil {
		return nil, fmt.Errorf("rodhost: create favicons: %w", err)
	}
	return h.FaviconEntries()
}

// SetFaviconHref implements host.Environment.
func (h *Host) SetFaviconHref(index int, href string) error {
	if _, err := h.eval(jsSetHref, index, href); err != nil {
		return fmt.Errorf("rodhost: set favicon %d: %w", index, err)
	}
	return nil
}

// SubscribeVisibility implements host.Environment. The first subscriber
// installs the page-side listener, which survives reloads.
func (h *Host) SubscribeVisibility(fn func(host.Visibility)) (host.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fmt.Errorf("rodhost: page closed")
	}

	if h.cancelListen == nil {
		if err := h.installLocked(); err != nil {
			return 0, err
		}
	}

	h.nextSub++
	h.subs[h.nextSub] = fn
	return h.nextSub, nil
}

// Unsubscribe implements host.Environment. The binding listener stops with
// the last subscriber.
func (h *Host) Unsubscribe(sub host.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	if len(h.subs) == 0 {
		h.uninstallLocked()
	}
}

// Close stops every schedule and the binding listener. The page itself is
// left to its owner.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.subs = make(map[host.Subscription]func(host.Visibility))
	h.uninstallLocked()
	h.mu.Unlock()
	h.CancelAll()
}

func (h *Host) installLocked() error {
	page := h.page.Timeout(h.timeout)

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		h.logger.Warn("rodhost: addBinding failed (may already exist)", "error", err)
	}

	remove, err := page.EvalOnNewDocument("(" + visibilityJS + ")()")
	if err != nil {
		h.logger.Warn("rodhost: install on new document failed", "error", err)
	} else {
		h.removeScript = remove
	}
	if _, err := page.Eval(visibilityJS); err != nil {
		return fmt.Errorf("rodhost: inject visibility listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancelListen = cancel
	go h.listen(ctx)

	h.logger.Debug("rodhost: visibility listener installed")
	return nil
}

func (h *Host) uninstallLocked() {
	if h.cancelListen != nil {
		h.cancelListen()
		h.cancelListen = nil
	}
	if h.removeScript != nil {
		if err := h.removeScript(); err != nil {
			h.logger.Debug("rodhost: remove new-document script", "error", err)
		}
		h.removeScript = nil
	}
}

// listen relays Runtime.bindingCalled events to subscribers.
func (h *Host) listen(ctx context.Context) {
	h.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		v, ok := parseVisibility(e.Payload)
		if !ok {
			h.logger.Warn("rodhost: unexpected visibility payload", "payload", e.Payload)
			return
		}
		h.dispatch(v)
	})()
}

func (h *Host) dispatch(v host.Visibility) {
	h.mu.Lock()
	fns := make([]func(host.Visibility), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	h.logger.Debug("rodhost: visibility changed", "state", v)
	for _, fn := range fns {
		fn(v)
	}
}

func parseVisibility(payload string) (host.Visibility, bool) {
	switch payload {
	case "hidden":
		return host.Hidden, true
	case "visible":
		return host.Visible, true
	}
	return host.Visible, false
}

var _ host.Environment = (*Host)(nil)

// Package browser manages the Chrome instance whose tabs carry
// notifications: launch a local Chrome or connect to a running one over the
// DevTools protocol, watch the connection, and reconnect after a crash.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode controls how Chrome is run when launched locally.
type Mode int

const (
	ModeHeadless Mode = iota // headless + stealth, for CI and previews
	ModeHeadful              // visible window (DISPLAY or Xvfb)
)

func (m Mode) String() string {
	if m == ModeHeadful {
		return "headful"
	}
	return "headless"
}

// ParseMode maps the config spelling to a Mode. Unknown values are headless.
func ParseMode(s string) Mode {
	if s == "headful" {
		return ModeHeadful
	}
	return ModeHeadless
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an already running Chrome (the
	// user's browser started with --remote-debugging-port). Empty = launch.
	RemoteURL string

	// Mode applies to locally launched Chrome. Default: ModeHeadless.
	Mode Mode

	// XvfbDisplay, when set, starts Xvfb on that display for headful mode.
	XvfbDisplay string

	// HealthInterval is the connection check period. Default: 30s.
	HealthInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ReconnectCallback is called around a reconnect so tab bindings can tear
// down and rebind on the new connection.
type ReconnectCallback struct {
	// BeforeReconnect runs before the dead connection is dropped.
	BeforeReconnect func()
	// AfterReconnect runs once the new connection is up.
	AfterReconnect func(browser *rod.Browser)
}

// Manager manages the Chrome connection.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
	cb      *ReconnectCallback
}

// NewManager creates a browser Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// SetReconnectCallback sets the callback for reconnect events.
func (m *Manager) SetReconnectCallback(cb *ReconnectCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches or connects to Chrome and returns the Rod browser handle.
// It also starts the health monitor goroutine.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b

	go m.monitorLoop(ctx)

	return b, nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Reconnect drops the current connection, re-establishes it and calls the
// reconnect callbacks. Callbacks run without the manager lock held, so they
// may open tabs.
func (m *Manager) Reconnect() error {
	m.mu.RLock()
	cb, closed := m.cb, m.closed
	m.mu.RUnlock()
	if closed {
		return fmt.Errorf("browser: manager is closed")
	}

	if cb != nil && cb.BeforeReconnect != nil {
		cb.BeforeReconnect()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}
	b, err := m.reconnectLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if cb != nil && cb.AfterReconnect != nil {
		cb.AfterReconnect(b)
	}
	m.cfg.Logger.Info("browser: reconnected")
	return nil
}

// Close disconnects, and shuts down Chrome and Xvfb if this manager
// launched them. A remote browser is left running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()

		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false)
			if m.cfg.XvfbDisplay != "" {
				if err := m.startXvfb(); err != nil {
					return nil, fmt.Errorf("browser: xvfb: %w", err)
				}
				l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
			}
		} else {
			l = l.Headless(true)
		}

		// Hidden tabs must keep their timers running at full rate.
		l = l.Set("disable-background-timer-throttling").
			Set("disable-renderer-backgrounding")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) reconnectLocked() (*rod.Browser, error) {
	m.cfg.Logger.Info("browser: reconnecting")

	if err := m.cleanup(); err != nil {
		m.cfg.Logger.Warn("browser: cleanup during reconnect", "error", err)
	}

	b, err := m.launch()
	if err != nil {
		return nil, fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			if m.closed || m.browser == nil {
				m.mu.RUnlock()
				return
			}
			b := m.browser
			m.mu.RUnlock()

			if _, err := b.Version(); err != nil {
				log.Warn("browser: health check failed", "error", err)
				if err := m.Reconnect(); err != nil {
					log.Error("browser: reconnect failed", "error", err)
				}
			}
		}
	}
}

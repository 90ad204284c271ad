package tabnotify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/host"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/browser"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/config"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/rodhost"
)

// Binding is the environment a controller runs against, plus the surface
// its emoji are drawn on.
type Binding struct {
	Env     host.Environment
	Surface favicon.Surface
	// Close releases the environment. Called after the controller's
	// teardown. May be nil.
	Close func() error
}

// Binder produces Bindings for tab configs. The default binder drives
// Chrome; tests substitute an in-memory one.
type Binder interface {
	// Start prepares the backend. onReconnect is called whenever every
	// existing binding has become stale and must be rebuilt.
	Start(ctx context.Context, onReconnect func()) error
	Bind(ctx context.Context, tab TabConfig) (*Binding, error)
	Close() error
}

type browserBinder struct {
	mgr    *browser.Manager
	logger *slog.Logger
}

func newBrowserBinder(cfg config.BrowserConfig, logger *slog.Logger) *browserBinder {
	return &browserBinder{
		mgr: browser.NewManager(browser.Config{
			RemoteURL:      cfg.Remote,
			Mode:           browser.ParseMode(cfg.Mode),
			XvfbDisplay:    cfg.XvfbDisplay,
			HealthInterval: cfg.HealthInterval,
			Logger:         logger,
		}),
		logger: logger,
	}
}

func (b *browserBinder) Start(ctx context.Context, onReconnect func()) error {
	b.mgr.SetReconnectCallback(&browser.ReconnectCallback{
		AfterReconnect: func(*rod.Browser) { onReconnect() },
	})
	if _, err := b.mgr.Start(ctx); err != nil {
		return fmt.Errorf("tabnotify: start browser: %w", err)
	}
	return nil
}

func (b *browserBinder) Bind(ctx context.Context, tc TabConfig) (*Binding, error) {
	var tab *browser.Tab
	var err error
	if tc.Attach {
		tab, err = browser.AttachTab(b.mgr, tc.URL, tc.ID)
	} else {
		tab, err = browser.OpenTab(ctx, b.mgr, tc.URL, tc.ID)
	}
	if err != nil {
		return nil, err
	}

	h := rodhost.New(tab.Page, rodhost.WithLogger(b.logger.With("tab", tc.ID)))

	var surface favicon.Surface = favicon.NewImageSurface()
	if tc.Surface == config.SurfaceCanvas {
		surface = rodhost.NewCanvasSurface(tab.Page)
	}

	return &Binding{
		Env:     h,
		Surface: surface,
		Close: func() error {
			h.Close()
			return tab.Close()
		},
	}, nil
}

func (b *browserBinder) Close() error {
	return b.mgr.Close()
}

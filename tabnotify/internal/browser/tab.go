package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page that a notification controller is bound to.
type Tab struct {
	Page    *rod.Page
	PageURL string
	TabID   string
	// Owned tabs were opened by us and are closed with the binding;
	// attached tabs belong to the user and stay open.
	Owned bool
}

// OpenTab creates a new tab and navigates it to pageURL. Headless tabs get
// the stealth patches so sites behave as they would for a person.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, tabID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error

	if mgr.cfg.Mode == ModeHeadless && mgr.cfg.RemoteURL == "" {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, TabID: tabID, Owned: true}, nil
}

// AttachTab finds an already open page whose URL starts with prefix.
func AttachTab(mgr *Manager, prefix, tabID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if info.Type == proto.TargetTargetInfoTypePage && strings.HasPrefix(info.URL, prefix) {
			return &Tab{Page: p, PageURL: info.URL, TabID: tabID}, nil
		}
	}
	return nil, fmt.Errorf("browser: no open tab matches %q", prefix)
}

// Close closes the tab if we opened it.
func (t *Tab) Close() error {
	if t.Page != nil && t.Owned {
		return t.Page.Close()
	}
	return nil
}

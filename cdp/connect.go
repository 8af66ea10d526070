package cdp

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

// Tab pairs a Client with the page identity domstate needs: a stable
// PageID supplied by the caller (not CDP's own target id, which can
// change).
//
// Adapted from domwatch/internal/browser.Tab, stripped of stealth and
// resource-blocking setup: those are launch-time browser concerns this
// package doesn't take on, since it only ever attaches to an
// already-running instance.
type Tab struct {
	Client  Client
	PageID  string
	page    *rod.Page
}

// Connect attaches to an already-running Chrome instance at wsURL and
// returns a Tab for its currently active page. It does not navigate
// anywhere and does not launch a browser process.
func Connect(ctx context.Context, wsURL, pageID string) (*Tab, error) {
	browser := rod.New().Context(ctx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("cdp: connect %s: %w", wsURL, err)
	}

	pages, err := browser.Pages()
	if err != nil || len(pages) == 0 {
		return nil, fmt.Errorf("cdp: no active page on %s: %w", wsURL, err)
	}
	page := pages[0]

	client := NewRodClient(page)
	if err := EnableDomains(ctx, client); err != nil {
		return nil, err
	}

	return &Tab{Client: client, PageID: pageID, page: page}, nil
}

// Close releases the underlying page handle. It does not close the
// browser itself; per-page lifecycle is the caller's responsibility
// (registry.Store.Remove calls this through Page.Close).
func (t *Tab) Close() error {
	if t.page == nil {
		return nil
	}
	return t.page.Close()
}

package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

// RodClient adapts a single go-rod page into the Client interface.
// Adapted from domwatch/internal/browser.Tab, trimmed of the
// navigation/stealth/resource-blocking setup that belongs to browser
// launching (out of scope here) and kept to the bare send/subscribe shape.
type RodClient struct {
	page *rod.Page

	mu   sync.Mutex
	subs map[string][]func(json.RawMessage)
	wait func()
}

// NewRodClient wraps an already-navigated *rod.Page.
func NewRodClient(page *rod.Page) *RodClient {
	c := &RodClient{
		page: page,
		subs: make(map[string][]func(json.RawMessage)),
	}
	c.startDispatch()
	return c
}

// Send issues a raw CDP command against the page's session.
func (c *RodClient) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("cdp: marshal params for %s: %w", method, err)
	}
	res, err := c.page.Call(ctx, "", method, raw)
	if err != nil {
		return nil, fmt.Errorf("cdp: %s: %w", method, err)
	}
	return res, nil
}

// On registers handler for every event matching the given CDP method name.
func (c *RodClient) On(event string, handler func(json.RawMessage)) func() {
	c.mu.Lock()
	c.subs[event] = append(c.subs[event], handler)
	idx := len(c.subs[event]) - 1
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		handlers := c.subs[event]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// IsActive reports whether the page's underlying browser connection is open.
func (c *RodClient) IsActive() bool {
	return c.page != nil && c.page.Browser() != nil
}

// startDispatch fans raw CDP events out to registered subscribers by
// method name. Adapted from observer/cdpdom.go's EachEvent idiom,
// generalized from a fixed set of DOM callbacks to a method-keyed map
// since the core subscribes to different events per component
// (frametracker wants Page.*, network wants Network.*).
func (c *RodClient) startDispatch() {
	go func() {
		events := c.page.Browser().Event()
		for e := range events {
			c.dispatch(e)
		}
	}()
}

func (c *RodClient) dispatch(e *cdp.Event) {
	c.mu.Lock()
	handlers := append([]func(json.RawMessage){}, c.subs[e.Method]...)
	c.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(e.Params)
		}
	}
}

// EnableDomains enables the CDP domains the core needs events from.
// Call once per page before relying on frame/network events.
func EnableDomains(ctx context.Context, c Client) error {
	for _, method := range []string{"Page.enable", "DOM.enable", "Network.enable", "Accessibility.enable"} {
		if _, err := c.Send(ctx, method, struct{}{}); err != nil {
			return fmt.Errorf("cdp: enable %s: %w", method, err)
		}
	}
	return nil
}

var _ Client = (*RodClient)(nil)

// Package cdp is the external-collaborator boundary: a thin adapter over
// an already-running Chrome instance. Every other package in this module
// depends only on the Client interface below, never on go-rod directly,
// so the snapshot/delta/state-machine core can be exercised against a fake
// (see cdptest) without a real browser.
//
// This package intentionally does not launch, recycle, or otherwise
// manage a Chrome process. It connects to an endpoint that is already
// alive.
package cdp

import (
	"context"
	"encoding/json"
)

// Client is the capability the core engine needs from a CDP connection to
// one page: issue a command and wait for its response, subscribe to
// events by method name, and check whether the underlying connection is
// still usable.
type Client interface {
	// Send issues method with the given params and returns the raw JSON
	// result. params is marshaled with encoding/json before sending.
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)

	// On subscribes handler to every event of the given CDP method name
	// (e.g. "Page.frameNavigated"). The returned func unsubscribes.
	On(event string, handler func(json.RawMessage)) (unsubscribe func())

	// IsActive reports whether the underlying connection is still usable.
	IsActive() bool
}

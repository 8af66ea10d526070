// Package stabilize waits for a page to settle after an action: DomStabilizer
// waits for a quiet window of DOM mutation events, NetworkIdleTracker waits
// for in-flight network requests to drain. Both use the same debounced
// quiet-window shape domwatch/internal/observer/debounce.go uses for
// batching DOM mutation records, generalized here from "flush accumulated
// records" to "report settled".
package stabilize

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hazyhaar/domstate/cdp"
)

// Default DomStabilizer timings.
const (
	DefaultQuietWindow = 100 * time.Millisecond
	DefaultHardTimeout = 2000 * time.Millisecond
)

// Status classifies how a stabilization wait ended.
type Status string

const (
	StatusStable  Status = "stable"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is what WaitForStable returns. Never an error return — wait
// outcomes are always values, so a timed-out wait is reported, not raised.
type Result struct {
	Status        Status
	WaitTimeMs    int64
	MutationCount int
	Warning       string
}

// Config configures a DomStabilizer.
type Config struct {
	QuietWindow time.Duration
	HardTimeout time.Duration
}

func (c *Config) defaults() {
	if c.QuietWindow <= 0 {
		c.QuietWindow = DefaultQuietWindow
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = DefaultHardTimeout
	}
}

var domMutationEvents = []string{
	"DOM.childNodeInserted",
	"DOM.childNodeRemoved",
	"DOM.attributeModified",
	"DOM.attributeRemoved",
	"DOM.characterDataModified",
	"DOM.documentUpdated",
}

// DomStabilizer waits for DOM.* mutation events to stop arriving for a
// quiet window, or gives up at a hard timeout.
type DomStabilizer struct {
	client cdp.Client
	cfg    Config
}

// NewDomStabilizer returns a DomStabilizer bound to client.
func NewDomStabilizer(client cdp.Client, cfg Config) *DomStabilizer {
	cfg.defaults()
	return &DomStabilizer{client: client, cfg: cfg}
}

// WaitForStable blocks until the quiet window elapses with no mutation
// events, the hard timeout is hit, or ctx is cancelled.
func (s *DomStabilizer) WaitForStable(ctx context.Context) Result {
	start := time.Now()

	var mu sync.Mutex
	mutationCount := 0
	mutated := make(chan struct{}, 1)

	notify := func(json.RawMessage) {
		mu.Lock()
		mutationCount++
		mu.Unlock()
		select {
		case mutated <- struct{}{}:
		default:
		}
	}

	var unsubs []func()
	for _, event := range domMutationEvents {
		unsubs = append(unsubs, s.client.On(event, notify))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	hardCtx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()

	quiet := time.NewTimer(s.cfg.QuietWindow)
	defer quiet.Stop()

	for {
		select {
		case <-mutated:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(s.cfg.QuietWindow)

		case <-quiet.C:
			mu.Lock()
			count := mutationCount
			mu.Unlock()
			return Result{Status: StatusStable, WaitTimeMs: elapsedMs(start), MutationCount: count}

		case <-hardCtx.Done():
			mu.Lock()
			count := mutationCount
			mu.Unlock()
			if ctx.Err() != nil {
				return Result{Status: StatusError, WaitTimeMs: elapsedMs(start), MutationCount: count, Warning: ctx.Err().Error()}
			}
			return Result{Status: StatusTimeout, WaitTimeMs: elapsedMs(start), MutationCount: count, Warning: "dom stabilization hard timeout"}
		}
	}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

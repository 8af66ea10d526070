package stabilize

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hazyhaar/domstate/cdp"
)

// Default NetworkIdleTracker timings.
const (
	DefaultActionWait     = 3000 * time.Millisecond
	DefaultNavigationWait = 5000 * time.Millisecond
	DefaultQuietWindowNet = 500 * time.Millisecond
)

// NetworkIdleTracker counts in-flight network requests for one page so
// ActionExecutor can wait for the network to settle. A generation counter
// ensures requests from before the most recent mark_navigation never
// affect the current wait.
type NetworkIdleTracker struct {
	client cdp.Client

	mu         sync.Mutex
	generation uint64
	requestGen map[string]uint64
	inflight   int
	notify     chan struct{}

	unsubSent     func()
	unsubFinished func()
	unsubFailed   func()
}

// NewNetworkIdleTracker subscribes to CDP network lifecycle events.
func NewNetworkIdleTracker(client cdp.Client) *NetworkIdleTracker {
	t := &NetworkIdleTracker{
		client:     client,
		requestGen: make(map[string]uint64),
		notify:     make(chan struct{}, 1),
	}
	t.unsubSent = client.On("Network.requestWillBeSent", t.onRequestWillBeSent)
	t.unsubFinished = client.On("Network.loadingFinished", t.onLoadingDone)
	t.unsubFailed = client.On("Network.loadingFailed", t.onLoadingDone)
	return t
}

type requestWillBeSentEvent struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
}

func (t *NetworkIdleTracker) onRequestWillBeSent(raw json.RawMessage) {
	var e requestWillBeSentEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}
	if e.Type == "WebSocket" {
		return
	}

	t.mu.Lock()
	t.requestGen[e.RequestID] = t.generation
	t.inflight++
	t.mu.Unlock()
	t.signal()
}

type loadingDoneEvent struct {
	RequestID string `json:"requestId"`
}

func (t *NetworkIdleTracker) onLoadingDone(raw json.RawMessage) {
	var e loadingDoneEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}

	t.mu.Lock()
	gen, tracked := t.requestGen[e.RequestID]
	delete(t.requestGen, e.RequestID)
	if tracked && gen == t.generation && t.inflight > 0 {
		t.inflight--
	}
	t.mu.Unlock()
	t.signal()
}

func (t *NetworkIdleTracker) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// MarkNavigation bumps the generation counter and drops tracking of any
// requests issued before this point; their eventual finish/fail events are
// discarded rather than decrementing the new generation's inflight count.
func (t *NetworkIdleTracker) MarkNavigation() {
	t.mu.Lock()
	t.generation++
	t.requestGen = make(map[string]uint64)
	t.inflight = 0
	t.mu.Unlock()
	t.signal()
}

// Inflight returns the current in-flight request count.
func (t *NetworkIdleTracker) Inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight
}

// WaitForQuiet blocks until inflight has been zero continuously for
// quietWindow, or returns false once timeout elapses. It never returns an
// error: a timed-out wait is a normal, expected outcome the caller
// surfaces as a response warning, not a failure.
func (t *NetworkIdleTracker) WaitForQuiet(ctx context.Context, timeout, quietWindow time.Duration) bool {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if t.Inflight() == 0 {
			quiet := time.NewTimer(quietWindow)
			select {
			case <-quiet.C:
				return true
			case <-t.notify:
				quiet.Stop()
				continue
			case <-deadlineCtx.Done():
				quiet.Stop()
				return false
			}
		}

		select {
		case <-t.notify:
			continue
		case <-deadlineCtx.Done():
			return false
		}
	}
}

// Close unsubscribes from network events.
func (t *NetworkIdleTracker) Close() {
	if t.unsubSent != nil {
		t.unsubSent()
	}
	if t.unsubFinished != nil {
		t.unsubFinished()
	}
	if t.unsubFailed != nil {
		t.unsubFailed()
	}
}

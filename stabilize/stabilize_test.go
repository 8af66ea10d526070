package stabilize

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/domstate/cdptest"
)

func TestDomStabilizer_ReachesStableWhenEventsStop(t *testing.T) {
	fake := cdptest.New()
	s := NewDomStabilizer(fake, Config{QuietWindow: 20 * time.Millisecond, HardTimeout: 500 * time.Millisecond})

	go func() {
		time.Sleep(5 * time.Millisecond)
		fake.Emit("DOM.childNodeInserted", map[string]any{})
	}()

	res := s.WaitForStable(context.Background())
	if res.Status != StatusStable {
		t.Fatalf("expected stable, got %+v", res)
	}
	if res.MutationCount != 1 {
		t.Fatalf("expected 1 mutation counted, got %d", res.MutationCount)
	}
}

func TestDomStabilizer_TimesOutUnderContinuousMutation(t *testing.T) {
	fake := cdptest.New()
	s := NewDomStabilizer(fake, Config{QuietWindow: 30 * time.Millisecond, HardTimeout: 60 * time.Millisecond})

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fake.Emit("DOM.childNodeInserted", map[string]any{})
			case <-stop:
				return
			}
		}
	}()
	defer close(stop)

	res := s.WaitForStable(context.Background())
	if res.Status != StatusTimeout {
		t.Fatalf("expected timeout under continuous mutation, got %+v", res)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning on timeout")
	}
}

func TestNetworkIdleTracker_QuietWhenNoRequests(t *testing.T) {
	fake := cdptest.New()
	tr := NewNetworkIdleTracker(fake)

	ok := tr.WaitForQuiet(context.Background(), 200*time.Millisecond, 10*time.Millisecond)
	if !ok {
		t.Fatal("expected quiet with zero in-flight requests")
	}
}

func TestNetworkIdleTracker_WaitsForInFlightToFinish(t *testing.T) {
	fake := cdptest.New()
	tr := NewNetworkIdleTracker(fake)

	fake.Emit("Network.requestWillBeSent", map[string]any{"requestId": "r1", "type": "XHR"})
	if got := tr.Inflight(); got != 1 {
		t.Fatalf("expected inflight=1, got %d", got)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		fake.Emit("Network.loadingFinished", map[string]any{"requestId": "r1"})
	}()

	ok := tr.WaitForQuiet(context.Background(), 300*time.Millisecond, 10*time.Millisecond)
	if !ok {
		t.Fatal("expected quiet once the in-flight request finishes")
	}
}

func TestNetworkIdleTracker_IgnoresWebSocket(t *testing.T) {
	fake := cdptest.New()
	tr := NewNetworkIdleTracker(fake)

	fake.Emit("Network.requestWillBeSent", map[string]any{"requestId": "ws1", "type": "WebSocket"})
	if got := tr.Inflight(); got != 0 {
		t.Fatalf("websocket requests must not count as inflight, got %d", got)
	}
}

func TestNetworkIdleTracker_MarkNavigationDiscardsStaleFinish(t *testing.T) {
	fake := cdptest.New()
	tr := NewNetworkIdleTracker(fake)

	fake.Emit("Network.requestWillBeSent", map[string]any{"requestId": "r1", "type": "XHR"})
	tr.MarkNavigation() // inflight resets; r1 belongs to the old generation now

	if got := tr.Inflight(); got != 0 {
		t.Fatalf("MarkNavigation should reset inflight to 0, got %d", got)
	}

	fake.Emit("Network.loadingFinished", map[string]any{"requestId": "r1"})
	if got := tr.Inflight(); got != 0 {
		t.Fatalf("a stale finish event must never drive inflight negative or alter it, got %d", got)
	}
}

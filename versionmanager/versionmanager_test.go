package versionmanager

import (
	"context"
	"testing"

	"github.com/hazyhaar/domstate/snapshot"
)

// stubCompiler returns a canned sequence of snapshots, one per call.
type stubCompiler struct {
	bases []snapshot.Base
	calls int
}

func (s *stubCompiler) Compile(ctx context.Context) (snapshot.Base, error) {
	if s.calls >= len(s.bases) {
		return s.bases[len(s.bases)-1], nil
	}
	b := s.bases[s.calls]
	s.calls++
	return b, nil
}

func baseWithLabel(label string) snapshot.Base {
	return snapshot.Base{
		Nodes: []snapshot.ReadableNode{{BackendNodeID: 1, Kind: snapshot.KindButton, Label: label}},
	}
}

func TestCaptureIfChanged_AdvancesOnChange(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{baseWithLabel("a"), baseWithLabel("b")}}
	m := New(c, Config{})

	v1, isNew1, err := m.CaptureIfChanged(context.Background())
	if err != nil || !isNew1 || v1.Version != 1 {
		t.Fatalf("first capture: v=%+v isNew=%v err=%v", v1, isNew1, err)
	}

	v2, isNew2, err := m.CaptureIfChanged(context.Background())
	if err != nil || !isNew2 || v2.Version != 2 {
		t.Fatalf("second capture: v=%+v isNew=%v err=%v", v2, isNew2, err)
	}
}

func TestCaptureIfChanged_NoAdvanceWhenUnchanged(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{baseWithLabel("a"), baseWithLabel("a")}}
	m := New(c, Config{})

	v1, _, _ := m.CaptureIfChanged(context.Background())
	v2, isNew, err := m.CaptureIfChanged(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Fatal("identical content hash should not be reported as new")
	}
	if v2.Version != v1.Version {
		t.Fatalf("version should not advance, got %d -> %d", v1.Version, v2.Version)
	}
}

func TestValidateAgentState(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{
		baseWithLabel("a"), baseWithLabel("b"), baseWithLabel("c"), baseWithLabel("d"), baseWithLabel("e"),
	}}
	m := New(c, Config{HistoryCap: 3})

	for i := 0; i < 5; i++ {
		if _, _, err := m.CaptureIfChanged(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// Current is v5; history holds v2,v3,v4 (v1 evicted).
	cur, _ := m.Current()
	if cur.Version != 5 {
		t.Fatalf("expected current version 5, got %d", cur.Version)
	}

	v5 := uint64(5)
	if got := m.ValidateAgentState(&v5); got != StatusCurrent {
		t.Fatalf("want current, got %s", got)
	}

	v3 := uint64(3)
	if got := m.ValidateAgentState(&v3); got != StatusStaleWithHistory {
		t.Fatalf("want stale_with_history, got %s", got)
	}

	v1 := uint64(1)
	if got := m.ValidateAgentState(&v1); got != StatusStaleNoHistory {
		t.Fatalf("want stale_no_history for evicted version, got %s", got)
	}

	if got := m.ValidateAgentState(nil); got != StatusStaleNoHistory {
		t.Fatalf("want stale_no_history for nil agent version, got %s", got)
	}
}

func TestGetVersion_SearchesCurrentThenHistory(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{baseWithLabel("a"), baseWithLabel("b")}}
	m := New(c, Config{HistoryCap: 3})
	m.CaptureIfChanged(context.Background())
	m.CaptureIfChanged(context.Background())

	if _, ok := m.GetVersion(1); !ok {
		t.Fatal("expected version 1 to be found in history")
	}
	if _, ok := m.GetVersion(2); !ok {
		t.Fatal("expected version 2 to be found as current")
	}
	if _, ok := m.GetVersion(99); ok {
		t.Fatal("version 99 should not exist")
	}
}

func TestHistoryDepth_GrowsThenCaps(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{
		baseWithLabel("a"), baseWithLabel("b"), baseWithLabel("c"), baseWithLabel("d"),
	}}
	m := New(c, Config{HistoryCap: 2})
	if d := m.HistoryDepth(); d != 0 {
		t.Fatalf("expected 0 history depth before any capture, got %d", d)
	}

	m.CaptureIfChanged(context.Background()) // current=a, history=[]
	if d := m.HistoryDepth(); d != 0 {
		t.Fatalf("expected 0 history depth after the first capture, got %d", d)
	}

	m.CaptureIfChanged(context.Background()) // current=b, history=[a]
	m.CaptureIfChanged(context.Background()) // current=c, history=[a,b]
	if d := m.HistoryDepth(); d != 2 {
		t.Fatalf("expected history depth to grow to the cap, got %d", d)
	}

	m.CaptureIfChanged(context.Background()) // current=d, history=[b,c] (a evicted)
	if d := m.HistoryDepth(); d != 2 {
		t.Fatalf("expected history depth to stay capped, got %d", d)
	}
}

func TestReset_KeepsCounterMonotonic(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{baseWithLabel("a"), baseWithLabel("b")}}
	m := New(c, Config{})
	m.CaptureIfChanged(context.Background())

	m.Reset()
	if _, ok := m.Current(); ok {
		t.Fatal("Reset should clear current")
	}
	if m.Version() != 1 {
		t.Fatalf("Reset must not rewind the counter, got %d", m.Version())
	}

	v, isNew, err := m.CaptureIfChanged(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || v.Version != 2 {
		t.Fatalf("capture after reset should continue from the prior counter, got %+v isNew=%v", v, isNew)
	}
}

func TestForceCapture_AdvancesEvenWithoutChange(t *testing.T) {
	c := &stubCompiler{bases: []snapshot.Base{baseWithLabel("a"), baseWithLabel("a")}}
	m := New(c, Config{})
	m.CaptureIfChanged(context.Background())

	v, err := m.ForceCapture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != 2 {
		t.Fatalf("ForceCapture should advance the version regardless of content hash, got %d", v.Version)
	}
}

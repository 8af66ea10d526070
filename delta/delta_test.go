package delta

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/domstate/pagestate"
	"github.com/hazyhaar/domstate/snapshot"
)

func ref(backendID int64, frameID string) snapshot.ScopedElementRef {
	return snapshot.ScopedElementRef{BackendNodeID: backendID, FrameID: frameID, LoaderID: "ldr1"}
}

func node(backendID int64, label string) snapshot.ReadableNode {
	return snapshot.ReadableNode{BackendNodeID: backendID, FrameID: "main", LoaderID: "ldr1", Kind: snapshot.KindButton, Label: label}
}

func TestFormat_Full(t *testing.T) {
	f := New()
	decision := pagestate.Decision{
		Kind:     pagestate.DecisionFull,
		Reason:   pagestate.ReasonFirst,
		Snapshot: snapshot.Base{Nodes: []snapshot.ReadableNode{node(1, "Submit")}},
	}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Type != TypeFull {
		t.Fatalf("expected full, got %s", p.Type)
	}
	if !strings.HasPrefix(p.Summary, "Full snapshot") {
		t.Fatalf("S1 requires summary to start with 'Full snapshot', got %q", p.Summary)
	}
	var decoded snapshot.Base
	if err := json.Unmarshal([]byte(p.Snapshot), &decoded); err != nil {
		t.Fatalf("snapshot field must be valid JSON: %v", err)
	}
	if diff := cmp.Diff(decision.Snapshot, decoded); diff != "" {
		t.Fatalf("encoded snapshot did not round-trip (-want +got):\n%s", diff)
	}
}

func TestFormat_NoChange(t *testing.T) {
	f := New()
	p, err := f.Format(pagestate.Decision{Kind: pagestate.DecisionNoChange}, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Type != TypeNoChange {
		t.Fatalf("expected no_change, got %s", p.Type)
	}
}

func TestFormat_Delta_CountsMatchListLengths(t *testing.T) {
	f := New()
	decision := pagestate.Decision{
		Kind:    pagestate.DecisionDelta,
		Context: pagestate.ContextBase,
	}
	decision.Diff.Added = []snapshot.ReadableNode{node(2, "New")}
	decision.Diff.Modified = []pagestate.Modification{{
		Ref: ref(1, "main"), Kind: snapshot.KindButton, ChangeType: pagestate.ChangeText,
		PreviousLabel: "Submit", CurrentLabel: "Sending…",
	}}
	decision.Diff.RemovedRefs = []snapshot.ScopedElementRef{ref(3, "main")}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Type != TypeDelta || p.Context != "base" {
		t.Fatalf("expected base delta, got %+v", p)
	}
	if p.Counts.Added != len(p.Added) || p.Counts.Modified != len(p.Modified) || p.Counts.Removed != len(p.RemovedRefs) {
		t.Fatalf("counts must equal list lengths: %+v vs added=%d modified=%d removed=%d",
			p.Counts, len(p.Added), len(p.Modified), len(p.RemovedRefs))
	}
	if p.Modified[0].PreviousLabel != "Submit" || p.Modified[0].CurrentLabel != "Sending…" {
		t.Fatalf("expected the modification's labels to round-trip, got %+v", p.Modified[0])
	}
	wantSummary := "Base: +1 ~1 -1, invalidated 1."
	if p.Summary != wantSummary {
		t.Fatalf("summary mismatch: got %q want %q", p.Summary, wantSummary)
	}
}

func TestFormat_Delta_MainFrameRefOmitsFrameID(t *testing.T) {
	f := New()
	decision := pagestate.Decision{Kind: pagestate.DecisionDelta, Context: pagestate.ContextBase}
	decision.Diff.Added = []snapshot.ReadableNode{node(5, "X")}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.Contains(p.Added[0].Ref, "main:") {
		t.Fatalf("main-frame ref should omit the frame id, got %q", p.Added[0].Ref)
	}
	if p.Added[0].Ref != "ldr1:5" {
		t.Fatalf("expected 'ldr1:5', got %q", p.Added[0].Ref)
	}
}

func TestFormat_Delta_NonMainFrameRefIncludesFrameID(t *testing.T) {
	f := New()
	decision := pagestate.Decision{Kind: pagestate.DecisionDelta, Context: pagestate.ContextBase}
	n := node(5, "X")
	n.FrameID = "iframe-1"
	decision.Diff.Added = []snapshot.ReadableNode{n}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Added[0].Ref != "iframe-1:ldr1:5" {
		t.Fatalf("expected iframe-shaped ref, got %q", p.Added[0].Ref)
	}
}

func TestFormat_Delta_InvalidatedRefsUnionDedup(t *testing.T) {
	f := New()
	decision := pagestate.Decision{Kind: pagestate.DecisionDelta, Context: pagestate.ContextBase}
	shared := ref(9, "main")
	decision.Diff.RemovedRefs = []snapshot.ScopedElementRef{shared}

	frameInvalidations := []snapshot.ScopedElementRef{shared, ref(10, "main")}

	p, err := f.Format(decision, frameInvalidations, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(p.InvalidatedRefs) != 2 {
		t.Fatalf("expected the shared ref deduped, got %v", p.InvalidatedRefs)
	}
	if p.InvalidatedRefs[0] != "ldr1:9" || p.InvalidatedRefs[1] != "ldr1:10" {
		t.Fatalf("expected frame invalidations first (preserving order), got %v", p.InvalidatedRefs)
	}
}

func TestFormat_OverlayOpened(t *testing.T) {
	f := New()
	overlay := snapshot.OverlayState{
		RootRef:     ref(2, "main"),
		OverlayType: snapshot.OverlayModal,
		Snapshot:    []snapshot.ReadableNode{node(3, "B")},
	}
	decision := pagestate.Decision{
		Kind:           pagestate.DecisionOverlayOpened,
		Overlay:        &overlay,
		TransitionKind: pagestate.TransitionOpened,
	}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Type != TypeOverlayOpened || p.Overlay.OverlayType != snapshot.OverlayModal {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if len(p.Nodes) != 1 || p.Nodes[0].Label != "B" {
		t.Fatalf("expected overlay nodes to carry B, got %+v", p.Nodes)
	}
	if p.Transition != "opened" {
		t.Fatalf("expected transition=opened, got %q", p.Transition)
	}
}

func TestFormat_OverlayClosed_WithBaseDrift(t *testing.T) {
	f := New()
	overlay := snapshot.OverlayState{RootRef: ref(2, "main"), OverlayType: snapshot.OverlayModal}
	baseChanges := pagestate.NodeDiff{
		Modified: []pagestate.Modification{{
			Ref: ref(1, "main"), ChangeType: pagestate.ChangeText,
			PreviousLabel: "A", CurrentLabel: "Refresh",
		}},
	}
	decision := pagestate.Decision{
		Kind:            pagestate.DecisionOverlayClosed,
		Overlay:         &overlay,
		PreviousOverlay: &overlay,
		BaseChanges:     &baseChanges,
	}

	p, err := f.Format(decision, nil, "main")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if p.Type != TypeOverlayClosed {
		t.Fatalf("expected overlay_closed, got %s", p.Type)
	}
	if p.BaseChanges == nil || len(p.BaseChanges.Modified) != 1 {
		t.Fatalf("expected base_changes to carry the A->Refresh drift, got %+v", p.BaseChanges)
	}
	if p.BaseChanges.Counts.Modified != 1 {
		t.Fatalf("base_changes counts must match list length, got %+v", p.BaseChanges.Counts)
	}
}

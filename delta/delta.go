// Package delta renders pagestate.Decision values into the five wire
// payload shapes (full, no_change, delta, overlay_opened, overlay_closed).
// It emits structured records, not prose: summary is a convenience string
// derived from the same fields a machine reader can consume independently
// from the payload's other fields.
package delta

import (
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domstate/pagestate"
	"github.com/hazyhaar/domstate/snapshot"
)

// PayloadType tags the wire variant's "type" field.
type PayloadType string

const (
	TypeFull          PayloadType = "full"
	TypeNoChange      PayloadType = "no_change"
	TypeDelta         PayloadType = "delta"
	TypeOverlayOpened PayloadType = "overlay_opened"
	TypeOverlayClosed PayloadType = "overlay_closed"
)

// NodeRef is one node's wire representation inside added/nodes lists.
type NodeRef struct {
	Ref   string          `json:"ref"`
	Kind  snapshot.Kind   `json:"kind"`
	Label string          `json:"label"`
	State *snapshot.State `json:"state,omitempty"`
}

// ModifiedEntry is one node's wire representation inside a modified list.
type ModifiedEntry struct {
	Ref           string               `json:"ref"`
	Kind          snapshot.Kind        `json:"kind,omitempty"`
	ChangeType    pagestate.ChangeType `json:"change_type"`
	PreviousLabel string               `json:"previous_label,omitempty"`
	CurrentLabel  string               `json:"current_label,omitempty"`
}

// Counts mirrors the four counters, each required to equal the
// corresponding list's length.
type Counts struct {
	Invalidated int `json:"invalidated"`
	Added       int `json:"added"`
	Modified    int `json:"modified"`
	Removed     int `json:"removed"`
}

// OverlayRef identifies an overlay by type and root ref.
type OverlayRef struct {
	OverlayType snapshot.OverlayType `json:"overlay_type"`
	RootRef     string               `json:"root_ref"`
}

// PreviousOverlayRef additionally carries the prior overlay's own
// invalidated refs, for the replaced-transition case.
type PreviousOverlayRef struct {
	OverlayType     snapshot.OverlayType `json:"overlay_type"`
	RootRef         string               `json:"root_ref"`
	InvalidatedRefs []string             `json:"invalidated_refs"`
}

// BaseChangesBlock carries the base-layer drift accumulated under an
// overlay, embedded in a single overlay_closed payload.
type BaseChangesBlock struct {
	Counts      Counts          `json:"counts"`
	Added       []NodeRef       `json:"added,omitempty"`
	Modified    []ModifiedEntry `json:"modified,omitempty"`
	RemovedRefs []string        `json:"removed_refs,omitempty"`
}

// Payload is the tagged union of every wire response shape. Only the
// fields relevant to Type are populated; consumers switch on Type.
type Payload struct {
	Type    PayloadType `json:"type"`
	Summary string      `json:"summary"`

	Snapshot string `json:"snapshot,omitempty"` // full
	Reason   string `json:"reason,omitempty"`   // full

	Context string  `json:"context,omitempty"` // delta
	Counts  *Counts `json:"counts,omitempty"`  // delta, overlay_opened

	InvalidatedRefs []string        `json:"invalidated_refs,omitempty"`
	Added           []NodeRef       `json:"added,omitempty"`
	Modified        []ModifiedEntry `json:"modified,omitempty"`
	RemovedRefs     []string        `json:"removed_refs,omitempty"`

	Overlay         *OverlayRef         `json:"overlay,omitempty"`
	Nodes           []NodeRef           `json:"nodes,omitempty"` // overlay_opened
	Transition      string              `json:"transition,omitempty"`
	PreviousOverlay *PreviousOverlayRef `json:"previous_overlay,omitempty"`
	BaseChanges     *BaseChangesBlock   `json:"base_changes,omitempty"`
}

// Formatter turns a pagestate.Decision plus drained frame invalidations
// into a Payload.
type Formatter struct{}

// New returns a Formatter. It holds no state of its own.
func New() *Formatter { return &Formatter{} }

// Format builds the wire payload for decision. frameInvalidations is
// FrameTracker.DrainInvalidations()'s result for this cycle; mainFrameID
// is FrameTracker.MainFrameID(), used to pick each ref's serialized form
// (main-frame refs omit the frame id).
func (f *Formatter) Format(decision pagestate.Decision, frameInvalidations []snapshot.ScopedElementRef, mainFrameID string) (Payload, error) {
	switch decision.Kind {
	case pagestate.DecisionFull:
		return f.formatFull(decision)
	case pagestate.DecisionNoChange:
		return Payload{Type: TypeNoChange, Summary: "No changes since last snapshot."}, nil
	case pagestate.DecisionDelta:
		return f.formatDelta(decision, frameInvalidations, mainFrameID), nil
	case pagestate.DecisionOverlayOpened:
		return f.formatOverlayOpened(decision, frameInvalidations, mainFrameID), nil
	case pagestate.DecisionOverlayClosed:
		return f.formatOverlayClosed(decision, frameInvalidations, mainFrameID), nil
	default:
		return Payload{}, fmt.Errorf("delta: unknown decision kind %q", decision.Kind)
	}
}

func (f *Formatter) formatFull(decision pagestate.Decision) (Payload, error) {
	encoded, err := json.Marshal(decision.Snapshot)
	if err != nil {
		return Payload{}, fmt.Errorf("delta: encode full snapshot: %w", err)
	}

	summary := "Full snapshot."
	if decision.Reason != "" {
		summary = fmt.Sprintf("Full snapshot (%s).", decision.Reason)
	}

	return Payload{
		Type:     TypeFull,
		Summary:  summary,
		Snapshot: string(encoded),
		Reason:   decision.Reason,
	}, nil
}

func (f *Formatter) formatDelta(decision pagestate.Decision, frameInvalidations []snapshot.ScopedElementRef, mainFrameID string) Payload {
	removedFromDiff := decision.Diff.RemovedRefs
	invalidated := unionInvalidated(frameInvalidations, removedFromDiff, mainFrameID)

	counts := Counts{
		Invalidated: len(invalidated),
		Added:       len(decision.Diff.Added),
		Modified:    len(decision.Diff.Modified),
		Removed:     len(removedFromDiff),
	}

	contextLabel := "Base"
	if decision.Context == pagestate.ContextOverlay {
		contextLabel = "Overlay"
	}

	return Payload{
		Type:            TypeDelta,
		Summary:         summaryLine(contextLabel, counts),
		Context:         string(decision.Context),
		Counts:          &counts,
		InvalidatedRefs: invalidated,
		Added:           nodeRefs(decision.Diff.Added, mainFrameID),
		Modified:        modifiedEntries(decision.Diff.Modified, mainFrameID),
		RemovedRefs:     serializeRefs(removedFromDiff, mainFrameID),
	}
}

func (f *Formatter) formatOverlayOpened(decision pagestate.Decision, frameInvalidations []snapshot.ScopedElementRef, mainFrameID string) Payload {
	var previousInvalidated []snapshot.ScopedElementRef
	var previousOverlay *PreviousOverlayRef
	if decision.PreviousOverlay != nil {
		previousInvalidated = decision.PreviousOverlay.CapturedRefs
		previousOverlay = &PreviousOverlayRef{
			OverlayType:     decision.PreviousOverlay.OverlayType,
			RootRef:         serializeRef(decision.PreviousOverlay.RootRef, mainFrameID),
			InvalidatedRefs: serializeRefs(previousInvalidated, mainFrameID),
		}
	}

	invalidated := unionInvalidated(frameInvalidations, previousInvalidated, mainFrameID)
	nodes := nodeRefs(decision.Overlay.Snapshot, mainFrameID)
	counts := Counts{Invalidated: len(invalidated), Added: len(nodes)}

	verb := "opened"
	if decision.TransitionKind == pagestate.TransitionReplaced {
		verb = "replaced"
	}
	summary := fmt.Sprintf("Overlay %s (%s): %d node(s), invalidated %d.", verb, decision.Overlay.OverlayType, len(nodes), len(invalidated))

	return Payload{
		Type:            TypeOverlayOpened,
		Summary:         summary,
		InvalidatedRefs: invalidated,
		Counts:          &counts,
		Overlay: &OverlayRef{
			OverlayType: decision.Overlay.OverlayType,
			RootRef:     serializeRef(decision.Overlay.RootRef, mainFrameID),
		},
		Nodes:           nodes,
		Transition:      string(decision.TransitionKind),
		PreviousOverlay: previousOverlay,
	}
}

func (f *Formatter) formatOverlayClosed(decision pagestate.Decision, frameInvalidations []snapshot.ScopedElementRef, mainFrameID string) Payload {
	var overlayRefs []snapshot.ScopedElementRef
	if decision.PreviousOverlay != nil {
		overlayRefs = decision.PreviousOverlay.CapturedRefs
	}
	invalidated := unionInvalidated(frameInvalidations, overlayRefs, mainFrameID)

	summary := fmt.Sprintf("Overlay closed (%s), invalidated %d.", decision.Overlay.OverlayType, len(invalidated))

	var baseChanges *BaseChangesBlock
	if decision.BaseChanges != nil {
		bc := decision.BaseChanges
		counts := Counts{
			Added:    len(bc.Added),
			Modified: len(bc.Modified),
			Removed:  len(bc.RemovedRefs),
		}
		baseChanges = &BaseChangesBlock{
			Counts:      counts,
			Added:       nodeRefs(bc.Added, mainFrameID),
			Modified:    modifiedEntries(bc.Modified, mainFrameID),
			RemovedRefs: serializeRefs(bc.RemovedRefs, mainFrameID),
		}
		summary = fmt.Sprintf("%s Base drift: +%d ~%d -%d.", summary, len(bc.Added), len(bc.Modified), len(bc.RemovedRefs))
	}

	return Payload{
		Type:    TypeOverlayClosed,
		Summary: summary,
		Overlay: &OverlayRef{
			OverlayType: decision.Overlay.OverlayType,
			RootRef:     serializeRef(decision.Overlay.RootRef, mainFrameID),
		},
		InvalidatedRefs: invalidated,
		BaseChanges:     baseChanges,
	}
}

func summaryLine(contextLabel string, c Counts) string {
	return fmt.Sprintf("%s: +%d ~%d -%d, invalidated %d.", contextLabel, c.Added, c.Modified, c.Removed, c.Invalidated)
}

func serializeRef(ref snapshot.ScopedElementRef, mainFrameID string) string {
	ref.IsMainFrame = ref.FrameID == mainFrameID
	return ref.Serialize()
}

func serializeRefs(refs []snapshot.ScopedElementRef, mainFrameID string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = serializeRef(r, mainFrameID)
	}
	return out
}

// unionInvalidated dedups (frame-navigation invalidations) and (other
// refs, e.g. removed nodes or a closed overlay's captured refs),
// preserving first-occurrence order.
func unionInvalidated(frameInvalidations, other []snapshot.ScopedElementRef, mainFrameID string) []string {
	seen := make(map[string]bool, len(frameInvalidations)+len(other))
	var out []string
	add := func(refs []snapshot.ScopedElementRef) {
		for _, r := range refs {
			s := serializeRef(r, mainFrameID)
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(frameInvalidations)
	add(other)
	return out
}

func nodeRefs(nodes []snapshot.ReadableNode, mainFrameID string) []NodeRef {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]NodeRef, len(nodes))
	for i, n := range nodes {
		var state *snapshot.State
		if n.State != (snapshot.State{}) {
			s := n.State
			state = &s
		}
		out[i] = NodeRef{
			Ref:   serializeRef(refOf(n), mainFrameID),
			Kind:  n.Kind,
			Label: n.Label,
			State: state,
		}
	}
	return out
}

func modifiedEntries(mods []pagestate.Modification, mainFrameID string) []ModifiedEntry {
	if len(mods) == 0 {
		return nil
	}
	out := make([]ModifiedEntry, len(mods))
	for i, m := range mods {
		out[i] = ModifiedEntry{
			Ref:           serializeRef(m.Ref, mainFrameID),
			Kind:          m.Kind,
			ChangeType:    m.ChangeType,
			PreviousLabel: m.PreviousLabel,
			CurrentLabel:  m.CurrentLabel,
		}
	}
	return out
}

func refOf(n snapshot.ReadableNode) snapshot.ScopedElementRef {
	return snapshot.ScopedElementRef{
		BackendNodeID: n.BackendNodeID,
		FrameID:       n.FrameID,
		LoaderID:      n.LoaderID,
	}
}

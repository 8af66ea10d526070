// Package overlay classifies whether a snapshot introduces, removes, or
// replaces a modal-style overlay on top of the base page, using an
// AX-role/z-index/class-pattern heuristic. No existing package implements
// overlay/modal detection, so this one is built directly from the
// classification rules; it still follows a small detector type with a
// pure classification method and no held state of its own (statefulness
// lives in pagestate, which owns the previous OverlayState).
package overlay

import (
	"regexp"

	"github.com/hazyhaar/domstate/snapshot"
)

// ChangeKind is the outcome of one Detect call.
type ChangeKind string

const (
	NoOverlayChange ChangeKind = "no_overlay_change"
	Opened          ChangeKind = "opened"
	Closed          ChangeKind = "closed"
	Replaced        ChangeKind = "replaced"
)

// Change is the result of comparing the previous overlay state (if any)
// against one current snapshot's nodes.
type Change struct {
	Kind     ChangeKind
	Overlay  snapshot.OverlayState // populated for Opened and Replaced
	Previous snapshot.OverlayState // populated for Closed and Replaced
}

var (
	overlayClassPattern  = regexp.MustCompile(`(?i)modal|dialog|popover|overlay|drawer`)
	dropdownClassPattern = regexp.MustCompile(`(?i)dropdown`)
	tooltipClassPattern  = regexp.MustCompile(`(?i)tooltip`)
)

const overlayZIndexThreshold = 999

// Detector classifies overlay roots in a node list. It holds no state.
type Detector struct{}

// New returns a Detector.
func New() *Detector { return &Detector{} }

// Detect compares prev (nil if no overlay is currently tracked) against
// the current snapshot's nodes.
func (d *Detector) Detect(prev *snapshot.OverlayState, nodes []snapshot.ReadableNode) Change {
	roots := findOverlayRoots(nodes)

	if len(roots) == 0 {
		if prev == nil {
			return Change{Kind: NoOverlayChange}
		}
		return Change{Kind: Closed, Previous: *prev}
	}

	root, confidence := dominantRoot(roots)
	content := overlayContentNodes(nodes)
	next := buildOverlayState(root, content, confidence)

	if prev == nil {
		return Change{Kind: Opened, Overlay: next}
	}
	if prev.RootRef.BackendNodeID == root.BackendNodeID &&
		prev.RootRef.FrameID == root.FrameID &&
		prev.RootRef.LoaderID == root.LoaderID {
		return Change{Kind: NoOverlayChange}
	}
	return Change{Kind: Replaced, Overlay: next, Previous: *prev}
}

// isOverlayRoot reports whether node matches any of the overlay-root
// classification rules, and a confidence score for the rule that matched.
func isOverlayRoot(node snapshot.ReadableNode) (bool, float64) {
	if node.Kind == snapshot.KindDialog {
		return true, 1.0
	}
	if (node.Role == "dialog" || node.Role == "alertdialog") && node.Attributes.AriaModal == "true" {
		return true, 1.0
	}
	if node.Where.Region == snapshot.RegionDialog {
		return true, 0.75
	}
	if node.Layout.ZIndex != nil && *node.Layout.ZIndex >= overlayZIndexThreshold && overlayClassPattern.MatchString(node.Attributes.Class) {
		return true, 0.5
	}
	return false, 0
}

func findOverlayRoots(nodes []snapshot.ReadableNode) []scoredNode {
	var roots []scoredNode
	for _, n := range nodes {
		if ok, confidence := isOverlayRoot(n); ok {
			roots = append(roots, scoredNode{node: n, confidence: confidence})
		}
	}
	return roots
}

type scoredNode struct {
	node       snapshot.ReadableNode
	confidence float64
}

// dominantRoot picks the overlay root with the highest z-index (ties
// broken by first occurrence, i.e. DOM pre-order) and returns it with its
// detection confidence.
func dominantRoot(roots []scoredNode) (snapshot.ReadableNode, float64) {
	best := roots[0]
	bestZ := zIndexOf(best.node)
	for _, candidate := range roots[1:] {
		z := zIndexOf(candidate.node)
		if z > bestZ {
			best, bestZ = candidate, z
		}
	}
	return best.node, best.confidence
}

func zIndexOf(n snapshot.ReadableNode) int {
	if n.Layout.ZIndex == nil {
		return 0
	}
	return *n.Layout.ZIndex
}

// overlayContentNodes returns every node the region resolver placed inside
// the dialog landmark — the overlay's visible content, as opposed to the
// root container itself.
func overlayContentNodes(nodes []snapshot.ReadableNode) []snapshot.ReadableNode {
	var content []snapshot.ReadableNode
	for _, n := range nodes {
		if n.Where.Region == snapshot.RegionDialog {
			content = append(content, n)
		}
	}
	return content
}

// classifyOverlayType implements the overlay_type classification heuristic.
func classifyOverlayType(root snapshot.ReadableNode) snapshot.OverlayType {
	if root.Attributes.AriaModal == "true" {
		return snapshot.OverlayModal
	}
	if root.Role == "dialog" {
		return snapshot.OverlayDialog
	}
	class := root.Attributes.Class
	switch {
	case dropdownClassPattern.MatchString(class):
		return snapshot.OverlayDropdown
	case tooltipClassPattern.MatchString(class):
		return snapshot.OverlayTooltip
	default:
		return snapshot.OverlayUnknown
	}
}

func buildOverlayState(root snapshot.ReadableNode, content []snapshot.ReadableNode, confidence float64) snapshot.OverlayState {
	refs := make([]snapshot.ScopedElementRef, 0, len(content)+1)
	refs = append(refs, refOf(root))
	for _, n := range content {
		refs = append(refs, refOf(n))
	}

	return snapshot.OverlayState{
		RootRef:             refOf(root),
		OverlayType:         classifyOverlayType(root),
		Snapshot:            content,
		ContentHash:         snapshot.ContentHash(content),
		DetectionConfidence: confidence,
		CapturedRefs:        refs,
	}
}

func refOf(n snapshot.ReadableNode) snapshot.ScopedElementRef {
	return snapshot.ScopedElementRef{
		BackendNodeID: n.BackendNodeID,
		FrameID:       n.FrameID,
		LoaderID:      n.LoaderID,
	}
}

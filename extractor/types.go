// Package extractor queries the CDP DOM, Accessibility, layout and style
// surfaces for one page and returns raw, backend-node-id-keyed structures.
// It never interprets them semantically — that is compiler's job — and it
// never fails the whole pass because one CDP domain came back empty: a
// missing box model just means "not rendered", a missing computed style
// just means "assume visible", and both get recorded as a warning rather
// than an error.
//
// Adapted from domwatch/internal/observer/cdpdom.go's event idiom,
// generalized from a mutation-event listener into a request/response query
// pipeline: this extractor polls on demand rather than streaming DOM deltas.
package extractor

// RawDomNode is one node from DOM.getDocument, indexed by its stable
// backend_node_id (distinct from the ephemeral per-call nodeId CDP also
// hands out, which computed-style lookups need separately).
type RawDomNode struct {
	BackendNodeID   int64
	NodeID          int64 // ephemeral; valid only for this DOM.getDocument call
	NodeName        string
	Attributes      map[string]string
	ParentBackendID int64
	ChildBackendIDs []int64
	FrameID         string // set on iframe document root nodes
}

// RawDom is the backend-node-id index built from one DOM.getDocument call.
type RawDom struct {
	Nodes map[int64]RawDomNode
	Root  int64
}

// RawAxNode is one node from Accessibility.getFullAXTree. BackendNodeID is
// zero when the AX node has no corresponding DOM node (rare, e.g. virtual
// nodes); such nodes are dropped by the pipeline before being returned.
type RawAxNode struct {
	BackendNodeID int64
	Role          string
	Name          string
	Properties    map[string]string
	Ignored       bool
}

// RawAx is the backend-node-id index built from one getFullAXTree call.
type RawAx struct {
	Nodes map[int64]RawAxNode
}

// RawLayoutNode carries box-model and computed-style facts for one node.
// Present is false when DOM.getBoxModel failed or returned nothing, which
// the compiler treats as "not rendered" (visible=false).
type RawLayoutNode struct {
	Present    bool
	BBox       BBox
	Style      map[string]string // computed style properties, may be nil
	HasZIndex  bool
	ZIndex     int
}

// BBox mirrors snapshot.BBox; extractor stays independent of the snapshot
// package's json tags since this is an internal intermediate shape.
type BBox struct {
	X, Y, W, H float64
}

// RawLayout is the backend-node-id index of layout+style facts.
type RawLayout struct {
	Nodes map[int64]RawLayoutNode
}

// Result bundles one extraction pass plus any non-fatal warnings recorded
// while gathering it (one entry per DOM/Accessibility domain that failed,
// plus one per node whose box model or computed style was unavailable).
type Result struct {
	Dom      RawDom
	Ax       RawAx
	Layout   RawLayout
	Warnings []string
}

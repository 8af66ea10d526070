package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopedElementRef is a three-tuple that can never accidentally address a
// node from a prior document: the backend node id alone is only stable
// within one document, so it is paired with the frame and loader that
// minted it.
type ScopedElementRef struct {
	BackendNodeID int64  `json:"backend_node_id"`
	FrameID       string `json:"frame_id"`
	LoaderID      string `json:"loader_id"`
	IsMainFrame   bool   `json:"-"`
}

// CompositeNodeKey is the canonical "frame_id:loader_id:backend_node_id"
// string used as a map key for identity comparisons across snapshots.
type CompositeNodeKey string

// NewCompositeNodeKey builds the canonical key for a (frame, loader, node) triple.
func NewCompositeNodeKey(frameID, loaderID string, backendNodeID int64) CompositeNodeKey {
	return CompositeNodeKey(fmt.Sprintf("%s:%s:%d", frameID, loaderID, backendNodeID))
}

// Key returns the CompositeNodeKey for this ref.
func (r ScopedElementRef) Key() CompositeNodeKey {
	return NewCompositeNodeKey(r.FrameID, r.LoaderID, r.BackendNodeID)
}

// Serialize renders the ref in its wire form: "loader_id:backend_node_id"
// for main-frame refs, "frame_id:loader_id:backend_node_id" for iframes.
func (r ScopedElementRef) Serialize() string {
	if r.IsMainFrame {
		return fmt.Sprintf("%s:%d", r.LoaderID, r.BackendNodeID)
	}
	return fmt.Sprintf("%s:%s:%d", r.FrameID, r.LoaderID, r.BackendNodeID)
}

// ParseSerializedRef parses a wire-form ref string produced by Serialize.
// It does not validate the ref against any tracker state — callers that
// need validity should go through frametracker.Tracker.ParseRef instead,
// which additionally checks the frame exists and the loader still matches.
func ParseSerializedRef(s string) (ScopedElementRef, bool) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ScopedElementRef{}, false
		}
		return ScopedElementRef{LoaderID: parts[0], BackendNodeID: id, IsMainFrame: true}, true
	case 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return ScopedElementRef{}, false
		}
		return ScopedElementRef{FrameID: parts[0], LoaderID: parts[1], BackendNodeID: id}, true
	default:
		return ScopedElementRef{}, false
	}
}

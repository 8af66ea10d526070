package pagestate

import "github.com/hazyhaar/domstate/snapshot"

// ChangeType classifies what kind of change a Modification represents.
type ChangeType string

const (
	ChangeText  ChangeType = "text"
	ChangeState ChangeType = "state"
)

// Modification describes one node present in both diff sides whose
// observable facts changed.
type Modification struct {
	Ref           snapshot.ScopedElementRef
	Kind          snapshot.Kind
	ChangeType    ChangeType
	PreviousLabel string
	CurrentLabel  string
}

// NodeDiff is the result of comparing two node lists by composite identity.
type NodeDiff struct {
	Added       []snapshot.ReadableNode
	Modified    []Modification
	RemovedRefs []snapshot.ScopedElementRef
}

// TotalChanges is added+modified+removed, the figure the reliability check
// uses and that decides whether an overlay close reports base changes.
// delta.Formatter's counts block takes each list's length itself.
func (d NodeDiff) TotalChanges() int {
	return len(d.Added) + len(d.Modified) + len(d.RemovedRefs)
}

// Diff exposes computeDiff for callers outside this package that need a
// one-off comparison against an arbitrary prior node list rather than the
// State's own tracked baseline — specifically action.Executor's pre_delta,
// which diffs an agent's stale version against the current one.
func Diff(prev, curr []snapshot.ReadableNode) NodeDiff {
	return computeDiff(prev, curr)
}

// computeDiff compares prev against curr by (frame_id, loader_id,
// backend_node_id) identity: nodes only in curr are added, nodes only in
// prev are removed, nodes in both with a changed label or state are
// modified.
func computeDiff(prev, curr []snapshot.ReadableNode) NodeDiff {
	prevByKey := make(map[snapshot.CompositeNodeKey]snapshot.ReadableNode, len(prev))
	for _, n := range prev {
		prevByKey[n.CompositeKey()] = n
	}

	var diff NodeDiff
	seen := make(map[snapshot.CompositeNodeKey]bool, len(curr))

	for _, n := range curr {
		key := n.CompositeKey()
		seen[key] = true

		old, existed := prevByKey[key]
		if !existed {
			diff.Added = append(diff.Added, n)
			continue
		}
		if m, changed := diffNode(old, n); changed {
			diff.Modified = append(diff.Modified, m)
		}
	}

	for _, n := range prev {
		if !seen[n.CompositeKey()] {
			diff.RemovedRefs = append(diff.RemovedRefs, refOf(n))
		}
	}

	return diff
}

func diffNode(old, next snapshot.ReadableNode) (Modification, bool) {
	if old.Label != next.Label {
		return Modification{
			Ref:           refOf(next),
			Kind:          next.Kind,
			ChangeType:    ChangeText,
			PreviousLabel: old.Label,
			CurrentLabel:  next.Label,
		}, true
	}
	if stateChanged(old.State, next.State) {
		return Modification{
			Ref:        refOf(next),
			Kind:       next.Kind,
			ChangeType: ChangeState,
		}, true
	}
	return Modification{}, false
}

func stateChanged(a, b snapshot.State) bool {
	return !boolPtrEqual(a.Visible, b.Visible) ||
		!boolPtrEqual(a.Enabled, b.Enabled) ||
		!boolPtrEqual(a.Checked, b.Checked) ||
		!boolPtrEqual(a.Expanded, b.Expanded) ||
		!boolPtrEqual(a.Selected, b.Selected) ||
		!boolPtrEqual(a.Focused, b.Focused) ||
		!boolPtrEqual(a.Required, b.Required) ||
		!boolPtrEqual(a.Invalid, b.Invalid) ||
		!boolPtrEqual(a.Readonly, b.Readonly)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func refOf(n snapshot.ReadableNode) snapshot.ScopedElementRef {
	return snapshot.ScopedElementRef{
		BackendNodeID: n.BackendNodeID,
		FrameID:       n.FrameID,
		LoaderID:      n.LoaderID,
	}
}

// changeRatio and confidence implement the delta reliability check:
// change_ratio = (added+removed+modified) / max(total_nodes, 1),
// confidence = max(0, 1 - 2*change_ratio).
func changeRatio(diff NodeDiff, totalNodes int) float64 {
	denom := totalNodes
	if denom <= 0 {
		denom = 1
	}
	return float64(diff.TotalChanges()) / float64(denom)
}

func confidenceFor(ratio float64) float64 {
	c := 1 - 2*ratio
	if c < 0 {
		return 0
	}
	return c
}

const (
	minReliableConfidence = 0.6
	maxReliableRatio      = 0.4
)

func isUnreliable(diff NodeDiff, totalNodes int) bool {
	ratio := changeRatio(diff, totalNodes)
	confidence := confidenceFor(ratio)
	return confidence < minReliableConfidence || ratio > maxReliableRatio
}

// Package pagestate implements the per-page snapshot state machine:
// uninitialized -> base -> overlay(...), driven by
// ComputeResponse. It owns the overlay detector and the frozen-baseline
// bookkeeping that lets an overlay close cleanly report the base drift
// that accumulated underneath it.
//
// Transition logging follows observability/logger.go's EventLogger
// contract ("errors are logged via slog but never propagate, so a
// failing observability store never blocks the app"): pagestate never
// has a durable log store to fail, but it keeps the same shape — every
// transition is a Logger.Debug/Info call that can never itself produce
// an error the caller has to handle.
package pagestate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/domstate/overlay"
	"github.com/hazyhaar/domstate/snapshot"
	"github.com/hazyhaar/domstate/versionmanager"
)

// Mode is the state machine's current mode.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized"
	ModeBase          Mode = "base"
	ModeOverlay       Mode = "overlay"
)

// DecisionKind tags the variant of Decision produced by ComputeResponse.
// delta.Formatter switches on this to pick a wire payload shape.
type DecisionKind string

const (
	DecisionFull          DecisionKind = "full"
	DecisionNoChange      DecisionKind = "no_change"
	DecisionDelta         DecisionKind = "delta"
	DecisionOverlayOpened DecisionKind = "overlay_opened"
	DecisionOverlayClosed DecisionKind = "overlay_closed"
)

// Context distinguishes a base-mode delta from an overlay-mode delta.
type Context string

const (
	ContextBase    Context = "base"
	ContextOverlay Context = "overlay"
)

// Transition names the overlay.Change kind that produced an
// overlay_opened decision.
type Transition string

const (
	TransitionOpened   Transition = "opened"
	TransitionReplaced Transition = "replaced"
)

// Decision is the raw output of one ComputeResponse call. delta.Formatter
// consumes it (together with FrameTracker's drained invalidations) to
// build the wire payload.
type Decision struct {
	Kind   DecisionKind
	Reason string // populated for Kind == full

	Snapshot snapshot.Base // populated for Kind == full

	Context Context  // populated for Kind == delta
	Diff    NodeDiff // populated for Kind == delta

	Overlay         *snapshot.OverlayState // populated for overlay_opened/overlay_closed
	PreviousOverlay *snapshot.OverlayState // populated for overlay_opened(replaced)/overlay_closed
	TransitionKind  Transition             // populated for overlay_opened

	BaseChanges *NodeDiff // populated for overlay_closed, if the base drifted underneath it
}

// Reasons used in full-snapshot decisions.
const (
	ReasonFirst           = "first"
	ReasonStaleAgentState = "stale agent state"
	ReasonUnreliableDelta = "unreliable delta"
)

// Config configures a State.
type Config struct {
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// State is one page's snapshot state machine. It owns the overlay
// detector and the version manager that feeds it fresh compiles.
type State struct {
	cfg Config

	vm       *versionmanager.Manager
	detector *overlay.Detector

	mu   sync.Mutex
	mode Mode

	// baseBaseline is the base-mode comparison point for delta computation.
	// It is set on the first capture and when an overlay closes, and
	// otherwise advances only through AdvanceBaselineTo in base mode.
	baseBaseline []snapshot.ReadableNode

	// overlay bookkeeping, valid only while mode == ModeOverlay. Base drift
	// under the overlay isn't accumulated incrementally: it is recovered at
	// close time by diffing frozenBase against the current base-only nodes.
	currentOverlay *snapshot.OverlayState
	frozenBase     []snapshot.ReadableNode
}

// New creates a State bound to a versionmanager.Manager and a fresh
// overlay.Detector.
func New(vm *versionmanager.Manager, cfg Config) *State {
	cfg.defaults()
	return &State{
		cfg:      cfg,
		vm:       vm,
		detector: overlay.New(),
		mode:     ModeUninitialized,
	}
}

// Mode returns the state machine's current mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ComputeResponse runs the full transition logic for one capture cycle:
// compile-if-changed, validate agent version, run the overlay detector,
// and produce a Decision.
func (s *State) ComputeResponse(ctx context.Context, agentVersion *uint64) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeUninitialized {
		return s.firstCapture(ctx)
	}

	versioned, isNew, err := s.vm.CaptureIfChanged(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("pagestate: capture: %w", err)
	}

	if status := s.vm.ValidateAgentState(agentVersion); status == versionmanager.StatusStaleNoHistory {
		s.cfg.Logger.Info("pagestate: stale agent state, forcing full", "agent_version", agentVersion)
		return s.fullDecision(versioned.Snapshot, ReasonStaleAgentState), nil
	}

	if !isNew {
		return s.handleUnchanged(versioned.Snapshot)
	}

	return s.handleChanged(versioned.Snapshot)
}

func (s *State) firstCapture(ctx context.Context) (Decision, error) {
	versioned, err := s.vm.ForceCapture(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("pagestate: first capture: %w", err)
	}
	s.baseBaseline = versioned.Snapshot.Nodes
	s.mode = ModeBase
	s.cfg.Logger.Debug("pagestate: uninitialized -> base", "version", versioned.Version)
	return s.fullDecision(versioned.Snapshot, ReasonFirst), nil
}

// handleUnchanged runs when CaptureIfChanged found an identical content
// hash. In overlay mode the base layer can still be unchanged while the
// overlay content itself settles, so the overlay detector still needs a
// pass against the current nodes.
func (s *State) handleUnchanged(current snapshot.Base) (Decision, error) {
	if s.mode == ModeOverlay {
		return s.runOverlayDetector(current)
	}
	return Decision{Kind: DecisionNoChange}, nil
}

func (s *State) handleChanged(current snapshot.Base) (Decision, error) {
	return s.runOverlayDetector(current)
}

func (s *State) runOverlayDetector(current snapshot.Base) (Decision, error) {
	change := s.detector.Detect(s.currentOverlay, current.Nodes)

	switch change.Kind {
	case overlay.Opened, overlay.Replaced:
		return s.handleOverlayOpenedOrReplaced(change, current)
	case overlay.Closed:
		return s.handleOverlayClosed(change, current)
	default:
		if s.mode == ModeOverlay {
			return s.overlayContentDelta(current)
		}
		return s.baseDelta(current)
	}
}

func (s *State) handleOverlayOpenedOrReplaced(change overlay.Change, current snapshot.Base) (Decision, error) {
	prevOverlay := s.currentOverlay

	if s.mode != ModeOverlay {
		// Freeze the base layer at the moment the overlay appears.
		s.frozenBase = baseOnlyNodes(current.Nodes)
	}

	overlayCopy := change.Overlay
	s.currentOverlay = &overlayCopy
	s.mode = ModeOverlay

	transition := TransitionOpened
	if change.Kind == overlay.Replaced {
		transition = TransitionReplaced
	}

	s.cfg.Logger.Debug("pagestate: overlay opened", "type", overlayCopy.OverlayType, "transition", transition)

	return Decision{
		Kind:            DecisionOverlayOpened,
		Overlay:         &overlayCopy,
		PreviousOverlay: prevOverlay,
		TransitionKind:  transition,
	}, nil
}

func (s *State) handleOverlayClosed(change overlay.Change, current snapshot.Base) (Decision, error) {
	prevOverlay := change.Previous
	currentBase := baseOnlyNodes(current.Nodes)

	diff := computeDiff(s.frozenBase, currentBase)
	var baseChanges *NodeDiff
	if diff.TotalChanges() > 0 {
		baseChanges = &diff
	}

	s.mode = ModeBase
	s.baseBaseline = currentBase
	s.currentOverlay = nil
	s.frozenBase = nil

	s.cfg.Logger.Debug("pagestate: overlay closed", "had_base_drift", baseChanges != nil)

	return Decision{
		Kind:            DecisionOverlayClosed,
		Overlay:         &prevOverlay,
		PreviousOverlay: &prevOverlay,
		BaseChanges:     baseChanges,
	}, nil
}

func (s *State) overlayContentDelta(current snapshot.Base) (Decision, error) {
	content := overlayContentNodes(current.Nodes)
	prevContent := s.currentOverlay.Snapshot
	diff := computeDiff(prevContent, content)

	if isUnreliable(diff, len(content)) {
		s.cfg.Logger.Info("pagestate: overlay delta unreliable, falling back to full")
		return s.fullDecision(current, ReasonUnreliableDelta), nil
	}

	s.currentOverlay.Snapshot = content
	return Decision{Kind: DecisionDelta, Context: ContextOverlay, Diff: diff}, nil
}

func (s *State) baseDelta(current snapshot.Base) (Decision, error) {
	diff := computeDiff(s.baseBaseline, current.Nodes)

	if isUnreliable(diff, len(current.Nodes)) {
		s.cfg.Logger.Info("pagestate: base delta unreliable, falling back to full")
		return s.fullDecision(current, ReasonUnreliableDelta), nil
	}

	return Decision{Kind: DecisionDelta, Context: ContextBase, Diff: diff}, nil
}

func (s *State) fullDecision(snap snapshot.Base, reason string) Decision {
	return Decision{Kind: DecisionFull, Snapshot: snap, Reason: reason}
}

// AdvanceBaselineTo moves the base-mode baseline to the given snapshot on
// a successful action; in overlay mode it is a no-op and reports false,
// since the frozen base must never move while an overlay is open.
func (s *State) AdvanceBaselineTo(nodes []snapshot.ReadableNode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeOverlay {
		return false
	}
	s.baseBaseline = nodes
	return true
}

// Reset forces the state machine back to uninitialized, clearing overlay
// and baseline bookkeeping but leaving the version manager's monotonic
// counter untouched.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeUninitialized
	s.baseBaseline = nil
	s.currentOverlay = nil
	s.frozenBase = nil
	s.vm.Reset()
}

// baseOnlyNodes excludes nodes the region resolver placed inside the
// dialog landmark, i.e. everything the overlay detector considers
// overlay content rather than base-page content.
func baseOnlyNodes(nodes []snapshot.ReadableNode) []snapshot.ReadableNode {
	out := make([]snapshot.ReadableNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Where.Region != snapshot.RegionDialog {
			out = append(out, n)
		}
	}
	return out
}

func overlayContentNodes(nodes []snapshot.ReadableNode) []snapshot.ReadableNode {
	var out []snapshot.ReadableNode
	for _, n := range nodes {
		if n.Where.Region == snapshot.RegionDialog {
			out = append(out, n)
		}
	}
	return out
}

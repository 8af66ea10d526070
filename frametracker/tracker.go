// Package frametracker maintains frame/loader identity for one page and
// issues the ScopedElementRef handles the rest of the engine hands to an
// agent. It is the sole source of truth for whether a ref is still valid.
//
// Adapted from domwatch/internal/observer's navigation handling
// (handleNavigate) and cdpdom.go's EachEvent subscription idiom,
// generalized from DOM-mutation events to Page.frameNavigated /
// Page.frameDetached.
package frametracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/domstate/cdp"
	"github.com/hazyhaar/domstate/snapshot"
)

// Defaults for the issued-ref eviction cap.
const (
	DefaultMaxIssuedRefs     = 10_000
	DefaultEvictionBatchSize = 1_000
)

// Config configures a Tracker.
type Config struct {
	MaxIssuedRefs     int
	EvictionBatchSize int
	Logger            *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxIssuedRefs <= 0 {
		c.MaxIssuedRefs = DefaultMaxIssuedRefs
	}
	if c.EvictionBatchSize <= 0 {
		c.EvictionBatchSize = DefaultEvictionBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tracker tracks frame identity and issued refs for a single page.
type Tracker struct {
	cfg Config

	client cdp.Client

	mu          sync.Mutex
	frames      map[string]snapshot.FrameState // frame_id -> state
	mainFrameID string
	issued      map[string]map[string]map[int64]uint64 // frame -> loader -> backend -> seq
	issueSeq    uint64
	invalidated []snapshot.ScopedElementRef

	initOnce  sync.Once
	initErr   error
	initDone  chan struct{}
	unsubNav  func()
	unsubDet  func()
}

// New creates a Tracker bound to client. Call Initialize before use.
func New(client cdp.Client, cfg Config) *Tracker {
	cfg.defaults()
	return &Tracker{
		cfg:      cfg,
		client:   client,
		frames:   make(map[string]snapshot.FrameState),
		issued:   make(map[string]map[string]map[int64]uint64),
		initDone: make(chan struct{}),
	}
}

// Initialize calls Page.getFrameTree and subscribes to frame lifecycle
// events. Idempotent: concurrent or repeated calls share one init future.
func (t *Tracker) Initialize(ctx context.Context) error {
	t.initOnce.Do(func() {
		t.initErr = t.initialize(ctx)
		close(t.initDone)
	})
	<-t.initDone
	return t.initErr
}

func (t *Tracker) initialize(ctx context.Context) error {
	raw, err := t.client.Send(ctx, "Page.getFrameTree", struct{}{})
	if err != nil {
		return fmt.Errorf("frametracker: Page.getFrameTree: %w", err)
	}

	var tree frameTreeResult
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("frametracker: decode frame tree: %w", err)
	}

	t.mu.Lock()
	t.installTree(tree.FrameTree, true)
	t.mu.Unlock()

	t.unsubNav = t.client.On("Page.frameNavigated", t.onFrameNavigated)
	t.unsubDet = t.client.On("Page.frameDetached", t.onFrameDetached)
	return nil
}

type frameTreeResult struct {
	FrameTree frameTreeNode `json:"frameTree"`
}

type frameTreeNode struct {
	Frame    cdpFrame        `json:"frame"`
	Children []frameTreeNode `json:"childFrames"`
}

type cdpFrame struct {
	ID       string `json:"id"`
	LoaderID string `json:"loaderId"`
	URL      string `json:"url"`
	ParentID string `json:"parentId"`
}

func (t *Tracker) installTree(n frameTreeNode, isMain bool) {
	t.frames[n.Frame.ID] = snapshot.FrameState{
		FrameID:  n.Frame.ID,
		LoaderID: n.Frame.LoaderID,
		URL:      n.Frame.URL,
		IsMain:   isMain,
	}
	if isMain {
		t.mainFrameID = n.Frame.ID
	}
	for _, c := range n.Children {
		t.installTree(c, false)
	}
}

type frameNavigatedEvent struct {
	Frame cdpFrame `json:"frame"`
}

func (t *Tracker) onFrameNavigated(raw json.RawMessage) {
	var e frameNavigatedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		t.cfg.Logger.Warn("frametracker: decode frameNavigated", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, known := t.frames[e.Frame.ID]
	isMain := e.Frame.ID == t.mainFrameID || !known && e.Frame.ParentID == ""

	if known && prev.LoaderID == e.Frame.LoaderID {
		// Same-document navigation: update URL only, no invalidations.
		prev.URL = e.Frame.URL
		t.frames[e.Frame.ID] = prev
		return
	}

	// Cross-document navigation (or a frame we haven't seen yet): move
	// the prior (loader, ref-set) to invalidations, install the new loader.
	if known {
		t.invalidateLoaderLocked(e.Frame.ID, prev.LoaderID, prev.IsMain)
	}

	t.frames[e.Frame.ID] = snapshot.FrameState{
		FrameID:  e.Frame.ID,
		LoaderID: e.Frame.LoaderID,
		URL:      e.Frame.URL,
		IsMain:   isMain || (known && prev.IsMain),
	}
	if t.frames[e.Frame.ID].IsMain {
		t.mainFrameID = e.Frame.ID
	}
}

type frameDetachedEvent struct {
	FrameID string `json:"frameId"`
}

func (t *Tracker) onFrameDetached(raw json.RawMessage) {
	var e frameDetachedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		t.cfg.Logger.Warn("frametracker: decode frameDetached", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.frames[e.FrameID]
	if !ok {
		return
	}
	// Emit invalidations for every ref in every loader of this frame.
	for loaderID := range t.issued[e.FrameID] {
		t.invalidateLoaderLocked(e.FrameID, loaderID, state.IsMain)
	}
	delete(t.issued, e.FrameID)
	delete(t.frames, e.FrameID)
}

// invalidateLoaderLocked moves every issued ref for (frameID, loaderID)
// into the invalidation queue. Caller must hold t.mu.
func (t *Tracker) invalidateLoaderLocked(frameID, loaderID string, isMain bool) {
	byLoader, ok := t.issued[frameID]
	if !ok {
		return
	}
	backends, ok := byLoader[loaderID]
	if !ok {
		return
	}
	for backendID := range backends {
		t.invalidated = append(t.invalidated, snapshot.ScopedElementRef{
			BackendNodeID: backendID,
			FrameID:       frameID,
			LoaderID:      loaderID,
			IsMainFrame:   isMain,
		})
	}
	delete(byLoader, loaderID)
}

// CreateRef mints a ref for backendNodeID in frameID, or returns
// (ScopedElementRef{}, false) if the frame is unknown.
func (t *Tracker) CreateRef(frameID string, backendNodeID int64) (snapshot.ScopedElementRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.frames[frameID]
	if !ok {
		return snapshot.ScopedElementRef{}, false
	}

	ref := snapshot.ScopedElementRef{
		BackendNodeID: backendNodeID,
		FrameID:       frameID,
		LoaderID:      state.LoaderID,
		IsMainFrame:   state.IsMain,
	}

	byLoader, ok := t.issued[frameID]
	if !ok {
		byLoader = make(map[string]map[int64]uint64)
		t.issued[frameID] = byLoader
	}
	backends, ok := byLoader[state.LoaderID]
	if !ok {
		backends = make(map[int64]uint64)
		byLoader[state.LoaderID] = backends
	}
	t.issueSeq++
	backends[backendNodeID] = t.issueSeq

	t.evictIfOverCapLocked()
	return ref, true
}

// evictIfOverCapLocked silently drops the oldest refs once the tracked
// total crosses MaxIssuedRefs. Evicted refs are NOT reported as
// invalidated: an agent holding one simply fails to resolve it later.
// This is a deliberate memory-cap tradeoff: at that scale
// the agent's state is already far from reality.
func (t *Tracker) evictIfOverCapLocked() {
	total := 0
	for _, byLoader := range t.issued {
		for _, backends := range byLoader {
			total += len(backends)
		}
	}
	if total <= t.cfg.MaxIssuedRefs {
		return
	}

	type entry struct {
		frameID, loaderID string
		backendID         int64
		seq               uint64
	}
	var all []entry
	for frameID, byLoader := range t.issued {
		for loaderID, backends := range byLoader {
			for backendID, seq := range backends {
				all = append(all, entry{frameID, loaderID, backendID, seq})
			}
		}
	}
	// Oldest seq first.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].seq < all[j-1].seq; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	n := t.cfg.EvictionBatchSize
	if n > len(all) {
		n = len(all)
	}
	for _, e := range all[:n] {
		delete(t.issued[e.frameID][e.loaderID], e.backendID)
	}
}

// IsValid reports whether ref's frame still exists with the same loader.
func (t *Tracker) IsValid(ref snapshot.ScopedElementRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.frames[ref.FrameID]
	return ok && state.LoaderID == ref.LoaderID
}

// SerializeRef renders ref in its wire form.
func (t *Tracker) SerializeRef(ref snapshot.ScopedElementRef) string {
	return ref.Serialize()
}

// ParseRef parses a wire-form ref and validates it against current frame
// state, returning (ref, false) if the frame is gone or the loader is stale.
func (t *Tracker) ParseRef(s string) (snapshot.ScopedElementRef, bool) {
	ref, ok := snapshot.ParseSerializedRef(s)
	if !ok {
		return snapshot.ScopedElementRef{}, false
	}
	if ref.IsMainFrame {
		t.mu.Lock()
		ref.FrameID = t.mainFrameID
		t.mu.Unlock()
	}
	if !t.IsValid(ref) {
		return snapshot.ScopedElementRef{}, false
	}
	return ref, true
}

// DrainInvalidations pops and returns every invalidation accumulated
// since the last drain. Must be called after the final post-action
// capture, never before: a navigation that fires mid-action
// must still land in the very next emitted payload.
func (t *Tracker) DrainInvalidations() []snapshot.ScopedElementRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.invalidated
	t.invalidated = nil
	return out
}

// PruneRefs removes the given refs from the issued set without reporting
// them as invalidated (used once a ref is known stale via an explicit
// action failure rather than a navigation).
func (t *Tracker) PruneRefs(refs []snapshot.ScopedElementRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range refs {
		if byLoader, ok := t.issued[r.FrameID]; ok {
			if backends, ok := byLoader[r.LoaderID]; ok {
				delete(backends, r.BackendNodeID)
			}
		}
	}
}

// ClearAllRefs drops every tracked ref without reporting invalidations.
func (t *Tracker) ClearAllRefs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued = make(map[string]map[string]map[int64]uint64)
}

// MainFrameID returns the current main frame id.
func (t *Tracker) MainFrameID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mainFrameID
}

// IssuedRefCount reports how many refs are currently live (issued and not
// yet pruned or invalidated). Used by registry.Store.Stats for operator
// visibility into per-page ref pressure.
func (t *Tracker) IssuedRefCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byLoader := range t.issued {
		for _, byBackend := range byLoader {
			n += len(byBackend)
		}
	}
	return n
}

// FrameState returns the current state of frameID, if known.
func (t *Tracker) FrameState(frameID string) (snapshot.FrameState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.frames[frameID]
	return s, ok
}

// Frames returns a snapshot copy of all currently known frames.
func (t *Tracker) Frames() map[string]snapshot.FrameState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]snapshot.FrameState, len(t.frames))
	for k, v := range t.frames {
		out[k] = v
	}
	return out
}

// Close unsubscribes from frame lifecycle events.
func (t *Tracker) Close() {
	if t.unsubNav != nil {
		t.unsubNav()
	}
	if t.unsubDet != nil {
		t.unsubDet()
	}
}

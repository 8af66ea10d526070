// Package compiler fuses one extractor.Result into a snapshot.Base: it
// classifies each accessibility-tree node into a Kind, resolves its region
// by walking DOM landmark ancestors, attaches layout/state/attribute facts,
// and builds the selector locator an agent can use outside of refs.
//
// Region resolution is adapted from domwatch/internal/profiler/landmarks.go,
// generalized from a one-shot JS landmark scan into an ancestor walk over
// the already-extracted DOM index (no second round trip to the page is
// needed once extractor has run).
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/domstate/cdp"
	"github.com/hazyhaar/domstate/extractor"
	"github.com/hazyhaar/domstate/frametracker"
	"github.com/hazyhaar/domstate/idgen"
	"github.com/hazyhaar/domstate/snapshot"
)

// Compiler fuses extraction output into a snapshot.Base for one page.
type Compiler struct {
	client    cdp.Client
	extractor *extractor.Pipeline
	tracker   *frametracker.Tracker
	pageID    string
	nodeIDGen idgen.Generator
	snapGen   idgen.Generator
}

// New returns a Compiler for one page. tracker must already be
// initialized (frametracker.Tracker.Initialize) before the first Compile.
func New(client cdp.Client, extractor *extractor.Pipeline, tracker *frametracker.Tracker, pageID string) *Compiler {
	return &Compiler{
		client:    client,
		extractor: extractor,
		tracker:   tracker,
		pageID:    pageID,
		nodeIDGen: idgen.NanoID(12),
		snapGen:   idgen.UUIDv7(),
	}
}

// Compile implements versionmanager.Compiler.
func (c *Compiler) Compile(ctx context.Context) (snapshot.Base, error) {
	result, err := c.extractor.Extract(ctx)
	if err != nil {
		return snapshot.Base{}, fmt.Errorf("compiler: extract: %w", err)
	}
	warnings := append([]string{}, result.Warnings...)

	meta, metaErr := fetchPageMeta(ctx, c.client)
	if metaErr != nil {
		warnings = append(warnings, "page meta: "+metaErr.Error())
	}

	axRoleOf := make(map[int64]string, len(result.Ax.Nodes))
	for id, ax := range result.Ax.Nodes {
		axRoleOf[id] = ax.Role
	}
	resolver := newRegionResolver(result.Dom, axRoleOf)

	preOrder, frameOf := walkPreOrder(result.Dom)

	nodes := make([]snapshot.ReadableNode, 0, len(preOrder))
	interactiveCount := 0

	for _, backendID := range preOrder {
		ax, hasAx := result.Ax.Nodes[backendID]
		if !hasAx || ax.Ignored {
			continue
		}
		kind, isCandidate := classifyKind(ax.Role)
		if !isCandidate {
			continue
		}

		frameID := frameOf[backendID]
		if frameID == "" {
			frameID = c.tracker.MainFrameID()
		}
		frameState, knownFrame := c.tracker.FrameState(frameID)
		if !knownFrame {
			continue // can't be tracked for ref validity; exclude from the snapshot
		}
		if _, ok := c.tracker.CreateRef(frameID, backendID); !ok {
			continue
		}

		domNode := result.Dom.Nodes[backendID]
		layoutNode := result.Layout.Nodes[backendID]

		node := snapshot.ReadableNode{
			NodeID:        c.nodeIDGen(),
			BackendNodeID: backendID,
			FrameID:       frameID,
			LoaderID:      frameState.LoaderID,
			Kind:          kind,
			Label:         ax.Name,
			Role:          ax.Role,
			Where: snapshot.Where{
				Region: resolver.resolve(backendID),
			},
			Layout:     buildLayout(layoutNode, meta.Viewport),
			State:      buildState(ax.Properties),
			Attributes: buildAttributes(domNode, ax),
		}
		loc := buildLocator(result.Dom, backendID, ax.Role, ax.Name)
		node.Find = snapshot.Locator{Primary: loc.Primary, Alternates: loc.Alternates}

		nodes = append(nodes, node)
		if interactiveKinds[kind] {
			interactiveCount++
		}
	}

	frames := c.tracker.Frames()

	return snapshot.Base{
		SnapshotID: c.snapGen(),
		PageID:     c.pageID,
		URL:        meta.URL,
		Title:      meta.Title,
		CapturedAt: time.Now().UnixMilli(),
		Viewport:   meta.Viewport,
		Nodes:      nodes,
		Frames:     frames,
		Meta: snapshot.Meta{
			NodeCount:        len(nodes),
			InteractiveCount: interactiveCount,
			Warnings:         warnings,
		},
	}, nil
}

// walkPreOrder returns backend node ids in DOM pre-order along with the
// frame id each node belongs to (propagated down from the nearest ancestor
// that introduced a new frame, i.e. an iframe's content document root).
func walkPreOrder(dom extractor.RawDom) ([]int64, map[int64]string) {
	preOrder := make([]int64, 0, len(dom.Nodes))
	frameOf := make(map[int64]string, len(dom.Nodes))

	var walk func(id int64, currentFrame string)
	walk = func(id int64, currentFrame string) {
		node, ok := dom.Nodes[id]
		if !ok {
			return
		}
		if node.FrameID != "" {
			currentFrame = node.FrameID
		}
		preOrder = append(preOrder, id)
		frameOf[id] = currentFrame
		for _, childID := range node.ChildBackendIDs {
			walk(childID, currentFrame)
		}
	}
	walk(dom.Root, "")

	return preOrder, frameOf
}

type pageMeta struct {
	URL      string
	Title    string
	Viewport snapshot.Viewport
}

type evalResult struct {
	Result struct {
		Value json.RawMessage `json:"value"`
	} `json:"result"`
}

type pageMetaJS struct {
	URL    string  `json:"url"`
	Title  string  `json:"title"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPR    float64 `json:"dpr"`
}

// fetchPageMeta reads url/title/viewport via Runtime.evaluate, the one CDP
// call in this package that isn't DOM/AX/layout extraction proper — those
// three facts aren't exposed by any of the domains extractor already
// queries.
func fetchPageMeta(ctx context.Context, client cdp.Client) (pageMeta, error) {
	const script = `(() => JSON.stringify({
		url: location.href,
		title: document.title,
		width: window.innerWidth,
		height: window.innerHeight,
		dpr: window.devicePixelRatio
	}))()`

	raw, err := client.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script, "returnByValue": true})
	if err != nil {
		return pageMeta{}, fmt.Errorf("Runtime.evaluate: %w", err)
	}
	var res evalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return pageMeta{}, fmt.Errorf("decode Runtime.evaluate: %w", err)
	}
	var asStr string
	if err := json.Unmarshal(res.Result.Value, &asStr); err != nil {
		return pageMeta{}, fmt.Errorf("decode evaluate result: %w", err)
	}
	var m pageMetaJS
	if err := json.Unmarshal([]byte(asStr), &m); err != nil {
		return pageMeta{}, fmt.Errorf("decode page meta JSON: %w", err)
	}
	return pageMeta{
		URL:   m.URL,
		Title: m.Title,
		Viewport: snapshot.Viewport{
			Width:            m.Width,
			Height:           m.Height,
			DevicePixelRatio: m.DPR,
		},
	}, nil
}

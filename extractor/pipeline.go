package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domstate/cdp"
)

// Pipeline queries one page's CDP domains and returns Result. It holds no
// state across calls; every Extract is a fresh snapshot of whatever CDP
// currently reports.
type Pipeline struct {
	client cdp.Client
}

// New returns a Pipeline bound to client.
func New(client cdp.Client) *Pipeline {
	return &Pipeline{client: client}
}

// Extract runs DOM, Accessibility and layout/style queries and fuses them
// into backend-node-id-keyed structures. It never returns an error for a
// single failed domain; each failure becomes a Warnings entry and that
// domain's structure comes back empty instead.
func (p *Pipeline) Extract(ctx context.Context) (Result, error) {
	var res Result

	dom, domErr := p.extractDom(ctx)
	if domErr != nil {
		res.Warnings = append(res.Warnings, "dom: "+domErr.Error())
	}
	res.Dom = dom

	ax, axErr := p.extractAx(ctx)
	if axErr != nil {
		res.Warnings = append(res.Warnings, "accessibility: "+axErr.Error())
	}
	res.Ax = ax

	layout, layoutWarnings := p.extractLayout(ctx, dom)
	res.Layout = layout
	res.Warnings = append(res.Warnings, layoutWarnings...)

	if domErr != nil && axErr != nil {
		return res, fmt.Errorf("extractor: both DOM and accessibility extraction failed: dom=%v ax=%v", domErr, axErr)
	}
	return res, nil
}

// --- DOM.getDocument ---

type domGetDocumentResult struct {
	Root domNode `json:"root"`
}

type domNode struct {
	NodeID          int64     `json:"nodeId"`
	BackendNodeID   int64     `json:"backendNodeId"`
	NodeName        string    `json:"nodeName"`
	NodeValue       string    `json:"nodeValue"`
	Attributes      []string  `json:"attributes"`
	Children        []domNode `json:"children"`
	ContentDocument *domNode  `json:"contentDocument"`
	FrameID         string    `json:"frameId"`
}

func (p *Pipeline) extractDom(ctx context.Context) (RawDom, error) {
	raw, err := p.client.Send(ctx, "DOM.getDocument", map[string]any{"depth": -1, "pierce": true})
	if err != nil {
		return RawDom{}, fmt.Errorf("DOM.getDocument: %w", err)
	}

	var result domGetDocumentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return RawDom{}, fmt.Errorf("decode DOM.getDocument: %w", err)
	}

	dom := RawDom{Nodes: make(map[int64]RawDomNode), Root: result.Root.BackendNodeID}
	walkDomNode(result.Root, 0, &dom)
	return dom, nil
}

func walkDomNode(n domNode, parentBackendID int64, dom *RawDom) {
	attrs := make(map[string]string, len(n.Attributes)/2)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		attrs[n.Attributes[i]] = n.Attributes[i+1]
	}

	childIDs := make([]int64, 0, len(n.Children))
	for _, c := range n.Children {
		childIDs = append(childIDs, c.BackendNodeID)
	}

	dom.Nodes[n.BackendNodeID] = RawDomNode{
		BackendNodeID:   n.BackendNodeID,
		NodeID:          n.NodeID,
		NodeName:        n.NodeName,
		Attributes:      attrs,
		ParentBackendID: parentBackendID,
		ChildBackendIDs: childIDs,
		FrameID:         n.FrameID,
	}

	for _, c := range n.Children {
		walkDomNode(c, n.BackendNodeID, dom)
	}
	if n.ContentDocument != nil {
		walkDomNode(*n.ContentDocument, n.BackendNodeID, dom)
	}
}

// --- Accessibility.getFullAXTree ---

type axGetFullTreeResult struct {
	Nodes []axNode `json:"nodes"`
}

type axNode struct {
	NodeID           string        `json:"nodeId"`
	Ignored          bool          `json:"ignored"`
	Role             *axValue      `json:"role"`
	Name             *axValue      `json:"name"`
	BackendDOMNodeID int64         `json:"backendDOMNodeId"`
	Properties       []axProperty  `json:"properties"`
}

type axValue struct {
	Value string `json:"value"`
}

type axProperty struct {
	Name  string  `json:"name"`
	Value axValue `json:"value"`
}

func (p *Pipeline) extractAx(ctx context.Context) (RawAx, error) {
	raw, err := p.client.Send(ctx, "Accessibility.getFullAXTree", struct{}{})
	if err != nil {
		return RawAx{}, fmt.Errorf("Accessibility.getFullAXTree: %w", err)
	}

	var result axGetFullTreeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return RawAx{}, fmt.Errorf("decode getFullAXTree: %w", err)
	}

	ax := RawAx{Nodes: make(map[int64]RawAxNode)}
	for _, n := range result.Nodes {
		if n.BackendDOMNodeID == 0 {
			continue // virtual AX node with no DOM counterpart
		}
		node := RawAxNode{
			BackendNodeID: n.BackendDOMNodeID,
			Ignored:       n.Ignored,
			Properties:    make(map[string]string, len(n.Properties)),
		}
		if n.Role != nil {
			node.Role = n.Role.Value
		}
		if n.Name != nil {
			node.Name = n.Name.Value
		}
		for _, prop := range n.Properties {
			node.Properties[prop.Name] = prop.Value.Value
		}
		ax.Nodes[n.BackendDOMNodeID] = node
	}
	return ax, nil
}

// --- DOM.getBoxModel + CSS.getComputedStyleForNode ---

type boxModelResult struct {
	Model *boxModel `json:"model"`
}

type boxModel struct {
	Content []float64 `json:"content"`
	Width   float64   `json:"width"`
	Height  float64   `json:"height"`
}

type computedStyleResult struct {
	ComputedStyle []cssProperty `json:"computedStyle"`
}

type cssProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// extractLayout queries box model and computed style per node. CDP has no
// batch form for either call, so this is one round trip per node; nothing
// here forbids doing these lookups concurrently, but this keeps the
// implementation straightforward and lets the cooperative per-page model
// stay single-threaded through one client.
func (p *Pipeline) extractLayout(ctx context.Context, dom RawDom) (RawLayout, []string) {
	layout := RawLayout{Nodes: make(map[int64]RawLayoutNode, len(dom.Nodes))}
	var warnings []string

	for backendID, node := range dom.Nodes {
		entry := RawLayoutNode{}

		rawBox, err := p.client.Send(ctx, "DOM.getBoxModel", map[string]any{"backendNodeId": backendID})
		if err == nil {
			var box boxModelResult
			if err := json.Unmarshal(rawBox, &box); err == nil && box.Model != nil && len(box.Model.Content) >= 8 {
				entry.Present = true
				entry.BBox = BBox{
					X: box.Model.Content[0],
					Y: box.Model.Content[1],
					W: box.Model.Width,
					H: box.Model.Height,
				}
			}
		}
		if !entry.Present {
			warnings = append(warnings, fmt.Sprintf("node %d: no box model (not rendered)", backendID))
		}

		if node.NodeID != 0 {
			rawStyle, err := p.client.Send(ctx, "CSS.getComputedStyleForNode", map[string]any{"nodeId": node.NodeID})
			if err == nil {
				var styleResult computedStyleResult
				if err := json.Unmarshal(rawStyle, &styleResult); err == nil {
					entry.Style = make(map[string]string, len(styleResult.ComputedStyle))
					for _, prop := range styleResult.ComputedStyle {
						entry.Style[prop.Name] = prop.Value
					}
					if z, ok := entry.Style["z-index"]; ok {
						if zi, ok := parseZIndex(z); ok {
							entry.HasZIndex = true
							entry.ZIndex = zi
						}
					}
				}
			}
			if entry.Style == nil {
				warnings = append(warnings, fmt.Sprintf("node %d: no computed style (assume visible)", backendID))
			}
		}

		layout.Nodes[backendID] = entry
	}

	return layout, warnings
}

func parseZIndex(s string) (int, bool) {
	if s == "" || s == "auto" {
		return 0, false
	}
	var n int
	var neg bool
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(s) {
		return 0, false
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

package compiler

import (
	"context"
	"testing"

	"github.com/hazyhaar/domstate/cdptest"
	"github.com/hazyhaar/domstate/extractor"
	"github.com/hazyhaar/domstate/frametracker"
	"github.com/hazyhaar/domstate/snapshot"
)

func newTrackerForTest(t *testing.T, fake *cdptest.Fake) *frametracker.Tracker {
	t.Helper()
	fake.Respond("Page.getFrameTree", map[string]any{
		"frameTree": map[string]any{
			"frame": map[string]any{"id": "main", "loaderId": "ldr1", "url": "https://a.test/"},
		},
	})
	tr := frametracker.New(fake, frametracker.Config{})
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("tracker init: %v", err)
	}
	return tr
}

func respondPageMeta(fake *cdptest.Fake) {
	fake.Respond("Runtime.evaluate", map[string]any{
		"result": map[string]any{
			"value": `{"url":"https://a.test/","title":"Test Page","width":1280,"height":720,"dpr":1}`,
		},
	})
}

// A body containing one landmark <main> with a button inside it, plus a
// standalone heading outside any landmark.
func respondSimplePage(fake *cdptest.Fake) {
	fake.Respond("DOM.getDocument", map[string]any{
		"root": map[string]any{
			"nodeId": 1, "backendNodeId": 1, "nodeName": "BODY", "attributes": []string{},
			"children": []map[string]any{
				{
					"nodeId": 2, "backendNodeId": 2, "nodeName": "MAIN", "attributes": []string{},
					"children": []map[string]any{
						{
							"nodeId": 3, "backendNodeId": 3, "nodeName": "BUTTON",
							"attributes": []string{"id", "submit"},
						},
					},
				},
				{
					"nodeId": 4, "backendNodeId": 4, "nodeName": "H1", "attributes": []string{},
				},
			},
		},
	})
	fake.Respond("Accessibility.getFullAXTree", map[string]any{
		"nodes": []map[string]any{
			{"nodeId": "ax1", "backendDOMNodeId": 3, "role": map[string]any{"value": "button"}, "name": map[string]any{"value": "Submit"}},
			{"nodeId": "ax2", "backendDOMNodeId": 4, "role": map[string]any{"value": "heading"}, "name": map[string]any{"value": "Welcome"},
				"properties": []map[string]any{{"name": "level", "value": map[string]any{"value": "1"}}}},
		},
	})
	// extractLayout queries every DOM node (body, main, button, h1), not
	// just the two that end up AX-classified, and map iteration order is
	// unspecified — queue one identical response per node so order never
	// matters for what this test asserts.
	for i := 0; i < 4; i++ {
		fake.Respond("DOM.getBoxModel", map[string]any{
			"model": map[string]any{"content": []float64{10, 10, 0, 0, 0, 0, 0, 0}, "width": 100, "height": 20},
		})
		fake.Respond("CSS.getComputedStyleForNode", map[string]any{
			"computedStyle": []map[string]any{{"name": "display", "value": "block"}},
		})
	}
}

func TestCompile_ClassifiesAndRegionResolves(t *testing.T) {
	fake := cdptest.New()
	tr := newTrackerForTest(t, fake)
	respondPageMeta(fake)
	respondSimplePage(fake)

	c := New(fake, extractor.New(fake), tr, "page-1")
	base, err := c.Compile(context.Background())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if base.URL != "https://a.test/" || base.Title != "Test Page" {
		t.Fatalf("page meta not applied: %+v", base)
	}
	if len(base.Nodes) != 2 {
		t.Fatalf("expected 2 readable nodes, got %d: %+v", len(base.Nodes), base.Nodes)
	}

	var button, heading *snapshot.ReadableNode
	for i := range base.Nodes {
		switch base.Nodes[i].Kind {
		case snapshot.KindButton:
			button = &base.Nodes[i]
		case snapshot.KindHeading:
			heading = &base.Nodes[i]
		}
	}
	if button == nil || heading == nil {
		t.Fatalf("expected one button and one heading, got %+v", base.Nodes)
	}
	if button.Where.Region != snapshot.RegionMain {
		t.Fatalf("button should resolve region=main (inside <main>), got %s", button.Where.Region)
	}
	if heading.Where.Region != snapshot.RegionUnknown {
		t.Fatalf("heading outside any landmark should be region=unknown, got %s", heading.Where.Region)
	}
	if button.Find.Primary != "#submit" {
		t.Fatalf("button should locate by #id, got %q", button.Find.Primary)
	}
	if heading.Attributes.HeadingLevel != 1 {
		t.Fatalf("heading level should be 1, got %d", heading.Attributes.HeadingLevel)
	}
	if base.Meta.InteractiveCount != 1 {
		t.Fatalf("expected interactive_count=1 (button only), got %d", base.Meta.InteractiveCount)
	}
}

// A body containing a role=dialog/aria-modal div (the common ARIA-modal
// pattern, as opposed to a native <dialog> element) with a button inside.
func respondAriaModalPage(fake *cdptest.Fake) {
	fake.Respond("DOM.getDocument", map[string]any{
		"root": map[string]any{
			"nodeId": 1, "backendNodeId": 1, "nodeName": "BODY", "attributes": []string{},
			"children": []map[string]any{
				{
					"nodeId": 2, "backendNodeId": 2, "nodeName": "DIV",
					"attributes": []string{"role", "dialog", "aria-modal", "true"},
					"children": []map[string]any{
						{
							"nodeId": 3, "backendNodeId": 3, "nodeName": "BUTTON",
							"attributes": []string{"id", "close"},
						},
					},
				},
			},
		},
	})
	fake.Respond("Accessibility.getFullAXTree", map[string]any{
		"nodes": []map[string]any{
			{"nodeId": "ax1", "backendDOMNodeId": 2, "role": map[string]any{"value": "dialog"}, "name": map[string]any{"value": "Confirm"}},
			{"nodeId": "ax2", "backendDOMNodeId": 3, "role": map[string]any{"value": "button"}, "name": map[string]any{"value": "Close"}},
		},
	})
	for i := 0; i < 3; i++ {
		fake.Respond("DOM.getBoxModel", map[string]any{
			"model": map[string]any{"content": []float64{10, 10, 0, 0, 0, 0, 0, 0}, "width": 100, "height": 20},
		})
		fake.Respond("CSS.getComputedStyleForNode", map[string]any{
			"computedStyle": []map[string]any{{"name": "display", "value": "block"}},
		})
	}
}

func TestCompile_AriaModalDescendantResolvesDialogRegion(t *testing.T) {
	fake := cdptest.New()
	tr := newTrackerForTest(t, fake)
	respondPageMeta(fake)
	respondAriaModalPage(fake)

	c := New(fake, extractor.New(fake), tr, "page-1")
	base, err := c.Compile(context.Background())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var button, dialog *snapshot.ReadableNode
	for i := range base.Nodes {
		switch base.Nodes[i].Kind {
		case snapshot.KindButton:
			button = &base.Nodes[i]
		case snapshot.KindDialog:
			dialog = &base.Nodes[i]
		}
	}
	if dialog == nil {
		t.Fatalf("expected the role=dialog ancestor to produce a dialog node, got %+v", base.Nodes)
	}
	if button == nil {
		t.Fatalf("expected the nested button to be classified, got %+v", base.Nodes)
	}
	if button.Where.Region != snapshot.RegionDialog {
		t.Fatalf("button inside a role=dialog ancestor should resolve region=dialog, got %s", button.Where.Region)
	}
}

func TestScreenZone_BelowFold(t *testing.T) {
	zone := screenZone(extractor.BBox{X: 10, Y: 5000, W: 10, H: 10}, snapshot.Viewport{Width: 1000, Height: 800})
	if zone != snapshot.ZoneBelowFold {
		t.Fatalf("expected below-fold, got %s", zone)
	}
}

func TestScreenZone_Grid(t *testing.T) {
	viewport := snapshot.Viewport{Width: 900, Height: 600}
	zone := screenZone(extractor.BBox{X: 0, Y: 0, W: 10, H: 10}, viewport)
	if zone != snapshot.ZoneTopLeft {
		t.Fatalf("expected top-left, got %s", zone)
	}
	zone = screenZone(extractor.BBox{X: 400, Y: 300, W: 10, H: 10}, viewport)
	if zone != snapshot.ZoneMiddleCenter {
		t.Fatalf("expected middle-center, got %s", zone)
	}
}

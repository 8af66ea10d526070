package compiler

import (
	"strconv"
	"strings"

	"github.com/hazyhaar/domstate/extractor"
	"github.com/hazyhaar/domstate/snapshot"
)

// buildLayout converts one extractor.RawLayoutNode into snapshot.Layout,
// computing screen_zone from the bbox center against the viewport: a 3x3
// grid, below-fold once past viewport height.
func buildLayout(raw extractor.RawLayoutNode, viewport snapshot.Viewport) snapshot.Layout {
	layout := snapshot.Layout{
		BBox:    snapshot.BBox{X: raw.BBox.X, Y: raw.BBox.Y, W: raw.BBox.W, H: raw.BBox.H},
		Visible: raw.Present,
	}
	if raw.HasZIndex {
		z := raw.ZIndex
		layout.ZIndex = &z
	}
	if raw.Style != nil {
		layout.Display = raw.Style["display"]
		if layout.Display == "none" {
			layout.Visible = false
		}
	}
	if raw.Present {
		layout.ScreenZone = screenZone(raw.BBox, viewport)
	}
	return layout
}

func screenZone(bbox extractor.BBox, viewport snapshot.Viewport) snapshot.ScreenZone {
	centerX := bbox.X + bbox.W/2
	centerY := bbox.Y + bbox.H/2

	if viewport.Height > 0 && centerY >= float64(viewport.Height) {
		return snapshot.ZoneBelowFold
	}

	col := zoneBucket(centerX, float64(viewport.Width))
	row := zoneBucket(centerY, float64(viewport.Height))

	switch {
	case row == 0 && col == 0:
		return snapshot.ZoneTopLeft
	case row == 0 && col == 1:
		return snapshot.ZoneTopCenter
	case row == 0 && col == 2:
		return snapshot.ZoneTopRight
	case row == 1 && col == 0:
		return snapshot.ZoneMiddleLeft
	case row == 1 && col == 1:
		return snapshot.ZoneMiddleCenter
	case row == 1 && col == 2:
		return snapshot.ZoneMiddleRight
	case row == 2 && col == 0:
		return snapshot.ZoneBottomLeft
	case row == 2 && col == 1:
		return snapshot.ZoneBottomCenter
	default:
		return snapshot.ZoneBottomRight
	}
}

func zoneBucket(pos, extent float64) int {
	if extent <= 0 {
		return 0
	}
	third := extent / 3
	switch {
	case pos < third:
		return 0
	case pos < 2*third:
		return 1
	default:
		return 2
	}
}

// buildState derives the tri-state fields from AX properties. Property
// values that parse as "true"/"false" become a *bool; anything else (a
// missing property, or a non-boolean value like invalid="spelling")
// leaves the field nil, meaning "not applicable to this kind".
func buildState(props map[string]string) snapshot.State {
	var s snapshot.State
	s.Visible = boolProp(props, "hidden", true) // hidden=true -> visible=false
	s.Enabled = boolProp(props, "disabled", true)
	s.Checked = boolPropDirect(props, "checked")
	s.Expanded = boolPropDirect(props, "expanded")
	s.Selected = boolPropDirect(props, "selected")
	s.Focused = boolPropDirect(props, "focused")
	s.Required = boolPropDirect(props, "required")
	s.Invalid = boolPropDirect(props, "invalid")
	s.Readonly = boolPropDirect(props, "readonly")
	return s
}

// boolProp reads a property and, if present and boolean, returns its
// negation (used for hidden->visible and disabled->enabled).
func boolProp(props map[string]string, key string, invert bool) *bool {
	v, ok := parseBoolProp(props, key)
	if !ok {
		return nil
	}
	if invert {
		v = !v
	}
	return &v
}

func boolPropDirect(props map[string]string, key string) *bool {
	v, ok := parseBoolProp(props, key)
	if !ok {
		return nil
	}
	return &v
}

func parseBoolProp(props map[string]string, key string) (bool, bool) {
	raw, ok := props[key]
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}

// buildAttributes pulls the DOM/ARIA attribute subset a ReadableNode carries.
func buildAttributes(dom extractor.RawDomNode, ax extractor.RawAxNode) snapshot.Attributes {
	attrs := snapshot.Attributes{
		InputType:   dom.Attributes["type"],
		Value:       dom.Attributes["value"],
		Placeholder: dom.Attributes["placeholder"],
		Href:        dom.Attributes["href"],
		Alt:         dom.Attributes["alt"],
		Src:         dom.Attributes["src"],
		Role:        ax.Role,
		TestID:      dom.Attributes["data-testid"],
		AriaModal:   dom.Attributes["aria-modal"],
		Class:       dom.Attributes["class"],
	}
	if lvl, ok := ax.Properties["level"]; ok {
		if n, err := strconv.Atoi(lvl); err == nil {
			attrs.HeadingLevel = n
		}
	} else if tag := strings.ToLower(dom.NodeName); len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		attrs.HeadingLevel = int(tag[1] - '0')
	}
	return attrs
}

package snapshot

// OverlayType classifies the kind of overlay layer detected.
type OverlayType string

const (
	OverlayModal    OverlayType = "modal"
	OverlayDialog   OverlayType = "dialog"
	OverlayDropdown OverlayType = "dropdown"
	OverlayTooltip  OverlayType = "tooltip"
	OverlayUnknown  OverlayType = "unknown"
)

// OverlayState is born when overlay.Detector classifies one opened, and
// dies when the detector classifies it closed or replaced. While alive it
// freezes the base-layer baseline in pagestate.State.
type OverlayState struct {
	RootRef             ScopedElementRef   `json:"root_ref"`
	OverlayType         OverlayType        `json:"overlay_type"`
	Snapshot            []ReadableNode     `json:"snapshot"` // content at open time, advanced by overlay-content deltas
	ContentHash         string             `json:"content_hash"`
	DetectionConfidence float64            `json:"detection_confidence"`
	CapturedRefs         []ScopedElementRef `json:"captured_refs"`
}

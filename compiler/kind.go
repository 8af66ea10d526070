package compiler

import "github.com/hazyhaar/domstate/snapshot"

// roleToKind maps an AX role to the closed ReadableNode.Kind enum. Roles
// not listed go through classifyKind: menuitem* roles map to menuitem,
// structural roles and "", generic, none and presentation are not
// candidates, and anything else falls back to generic.
var roleToKind = map[string]snapshot.Kind{
	"button":      snapshot.KindButton,
	"link":        snapshot.KindLink,
	"textbox":     snapshot.KindInput,
	"searchbox":   snapshot.KindInput,
	"combobox":    snapshot.KindCombobox,
	"listbox":     snapshot.KindCombobox,
	"checkbox":    snapshot.KindCheckbox,
	"radio":       snapshot.KindRadio,
	"switch":      snapshot.KindSwitch,
	"slider":      snapshot.KindSlider,
	"tab":         snapshot.KindTab,
	"heading":     snapshot.KindHeading,
	"paragraph":   snapshot.KindParagraph,
	"StaticText":  snapshot.KindText,
	"dialog":      snapshot.KindDialog,
	"alertdialog": snapshot.KindDialog,
	"image":       snapshot.KindImage,
	"list":        snapshot.KindList,
	"listitem":    snapshot.KindListitem,
	"table":       snapshot.KindTable,
	"form":        snapshot.KindForm,
}

const menuItemRolePrefix = "menuitem"

// structuralRoles establish region context. The landmark roles here never
// become a ReadableNode themselves; dialog and alertdialog are also listed
// in roleToKind, which classifyKind checks first, so they additionally
// become dialog nodes.
var structuralRoles = map[string]snapshot.Region{
	"banner":        snapshot.RegionHeader,
	"navigation":    snapshot.RegionNav,
	"main":          snapshot.RegionMain,
	"complementary": snapshot.RegionAside,
	"contentinfo":   snapshot.RegionFooter,
	"dialog":        snapshot.RegionDialog,
	"alertdialog":   snapshot.RegionDialog,
}

// landmarkTags maps a lowercase DOM tag name to the region it establishes.
var landmarkTags = map[string]snapshot.Region{
	"header": snapshot.RegionHeader,
	"nav":    snapshot.RegionNav,
	"main":   snapshot.RegionMain,
	"aside":  snapshot.RegionAside,
	"footer": snapshot.RegionFooter,
	"form":   snapshot.RegionForm,
	"dialog": snapshot.RegionDialog,
}

// interactiveKinds counts toward Meta.interactive_count; everything else
// (headings, paragraphs, text runs, images, structural containers) is
// readable content but not something an agent acts on directly.
var interactiveKinds = map[snapshot.Kind]bool{
	snapshot.KindButton:   true,
	snapshot.KindLink:     true,
	snapshot.KindInput:    true,
	snapshot.KindTextarea: true,
	snapshot.KindSelect:   true,
	snapshot.KindCombobox: true,
	snapshot.KindCheckbox: true,
	snapshot.KindRadio:    true,
	snapshot.KindSwitch:   true,
	snapshot.KindSlider:   true,
	snapshot.KindTab:      true,
	snapshot.KindMenuitem: true,
}

// classifyKind returns the Kind for an AX role, and whether the role is a
// readable-content candidate at all (as opposed to purely structural or
// unrecognized-and-ignorable).
func classifyKind(role string) (kind snapshot.Kind, isCandidate bool) {
	if k, ok := roleToKind[role]; ok {
		return k, true
	}
	if len(role) >= len(menuItemRolePrefix) && role[:len(menuItemRolePrefix)] == menuItemRolePrefix {
		return snapshot.KindMenuitem, true
	}
	if _, ok := structuralRoles[role]; ok {
		return "", false
	}
	switch role {
	case "", "generic", "none", "presentation":
		return "", false
	}
	return snapshot.KindGeneric, true
}

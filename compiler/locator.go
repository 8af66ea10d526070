package compiler

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/domstate/extractor"
)

// escapeAttr backslash-escapes a double quote for embedding in a CSS
// attribute-selector or a role selector's name="..." clause.
func escapeAttr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// buildLocator implements the selector priority order:
// data-testid > data-test > data-cy > #id > role=X[name=Y] >
// role=X > tag-path. aria-label and a form name= selector are offered as
// alternates when present.
func buildLocator(dom extractor.RawDom, backendID int64, role, label string) Locator {
	node, ok := dom.Nodes[backendID]
	if !ok {
		return Locator{Primary: "unknown"}
	}

	var primary string
	var alternates []string

	switch {
	case node.Attributes["data-testid"] != "":
		primary = fmt.Sprintf(`[data-testid="%s"]`, escapeAttr(node.Attributes["data-testid"]))
	case node.Attributes["data-test"] != "":
		primary = fmt.Sprintf(`[data-test="%s"]`, escapeAttr(node.Attributes["data-test"]))
	case node.Attributes["data-cy"] != "":
		primary = fmt.Sprintf(`[data-cy="%s"]`, escapeAttr(node.Attributes["data-cy"]))
	case node.Attributes["id"] != "":
		primary = "#" + node.Attributes["id"]
	case role != "" && label != "":
		primary = fmt.Sprintf(`role=%s[name="%s"]`, role, escapeAttr(label))
	case role != "":
		primary = "role=" + role
	default:
		primary = tagPath(dom, backendID)
	}

	if ariaLabel := node.Attributes["aria-label"]; ariaLabel != "" {
		alternates = append(alternates, fmt.Sprintf(`[aria-label="%s"]`, escapeAttr(ariaLabel)))
	}
	if name := node.Attributes["name"]; name != "" {
		alternates = append(alternates, fmt.Sprintf(`[name="%s"]`, escapeAttr(name)))
	}

	return Locator{Primary: primary, Alternates: alternates}
}

// Locator mirrors snapshot.Locator; kept local so compiler's internals
// don't need to import snapshot just for this intermediate shape.
type Locator struct {
	Primary    string
	Alternates []string
}

// tagPath builds a last-resort CSS-ish path from the DOM root to backendID,
// appending the node's own class list if it has one.
func tagPath(dom extractor.RawDom, backendID int64) string {
	var tags []string
	id := backendID
	for id != 0 {
		node, ok := dom.Nodes[id]
		if !ok {
			break
		}
		tag := strings.ToLower(node.NodeName)
		if id == backendID {
			if class := node.Attributes["class"]; class != "" {
				classes := strings.Fields(class)
				tag += "." + strings.Join(classes, ".")
			}
		}
		tags = append([]string{tag}, tags...)
		id = node.ParentBackendID
	}
	if len(tags) == 0 {
		return "unknown"
	}
	return strings.Join(tags, " > ")
}

package snapshot

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// ContentHash hashes the semantically significant fields of every node in
// a snapshot so that two compiler passes over an unchanged page produce
// an identical digest. Layout-only jitter (exact bbox pixels, z-index) is
// deliberately excluded: versionmanager.Manager uses this to decide
// whether a new compiler pass is actually a new version.
//
// Adapted from mutation/serialize.go's HashHTML (sha256 hex digest of a
// joined byte string) but hashes structured per-node fields instead of raw
// HTML, since the compiler's unit of change is a ReadableNode, not a
// markup byte.
func ContentHash(nodes []ReadableNode) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(strconv.FormatInt(n.BackendNodeID, 10))
		b.WriteByte('\x1f')
		b.WriteString(string(n.Kind))
		b.WriteByte('\x1f')
		b.WriteString(n.Label)
		b.WriteByte('\x1f')
		writeBoolField(&b, n.State.Visible)
		writeBoolField(&b, n.State.Enabled)
		writeBoolField(&b, n.State.Checked)
		writeBoolField(&b, n.State.Expanded)
		writeBoolField(&b, n.State.Selected)
		writeBoolField(&b, n.State.Focused)
		b.WriteString(n.Attributes.Value)
		b.WriteByte('\x1e')
	}
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}

func writeBoolField(b *strings.Builder, v *bool) {
	switch {
	case v == nil:
		b.WriteByte('-')
	case *v:
		b.WriteByte('1')
	default:
		b.WriteByte('0')
	}
	b.WriteByte('\x1f')
}

// Package staleretry classifies whether an action's failure looks like a
// stale backend node id, the one case action.Executor retries automatically
// after re-resolving the target element.
package staleretry

import "strings"

// staleMessageSubstrings are the known stale-backend-node-id failure shapes,
// checked exhaustively in one place so the retry predicate never drifts out
// of sync across callers.
var staleMessageSubstrings = []string{
	"no node found for given backend id",
	"node is detached from document",
	"node has been deleted",
	"scrollintoviewifneeded",
}

// Classify reports whether err's message matches one of the known
// stale-backend-node-id failure shapes. Matching is case-insensitive
// since CDP error text casing varies by Chrome version.
func Classify(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range staleMessageSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

package compiler

import (
	"strings"

	"github.com/hazyhaar/domstate/extractor"
	"github.com/hazyhaar/domstate/snapshot"
)

// regionResolver walks DOM ancestors to find the nearest landmark, caching
// per-backend-id results since siblings under the same landmark share an
// answer.
type regionResolver struct {
	dom       extractor.RawDom
	axRoleOf  map[int64]string // backend_node_id -> AX role, structural or not
	memo      map[int64]snapshot.Region
}

func newRegionResolver(dom extractor.RawDom, axRoleOf map[int64]string) *regionResolver {
	return &regionResolver{dom: dom, axRoleOf: axRoleOf, memo: make(map[int64]snapshot.Region)}
}

// resolve returns the region for backendID by walking its DOM ancestors.
// AX role wins over DOM tag name at the same ancestor; the innermost
// matching ancestor wins over outer ones.
func (r *regionResolver) resolve(backendID int64) snapshot.Region {
	if region, ok := r.memo[backendID]; ok {
		return region
	}

	node, ok := r.dom.Nodes[backendID]
	if !ok {
		return snapshot.RegionUnknown
	}

	ancestorID := node.ParentBackendID
	for ancestorID != 0 {
		if role, ok := r.axRoleOf[ancestorID]; ok {
			if region, ok := structuralRoles[role]; ok {
				r.memo[backendID] = region
				return region
			}
		}
		if ancestor, ok := r.dom.Nodes[ancestorID]; ok {
			tag := strings.ToLower(ancestor.NodeName)
			if region, ok := landmarkTags[tag]; ok {
				r.memo[backendID] = region
				return region
			}
			ancestorID = ancestor.ParentBackendID
			continue
		}
		break
	}

	r.memo[backendID] = snapshot.RegionUnknown
	return snapshot.RegionUnknown
}

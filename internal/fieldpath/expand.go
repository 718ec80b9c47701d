package fieldpath

import "strings"

// expansion is one concrete path produced by resolving the wildcard
// segments of a pattern against a live item.
type expansion struct {
	segs     []string
	assetKey string
}

// expandSegs scans segs left to right against node. Hitting "*" with a
// non-map node yields zero expansions at that branch, not an error.
// Literal segments are always appended to the concrete path; live
// traversal into node continues only while the literal key is present,
// so a wildcard further down a path that doesn't exist yet also yields
// zero expansions rather than panicking.
func expandSegs(segs []string, node any, concrete []string, assetKey string, out *[]expansion) {
	if len(segs) == 0 {
		cp := append([]string(nil), concrete...)
		*out = append(*out, expansion{segs: cp, assetKey: assetKey})
		return
	}

	seg := segs[0]
	rest := segs[1:]

	if seg == "*" {
		m, ok := node.(map[string]any)
		if !ok {
			return
		}
		for k, v := range m {
			next := append(append([]string(nil), concrete...), k)
			expandSegs(rest, v, next, k, out)
		}
		return
	}

	var nextNode any
	if m, ok := node.(map[string]any); ok {
		nextNode = m[seg]
	}
	next := append(append([]string(nil), concrete...), seg)
	expandSegs(rest, nextNode, next, assetKey, out)
}

// ExpandUpdates resolves every wildcard segment in patterns against the
// live item, producing a map from concrete path string to a deep-copied,
// template-substituted value. Each expansion gets its own independent
// copy of the source value so mutating one expanded subtree never
// affects a sibling.
func ExpandUpdates(patterns map[string]any, it map[string]any, vars map[string]string) (map[string]any, error) {
	out := make(map[string]any)
	for pattern, raw := range patterns {
		segs, err := ParsePath(pattern)
		if err != nil {
			return nil, err
		}
		var results []expansion
		expandSegs(segs, it, nil, "", &results)
		for _, r := range results {
			out[JoinPath(r.segs)] = substituteValue(raw, vars, r.assetKey)
		}
	}
	return out, nil
}

// ExpandRemovals resolves every wildcard segment in patterns against the
// live item, producing the list of concrete paths to delete.
func ExpandRemovals(patterns []string, it map[string]any) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		segs, err := ParsePath(pattern)
		if err != nil {
			return nil, err
		}
		var results []expansion
		expandSegs(segs, it, nil, "", &results)
		for _, r := range results {
			out = append(out, JoinPath(r.segs))
		}
	}
	return out, nil
}

// FilterUpdateExisting drops any produced path that does not already
// exist in the item, per the update_existing strategy. Existence is
// checked with the Missing sentinel so that a field whose value is
// explicitly null still counts as present.
func FilterUpdateExisting(expanded map[string]any, it map[string]any) map[string]any {
	out := make(map[string]any, len(expanded))
	for path, v := range expanded {
		segs, err := ParsePath(path)
		if err != nil {
			continue
		}
		if GetNested(it, segs, Missing) != Missing {
			out[path] = v
		}
	}
	return out
}

// substituteValue recursively rebuilds v, replacing template tokens in
// every string it contains. Rebuilding maps and slices from scratch is
// what gives each expansion its own independent deep copy.
func substituteValue(v any, vars map[string]string, assetKey string) any {
	switch t := v.(type) {
	case string:
		return substituteString(t, vars, assetKey)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = substituteValue(vv, vars, assetKey)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = substituteValue(vv, vars, assetKey)
		}
		return out
	default:
		return t
	}
}

func substituteString(s string, vars map[string]string, assetKey string) string {
	if !strings.ContainsRune(s, '{') {
		return s
	}
	replacer := strings.NewReplacer(
		"{item_id}", vars["item_id"],
		"{collection_id}", vars["collection_id"],
		"{asset_key}", assetKey,
	)
	return replacer.Replace(s)
}

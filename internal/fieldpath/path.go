// Package fieldpath implements the shared nested-mutation algorithm used
// by every Modifier: dotted-path parsing with quoted segments and
// wildcards, nested get/set/delete, wildcard expansion against a live
// item, and template-variable substitution with deep-copy-on-expand.
package fieldpath

import (
	"strings"

	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// ParsePath splits a path expression into segments. A segment is either
// a bare identifier matching [^."]+, a wildcard "*", or a double-quoted
// literal whose interior is taken verbatim (so a literal segment value
// may itself contain a dot).
func ParsePath(s string) ([]string, error) {
	if s == "" {
		return nil, pkgerrors.NewConfigurationError("path", "empty path", nil)
	}

	var segs []string
	i := 0
	for i < len(s) {
		if s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return nil, pkgerrors.NewConfigurationError("path", "unterminated quote in "+s, nil)
			}
			seg := s[i+1 : i+1+end]
			segs = append(segs, seg)
			i = i + 1 + end + 1
			if i < len(s) {
				if s[i] != '.' {
					return nil, pkgerrors.NewConfigurationError("path", "expected '.' after quoted segment in "+s, nil)
				}
				i++
				if i == len(s) {
					return nil, pkgerrors.NewConfigurationError("path", "empty segment in "+s, nil)
				}
			}
			continue
		}

		next := strings.IndexByte(s[i:], '.')
		var seg string
		if next < 0 {
			seg = s[i:]
			i = len(s)
		} else {
			seg = s[i : i+next]
			i = i + next + 1
			if i == len(s) {
				return nil, pkgerrors.NewConfigurationError("path", "empty segment in "+s, nil)
			}
		}
		if seg == "" {
			return nil, pkgerrors.NewConfigurationError("path", "empty segment in "+s, nil)
		}
		segs = append(segs, seg)
	}

	return segs, nil
}

// missingSentinel is a distinct in-process type; a pointer to its single
// instance is compared by identity so callers can distinguish "field is
// absent" from "field is present with value nil".
type missingSentinel struct{}

// Missing is the default sentinel passed to GetNested to detect absence.
var Missing = &missingSentinel{}

// GetNested traverses m by segs, returning def if any intermediate key
// is absent, not a map, or the final key is missing.
func GetNested(m map[string]any, segs []string, def any) any {
	var cur any = m
	for _, seg := range segs {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		v, ok := asMap[seg]
		if !ok {
			return def
		}
		cur = v
	}
	return cur
}

// ErrBlockedByNonMap is returned by SetNested when the path cannot
// descend past Segment: a non-map value occupies that position, or the
// key is absent and createMissing is false.
type ErrBlockedByNonMap struct {
	Segment string
}

func (e *ErrBlockedByNonMap) Error() string {
	return "path segment \"" + e.Segment + "\" is absent or not a map"
}

// SetNested walks segs, creating intermediate maps where missing iff
// createMissing is true, and overwrites the value at the leaf. An
// intermediate key that is absent (with createMissing false) or holds a
// non-map value yields *ErrBlockedByNonMap.
func SetNested(m map[string]any, segs []string, v any, createMissing bool) error {
	if len(segs) == 0 {
		return nil
	}
	cur := m
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			if !createMissing {
				return &ErrBlockedByNonMap{Segment: seg}
			}
			nm := make(map[string]any)
			cur[seg] = nm
			cur = nm
			continue
		}
		asMap, ok := next.(map[string]any)
		if !ok {
			return &ErrBlockedByNonMap{Segment: seg}
		}
		cur = asMap
	}
	cur[segs[len(segs)-1]] = v
	return nil
}

// DeleteNested removes the value at segs. It is a no-op if the path is
// absent at any point.
func DeleteNested(m map[string]any, segs []string) {
	if len(segs) == 0 {
		return
	}
	cur := m
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			return
		}
		asMap, ok := next.(map[string]any)
		if !ok {
			return
		}
		cur = asMap
	}
	delete(cur, segs[len(segs)-1])
}

// JoinPath reprints segments as a path expression, quoting any segment
// that contains a dot or a quote.
func JoinPath(segs []string) string {
	parts := make([]string, len(segs))
	for i, seg := range segs {
		if strings.ContainsAny(seg, ".\"") {
			parts[i] = "\"" + seg + "\""
		} else {
			parts[i] = seg
		}
	}
	return strings.Join(parts, ".")
}

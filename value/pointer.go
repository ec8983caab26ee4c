package value

import "strings"

// SplitPath splits a variable path into lookup segments. Dot segments and
// bracket segments are equivalent: `a.b[0]["x.y"]` yields a, b, 0 and x.y.
// Quotes around a bracket segment are stripped; segments are otherwise kept
// verbatim, so a quoted key may contain dots or brackets.
//
// Dynamic bracket segments (unquoted identifiers) must be resolved to their
// literal value before the path reaches this function.
func SplitPath(path string) []string {
	var segments []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '.':
			flush()
		case '[':
			flush()
			end := i + 1
			if end < len(path) && (path[end] == '\'' || path[end] == '"') {
				quote := path[end]
				end++
				start := end
				for end < len(path) && path[end] != quote {
					end++
				}
				segments = append(segments, path[start:end])
				// Skip the closing quote and bracket.
				for end < len(path) && path[end] != ']' {
					end++
				}
			} else {
				start := end
				for end < len(path) && path[end] != ']' {
					end++
				}
				if end > start {
					segments = append(segments, path[start:end])
				}
			}
			i = end
		default:
			current.WriteByte(path[i])
		}
	}
	flush()
	return segments
}

// ResolvePath resolves a variable path against the value. The empty path
// yields the value itself. A missing key, an out-of-range index or a lookup
// into a scalar all report false; path misses are never errors at this
// level.
func (v Value) ResolvePath(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	return v.ResolveSegments(SplitPath(path))
}

// ResolveSegments resolves pre-split path segments against the value.
func (v Value) ResolveSegments(segments []string) (Value, bool) {
	current := v
	for _, seg := range segments {
		switch t := current.data.(type) {
		case *Object:
			next, ok := t.Get(seg)
			if !ok {
				return Undefined(), false
			}
			current = next
		case []Value:
			idx, ok := parseIndex(seg)
			if !ok || idx < 0 || idx >= len(t) {
				return Undefined(), false
			}
			current = t[idx]
		default:
			return Undefined(), false
		}
	}
	return current, true
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<30 {
			return 0, false
		}
	}
	return n, true
}

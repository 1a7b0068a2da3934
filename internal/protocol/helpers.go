package protocol

import "strconv"

// getMap returns m[key] as a map[string]any, or nil if absent or the wrong type.
func getMap(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	asMap, _ := v.(map[string]any)
	return asMap
}

// getString returns m[key] as a string, or "" if absent or the wrong type.
func getString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// idAsString stringifies a JSON-decoded id field, which may arrive as a
// string or a float64 (from a JSON number), so it can be echoed back
// verbatim as a correlation id (spec.md §4.3).
func idAsString(m map[string]any) string {
	v, ok := m["id"]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}

// hasID reports whether m carries an "id" key at all (including a zero id).
func hasID(m map[string]any) bool {
	_, ok := m["id"]
	return ok
}

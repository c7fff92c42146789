// ABOUTME: Total, panic-free accessors over untyped decoded JSON values
// ABOUTME: Treats any as the union null/bool/float64/string/[]any/map[string]any
package rawjson

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Object is a decoded JSON object.
type Object = map[string]any

// AsObject reports v as a JSON object.
func AsObject(v any) (Object, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// AsArray reports v as a JSON array.
func AsArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// AsString reports v as a JSON string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsNumber reports v as a numeric value. json.Unmarshal into any yields
// float64, but values that crossed other boundaries may carry native
// integer types or json.Number.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsInt reports v as an integral value. Strings holding an integer are
// accepted, since upstream ids arrive as either form.
func AsInt(v any) (int64, bool) {
	if f, ok := AsNumber(v); ok {
		return int64(f), true
	}
	if s, ok := AsString(v); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// AsBool reports v as a boolean. Accepts the string and numeric spellings
// the upstream mixes in ("true"/"false", 0/1).
func AsBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	default:
		if f, ok := AsNumber(v); ok {
			return f != 0, true
		}
	}
	return false, false
}

// Stringify renders a scalar value as its textual form: strings pass
// through, numbers drop a trailing ".0", booleans become "true"/"false".
// Objects and arrays yield "".
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		if f, ok := AsNumber(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}

// IsEmpty reports whether v is null or an empty/whitespace string, the
// two "no value" spellings the canonicalizer skips over.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Lookup walks a dotted key path inside obj. It returns the value and
// whether every segment resolved.
func Lookup(obj Object, path string) (any, bool) {
	if obj == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = obj
	for _, seg := range segments {
		node, ok := AsObject(current)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Package properties converts CloudFormation resource properties into the key
// convention used by the CodePipeline API.
package properties

import (
	"unicode"
	"unicode/utf8"
)

// opaqueKeys name the keys whose values are passed through untouched. Action
// configuration is provider specific and case sensitive.
var opaqueKeys = map[string]struct{}{
	"Configuration": {},
	"configuration": {},
}

// Normalize returns a copy of v in which every object key has its first
// character lowercased. Values of a Configuration key are copied verbatim and
// array elements are recursed into. v is never modified.
func Normalize(v any) any {
	return normalize(v, false)
}

// NormalizeMap is Normalize for the common case of a top level object.
func NormalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return normalize(m, false).(map[string]any)
}

func normalize(v any, opaque bool) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, child := range value {
			if opaque {
				out[key] = normalize(child, true)
				continue
			}
			_, keep := opaqueKeys[key]
			out[LowerFirst(key)] = normalize(child, keep)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, child := range value {
			out[i] = normalize(child, opaque)
		}
		return out
	default:
		return value
	}
}

// LowerFirst lowercases the first rune of s.
func LowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

package tools

import (
	"encoding/json"
	"fmt"
)

// MaxOutputDepth is the maximum nesting depth a tool result may have before
// deeper structure is collapsed (spec section 4.4 / section 8's testable
// property: "for any tool output, depth <= 3").
const MaxOutputDepth = 3

// MaxListItems bounds how many elements of a list survive slimming; the
// remainder is replaced by a "<truncated:n>" marker string.
const MaxListItems = 20

// MaxLeafStringLen is the hard cap on any leaf string value (spec section
// 8: "no leaf string exceeds 1800 characters").
const MaxLeafStringLen = 1800

// longFieldLimits gives specific well-known fields a tighter clip than the
// general leaf cap, matching spec section 4.4's "rawText/content/html/body
// clipped to 1.2-1.8 kB".
var longFieldLimits = map[string]int{
	"rawText": 1200,
	"content": 1200,
	"html":    1200,
	"body":    1800,
}

// Slim bounds an arbitrary tool result for return across the tool boundary:
// nesting deeper than MaxOutputDepth is collapsed to a placeholder, lists
// longer than MaxListItems are truncated with a marker, and long strings are
// clipped (tighter limits for known large fields, MaxLeafStringLen
// otherwise).
func Slim(v any) any {
	return slimValue(toGenericJSON(v), 0, "")
}

// toGenericJSON round-trips a typed Go value through JSON so slimValue can
// walk it as plain maps/slices/strings regardless of its original struct
// type. Values already in that shape (or primitives) pass through
// untouched.
func toGenericJSON(v any) any {
	switch v.(type) {
	case map[string]any, []any, string, float64, int, int64, bool, nil:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unserializable:%T>", v)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Sprintf("<unserializable:%T>", v)
	}
	return generic
}

func slimValue(v any, depth int, fieldName string) any {
	switch value := v.(type) {
	case map[string]any:
		if depth >= MaxOutputDepth {
			return fmt.Sprintf("<object:%d keys>", len(value))
		}
		out := make(map[string]any, len(value))
		for k, child := range value {
			out[k] = slimValue(child, depth+1, k)
		}
		return out
	case []any:
		if depth >= MaxOutputDepth {
			return fmt.Sprintf("<list:%d items>", len(value))
		}
		limit := len(value)
		truncated := false
		if limit > MaxListItems {
			limit = MaxListItems
			truncated = true
		}
		out := make([]any, 0, limit+1)
		for i := 0; i < limit; i++ {
			out = append(out, slimValue(value[i], depth+1, fieldName))
		}
		if truncated {
			out = append(out, fmt.Sprintf("<truncated:%d>", len(value)-limit))
		}
		return out
	case string:
		limit := MaxLeafStringLen
		if fieldLimit, ok := longFieldLimits[fieldName]; ok {
			limit = fieldLimit
		}
		if len(value) > limit {
			return value[:limit]
		}
		return value
	default:
		return value
	}
}

package aiclient

import (
	"encoding/json"
	"sort"
)

// normalizeStrictSchema rewrites a JSON Schema document so every object node
// sets "additionalProperties": false and "required" lists all of its
// properties, recursively — the shape strict JSON-schema response mode
// demands. Mirrors the original's _normalize_openai_strict_json_schema.
// Callers pass schemas authored loosely (optional fields, no
// additionalProperties) and get back the strict form without hand-duplicating
// every schema twice.
func normalizeStrictSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return schema
	}
	normalized := normalizeStrictNode(doc)
	out, err := json.Marshal(normalized)
	if err != nil {
		return schema
	}
	return out
}

func normalizeStrictNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			v[key] = normalizeStrictNode(val)
		}
		if typ, _ := v["type"].(string); typ == "object" {
			v["additionalProperties"] = false
			if props, ok := v["properties"].(map[string]any); ok {
				required := make([]string, 0, len(props))
				for name := range props {
					required = append(required, name)
				}
				sort.Strings(required)
				v["required"] = required
			}
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeStrictNode(item)
		}
		return v
	default:
		return v
	}
}

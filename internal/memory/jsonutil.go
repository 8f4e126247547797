package memory

import (
	"encoding/json"
	"fmt"
)

// structToMap round-trips any JSON-taggable struct through JSON into a
// generic map, for storage as a kvstore.Item's Attributes. Mirrors
// internal/opportunity's jsonutil.go.
func structToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memory: marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("memory: unmarshal: %w", err)
	}
	return m, nil
}

// mapToStruct is the inverse of structToMap.
func mapToStruct(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("memory: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("memory: unmarshal: %w", err)
	}
	return nil
}

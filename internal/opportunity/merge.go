package opportunity

import (
	"encoding/json"
	"fmt"
	"strings"
)

const appendKeySuffix = "_append"

// applyShallowPatch merges patch onto the JSON object representation of
// state. Keys ending in "_append" name a target array field (the key with
// the suffix stripped) whose elements are appended rather than replaced;
// every other key overwrites the corresponding field directly. Applying
// P1 then P2 yields the same result as applying a single merge of P1 and P2
// for non-list keys and for "_append" keys touching disjoint indices,
// because both append and overwrite are associative per-key operations.
func applyShallowPatch(current map[string]any, patch map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}

	for k, v := range patch {
		if !strings.HasSuffix(k, appendKeySuffix) {
			merged[k] = v
			continue
		}
		targetKey := strings.TrimSuffix(k, appendKeySuffix)
		additions, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("opportunity: %s must be a list", k)
		}
		existing, _ := merged[targetKey].([]any)
		merged[targetKey] = append(append([]any{}, existing...), additions...)
	}

	return merged, nil
}

// toPatchMap round-trips a State through JSON to get a generic map
// representation suitable for applyShallowPatch.
func toPatchMap(state State) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("opportunity: marshal state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("opportunity: unmarshal state: %w", err)
	}
	return m, nil
}

// fromPatchMap decodes a generic map representation back into a State.
func fromPatchMap(m map[string]any) (State, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return State{}, fmt.Errorf("opportunity: marshal patch result: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("opportunity: unmarshal patch result: %w", err)
	}
	return state, nil
}

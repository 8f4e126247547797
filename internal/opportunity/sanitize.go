package opportunity

import "fmt"

// commitmentsAppendKey is the patch key patch_state treats specially: a
// list of commitments to add-only-append, each requiring provenance.
const commitmentsAppendKey = "commitments_append"

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// SanitizeOpportunityPatch enforces the one mechanical, tool-level policy on
// OpportunityState patches: appended commitments must carry non-empty text
// and a provenance source. Commitments failing that check are dropped
// rather than the whole patch being rejected, and a PolicyCheck record is
// returned describing what happened so it can be attached to the event log
// (spec section 3/4.3, section 7's PolicyCheck kind).
func SanitizeOpportunityPatch(patch map[string]any, actor map[string]any) (map[string]any, []PolicyCheck) {
	sanitized := make(map[string]any, len(patch))
	for k, v := range patch {
		sanitized[k] = v
	}

	raw, hasCommitments := sanitized[commitmentsAppendKey]
	if !hasCommitments {
		return sanitized, nil
	}

	var checks []PolicyCheck

	items, ok := raw.([]any)
	if !ok {
		delete(sanitized, commitmentsAppendKey)
		checks = append(checks, PolicyCheck{
			Policy: "commitment_provenance_required",
			Status: PolicyCheckFail,
			Reason: "commitments_append must be a list",
			Actor:  actor,
		})
		return sanitized, checks
	}

	kept := make([]any, 0, len(items))
	dropped := 0
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		text := firstNonEmptyString(fields, "text", "fact", "commitment")
		provenance, hasProvenance := fields["provenance"].(map[string]any)
		if text == "" || !hasProvenance {
			dropped++
			continue
		}
		source := firstNonEmptyString(provenance, "source", "kind")
		if source == "" {
			dropped++
			continue
		}
		kept = append(kept, item)
	}

	if dropped > 0 {
		checks = append(checks, PolicyCheck{
			Policy: "commitment_provenance_required",
			Status: PolicyCheckFail,
			Reason: fmt.Sprintf("dropped %d commitment(s) missing text+provenance.source", dropped),
			Actor:  actor,
		})
	}

	if len(kept) > 0 {
		sanitized[commitmentsAppendKey] = kept
		checks = append(checks, PolicyCheck{
			Policy: "commitment_provenance_required",
			Status: PolicyCheckPass,
			Reason: fmt.Sprintf("accepted %d commitment(s) with provenance", len(kept)),
			Actor:  actor,
		})
	} else {
		delete(sanitized, commitmentsAppendKey)
	}

	return sanitized, checks
}

func firstNonEmptyString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if isNonEmptyString(m[k]) {
			return m[k].(string)
		}
	}
	return ""
}

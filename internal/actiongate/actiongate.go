// Package actiongate implements the approval-gated action surface (spec
// section 4's "action proposal" tool category and section 6's
// /ai-agent/propose, /confirm, /cancel endpoints): a pending action is
// recorded with a short TTL and a requesting identity, and can only be
// executed later by a caller outside the tool registry that explicitly
// confirms it and can re-check its own authorization against the
// requester. The registry-facing propose_action tool never executes
// anything itself — it can only create a PendingAction row.
package actiongate

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

// Status is the lifecycle state of a PendingAction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// PendingAction is a proposed, not-yet-executed tool call awaiting human
// confirmation (ai_agent.py's propose/confirm action row).
type PendingAction struct {
	ID                 string         `json:"actionId"`
	Kind               string         `json:"kind"`
	Args               map[string]any `json:"args"`
	Summary            string         `json:"summary,omitempty"`
	RequestedByUserSub string         `json:"requestedByUserSub,omitempty"`
	Status             Status         `json:"status"`
	Result             map[string]any `json:"result,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	ExpiresAt          time.Time      `json:"expiresAt"`
}

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// defaultTTL/minTTL/maxTTL mirror ai_agent.py's propose handler: a caller
// may request any TTL but it is clamped to [60s, 3600s], defaulting to 900s.
const (
	defaultTTL = 15 * time.Minute
	minTTL     = 60 * time.Second
	maxTTL     = time.Hour
)

// ClampTTL bounds a caller-requested TTL the way propose() does.
func ClampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return defaultTTL
	}
	if requested < minTTL {
		return minTTL
	}
	if requested > maxTTL {
		return maxTTL
	}
	return requested
}

func actionPK(id string) string { return fmt.Sprintf("PENDING_ACTION#%s", id) }

const skProfile = "PROFILE"

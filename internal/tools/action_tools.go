package tools

import (
	"context"
	"encoding/json"

	"github.com/polaris-ecosystems/rfp-agent/internal/actiongate"
)

const (
	// IdentProposeAction is the one action-proposal tool (spec section
	// 4's "action-proposal (risk-gated)" category).
	IdentProposeAction Ident = "propose_action"
)

const proposeActionSchema = `{
	"type": "object",
	"properties": {
		"kind": {"type": "string", "minLength": 1, "maxLength": 200},
		"args": {"type": "object"},
		"summary": {"type": "string", "maxLength": 500},
		"ttlSeconds": {"type": "integer", "minimum": 1, "maximum": 3600}
	},
	"required": ["kind"],
	"additionalProperties": false
}`

// RegisterActionTools wires propose_action onto repo. This is the only tool
// in the registry that touches the approval-gated action path: it records a
// PendingAction and returns its id, and never executes kind itself. A
// caller outside the tool registry (the /confirm flow) is responsible for
// re-authorizing the requester and actually invoking kind with args.
func RegisterActionTools(registry *Registry, repo *actiongate.Repository) error {
	propose, err := NewTool(IdentProposeAction, "Propose a gated action for later human confirmation. Never executes anything.", CategoryAction, AccessOperator, []byte(proposeActionSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Kind       string         `json:"kind"`
			Args       map[string]any `json:"args"`
			Summary    string         `json:"summary"`
			TTLSeconds int            `json:"ttlSeconds"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.Propose(ctx, actiongate.ProposeInput{
			Kind:    in.Kind,
			Args:    in.Args,
			Summary: in.Summary,
			TTL:     secondsToDuration(in.TTLSeconds),
		})
	})
	if err != nil {
		return err
	}

	registry.Register(propose)
	return nil
}

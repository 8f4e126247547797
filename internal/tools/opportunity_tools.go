package tools

import (
	"context"
	"encoding/json"

	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
)

const (
	IdentOpportunityLoad  Ident = "opportunity_load"
	IdentOpportunityPatch Ident = "opportunity_patch"
	IdentJournalAppend    Ident = "journal_append"
	IdentEventAppend      Ident = "event_append"
)

const opportunityLoadSchema = `{
	"type": "object",
	"properties": {"rfpId": {"type": "string", "minLength": 1, "maxLength": 128}},
	"required": ["rfpId"],
	"additionalProperties": false
}`

const opportunityPatchSchema = `{
	"type": "object",
	"properties": {
		"rfpId": {"type": "string", "minLength": 1, "maxLength": 128},
		"patch": {"type": "object"}
	},
	"required": ["rfpId", "patch"],
	"additionalProperties": false
}`

const journalAppendSchema = `{
	"type": "object",
	"properties": {
		"rfpId": {"type": "string", "minLength": 1, "maxLength": 128},
		"whatChanged": {"type": "string", "maxLength": 2000},
		"why": {"type": "string", "maxLength": 2000},
		"userStated": {"type": "string", "maxLength": 2000},
		"agentIntent": {"type": "string", "maxLength": 2000}
	},
	"required": ["rfpId", "whatChanged"],
	"additionalProperties": false
}`

const eventAppendSchema = `{
	"type": "object",
	"properties": {
		"rfpId": {"type": "string", "minLength": 1, "maxLength": 128},
		"type": {"type": "string", "maxLength": 200},
		"tool": {"type": "string", "maxLength": 200}
	},
	"required": ["rfpId", "type"],
	"additionalProperties": false
}`

// RegisterOpportunityTools wires the Opportunity category (spec section
// 4.4) onto repo. opportunity_load is read-only; the rest mutate durable
// state and are operator-only.
func RegisterOpportunityTools(registry *Registry, repo *opportunity.Repository) error {
	load, err := NewTool(IdentOpportunityLoad, "Load the canonical opportunity state for an RFP.", CategoryOpportunity, AccessRead, []byte(opportunityLoadSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RFPID string `json:"rfpId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.GetState(ctx, in.RFPID)
	})
	if err != nil {
		return err
	}

	patch, err := NewTool(IdentOpportunityPatch, "Apply a shallow patch to an opportunity's state, dropping unprovenanced commitments.", CategoryOpportunity, AccessOperator, []byte(opportunityPatchSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RFPID string         `json:"rfpId"`
			Patch map[string]any `json:"patch"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.PatchState(ctx, in.RFPID, in.Patch, nil)
	})
	if err != nil {
		return err
	}

	journal, err := NewTool(IdentJournalAppend, "Append a reasoning journal entry for an RFP.", CategoryOpportunity, AccessOperator, []byte(journalAppendSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RFPID       string `json:"rfpId"`
			WhatChanged string `json:"whatChanged"`
			Why         string `json:"why"`
			UserStated  string `json:"userStated"`
			AgentIntent string `json:"agentIntent"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.AppendEntry(ctx, in.RFPID, opportunity.JournalEntry{
			WhatChanged: in.WhatChanged,
			Why:         in.Why,
			UserStated:  in.UserStated,
			AgentIntent: in.AgentIntent,
		})
	})
	if err != nil {
		return err
	}

	event, err := NewTool(IdentEventAppend, "Append a structured event to an RFP's append-only event log.", CategoryOpportunity, AccessOperator, []byte(eventAppendSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RFPID string `json:"rfpId"`
			Type  string `json:"type"`
			Tool  string `json:"tool"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.AppendEvent(ctx, in.RFPID, opportunity.Event{Type: in.Type, Tool: in.Tool})
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{load, patch, journal, event} {
		registry.Register(tool)
	}
	return nil
}

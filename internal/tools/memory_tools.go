package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

const (
	IdentMemoryCreate            Ident = "memory_create"
	IdentMemoryGetForContext     Ident = "memory_get_for_context"
	IdentMemoryAddRelationship   Ident = "memory_add_relationship"
	IdentMemoryListRelationships Ident = "memory_list_relationships"
	IdentMemoryAddTemporalEvent  Ident = "memory_add_temporal_event"
	IdentMemoryGetUpcomingEvents Ident = "memory_get_upcoming_events"
)

const memoryCreateSchema = `{
	"type": "object",
	"properties": {
		"memoryType": {"type": "string", "enum": ["EPISODIC", "SEMANTIC", "PROCEDURAL", "TEMPORAL_EVENT", "COLLABORATION_CONTEXT", "EXTERNAL_CONTEXT"]},
		"scopeId": {"type": "string", "minLength": 1, "maxLength": 256},
		"content": {"type": "string", "minLength": 1, "maxLength": 8000},
		"summary": {"type": "string", "maxLength": 1000},
		"tags": {"type": "array", "items": {"type": "string", "maxLength": 64}},
		"keywords": {"type": "array", "items": {"type": "string", "maxLength": 64}}
	},
	"required": ["memoryType", "scopeId", "content"],
	"additionalProperties": false
}`

const memoryGetForContextSchema = `{
	"type": "object",
	"properties": {
		"scopeIds": {"type": "array", "items": {"type": "string", "maxLength": 256}, "minItems": 1},
		"memoryTypes": {"type": "array", "items": {"type": "string"}},
		"query": {"type": "string", "maxLength": 2000},
		"limit": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"required": ["scopeIds"],
	"additionalProperties": false
}`

const memoryAddRelationshipSchema = `{
	"type": "object",
	"properties": {
		"fromId": {"type": "string", "minLength": 1},
		"toId": {"type": "string", "minLength": 1},
		"relationshipType": {"type": "string", "enum": ["part_of", "temporal_sequence", "caused_by", "supersedes", "references", "contradicts"]},
		"bidirectional": {"type": "boolean"}
	},
	"required": ["fromId", "toId", "relationshipType"],
	"additionalProperties": false
}`

const memoryListRelationshipsSchema = `{
	"type": "object",
	"properties": {"fromId": {"type": "string", "minLength": 1}},
	"required": ["fromId"],
	"additionalProperties": false
}`

const memoryAddTemporalEventSchema = `{
	"type": "object",
	"properties": {
		"scopeId": {"type": "string", "minLength": 1, "maxLength": 256},
		"content": {"type": "string", "minLength": 1, "maxLength": 8000},
		"eventAt": {"type": "string", "minLength": 1, "maxLength": 64},
		"eventType": {"type": "string", "maxLength": 100}
	},
	"required": ["scopeId", "content", "eventAt"],
	"additionalProperties": false
}`

const memoryGetUpcomingEventsSchema = `{
	"type": "object",
	"properties": {
		"scopeId": {"type": "string", "minLength": 1, "maxLength": 256},
		"daysAhead": {"type": "integer", "minimum": 1, "maximum": 365},
		"limit": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"required": ["scopeId"],
	"additionalProperties": false
}`

// RegisterMemoryTools wires the Memory category (spec section 4.10) onto
// repo. Reads (context retrieval, relationship listing, upcoming events) are
// safe; writes (creating memories, relationships, and temporal events) mutate
// durable state and are operator-only.
func RegisterMemoryTools(registry *Registry, repo *memory.Repository) error {
	create, err := NewTool(IdentMemoryCreate, "Create a new memory row, auto-extracting keywords and tags when not supplied.", CategoryMemory, AccessOperator, []byte(memoryCreateSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			MemoryType memory.Type `json:"memoryType"`
			ScopeID    string      `json:"scopeId"`
			Content    string      `json:"content"`
			Summary    string      `json:"summary"`
			Tags       []string    `json:"tags"`
			Keywords   []string    `json:"keywords"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.CreateMemory(ctx, memory.CreateInput{
			Type:     in.MemoryType,
			ScopeID:  in.ScopeID,
			Content:  in.Content,
			Summary:  in.Summary,
			Tags:     in.Tags,
			Keywords: in.Keywords,
		})
	})
	if err != nil {
		return err
	}

	getForContext, err := NewTool(IdentMemoryGetForContext, "Retrieve memories relevant to a set of scopes, scored by keyword overlap and recency.", CategoryMemory, AccessRead, []byte(memoryGetForContextSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ScopeIDs    []string     `json:"scopeIds"`
			MemoryTypes []memory.Type `json:"memoryTypes"`
			Query       string       `json:"query"`
			Limit       int          `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.GetMemoriesForContext(ctx, memory.QueryParams{
			ScopeIDs: in.ScopeIDs,
			Types:    in.MemoryTypes,
			Query:    in.Query,
			Limit:    in.Limit,
		})
	})
	if err != nil {
		return err
	}

	addRelationship, err := NewTool(IdentMemoryAddRelationship, "Add a directed relationship edge between two existing memories.", CategoryMemory, AccessOperator, []byte(memoryAddRelationshipSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			FromID           string              `json:"fromId"`
			ToID             string              `json:"toId"`
			RelationshipType memory.RelationType `json:"relationshipType"`
			Bidirectional    bool                `json:"bidirectional"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := repo.AddRelationship(ctx, memory.Relationship{
			FromID:        in.FromID,
			ToID:          in.ToID,
			Type:          in.RelationshipType,
			Bidirectional: in.Bidirectional,
		}); err != nil {
			return nil, err
		}
		return map[string]any{"fromId": in.FromID, "toId": in.ToID}, nil
	})
	if err != nil {
		return err
	}

	listRelationships, err := NewTool(IdentMemoryListRelationships, "List every relationship edge recorded directly from a memory.", CategoryMemory, AccessRead, []byte(memoryListRelationshipsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			FromID string `json:"fromId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.ListRelationships(ctx, in.FromID)
	})
	if err != nil {
		return err
	}

	addTemporalEvent, err := NewTool(IdentMemoryAddTemporalEvent, "Record a deadline, meeting, or milestone memory tagged upcoming or past.", CategoryMemory, AccessOperator, []byte(memoryAddTemporalEventSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ScopeID   string    `json:"scopeId"`
			Content   string    `json:"content"`
			EventAt   time.Time `json:"eventAt"`
			EventType string    `json:"eventType"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
			ScopeID:   in.ScopeID,
			Content:   in.Content,
			EventAt:   in.EventAt,
			EventType: in.EventType,
		})
	})
	if err != nil {
		return err
	}

	getUpcomingEvents, err := NewTool(IdentMemoryGetUpcomingEvents, "List a scope's upcoming temporal-event memories within a day window, soonest first.", CategoryMemory, AccessRead, []byte(memoryGetUpcomingEventsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ScopeID   string `json:"scopeId"`
			DaysAhead int    `json:"daysAhead"`
			Limit     int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		daysAhead := in.DaysAhead
		if daysAhead <= 0 {
			daysAhead = 30
		}
		return repo.GetUpcomingEvents(ctx, in.ScopeID, daysAhead, in.Limit)
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{create, getForContext, addRelationship, listRelationships, addTemporalEvent, getUpcomingEvents} {
		registry.Register(tool)
	}
	return nil
}

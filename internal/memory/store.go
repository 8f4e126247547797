package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

func memPK(scopeID string) string { return fmt.Sprintf("MEM#%s", scopeID) }

// sortKeyTimeLayout is a fixed-width timestamp layout, so sort keys built
// from it order lexically by time (RFC3339Nano drops trailing zeros).
const sortKeyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func memSK(memType Type, createdAt time.Time, id string) string {
	return fmt.Sprintf("%s#%s#%s", memType, createdAt.UTC().Format(sortKeyTimeLayout), id)
}

func memIDGSI1PK(id string) string { return fmt.Sprintf("MEMID#%s", id) }

func relPK(fromID string) string { return fmt.Sprintf("MEMREL#%s", fromID) }

func relSK(relType RelationType, toID string) string { return fmt.Sprintf("%s#%s", relType, toID) }

const skProfile = "PROFILE"

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// KeywordIndex is the pluggable secondary index `get_memories_for_context`
// queries for cross-scope keyword-scored search (spec section 4.10). The
// canonical Memory row always lives in the key-value table; an index is
// optional — Repository falls back to scanning the owning scope's rows
// directly when none is configured.
type KeywordIndex interface {
	// Index upserts m's searchable fields (keywords, tags, scope, type,
	// createdAt) into the index.
	Index(ctx context.Context, m Memory) error
	// Delete removes id from the index. Called immediately once a memory
	// is scheduled for compression-driven deletion (spec section 4.10:
	// "removed from the search index immediately").
	Delete(ctx context.Context, id string) error
	// Search returns memory IDs from the given scopes (optionally
	// filtered by memType, a zero value meaning "any type") ranked by
	// keyword overlap with query, most relevant first, capped at limit.
	Search(ctx context.Context, scopeIDs []string, memType Type, query string, limit int) ([]string, error)
}

// Repository is the only component allowed to write Memory and Relationship
// rows (spec section 3).
type Repository struct {
	store kvstore.Store
	index KeywordIndex
}

// NewRepository constructs a Repository over store. index may be nil, in
// which case GetMemoriesForContext falls back to a direct per-scope scan.
func NewRepository(store kvstore.Store, index KeywordIndex) *Repository {
	return &Repository{store: store, index: index}
}

// CreateInput describes a new memory row (spec section 4.10's
// `create_memory`).
type CreateInput struct {
	Type              Type
	ScopeID           string
	Content           string
	Summary           string
	Tags              []string
	Keywords          []string
	Metadata          map[string]any
	Provenance        map[string]any
	Compressed        bool
	OriginalMemoryIDs []string
	ExpiresAt         *time.Time
}

// CreateMemory writes a row and, when an index is configured, indexes its
// extracted keywords. Keywords/tags are auto-extracted from Content when the
// caller doesn't supply them.
func (r *Repository) CreateMemory(ctx context.Context, in CreateInput) (Memory, error) {
	if in.ScopeID == "" || in.Content == "" {
		return Memory{}, fmt.Errorf("memory: scopeId and content are required")
	}

	keywords := in.Keywords
	if len(keywords) == 0 {
		keywords = ExtractKeywords(in.Content)
	}
	tags := in.Tags
	if len(tags) == 0 {
		tags = ExtractTags(in.Content)
	}

	now := time.Now().UTC()
	m := Memory{
		ID:                newULID(),
		Type:              in.Type,
		ScopeID:           in.ScopeID,
		Content:           in.Content,
		Summary:           in.Summary,
		Tags:              tags,
		Keywords:          keywords,
		Metadata:          in.Metadata,
		Provenance:        in.Provenance,
		Compressed:        in.Compressed,
		OriginalMemoryIDs: in.OriginalMemoryIDs,
		CreatedAt:         now,
		LastAccessedAt:    now,
		ExpiresAt:         in.ExpiresAt,
	}

	if err := r.put(ctx, m); err != nil {
		return Memory{}, err
	}
	if r.index != nil {
		if err := r.index.Index(ctx, m); err != nil {
			return Memory{}, fmt.Errorf("memory: index %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func (r *Repository) put(ctx context.Context, m Memory) error {
	attrs, err := structToMap(m)
	if err != nil {
		return err
	}
	item := kvstore.Item{
		PK:         memPK(m.ScopeID),
		SK:         memSK(m.Type, m.CreatedAt, m.ID),
		GSI1PK:     memIDGSI1PK(m.ID),
		GSI1SK:     skProfile,
		Attributes: attrs,
	}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return fmt.Errorf("memory: put %s: %w", m.ID, err)
	}
	return nil
}

// GetByID fetches a single memory by its global id via the GSI1 projection,
// regardless of which scope owns it. Used by AddRelationship to verify
// endpoints exist.
func (r *Repository) GetByID(ctx context.Context, id string) (Memory, error) {
	out, err := r.store.Query(ctx, kvstore.QueryInput{IndexGSI1: true, PKValue: memIDGSI1PK(id), Limit: 1})
	if err != nil {
		return Memory{}, fmt.Errorf("memory: get %s: %w", id, err)
	}
	if len(out.Items) == 0 {
		return Memory{}, kvstore.ErrNotFound
	}
	var m Memory
	if err := mapToStruct(out.Items[0].Attributes, &m); err != nil {
		return Memory{}, err
	}
	return m, nil
}

// ListByScope returns every memory under scopeID, optionally restricted to
// memType (zero value means any type), oldest first.
func (r *Repository) ListByScope(ctx context.Context, scopeID string, memType Type, limit int) ([]Memory, error) {
	prefix := ""
	if memType != "" {
		prefix = string(memType) + "#"
	}
	out, err := r.store.Query(ctx, kvstore.QueryInput{PKValue: memPK(scopeID), SKPrefix: prefix, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("memory: list scope %s: %w", scopeID, err)
	}
	memories := make([]Memory, 0, len(out.Items))
	for _, item := range out.Items {
		var m Memory
		if err := mapToStruct(item.Attributes, &m); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, nil
}

// touchAccess bumps accessCount/lastAccessedAt for a retrieved memory. Best
// effort: a failure doesn't block the read it's attached to.
func (r *Repository) touchAccess(ctx context.Context, m Memory) {
	key := kvstore.Key{PK: memPK(m.ScopeID), SK: memSK(m.Type, m.CreatedAt, m.ID)}
	_ = r.store.Update(ctx, key, map[string]any{
		"accessCount":    m.AccessCount + 1,
		"lastAccessedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil, kvstore.UpdateOptions{})
}

// QueryParams scopes and shapes a GetMemoriesForContext call.
type QueryParams struct {
	ScopeIDs []string
	Types    []Type
	Query    string
	Limit    int
}

const recencyHalfLife = 72 * time.Hour

// GetMemoriesForContext lists memories under the given scopes, scored by
// keyword overlap with Query (if provided) plus a recency weight, returning
// the top Limit results (spec section 4.10's `get_memories_for_context`).
// Without a Query, results are most-recent-first. When an index is
// configured and a Query is given, candidate ids come from the index;
// otherwise every row under each scope is scanned directly.
func (r *Repository) GetMemoriesForContext(ctx context.Context, params QueryParams) ([]Memory, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	var candidates []Memory
	if r.index != nil && params.Query != "" {
		memType := Type("")
		if len(params.Types) == 1 {
			memType = params.Types[0]
		}
		ids, err := r.index.Search(ctx, params.ScopeIDs, memType, params.Query, limit*3)
		if err != nil {
			return nil, fmt.Errorf("memory: index search: %w", err)
		}
		for _, id := range ids {
			m, err := r.GetByID(ctx, id)
			if err != nil {
				continue
			}
			candidates = append(candidates, m)
		}
	} else {
		for _, scopeID := range params.ScopeIDs {
			if len(params.Types) == 0 {
				got, err := r.ListByScope(ctx, scopeID, "", 0)
				if err != nil {
					return nil, err
				}
				candidates = append(candidates, got...)
				continue
			}
			for _, t := range params.Types {
				got, err := r.ListByScope(ctx, scopeID, t, 0)
				if err != nil {
					return nil, err
				}
				candidates = append(candidates, got...)
			}
		}
	}

	now := time.Now().UTC()
	type scored struct {
		m     Memory
		score float64
	}
	queryTokens := ExtractKeywords(params.Query)
	rows := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		recency := recencyWeight(now.Sub(m.CreatedAt))
		score := recency
		if len(queryTokens) > 0 {
			score = keywordOverlap(queryTokens, m.Keywords) + recency
		}
		rows = append(rows, scored{m: m, score: score})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].m.CreatedAt.After(rows[j].m.CreatedAt)
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	result := make([]Memory, 0, len(rows))
	for _, row := range rows {
		r.touchAccess(ctx, row.m)
		result = append(result, row.m)
	}
	return result, nil
}

// recencyWeight decays exponentially with a ~3-day half-life so recent
// memories outrank stale ones of equal keyword relevance.
func recencyWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	halfLives := float64(age) / float64(recencyHalfLife)
	weight := 1.0
	for halfLives > 0 {
		step := halfLives
		if step > 1 {
			step = 1
		}
		weight *= 1 - 0.5*step
		halfLives -= step
	}
	return weight
}

func keywordOverlap(query, keywords []string) float64 {
	if len(query) == 0 || len(keywords) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[strings.ToLower(k)] = struct{}{}
	}
	hits := 0
	for _, q := range query {
		if _, ok := set[strings.ToLower(q)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// AddRelationship verifies both from and to exist before writing the edge
// (spec section 4.10's `add_relationship`). When bidirectional, a mirror
// edge is written from to back to from.
func (r *Repository) AddRelationship(ctx context.Context, rel Relationship) error {
	if _, err := r.GetByID(ctx, rel.FromID); err != nil {
		return fmt.Errorf("memory: add relationship: from %s: %w", rel.FromID, err)
	}
	if _, err := r.GetByID(ctx, rel.ToID); err != nil {
		return fmt.Errorf("memory: add relationship: to %s: %w", rel.ToID, err)
	}
	rel.CreatedAt = time.Now().UTC()

	if err := r.putRelationship(ctx, rel.FromID, rel.ToID, rel); err != nil {
		return err
	}
	if rel.Bidirectional {
		if err := r.putRelationship(ctx, rel.ToID, rel.FromID, rel); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) putRelationship(ctx context.Context, fromID, toID string, rel Relationship) error {
	rel.FromID, rel.ToID = fromID, toID
	attrs, err := structToMap(rel)
	if err != nil {
		return err
	}
	item := kvstore.Item{PK: relPK(fromID), SK: relSK(rel.Type, toID), Attributes: attrs}
	if err := r.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return fmt.Errorf("memory: put relationship %s->%s: %w", fromID, toID, err)
	}
	return nil
}

// ListRelationships returns every edge recorded directly from fromID.
func (r *Repository) ListRelationships(ctx context.Context, fromID string) ([]Relationship, error) {
	out, err := r.store.Query(ctx, kvstore.QueryInput{PKValue: relPK(fromID)})
	if err != nil {
		return nil, fmt.Errorf("memory: list relationships %s: %w", fromID, err)
	}
	rels := make([]Relationship, 0, len(out.Items))
	for _, item := range out.Items {
		var rel Relationship
		if err := mapToStruct(item.Attributes, &rel); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// AddTemporalEventInput is the input to AddTemporalEventMemory.
type AddTemporalEventInput struct {
	ScopeID    string
	Content    string
	EventAt    time.Time
	EventType  string
	Metadata   map[string]any
	Provenance map[string]any
}

// AddTemporalEventMemory writes a TEMPORAL_EVENT memory tagged "upcoming" or
// "past" relative to now (spec section 4.10's
// `add_temporal_event_memory`).
func (r *Repository) AddTemporalEventMemory(ctx context.Context, in AddTemporalEventInput) (Memory, error) {
	if in.ScopeID == "" || in.Content == "" || in.EventAt.IsZero() {
		return Memory{}, fmt.Errorf("memory: scopeId, content, and eventAt are required")
	}

	keywords := ExtractKeywords(in.Content)
	if in.EventType != "" {
		keywords = append(keywords, in.EventType)
	}
	tags := []string{"temporal", "event"}
	if in.EventType != "" {
		tags = append(tags, in.EventType)
	}
	if in.EventAt.After(time.Now().UTC()) {
		tags = append(tags, "upcoming")
	} else {
		tags = append(tags, "past")
	}

	metadata := map[string]any{"eventAt": in.EventAt.UTC().Format(time.RFC3339Nano), "eventType": in.EventType}
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	return r.CreateMemory(ctx, CreateInput{
		Type:       TypeTemporalEvent,
		ScopeID:    in.ScopeID,
		Content:    in.Content,
		Summary:    clip(in.Content, 500),
		Tags:       tags,
		Keywords:   keywords,
		Metadata:   metadata,
		Provenance: in.Provenance,
	})
}

// GetUpcomingEvents filters scopeID's TEMPORAL_EVENT memories to a
// [now, now+daysAhead] window, sorted by event time ascending (spec section
// 4.10's `get_upcoming_events`).
func (r *Repository) GetUpcomingEvents(ctx context.Context, scopeID string, daysAhead int, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	memories, err := r.ListByScope(ctx, scopeID, TypeTemporalEvent, limit*2)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, daysAhead)

	type withEvent struct {
		m       Memory
		eventAt time.Time
	}
	var upcoming []withEvent
	for _, m := range memories {
		raw, _ := m.Metadata["eventAt"].(string)
		if raw == "" {
			continue
		}
		eventAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		if eventAt.Before(now) || eventAt.After(cutoff) {
			continue
		}
		upcoming = append(upcoming, withEvent{m: m, eventAt: eventAt})
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].eventAt.Before(upcoming[j].eventAt) })
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	out := make([]Memory, 0, len(upcoming))
	for _, e := range upcoming {
		out = append(out, e.m)
	}
	return out, nil
}

// ScheduleDeletion sets expiresAt on an original memory once it has been
// folded into a compressed memory (spec section 4.10: "schedule originals
// for deletion in 7 days"), and removes it from the search index
// immediately.
func (r *Repository) ScheduleDeletion(ctx context.Context, m Memory, expiresAt time.Time) error {
	key := kvstore.Key{PK: memPK(m.ScopeID), SK: memSK(m.Type, m.CreatedAt, m.ID)}
	if err := r.store.Update(ctx, key, map[string]any{
		"expiresAt": expiresAt.UTC().Format(time.RFC3339Nano),
	}, nil, kvstore.UpdateOptions{}); err != nil {
		return fmt.Errorf("memory: schedule deletion %s: %w", m.ID, err)
	}
	if r.index != nil {
		if err := r.index.Delete(ctx, m.ID); err != nil {
			return fmt.Errorf("memory: index delete %s: %w", m.ID, err)
		}
	}
	return nil
}

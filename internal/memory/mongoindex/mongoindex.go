// Package mongoindex backs internal/memory's KeywordIndex port with a
// Mongo collection, grounded on the teacher's features/memory/mongo client
// idiom: a narrow collection wrapper, bson documents, and a single compound
// query per operation. The canonical Memory row always lives in
// internal/kvstore; this collection only ever holds the fields needed to
// rank candidates for get_memories_for_context (spec section 4.10), and is
// the pluggable seam the spec's Open Question (a) anticipates for a future
// vector index.
package mongoindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

const defaultCollection = "memory_keywords"

// Index wraps a Mongo collection to implement memory.KeywordIndex.
type Index struct {
	collection *mongo.Collection
}

// New connects to uri and returns an Index backed by dbName's
// memory_keywords collection (or collectionName if non-empty).
func New(ctx context.Context, uri, dbName, collectionName string) (*Index, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongoindex: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongoindex: ping: %w", err)
	}
	if collectionName == "" {
		collectionName = defaultCollection
	}
	return &Index{collection: client.Database(dbName).Collection(collectionName)}, nil
}

// NewWithCollection wraps an already-constructed collection, for tests and
// callers that manage the client's lifecycle themselves.
func NewWithCollection(collection *mongo.Collection) *Index {
	return &Index{collection: collection}
}

type document struct {
	ID        string    `bson:"_id"`
	ScopeID   string    `bson:"scopeId"`
	Type      string    `bson:"type"`
	Keywords  []string  `bson:"keywords"`
	Tags      []string  `bson:"tags"`
	CreatedAt time.Time `bson:"createdAt"`
}

var _ interface {
	Index(ctx context.Context, m memory.Memory) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, scopeIDs []string, memType memory.Type, query string, limit int) ([]string, error)
} = (*Index)(nil)

// Index upserts m's searchable fields.
func (idx *Index) Index(ctx context.Context, m memory.Memory) error {
	doc := document{
		ID:        m.ID,
		ScopeID:   m.ScopeID,
		Type:      string(m.Type),
		Keywords:  m.Keywords,
		Tags:      m.Tags,
		CreatedAt: m.CreatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := idx.collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongoindex: upsert %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes id from the index.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if _, err := idx.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongoindex: delete %s: %w", id, err)
	}
	return nil
}

// Search narrows to scope/type server-side via a compound filter, then
// ranks the candidate set by keyword overlap client-side (the exact scoring
// internal/memory.Repository otherwise applies to an in-process scan).
func (idx *Index) Search(ctx context.Context, scopeIDs []string, memType memory.Type, query string, limit int) ([]string, error) {
	filter := bson.M{}
	if len(scopeIDs) > 0 {
		filter["scopeId"] = bson.M{"$in": scopeIDs}
	}
	if memType != "" {
		filter["type"] = string(memType)
	}
	queryTokens := memory.ExtractKeywords(query)
	if len(queryTokens) > 0 {
		filter["keywords"] = bson.M{"$in": queryTokens}
	}

	findOpts := options.Find().SetLimit(int64(limit) * 4).SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := idx.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongoindex: find: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongoindex: decode: %w", err)
	}

	type scored struct {
		id    string
		score int
	}
	rows := make([]scored, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, scored{id: d.ID, score: overlapCount(queryTokens, d.Keywords)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out, nil
}

func overlapCount(query, keywords []string) int {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	hits := 0
	for _, q := range query {
		if _, ok := set[q]; ok {
			hits++
		}
	}
	return hits
}

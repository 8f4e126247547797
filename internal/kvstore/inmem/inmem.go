// Package inmem provides an in-memory implementation of kvstore.Store for
// testing and local development. Data is stored in process memory and is
// lost when the process exits. Production deployments use
// internal/kvstore's DynamoDB-backed Store.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

// Store implements kvstore.Store over an in-process map keyed by (pk, sk). It
// is thread-safe and suitable for tests and local development; GSI1 queries
// are served by scanning the same map, which is fine at test scale.
type Store struct {
	mu    sync.RWMutex
	items map[kvstore.Key]kvstore.Item
}

// New returns a new in-memory store with no items.
func New() *Store {
	return &Store{items: make(map[kvstore.Key]kvstore.Item)}
}

func cloneItem(item kvstore.Item) kvstore.Item {
	attrs := make(map[string]any, len(item.Attributes))
	for k, v := range item.Attributes {
		attrs[k] = v
	}
	item.Attributes = attrs
	return item
}

// Get returns the item at key, or kvstore.ErrNotFound.
func (s *Store) Get(_ context.Context, key kvstore.Key) (kvstore.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok {
		return kvstore.Item{}, kvstore.ErrNotFound
	}
	return cloneItem(item), nil
}

// Put writes item, honoring PutOptions.IfNotExists.
func (s *Store) Put(_ context.Context, item kvstore.Item, opts kvstore.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := kvstore.Key{PK: item.PK, SK: item.SK}
	if opts.IfNotExists {
		if _, exists := s.items[key]; exists {
			return kvstore.ErrConditionFailed
		}
	}
	s.items[key] = cloneItem(item)
	return nil
}

// Update applies sets/removes to the item at key, honoring a bare equality
// condition of the form "field = :value" via opts.ExpressionValues. Richer
// DynamoDB condition expressions are not evaluated by this fake; tests that
// need precise condition semantics should assert against the real adapter.
func (s *Store) Update(_ context.Context, key kvstore.Key, sets map[string]any, removes []string, opts kvstore.UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return kvstore.ErrNotFound
	}
	if opts.ConditionExpression != "" && !evalSimpleEquality(item, opts.ConditionExpression, opts.ExpressionValues) {
		return kvstore.ErrConditionFailed
	}
	attrs := make(map[string]any, len(item.Attributes))
	for k, v := range item.Attributes {
		attrs[k] = v
	}
	for k, v := range sets {
		attrs[k] = v
	}
	for _, k := range removes {
		delete(attrs, k)
	}
	item.Attributes = attrs
	s.items[key] = item
	return nil
}

// evalSimpleEquality supports the "<field> = :value" shape used by this
// module's idempotency and status-transition guards.
func evalSimpleEquality(item kvstore.Item, expr string, values map[string]any) bool {
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return true
	}
	field := strings.TrimSpace(parts[0])
	placeholder := strings.TrimSpace(parts[1])
	want, ok := values[placeholder]
	if !ok {
		return true
	}
	got := item.Attributes[field]
	return got == want
}

// Delete removes the item at key, if present.
func (s *Store) Delete(_ context.Context, key kvstore.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Query scans the in-memory map for items matching the partition value and
// optional sort-key prefix, honoring direction and limit.
func (s *Store) Query(_ context.Context, input kvstore.QueryInput) (kvstore.QueryOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []kvstore.Item
	for _, item := range s.items {
		pk, sk := item.PK, item.SK
		if input.IndexGSI1 {
			pk, sk = item.GSI1PK, item.GSI1SK
		}
		if pk != input.PKValue {
			continue
		}
		if input.SKPrefix != "" && !strings.HasPrefix(sk, input.SKPrefix) {
			continue
		}
		matched = append(matched, cloneItem(item))
	}

	sortKey := func(item kvstore.Item) string {
		if input.IndexGSI1 {
			return item.GSI1SK
		}
		return item.SK
	}
	sort.Slice(matched, func(i, j int) bool {
		if input.Direction == kvstore.QueryBackward {
			return sortKey(matched[i]) > sortKey(matched[j])
		}
		return sortKey(matched[i]) < sortKey(matched[j])
	})

	if input.Limit > 0 && len(matched) > input.Limit {
		matched = matched[:input.Limit]
	}
	return kvstore.QueryOutput{Items: matched}, nil
}

// Transact applies every put and update atomically with respect to other
// callers of this store (it holds the store's single lock for the duration),
// rolling back nothing on failure since it validates all conditions before
// mutating anything.
func (s *Store) Transact(_ context.Context, write kvstore.TransactWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range write.Puts {
		key := kvstore.Key{PK: p.Item.PK, SK: p.Item.SK}
		if p.IfNotExists {
			if _, exists := s.items[key]; exists {
				return kvstore.ErrConditionFailed
			}
		}
	}
	for _, u := range write.Updates {
		item, ok := s.items[u.Key]
		if !ok {
			return kvstore.ErrNotFound
		}
		if u.ConditionExpression != "" && !evalSimpleEquality(item, u.ConditionExpression, u.ExpressionValues) {
			return kvstore.ErrConditionFailed
		}
	}

	for _, p := range write.Puts {
		s.items[kvstore.Key{PK: p.Item.PK, SK: p.Item.SK}] = cloneItem(p.Item)
	}
	for _, u := range write.Updates {
		item := s.items[u.Key]
		attrs := make(map[string]any, len(item.Attributes))
		for k, v := range item.Attributes {
			attrs[k] = v
		}
		for k, v := range u.Sets {
			attrs[k] = v
		}
		item.Attributes = attrs
		s.items[u.Key] = item
	}
	return nil
}

// Reset clears all stored items. Useful between test cases.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[kvstore.Key]kvstore.Item)
}

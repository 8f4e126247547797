package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryIndex is a process-local KeywordIndex, used for tests and for
// deployments that don't need cross-process keyword search (the canonical
// Memory row already lives in the key-value table regardless). Production
// deployments needing a shared index across worker processes use
// internal/memory/mongoindex instead.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]indexedMemory
}

type indexedMemory struct {
	scopeID  string
	memType  Type
	keywords []string
}

// NewInMemoryIndex returns an empty InMemoryIndex.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: make(map[string]indexedMemory)}
}

// Index implements KeywordIndex.
func (idx *InMemoryIndex) Index(_ context.Context, m Memory) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[m.ID] = indexedMemory{scopeID: m.ScopeID, memType: m.Type, keywords: m.Keywords}
	return nil
}

// Delete implements KeywordIndex.
func (idx *InMemoryIndex) Delete(_ context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, id)
	return nil
}

// Search implements KeywordIndex by scoring every indexed entry under the
// given scopes (and, if non-empty, memType) by keyword overlap with query.
func (idx *InMemoryIndex) Search(_ context.Context, scopeIDs []string, memType Type, query string, limit int) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scopeSet := make(map[string]struct{}, len(scopeIDs))
	for _, s := range scopeIDs {
		scopeSet[s] = struct{}{}
	}
	queryTokens := ExtractKeywords(query)

	type scored struct {
		id    string
		score float64
	}
	var rows []scored
	for id, entry := range idx.entries {
		if len(scopeSet) > 0 {
			if _, ok := scopeSet[entry.scopeID]; !ok {
				continue
			}
		}
		if memType != "" && entry.memType != memType {
			continue
		}
		rows = append(rows, scored{id: id, score: keywordOverlap(queryTokens, entry.keywords)})
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

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// compressedMemoryTTL mirrors the original's 180-day expiry for the new
// compressed memory row.
const compressedMemoryTTL = 180 * 24 * time.Hour

// originalDeletionDelay mirrors the original's 7-day grace period before
// folded-in originals are deleted, giving time for any final access.
const originalDeletionDelay = 7 * 24 * time.Hour

const maxCombinedContentChars = 2000

// Summarizer produces an AI summary of combined old-memory content. A nil
// Summarizer (or one that errors) falls back to deterministic truncation,
// matching the original's `_generate_memory_summary` / except-fallback
// pairing.
type Summarizer interface {
	Summarize(ctx context.Context, combined string, memType Type) (string, error)
}

// CompressOptions configures one compression pass (spec section 4.10).
type CompressOptions struct {
	ScopeID            string
	Type               Type
	DaysOld            int
	MaxAccessCount     int
	MaxMemoriesPerPass int
	Summarizer         Summarizer
}

// CompressResult reports the outcome of a Compress call.
type CompressResult struct {
	CompressedCount int
	NewMemory       *Memory
	Message         string
}

// Compress selects candidates older than opts.DaysOld with access count at
// or below opts.MaxAccessCount that are not already compressed, folds up to
// opts.MaxMemoriesPerPass of them into a single AI-summarized (or, on
// failure, truncated) memory, and schedules the originals for deletion 7
// days out while removing them from the search index immediately (spec
// section 4.10's `compress_old_memories`).
func (r *Repository) Compress(ctx context.Context, opts CompressOptions) (CompressResult, error) {
	daysOld := opts.DaysOld
	if daysOld <= 0 {
		daysOld = 30
	}
	maxPerPass := opts.MaxMemoriesPerPass
	if maxPerPass <= 0 {
		maxPerPass = 10
	}

	all, err := r.ListByScope(ctx, opts.ScopeID, opts.Type, 100)
	if err != nil {
		return CompressResult{}, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	var candidates []Memory
	for _, m := range all {
		if m.Compressed {
			continue
		}
		if m.CreatedAt.After(cutoff) {
			continue
		}
		if m.AccessCount > opts.MaxAccessCount {
			continue
		}
		candidates = append(candidates, m)
	}

	if len(candidates) < 2 {
		return CompressResult{Message: "not enough old memories to compress"}, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if len(candidates) > maxPerPass {
		candidates = candidates[:maxPerPass]
	}

	combined := combinedContent(candidates)
	summary, err := r.summarize(ctx, opts.Summarizer, combined, opts.Type)
	if err != nil {
		summary = clip(combined, maxCombinedContentChars)
	}

	keywordSet := make(map[string]struct{})
	tagSet := make(map[string]struct{})
	for _, kw := range ExtractKeywords(summary) {
		keywordSet[kw] = struct{}{}
	}
	for _, tag := range ExtractTags(summary) {
		tagSet[tag] = struct{}{}
	}
	originalIDs := make([]string, 0, len(candidates))
	for _, m := range candidates {
		originalIDs = append(originalIDs, m.ID)
		for _, kw := range m.Keywords {
			keywordSet[kw] = struct{}{}
		}
		for _, tag := range m.Tags {
			tagSet[tag] = struct{}{}
		}
	}

	expiresAt := time.Now().UTC().Add(compressedMemoryTTL)
	newMemory, err := r.CreateMemory(ctx, CreateInput{
		Type:              opts.Type,
		ScopeID:           opts.ScopeID,
		Content:           summary,
		Summary:           clip(summary, 500),
		Tags:              capStrings(setToSlice(tagSet), 25),
		Keywords:          capStrings(setToSlice(keywordSet), 50),
		Provenance:        candidates[0].Provenance,
		Compressed:        true,
		OriginalMemoryIDs: originalIDs,
		ExpiresAt:         &expiresAt,
	})
	if err != nil {
		return CompressResult{}, fmt.Errorf("memory: compress %s: %w", opts.ScopeID, err)
	}

	deleteAt := time.Now().UTC().Add(originalDeletionDelay)
	for _, m := range candidates {
		if err := r.ScheduleDeletion(ctx, m, deleteAt); err != nil {
			return CompressResult{}, err
		}
	}

	return CompressResult{CompressedCount: len(candidates), NewMemory: &newMemory}, nil
}

func (r *Repository) summarize(ctx context.Context, summarizer Summarizer, combined string, memType Type) (string, error) {
	if summarizer == nil {
		return "", fmt.Errorf("memory: no summarizer configured")
	}
	return summarizer.Summarize(ctx, combined, memType)
}

func combinedContent(candidates []Memory) string {
	var parts []string
	for _, m := range candidates {
		text := m.Summary
		if text == "" {
			text = clip(m.Content, 200)
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", m.CreatedAt.Format(time.RFC3339), text))
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func capStrings(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}

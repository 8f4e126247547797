// Package memory implements the Memory Subsystem (spec section 4.10):
// typed memories scoped to a user, RFP, or the global scope, a keyword
// index for query-aware retrieval, directed relationship edges between
// memories, temporal-event tracking, and a background compression pass
// that folds old, low-value memories into a single AI-summarized row.
package memory

import (
	"regexp"
	"strings"
	"time"
)

// Type distinguishes the six memory kinds spec section 3 names. Each type
// shares the same row shape; only Content/Metadata conventions differ.
type Type string

const (
	// TypeEpisodic records a single conversation turn or agent action.
	TypeEpisodic Type = "EPISODIC"
	// TypeSemantic records a durable fact or stated preference.
	TypeSemantic Type = "SEMANTIC"
	// TypeProcedural records how a multi-step task went: its tool
	// sequence, success, and outcome, for future runs to learn from.
	TypeProcedural Type = "PROCEDURAL"
	// TypeTemporalEvent records a deadline, meeting, or milestone with an
	// associated timestamp.
	TypeTemporalEvent Type = "TEMPORAL_EVENT"
	// TypeCollaborationContext records that two or more distinct
	// participants were active in a thread.
	TypeCollaborationContext Type = "COLLABORATION_CONTEXT"
	// TypeExternalContext records a fetched external-context result
	// (news, weather, research, geopolitical events).
	TypeExternalContext Type = "EXTERNAL_CONTEXT"
)

// RelationType names a directed edge between two memories (spec section 3's
// "Relationships").
type RelationType string

const (
	RelationPartOf           RelationType = "part_of"
	RelationTemporalSequence RelationType = "temporal_sequence"
	RelationCausedBy         RelationType = "caused_by"
	RelationSupersedes       RelationType = "supersedes"
	RelationReferences       RelationType = "references"
	RelationContradicts      RelationType = "contradicts"
)

// Memory is a single row of the Memory Subsystem: `MEM#{scopeId}#{type}#{id}`
// per spec section 3.
type Memory struct {
	ID                string         `json:"memoryId"`
	Type              Type           `json:"memoryType"`
	ScopeID           string         `json:"scopeId"`
	Content           string         `json:"content"`
	Summary           string         `json:"summary,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Keywords          []string       `json:"keywords,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Provenance        map[string]any `json:"provenance,omitempty"`
	Compressed        bool           `json:"compressed,omitempty"`
	OriginalMemoryIDs []string       `json:"originalMemoryIds,omitempty"`
	AccessCount       int            `json:"accessCount"`
	CreatedAt         time.Time      `json:"createdAt"`
	LastAccessedAt    time.Time      `json:"lastAccessedAt"`
	ExpiresAt         *time.Time     `json:"expiresAt,omitempty"`
}

// Relationship is a directed edge `REL#{fromId}#{toId}` between two existing
// memories.
type Relationship struct {
	FromID        string       `json:"fromId"`
	ToID          string       `json:"toId"`
	Type          RelationType `json:"relationshipType"`
	Bidirectional bool         `json:"bidirectional"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// maxKeywords bounds extract_keywords' output (spec section 4.10).
const maxKeywords = 30

var tokenPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// stopwords mirrors the original's extract_keywords stoplist: short,
// high-frequency function words that carry no retrieval signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "day": {}, "get": {}, "has": {},
	"him": {}, "his": {}, "how": {}, "man": {}, "new": {}, "now": {},
	"old": {}, "see": {}, "two": {}, "way": {}, "who": {}, "boy": {},
	"did": {}, "its": {}, "let": {}, "put": {}, "say": {}, "she": {},
	"too": {}, "use": {}, "with": {}, "this": {}, "that": {}, "from": {},
	"have": {}, "will": {}, "your": {}, "they": {}, "been": {}, "were": {},
}

// ExtractKeywords tokenizes content on non-alphanumeric runs, lower-cases,
// drops stopwords and tokens under 3 characters, de-duplicates, and caps the
// result to maxKeywords (spec section 4.10's `extract_keywords`).
func ExtractKeywords(content string) []string {
	tokens := tokenPattern.Split(strings.ToLower(content), -1)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, maxKeywords)
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}

// ExtractTags derives a small set of coarse tags from content, mirroring the
// original's lightweight tag extraction: the first few distinct keywords,
// capped at 5, since tags are a display aid rather than a search index.
func ExtractTags(content string) []string {
	keywords := ExtractKeywords(content)
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	return keywords
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

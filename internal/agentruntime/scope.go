// Package agentruntime implements the tool-using reasoning loop: scope
// detection, metaprompt analysis, step-budgeted tool calling with
// load-before-write/write-before-talk protocol enforcement, and the
// episodic/procedural learning hooks run at the end of a successful or
// failed run (spec section 4.7).
package agentruntime

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
)

var rfpIDPattern = regexp.MustCompile(`\brfp_[a-zA-Z0-9-]{6,}\b`)

// ExtractRFPID finds the first rfp_... token in text, or "" if none is
// present.
func ExtractRFPID(text string) string {
	return rfpIDPattern.FindString(text)
}

// ThreadBinder is the subset of *opportunity.Repository the scope resolver
// needs to read and write thread-to-RFP bindings.
type ThreadBinder interface {
	GetBinding(ctx context.Context, channelID, threadTS string) (opportunity.ThreadBinding, error)
	SetBinding(ctx context.Context, channelID, threadTS, rfpID, boundBy string) error
}

// ThreadShortcut is a result of handling an inline thread command (bind a
// thread or ask what it's bound to) that short-circuits the rest of the run.
type ThreadShortcut struct {
	Reply string
	// BoundRFPID is set on both "link" and "where" shortcuts so callers can
	// log or display the resolved binding.
	BoundRFPID string
}

var linkCommandPattern = regexp.MustCompile(`(?i)^\s*(link|bind)\s+(rfp_[a-zA-Z0-9-]{6,})\b`)

// HandleThreadShortcut recognizes the "link rfp_..." and "where" inline
// commands and applies them, returning (shortcut, true) when the message was
// one of these commands. Any other message returns (ThreadShortcut{}, false)
// so the caller proceeds with normal scope detection.
func HandleThreadShortcut(ctx context.Context, binder ThreadBinder, channelID, threadTS, boundBy, message string) (ThreadShortcut, bool, error) {
	if m := linkCommandPattern.FindStringSubmatch(message); m != nil {
		rfpID := strings.TrimSpace(m[2])
		if err := binder.SetBinding(ctx, channelID, threadTS, rfpID, boundBy); err != nil {
			return ThreadShortcut{}, true, err
		}
		return ThreadShortcut{
			Reply:      "Bound this thread to `" + rfpID + "`. Future mentions will use that as context.",
			BoundRFPID: rfpID,
		}, true, nil
	}

	if trimmed := strings.ToLower(strings.TrimSpace(message)); trimmed == "where" || trimmed == "where?" {
		bound, err := binder.GetBinding(ctx, channelID, threadTS)
		if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			return ThreadShortcut{}, true, err
		}
		if bound.RFPID == "" {
			return ThreadShortcut{Reply: "No RFP is bound to this thread yet. Bind it once with: `link rfp_...`"}, true, nil
		}
		return ThreadShortcut{
			Reply:      "This thread is bound to `" + bound.RFPID + "`.",
			BoundRFPID: bound.RFPID,
		}, true, nil
	}

	return ThreadShortcut{}, false, nil
}

// RFPScopeRequirement is the outcome of classifying whether a message needs
// an RFP scope to answer: True means ask the user to bind one, False means
// delegate to the general-purpose path, nil (neither) means the
// classification is unclear and the caller should still try the
// general-purpose path first before asking.
type RFPScopeRequirement struct {
	RequiresRFP *bool
	Confidence  float64
	Indicators  []string
	Reasoning   string
}

func requirement(requires *bool, confidence float64, indicator, reasoning string) RFPScopeRequirement {
	return RFPScopeRequirement{RequiresRFP: requires, Confidence: confidence, Indicators: []string{indicator}, Reasoning: reasoning}
}

func boolPtr(b bool) *bool { return &b }

var (
	falseIndicatorPhrases = []string{
		"isn't about an existing rfp", "is not about an existing rfp", "not about a specific rfp",
		"not about an rfp", "not tied to an rfp", "new rfp", "brand new", "it's new", "it is new",
		"upload the file", "upload this", "upload it", "can you upload", "upload as",
		"search for", "find a new", "north star", "runner job", "schedule a job", "create a job", "queue a job",
	}
	capabilityPhrases = []string{
		"what tools", "what skills", "what capabilities", "what can you", "what are you", "how can you",
		"what do you", "available to you", "available tools", "your capabilities", "your skills", "your tools",
		"help me", "how do you", "what memories", "types of memories", "what types",
	}
	jobPhrases  = []string{"schedule job", "agent job", "job list", "job status", "query jobs", "runner"}
	trueIndicatorPhrases = []string{
		"journal entry", "add to journal", "append journal", "opportunity state", "update opportunity",
		"patch opportunity", "update the opportunity", "update opportunity state", "patch the opportunity",
		"update rfp", "update the rfp",
	}
	rfpTerms             = []string{"rfp", "proposal", "opportunity", "bid"}
	generalQueryPhrases  = []string{"what is", "tell me about", "show me", "list", "search"}
)

// ClassifyRFPScope decides, from message text and thread context alone,
// whether the request needs an RFP scope. Matches the keyword-based
// classifier's priority order: explicit global/new-RFP phrases, capability
// questions, job operations, explicit write-operation phrases, then
// RFP-term ambiguity resolved by thread binding and query shape.
func ClassifyRFPScope(message string, hasThreadBinding bool) RFPScopeRequirement {
	lower := strings.ToLower(strings.TrimSpace(message))

	for _, phrase := range falseIndicatorPhrases {
		if strings.Contains(lower, phrase) {
			return requirement(boolPtr(false), 0.90, "false_indicator:"+phrase,
				"message explicitly indicates a global operation or new RFP creation: '"+phrase+"'")
		}
	}
	for _, phrase := range capabilityPhrases {
		if strings.Contains(lower, phrase) {
			return requirement(boolPtr(false), 0.95, "capability_query:"+phrase,
				"message is about agent capabilities/help, not RFP operations: '"+phrase+"'")
		}
	}
	for _, phrase := range jobPhrases {
		if strings.Contains(lower, phrase) {
			if rfpID := ExtractRFPID(message); rfpID != "" {
				return requirement(boolPtr(true), 0.85, "job_with_rfp:"+rfpID, "job operation mentions an RFP id, likely RFP-scoped")
			}
			return requirement(boolPtr(false), 0.90, "job_operation:global", "job operation without an RFP id, global operation")
		}
	}
	for _, phrase := range trueIndicatorPhrases {
		if strings.Contains(lower, phrase) {
			return requirement(boolPtr(true), 0.95, "true_indicator:"+phrase, "message explicitly mentions an RFP-scoped write operation: '"+phrase+"'")
		}
	}

	mentionsRFPTerm := false
	for _, term := range rfpTerms {
		if strings.Contains(lower, term) {
			mentionsRFPTerm = true
			break
		}
	}
	if mentionsRFPTerm {
		if hasThreadBinding {
			return requirement(boolPtr(true), 0.75, "rfp_term_in_bound_thread", "message mentions RFP-related terms and the thread is bound to an RFP")
		}
		for _, phrase := range generalQueryPhrases {
			if strings.Contains(lower, phrase) {
				return requirement(boolPtr(false), 0.80, "general_query_with_rfp_term", "general query about RFPs, doesn't require a specific RFP scope")
			}
		}
		return requirement(nil, 0.50, "ambiguous_rfp_term", "message mentions RFP-related terms but intent is unclear")
	}

	if hasThreadBinding {
		return requirement(nil, 0.55, "default_with_thread_binding", "no RFP indicators in the message, but the thread is bound to an RFP and may be referenced implicitly")
	}
	return requirement(boolPtr(false), 0.85, "default:no_rfp_indicators", "no RFP-related indicators found, treating as a general question")
}

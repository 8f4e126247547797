package agentruntime

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Memory is the narrow slice of the episodic/procedural memory store the
// agent runtime writes to at the end of a run: collaboration context,
// temporal events extracted from the message, and procedural/error-log
// entries recording how a run went. A full memory package is out of scope
// here; callers wire in whatever store implements this.
type Memory interface {
	AddCollaborationContext(ctx context.Context, m CollaborationContext) error
	AddTemporalEvent(ctx context.Context, e TemporalEvent) error
	AddProceduralMemory(ctx context.Context, m ProceduralMemory) error
	AddErrorLog(ctx context.Context, e ErrorLogEntry) error
}

// CollaborationContext records that two or more distinct participants were
// active in a thread during a run, along with a best-effort classification
// of what kind of collaboration it was.
type CollaborationContext struct {
	ParticipantUserIDs []string
	Content            string
	CollaborationType  string
	Success            bool
	ChannelID          string
	ThreadTS           string
	MessageCount       int
	RFPID              string
	Source             string
}

// TemporalEvent records a deadline, meeting, or milestone mentioned in a
// message, with a best-effort extracted or inferred date.
type TemporalEvent struct {
	ScopeID   string
	Content   string
	EventAt   time.Time
	EventType string
	RFPID     string
	Confidence string
	ChannelID string
	ThreadTS  string
	Source    string
}

// ProceduralMemory records how a multi-step run succeeded, for future runs
// facing a similar task to learn from.
type ProceduralMemory struct {
	RFPID     string
	Task      string
	StepCount int
	Summary   string
	Source    string
}

// ErrorLogEntry records why a run failed, for future runs (or a human) to
// diagnose.
type ErrorLogEntry struct {
	RFPID     string
	Task      string
	StepCount int
	Error     string
	Source    string
}

const minThreadMessagesForCollaboration = 2

// collaborationTypeKeywords is checked in order; the first match wins,
// "discussion" is the fallback.
var collaborationTypeKeywords = []struct {
	typ      string
	keywords []string
}{
	{"review", []string{"review", "feedback", "approve", "comment"}},
	{"decision_making", []string{"decision", "decide", "choose", "select"}},
	{"design_session", []string{"design", "plan", "architecture"}},
	{"code_collaboration", []string{"code", "implement", "develop"}},
}

// ClassifyCollaborationType guesses what kind of collaboration a thread's
// combined user message and agent response represent.
func ClassifyCollaborationType(userMessage, agentResponse string) string {
	lower := strings.ToLower(userMessage + " " + agentResponse)
	for _, entry := range collaborationTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.typ
			}
		}
	}
	return "discussion"
}

// DetectAndStoreCollaboration writes a CollaborationContext memory when a
// thread has two or more distinct, non-bot participants. Mirrors the
// original's thread-participant collaboration detector: silently does
// nothing when there's no thread, too few messages, or only one
// participant, since those aren't failures worth surfacing to the caller.
func DetectAndStoreCollaboration(ctx context.Context, mem Memory, threads ThreadParticipantReader, params CollaborationParams) error {
	if mem == nil || threads == nil || params.ThreadTS == "" {
		return nil
	}

	participants, err := threads.ListParticipants(ctx, params.ChannelID, params.ThreadTS, 50)
	if err != nil {
		return err
	}
	if len(participants) < minThreadMessagesForCollaboration {
		return nil
	}

	unique := make(map[string]struct{}, len(participants)+1)
	for _, p := range participants {
		if p == "" || strings.HasPrefix(p, "B") {
			continue
		}
		unique[p] = struct{}{}
	}
	unique[params.CurrentUserID] = struct{}{}
	if len(unique) < 2 {
		return nil
	}

	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}

	content := "Collaboration in thread: " + clip(params.UserMessage, 200)
	if params.AgentResponse != "" {
		content += "\nAgent response: " + clip(params.AgentResponse, 200)
	}

	return mem.AddCollaborationContext(ctx, CollaborationContext{
		ParticipantUserIDs: ids,
		Content:            content,
		CollaborationType:  ClassifyCollaborationType(params.UserMessage, params.AgentResponse),
		Success:            true,
		ChannelID:          params.ChannelID,
		ThreadTS:           params.ThreadTS,
		MessageCount:       len(participants),
		RFPID:              params.RFPID,
		Source:             "agent_runtime",
	})
}

// ThreadParticipantReader lists the distinct (non-bot) user IDs who posted
// in a thread, for collaboration detection.
type ThreadParticipantReader interface {
	ListParticipants(ctx context.Context, channelID, threadTS string, limit int) ([]string, error)
}

// CollaborationParams is the per-run context DetectAndStoreCollaboration
// needs.
type CollaborationParams struct {
	ChannelID     string
	ThreadTS      string
	CurrentUserID string
	RFPID         string
	UserMessage   string
	AgentResponse string
}

var temporalKeywords = []string{
	"deadline", "due", "due date", "by", "before", "after", "on",
	"meeting", "call", "standup", "review", "milestone", "deliverable",
	"submit", "submission", "presentation", "demo", "launch", "release",
}

var strongTemporalKeywords = []string{"deadline", "due date", "meeting"}

var eventTypeKeywords = []struct {
	typ      string
	keywords []string
}{
	{"deadline", []string{"deadline", "due", "due date", "submit", "submission"}},
	{"meeting", []string{"meeting", "call", "standup"}},
	{"milestone", []string{"milestone", "deliverable"}},
	{"review", []string{"review", "demo", "presentation"}},
}

var (
	dateMDY        = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dateISO        = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	relativeInDays = regexp.MustCompile(`(?i)in (\d+) (days?|weeks?)`)
)

func classifyEventType(lower string) string {
	for _, entry := range eventTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.typ
			}
		}
	}
	return "event"
}

// extractEventDate tries MM/DD/YYYY and YYYY-MM-DD first, then falls back to
// relative phrases ("tomorrow", "next week", "in N days"), matching the
// original's date-pattern cascade. Returns the zero time when nothing
// parses.
func extractEventDate(message string, now time.Time) time.Time {
	if m := dateMDY.FindStringSubmatch(message); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month > 12 {
			day, month = month, day
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}
	if m := dateISO.FindStringSubmatch(message); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1)
	case strings.Contains(lower, "next week"):
		return now.AddDate(0, 0, 7)
	case strings.Contains(lower, "next month"):
		return now.AddDate(0, 0, 30)
	}
	if m := relativeInDays.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(m[2], "week") {
			return now.AddDate(0, 0, 7*amount)
		}
		return now.AddDate(0, 0, amount)
	}
	return time.Time{}
}

// TemporalParams is the per-run context DetectAndStoreTemporalEvent needs.
type TemporalParams struct {
	UserMessage string
	UserSub     string
	RFPID       string
	ChannelID   string
	ThreadTS    string
}

// DetectAndStoreTemporalEvent scans a user message for deadline/meeting/
// milestone language and, if found, writes a TemporalEvent memory. now is
// passed in rather than read from the clock so callers (and tests) control
// it explicitly. Mirrors the original's keyword-gated date extraction with
// a strong-keyword-only fallback (a 7-day-out placeholder date) when a
// deadline or meeting is mentioned but no date parses.
func DetectAndStoreTemporalEvent(ctx context.Context, mem Memory, now time.Time, params TemporalParams) error {
	if mem == nil {
		return nil
	}
	lower := strings.ToLower(params.UserMessage)

	hasKeyword := false
	for _, kw := range temporalKeywords {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return nil
	}

	eventDate := extractEventDate(params.UserMessage, now)
	hasStrongKeyword := false
	for _, kw := range strongTemporalKeywords {
		if strings.Contains(lower, kw) {
			hasStrongKeyword = true
			break
		}
	}
	if eventDate.IsZero() && !hasStrongKeyword {
		return nil
	}

	confidence := "low"
	if eventDate.IsZero() {
		eventDate = now.AddDate(0, 0, 7)
	} else {
		confidence = "medium"
	}

	scopeID := "USER#" + params.UserSub
	if params.RFPID != "" {
		scopeID = "RFP#" + params.RFPID
	}

	return mem.AddTemporalEvent(ctx, TemporalEvent{
		ScopeID:    scopeID,
		Content:    "Temporal event mentioned: " + clip(params.UserMessage, 300),
		EventAt:    eventDate,
		EventType:  classifyEventType(lower),
		RFPID:      params.RFPID,
		Confidence: confidence,
		ChannelID:  params.ChannelID,
		ThreadTS:   params.ThreadTS,
		Source:     "agent_runtime",
	})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

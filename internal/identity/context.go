package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
)

// ThreadMessage is one message in a chat thread's history.
type ThreadMessage struct {
	UserID string
	Text   string
}

// ThreadReader fetches a chat thread's recent message history. Returns an
// empty slice (not an error) when the thread has no accessible history.
type ThreadReader interface {
	GetThread(ctx context.Context, channelID, threadTS string, limit int) ([]ThreadMessage, error)
}

// RFPSummary is the minimal RFP listing shape the related-RFP and
// cross-thread lookups need.
type RFPSummary struct {
	RFPID              string
	Title              string
	ClientName         string
	ProjectType        string
	SubmissionDeadline string
}

// RFPLister looks up a single RFP and lists recent RFPs for related-opportunity
// matching.
type RFPLister interface {
	GetRFP(ctx context.Context, rfpID string) (RFPSummary, error)
	ListRecentRFPs(ctx context.Context, limit int) ([]RFPSummary, error)
}

// JobSummary is the minimal agent-job shape the recent-jobs context needs.
type JobSummary struct {
	JobID   string
	JobType string
	Status  string
	DueAt   string
}

// JobLister lists recent agent jobs scoped to an RFP.
type JobLister interface {
	ListJobsByRFP(ctx context.Context, rfpID string, limit int) ([]JobSummary, error)
}

// ContextBuilder assembles the layered system-prompt context spec section
// 4.6 describes: user identity, thread history, RFP state, related RFPs,
// recent jobs, and cross-thread references — in descending priority order,
// truncated to fit a caller-provided character budget.
type ContextBuilder struct {
	opportunities *opportunity.Repository
	threads       ThreadReader
	rfps          RFPLister
	jobs          JobLister
}

// NewContextBuilder constructs a ContextBuilder. threads, rfps, and jobs may
// be nil, in which case the corresponding context layer is simply omitted.
func NewContextBuilder(opportunities *opportunity.Repository, threads ThreadReader, rfps RFPLister, jobs JobLister) *ContextBuilder {
	return &ContextBuilder{opportunities: opportunities, threads: threads, rfps: rfps, jobs: jobs}
}

// BuildUserContext formats identity.Profile and the caller-supplied display
// name/email into the "User context:" block every layered context starts
// with.
func BuildUserContext(identity Identity) string {
	profile := identity.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	preferred := stringField(profile, "preferredName")
	full := stringField(profile, "fullName")
	name := preferred
	if name == "" {
		name = full
	}
	if name == "" {
		name = identity.DisplayName
	}

	var lines []string
	if sub := identity.Sub; sub != "" {
		lines = append(lines, "- user_sub: "+sub)
	}
	if name != "" {
		lines = append(lines, "- name: "+name)
	}
	if identity.Email != "" {
		lines = append(lines, "- email: "+identity.Email)
	}
	if identity.ExternalChatUserID != "" {
		lines = append(lines, "- external_chat_user_id: "+identity.ExternalChatUserID)
	}
	if v := stringField(profile, "profileCompletedAt"); v != "" {
		lines = append(lines, "- profile_completed_at: "+v)
	}
	if v := stringField(profile, "onboardingVersion"); v != "" {
		lines = append(lines, "- onboarding_version: "+v)
	}
	if v := stringField(profile, "createdAt"); v != "" {
		lines = append(lines, "- profile_created_at: "+v)
	}
	if v := stringField(profile, "updatedAt"); v != "" {
		lines = append(lines, "- profile_updated_at: "+v)
	}
	if titles := stringListField(profile, "jobTitles", 5); len(titles) > 0 {
		lines = append(lines, "- job_titles: "+strings.Join(titles, ", "))
	}
	if certs := stringListField(profile, "certifications", 10); len(certs) > 0 {
		lines = append(lines, "- certifications: "+strings.Join(certs, ", "))
	}
	if prefs, ok := profile["aiPreferences"].(map[string]any); ok && len(prefs) > 0 {
		if data, err := json.Marshal(prefs); err == nil {
			lines = append(lines, "- preferences_json: "+clip(string(data), 1200))
		}
	}
	if mem := stringField(profile, "aiMemorySummary"); mem != "" {
		lines = append(lines, "- memory_summary: "+clip(mem, 1200))
	}
	return strings.Join(lines, "\n")
}

// BuildThreadContext formats a chat thread's recent history, oldest first.
func (b *ContextBuilder) BuildThreadContext(ctx context.Context, channelID, threadTS string, limit int) string {
	if channelID == "" || threadTS == "" || b.threads == nil {
		return ""
	}
	messages, err := b.threads.GetThread(ctx, channelID, threadTS, limit)
	if err != nil || len(messages) == 0 {
		return ""
	}
	var lines []string
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		userName := m.UserID
		if userName == "" {
			userName = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", userName, m.Text))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Thread conversation history (for context - remember previous exchanges like channel names, permissions, preferences):\n" + strings.Join(lines, "\n")
}

// BuildRFPStateContext formats the opportunity's canonical state, recent
// journal entries, and recent events.
func (b *ContextBuilder) BuildRFPStateContext(ctx context.Context, rfpID string, journalLimit, eventsLimit int) string {
	if rfpID == "" || b.opportunities == nil {
		return ""
	}
	state, err := b.opportunities.GetState(ctx, rfpID)
	if err != nil {
		return ""
	}
	journal, _ := b.opportunities.ListJournal(ctx, rfpID, journalLimit)
	events, _ := b.opportunities.ListEvents(ctx, rfpID, eventsLimit)

	var lines []string
	lines = append(lines, fmt.Sprintf("RFP state context for %s:", rfpID), "")
	lines = append(lines, "- stage: "+string(state.Stage))
	if state.Summary != "" {
		lines = append(lines, "- summary: "+clip(state.Summary, 800))
	}
	if len(state.ProposalIDs) > 0 {
		lines = append(lines, "- proposals: "+strings.Join(limitStrings(state.ProposalIDs, 5), ", "))
	}

	if len(journal) > 0 {
		lines = append(lines, "", "Recent journal entries:")
		for _, entry := range lastN(journal, journalLimit) {
			if entry.WhatChanged == "" && entry.Why == "" {
				continue
			}
			text := fmt.Sprintf("  - %s: %s", entry.CreatedAt.Format("2006-01-02T15:04:05Z"), entry.WhatChanged)
			if entry.Why != "" {
				text += fmt.Sprintf(" (why: %s)", entry.Why)
			}
			lines = append(lines, clip(text, 300))
		}
	}

	if len(events) > 0 {
		lines = append(lines, "", "Recent events:")
		for _, event := range lastN(events, eventsLimit) {
			if event.Type == "" && event.Tool == "" {
				continue
			}
			text := fmt.Sprintf("  - %s: %s", event.CreatedAt.Format("2006-01-02T15:04:05Z"), event.Type)
			if event.Tool != "" {
				text += fmt.Sprintf(" (tool: %s)", event.Tool)
			}
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}

// FindRelatedRFPs returns up to limit RFPs sharing a client name or project
// type with rfpID, excluding rfpID itself.
func (b *ContextBuilder) FindRelatedRFPs(ctx context.Context, rfpID string, limit int) []RFPSummary {
	if rfpID == "" || b.rfps == nil {
		return nil
	}
	current, err := b.rfps.GetRFP(ctx, rfpID)
	if err != nil {
		return nil
	}
	clientName := strings.ToLower(strings.TrimSpace(current.ClientName))
	projectType := strings.ToLower(strings.TrimSpace(current.ProjectType))
	if clientName == "" && projectType == "" {
		return nil
	}

	all, err := b.rfps.ListRecentRFPs(ctx, 100)
	if err != nil {
		return nil
	}

	var related []RFPSummary
	for _, candidate := range all {
		if candidate.RFPID == rfpID {
			continue
		}
		candClient := strings.ToLower(strings.TrimSpace(candidate.ClientName))
		candType := strings.ToLower(strings.TrimSpace(candidate.ProjectType))
		matches := false
		if clientName != "" && candClient != "" && (strings.Contains(candClient, clientName) || strings.Contains(clientName, candClient)) {
			matches = true
		}
		if !matches && projectType != "" && candType != "" && projectType == candType {
			matches = true
		}
		if matches {
			related = append(related, candidate)
			if len(related) >= limit {
				break
			}
		}
	}
	return related
}

// BuildRelatedRFPsContext formats FindRelatedRFPs' result for pattern
// recognition and past-learnings recall.
func (b *ContextBuilder) BuildRelatedRFPsContext(ctx context.Context, rfpID string, limit int) string {
	related := b.FindRelatedRFPs(ctx, rfpID, limit)
	if len(related) == 0 {
		return ""
	}
	lines := []string{"Related RFPs (for pattern recognition and learnings):"}
	for _, rfp := range related {
		lines = append(lines, fmt.Sprintf("  - %s: %s (client: %s)", rfp.RFPID, rfp.Title, rfp.ClientName))
	}
	return strings.Join(lines, "\n")
}

// BuildRecentJobsContext formats the most recent agent jobs scoped to rfpID.
func (b *ContextBuilder) BuildRecentJobsContext(ctx context.Context, rfpID string, limit int) string {
	if rfpID == "" || b.jobs == nil {
		return ""
	}
	jobs, err := b.jobs.ListJobsByRFP(ctx, rfpID, limit)
	if err != nil || len(jobs) == 0 {
		return ""
	}
	lines := []string{"Recent agent jobs for this RFP:"}
	for _, job := range jobs {
		lines = append(lines, fmt.Sprintf("  - %s: %s (%s) due %s", job.JobID, job.JobType, job.Status, job.DueAt))
	}
	return strings.Join(lines, "\n")
}

// BuildCrossThreadContext surfaces other (channel, threadTS) pairs whose
// events mention rfpID, excluding the caller's own thread.
func (b *ContextBuilder) BuildCrossThreadContext(ctx context.Context, rfpID, currentChannelID, currentThreadTS string, limit int) string {
	if rfpID == "" || b.opportunities == nil {
		return ""
	}
	events, err := b.opportunities.ListEvents(ctx, rfpID, 50)
	if err != nil || len(events) == 0 {
		return ""
	}

	type threadRef struct {
		channel, thread, lastSeen string
	}
	seen := map[string]threadRef{}
	for _, event := range events {
		channel := stringField(event.Payload, "channelId")
		thread := stringField(event.Payload, "threadTs")
		if channel == "" || thread == "" {
			continue
		}
		key := channel + "#" + thread
		if _, ok := seen[key]; !ok {
			seen[key] = threadRef{channel: channel, thread: thread, lastSeen: event.CreatedAt.Format("2006-01-02T15:04:05Z")}
		}
	}
	if currentChannelID != "" && currentThreadTS != "" {
		delete(seen, currentChannelID+"#"+currentThreadTS)
	}
	if len(seen) == 0 {
		return ""
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{"Other threads mentioning this RFP:"}
	for i, k := range keys {
		if i >= limit {
			break
		}
		ref := seen[k]
		lines = append(lines, fmt.Sprintf("  - Channel %s, thread %s (last seen: %s)", ref.channel, ref.thread, ref.lastSeen))
	}
	return strings.Join(lines, "\n")
}

// BuildOptions parameterizes Build's layered assembly.
type BuildOptions struct {
	Identity        Identity
	ChannelID       string
	ThreadTS        string
	RFPID           string
	MaxTotalChars   int
	JournalLimit    int
	EventsLimit     int
	RelatedLimit    int
	RecentJobsLimit int
	CrossThreadLim  int
}

// Build assembles every context layer in priority order — user, thread,
// RFP state, related RFPs, recent jobs, cross-thread — and truncates the
// combined text to MaxTotalChars (spec section 4.6: "oversize drafts
// truncate lowest-priority blocks first").
func (b *ContextBuilder) Build(ctx context.Context, opts BuildOptions) string {
	maxChars := opts.MaxTotalChars
	if maxChars <= 0 {
		maxChars = 50000
	}

	var parts []string
	userCtx := BuildUserContext(opts.Identity)
	if userCtx != "" {
		parts = append(parts, "User context:", userCtx, "")
	}

	threadCtx := b.BuildThreadContext(ctx, opts.ChannelID, opts.ThreadTS, 100)
	if threadCtx != "" {
		parts = append(parts, threadCtx, "")
	}

	if opts.RFPID != "" {
		journalLimit := orDefault(opts.JournalLimit, 10)
		eventsLimit := orDefault(opts.EventsLimit, 10)
		if rfpCtx := b.BuildRFPStateContext(ctx, opts.RFPID, journalLimit, eventsLimit); rfpCtx != "" {
			parts = append(parts, rfpCtx, "")
		}
		if relatedCtx := b.BuildRelatedRFPsContext(ctx, opts.RFPID, orDefault(opts.RelatedLimit, 5)); relatedCtx != "" {
			parts = append(parts, relatedCtx, "")
		}
		if jobsCtx := b.BuildRecentJobsContext(ctx, opts.RFPID, orDefault(opts.RecentJobsLimit, 10)); jobsCtx != "" {
			parts = append(parts, jobsCtx, "")
		}
		if crossCtx := b.BuildCrossThreadContext(ctx, opts.RFPID, opts.ChannelID, opts.ThreadTS, orDefault(opts.CrossThreadLim, 5)); crossCtx != "" {
			parts = append(parts, crossCtx, "")
		}
	}

	full := strings.TrimSpace(strings.Join(parts, "\n"))
	if len(full) <= maxChars {
		return full
	}
	return strings.TrimSpace(full[:maxChars]) + "\n\n[Context truncated for length...]"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func stringListField(m map[string]any, key string, limit int) []string {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

func limitStrings(in []string, limit int) []string {
	if len(in) <= limit {
		return in
	}
	return in[:limit]
}

func lastN[T any](in []T, n int) []T {
	if n <= 0 || len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

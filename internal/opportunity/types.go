// Package opportunity owns the per-RFP canonical state row, its append-only
// journal and event log, thread-to-RFP bindings, and change proposals (spec
// section 3/4.3). It is the only component allowed to write
// OpportunityState, Journal, Event, ThreadBinding, and ChangeProposal rows;
// the agent runtime and job executor call through it rather than writing
// durable rows directly.
package opportunity

import "time"

// Stage is the opportunity's lifecycle stage.
type Stage string

const (
	StageNew         Stage = "new"
	StageInReview    Stage = "in_review"
	StageProposal    Stage = "proposal"
	StageContracting Stage = "contracting"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
	StageWithdrawn   Stage = "withdrawn"
)

// Provenance records where a durable fact came from. Commitments without a
// non-empty Source are dropped by SanitizeOpportunityPatch.
type Provenance struct {
	Source string         `json:"source"`
	Ref    string         `json:"ref,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Commitment is an add-only durable fact about an opportunity: a promise,
// deadline, or agreement that must never be silently altered once recorded.
type Commitment struct {
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// DueDates holds the handful of dates callers repeatedly ask about.
type DueDates struct {
	SubmissionDeadline  *time.Time `json:"submissionDeadline,omitempty"`
	QuestionsDeadline   *time.Time `json:"questionsDeadline,omitempty"`
	ContractingDeadline *time.Time `json:"contractingDeadline,omitempty"`
}

// Comms tracks the agent's conversational footprint on this opportunity.
type Comms struct {
	LastChatSummaryAt *time.Time `json:"lastChatSummaryAt,omitempty"`
}

// State is the canonical per-RFP artifact every repository operation reads
// and writes through.
type State struct {
	RFPID             string       `json:"rfpId"`
	Stage             Stage        `json:"stage"`
	Summary           string       `json:"summary"`
	DueDates          DueDates     `json:"dueDates"`
	ProposalIDs       []string     `json:"proposalIds"`
	ContractingCaseID string       `json:"contractingCaseId,omitempty"`
	Commitments       []Commitment `json:"commitments"`
	Comms             Comms        `json:"comms"`
	Risks             []string     `json:"risks"`
	Owners            []string     `json:"owners"`
	Version           int          `json:"version"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// PolicyCheckStatus is the outcome of a single policy evaluation.
type PolicyCheckStatus string

const (
	PolicyCheckPass PolicyCheckStatus = "pass"
	PolicyCheckFail PolicyCheckStatus = "fail"
)

// PolicyCheck records a single policy evaluation performed while sanitizing
// or applying a patch, durable on the event log per spec section 7's
// PolicyCheck error kind (non-fatal, recorded rather than raised).
type PolicyCheck struct {
	Policy string            `json:"policy"`
	Status PolicyCheckStatus `json:"status"`
	Reason string            `json:"reason"`
	Actor  map[string]any    `json:"actor,omitempty"`
}

// JournalEntry is an append-only narrative record of what changed on an
// opportunity and why, time-ordered under RFP#{id}#JOURNAL.
type JournalEntry struct {
	ID          string         `json:"id"`
	RFPID       string         `json:"rfpId"`
	Topics      []string       `json:"topics"`
	UserStated  string         `json:"userStated,omitempty"`
	AgentIntent string         `json:"agentIntent,omitempty"`
	WhatChanged string         `json:"whatChanged"`
	Why         string         `json:"why,omitempty"`
	Assumptions []string       `json:"assumptions,omitempty"`
	Sources     []string       `json:"sources,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CreatedBy   string         `json:"createdBy,omitempty"`
}

// Event is a durable explainability record: one per tool call that touches
// an opportunity, regardless of outcome.
type Event struct {
	ID                string         `json:"id"`
	RFPID             string         `json:"rfpId"`
	Type              string         `json:"type"`
	Tool              string         `json:"tool,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	InputsRedacted    map[string]any `json:"inputsRedacted,omitempty"`
	OutputsRedacted   map[string]any `json:"outputsRedacted,omitempty"`
	PolicyChecks      []PolicyCheck  `json:"policyChecks,omitempty"`
	ConfidenceFlags   []string       `json:"confidenceFlags,omitempty"`
	DownstreamEffects []string       `json:"downstreamEffects,omitempty"`
	CorrelationID     string         `json:"correlationId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// ThreadBinding remembers which RFP a chat thread is talking about, so the
// agent doesn't have to re-ask "which RFP?" on every message in the thread.
type ThreadBinding struct {
	ChannelID string    `json:"channelId"`
	ThreadTS  string    `json:"threadTs"`
	RFPID     string    `json:"rfpId"`
	BoundBy   string    `json:"boundBy"`
	BoundAt   time.Time `json:"boundAt"`
}

// ChangeProposal is a self-modification request: a unified diff the agent
// wants applied to its own repository, gated by human approval before any
// job opens a pull request for it.
type ChangeProposal struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Summary      string         `json:"summary"`
	Patch        string         `json:"patch"`
	FilesTouched []string       `json:"filesTouched"`
	RFPID        string         `json:"rfpId,omitempty"`
	CreatedBy    string         `json:"createdBy"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

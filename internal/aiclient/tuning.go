package aiclient

import "errors"

// Tuning is the per-attempt reasoning effort and verbosity passed to a
// provider adapter for a single call.
type Tuning struct {
	ReasoningEffort string
	Verbosity       string
}

// callKind distinguishes call_text from call_json tuning ladders.
type callKind string

const (
	kindText  callKind = "text"
	kindJSON  callKind = "json"
	kindTools callKind = "tools"
)

// isParseFailure reports whether err represents a parse/schema/validation
// failure rather than an upstream or configuration failure — the only kind
// of failure that retrying with more reasoning effort is expected to fix.
func isParseFailure(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// escalateEffort steps reasoning effort up (low -> medium -> high) on
// retries that follow a parse/validation failure; attempt 1 and failures of
// any other kind use the purpose's configured base effort unchanged (spec
// section 4.5's per-attempt adaptive tuning).
func escalateEffort(base string, attempt int, prevErr error) string {
	if attempt <= 1 {
		return base
	}
	if !isParseFailure(prevErr) {
		return base
	}
	if attempt == 2 {
		return "medium"
	}
	return "high"
}

// tuningFor computes the Tuning for one attempt, escalating effort (and, for
// purposes flagged as writing-ish, verbosity) following attempt >= 2 parse
// failures.
func tuningFor(cfg PurposeConfig, kind callKind, purpose string, attempt int, prevErr error) Tuning {
	baseEffort := string(cfg.DefaultEffort)
	if baseEffort == "" {
		if kind == kindJSON {
			baseEffort = "low"
		} else {
			baseEffort = "none"
		}
	}
	verbosity := cfg.DefaultVerbosity
	if verbosity == "" {
		if kind == kindJSON {
			verbosity = "low"
		} else {
			verbosity = "medium"
		}
	}

	effort := escalateEffort(baseEffort, attempt, prevErr)
	if kind == kindText && attempt >= 2 && isParseFailure(prevErr) && isWritingPurpose(purpose) {
		verbosity = "high"
	}
	return Tuning{ReasoningEffort: effort, Verbosity: verbosity}
}

// tuningForStep computes the Tuning for one step of a tool-using agent run,
// escalating effort by step count rather than by retry attempt: a run that
// has taken many steps is more likely stuck on something hard, so later
// steps reason harder regardless of whether earlier ones failed. Mirrors the
// "tools" AiKind ladder from the original tuning module (steps>=6 -> high,
// steps>=3 -> medium, else low).
func tuningForStep(cfg PurposeConfig, stepNumber int) Tuning {
	verbosity := cfg.DefaultVerbosity
	if verbosity == "" {
		verbosity = "low"
	}
	switch {
	case stepNumber >= 6:
		return Tuning{ReasoningEffort: "high", Verbosity: verbosity}
	case stepNumber >= 3:
		return Tuning{ReasoningEffort: "medium", Verbosity: verbosity}
	default:
		return Tuning{ReasoningEffort: "low", Verbosity: verbosity}
	}
}

func isWritingPurpose(purpose string) bool {
	switch purpose {
	case "generate_content", "proposal_sections", "text_edit":
		return true
	default:
		return false
	}
}

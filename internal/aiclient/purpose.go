package aiclient

import "github.com/polaris-ecosystems/rfp-agent/internal/resilience"

// ModelRef names one leg of a purpose's model chain: which provider adapter
// serves it and which model identifier to ask that provider for.
type ModelRef struct {
	Provider string
	Model    string
}

func (m ModelRef) empty() bool { return m.Provider == "" || m.Model == "" }

// PurposeConfig configures the model chain and default tuning for one
// logical call site ("rfp_summary", "contracting_budget", ...). Purposes are
// registered once at startup; callers refer to them by name so the model
// chain can change without touching call sites (spec section 4.5).
type PurposeConfig struct {
	// Primary is the configured model for this purpose. May be the zero value.
	Primary ModelRef
	// Default is the global default model, tried after Primary.
	Default ModelRef
	// KnownSafe is a model every supported provider is assumed to serve;
	// the last resort in the chain.
	KnownSafe ModelRef

	DefaultEffort      resilience.ReasoningEffort
	DefaultVerbosity   string
	DefaultMaxTokens   int
	DefaultTemperature float32
}

// modelsToTry returns the model chain in priority order with duplicates
// removed, mirroring the original _models_to_try: primary, then default,
// then known-safe.
func (p PurposeConfig) modelsToTry() []ModelRef {
	var out []ModelRef
	seen := make(map[ModelRef]bool)
	add := func(ref ModelRef) {
		if ref.empty() || seen[ref] {
			return
		}
		seen[ref] = true
		out = append(out, ref)
	}
	add(p.Primary)
	add(p.Default)
	add(p.KnownSafe)
	return out
}

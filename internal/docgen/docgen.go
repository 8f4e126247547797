// Package docgen builds the render context and object-store key scheme for
// contract/budget document generation (spec section 6: Document rendering),
// grounded on the distilled agent's contracting_docgen.py. Binary rendering
// (DOCX/XLSX encoding) is explicitly out of scope (spec section 1: "the
// rendered file format is not specified") and is left behind the narrow
// Renderer seam; this package owns the context shape, the budget
// normalization arithmetic, and the output key convention.
package docgen

import (
	"fmt"
	"strings"
	"time"
)

// RenderInputs carries caller-supplied overrides merged into the base
// context, mirroring render_contract_docx's render_inputs parameter.
type RenderInputs map[string]any

// RenderContext is the full template context handed to a Renderer
// (contracting_docgen.py's render_contract_docx context dict).
type RenderContext struct {
	Case         map[string]any `json:"case"`
	KeyTerms     map[string]any `json:"keyTerms"`
	Proposal     map[string]any `json:"proposal"`
	RFP          map[string]any `json:"rfp"`
	Company      map[string]any `json:"company"`
	RenderInputs RenderInputs   `json:"renderInputs"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// NewRenderContext builds a RenderContext the way render_contract_docx does:
// renderInputs entries override the base context except for the four
// reserved keys (case, proposal, rfp, company).
func NewRenderContext(caseData, proposal, rfp, company, keyTerms map[string]any, renderInputs RenderInputs, generatedAt time.Time) RenderContext {
	rc := RenderContext{
		Case:         orEmpty(caseData),
		KeyTerms:     orEmpty(keyTerms),
		Proposal:     orEmpty(proposal),
		RFP:          orEmpty(rfp),
		Company:      orEmpty(company),
		RenderInputs: RenderInputs{},
		GeneratedAt:  generatedAt,
	}
	reserved := map[string]struct{}{"case": {}, "proposal": {}, "rfp": {}, "company": {}}
	for k, v := range renderInputs {
		if _, skip := reserved[k]; skip {
			continue
		}
		rc.RenderInputs[k] = v
	}
	return rc
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Preview is a lightweight summary a caller can show before committing a
// generated artifact to the object store.
type Preview struct {
	Kind        string `json:"kind"`
	GeneratedAt string `json:"generatedAt"`
	Summary     string `json:"summary"`
}

// objectKey builds the stable output-key namespace contracting_docgen.py's
// _contract_output_key uses: "contracting/{caseId}/{kind}/{timestamp}_{ext}".
func objectKey(caseID, kind, ext string, now time.Time) string {
	ts := now.UTC().Format("20060102T150405Z")
	key := fmt.Sprintf("contracting/%s/%s/%s_%s", strings.TrimSpace(caseID), kind, ts, ext)
	return strings.ReplaceAll(key, "//", "/")
}

package docgen

import (
	"context"
	"fmt"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

const (
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Renderer turns a populated context into bytes. The concrete DOCX/XLSX
// encoding is out of scope for this system (spec section 1); callers supply
// whichever template engine their deployment uses.
type Renderer interface {
	RenderDOCX(ctx context.Context, templateBytes []byte, renderCtx RenderContext) ([]byte, error)
	RenderXLSXBudget(ctx context.Context, workbook BudgetWorkbook) ([]byte, error)
}

// Service persists Renderer output to the object store under the
// contracting/ namespace (contracting_docgen.py's render_contract_docx /
// generate_budget_xlsx).
type Service struct {
	Store    objectstore.Store
	Renderer Renderer
}

// NewService constructs a Service over store and renderer.
func NewService(store objectstore.Store, renderer Renderer) *Service {
	return &Service{Store: store, Renderer: renderer}
}

// ContractResult is the outcome of RenderContractDocx.
type ContractResult struct {
	DocxKey string `json:"docxS3Key"`
}

// RenderContractDocx renders templateBytes against renderCtx and writes the
// result under contracting/{caseId}/contract/.
func (s *Service) RenderContractDocx(ctx context.Context, caseID string, templateBytes []byte, renderCtx RenderContext) (ContractResult, error) {
	if caseID == "" {
		return ContractResult{}, toolerrors.New(toolerrors.KindUpstream, "case_id is required")
	}
	if len(templateBytes) == 0 {
		return ContractResult{}, toolerrors.New(toolerrors.KindUpstream, "template object is empty or missing")
	}

	out, err := s.Renderer.RenderDOCX(ctx, templateBytes, renderCtx)
	if err != nil {
		return ContractResult{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "failed to render DOCX template", err)
	}
	if len(out) == 0 {
		return ContractResult{}, toolerrors.New(toolerrors.KindUpstream, "rendered document was empty")
	}

	key := objectKey(caseID, "contract", "contract.docx", renderCtx.GeneratedAt)
	if err := s.Store.PutBytes(ctx, key, out, docxContentType); err != nil {
		return ContractResult{}, fmt.Errorf("docgen: store contract: %w", err)
	}
	return ContractResult{DocxKey: key}, nil
}

// BudgetResult is the outcome of GenerateBudgetXLSX.
type BudgetResult struct {
	XLSXKey string  `json:"xlsxS3Key"`
	Total   float64 `json:"total"`
}

// GenerateBudgetXLSX normalizes budgetModel, renders it, and writes the
// result under contracting/{caseId}/budget/.
func (s *Service) GenerateBudgetXLSX(ctx context.Context, caseID string, budgetModel map[string]any, now time.Time) (BudgetResult, error) {
	if caseID == "" {
		return BudgetResult{}, toolerrors.New(toolerrors.KindUpstream, "case_id is required")
	}

	workbook := NormalizeBudgetModel(budgetModel)
	workbook.GeneratedAt = now.UTC().Format(time.RFC3339)

	out, err := s.Renderer.RenderXLSXBudget(ctx, workbook)
	if err != nil {
		return BudgetResult{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "failed to render budget workbook", err)
	}

	key := objectKey(caseID, "budget", "budget.xlsx", now)
	if err := s.Store.PutBytes(ctx, key, out, xlsxContentType); err != nil {
		return BudgetResult{}, fmt.Errorf("docgen: store budget: %w", err)
	}
	return BudgetResult{XLSXKey: key, Total: workbook.Total}, nil
}

package docgen

// BudgetItem is a single normalized line item (generate_budget_xlsx's
// norm_items entry).
type BudgetItem struct {
	Phase string  `json:"phase"`
	Name  string  `json:"name"`
	Role  string  `json:"role"`
	Rate  float64 `json:"rate"`
	Hours float64 `json:"hours"`
	Cost  float64 `json:"cost"`
	Notes string  `json:"notes"`
}

// BudgetWorkbook is the three-sheet shape (Summary, Line Items, Assumptions
// & Notes) a Renderer turns into an XLSX workbook (generate_budget_xlsx).
type BudgetWorkbook struct {
	GeneratedAt string       `json:"generatedAt"`
	Currency    string       `json:"currency"`
	Items       []BudgetItem `json:"items"`
	Notes       string       `json:"notes"`
	Total       float64      `json:"total"`
}

// NormalizeBudgetModel replicates generate_budget_xlsx's item normalization:
// a missing name falls back to role, hours falls back to qty when unset,
// and cost is derived as rate*hours when not supplied directly.
func NormalizeBudgetModel(model map[string]any) BudgetWorkbook {
	currency := "USD"
	if c, ok := model["currency"].(string); ok && c != "" {
		currency = c
	}
	notes, _ := model["notes"].(string)

	rawItems, _ := model["items"].([]any)
	items := make([]BudgetItem, 0, len(rawItems))
	var total float64
	for _, raw := range rawItems {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role := stringField(entry, "role")
		phase := stringField(entry, "phase")
		name := stringField(entry, "name")
		if name == "" {
			name = role
		}
		if name == "" {
			name = "Line item"
		}
		rate := numberField(entry, "rate")
		hours := numberField(entry, "hours")
		qty := numberField(entry, "qty")
		if hours <= 0 && qty > 0 {
			hours = qty
		}
		cost := numberField(entry, "cost")
		if cost <= 0 && rate > 0 && hours > 0 {
			cost = rate * hours
		}
		items = append(items, BudgetItem{
			Phase: phase, Name: name, Role: role, Rate: rate, Hours: hours, Cost: cost, Notes: stringField(entry, "notes"),
		})
		total += cost
	}

	return BudgetWorkbook{Currency: currency, Items: items, Notes: notes, Total: total}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

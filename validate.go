package sheetstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 \-()]{6,19}$`)
	gstinRe = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	panRe   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	urlRe   = regexp.MustCompile(`^https?://[^\s]+$`)
)

var isoCurrencies = map[string]bool{
	"AED": true, "AUD": true, "CAD": true, "CHF": true, "CNY": true,
	"EUR": true, "GBP": true, "HKD": true, "INR": true, "JPY": true,
	"NZD": true, "SGD": true, "USD": true, "ZAR": true,
}

type tableRules struct {
	required []string
	enums    map[string][]string
	cross    func(Record) []string
}

var rulesByTable = map[string]tableRules{
	TableProjects: {
		required: []string{"name", "client_id", "status"},
		enums: map[string][]string{
			"status": {"planning", "active", "on_hold", "completed", "cancelled"},
		},
	},
	TableTasks: {
		required: []string{"project_id", "name", "status"},
		enums: map[string][]string{
			"status":   {"todo", "in_progress", "review", "done"},
			"priority": {"low", "medium", "high", "urgent"},
		},
	},
	TableClients: {
		required: []string{"name", "email"},
	},
	TableInvoices: {
		required: []string{"client_id", "invoice_number", "status", "issue_date", "due_date"},
		enums: map[string][]string{
			"status": {"draft", "sent", "paid", "overdue", "cancelled"},
		},
		cross: invoiceCrossChecks,
	},
	TableTimeEntries: {
		required: []string{"project_id", "entry_date", "hours"},
	},
	TableExpenses: {
		required: []string{"project_id", "category", "amount", "expense_date"},
		enums: map[string][]string{
			"category": {"travel", "equipment", "software", "office", "meals", "other"},
		},
	},
}

func invoiceCrossChecks(rec Record) []string {
	var problems []string

	issue := rec.GetAsTime("issue_date", time.Time{})
	due := rec.GetAsTime("due_date", time.Time{})
	if !issue.IsZero() && !due.IsZero() && issue.After(due) {
		problems = append(problems, "issue_date must not be after due_date")
	}

	if _, ok := rec["total_amount"]; ok {
		subtotal := rec.GetAsFloat64("subtotal", 0)
		total := rec.GetAsFloat64("total_amount", 0)
		if total < subtotal {
			problems = append(problems, "total_amount must not be less than subtotal")
		}
	}
	return problems
}

// Validator checks records against generic shape rules and per-table domain
// rules. It always runs before a create, and before an update against the
// merged record so a partial patch cannot produce an invalid composite.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator bound to the given schema registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate returns nil if rec is acceptable for table, or a *ValidationError
// listing every violated rule.
func (v *Validator) Validate(table string, rec Record) error {
	schema, err := v.registry.Get(table)
	if err != nil {
		return err
	}

	var problems []string
	for _, col := range schema.Columns {
		if col == "id" || col == "created_at" || col == "updated_at" {
			continue
		}
		val, ok := rec[col]
		if !ok || val == nil {
			continue
		}
		problems = append(problems, checkShape(col, val)...)
	}

	rules := rulesByTable[table]
	for _, col := range rules.required {
		if isEmptyValue(rec[col]) {
			problems = append(problems, fmt.Sprintf("%s is required", col))
		}
	}
	for col, allowed := range rules.enums {
		val, ok := rec[col]
		if !ok || val == nil {
			continue
		}
		s := rec.GetAsString(col, "")
		found := false
		for _, a := range allowed {
			if s == a {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("%s must be one of %s", col, strings.Join(allowed, ", ")))
		}
	}
	if rules.cross != nil {
		problems = append(problems, rules.cross(rec)...)
	}

	if len(problems) > 0 {
		return &ValidationError{Table: table, Problems: problems}
	}
	return nil
}

// checkShape applies the cross-table generic checks driven by column name.
func checkShape(col string, val interface{}) []string {
	var problems []string

	if s, ok := val.(string); ok && s != "" {
		switch {
		case strings.Contains(col, "email"):
			if !emailRe.MatchString(s) {
				problems = append(problems, fmt.Sprintf("%s is not a valid email address", col))
			}
		case strings.Contains(col, "phone"):
			if !phoneRe.MatchString(s) {
				problems = append(problems, fmt.Sprintf("%s is not a valid phone number", col))
			}
		case strings.Contains(col, "gstin"):
			if !gstinRe.MatchString(s) {
				problems = append(problems, fmt.Sprintf("%s is not a valid GSTIN", col))
			}
		case strings.Contains(col, "pan"):
			if !panRe.MatchString(s) {
				problems = append(problems, fmt.Sprintf("%s is not a valid PAN", col))
			}
		case col == "currency":
			if !isoCurrencies[s] {
				problems = append(problems, fmt.Sprintf("%s is not a recognized ISO currency code", col))
			}
		case strings.Contains(col, "website") || strings.Contains(col, "url"):
			if !urlRe.MatchString(s) {
				problems = append(problems, fmt.Sprintf("%s is not a valid URL", col))
			}
		case isDateColumn(col):
			if !parseableDate(s) {
				problems = append(problems, fmt.Sprintf("%s is not a parseable date", col))
			}
		}
	}

	if isNumericColumn(col) {
		switch n := val.(type) {
		case float64:
			if n < 0 {
				problems = append(problems, fmt.Sprintf("%s must not be negative", col))
			}
		case int:
			if n < 0 {
				problems = append(problems, fmt.Sprintf("%s must not be negative", col))
			}
		}
	}

	return problems
}

func parseableDate(s string) bool {
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

package sheetstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Predicate is one filter condition. A Query applies its predicates as a
// conjunction: a record matches only if every predicate holds.
type Predicate struct {
	Column   string
	Operator string // eq, ne, gt, gte, lt, lte, contains, in
	Value    interface{}
}

// Sort orders the filtered result set by one column.
type Sort struct {
	Column     string
	Descending bool
}

// Query filters, sorts, and pages over one table.
type Query struct {
	Predicates []Predicate
	Sort       *Sort
	Offset     int
	Limit      int // 0 means no limit
}

var validOperators = []string{"eq", "ne", "gt", "gte", "lt", "lte", "contains", "in"}

// ValidateQuery rejects malformed queries before any remote work happens.
func ValidateQuery(q Query) error {
	for i, p := range q.Predicates {
		if p.Column == "" {
			return fmt.Errorf("empty column name in predicate %d", i)
		}
		valid := false
		for _, op := range validOperators {
			if p.Operator == op {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid operator %q in predicate %d", p.Operator, i)
		}
		if p.Operator == "in" {
			switch p.Value.(type) {
			case []interface{}, []string:
			default:
				return fmt.Errorf("operator \"in\" requires a list value in predicate %d", i)
			}
		}
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	return nil
}

// Matches reports whether rec satisfies every predicate of q.
func (q Query) Matches(rec Record) bool {
	for _, p := range q.Predicates {
		if !evalPredicate(rec, p) {
			return false
		}
	}
	return true
}

func evalPredicate(rec Record, p Predicate) bool {
	value := rec[p.Column]

	switch p.Operator {
	case "eq":
		return compareEqual(value, p.Value)
	case "ne":
		return !compareEqual(value, p.Value)
	case "gt":
		return ordered(value, p.Value) && compareValues(value, p.Value) > 0
	case "gte":
		return ordered(value, p.Value) && compareValues(value, p.Value) >= 0
	case "lt":
		return ordered(value, p.Value) && compareValues(value, p.Value) < 0
	case "lte":
		return ordered(value, p.Value) && compareValues(value, p.Value) <= 0
	case "contains":
		return strings.Contains(
			strings.ToLower(stringify(value)),
			strings.ToLower(stringify(p.Value)),
		)
	case "in":
		return evalIn(value, p.Value)
	default:
		return false
	}
}

func evalIn(value, list interface{}) bool {
	switch items := list.(type) {
	case []interface{}:
		for _, item := range items {
			if compareEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if compareEqual(value, item) {
				return true
			}
		}
	}
	return false
}

func compareEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if isNumeric(a) && isNumeric(b) {
		return toFloat64(a) == toFloat64(b)
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
	}
	return stringify(a) == stringify(b)
}

// ordered reports whether a and b can be compared with <, > operators:
// both numeric, both times, or both plain strings.
func ordered(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	if isNumeric(a) && isNumeric(b) {
		return true
	}
	if _, aok := a.(time.Time); aok {
		if _, bok := b.(time.Time); bok {
			return true
		}
	}
	_, aok := a.(string)
	_, bok := b.(string)
	return aok && bok
}

// compareValues returns -1, 0, or 1. Numeric pairs compare numerically,
// time pairs chronologically, everything else as strings.
func compareValues(a, b interface{}) int {
	if isNumeric(a) && isNumeric(b) {
		af, bf := toFloat64(a), toFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(TimeLayout)
	}
	return fmt.Sprintf("%v", v)
}

// ApplyQuery runs q over records: filter, then stable sort, then
// offset/limit slicing. The input slice is never modified.
func ApplyQuery(records []Record, q Query) []Record {
	results := make([]Record, 0, len(records))
	for _, rec := range records {
		if q.Matches(rec) {
			results = append(results, rec)
		}
	}

	if q.Sort != nil {
		col := q.Sort.Column
		sort.SliceStable(results, func(i, j int) bool {
			c := compareValues(results[i][col], results[j][col])
			if q.Sort.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset >= len(results) {
		return []Record{}
	}
	if q.Offset > 0 {
		results = results[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results
}

package sheetstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format written to cells: ISO-8601 with
// millisecond precision, matching what the sheets already hold.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one logical entity instance: column name -> value. Values are
// one of string, float64, bool, time.Time, []string, nil, or a structured
// value ([]any / map[string]any) stored as JSON text in its cell.
type Record map[string]interface{}

// Clone returns a shallow copy so callers can mutate without aliasing.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge applies patch over r and returns the result. A nil patch value
// clears the field. r itself is not modified.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// GetAsString returns the value as string or defaultValue if not found.
func (r Record) GetAsString(col string, defaultValue string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.Format(TimeLayout)
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GetAsFloat64 returns the value as float64 or defaultValue if not found.
func (r Record) GetAsFloat64(col string, defaultValue float64) float64 {
	v, ok := r[col]
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetAsBool returns the value as bool or defaultValue if not found.
func (r Record) GetAsBool(col string, defaultValue bool) bool {
	v, ok := r[col]
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "TRUE" || val == "1"
	case float64:
		return val != 0
	case int:
		return val != 0
	}
	return defaultValue
}

// GetAsTime returns the value as time.Time or defaultValue if not found.
func (r Record) GetAsTime(col string, defaultValue time.Time) time.Time {
	v, ok := r[col]
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	}
	return defaultValue
}

// GetAsStrings returns the value as []string or defaultValue if not found.
func (r Record) GetAsStrings(col string, defaultValue []string) []string {
	v, ok := r[col]
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			result[i] = fmt.Sprintf("%v", item)
		}
		return result
	}
	return defaultValue
}

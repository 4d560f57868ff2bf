package sheetstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row codec: converts a Record to and from the flat ordered cell list that
// backs it. Cells are strings only; an empty string is null. Decoding infers
// types from column-name conventions so that rows written by hand or by
// older code still read back sensibly, and it never fails: a cell that does
// not fit its column's convention passes through as a plain string or a zero
// value rather than aborting the whole read.

// EncodeRow renders a record as one physical row following the column order.
// Missing fields and nils become empty cells.
func EncodeRow(rec Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = encodeCell(rec[col])
	}
	return row
}

func encodeCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format(TimeLayout)
	case []string, []interface{}, map[string]interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DecodeRow parses one physical row back into a record. Empty cells are
// omitted from the record (null). Rows shorter than the column list are
// tolerated; trailing cells beyond it are ignored.
func DecodeRow(row []string, columns []string) Record {
	rec := make(Record, len(columns))
	for i, col := range columns {
		if i >= len(row) {
			break
		}
		cell := row[i]
		if cell == "" {
			continue
		}
		rec[col] = decodeCell(col, cell)
	}
	return rec
}

func decodeCell(col, cell string) interface{} {
	switch {
	case isListColumn(col):
		var list []interface{}
		if err := json.Unmarshal([]byte(cell), &list); err == nil {
			out := make([]string, len(list))
			for i, item := range list {
				out[i] = fmt.Sprintf("%v", item)
			}
			return out
		}
		// Legacy rows hold comma-separated values instead of JSON.
		parts := strings.Split(cell, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts

	case strings.HasPrefix(col, "is_"):
		return cell == "TRUE" || cell == "true" || cell == "1"

	case isDateColumn(col):
		for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, cell); err == nil {
				return t
			}
		}
		// Unparsable legacy dates pass through unchanged.
		return cell

	case isNumericColumn(col):
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return float64(0)
		}
		return f

	case cell == "TRUE":
		return true
	case cell == "FALSE":
		return false

	default:
		return cell
	}
}

func isListColumn(col string) bool {
	return col == "tags" || col == "dependencies"
}

func isDateColumn(col string) bool {
	return strings.Contains(col, "date") || strings.Contains(col, "_at")
}

var numericHints = []string{"amount", "budget", "hours", "rate", "subtotal", "total"}

func isNumericColumn(col string) bool {
	for _, hint := range numericHints {
		if strings.Contains(col, hint) {
			return true
		}
	}
	return false
}

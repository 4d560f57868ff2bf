package sheetstore

import (
	"context"
	"fmt"
)

// AggregateOp names a reduction over one table.
type AggregateOp string

const (
	AggCount AggregateOp = "count"
	AggSum   AggregateOp = "sum"
	AggAvg   AggregateOp = "avg"
	AggMin   AggregateOp = "min"
	AggMax   AggregateOp = "max"
)

// Aggregate reads the whole table and reduces it. The field is coerced to
// float64 with unparsable values counted as 0 for every op, min/max
// included, so a 0 minimum over sparse data may be a coercion artifact.
func (s *Store) Aggregate(ctx context.Context, table string, op AggregateOp, field string) (float64, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return 0, err
	}
	if op != AggCount && field == "" {
		return 0, fmt.Errorf("aggregate %q on %q requires a field", op, table)
	}

	records, _, err := s.loadTable(ctx, schema)
	if err != nil {
		return 0, err
	}

	switch op {
	case AggCount:
		return float64(len(records)), nil
	case AggSum, AggAvg:
		var sum float64
		for _, rec := range records {
			sum += rec.GetAsFloat64(field, 0)
		}
		if op == AggAvg {
			if len(records) == 0 {
				return 0, nil
			}
			return sum / float64(len(records)), nil
		}
		return sum, nil
	case AggMin, AggMax:
		if len(records) == 0 {
			return 0, nil
		}
		best := records[0].GetAsFloat64(field, 0)
		for _, rec := range records[1:] {
			v := rec.GetAsFloat64(field, 0)
			if (op == AggMin && v < best) || (op == AggMax && v > best) {
				best = v
			}
		}
		return best, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate op %q", op)
	}
}

package normalize

import (
	"time"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/errors"
)

// Result is the portable outcome of one query.
type Result struct {
	Records       []Record      `json:"records"`
	RowCount      int           `json:"row_count"`
	ExecutionTime time.Duration `json:"execution_time_ns"`
}

// ExecutionMillis reports ExecutionTime in fractional milliseconds.
func (r Result) ExecutionMillis() float64 {
	return float64(r.ExecutionTime) / float64(time.Millisecond)
}

// FromRaw converts an adapter result into portable records.
// A nil raw result yields an empty result.
func FromRaw(raw *backend.RawResult, elapsed time.Duration) (Result, error) {
	res := Result{Records: []Record{}, ExecutionTime: elapsed}
	if raw == nil {
		return res, nil
	}

	switch raw.Shape {
	case backend.ShapeRows:
		recs, err := zipRows(raw.Columns, raw.Rows)
		if err != nil {
			return Result{}, err
		}
		res.Records = recs
	case backend.ShapeAffected:
		res.Records = []Record{{{Name: "affected_rows", Value: raw.RowsAffected}}}
	case backend.ShapeDocuments:
		res.Records = Records(raw.Documents)
	case backend.ShapeScalar:
		name := raw.ScalarName
		if name == "" {
			name = "result"
		}
		res.Records = []Record{{{Name: name, Value: Value(raw.Scalar)}}}
	default:
		return Result{}, errors.Newf(errors.Normalization, "unknown result shape %d", raw.Shape)
	}
	res.RowCount = len(res.Records)
	return res, nil
}

func zipRows(columns []string, rows [][]any) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Newf(errors.Normalization,
				"row %d has %d values for %d columns", i, len(row), len(columns))
		}
		rec := make(Record, len(columns))
		for j, col := range columns {
			rec[j] = Field{Name: col, Value: Value(row[j])}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Records converts documents into records. Values that are not documents are
// wrapped as {value: v}.
func Records(docs []any) []Record {
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		switch v := Value(d).(type) {
		case Record:
			out = append(out, v)
		default:
			out = append(out, Record{{Name: "value", Value: v}})
		}
	}
	return out
}

package detector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/driftdetect/backend/pkg/logger"
)

// ListSeparator joins the elements of list-valued columns before comparison.
const ListSeparator = "|"

// ErrNonStringListElement is returned when a list-valued column holds
// anything other than strings. Expectation tables only describe string lists.
var ErrNonStringListElement = errors.New("list column contains a non-string element")

// Record is the drift report for one row: each column name mapped to the
// value the query returned for it.
type Record map[string]any

// Run returns a lazy sequence of drift records. The validation query is
// executed when iteration starts, and each row is checked as it is pulled
// from the session; a record is yielded for every row whose normalized values
// match no expectation. Query and cursor errors are yielded as they are,
// after which the sequence ends. Stopping iteration early stops reading rows.
func (d *Definition) Run(ctx context.Context, session Session) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		logger.Debug("Running validation", zap.String("detector", d.name))

		results, err := session.ExecuteQuery(ctx, d.validationQuery)
		if err != nil {
			yield(nil, err)
			return
		}

		for results.Next(ctx) {
			row := results.Row()

			values, err := normalize(row.Values())
			if err != nil {
				yield(nil, err)
				return
			}
			if d.expects(values) {
				continue
			}
			if !yield(buildRecord(row), nil) {
				return
			}
		}

		if err := results.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// normalize flattens list-valued columns to ListSeparator-joined strings and
// passes every other value through untouched.
func normalize(fields []any) ([]any, error) {
	values := make([]any, 0, len(fields))
	for i, field := range fields {
		switch v := field.(type) {
		case []string:
			values = append(values, strings.Join(v, ListSeparator))
		case []any:
			parts := make([]string, len(v))
			for j, elem := range v {
				s, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("column %d element %d (%T): %w", i, j, elem, ErrNonStringListElement)
				}
				parts[j] = s
			}
			values = append(values, strings.Join(parts, ListSeparator))
		default:
			values = append(values, field)
		}
	}
	return values, nil
}

// buildRecord projects the row's original values, lists included, by column name.
func buildRecord(row Row) Record {
	keys := row.Keys()
	rec := make(Record, len(keys))
	for _, k := range keys {
		v, _ := row.Get(k)
		rec[k] = v
	}
	return rec
}

// Drain consumes seq and returns the records it produced. On error the
// records yielded before it are returned alongside it.
func Drain(seq iter.Seq2[Record, error]) ([]Record, error) {
	var records []Record
	for rec, err := range seq {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

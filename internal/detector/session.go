package detector

import "context"

// Session executes read-only queries against the graph. A Session is not
// assumed to be safe for concurrent use; run one detector per Session.
type Session interface {
	ExecuteQuery(ctx context.Context, query string) (Result, error)
}

// Result is a forward-only cursor over the rows a query returned.
type Result interface {
	Next(ctx context.Context) bool
	Row() Row
	// Err reports the error that stopped iteration, if any.
	Err() error
}

// Row is one result record. Values and Keys are in column order.
type Row interface {
	Keys() []string
	Values() []any
	Get(key string) (any, bool)
}

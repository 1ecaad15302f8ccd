package detector

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Definition describes one drift check: a query and the value tuples its
// rows are expected to produce. It is read-only after construction and may
// be run any number of times.
type Definition struct {
	name            string
	validationQuery string
	kind            Kind
	expectations    [][]string
	index           map[string]struct{}
}

// New builds a Definition from its parts. Nothing is validated; expectation
// rows are kept in the order given, duplicates included.
func New(name, validationQuery string, expectations [][]string, kind Kind) *Definition {
	d := &Definition{
		name:            name,
		validationQuery: validationQuery,
		kind:            kind,
		expectations:    make([][]string, len(expectations)),
		index:           make(map[string]struct{}, len(expectations)),
	}
	for i, row := range expectations {
		d.expectations[i] = append([]string(nil), row...)
		d.index[tupleKey(row)] = struct{}{}
	}
	return d
}

func (d *Definition) Name() string {
	return d.name
}

func (d *Definition) ValidationQuery() string {
	return d.validationQuery
}

func (d *Definition) Kind() Kind {
	return d.kind
}

// Expectations returns a copy of the expectation rows.
func (d *Definition) Expectations() [][]string {
	out := make([][]string, len(d.expectations))
	for i, row := range d.expectations {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// expects reports whether values equals some expectation row position by
// position. A non-string value never matches.
func (d *Definition) expects(values []any) bool {
	strs := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return false
		}
		strs[i] = s
	}
	_, ok := d.index[tupleKey(strs)]
	return ok
}

// tupleKey length-prefixes each element so that distinct tuples never share
// a key, whatever characters the elements contain.
func tupleKey(tuple []string) string {
	var b strings.Builder
	for _, s := range tuple {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// MarshalJSON encodes the definition in the document format LoadFromFile reads.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		Name:            d.name,
		ValidationQuery: d.validationQuery,
		DetectorType:    json.Number(strconv.Itoa(d.kind.Code())),
		Expectations:    d.expectations,
	})
}

// Package shapes collapses the response bodies module backends return into
// one ordered list of rows.
package shapes

import (
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Shape names, in the order they are tried by default.
const (
	ShapeBareArray    = "bare_array"
	ShapeBatchResults = "batch_results"
	ShapeDataArray    = "data_array"
	ShapeRowsArray    = "rows_array"
	ShapeResultsArray = "results_array"
	ShapeNone         = "none"
)

// DefaultPriority is the order response shapes are matched in. First match wins.
var DefaultPriority = []string{
	ShapeBareArray,
	ShapeBatchResults,
	ShapeDataArray,
	ShapeRowsArray,
	ShapeResultsArray,
}

// Diagnostic codes.
const (
	DiagShapeMismatch      = "shape_mismatch"
	DiagPrimaryFallback    = "primary_fallback"
	DiagPrimaryMissing     = "primary_missing"
	DiagPrimaryDataMissing = "primary_data_missing"
	DiagNonObjectRow       = "non_object_row"
)

type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query tells the normalizer how the request was sent.
type Query struct {
	Multiple  bool
	PrimaryID string
}

// Batch describes the entry picked from a batch results map.
type Batch struct {
	Requested     string `json:"requested"`
	QueryID       string `json:"query_id"`
	FellBack      bool   `json:"fell_back"`
	RowCount      int64  `json:"row_count"`
	ExecutionTime string `json:"execution_time,omitempty"`
	TotalQueries  int64  `json:"total_queries"`
}

type Result struct {
	Rows        []Row
	Shape       string
	Diagnostics []Diagnostic
	Batch       *Batch
}

// DecodeError is returned when the body is not JSON at all.
type DecodeError struct {
	Snippet string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("response is not valid JSON: %q", e.Snippet)
}

// Document is a parsed top-level response body.
type Document struct {
	Body []byte
	Type jsonparser.ValueType
}

// Matcher recognizes one response shape.
type Matcher interface {
	Name() string
	Match(doc Document, q Query) (Result, bool)
}

type matcherFunc struct {
	name string
	fn   func(doc Document, q Query) (Result, bool)
}

func (m matcherFunc) Name() string { return m.name }

func (m matcherFunc) Match(doc Document, q Query) (Result, bool) { return m.fn(doc, q) }

var builtin = map[string]Matcher{
	ShapeBareArray:    matcherFunc{ShapeBareArray, matchBareArray},
	ShapeBatchResults: matcherFunc{ShapeBatchResults, matchBatchResults},
	ShapeDataArray:    keyedArray(ShapeDataArray, "data"),
	ShapeRowsArray:    keyedArray(ShapeRowsArray, "rows"),
	ShapeResultsArray: keyedArray(ShapeResultsArray, "results"),
}

type Normalizer struct {
	matchers []Matcher
}

// New builds a normalizer that tries the named shapes in the given order.
// With no names it uses DefaultPriority.
func New(priority ...string) (*Normalizer, error) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	n := &Normalizer{}
	for _, name := range priority {
		m, ok := builtin[name]
		if !ok {
			return nil, errors.Errorf("unknown response shape %q", name)
		}
		n.matchers = append(n.matchers, m)
	}
	return n, nil
}

// Default is the normalizer with DefaultPriority.
func Default() *Normalizer {
	n, _ := New()
	return n
}

func (n *Normalizer) Priority() []string {
	out := make([]string, len(n.matchers))
	for i, m := range n.matchers {
		out[i] = m.Name()
	}
	return out
}

// Normalize extracts the rows of body. Unrecognized shapes yield no rows and a
// diagnostic; only a body that is not JSON returns an error.
func (n *Normalizer) Normalize(body []byte, q Query) (Result, error) {
	if !json.Valid(body) {
		return Result{Rows: []Row{}, Shape: ShapeNone}, &DecodeError{Snippet: snippet(body)}
	}
	_, t, _, err := jsonparser.Get(body)
	if err != nil {
		return Result{Rows: []Row{}, Shape: ShapeNone}, &DecodeError{Snippet: snippet(body)}
	}
	doc := Document{Body: body, Type: t}

	for _, m := range n.matchers {
		res, ok := m.Match(doc, q)
		if !ok {
			continue
		}
		res.Shape = m.Name()
		if res.Rows == nil {
			res.Rows = []Row{}
		}
		return res, nil
	}
	return Result{
		Rows:  []Row{},
		Shape: ShapeNone,
		Diagnostics: []Diagnostic{{
			Code:    DiagShapeMismatch,
			Message: "response matched no known shape: " + describe(doc),
		}},
	}, nil
}

func matchBareArray(doc Document, _ Query) (Result, bool) {
	if doc.Type != jsonparser.Array {
		return Result{}, false
	}
	rows, diags := parseRows(doc.Body)
	return Result{Rows: rows, Diagnostics: diags}, true
}

func keyedArray(name, key string) Matcher {
	return matcherFunc{name: name, fn: func(doc Document, _ Query) (Result, bool) {
		if doc.Type != jsonparser.Object {
			return Result{}, false
		}
		arr, t, _, err := jsonparser.Get(doc.Body, key)
		if err != nil || t != jsonparser.Array {
			return Result{}, false
		}
		rows, diags := parseRows(arr)
		return Result{Rows: rows, Diagnostics: diags}, true
	}}
}

func matchBatchResults(doc Document, q Query) (Result, bool) {
	if !q.Multiple || doc.Type != jsonparser.Object {
		return Result{}, false
	}
	results, t, _, err := jsonparser.Get(doc.Body, "results")
	if err != nil || t != jsonparser.Object {
		return Result{}, false
	}

	var keys []string
	entries := map[string][]byte{}
	_ = jsonparser.ObjectEach(results, func(key []byte, value []byte, _ jsonparser.ValueType, _ int) error {
		k := string(key)
		keys = append(keys, k)
		entries[k] = append([]byte(nil), value...)
		return nil
	})

	batch := &Batch{Requested: q.PrimaryID}
	if total, err := jsonparser.GetInt(doc.Body, "totalQueries"); err == nil {
		batch.TotalQueries = total
	}
	res := Result{Rows: []Row{}, Batch: batch}

	entry, ok := entries[q.PrimaryID]
	if ok && q.PrimaryID != "" {
		batch.QueryID = q.PrimaryID
	} else {
		if len(keys) == 0 {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:    DiagPrimaryMissing,
				Message: "batch response has no results",
			})
			return res, true
		}
		batch.QueryID = keys[0]
		batch.FellBack = true
		entry = entries[keys[0]]
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Code:    DiagPrimaryFallback,
			Message: fmt.Sprintf("primary query %q not in results, showing %q", q.PrimaryID, keys[0]),
		})
	}

	if n, err := jsonparser.GetInt(entry, "rowCount"); err == nil {
		batch.RowCount = n
	}
	if v, vt, _, err := jsonparser.Get(entry, "executionTime"); err == nil {
		if val, ok := newValue(v, vt); ok && !val.IsNull() {
			batch.ExecutionTime = val.String()
		}
	}

	data, dt, _, err := jsonparser.Get(entry, "data")
	if err != nil || dt != jsonparser.Array {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Code:    DiagPrimaryDataMissing,
			Message: fmt.Sprintf("result %q has no data array", batch.QueryID),
		})
		return res, true
	}
	rows, diags := parseRows(data)
	res.Rows = rows
	res.Diagnostics = append(res.Diagnostics, diags...)
	return res, true
}

func parseRows(arr []byte) ([]Row, []Diagnostic) {
	rows := []Row{}
	skipped := 0
	index := 0
	_, _ = jsonparser.ArrayEach(arr, func(value []byte, t jsonparser.ValueType, _ int, err error) {
		defer func() { index++ }()
		if err != nil || t != jsonparser.Object {
			skipped++
			return
		}
		row, perr := parseRow(value)
		if perr != nil {
			skipped++
			return
		}
		rows = append(rows, row)
	})
	if skipped == 0 {
		return rows, nil
	}
	return rows, []Diagnostic{{
		Code:    DiagNonObjectRow,
		Message: fmt.Sprintf("skipped %d of %d entries that are not objects", skipped, index),
	}}
}

func describe(doc Document) string {
	if doc.Type != jsonparser.Object {
		return "top-level " + doc.Type.String()
	}
	var keys []string
	_ = jsonparser.ObjectEach(doc.Body, func(key []byte, _ []byte, t jsonparser.ValueType, _ int) error {
		keys = append(keys, string(key)+":"+t.String())
		return nil
	})
	return "object{" + strings.Join(keys, ",") + "}"
}

func snippet(body []byte) string {
	const limit = 120
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

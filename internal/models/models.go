package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeLayout is the canonical UTC timestamp form used in request parameters
// and page constraints.
const TimeLayout = "2006-01-02T15:04:05Z"

var (
	// ErrFetchFailure marks an upstream request that failed or returned an
	// error payload.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrParseFailure marks a response body that is not a well-formed table.
	ErrParseFailure = errors.New("parse failure")
)

// Table is one parsed upstream response. Column order is authoritative for
// record field order.
type Table struct {
	ColumnNames []string
	Rows        [][]any
}

// Record is an ordered mapping from field name to scalar value. Values are
// json.Number, float64, string, bool or nil. Records are not modified after
// construction.
type Record struct {
	names  []string
	values map[string]any
}

// NewRecord zips names with values. A repeated name keeps its first position
// and its last value.
func NewRecord(names []string, values []any) Record {
	r := Record{
		names:  make([]string, 0, len(names)),
		values: make(map[string]any, len(names)),
	}
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if _, ok := r.values[name]; !ok {
			r.names = append(r.names, name)
		}
		r.values[name] = v
	}
	return r
}

func (r Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Time parses the named field as an RFC 3339 timestamp.
func (r Record) Time(field string) (time.Time, error) {
	v, ok := r.values[field]
	if !ok {
		return time.Time{}, fmt.Errorf("missing time field %q", field)
	}
	return ParseTime(v)
}

// MarshalJSON encodes the record as an object with fields in record order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.values[name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseTime accepts an RFC 3339 string value.
func ParseTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("time value %v is not a string", v)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Float reports whether v is a finite number. NaN and infinities are not
// numbers here: they cannot be encoded as JSON.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && finite(f)
	case float64:
		return n, finite(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Text renders a scalar for tabular output. nil renders empty.
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// Page is one contiguous time sub-range requested as a single upstream fetch.
// Start is exclusive and End inclusive in the upstream constraint.
type Page struct {
	Start time.Time
	End   time.Time
}

func (p Page) String() string {
	return FormatTime(p.Start) + "/" + FormatTime(p.End)
}

// RangeFilter constrains a numeric field. A nil bound is not applied.
type RangeFilter struct {
	Field string
	Min   *float64
	Max   *float64
}

// Bounds are the retrieval limits for one session.
type Bounds struct {
	Since   time.Time
	Until   time.Time
	Filters []RangeFilter
}

package shapes

import (
	"bytes"

	"github.com/buger/jsonparser"
	json "github.com/goccy/go-json"
)

type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindNull
	KindObject
	KindArray
)

func kindOf(t jsonparser.ValueType) (Kind, bool) {
	switch t {
	case jsonparser.String:
		return KindString, true
	case jsonparser.Number:
		return KindNumber, true
	case jsonparser.Boolean:
		return KindBool, true
	case jsonparser.Null:
		return KindNull, true
	case jsonparser.Object:
		return KindObject, true
	case jsonparser.Array:
		return KindArray, true
	}
	return 0, false
}

// Value is a single JSON value of a row. Strings keep their escaped form.
type Value struct {
	Kind Kind
	raw  []byte
}

func newValue(raw []byte, t jsonparser.ValueType) (Value, bool) {
	k, ok := kindOf(t)
	if !ok {
		return Value{}, false
	}
	return Value{Kind: k, raw: append([]byte(nil), raw...)}, true
}

// StringValue builds a string value, mostly for tests and fixtures.
func StringValue(s string) Value {
	q := quote(s)
	return Value{Kind: KindString, raw: q[1 : len(q)-1]}
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// String is the generic stringification used for display. Strings are
// unescaped; everything else is its JSON text. Invalid escapes such as a
// lone surrogate become U+FFFD.
func (v Value) String() string {
	if v.Kind == KindString {
		s, err := jsonparser.ParseString(v.raw)
		if err != nil {
			return lenientUnquote(v.raw)
		}
		return s
	}
	return string(v.raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	if v.Kind == KindString {
		out := make([]byte, 0, len(v.raw)+2)
		out = append(out, '"')
		out = append(out, v.raw...)
		return append(out, '"'), nil
	}
	return v.raw, nil
}

type Field struct {
	Key   string
	Value Value
}

// Row is a record in the order the backend emitted its keys.
type Row []Field

func (r Row) Get(key string) (Value, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes the row as an object, keeping key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(quote(f.Key))
		buf.WriteByte(':')
		b, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func lenientUnquote(raw []byte) string {
	quoted := make([]byte, 0, len(raw)+2)
	quoted = append(quoted, '"')
	quoted = append(quoted, raw...)
	quoted = append(quoted, '"')
	var s string
	if err := json.Unmarshal(quoted, &s); err != nil {
		return string(raw)
	}
	return s
}

// parseRow keeps one field per key. A repeated key keeps its first position
// and takes the last value.
func parseRow(obj []byte) (Row, error) {
	row := Row{}
	seen := map[string]int{}
	err := jsonparser.ObjectEach(obj, func(key []byte, value []byte, t jsonparser.ValueType, _ int) error {
		v, ok := newValue(value, t)
		if !ok {
			return jsonparser.MalformedValueError
		}
		k := string(key)
		if i, dup := seen[k]; dup {
			row[i].Value = v
			return nil
		}
		seen[k] = len(row)
		row = append(row, Field{Key: k, Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func quote(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return b
}

package yaql

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/jondavid-black/advanced-yaml/yasl"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// Result is a rectangular query result: column labels plus row tuples in
// output order. Cell values keep their validated Go types; use DisplayValue
// or the JSON encoding to render them.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len returns the row count.
func (r *Result) Len() int { return len(r.Rows) }

// MarshalJSON renders the result as an array of row objects with keys in
// column order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range r.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(jsonValue(row[j]))
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// jsonValue maps a validated value to a JSON-encodable shape. Dates and
// quantities keep their source text; nested maps and records become objects.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x
	case yasl.Date:
		return x.String()
	case yasl.DateTime:
		return x.String()
	case yasl.ClockTime:
		return x.String()
	case unit.Quantity:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	case *yasl.Map:
		out := map[string]any{}
		for _, e := range x.Entries() {
			out[yasl.CanonicalString(e.Key)] = jsonValue(e.Val)
		}
		return out
	case *yasl.Record:
		out := map[string]any{}
		for _, name := range x.FieldNames() {
			fv, _ := x.Field(name)
			out[name] = jsonValue(fv)
		}
		return out
	default:
		return yasl.CanonicalString(v)
	}
}

// DisplayValue renders one cell for tabular output. Scalars keep their source
// form; collections and nested records render as compact JSON.
func DisplayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case yasl.Date:
		return x.String()
	case yasl.DateTime:
		return x.String()
	case yasl.ClockTime:
		return x.String()
	case unit.Quantity:
		return x.String()
	default:
		b, err := json.Marshal(jsonValue(v))
		if err != nil {
			return yasl.CanonicalString(v)
		}
		return string(b)
	}
}

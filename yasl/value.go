package yasl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// Validated field values are held as: string, int64, float64, bool, Date,
// DateTime, ClockTime, unit.Quantity, []any, *Map, or nested *Record. The
// wrappers keep the declared precision so comparison and export stay exact.

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
)

// Date is a calendar day without time-of-day.
type Date struct{ time.Time }

// DateTime is an RFC 3339 instant.
type DateTime struct{ time.Time }

// ClockTime is a time-of-day without a date.
type ClockTime struct{ time.Time }

func (d Date) String() string      { return d.Format(dateLayout) }
func (d DateTime) String() string  { return d.Format(time.RFC3339) }
func (c ClockTime) String() string { return c.Format(clockLayout) }

// ParseDate parses strict ISO-8601 calendar dates (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("want ISO-8601 date (YYYY-MM-DD)")
	}
	return Date{t}, nil
}

// ParseDateTime parses strict RFC 3339 instants. A trailing offset is
// required; lexically equal strings always round-trip.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("want ISO-8601 datetime (RFC 3339)")
	}
	return DateTime{t}, nil
}

// ParseClockTime parses strict HH:MM:SS times of day.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("want ISO-8601 time (HH:MM:SS)")
	}
	return ClockTime{t}, nil
}

// Map is an ordered key/value collection for map-typed properties. Keys are
// kept in document order for export.
type Map struct {
	entries []MapEntry
}

// MapEntry is one map entry.
type MapEntry struct {
	Key any
	Val any
}

// Len returns the entry count.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns the entries in document order.
func (m *Map) Entries() []MapEntry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Get looks up a value by key, matching on canonical form.
func (m *Map) Get(key any) (any, bool) {
	if m == nil {
		return nil, false
	}
	want := CanonicalString(key)
	for _, e := range m.entries {
		if CanonicalString(e.Key) == want {
			return e.Val, true
		}
	}
	return nil, false
}

func (m *Map) put(key, val any) { m.entries = append(m.entries, MapEntry{Key: key, Val: val}) }

// CanonicalString renders a scalar value in the form used for uniqueness
// registration, reference matching, and rule comparisons. Quantities
// canonicalize by base-unit magnitude so "1 km" and "1000 m" match.
func CanonicalString(v any) string {
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
	case Date:
		return x.String()
	case DateTime:
		return x.String()
	case ClockTime:
		return x.String()
	case unit.Quantity:
		return strconv.FormatFloat(x.Base(), 'g', -1, 64) + " " + dimKey(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func dimKey(q unit.Quantity) string {
	if n := q.DimensionName(); n != "" {
		return n
	}
	vec := q.Vector()
	parts := make([]string, len(vec))
	for i, e := range vec {
		parts[i] = strconv.Itoa(int(e))
	}
	return strings.Join(parts, ",")
}

// CompareValues orders two validated values of the same schema type,
// returning -1, 0, or +1. Integers and floats compare numerically across the
// two kinds; quantities compare by base-unit magnitude. A nil value sorts
// before any non-nil value.
func CompareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("cannot compare number with %T", b)
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", b)
		}
		return strings.Compare(x, y), nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare bool with %T", b)
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case Date:
		y, ok := b.(Date)
		if !ok {
			return 0, fmt.Errorf("cannot compare date with %T", b)
		}
		return x.Compare(y.Time), nil
	case DateTime:
		y, ok := b.(DateTime)
		if !ok {
			return 0, fmt.Errorf("cannot compare datetime with %T", b)
		}
		return x.Compare(y.Time), nil
	case ClockTime:
		y, ok := b.(ClockTime)
		if !ok {
			return 0, fmt.Errorf("cannot compare clocktime with %T", b)
		}
		return x.Compare(y.Time), nil
	case unit.Quantity:
		y, ok := b.(unit.Quantity)
		if !ok {
			return 0, fmt.Errorf("cannot compare quantity with %T", b)
		}
		return x.Cmp(y)
	default:
		return 0, fmt.Errorf("values of type %T do not order", a)
	}
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

package unit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// epsilon bounds the relative error tolerated when comparing converted
// magnitudes, so that a value expressed in two units compares equal.
const epsilon = 1e-9

// Error reports an unknown unit token or a dimension mismatch.
type Error struct {
	Text string // the literal being parsed, if any
	Want string // expected dimension name, "" when unconstrained
	Msg  string
}

func (e *Error) Error() string {
	if e.Want != "" && e.Text != "" {
		return fmt.Sprintf("%s: %s (want %s)", e.Text, e.Msg, e.Want)
	}
	if e.Text != "" {
		return fmt.Sprintf("%s: %s", e.Text, e.Msg)
	}
	return e.Msg
}

// Quantity is a parsed unit-bearing value. Mag and Unit preserve the source
// form for display and export; comparisons use the base-unit magnitude.
type Quantity struct {
	Mag  float64
	Unit string
	raw  string
	vec  Dimension
	base float64
}

// Parse reads a quantity literal of the form "<number> <unit>" (the space is
// optional). The unit token determines the dimension.
func Parse(text string) (Quantity, error) {
	s := strings.TrimSpace(text)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			i = k
		}
	}
	num, tok := s[:i], strings.TrimSpace(s[i:])
	if num == "" || tok == "" {
		return Quantity{}, &Error{Text: text, Msg: "malformed quantity, want \"<number> <unit>\""}
	}
	mag, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Quantity{}, &Error{Text: text, Msg: "malformed magnitude " + strconv.Quote(num)}
	}
	u, ok := units[tok]
	if !ok {
		return Quantity{}, &Error{Text: text, Msg: "unknown unit " + strconv.Quote(tok)}
	}
	vec := dimensions[u.dim]
	return Quantity{Mag: mag, Unit: tok, raw: s, vec: vec, base: mag*u.factor + u.offset}, nil
}

// ParseAs parses a quantity literal and requires it to carry the named
// dimension.
func ParseAs(text, dimension string) (Quantity, error) {
	want, ok := dimensions[dimension]
	if !ok {
		return Quantity{}, &Error{Text: text, Msg: "unknown dimension " + strconv.Quote(dimension)}
	}
	q, err := Parse(text)
	if err != nil {
		if ue, ok := err.(*Error); ok {
			ue.Want = dimension
		}
		return Quantity{}, err
	}
	if q.vec != want {
		return Quantity{}, &Error{Text: text, Want: dimension, Msg: "unit " + strconv.Quote(q.Unit) + " has dimension " + q.DimensionName()}
	}
	return q, nil
}

// Base returns the magnitude converted to the dimension's base unit.
func (q Quantity) Base() float64 { return q.base }

// Vector returns the quantity's dimension vector.
func (q Quantity) Vector() Dimension { return q.vec }

// DimensionName returns the canonical name of the quantity's dimension, or
// "" for an unnamed compound dimension.
func (q Quantity) DimensionName() string { return dimensionNames[q.vec] }

// Compatible reports whether both quantities share a dimension.
func (q Quantity) Compatible(o Quantity) bool { return q.vec == o.vec }

// String renders the quantity in its source form.
func (q Quantity) String() string {
	if q.raw != "" {
		return q.raw
	}
	return strconv.FormatFloat(q.Mag, 'g', -1, 64) + " " + q.Unit
}

func eq(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return diff <= epsilon*scale
}

// Cmp compares two quantities after conversion to base units, returning
// -1, 0, or +1. Quantities of different dimensions do not compare.
func (q Quantity) Cmp(o Quantity) (int, error) {
	if q.vec != o.vec {
		return 0, &Error{Msg: fmt.Sprintf("cannot compare %s with %s", dimName(q), dimName(o))}
	}
	if eq(q.base, o.base) {
		return 0, nil
	}
	if q.base < o.base {
		return -1, nil
	}
	return 1, nil
}

// Equal reports post-conversion equality within epsilon, so "1000 m" equals
// "1 km" regardless of the unit tokens.
func (q Quantity) Equal(o Quantity) bool {
	c, err := q.Cmp(o)
	return err == nil && c == 0
}

// MultipleOf reports whether q is an integer multiple of o after conversion
// to base units, within epsilon.
func (q Quantity) MultipleOf(o Quantity) (bool, error) {
	if q.vec != o.vec {
		return false, &Error{Msg: fmt.Sprintf("cannot compare %s with %s", dimName(q), dimName(o))}
	}
	if o.base == 0 {
		return false, &Error{Msg: "multiple_of zero"}
	}
	ratio := q.base / o.base
	return math.Abs(ratio-math.Round(ratio)) <= epsilon*math.Max(1, math.Abs(ratio)), nil
}

func dimName(q Quantity) string {
	if n := q.DimensionName(); n != "" {
		return n + " " + strconv.Quote(q.String())
	}
	return strconv.Quote(q.String())
}

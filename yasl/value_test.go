package yasl_test

import (
	"testing"

	"github.com/jondavid-black/advanced-yaml/yasl"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

func TestCompareValues(t *testing.T) {
	km, _ := unit.Parse("1 km")
	m1000, _ := unit.Parse("1000 m")
	m500, _ := unit.Parse("500 m")
	d1, _ := yasl.ParseDate("2024-01-01")
	d2, _ := yasl.ParseDate("2024-06-01")

	cases := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), float64(1.5), 1},
		{float64(2), int64(2), 0},
		{"apple", "banana", -1},
		{false, true, -1},
		{km, m1000, 0},
		{km, m500, 1},
		{d1, d2, -1},
		{nil, int64(1), -1},
		{nil, nil, 0},
	}
	for _, c := range cases {
		got, err := yasl.CompareValues(c.a, c.b)
		if err != nil {
			t.Fatalf("compare %v %v: %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("compare %v %v: want %d, got %d", c.a, c.b, c.want, got)
		}
	}
}

func TestCompareValues_TypeMismatch(t *testing.T) {
	if _, err := yasl.CompareValues("a", int64(1)); err == nil {
		t.Fatalf("expected an error comparing string with int")
	}
	q, _ := unit.Parse("1 kg")
	if _, err := yasl.CompareValues(q, "1 kg"); err == nil {
		t.Fatalf("expected an error comparing quantity with string")
	}
}

func TestCanonicalString_QuantitiesConverge(t *testing.T) {
	a, _ := unit.Parse("1 km")
	b, _ := unit.Parse("1000 m")
	if yasl.CanonicalString(a) != yasl.CanonicalString(b) {
		t.Fatalf("equal quantities must share a canonical form: %q vs %q",
			yasl.CanonicalString(a), yasl.CanonicalString(b))
	}
	c, _ := unit.Parse("1 kg")
	if yasl.CanonicalString(a) == yasl.CanonicalString(c) {
		t.Fatalf("different dimensions must not collide")
	}
}

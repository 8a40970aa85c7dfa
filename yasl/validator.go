package yasl

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// ValidatorKind discriminates the closed set of property-level constraints.
type ValidatorKind int

const (
	ValidatorGe ValidatorKind = iota + 1
	ValidatorGt
	ValidatorLe
	ValidatorLt
	ValidatorMultipleOf
	ValidatorExclude
	ValidatorStrMin
	ValidatorStrMax
	ValidatorStrRegex
	ValidatorListMin
	ValidatorListMax
	ValidatorPathExists
	ValidatorIsFile
	ValidatorIsDir
	ValidatorFileExt
	ValidatorURLProtocols
	ValidatorURLBase
	ValidatorURLReachable
)

// validatorOrder fixes the evaluation (and export) order of constraints,
// independent of the order they were written in the schema.
var validatorOrder = []ValidatorKind{
	ValidatorGe, ValidatorGt, ValidatorLe, ValidatorLt,
	ValidatorMultipleOf, ValidatorExclude,
	ValidatorStrMin, ValidatorStrMax, ValidatorStrRegex,
	ValidatorListMin, ValidatorListMax,
	ValidatorPathExists, ValidatorIsFile, ValidatorIsDir, ValidatorFileExt,
	ValidatorURLProtocols, ValidatorURLBase, ValidatorURLReachable,
}

var validatorKeys = map[ValidatorKind]string{
	ValidatorGe:           "ge",
	ValidatorGt:           "gt",
	ValidatorLe:           "le",
	ValidatorLt:           "lt",
	ValidatorMultipleOf:   "multiple_of",
	ValidatorExclude:      "exclude",
	ValidatorStrMin:       "str_min",
	ValidatorStrMax:       "str_max",
	ValidatorStrRegex:     "str_regex",
	ValidatorListMin:      "list_min",
	ValidatorListMax:      "list_max",
	ValidatorPathExists:   "path_exists",
	ValidatorIsFile:       "is_file",
	ValidatorIsDir:        "is_dir",
	ValidatorFileExt:      "file_ext",
	ValidatorURLProtocols: "url_protocols",
	ValidatorURLBase:      "url_base",
	ValidatorURLReachable: "url_reachable",
}

var validatorKinds = func() map[string]ValidatorKind {
	m := make(map[string]ValidatorKind, len(validatorKeys))
	for k, name := range validatorKeys {
		m[name] = k
	}
	return m
}()

func (k ValidatorKind) String() string { return validatorKeys[k] }

// Validator is one compiled constraint. Only the fields of its Kind are
// meaningful.
type Validator struct {
	Kind       ValidatorKind
	Number     float64       // numeric bound
	Quantity   unit.Quantity // quantity bound
	IsQuantity bool
	Count      int    // length bounds
	Text       string // url_base
	List       []string
	Pattern    *regexp.Regexp
	Exclude    []any // int64, float64, or unit.Quantity

	node *yamldoc.Node // bound's source, for schema export
}

// rawValidator is a constraint as written, held until the property's type is
// resolved and the bound can be coerced.
type rawValidator struct {
	kind ValidatorKind
	node *yamldoc.Node
}

// compileValidators coerces the raw constraints of p against its resolved
// type and fixes their evaluation order. Schema errors are reported at the
// bound's source position.
func (r *Registry) compileValidators(p *PropertyDef, file, path string) Issues {
	var iss Issues
	byKind := make(map[ValidatorKind]*yamldoc.Node, len(p.rawValidators))
	for _, raw := range p.rawValidators {
		byKind[raw.kind] = raw.node
	}
	for _, kind := range validatorOrder {
		n, ok := byKind[kind]
		if !ok {
			continue
		}
		v, err := r.compileValidator(p, kind, n)
		if err != nil {
			iss = append(iss, Issue{
				Path: path + "/" + kind.String(), Code: CodeSchema,
				Message: err.Error(), File: file, Line: n.Line, Col: n.Column,
			})
			continue
		}
		p.Validators = append(p.Validators, v)
	}
	p.rawValidators = nil
	return iss
}

func (r *Registry) compileValidator(p *PropertyDef, kind ValidatorKind, n *yamldoc.Node) (Validator, error) {
	v := Validator{Kind: kind, node: n}
	t := p.Type
	switch kind {
	case ValidatorGe, ValidatorGt, ValidatorLe, ValidatorLt, ValidatorMultipleOf:
		if !numericType(t) {
			return v, fmt.Errorf("%s applies to int, float, or quantity properties, not %s", kind, t.Signature())
		}
		return r.compileBound(v, t, n)
	case ValidatorExclude:
		if !numericType(t) {
			return v, fmt.Errorf("exclude applies to int, float, or quantity properties, not %s", t.Signature())
		}
		if n.Kind != yamldoc.SequenceNode {
			return v, fmt.Errorf("exclude wants a list of values")
		}
		for _, item := range n.Items {
			b, err := r.compileBound(Validator{Kind: kind, node: item}, t, item)
			if err != nil {
				return v, err
			}
			if b.IsQuantity {
				v.Exclude = append(v.Exclude, b.Quantity)
			} else {
				v.Exclude = append(v.Exclude, b.Number)
			}
		}
		return v, nil
	case ValidatorStrMin, ValidatorStrMax:
		if t.Kind != KindPrimitive || t.Prim != PrimStr {
			return v, fmt.Errorf("%s applies to str properties, not %s", kind, t.Signature())
		}
		return compileCount(v, n)
	case ValidatorStrRegex:
		if t.Kind != KindPrimitive || t.Prim != PrimStr {
			return v, fmt.Errorf("str_regex applies to str properties, not %s", t.Signature())
		}
		if n.Kind != yamldoc.ScalarNode {
			return v, fmt.Errorf("str_regex wants a pattern string")
		}
		re, err := regexp.Compile(n.Value)
		if err != nil {
			return v, fmt.Errorf("bad pattern: %v", err)
		}
		v.Pattern = re
		return v, nil
	case ValidatorListMin, ValidatorListMax:
		if t.Kind != KindList {
			return v, fmt.Errorf("%s applies to list properties, not %s", kind, t.Signature())
		}
		return compileCount(v, n)
	case ValidatorPathExists, ValidatorIsFile, ValidatorIsDir:
		if t.Kind != KindPrimitive || t.Prim != PrimPath {
			return v, fmt.Errorf("%s applies to path properties, not %s", kind, t.Signature())
		}
		return compileFlag(v, n)
	case ValidatorFileExt:
		if t.Kind != KindPrimitive || t.Prim != PrimPath {
			return v, fmt.Errorf("file_ext applies to path properties, not %s", t.Signature())
		}
		return compileStringList(v, n)
	case ValidatorURLProtocols:
		if t.Kind != KindPrimitive || t.Prim != PrimURL {
			return v, fmt.Errorf("url_protocols applies to url properties, not %s", t.Signature())
		}
		return compileStringList(v, n)
	case ValidatorURLBase:
		if t.Kind != KindPrimitive || t.Prim != PrimURL {
			return v, fmt.Errorf("url_base applies to url properties, not %s", t.Signature())
		}
		if n.Kind != yamldoc.ScalarNode {
			return v, fmt.Errorf("url_base wants a string")
		}
		v.Text = n.Value
		return v, nil
	case ValidatorURLReachable:
		if t.Kind != KindPrimitive || t.Prim != PrimURL {
			return v, fmt.Errorf("url_reachable applies to url properties, not %s", t.Signature())
		}
		return compileFlag(v, n)
	default:
		return v, fmt.Errorf("unknown validator")
	}
}

func numericType(t *TypeRef) bool {
	return t.Kind == KindQuantity ||
		(t.Kind == KindPrimitive && (t.Prim == PrimInt || t.Prim == PrimFloat))
}

func (r *Registry) compileBound(v Validator, t *TypeRef, n *yamldoc.Node) (Validator, error) {
	if n.Kind != yamldoc.ScalarNode {
		return v, fmt.Errorf("%s wants a scalar bound", v.Kind)
	}
	if t.Kind == KindQuantity {
		q, err := unit.ParseAs(n.Value, t.Dimension)
		if err != nil {
			return v, err
		}
		v.Quantity = q
		v.IsQuantity = true
		return v, nil
	}
	f, err := parseNumber(n)
	if err != nil {
		return v, fmt.Errorf("%s wants a numeric bound: %v", v.Kind, err)
	}
	v.Number = f
	return v, nil
}

func compileCount(v Validator, n *yamldoc.Node) (Validator, error) {
	if n.Kind != yamldoc.ScalarNode || n.Tag != yamldoc.TagInt {
		return v, fmt.Errorf("%s wants a non-negative integer", v.Kind)
	}
	var c int
	if _, err := fmt.Sscanf(n.Value, "%d", &c); err != nil || c < 0 {
		return v, fmt.Errorf("%s wants a non-negative integer", v.Kind)
	}
	v.Count = c
	return v, nil
}

func compileFlag(v Validator, n *yamldoc.Node) (Validator, error) {
	if n.Kind != yamldoc.ScalarNode || n.Tag != yamldoc.TagBool {
		return v, fmt.Errorf("%s wants true or false", v.Kind)
	}
	if n.Value != "true" {
		// disabled flags compile to nothing
		return v, nil
	}
	v.Number = 1
	return v, nil
}

func compileStringList(v Validator, n *yamldoc.Node) (Validator, error) {
	switch n.Kind {
	case yamldoc.ScalarNode:
		v.List = []string{n.Value}
		return v, nil
	case yamldoc.SequenceNode:
		for _, item := range n.Items {
			if item.Kind != yamldoc.ScalarNode {
				return v, fmt.Errorf("%s wants strings", v.Kind)
			}
			v.List = append(v.List, item.Value)
		}
		return v, nil
	default:
		return v, fmt.Errorf("%s wants a string or list of strings", v.Kind)
	}
}

func parseNumber(n *yamldoc.Node) (float64, error) {
	switch n.Tag {
	case yamldoc.TagInt, yamldoc.TagFloat:
		var f float64
		if _, err := fmt.Sscanf(n.Value, "%g", &f); err != nil {
			return 0, fmt.Errorf("malformed number %q", n.Value)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("got %s", n.Tag)
	}
}

// runValidators applies the property's compiled constraints to a validated
// value, collecting every violation.
func (p *PropertyDef) runValidators(ctx context.Context, val any, n *yamldoc.Node, st *state, path string) Issues {
	var iss Issues
	for _, v := range p.Validators {
		if it, ok := v.apply(ctx, val, st); !ok {
			it.Path = path
			it.File = st.file
			it.Line = n.Line
			it.Col = n.Column
			iss = append(iss, it)
		}
	}
	return iss
}

func (v Validator) apply(ctx context.Context, val any, st *state) (Issue, bool) {
	switch v.Kind {
	case ValidatorGe:
		return v.applyCmp(val, func(c int) bool { return c >= 0 }, CodeTooSmall, ">=")
	case ValidatorGt:
		return v.applyCmp(val, func(c int) bool { return c > 0 }, CodeTooSmall, ">")
	case ValidatorLe:
		return v.applyCmp(val, func(c int) bool { return c <= 0 }, CodeTooBig, "<=")
	case ValidatorLt:
		return v.applyCmp(val, func(c int) bool { return c < 0 }, CodeTooBig, "<")
	case ValidatorMultipleOf:
		return v.applyMultipleOf(val)
	case ValidatorExclude:
		return v.applyExclude(val)
	case ValidatorStrMin:
		s, _ := val.(string)
		if utf8.RuneCountInString(s) < v.Count {
			return Issue{Code: CodeTooSmall, Message: fmt.Sprintf("length must be >= %d", v.Count)}, false
		}
	case ValidatorStrMax:
		s, _ := val.(string)
		if utf8.RuneCountInString(s) > v.Count {
			return Issue{Code: CodeTooBig, Message: fmt.Sprintf("length must be <= %d", v.Count)}, false
		}
	case ValidatorStrRegex:
		s, _ := val.(string)
		if !v.Pattern.MatchString(s) {
			return Issue{Code: CodePattern, Message: fmt.Sprintf("value %q does not match %q", s, v.Pattern.String())}, false
		}
	case ValidatorListMin:
		if l, ok := val.([]any); ok && len(l) < v.Count {
			return Issue{Code: CodeTooSmall, Message: fmt.Sprintf("list needs at least %d items, got %d", v.Count, len(l))}, false
		}
	case ValidatorListMax:
		if l, ok := val.([]any); ok && len(l) > v.Count {
			return Issue{Code: CodeTooBig, Message: fmt.Sprintf("list allows at most %d items, got %d", v.Count, len(l))}, false
		}
	case ValidatorPathExists:
		if v.Number == 1 {
			s, _ := val.(string)
			if _, err := os.Stat(s); err != nil {
				return Issue{Code: CodePath, Message: fmt.Sprintf("path %q does not exist", s)}, false
			}
		}
	case ValidatorIsFile:
		if v.Number == 1 {
			s, _ := val.(string)
			fi, err := os.Stat(s)
			if err != nil || fi.IsDir() {
				return Issue{Code: CodePath, Message: fmt.Sprintf("path %q is not a file", s)}, false
			}
		}
	case ValidatorIsDir:
		if v.Number == 1 {
			s, _ := val.(string)
			fi, err := os.Stat(s)
			if err != nil || !fi.IsDir() {
				return Issue{Code: CodePath, Message: fmt.Sprintf("path %q is not a directory", s)}, false
			}
		}
	case ValidatorFileExt:
		s, _ := val.(string)
		ext := filepath.Ext(s)
		for _, want := range v.List {
			if ext == want || ext == "."+strings.TrimPrefix(want, ".") {
				return Issue{}, true
			}
		}
		return Issue{Code: CodePath, Message: fmt.Sprintf("path %q wants extension %s", s, strings.Join(v.List, " or "))}, false
	case ValidatorURLProtocols:
		s, _ := val.(string)
		u, err := url.Parse(s)
		if err != nil || !containsString(v.List, u.Scheme) {
			return Issue{Code: CodeURL, Message: fmt.Sprintf("url %q wants protocol %s", s, strings.Join(v.List, " or "))}, false
		}
	case ValidatorURLBase:
		s, _ := val.(string)
		if !strings.HasPrefix(s, v.Text) {
			return Issue{Code: CodeURL, Message: fmt.Sprintf("url %q is not under %q", s, v.Text)}, false
		}
	case ValidatorURLReachable:
		if v.Number == 1 {
			s, _ := val.(string)
			if err := st.probe(ctx, s); err != nil {
				return Issue{Code: CodeURL, Message: fmt.Sprintf("url %q is not reachable", s), Cause: err}, false
			}
		}
	}
	return Issue{}, true
}

func (v Validator) applyCmp(val any, pass func(int) bool, code, op string) (Issue, bool) {
	c, bound, err := v.cmpBound(val)
	if err != nil {
		return Issue{Code: CodeUnit, Message: err.Error()}, false
	}
	if pass(c) {
		return Issue{}, true
	}
	return Issue{Code: code, Message: fmt.Sprintf("value must be %s %s", op, bound)}, false
}

// cmpBound compares the value against the validator's bound, returning the
// sign and the bound's display form.
func (v Validator) cmpBound(val any) (int, string, error) {
	if v.IsQuantity {
		q, ok := val.(unit.Quantity)
		if !ok {
			return 0, "", fmt.Errorf("quantity bound on non-quantity value")
		}
		c, err := q.Cmp(v.Quantity)
		return c, v.Quantity.String(), err
	}
	f, ok := numeric(val)
	if !ok {
		return 0, "", fmt.Errorf("numeric bound on non-numeric value")
	}
	switch {
	case f < v.Number:
		return -1, formatNumber(v.Number), nil
	case f > v.Number:
		return 1, formatNumber(v.Number), nil
	default:
		return 0, formatNumber(v.Number), nil
	}
}

func (v Validator) applyMultipleOf(val any) (Issue, bool) {
	if v.IsQuantity {
		q, ok := val.(unit.Quantity)
		if !ok {
			return Issue{Code: CodeUnit, Message: "quantity bound on non-quantity value"}, false
		}
		ok2, err := q.MultipleOf(v.Quantity)
		if err != nil {
			return Issue{Code: CodeUnit, Message: err.Error()}, false
		}
		if !ok2 {
			return Issue{Code: CodeNotMultiple, Message: fmt.Sprintf("value must be a multiple of %s", v.Quantity)}, false
		}
		return Issue{}, true
	}
	f, _ := numeric(val)
	if v.Number == 0 {
		return Issue{Code: CodeNotMultiple, Message: "multiple_of zero"}, false
	}
	ratio := f / v.Number
	if math.Abs(ratio-math.Round(ratio)) > 1e-9*math.Max(1, math.Abs(ratio)) {
		return Issue{Code: CodeNotMultiple, Message: fmt.Sprintf("value must be a multiple of %s", formatNumber(v.Number))}, false
	}
	return Issue{}, true
}

// applyExclude rejects values equal to any excluded entry after unit
// conversion, so "1 km" is excluded by "1000 m".
func (v Validator) applyExclude(val any) (Issue, bool) {
	for _, ex := range v.Exclude {
		switch x := ex.(type) {
		case unit.Quantity:
			if q, ok := val.(unit.Quantity); ok && q.Equal(x) {
				return Issue{Code: CodeExcluded, Message: fmt.Sprintf("value %s is excluded (matches %s)", q, x)}, false
			}
		case float64:
			if f, ok := numeric(val); ok && f == x {
				return Issue{Code: CodeExcluded, Message: fmt.Sprintf("value %s is excluded", formatNumber(f))}, false
			}
		}
	}
	return Issue{}, true
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

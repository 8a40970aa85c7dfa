package yasl

import (
	"fmt"
	"strings"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
)

// RuleKind discriminates the type-level relational validators.
type RuleKind int

const (
	RuleOnlyOne RuleKind = iota + 1
	RuleAtLeastOne
	RuleIfThen
)

func (k RuleKind) String() string {
	switch k {
	case RuleOnlyOne:
		return "only_one"
	case RuleAtLeastOne:
		return "at_least_one"
	case RuleIfThen:
		return "if_then"
	default:
		return "unknown"
	}
}

// Rule is one type-level validator, evaluated only after every property of a
// record validated cleanly.
type Rule struct {
	Kind    RuleKind
	Fields  []string // only_one / at_least_one operands
	Eval    string   // if_then: field whose value is inspected
	Values  []string // if_then: canonical values that trigger the rule
	Present []string // if_then: fields that must then be present
	Absent  []string // if_then: fields that must then be absent
}

// parseRule reads one entry of a type's validators list.
func parseRule(n *yamldoc.Node) (Rule, error) {
	if n.Kind != yamldoc.MappingNode || len(n.Pairs) != 1 {
		return Rule{}, fmt.Errorf("each type validator wants exactly one of only_one, at_least_one, if_then")
	}
	key, body := n.Pairs[0].Key, n.Pairs[0].Value
	switch key.Value {
	case "only_one", "at_least_one":
		fields, err := scalarList(body)
		if err != nil || len(fields) < 2 {
			return Rule{}, fmt.Errorf("%s wants a list of two or more field names", key.Value)
		}
		kind := RuleOnlyOne
		if key.Value == "at_least_one" {
			kind = RuleAtLeastOne
		}
		return Rule{Kind: kind, Fields: fields}, nil
	case "if_then":
		if body.Kind != yamldoc.MappingNode {
			return Rule{}, fmt.Errorf("if_then wants a mapping with eval, value, present, absent")
		}
		r := Rule{Kind: RuleIfThen}
		for _, p := range body.Pairs {
			switch p.Key.Value {
			case "eval":
				if p.Value.Kind != yamldoc.ScalarNode {
					return Rule{}, fmt.Errorf("if_then eval wants a field name")
				}
				r.Eval = p.Value.Value
			case "value":
				vals, err := scalarList(p.Value)
				if err != nil {
					return Rule{}, fmt.Errorf("if_then value wants a scalar or list of scalars")
				}
				r.Values = vals
			case "present":
				fields, err := scalarList(p.Value)
				if err != nil {
					return Rule{}, fmt.Errorf("if_then present wants field names")
				}
				r.Present = fields
			case "absent":
				fields, err := scalarList(p.Value)
				if err != nil {
					return Rule{}, fmt.Errorf("if_then absent wants field names")
				}
				r.Absent = fields
			default:
				return Rule{}, fmt.Errorf("if_then does not understand %q", p.Key.Value)
			}
		}
		if r.Eval == "" || len(r.Values) == 0 {
			return Rule{}, fmt.Errorf("if_then wants both eval and value")
		}
		if len(r.Present) == 0 && len(r.Absent) == 0 {
			return Rule{}, fmt.Errorf("if_then wants present or absent assertions")
		}
		return r, nil
	default:
		return Rule{}, fmt.Errorf("unknown type validator %q", key.Value)
	}
}

func scalarList(n *yamldoc.Node) ([]string, error) {
	switch n.Kind {
	case yamldoc.ScalarNode:
		return []string{n.Value}, nil
	case yamldoc.SequenceNode:
		out := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			if item.Kind != yamldoc.ScalarNode {
				return nil, fmt.Errorf("want scalars")
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want a scalar or list")
	}
}

// fieldRefs returns every field name the rule mentions, for schema-time
// checking against the type's properties.
func (r Rule) fieldRefs() []string {
	var out []string
	out = append(out, r.Fields...)
	if r.Eval != "" {
		out = append(out, r.Eval)
	}
	out = append(out, r.Present...)
	out = append(out, r.Absent...)
	return out
}

// run evaluates the rule against a fully validated record.
func (r Rule) run(rec *Record, file string, n *yamldoc.Node) Issues {
	switch r.Kind {
	case RuleOnlyOne:
		present := r.countPresent(rec)
		if len(present) != 1 {
			return Issues{{
				Code: CodeRule, Rule: r.Kind.String(),
				Message: fmt.Sprintf("exactly one of %s must be present, got %d", strings.Join(r.Fields, ", "), len(present)),
				File:    file, Line: n.Line, Col: n.Column,
			}}
		}
	case RuleAtLeastOne:
		if len(r.countPresent(rec)) == 0 {
			return Issues{{
				Code: CodeRule, Rule: r.Kind.String(),
				Message: fmt.Sprintf("at least one of %s must be present", strings.Join(r.Fields, ", ")),
				File:    file, Line: n.Line, Col: n.Column,
			}}
		}
	case RuleIfThen:
		v, ok := rec.Field(r.Eval)
		if !ok {
			return nil
		}
		if !containsString(r.Values, CanonicalString(v)) {
			return nil
		}
		var iss Issues
		for _, f := range r.Present {
			if _, ok := rec.Field(f); !ok {
				iss = append(iss, Issue{
					Code: CodeRule, Rule: r.Kind.String(), Path: "/" + f,
					Message: fmt.Sprintf("%s must be present when %s is %s", f, r.Eval, CanonicalString(v)),
					File:    file, Line: n.Line, Col: n.Column,
				})
			}
		}
		for _, f := range r.Absent {
			if _, ok := rec.Field(f); ok {
				iss = append(iss, Issue{
					Code: CodeRule, Rule: r.Kind.String(), Path: "/" + f,
					Message: fmt.Sprintf("%s must be absent when %s is %s", f, r.Eval, CanonicalString(v)),
					File:    file, Line: n.Line, Col: n.Column,
				})
			}
		}
		return iss
	}
	return nil
}

func (r Rule) countPresent(rec *Record) []string {
	var present []string
	for _, f := range r.Fields {
		if _, ok := rec.Field(f); ok {
			present = append(present, f)
		}
	}
	return present
}

package yaql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jondavid-black/advanced-yaml/yasl"
)

// Run compiles and executes a query in one step.
func Run(query string, reg *yasl.Registry, store *yasl.Store) (*Result, error) {
	plan, err := Compile(query, reg)
	if err != nil {
		return nil, err
	}
	return plan.Execute(store)
}

// pred is a compiled predicate over one record. Fields missing from a record
// never match, so NOT over a missing field does.
type pred interface {
	eval(rec *yasl.Record) (bool, error)
}

type andPred struct{ l, r pred }

func (p andPred) eval(rec *yasl.Record) (bool, error) {
	ok, err := p.l.eval(rec)
	if err != nil || !ok {
		return false, err
	}
	return p.r.eval(rec)
}

type orPred struct{ l, r pred }

func (p orPred) eval(rec *yasl.Record) (bool, error) {
	ok, err := p.l.eval(rec)
	if err != nil || ok {
		return ok, err
	}
	return p.r.eval(rec)
}

type notPred struct{ p pred }

func (p notPred) eval(rec *yasl.Record) (bool, error) {
	ok, err := p.p.eval(rec)
	return !ok, err
}

type cmpPred struct {
	field string
	op    cmpOp
	val   any
}

func (p cmpPred) eval(rec *yasl.Record) (bool, error) {
	v, ok := rec.Field(p.field)
	if !ok || v == nil {
		return false, nil
	}
	c, err := yasl.CompareValues(v, p.val)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", p.field, err)
	}
	switch p.op {
	case opEq:
		return c == 0, nil
	case opNe:
		return c != 0, nil
	case opLt:
		return c < 0, nil
	case opLe:
		return c <= 0, nil
	case opGt:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

type inPred struct {
	field string
	neg   bool
	vals  []any
}

func (p inPred) eval(rec *yasl.Record) (bool, error) {
	v, ok := rec.Field(p.field)
	if !ok || v == nil {
		return false, nil
	}
	for _, want := range p.vals {
		c, err := yasl.CompareValues(v, want)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", p.field, err)
		}
		if c == 0 {
			return !p.neg, nil
		}
	}
	return p.neg, nil
}

type likePred struct {
	field string
	neg   bool
	re    *regexp.Regexp
}

func (p likePred) eval(rec *yasl.Record) (bool, error) {
	v, ok := rec.Field(p.field)
	if !ok || v == nil {
		return false, nil
	}
	s, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("field %q: LIKE needs a string, got %T", p.field, v)
	}
	return p.re.MatchString(s) != p.neg, nil
}

// Execute runs the plan against a store snapshot.
func (p *Plan) Execute(store *yasl.Store) (*Result, error) {
	var recs []*yasl.Record
	if store != nil {
		recs = store.Records(p.Type.QualifiedName())
	}
	matched := make([]*yasl.Record, 0, len(recs))
	for _, rec := range recs {
		if p.filter != nil {
			ok, err := p.filter.eval(rec)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, rec)
	}
	if p.grouped {
		return p.executeGrouped(matched)
	}

	if len(p.orderBy) > 0 {
		var sortErr error
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range p.orderBy {
				a, _ := matched[i].Field(key.field)
				b, _ := matched[j].Field(key.field)
				c, err := yasl.CompareValues(a, b)
				if err != nil {
					if sortErr == nil {
						sortErr = fmt.Errorf("order by %q: %w", key.field, err)
					}
					return false
				}
				if c != 0 {
					if key.desc {
						return c > 0
					}
					return c < 0
				}
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if p.hasLimit && len(matched) > p.limit {
		matched = matched[:p.limit]
	}

	res := &Result{Columns: columnNames(p.columns)}
	for _, rec := range matched {
		row := make([]any, len(p.columns))
		for i, col := range p.columns {
			v, _ := rec.Field(col.field)
			row[i] = v
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

type group struct {
	key  map[string]any
	recs []*yasl.Record
}

func (p *Plan) executeGrouped(matched []*yasl.Record) (*Result, error) {
	var groups []*group
	if len(p.groupBy) == 0 {
		groups = []*group{{key: map[string]any{}, recs: matched}}
	} else {
		seen := map[string]*group{}
		for _, rec := range matched {
			key := map[string]any{}
			parts := make([]string, len(p.groupBy))
			for i, f := range p.groupBy {
				v, _ := rec.Field(f)
				key[f] = v
				parts[i] = yasl.CanonicalString(v)
			}
			sig := strings.Join(parts, "\x00")
			g, ok := seen[sig]
			if !ok {
				g = &group{key: key}
				seen[sig] = g
				groups = append(groups, g)
			}
			g.recs = append(g.recs, rec)
		}
	}

	res := &Result{Columns: columnNames(p.columns)}
	for _, g := range groups {
		row := make([]any, len(p.columns))
		for i, col := range p.columns {
			if col.agg == aggNone {
				row[i] = g.key[col.field]
				continue
			}
			v, err := aggregate(col.agg, col.field, g.recs)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		res.Rows = append(res.Rows, row)
	}

	if len(p.orderBy) > 0 {
		var sortErr error
		sort.SliceStable(res.Rows, func(i, j int) bool {
			for _, key := range p.orderBy {
				c, err := yasl.CompareValues(res.Rows[i][key.col], res.Rows[j][key.col])
				if err != nil {
					if sortErr == nil {
						sortErr = fmt.Errorf("order by %q: %w", p.columns[key.col].name, err)
					}
					return false
				}
				if c != 0 {
					if key.desc {
						return c > 0
					}
					return c < 0
				}
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if p.hasLimit && len(res.Rows) > p.limit {
		res.Rows = res.Rows[:p.limit]
	}
	return res, nil
}

// aggregate folds one aggregate over a group. Missing and null fields do not
// contribute; avg of no values is null, count of no values is 0.
func aggregate(kind aggKind, field string, recs []*yasl.Record) (any, error) {
	switch kind {
	case aggCount:
		if field == "" {
			return int64(len(recs)), nil
		}
		n := int64(0)
		for _, rec := range recs {
			if v, ok := rec.Field(field); ok && v != nil {
				n++
			}
		}
		return n, nil
	case aggSum, aggAvg:
		sum := 0.0
		n := 0
		allInt := true
		for _, rec := range recs {
			v, ok := rec.Field(field)
			if !ok || v == nil {
				continue
			}
			switch x := v.(type) {
			case int64:
				sum += float64(x)
			case float64:
				sum += x
				allInt = false
			default:
				return nil, fmt.Errorf("%s(%s): non-numeric value %T", kind, field, v)
			}
			n++
		}
		if kind == aggAvg {
			if n == 0 {
				return nil, nil
			}
			return sum / float64(n), nil
		}
		if allInt {
			return int64(sum), nil
		}
		return sum, nil
	default: // min, max
		var best any
		for _, rec := range recs {
			v, ok := rec.Field(field)
			if !ok || v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, err := yasl.CompareValues(v, best)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", kind, field, err)
			}
			if kind == aggMin && c < 0 || kind == aggMax && c > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.name
	}
	return names
}

package yaql

import (
	"regexp"
	"strings"

	"github.com/jondavid-black/advanced-yaml/yasl"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// Plan is a compiled query: every identifier resolved against the schema and
// every literal coerced to its field's type, so execution only walks records.
// The pipeline is scan, filter, group/aggregate, project, order, limit.
type Plan struct {
	Query string
	Type  *yasl.TypeDef

	filter   pred
	grouped  bool
	groupBy  []string
	columns  []column
	orderBy  []sortKey
	limit    int
	hasLimit bool
}

// column is one projected output column.
type column struct {
	name  string
	field string // "" for count(*)
	agg   aggKind
}

// sortKey orders the output. Ungrouped queries sort records by field before
// projection; grouped queries sort the projected rows by column index.
type sortKey struct {
	field string
	col   int
	desc  bool
}

// Compile parses the query and resolves it against the schema. Unknown types,
// unknown fields, and literals that do not fit their field's type are
// rejected here, before any record is touched.
func Compile(query string, reg *yasl.Registry) (*Plan, error) {
	st, err := parse(query)
	if err != nil {
		return nil, err
	}
	c := &compiler{query: query, reg: reg}
	return c.compile(st)
}

type compiler struct {
	query string
	reg   *yasl.Registry
	td    *yasl.TypeDef
}

func (c *compiler) compile(st *selectStmt) (*Plan, error) {
	td, err := c.reg.FindType(st.from.name)
	if err != nil {
		qe := errAt(c.query, st.from.pos, "%s", err)
		qe.Ident = st.from.name
		return nil, qe
	}
	c.td = td
	p := &Plan{Query: c.query, Type: td, limit: st.limit, hasLimit: st.hasLimit}

	for _, item := range st.items {
		if item.agg != aggNone {
			p.grouped = true
			break
		}
	}
	if len(st.groupBy) > 0 {
		p.grouped = true
	}

	if st.where != nil {
		f, err := c.compilePred(st.where)
		if err != nil {
			return nil, err
		}
		p.filter = f
	}

	for _, g := range st.groupBy {
		prop, qe := c.prop(g)
		if qe != nil {
			return nil, qe
		}
		if _, ok := c.scalarType(prop.Type); !ok {
			return nil, errIdent(c.query, g.pos, g.name, "cannot group by non-scalar field")
		}
		p.groupBy = append(p.groupBy, g.name)
	}

	cols, err := c.compileColumns(st, p)
	if err != nil {
		return nil, err
	}
	p.columns = cols

	for _, key := range st.orderBy {
		sk, err := c.compileOrderKey(key, p)
		if err != nil {
			return nil, err
		}
		p.orderBy = append(p.orderBy, sk)
	}
	return p, nil
}

func (c *compiler) compileColumns(st *selectStmt, p *Plan) ([]column, error) {
	if st.star {
		if p.grouped {
			return nil, errAt(c.query, 0, "SELECT * cannot be combined with GROUP BY")
		}
		cols := make([]column, 0, len(c.td.Properties))
		for _, prop := range c.td.Properties {
			cols = append(cols, column{name: prop.Name, field: prop.Name})
		}
		return cols, nil
	}
	var cols []column
	for _, item := range st.items {
		col, err := c.compileItem(item, p)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (c *compiler) compileItem(item selectItem, p *Plan) (column, error) {
	if item.agg == aggNone {
		if _, qe := c.prop(item.field); qe != nil {
			return column{}, qe
		}
		if p.grouped && !containsName(p.groupBy, item.field.name) {
			return column{}, errIdent(c.query, item.field.pos, item.field.name,
				"field must appear in GROUP BY or inside an aggregate:")
		}
		return column{name: item.field.name, field: item.field.name}, nil
	}
	if item.star {
		return column{name: "count(*)", agg: aggCount}, nil
	}
	prop, qe := c.prop(item.field)
	if qe != nil {
		return column{}, qe
	}
	switch item.agg {
	case aggSum, aggAvg:
		if !numericType(prop.Type) {
			return column{}, errIdent(c.query, item.field.pos, item.field.name,
				item.agg.String()+" needs a numeric field, got "+prop.Type.Signature()+":")
		}
	case aggMin, aggMax:
		if _, ok := c.scalarType(prop.Type); !ok {
			return column{}, errIdent(c.query, item.field.pos, item.field.name,
				item.agg.String()+" needs an orderable field, got "+prop.Type.Signature()+":")
		}
	}
	name := item.agg.String() + "(" + item.field.name + ")"
	return column{name: name, field: item.field.name, agg: item.agg}, nil
}

func (c *compiler) compileOrderKey(key orderKey, p *Plan) (sortKey, error) {
	item := key.item
	if !p.grouped {
		if item.agg != aggNone {
			return sortKey{}, errAt(c.query, item.pos, "ORDER BY %s needs GROUP BY", item.agg)
		}
		prop, qe := c.prop(item.field)
		if qe != nil {
			return sortKey{}, qe
		}
		if _, ok := c.scalarType(prop.Type); !ok {
			return sortKey{}, errIdent(c.query, item.field.pos, item.field.name, "cannot order by non-scalar field")
		}
		return sortKey{field: item.field.name, desc: key.desc}, nil
	}
	for i, col := range p.columns {
		if col.agg == item.agg && col.field == item.field.name && (item.agg != aggCount || item.star == (col.field == "")) {
			return sortKey{col: i, desc: key.desc}, nil
		}
	}
	label := item.field.name
	if item.agg != aggNone {
		inner := item.field.name
		if item.star {
			inner = "*"
		}
		label = item.agg.String() + "(" + inner + ")"
	}
	return sortKey{}, errIdent(c.query, item.pos, label, "ORDER BY with GROUP BY must name a selected column:")
}

func (c *compiler) prop(f fieldRef) (*yasl.PropertyDef, *QueryError) {
	prop, ok := c.td.Property(f.name)
	if !ok {
		return nil, errIdent(c.query, f.pos, f.name,
			"type "+c.td.QualifiedName().String()+" has no field")
	}
	return prop, nil
}

// scalarType resolves a field's type to the scalar it compares as. Reference
// fields compare as their target property's type; lists, maps, and nested
// records do not compare.
func (c *compiler) scalarType(t *yasl.TypeRef) (*yasl.TypeRef, bool) {
	switch t.Kind {
	case yasl.KindPrimitive, yasl.KindEnum, yasl.KindQuantity:
		return t, true
	case yasl.KindRef:
		td, ok := c.reg.Type(t.Ref.Type)
		if !ok {
			return nil, false
		}
		prop, ok := td.Property(t.Ref.Property)
		if !ok {
			return nil, false
		}
		return prop.Type, true
	default:
		return nil, false
	}
}

func numericType(t *yasl.TypeRef) bool {
	return t.Kind == yasl.KindPrimitive && (t.Prim == yasl.PrimInt || t.Prim == yasl.PrimFloat)
}

func (c *compiler) compilePred(e expr) (pred, error) {
	switch x := e.(type) {
	case binExpr:
		l, err := c.compilePred(x.l)
		if err != nil {
			return nil, err
		}
		r, err := c.compilePred(x.r)
		if err != nil {
			return nil, err
		}
		if x.and {
			return andPred{l, r}, nil
		}
		return orPred{l, r}, nil
	case notExpr:
		inner, err := c.compilePred(x.e)
		if err != nil {
			return nil, err
		}
		return notPred{inner}, nil
	case cmpExpr:
		prop, qe := c.prop(x.field)
		if qe != nil {
			return nil, qe
		}
		scalar, ok := c.scalarType(prop.Type)
		if !ok {
			return nil, errIdent(c.query, x.field.pos, x.field.name,
				"field of type "+prop.Type.Signature()+" does not support comparison:")
		}
		v, qe := c.literalValue(scalar, x.field, x.lit)
		if qe != nil {
			return nil, qe
		}
		return cmpPred{field: x.field.name, op: x.op, val: v}, nil
	case inExpr:
		prop, qe := c.prop(x.field)
		if qe != nil {
			return nil, qe
		}
		scalar, ok := c.scalarType(prop.Type)
		if !ok {
			return nil, errIdent(c.query, x.field.pos, x.field.name,
				"field of type "+prop.Type.Signature()+" does not support IN:")
		}
		vals := make([]any, 0, len(x.lits))
		for _, lit := range x.lits {
			v, qe := c.literalValue(scalar, x.field, lit)
			if qe != nil {
				return nil, qe
			}
			vals = append(vals, v)
		}
		return inPred{field: x.field.name, neg: x.neg, vals: vals}, nil
	case likeExpr:
		prop, qe := c.prop(x.field)
		if qe != nil {
			return nil, qe
		}
		scalar, ok := c.scalarType(prop.Type)
		if !ok || !stringType(scalar) {
			return nil, errIdent(c.query, x.field.pos, x.field.name,
				"LIKE needs a string-valued field, got "+prop.Type.Signature()+":")
		}
		return likePred{field: x.field.name, neg: x.neg, re: likeRegexp(x.pattern)}, nil
	default:
		return nil, errAt(c.query, 0, "internal: unknown predicate node")
	}
}

func stringType(t *yasl.TypeRef) bool {
	if t.Kind == yasl.KindEnum {
		return true
	}
	if t.Kind != yasl.KindPrimitive {
		return false
	}
	switch t.Prim {
	case yasl.PrimStr, yasl.PrimPath, yasl.PrimURL, yasl.PrimType:
		return true
	default:
		return false
	}
}

// literalValue coerces a query literal to the field's value type, so the
// executor compares like with like.
func (c *compiler) literalValue(t *yasl.TypeRef, f fieldRef, lit literal) (any, *QueryError) {
	switch t.Kind {
	case yasl.KindEnum:
		if lit.kind != litString {
			return nil, c.wantLiteral(f, lit, "a quoted "+t.Name.String()+" value")
		}
		return lit.s, nil
	case yasl.KindQuantity:
		if lit.kind != litString {
			return nil, c.wantLiteral(f, lit, "a quoted quantity such as '10 m'")
		}
		q, err := unit.ParseAs(lit.s, t.Dimension)
		if err != nil {
			return nil, errAt(c.query, lit.pos, "bad quantity for field %q: %v", f.name, err)
		}
		return q, nil
	case yasl.KindPrimitive:
		switch t.Prim {
		case yasl.PrimStr, yasl.PrimPath, yasl.PrimURL, yasl.PrimType:
			if lit.kind != litString {
				return nil, c.wantLiteral(f, lit, "a string")
			}
			return lit.s, nil
		case yasl.PrimInt:
			switch lit.kind {
			case litInt:
				return lit.i, nil
			case litFloat:
				return lit.f, nil
			}
			return nil, c.wantLiteral(f, lit, "a number")
		case yasl.PrimFloat:
			switch lit.kind {
			case litInt:
				return float64(lit.i), nil
			case litFloat:
				return lit.f, nil
			}
			return nil, c.wantLiteral(f, lit, "a number")
		case yasl.PrimBool:
			if lit.kind != litBool {
				return nil, c.wantLiteral(f, lit, "true or false")
			}
			return lit.b, nil
		case yasl.PrimDate:
			if lit.kind != litString {
				return nil, c.wantLiteral(f, lit, "a quoted date")
			}
			d, err := yasl.ParseDate(lit.s)
			if err != nil {
				return nil, errAt(c.query, lit.pos, "bad date for field %q: %v", f.name, err)
			}
			return d, nil
		case yasl.PrimDateTime:
			if lit.kind != litString {
				return nil, c.wantLiteral(f, lit, "a quoted datetime")
			}
			d, err := yasl.ParseDateTime(lit.s)
			if err != nil {
				return nil, errAt(c.query, lit.pos, "bad datetime for field %q: %v", f.name, err)
			}
			return d, nil
		case yasl.PrimClockTime:
			if lit.kind != litString {
				return nil, c.wantLiteral(f, lit, "a quoted time")
			}
			d, err := yasl.ParseClockTime(lit.s)
			if err != nil {
				return nil, errAt(c.query, lit.pos, "bad time for field %q: %v", f.name, err)
			}
			return d, nil
		case yasl.PrimAny:
			switch lit.kind {
			case litString:
				return lit.s, nil
			case litInt:
				return lit.i, nil
			case litFloat:
				return lit.f, nil
			default:
				return lit.b, nil
			}
		}
	}
	return nil, errAt(c.query, lit.pos, "field %q does not support literal comparison", f.name)
}

func (c *compiler) wantLiteral(f fieldRef, lit literal, want string) *QueryError {
	return errAt(c.query, lit.pos, "field %q needs %s, found %s", f.name, want, litText(lit))
}

func litText(lit literal) string {
	if lit.kind == litString {
		return "'" + lit.s + "'"
	}
	return lit.s
}

// likeRegexp translates a LIKE pattern: % matches any run, _ one character,
// everything else is literal.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

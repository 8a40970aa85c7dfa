package yaql

import (
	"strconv"
	"strings"
)

// The query language is a small SELECT dialect:
//
//	SELECT fields | * | aggregates FROM Type
//	  [WHERE predicate] [GROUP BY fields] [ORDER BY fields [ASC|DESC]] [LIMIT n]
//
// Predicates combine comparisons with AND, OR, NOT and parentheses.
// Parsing produces an untyped AST; Compile resolves it against a schema.

type aggKind int

const (
	aggNone aggKind = iota
	aggCount
	aggSum
	aggMin
	aggMax
	aggAvg
)

func (a aggKind) String() string {
	switch a {
	case aggCount:
		return "count"
	case aggSum:
		return "sum"
	case aggMin:
		return "min"
	case aggMax:
		return "max"
	case aggAvg:
		return "avg"
	default:
		return ""
	}
}

type fieldRef struct {
	name string
	pos  int
}

type selectItem struct {
	agg   aggKind
	field fieldRef // empty name with agg means count(*)
	star  bool
	pos   int
}

type orderKey struct {
	item selectItem
	desc bool
}

type litKind int

const (
	litString litKind = iota
	litInt
	litFloat
	litBool
)

type literal struct {
	kind litKind
	s    string
	i    int64
	f    float64
	b    bool
	pos  int
}

type cmpOp int

const (
	opEq cmpOp = iota
	opNe
	opLt
	opLe
	opGt
	opGe
)

func (o cmpOp) String() string {
	switch o {
	case opEq:
		return "="
	case opNe:
		return "!="
	case opLt:
		return "<"
	case opLe:
		return "<="
	case opGt:
		return ">"
	case opGe:
		return ">="
	default:
		return "?"
	}
}

type expr interface{ exprNode() }

type binExpr struct {
	and  bool // true for AND, false for OR
	l, r expr
}

type notExpr struct {
	e expr
}

type cmpExpr struct {
	field fieldRef
	op    cmpOp
	lit   literal
}

type inExpr struct {
	field fieldRef
	neg   bool
	lits  []literal
}

type likeExpr struct {
	field   fieldRef
	neg     bool
	pattern string
	pos     int
}

func (binExpr) exprNode()  {}
func (notExpr) exprNode()  {}
func (cmpExpr) exprNode()  {}
func (inExpr) exprNode()   {}
func (likeExpr) exprNode() {}

type selectStmt struct {
	star     bool
	items    []selectItem
	from     fieldRef
	where    expr
	groupBy  []fieldRef
	orderBy  []orderKey
	limit    int
	hasLimit bool
}

type parser struct {
	query string
	toks  []token
	i     int
}

func parse(query string) (*selectStmt, error) {
	toks, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{query: query, toks: toks}
	st, err := p.selectStmt()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, errAt(query, tok.pos, "unexpected %s after end of query", describe(tok))
	}
	return st, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.typ != tokenEOF {
		p.i++
	}
	return t
}

func (p *parser) acceptKeyword(word string) bool {
	if p.peek().keyword(word) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expectKeyword(word string) error {
	if p.acceptKeyword(word) {
		return nil
	}
	tok := p.peek()
	return errAt(p.query, tok.pos, "expected %s, found %s", strings.ToUpper(word), describe(tok))
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.peek()
	if tok.typ != typ {
		return token{}, errAt(p.query, tok.pos, "expected %s, found %s", typ, describe(tok))
	}
	return p.next(), nil
}

func describe(t token) string {
	if t.typ == tokenEOF {
		return "end of query"
	}
	return strconv.Quote(t.text)
}

var reserved = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "by": true,
	"order": true, "limit": true, "and": true, "or": true, "not": true,
	"in": true, "like": true, "asc": true, "desc": true, "true": true, "false": true,
}

// ident reads an identifier that is not a reserved word.
func (p *parser) ident(what string) (fieldRef, error) {
	tok := p.peek()
	if tok.typ != tokenIdent || reserved[strings.ToLower(tok.text)] {
		return fieldRef{}, errAt(p.query, tok.pos, "expected %s, found %s", what, describe(tok))
	}
	p.next()
	return fieldRef{name: tok.text, pos: tok.pos}, nil
}

func (p *parser) selectStmt() (*selectStmt, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	st := &selectStmt{}
	if p.peek().typ == tokenStar {
		p.next()
		st.star = true
	} else {
		for {
			item, err := p.selectItem()
			if err != nil {
				return nil, err
			}
			st.items = append(st.items, item)
			if p.peek().typ != tokenComma {
				break
			}
			p.next()
		}
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	from, err := p.ident("type name")
	if err != nil {
		return nil, err
	}
	st.from = from

	if p.acceptKeyword("where") {
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		st.where = e
	}
	if p.acceptKeyword("group") {
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			f, err := p.ident("field name")
			if err != nil {
				return nil, err
			}
			st.groupBy = append(st.groupBy, f)
			if p.peek().typ != tokenComma {
				break
			}
			p.next()
		}
	}
	if p.acceptKeyword("order") {
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			item, err := p.selectItem()
			if err != nil {
				return nil, err
			}
			key := orderKey{item: item}
			if p.acceptKeyword("desc") {
				key.desc = true
			} else {
				p.acceptKeyword("asc")
			}
			st.orderBy = append(st.orderBy, key)
			if p.peek().typ != tokenComma {
				break
			}
			p.next()
		}
	}
	if p.acceptKeyword("limit") {
		tok, err := p.expect(tokenNumber)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok.text)
		if err != nil || n < 0 {
			return nil, errAt(p.query, tok.pos, "LIMIT needs a non-negative integer, found %q", tok.text)
		}
		st.limit = n
		st.hasLimit = true
	}
	return st, nil
}

var aggNames = map[string]aggKind{
	"count": aggCount,
	"sum":   aggSum,
	"min":   aggMin,
	"max":   aggMax,
	"avg":   aggAvg,
}

func (p *parser) selectItem() (selectItem, error) {
	tok := p.peek()
	if tok.typ == tokenIdent {
		if kind, ok := aggNames[strings.ToLower(tok.text)]; ok && p.toks[p.i+1].typ == tokenLParen {
			p.next()
			p.next()
			item := selectItem{agg: kind, pos: tok.pos}
			if p.peek().typ == tokenStar {
				if kind != aggCount {
					return selectItem{}, errAt(p.query, p.peek().pos, "%s(*) is not supported, only count(*)", kind)
				}
				p.next()
				item.star = true
			} else {
				f, err := p.ident("field name")
				if err != nil {
					return selectItem{}, err
				}
				item.field = f
			}
			if _, err := p.expect(tokenRParen); err != nil {
				return selectItem{}, err
			}
			return item, nil
		}
	}
	f, err := p.ident("field name")
	if err != nil {
		return selectItem{}, err
	}
	return selectItem{field: f, pos: f.pos}, nil
}

func (p *parser) orExpr() (expr, error) {
	l, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		r, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		l = binExpr{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) andExpr() (expr, error) {
	l, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		r, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		l = binExpr{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) notExpr() (expr, error) {
	if p.acceptKeyword("not") {
		e, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return notExpr{e: e}, nil
	}
	return p.predicate()
}

func (p *parser) predicate() (expr, error) {
	if p.peek().typ == tokenLParen {
		p.next()
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return e, nil
	}
	f, err := p.ident("field name")
	if err != nil {
		return nil, err
	}
	neg := p.acceptKeyword("not")
	switch {
	case p.acceptKeyword("in"):
		return p.inList(f, neg)
	case p.acceptKeyword("like"):
		tok, err := p.expect(tokenString)
		if err != nil {
			return nil, err
		}
		return likeExpr{field: f, neg: neg, pattern: tok.text, pos: tok.pos}, nil
	case neg:
		tok := p.peek()
		return nil, errAt(p.query, tok.pos, "expected IN or LIKE after NOT, found %s", describe(tok))
	}
	opTok := p.next()
	var op cmpOp
	switch opTok.typ {
	case tokenEq:
		op = opEq
	case tokenNe:
		op = opNe
	case tokenLt:
		op = opLt
	case tokenLe:
		op = opLe
	case tokenGt:
		op = opGt
	case tokenGe:
		op = opGe
	default:
		return nil, errAt(p.query, opTok.pos, "expected a comparison operator, found %s", describe(opTok))
	}
	lit, err := p.literal()
	if err != nil {
		return nil, err
	}
	return cmpExpr{field: f, op: op, lit: lit}, nil
}

func (p *parser) inList(f fieldRef, neg bool) (expr, error) {
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	in := inExpr{field: f, neg: neg}
	for {
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		in.lits = append(in.lits, lit)
		if p.peek().typ != tokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return in, nil
}

func (p *parser) literal() (literal, error) {
	tok := p.peek()
	switch {
	case tok.typ == tokenString:
		p.next()
		return literal{kind: litString, s: tok.text, pos: tok.pos}, nil
	case tok.typ == tokenNumber:
		p.next()
		if i, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
			return literal{kind: litInt, i: i, s: tok.text, pos: tok.pos}, nil
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return literal{}, errAt(p.query, tok.pos, "bad number %q", tok.text)
		}
		return literal{kind: litFloat, f: f, s: tok.text, pos: tok.pos}, nil
	case tok.keyword("true"):
		p.next()
		return literal{kind: litBool, b: true, s: tok.text, pos: tok.pos}, nil
	case tok.keyword("false"):
		p.next()
		return literal{kind: litBool, b: false, s: tok.text, pos: tok.pos}, nil
	default:
		return literal{}, errAt(p.query, tok.pos, "expected a literal value, found %s", describe(tok))
	}
}

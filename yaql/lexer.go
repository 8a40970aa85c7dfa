package yaql

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// QueryError reports a malformed query or an unknown identifier. Pos is a
// byte offset into the query text; Ident carries the offending identifier
// when one is known.
type QueryError struct {
	Query string
	Pos   int
	Ident string
	Msg   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error at offset %d: %s", e.Pos, e.Msg)
}

func errAt(query string, pos int, format string, args ...any) *QueryError {
	return &QueryError{Query: query, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// errIdent builds an error blaming one identifier; the quoted name is folded
// into the message and kept on the Ident field for callers.
func errIdent(query string, pos int, ident, format string, args ...any) *QueryError {
	return &QueryError{
		Query: query,
		Pos:   pos,
		Ident: ident,
		Msg:   fmt.Sprintf(format, args...) + " " + strconv.Quote(ident),
	}
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenStar
	tokenComma
	tokenLParen
	tokenRParen
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "end of query"
	case tokenIdent:
		return "identifier"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenStar:
		return "*"
	case tokenComma:
		return ","
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	case tokenEq:
		return "="
	case tokenNe:
		return "!="
	case tokenLt:
		return "<"
	case tokenLe:
		return "<="
	case tokenGt:
		return ">"
	case tokenGe:
		return ">="
	default:
		return "unknown"
	}
}

type token struct {
	typ  tokenType
	text string
	pos  int
}

// keyword reports whether an identifier token equals the keyword,
// case-insensitively.
func (t token) keyword(word string) bool {
	return t.typ == tokenIdent && strings.EqualFold(t.text, word)
}

// lex tokenizes the whole query up front; the parser then walks the slice.
func lex(query string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '*':
			toks = append(toks, token{tokenStar, "*", i})
			i++
		case c == ',':
			toks = append(toks, token{tokenComma, ",", i})
			i++
		case c == '(':
			toks = append(toks, token{tokenLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokenRParen, ")", i})
			i++
		case c == '=':
			toks = append(toks, token{tokenEq, "=", i})
			i++
		case c == '!':
			if i+1 < len(query) && query[i+1] == '=' {
				toks = append(toks, token{tokenNe, "!=", i})
				i += 2
				break
			}
			return nil, errAt(query, i, "unexpected %q", string(c))
		case c == '<':
			switch {
			case i+1 < len(query) && query[i+1] == '=':
				toks = append(toks, token{tokenLe, "<=", i})
				i += 2
			case i+1 < len(query) && query[i+1] == '>':
				toks = append(toks, token{tokenNe, "<>", i})
				i += 2
			default:
				toks = append(toks, token{tokenLt, "<", i})
				i++
			}
		case c == '>':
			if i+1 < len(query) && query[i+1] == '=' {
				toks = append(toks, token{tokenGe, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokenGt, ">", i})
				i++
			}
		case c == '\'' || c == '"':
			s, next, err := lexString(query, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokenString, s, i})
			i = next
		case c >= '0' && c <= '9' || c == '-' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9':
			start := i
			i++
			for i < len(query) && (query[i] >= '0' && query[i] <= '9' || query[i] == '.' ||
				query[i] == 'e' || query[i] == 'E' ||
				(query[i] == '-' || query[i] == '+') && (query[i-1] == 'e' || query[i-1] == 'E')) {
				i++
			}
			toks = append(toks, token{tokenNumber, query[start:i], start})
		case isIdentStart(rune(c)):
			start := i
			for i < len(query) && isIdentPart(rune(query[i])) {
				i++
			}
			toks = append(toks, token{tokenIdent, query[start:i], start})
		default:
			return nil, errAt(query, i, "unexpected %q", string(c))
		}
	}
	toks = append(toks, token{tokenEOF, "", len(query)})
	return toks, nil
}

// lexString reads a quoted literal; doubling the quote escapes it.
func lexString(query string, start int) (string, int, error) {
	quote := query[start]
	var b strings.Builder
	i := start + 1
	for i < len(query) {
		c := query[i]
		if c == quote {
			if i+1 < len(query) && query[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, errAt(query, start, "unterminated string")
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

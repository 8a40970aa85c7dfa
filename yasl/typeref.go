package yasl

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// Primitive enumerates the built-in scalar kinds.
type Primitive int

const (
	PrimStr Primitive = iota + 1
	PrimInt
	PrimFloat
	PrimBool
	PrimDate
	PrimDateTime
	PrimClockTime
	PrimPath
	PrimURL
	PrimAny
	PrimType // a type-signature string, validated against the registry
)

var primitiveNames = map[string]Primitive{
	"str":       PrimStr,
	"int":       PrimInt,
	"float":     PrimFloat,
	"bool":      PrimBool,
	"date":      PrimDate,
	"datetime":  PrimDateTime,
	"clocktime": PrimClockTime,
	"path":      PrimPath,
	"url":       PrimURL,
	"any":       PrimAny,
	"type":      PrimType,
}

func (p Primitive) String() string {
	for name, v := range primitiveNames {
		if v == p {
			return name
		}
	}
	return "unknown"
}

// TypeName names a type or enum, optionally qualified by its namespace.
type TypeName struct {
	Namespace string
	Name      string
}

func (t TypeName) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// RefTarget names the unique property a ref[...] points at.
type RefTarget struct {
	Type     TypeName
	Property string
}

func (r RefTarget) String() string { return r.Type.String() + "." + r.Property }

// RefKind discriminates the closed set of type-reference variants.
type RefKind int

const (
	KindPrimitive RefKind = iota + 1
	KindEnum
	KindList
	KindMap
	KindRef
	KindQuantity
	KindNamed
)

func (k RefKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRef:
		return "ref"
	case KindQuantity:
		return "quantity"
	case KindNamed:
		return "named"
	default:
		return "unknown"
	}
}

// TypeRef is one resolved (or, before registry resolution, still named) type
// reference. Exactly the fields of its Kind are meaningful.
type TypeRef struct {
	Kind      RefKind
	Prim      Primitive // KindPrimitive
	Elem      *TypeRef  // KindList element
	Key       *TypeRef  // KindMap key, restricted to str/int/enum
	Val       *TypeRef  // KindMap value
	Name      TypeName  // KindNamed and KindEnum target
	Ref       RefTarget // KindRef target
	Dimension string    // KindQuantity

	sig string // source signature text
}

// Signature returns the type's source signature, reconstructing one for
// programmatically built refs.
func (t *TypeRef) Signature() string {
	if t.sig != "" {
		return t.sig
	}
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindEnum, KindNamed:
		return t.Name.String()
	case KindList:
		return t.Elem.Signature() + "[]"
	case KindMap:
		return "map[" + t.Key.Signature() + ", " + t.Val.Signature() + "]"
	case KindRef:
		return "ref[" + t.Ref.String() + "]"
	case KindQuantity:
		return t.Dimension
	default:
		return ""
	}
}

// ParseTypeSignature parses the textual type grammar: primitives (str, int,
// float, bool, date, datetime, clocktime, path, url, any, type), quantity
// dimensions (length, mass, ...), list suffixes T[], map[K, V], ref[Type.prop]
// with optional namespace qualifiers, and named types Name or Namespace.Name.
func ParseTypeSignature(sig string) (*TypeRef, error) {
	t, err := parseSignature(strings.TrimSpace(sig))
	if err != nil {
		return nil, err
	}
	t.sig = strings.TrimSpace(sig)
	return t, nil
}

func parseSignature(s string) (*TypeRef, error) {
	if s == "" {
		return nil, fmt.Errorf("empty type signature")
	}
	if strings.HasSuffix(s, "[]") {
		elem, err := parseSignature(strings.TrimSpace(strings.TrimSuffix(s, "[]")))
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: KindList, Elem: elem}, nil
	}
	if inner, ok := bracketed(s, "map"); ok {
		k, v, err := splitTopLevel(inner)
		if err != nil {
			return nil, fmt.Errorf("map signature %q: %w", s, err)
		}
		key, err := parseSignature(k)
		if err != nil {
			return nil, err
		}
		val, err := parseSignature(v)
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: KindMap, Key: key, Val: val}, nil
	}
	if inner, ok := bracketed(s, "ref"); ok {
		target, err := parseRefTarget(inner)
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: KindRef, Ref: target}, nil
	}
	if p, ok := primitiveNames[s]; ok {
		return &TypeRef{Kind: KindPrimitive, Prim: p}, nil
	}
	if unit.KnownDimension(s) {
		return &TypeRef{Kind: KindQuantity, Dimension: s}, nil
	}
	name, err := parseTypeName(s)
	if err != nil {
		return nil, err
	}
	return &TypeRef{Kind: KindNamed, Name: name}, nil
}

// bracketed matches "<prefix>[...]" and returns the bracket body.
func bracketed(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix+"[") || !strings.HasSuffix(s, "]") {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix)+1 : len(s)-1]), true
}

// splitTopLevel splits "K, V" at the first comma outside nested brackets.
func splitTopLevel(s string) (string, string, error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return "", "", fmt.Errorf("want \"map[key, value]\"")
}

func parseRefTarget(s string) (RefTarget, error) {
	segs := strings.Split(s, ".")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
		if !isIdent(segs[i]) {
			return RefTarget{}, fmt.Errorf("ref target %q: malformed segment %q", s, segs[i])
		}
	}
	switch {
	case len(segs) < 2:
		return RefTarget{}, fmt.Errorf("ref target %q: want \"Type.property\" or \"Namespace.Type.property\"", s)
	case len(segs) == 2:
		return RefTarget{Type: TypeName{Name: segs[0]}, Property: segs[1]}, nil
	default:
		return RefTarget{
			Type:     TypeName{Namespace: strings.Join(segs[:len(segs)-2], "."), Name: segs[len(segs)-2]},
			Property: segs[len(segs)-1],
		}, nil
	}
}

func parseTypeName(s string) (TypeName, error) {
	segs := strings.Split(s, ".")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
		if !isIdent(segs[i]) {
			return TypeName{}, fmt.Errorf("type name %q: malformed segment %q", s, segs[i])
		}
	}
	if len(segs) == 1 {
		return TypeName{Name: segs[0]}, nil
	}
	return TypeName{Namespace: strings.Join(segs[:len(segs)-1], "."), Name: segs[len(segs)-1]}, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}

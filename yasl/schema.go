package yasl

import "github.com/jondavid-black/advanced-yaml/yamldoc"

// Presence controls what a missing field means: fatal, defaulted, or merely
// warned about. A property with no presence declaration is required, unless
// it declares a default, which makes it optional.
type Presence int

const (
	PresenceRequired Presence = iota
	PresenceOptional
	PresencePreferred
)

var presenceNames = map[string]Presence{
	"optional":  PresenceOptional,
	"required":  PresenceRequired,
	"preferred": PresencePreferred,
}

func (p Presence) String() string {
	switch p {
	case PresenceOptional:
		return "optional"
	case PresencePreferred:
		return "preferred"
	default:
		return "required"
	}
}

// EnumDef is a fixed, ordered set of allowed string values.
type EnumDef struct {
	Namespace   string
	Name        string
	Description string
	Values      []string

	valueSet map[string]bool
}

// Has reports whether v is one of the enum's values (case-sensitive).
func (e *EnumDef) Has(v string) bool { return e.valueSet[v] }

// QualifiedName returns the enum's namespace-qualified name.
func (e *EnumDef) QualifiedName() TypeName { return TypeName{Namespace: e.Namespace, Name: e.Name} }

// PropertyDef describes one field of a record type.
type PropertyDef struct {
	Name        string
	Description string
	Type        *TypeRef
	Presence    Presence
	Unique      bool
	Validators  []Validator

	// Default holds the author's default as written, for export; defaultVal
	// is its coerced form, substituted when an optional field is missing.
	Default    *yamldoc.Node
	defaultVal any

	rawValidators []rawValidator // kept until the registry compiles them
}

// HasDefault reports whether the property declares a default.
func (p *PropertyDef) HasDefault() bool { return p.Default != nil && !p.Default.IsNull() }

// DefaultValue returns the coerced default value.
func (p *PropertyDef) DefaultValue() any { return p.defaultVal }

// TypeDef is one record schema: an ordered property list plus type-level
// rules.
type TypeDef struct {
	Namespace   string
	Name        string
	Description string
	Properties  []*PropertyDef
	Rules       []Rule

	propIndex map[string]*PropertyDef
	defNode   *yamldoc.Node // source node, for located schema errors
	srcFile   string
}

// QualifiedName returns the type's namespace-qualified name.
func (t *TypeDef) QualifiedName() TypeName { return TypeName{Namespace: t.Namespace, Name: t.Name} }

// Property looks up a property by name.
func (t *TypeDef) Property(name string) (*PropertyDef, bool) {
	p, ok := t.propIndex[name]
	return p, ok
}

// Namespace groups type and enum definitions under one name. Order of
// definition is preserved for export.
type Namespace struct {
	Name  string
	Types map[string]*TypeDef
	Enums map[string]*EnumDef

	typeOrder []string
	enumOrder []string
}

// TypeNames returns the namespace's type names in definition order.
func (n *Namespace) TypeNames() []string { return n.typeOrder }

// EnumNames returns the namespace's enum names in definition order.
func (n *Namespace) EnumNames() []string { return n.enumOrder }

package yasl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
)

// Metadata is the optional schema-level name/description block.
type Metadata struct {
	Name        string
	Description string
}

// Registry holds one fully resolved schema: namespaces with their types and
// enums. A registry is immutable once LoadSchema returns it; reloading builds
// a new registry and the session swaps the pointer, so readers never observe
// a partial update.
type Registry struct {
	Metadata Metadata

	namespaces map[string]*Namespace
	nsOrder    []string
}

// Namespace looks up a namespace by name.
func (r *Registry) Namespace(name string) (*Namespace, bool) {
	ns, ok := r.namespaces[name]
	return ns, ok
}

// NamespaceNames returns the namespace names in definition order.
func (r *Registry) NamespaceNames() []string { return r.nsOrder }

// Type resolves a namespace-qualified type name.
func (r *Registry) Type(name TypeName) (*TypeDef, bool) {
	ns, ok := r.namespaces[name.Namespace]
	if !ok {
		return nil, false
	}
	td, ok := ns.Types[name.Name]
	return td, ok
}

// Enum resolves a namespace-qualified enum name.
func (r *Registry) Enum(name TypeName) (*EnumDef, bool) {
	ns, ok := r.namespaces[name.Namespace]
	if !ok {
		return nil, false
	}
	ed, ok := ns.Enums[name.Name]
	return ed, ok
}

// Types returns every type definition in namespace, then definition, order.
func (r *Registry) Types() []*TypeDef {
	var out []*TypeDef
	for _, nsName := range r.nsOrder {
		ns := r.namespaces[nsName]
		for _, tn := range ns.typeOrder {
			out = append(out, ns.Types[tn])
		}
	}
	return out
}

// FindType resolves a possibly unqualified type name. Unqualified names must
// match exactly one namespace.
func (r *Registry) FindType(name string) (*TypeDef, error) {
	tn, err := parseTypeName(name)
	if err != nil {
		return nil, err
	}
	if tn.Namespace != "" {
		td, ok := r.Type(tn)
		if !ok {
			return nil, fmt.Errorf("unknown type %s", tn)
		}
		return td, nil
	}
	var found []*TypeDef
	for _, td := range r.Types() {
		if td.Name == tn.Name {
			found = append(found, td)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("unknown type %s", tn.Name)
	case 1:
		return found[0], nil
	default:
		var names []string
		for _, td := range found {
			names = append(names, td.QualifiedName().String())
		}
		return nil, fmt.Errorf("ambiguous type %s: %s", tn.Name, strings.Join(names, ", "))
	}
}

// PropertyValidators returns the ordered constraint validators of one
// property.
func (r *Registry) PropertyValidators(t TypeName, property string) ([]Validator, bool) {
	td, ok := r.Type(t)
	if !ok {
		return nil, false
	}
	p, ok := td.Property(property)
	if !ok {
		return nil, false
	}
	return p.Validators, true
}

// LoadSchema builds a registry from one or more parsed schema documents. On
// any schema error the registry is not installed and the full issue list is
// returned; the caller's previous registry, if any, stays valid.
func LoadSchema(docs ...*yamldoc.Doc) (*Registry, error) {
	ld := &schemaLoader{reg: &Registry{namespaces: map[string]*Namespace{}}}
	for _, d := range docs {
		ld.collectDoc(d)
	}
	if len(ld.reg.nsOrder) == 0 && len(ld.iss) == 0 {
		ld.iss = append(ld.iss, Issue{Code: CodeSchema, Message: "no definitions found"})
	}
	if len(ld.iss) > 0 {
		return nil, ld.iss
	}
	ld.resolveAll()
	if len(ld.iss) > 0 {
		return nil, ld.iss
	}
	ld.checkCycles()
	if len(ld.iss) > 0 {
		return nil, ld.iss
	}
	ld.compileAll()
	if len(ld.iss) > 0 {
		return nil, ld.iss
	}
	ld.checkDefaults()
	if len(ld.iss) > 0 {
		return nil, ld.iss
	}
	return ld.reg, nil
}

type schemaLoader struct {
	reg  *Registry
	iss  Issues
	file string
}

func (ld *schemaLoader) errorf(n *yamldoc.Node, path, code, format string, args ...any) {
	it := Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...), File: ld.file}
	if n != nil {
		it.Line, it.Col = n.Line, n.Column
	}
	ld.iss = append(ld.iss, it)
}

func (ld *schemaLoader) collectDoc(d *yamldoc.Doc) {
	ld.file = d.File
	root := d.Root
	if root == nil || root.Kind != yamldoc.MappingNode {
		ld.errorf(root, "", CodeSchema, "schema wants a mapping with a definitions key")
		return
	}
	for _, p := range root.Pairs {
		switch p.Key.Value {
		case "metadata":
			ld.collectMetadata(p.Value)
		case "definitions":
			ld.collectDefinitions(p.Value)
		default:
			ld.errorf(p.Key, "/"+p.Key.Value, CodeSchema, "schema does not understand top-level key %q", p.Key.Value)
		}
	}
}

func (ld *schemaLoader) collectMetadata(n *yamldoc.Node) {
	if n.Kind != yamldoc.MappingNode {
		ld.errorf(n, "/metadata", CodeSchema, "metadata wants a mapping")
		return
	}
	for _, p := range n.Pairs {
		switch p.Key.Value {
		case "name":
			ld.reg.Metadata.Name = p.Value.Value
		case "description":
			ld.reg.Metadata.Description = p.Value.Value
		default:
			ld.errorf(p.Key, "/metadata/"+p.Key.Value, CodeSchema, "metadata does not understand %q", p.Key.Value)
		}
	}
}

func (ld *schemaLoader) collectDefinitions(n *yamldoc.Node) {
	if n.Kind != yamldoc.MappingNode {
		ld.errorf(n, "/definitions", CodeSchema, "definitions wants a mapping of namespaces")
		return
	}
	for _, p := range n.Pairs {
		name := p.Key.Value
		ns, ok := ld.reg.namespaces[name]
		if !ok {
			ns = &Namespace{Name: name, Types: map[string]*TypeDef{}, Enums: map[string]*EnumDef{}}
			ld.reg.namespaces[name] = ns
			ld.reg.nsOrder = append(ld.reg.nsOrder, name)
		}
		ld.collectNamespace(ns, p.Value)
	}
}

func (ld *schemaLoader) collectNamespace(ns *Namespace, n *yamldoc.Node) {
	path := "/definitions/" + ns.Name
	if n.Kind != yamldoc.MappingNode {
		ld.errorf(n, path, CodeSchema, "namespace %s wants a mapping with types or enums", ns.Name)
		return
	}
	for _, p := range n.Pairs {
		switch p.Key.Value {
		case "types":
			if p.Value.Kind != yamldoc.MappingNode {
				ld.errorf(p.Value, path+"/types", CodeSchema, "types wants a mapping")
				continue
			}
			for _, tp := range p.Value.Pairs {
				ld.collectType(ns, tp.Key.Value, tp.Value, path+"/types/"+tp.Key.Value)
			}
		case "enums":
			if p.Value.Kind != yamldoc.MappingNode {
				ld.errorf(p.Value, path+"/enums", CodeSchema, "enums wants a mapping")
				continue
			}
			for _, ep := range p.Value.Pairs {
				ld.collectEnum(ns, ep.Key.Value, ep.Value, path+"/enums/"+ep.Key.Value)
			}
		default:
			ld.errorf(p.Key, path+"/"+p.Key.Value, CodeSchema, "namespace %s does not understand %q", ns.Name, p.Key.Value)
		}
	}
}

func (ld *schemaLoader) collectEnum(ns *Namespace, name string, n *yamldoc.Node, path string) {
	if _, exists := ns.Enums[name]; exists {
		ld.errorf(n, path, CodeSchema, "enum %s.%s defined twice", ns.Name, name)
		return
	}
	if _, exists := ns.Types[name]; exists {
		ld.errorf(n, path, CodeSchema, "%s.%s defined as both type and enum", ns.Name, name)
		return
	}
	ed := &EnumDef{Namespace: ns.Name, Name: name, valueSet: map[string]bool{}}
	valuesNode := n
	if n.Kind == yamldoc.MappingNode {
		for _, p := range n.Pairs {
			switch p.Key.Value {
			case "description":
				ed.Description = p.Value.Value
			case "values":
				valuesNode = p.Value
			default:
				ld.errorf(p.Key, path+"/"+p.Key.Value, CodeSchema, "enum %s does not understand %q", name, p.Key.Value)
			}
		}
	}
	if valuesNode == nil || valuesNode.Kind != yamldoc.SequenceNode {
		ld.errorf(n, path, CodeSchema, "enum %s wants a list of values", name)
		return
	}
	for _, item := range valuesNode.Items {
		if item.Kind != yamldoc.ScalarNode {
			ld.errorf(item, path, CodeSchema, "enum %s wants scalar values", name)
			return
		}
		if ed.valueSet[item.Value] {
			ld.errorf(item, path, CodeSchema, "enum %s repeats value %q", name, item.Value)
			return
		}
		ed.valueSet[item.Value] = true
		ed.Values = append(ed.Values, item.Value)
	}
	ns.Enums[name] = ed
	ns.enumOrder = append(ns.enumOrder, name)
}

func (ld *schemaLoader) collectType(ns *Namespace, name string, n *yamldoc.Node, path string) {
	if _, exists := ns.Types[name]; exists {
		ld.errorf(n, path, CodeSchema, "type %s.%s defined twice", ns.Name, name)
		return
	}
	if _, exists := ns.Enums[name]; exists {
		ld.errorf(n, path, CodeSchema, "%s.%s defined as both type and enum", ns.Name, name)
		return
	}
	if n.Kind != yamldoc.MappingNode {
		ld.errorf(n, path, CodeSchema, "type %s wants a mapping with properties", name)
		return
	}
	td := &TypeDef{Namespace: ns.Name, Name: name, propIndex: map[string]*PropertyDef{}, defNode: n, srcFile: ld.file}
	for _, p := range n.Pairs {
		switch p.Key.Value {
		case "description":
			td.Description = p.Value.Value
		case "properties":
			if p.Value.Kind != yamldoc.MappingNode {
				ld.errorf(p.Value, path+"/properties", CodeSchema, "properties wants a mapping")
				continue
			}
			for _, pp := range p.Value.Pairs {
				ld.collectProperty(td, pp.Key.Value, pp.Value, path+"/properties/"+pp.Key.Value)
			}
		case "validators":
			if p.Value.Kind != yamldoc.SequenceNode {
				ld.errorf(p.Value, path+"/validators", CodeSchema, "validators wants a list")
				continue
			}
			for i, item := range p.Value.Items {
				rule, err := parseRule(item)
				if err != nil {
					ld.errorf(item, fmt.Sprintf("%s/validators/%d", path, i), CodeSchema, "%v", err)
					continue
				}
				td.Rules = append(td.Rules, rule)
			}
		default:
			ld.errorf(p.Key, path+"/"+p.Key.Value, CodeSchema, "type %s does not understand %q", name, p.Key.Value)
		}
	}
	if len(td.Properties) == 0 {
		ld.errorf(n, path, CodeSchema, "type %s wants at least one property", name)
		return
	}
	ns.Types[name] = td
	ns.typeOrder = append(ns.typeOrder, name)
}

func (ld *schemaLoader) collectProperty(td *TypeDef, name string, n *yamldoc.Node, path string) {
	if _, exists := td.propIndex[name]; exists {
		ld.errorf(n, path, CodeSchema, "property %s.%s defined twice", td.Name, name)
		return
	}
	p := &PropertyDef{Name: name}
	presenceSet := false
	switch n.Kind {
	case yamldoc.ScalarNode:
		// shorthand: the value is the type signature
		t, err := ParseTypeSignature(n.Value)
		if err != nil {
			ld.errorf(n, path, CodeSchema, "%v", err)
			return
		}
		p.Type = t
	case yamldoc.MappingNode:
		for _, pp := range n.Pairs {
			key := pp.Key.Value
			switch key {
			case "type":
				if pp.Value.Kind != yamldoc.ScalarNode {
					ld.errorf(pp.Value, path+"/type", CodeSchema, "type wants a signature string")
					return
				}
				t, err := ParseTypeSignature(pp.Value.Value)
				if err != nil {
					ld.errorf(pp.Value, path+"/type", CodeSchema, "%v", err)
					return
				}
				p.Type = t
			case "description":
				p.Description = pp.Value.Value
			case "presence":
				pr, ok := presenceNames[pp.Value.Value]
				if !ok {
					ld.errorf(pp.Value, path+"/presence", CodeSchema, "presence wants required, optional, or preferred, not %q", pp.Value.Value)
					return
				}
				p.Presence = pr
				presenceSet = true
			case "default":
				p.Default = pp.Value
			case "unique":
				if pp.Value.Kind != yamldoc.ScalarNode || pp.Value.Tag != yamldoc.TagBool {
					ld.errorf(pp.Value, path+"/unique", CodeSchema, "unique wants true or false")
					return
				}
				p.Unique = pp.Value.Value == "true"
			default:
				kind, ok := validatorKinds[key]
				if !ok {
					ld.errorf(pp.Key, path+"/"+key, CodeSchema, "property %s does not understand %q", name, key)
					return
				}
				p.rawValidators = append(p.rawValidators, rawValidator{kind: kind, node: pp.Value})
			}
		}
		if p.Type == nil {
			ld.errorf(n, path, CodeSchema, "property %s wants a type", name)
			return
		}
		// a default with no explicit presence makes the property optional
		if !presenceSet && p.HasDefault() {
			p.Presence = PresenceOptional
		}
	default:
		ld.errorf(n, path, CodeSchema, "property %s wants a type signature or mapping", name)
		return
	}
	td.Properties = append(td.Properties, p)
	td.propIndex[name] = p
}

// resolveAll rewrites every named TypeRef to its definition, turning enum
// targets into KindEnum, then checks map keys and ref targets against the
// resolved shapes.
func (ld *schemaLoader) resolveAll() {
	ld.walkRefs(func(td *TypeDef, p *PropertyDef, t *TypeRef, path string) {
		if t.Kind != KindNamed {
			return
		}
		name := t.Name
		if name.Namespace == "" {
			name.Namespace = td.Namespace
		}
		if _, ok := ld.reg.Type(name); ok {
			t.Name = name
			return
		}
		if _, ok := ld.reg.Enum(name); ok {
			t.Kind = KindEnum
			t.Name = name
			return
		}
		it := Issue{
			Path: path, Code: CodeUnknownType, File: ld.fileOf(td),
			Message: fmt.Sprintf("unknown type %s", t.Name),
		}
		if hints := ld.hintNamespaces(t.Name.Name, name.Namespace); len(hints) > 0 {
			it.Hint = "did you mean one of: " + strings.Join(hints, ", ")
		}
		if td.defNode != nil {
			it.Line, it.Col = td.defNode.Line, td.defNode.Column
		}
		ld.iss = append(ld.iss, it)
	})
	if len(ld.iss) > 0 {
		return
	}
	ld.walkRefs(func(td *TypeDef, p *PropertyDef, t *TypeRef, path string) {
		switch t.Kind {
		case KindMap:
			k := t.Key
			ok := k.Kind == KindEnum || (k.Kind == KindPrimitive && (k.Prim == PrimStr || k.Prim == PrimInt))
			if !ok {
				ld.errorf(td.defNode, path, CodeSchema, "map key %s must be str, int, or an enum", k.Signature())
			}
		case KindRef:
			target := t.Ref
			if target.Type.Namespace == "" {
				target.Type.Namespace = td.Namespace
			}
			tt, ok := ld.reg.Type(target.Type)
			if !ok {
				it := Issue{
					Path: path, Code: CodeUnknownType, File: ld.fileOf(td),
					Message: fmt.Sprintf("ref target type %s is unknown", t.Ref.Type),
				}
				if hints := ld.hintNamespaces(target.Type.Name, target.Type.Namespace); len(hints) > 0 {
					it.Hint = "did you mean one of: " + strings.Join(hints, ", ")
				}
				if td.defNode != nil {
					it.Line, it.Col = td.defNode.Line, td.defNode.Column
				}
				ld.iss = append(ld.iss, it)
				return
			}
			t.Ref.Type = target.Type
			tp, ok := tt.Property(target.Property)
			if !ok {
				ld.errorf(td.defNode, path, CodeSchema, "ref target %s has no property %s", target.Type, target.Property)
				return
			}
			switch tp.Type.Kind {
			case KindPrimitive, KindEnum, KindQuantity:
			default:
				ld.errorf(td.defNode, path, CodeSchema, "ref target %s.%s must be a scalar property", target.Type, target.Property)
				return
			}
			if !tp.Unique {
				ld.errorf(td.defNode, path, CodeSchema, "ref target %s.%s must be unique", target.Type, target.Property)
			}
		}
	})
}

// walkRefs visits every TypeRef node of every property, depth first.
func (ld *schemaLoader) walkRefs(fn func(td *TypeDef, p *PropertyDef, t *TypeRef, path string)) {
	for _, td := range ld.reg.Types() {
		ld.file = td.srcFile
		base := "/definitions/" + td.Namespace + "/types/" + td.Name + "/properties/"
		for _, p := range td.Properties {
			var walk func(t *TypeRef)
			walk = func(t *TypeRef) {
				switch t.Kind {
				case KindList:
					walk(t.Elem)
				case KindMap:
					walk(t.Key)
					walk(t.Val)
				}
				fn(td, p, t, base+p.Name+"/type")
			}
			walk(p.Type)
		}
	}
}

func (ld *schemaLoader) fileOf(td *TypeDef) string { return td.srcFile }

// hintNamespaces lists namespaces other than tried that define name, for
// "did you mean" hints on unknown types.
func (ld *schemaLoader) hintNamespaces(name, tried string) []string {
	var out []string
	for _, nsName := range ld.reg.nsOrder {
		if nsName == tried {
			continue
		}
		ns := ld.reg.namespaces[nsName]
		if _, ok := ns.Types[name]; ok {
			out = append(out, nsName)
			continue
		}
		if _, ok := ns.Enums[name]; ok {
			out = append(out, nsName)
		}
	}
	sort.Strings(out)
	return out
}

// checkCycles rejects cyclic named-type chains. Only direct named edges
// count: passing through a list or map gives the data a place to bottom out,
// so those break the cycle.
func (ld *schemaLoader) checkCycles() {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string

	var visit func(td *TypeDef) bool
	visit = func(td *TypeDef) bool {
		key := td.QualifiedName().String()
		ld.file = td.srcFile
		color[key] = gray
		stack = append(stack, key)
		for _, p := range td.Properties {
			if p.Type.Kind != KindNamed {
				continue
			}
			next, ok := ld.reg.Type(p.Type.Name)
			if !ok {
				continue
			}
			nextKey := next.QualifiedName().String()
			switch color[nextKey] {
			case gray:
				i := 0
				for j, s := range stack {
					if s == nextKey {
						i = j
						break
					}
				}
				cycle := append(append([]string{}, stack[i:]...), nextKey)
				ld.errorf(td.defNode, "/definitions/"+td.Namespace+"/types/"+td.Name, CodeCircularType,
					"unable to resolve dependencies: %s", strings.Join(cycle, " -> "))
				return false
			case white:
				if !visit(next) {
					return false
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[key] = black
		return true
	}

	for _, td := range ld.reg.Types() {
		if color[td.QualifiedName().String()] == white {
			if !visit(td) {
				return
			}
			stack = stack[:0]
		}
	}
}

// compileAll coerces validator bounds against resolved property types and
// checks rule field references.
func (ld *schemaLoader) compileAll() {
	for _, td := range ld.reg.Types() {
		ld.file = td.srcFile
		base := "/definitions/" + td.Namespace + "/types/" + td.Name
		for _, p := range td.Properties {
			ld.iss = append(ld.iss, ld.reg.compileValidators(p, ld.file, base+"/properties/"+p.Name)...)
			if p.Unique {
				switch p.Type.Kind {
				case KindPrimitive, KindEnum, KindQuantity:
				default:
					ld.errorf(td.defNode, base+"/properties/"+p.Name, CodeSchema,
						"unique applies to scalar properties, not %s", p.Type.Signature())
				}
			}
		}
		for i, rule := range td.Rules {
			for _, f := range rule.fieldRefs() {
				if _, ok := td.Property(f); !ok {
					ld.errorf(td.defNode, fmt.Sprintf("%s/validators/%d", base, i), CodeSchema,
						"%s names unknown property %q", rule.Kind, f)
				}
			}
		}
	}
}

// checkDefaults validates each declared default against the property's own
// type and constraints. Uniqueness and reachability probes are skipped; a
// default is a schema-time value.
func (ld *schemaLoader) checkDefaults() {
	ctx := context.Background()
	for _, td := range ld.reg.Types() {
		ld.file = td.srcFile
		base := "/definitions/" + td.Namespace + "/types/" + td.Name + "/properties/"
		for _, p := range td.Properties {
			if !p.HasDefault() {
				continue
			}
			st := &state{file: ld.file}
			path := base + p.Name + "/default"
			val, iss := ld.reg.checkValue(ctx, p.Type, p.Default, st, path)
			if len(iss) == 0 {
				iss = p.runValidators(ctx, val, p.Default, st, path)
			}
			if len(iss) > 0 {
				for i := range iss {
					iss[i].Code = CodeSchema
					iss[i].Message = fmt.Sprintf("default for %s.%s: %s", td.Name, p.Name, iss[i].Message)
				}
				ld.iss = append(ld.iss, iss...)
				continue
			}
			p.defaultVal = val
		}
	}
}

package yasl

import (
	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// ExportRecord renders one validated record back into the document shape it
// was loaded from. Fields whose values came from schema defaults are
// omitted, so the output matches what the author wrote.
func ExportRecord(rec *Record, reg *Registry) *yamldoc.Doc {
	return &yamldoc.Doc{Root: exportRecordNode(rec, reg)}
}

// ExportStore renders every record in the store, grouped by type in
// first-insertion order, records in load order. Re-validating the result
// against the same registry reproduces the store.
func ExportStore(store *Store, reg *Registry) []*yamldoc.Doc {
	var out []*yamldoc.Doc
	for _, key := range store.TypeNames() {
		tn, err := parseTypeName(key)
		if err != nil {
			continue
		}
		for _, rec := range store.Records(tn) {
			out = append(out, ExportRecord(rec, reg))
		}
	}
	return out
}

func exportRecordNode(rec *Record, reg *Registry) *yamldoc.Node {
	m := yamldoc.NewMap()
	td, ok := reg.Type(rec.Type)
	for _, name := range rec.FieldNames() {
		if rec.Defaulted(name) {
			continue
		}
		v, _ := rec.Field(name)
		var t *TypeRef
		if ok {
			if p, found := td.Property(name); found {
				t = p.Type
			}
		}
		m.Set(name, valueNode(reg, t, v))
	}
	return m
}

func valueNode(reg *Registry, t *TypeRef, v any) *yamldoc.Node {
	switch x := v.(type) {
	case nil:
		return yamldoc.NewNull()
	case string:
		return yamldoc.NewStr(x)
	case bool:
		return yamldoc.NewBool(x)
	case int64:
		return yamldoc.NewInt(x)
	case float64:
		return yamldoc.NewFloat(x)
	case Date:
		return yamldoc.NewRawScalar(x.String())
	case DateTime:
		return yamldoc.NewRawScalar(x.String())
	case ClockTime:
		return yamldoc.NewRawScalar(x.String())
	case unit.Quantity:
		return yamldoc.NewRawScalar(x.String())
	case []any:
		var elem *TypeRef
		if t != nil && t.Kind == KindList {
			elem = t.Elem
		}
		items := make([]*yamldoc.Node, 0, len(x))
		for _, item := range x {
			items = append(items, valueNode(reg, elem, item))
		}
		return yamldoc.NewSeq(items...)
	case *Map:
		var vt *TypeRef
		if t != nil && t.Kind == KindMap {
			vt = t.Val
		}
		m := &yamldoc.Node{Kind: yamldoc.MappingNode}
		for _, e := range x.Entries() {
			m.Pairs = append(m.Pairs, yamldoc.Pair{
				Key:   valueNode(reg, nil, e.Key),
				Value: valueNode(reg, vt, e.Val),
			})
		}
		return m
	case *Record:
		return exportRecordNode(x, reg)
	default:
		return yamldoc.NewRawScalar(CanonicalString(v))
	}
}

// ExportSchema reproduces the definitions tree the registry was loaded from:
// metadata, namespaces, enums, and types with their properties, presence,
// defaults, and validators.
func (r *Registry) ExportSchema() *yamldoc.Doc {
	root := yamldoc.NewMap()
	if r.Metadata.Name != "" || r.Metadata.Description != "" {
		meta := yamldoc.NewMap()
		if r.Metadata.Name != "" {
			meta.Set("name", yamldoc.NewStr(r.Metadata.Name))
		}
		if r.Metadata.Description != "" {
			meta.Set("description", yamldoc.NewStr(r.Metadata.Description))
		}
		root.Set("metadata", meta)
	}
	defs := yamldoc.NewMap()
	for _, nsName := range r.nsOrder {
		ns := r.namespaces[nsName]
		nsNode := yamldoc.NewMap()
		if len(ns.enumOrder) > 0 {
			enums := yamldoc.NewMap()
			for _, name := range ns.enumOrder {
				enums.Set(name, enumNode(ns.Enums[name]))
			}
			nsNode.Set("enums", enums)
		}
		if len(ns.typeOrder) > 0 {
			types := yamldoc.NewMap()
			for _, name := range ns.typeOrder {
				types.Set(name, typeNode(ns.Types[name]))
			}
			nsNode.Set("types", types)
		}
		defs.Set(nsName, nsNode)
	}
	root.Set("definitions", defs)
	return &yamldoc.Doc{Root: root}
}

func enumNode(ed *EnumDef) *yamldoc.Node {
	values := make([]*yamldoc.Node, 0, len(ed.Values))
	for _, v := range ed.Values {
		values = append(values, yamldoc.NewStr(v))
	}
	if ed.Description == "" {
		return yamldoc.NewSeq(values...)
	}
	return yamldoc.NewMap().
		Set("description", yamldoc.NewStr(ed.Description)).
		Set("values", yamldoc.NewSeq(values...))
}

func typeNode(td *TypeDef) *yamldoc.Node {
	n := yamldoc.NewMap()
	if td.Description != "" {
		n.Set("description", yamldoc.NewStr(td.Description))
	}
	props := yamldoc.NewMap()
	for _, p := range td.Properties {
		props.Set(p.Name, propertyNode(p))
	}
	n.Set("properties", props)
	if len(td.Rules) > 0 {
		rules := make([]*yamldoc.Node, 0, len(td.Rules))
		for _, rule := range td.Rules {
			rules = append(rules, ruleNode(rule))
		}
		n.Set("validators", yamldoc.NewSeq(rules...))
	}
	return n
}

func propertyNode(p *PropertyDef) *yamldoc.Node {
	plain := p.Description == "" && p.Presence == PresenceRequired &&
		!p.Unique && p.Default == nil && len(p.Validators) == 0
	if plain {
		// shorthand form: the signature alone
		return yamldoc.NewStr(p.Type.Signature())
	}
	n := yamldoc.NewMap()
	n.Set("type", yamldoc.NewStr(p.Type.Signature()))
	if p.Description != "" {
		n.Set("description", yamldoc.NewStr(p.Description))
	}
	if p.Presence != PresenceRequired {
		n.Set("presence", yamldoc.NewStr(p.Presence.String()))
	}
	if p.Default != nil {
		n.Set("default", p.Default)
	}
	if p.Unique {
		n.Set("unique", yamldoc.NewBool(true))
	}
	for _, v := range p.Validators {
		if v.node != nil {
			n.Set(v.Kind.String(), v.node)
		}
	}
	return n
}

func ruleNode(rule Rule) *yamldoc.Node {
	switch rule.Kind {
	case RuleOnlyOne, RuleAtLeastOne:
		fields := make([]*yamldoc.Node, 0, len(rule.Fields))
		for _, f := range rule.Fields {
			fields = append(fields, yamldoc.NewStr(f))
		}
		return yamldoc.NewMap().Set(rule.Kind.String(), yamldoc.NewSeq(fields...))
	default:
		body := yamldoc.NewMap()
		body.Set("eval", yamldoc.NewStr(rule.Eval))
		vals := make([]*yamldoc.Node, 0, len(rule.Values))
		for _, v := range rule.Values {
			vals = append(vals, yamldoc.NewStr(v))
		}
		body.Set("value", yamldoc.NewSeq(vals...))
		if len(rule.Present) > 0 {
			fields := make([]*yamldoc.Node, 0, len(rule.Present))
			for _, f := range rule.Present {
				fields = append(fields, yamldoc.NewStr(f))
			}
			body.Set("present", yamldoc.NewSeq(fields...))
		}
		if len(rule.Absent) > 0 {
			fields := make([]*yamldoc.Node, 0, len(rule.Absent))
			for _, f := range rule.Absent {
				fields = append(fields, yamldoc.NewStr(f))
			}
			body.Set("absent", yamldoc.NewSeq(fields...))
		}
		return yamldoc.NewMap().Set("if_then", body)
	}
}

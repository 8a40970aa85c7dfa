package yasl

import "fmt"

// ResolveReferences is the phase-2 pass: once every document of the batch is
// in the store, every ref[...] value is checked against the uniqueness index
// of its target property. Deferring the check makes load order between
// documents and files irrelevant. Dangling references are reported with the
// referencing record's provenance; the records themselves stay in the store.
func ResolveReferences(store *Store, reg *Registry) Issues {
	var iss Issues
	for _, key := range store.TypeNames() {
		tn, err := parseTypeName(key)
		if err != nil {
			continue
		}
		td, ok := reg.Type(tn)
		if !ok {
			continue
		}
		for _, rec := range store.Records(tn) {
			iss = append(iss, resolveRecord(store, reg, td, rec)...)
		}
	}
	return iss
}

func resolveRecord(store *Store, reg *Registry, td *TypeDef, rec *Record) Issues {
	var iss Issues
	for _, p := range td.Properties {
		v, ok := rec.Field(p.Name)
		if !ok {
			continue
		}
		iss = append(iss, resolveValue(store, reg, p.Type, v, rec, "/"+p.Name)...)
	}
	return iss
}

func resolveValue(store *Store, reg *Registry, t *TypeRef, v any, rec *Record, path string) Issues {
	switch t.Kind {
	case KindRef:
		canonical := CanonicalString(v)
		if _, ok := store.Index().Lookup(t.Ref.Type, t.Ref.Property, canonical); !ok {
			return Issues{{
				Path: path, Code: CodeDanglingRef,
				Message: fmt.Sprintf("no %s loaded with %s %q", t.Ref.Type, t.Ref.Property, canonical),
				File:    rec.Prov.File, Line: rec.Prov.Line, Col: rec.Prov.Col,
			}}
		}
	case KindList:
		items, ok := v.([]any)
		if !ok {
			return nil
		}
		var iss Issues
		for i, item := range items {
			iss = append(iss, resolveValue(store, reg, t.Elem, item, rec, fmt.Sprintf("%s/%d", path, i))...)
		}
		return iss
	case KindMap:
		m, ok := v.(*Map)
		if !ok {
			return nil
		}
		var iss Issues
		for _, e := range m.Entries() {
			iss = append(iss, resolveValue(store, reg, t.Val, e.Val, rec, path+"/"+CanonicalString(e.Key))...)
		}
		return iss
	case KindNamed:
		nested, ok := v.(*Record)
		if !ok {
			return nil
		}
		td, ok := reg.Type(t.Name)
		if !ok {
			return nil
		}
		return rebase(resolveRecord(store, reg, td, nested), path)
	}
	return nil
}

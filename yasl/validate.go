package yasl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl/unit"
)

// URLProber checks one URL for reachability. The default prober issues a
// HEAD request with a bounded timeout; tests and offline loads inject their
// own.
type URLProber func(ctx context.Context, rawURL string) error

// state carries per-load plumbing through the recursive validation walk.
type state struct {
	file   string
	index  *UniquenessIndex // committed values from prior documents
	staged []uniqueEntry    // this document's unique registrations
	prober URLProber
}

func (st *state) probe(ctx context.Context, rawURL string) error {
	if st.prober == nil {
		return nil
	}
	return st.prober(ctx, rawURL)
}

// stageUnique registers a unique value, checking the committed index and
// this document's own staged values for duplicates.
func (st *state) stageUnique(t TypeName, prop string, val any, prov Provenance) (Issue, bool) {
	canonical := CanonicalString(val)
	key := uniqueKey{Type: t, Property: prop}
	if st.index != nil {
		if first, ok := st.index.Lookup(t, prop, canonical); ok {
			return Issue{
				Code:    CodeUniqueness,
				Message: fmt.Sprintf("duplicate value %q for unique %s.%s, first seen at %s", CanonicalString(val), t, prop, first),
				File:    prov.File, Line: prov.Line, Col: prov.Col,
			}, false
		}
	}
	for _, e := range st.staged {
		if e.key == key && e.canonical == canonical {
			return Issue{
				Code:    CodeUniqueness,
				Message: fmt.Sprintf("duplicate value %q for unique %s.%s, first seen at %s", CanonicalString(val), t, prop, e.prov),
				File:    prov.File, Line: prov.Line, Col: prov.Col,
			}, false
		}
	}
	st.staged = append(st.staged, uniqueEntry{key: key, canonical: canonical, display: CanonicalString(val), prov: prov})
	return Issue{}, true
}

func issueAt(file string, n *yamldoc.Node, path, code, msg string) Issue {
	it := Issue{Path: path, Code: code, Message: msg, File: file}
	if n != nil {
		it.Line, it.Col = n.Line, n.Column
	}
	return it
}

type loadOptions struct {
	rootType     string
	prober       URLProber
	probeTimeout time.Duration
	store        *Store
}

// LoadOption adjusts one document load.
type LoadOption func(*loadOptions)

// WithRootType validates every document against the named type instead of
// inferring a type per document.
func WithRootType(name string) LoadOption {
	return func(o *loadOptions) { o.rootType = name }
}

// WithURLProber replaces the url_reachable probe.
func WithURLProber(p URLProber) LoadOption {
	return func(o *loadOptions) { o.prober = p }
}

// WithProbeTimeout bounds the url_reachable probe.
func WithProbeTimeout(d time.Duration) LoadOption {
	return func(o *loadOptions) { o.probeTimeout = d }
}

// WithStore appends the batch to an existing store generation instead of
// starting an empty one. Pair it with Store.Fork so readers of the previous
// generation keep a stable view while the load runs.
func WithStore(s *Store) LoadOption {
	return func(o *loadOptions) { o.store = s }
}

func defaultProber(timeout time.Duration) URLProber {
	client := &http.Client{}
	return func(ctx context.Context, rawURL string) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("status %s", resp.Status)
		}
		return nil
	}
}

// LoadDocuments runs the two-phase load: phase 1 validates each document on
// its own and commits the valid ones to a fresh store; after the batch is
// drained, phase 2 resolves every ref[...] value against the uniqueness
// index. Rejected documents never enter the store, and dangling references
// are reported without removing the records that carry them. The returned
// issues include warnings; a non-nil store is returned even when issues are
// present.
func LoadDocuments(ctx context.Context, docs []*yamldoc.Doc, reg *Registry, opts ...LoadOption) (*Store, Issues) {
	o := loadOptions{probeTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prober == nil {
		o.prober = defaultProber(o.probeTimeout)
	}

	var rootDef *TypeDef
	if o.rootType != "" {
		td, err := reg.FindType(o.rootType)
		if err != nil {
			return nil, Issues{{Code: CodeUnknownType, Message: err.Error()}}
		}
		rootDef = td
	}

	store := o.store
	if store == nil {
		store = NewStore()
	}
	var out Issues
	for _, doc := range docs {
		td := rootDef
		if td == nil {
			var iss Issues
			td, iss = reg.inferRootType(doc)
			if td == nil {
				out = append(out, iss...)
				continue
			}
		}
		st := &state{file: doc.File, index: store.Index(), prober: o.prober}
		rec, iss := reg.validateRecord(ctx, td, doc.Root, st, "")
		out = append(out, iss...)
		if !iss.HasErrors() {
			store.commit(rec, st.staged)
		}
	}
	out = append(out, ResolveReferences(store, reg)...)
	return store, out
}

// inferRootType matches a document's top-level keys against the registered
// types: every document key must be a property and every required property
// must be a document key. Exactly one candidate may remain.
func (r *Registry) inferRootType(doc *yamldoc.Doc) (*TypeDef, Issues) {
	root := doc.Root
	if root == nil || root.Kind != yamldoc.MappingNode {
		return nil, Issues{issueAt(doc.File, root, "", CodeInvalidType, "document wants a mapping at the top level")}
	}
	keys := make([]string, 0, len(root.Pairs))
	for _, p := range root.Pairs {
		keys = append(keys, p.Key.Value)
	}
	var candidates []*TypeDef
	for _, td := range r.Types() {
		if matchesType(td, keys) {
			candidates = append(candidates, td)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return nil, Issues{issueAt(doc.File, root, "", CodeUnknownType,
			fmt.Sprintf("no registered type matches document keys %s", strings.Join(keys, ", ")))}
	default:
		names := make([]string, len(candidates))
		for i, td := range candidates {
			names[i] = td.QualifiedName().String()
		}
		sort.Strings(names)
		it := issueAt(doc.File, root, "", CodeAmbiguousType, "document matches more than one type")
		it.Hint = "candidates: " + strings.Join(names, ", ")
		return nil, Issues{it}
	}
}

func matchesType(td *TypeDef, keys []string) bool {
	for _, k := range keys {
		if _, ok := td.Property(k); !ok {
			return false
		}
	}
	for _, p := range td.Properties {
		if p.Presence == PresenceRequired && !containsString(keys, p.Name) {
			return false
		}
	}
	return true
}

// validateRecord applies the presence, type, constraint, and uniqueness
// checks in order to one mapping node, then the type-level rules once every
// property came out clean. All violations are collected; nothing
// short-circuits.
func (r *Registry) validateRecord(ctx context.Context, td *TypeDef, n *yamldoc.Node, st *state, path string) (*Record, Issues) {
	if n == nil || n.Kind != yamldoc.MappingNode {
		return nil, Issues{issueAt(st.file, n, orRoot(path), CodeInvalidType,
			fmt.Sprintf("%s wants a mapping", td.QualifiedName()))}
	}
	rec := newRecord(td.QualifiedName(), Provenance{File: st.file, Line: n.Line, Col: n.Column})
	var iss Issues

	for _, p := range n.Pairs {
		if _, ok := td.Property(p.Key.Value); !ok {
			iss = append(iss, issueAt(st.file, p.Key, path+"/"+p.Key.Value, CodeUnknownKey,
				fmt.Sprintf("%s has no property %q", td.QualifiedName(), p.Key.Value)))
		}
	}

	for _, p := range td.Properties {
		fieldPath := path + "/" + p.Name
		node, found := n.Get(p.Name)
		if !found || node.IsNull() {
			switch p.Presence {
			case PresenceRequired:
				iss = append(iss, issueAt(st.file, n, fieldPath, CodeRequired,
					fmt.Sprintf("%s is required", p.Name)))
			case PresencePreferred:
				it := issueAt(st.file, n, fieldPath, CodePreferred,
					fmt.Sprintf("%s is preferred", p.Name))
				it.Warning = true
				iss = append(iss, it)
			case PresenceOptional:
				if p.HasDefault() {
					if p.Unique {
						if dup, ok := st.stageUnique(rec.Type, p.Name, p.defaultVal, rec.Prov); !ok {
							dup.Path = fieldPath
							iss = append(iss, dup)
							continue
						}
					}
					rec.set(p.Name, p.defaultVal, true)
				}
			}
			continue
		}

		val, valIss := r.checkValue(ctx, p.Type, node, st, fieldPath)
		iss = append(iss, valIss...)
		if valIss.HasErrors() {
			continue
		}
		conIss := p.runValidators(ctx, val, node, st, fieldPath)
		iss = append(iss, conIss...)
		if conIss.HasErrors() {
			continue
		}
		if p.Unique {
			prov := Provenance{File: st.file, Line: node.Line, Col: node.Column}
			if dup, ok := st.stageUnique(rec.Type, p.Name, val, prov); !ok {
				dup.Path = fieldPath
				iss = append(iss, dup)
				continue
			}
		}
		rec.set(p.Name, val, false)
	}

	if !iss.HasErrors() {
		for _, rule := range td.Rules {
			ruleIss := rule.run(rec, st.file, n)
			iss = append(iss, rebase(ruleIss, orRoot(path))...)
		}
	}
	return rec, iss
}

func orRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// checkValue coerces and validates one raw node against a resolved type,
// returning the normalized value.
func (r *Registry) checkValue(ctx context.Context, t *TypeRef, n *yamldoc.Node, st *state, path string) (any, Issues) {
	switch t.Kind {
	case KindPrimitive:
		return r.checkPrimitive(t.Prim, n, st, path)
	case KindEnum:
		ed, ok := r.Enum(t.Name)
		if !ok {
			return nil, Issues{issueAt(st.file, n, path, CodeSchema, fmt.Sprintf("unresolved enum %s", t.Name))}
		}
		if n.Kind != yamldoc.ScalarNode {
			return nil, Issues{issueAt(st.file, n, path, CodeInvalidType, fmt.Sprintf("want one of enum %s, got %s", t.Name, n.Kind))}
		}
		if !ed.Has(n.Value) {
			return nil, Issues{issueAt(st.file, n, path, CodeInvalidEnum,
				fmt.Sprintf("%q is not one of %s (%s)", n.Value, t.Name, strings.Join(ed.Values, ", ")))}
		}
		return n.Value, nil
	case KindList:
		if n.Kind != yamldoc.SequenceNode {
			return nil, Issues{issueAt(st.file, n, path, CodeInvalidType, fmt.Sprintf("want a list of %s", t.Elem.Signature()))}
		}
		var iss Issues
		out := make([]any, 0, len(n.Items))
		for i, item := range n.Items {
			v, itemIss := r.checkValue(ctx, t.Elem, item, st, fmt.Sprintf("%s/%d", path, i))
			iss = append(iss, itemIss...)
			if itemIss.HasErrors() {
				continue
			}
			out = append(out, v)
		}
		if iss.HasErrors() {
			return nil, iss
		}
		return out, iss
	case KindMap:
		return r.checkMap(ctx, t, n, st, path)
	case KindRef:
		target, ok := r.Type(t.Ref.Type)
		if !ok {
			return nil, Issues{issueAt(st.file, n, path, CodeSchema, fmt.Sprintf("unresolved ref target %s", t.Ref.Type))}
		}
		tp, ok := target.Property(t.Ref.Property)
		if !ok {
			return nil, Issues{issueAt(st.file, n, path, CodeSchema, fmt.Sprintf("unresolved ref target %s", t.Ref))}
		}
		// structural only: the raw value must fit the target property's
		// type; existence is phase 2
		return r.checkValue(ctx, tp.Type, n, st, path)
	case KindQuantity:
		if n.Kind != yamldoc.ScalarNode {
			return nil, Issues{issueAt(st.file, n, path, CodeInvalidType, fmt.Sprintf("want a %s quantity", t.Dimension))}
		}
		q, err := unit.ParseAs(n.Value, t.Dimension)
		if err != nil {
			return nil, Issues{issueAt(st.file, n, path, CodeUnit, err.Error())}
		}
		return q, nil
	case KindNamed:
		td, ok := r.Type(t.Name)
		if !ok {
			return nil, Issues{issueAt(st.file, n, path, CodeSchema, fmt.Sprintf("unresolved type %s", t.Name))}
		}
		rec, iss := r.validateRecord(ctx, td, n, st, path)
		if iss.HasErrors() {
			return nil, iss
		}
		// nested warnings still surface
		return rec, iss
	default:
		return nil, Issues{issueAt(st.file, n, path, CodeSchema, "unhandled type kind")}
	}
}

func (r *Registry) checkMap(ctx context.Context, t *TypeRef, n *yamldoc.Node, st *state, path string) (any, Issues) {
	if n.Kind != yamldoc.MappingNode {
		return nil, Issues{issueAt(st.file, n, path, CodeInvalidType, fmt.Sprintf("want a %s", t.Signature()))}
	}
	var iss Issues
	out := &Map{}
	seen := map[string]bool{}
	for _, p := range n.Pairs {
		kv, kIss := r.checkValue(ctx, t.Key, p.Key, st, path+"/"+p.Key.Value)
		iss = append(iss, kIss...)
		if kIss.HasErrors() {
			continue
		}
		canonical := CanonicalString(kv)
		if seen[canonical] {
			iss = append(iss, issueAt(st.file, p.Key, path+"/"+p.Key.Value, CodeDuplicateKey,
				fmt.Sprintf("key %q appears twice", p.Key.Value)))
			continue
		}
		seen[canonical] = true
		vv, vIss := r.checkValue(ctx, t.Val, p.Value, st, path+"/"+p.Key.Value)
		iss = append(iss, vIss...)
		if vIss.HasErrors() {
			continue
		}
		out.put(kv, vv)
	}
	if iss.HasErrors() {
		return nil, iss
	}
	return out, iss
}

func (r *Registry) checkPrimitive(prim Primitive, n *yamldoc.Node, st *state, path string) (any, Issues) {
	fail := func(msg string) (any, Issues) {
		return nil, Issues{issueAt(st.file, n, path, CodeInvalidType, msg)}
	}
	if n == nil {
		return fail(fmt.Sprintf("want %s, got nothing", prim))
	}
	if prim != PrimAny && n.Kind != yamldoc.ScalarNode {
		return fail(fmt.Sprintf("want %s, got %s", prim, n.Kind))
	}
	switch prim {
	case PrimStr:
		if n.Tag != yamldoc.TagStr {
			return fail(fmt.Sprintf("want str, got %s", tagName(n.Tag)))
		}
		return n.Value, nil
	case PrimInt:
		switch n.Tag {
		case yamldoc.TagInt:
			i, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return fail(fmt.Sprintf("integer %q overflows", n.Value))
			}
			return i, nil
		case yamldoc.TagStr:
			i, err := strconv.ParseInt(strings.TrimSpace(n.Value), 10, 64)
			if err != nil {
				return fail(fmt.Sprintf("want int, got %q", n.Value))
			}
			return i, nil
		case yamldoc.TagFloat:
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil || f != float64(int64(f)) {
				return fail(fmt.Sprintf("want int, got %q", n.Value))
			}
			return int64(f), nil
		default:
			return fail(fmt.Sprintf("want int, got %s", tagName(n.Tag)))
		}
	case PrimFloat:
		switch n.Tag {
		case yamldoc.TagFloat, yamldoc.TagInt:
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return fail(fmt.Sprintf("want float, got %q", n.Value))
			}
			return f, nil
		case yamldoc.TagStr:
			f, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
			if err != nil {
				return fail(fmt.Sprintf("want float, got %q", n.Value))
			}
			return f, nil
		default:
			return fail(fmt.Sprintf("want float, got %s", tagName(n.Tag)))
		}
	case PrimBool:
		switch n.Tag {
		case yamldoc.TagBool:
			return n.Value == "true", nil
		case yamldoc.TagStr:
			switch n.Value {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return fail(fmt.Sprintf("want bool, got %q", n.Value))
		default:
			return fail(fmt.Sprintf("want bool, got %s", tagName(n.Tag)))
		}
	case PrimDate:
		d, err := ParseDate(n.Value)
		if err != nil {
			return fail(fmt.Sprintf("%q: %v", n.Value, err))
		}
		return d, nil
	case PrimDateTime:
		dt, err := ParseDateTime(n.Value)
		if err != nil {
			return fail(fmt.Sprintf("%q: %v", n.Value, err))
		}
		return dt, nil
	case PrimClockTime:
		ct, err := ParseClockTime(n.Value)
		if err != nil {
			return fail(fmt.Sprintf("%q: %v", n.Value, err))
		}
		return ct, nil
	case PrimPath:
		if n.Tag != yamldoc.TagStr {
			return fail(fmt.Sprintf("want path, got %s", tagName(n.Tag)))
		}
		return n.Value, nil
	case PrimURL:
		if n.Tag != yamldoc.TagStr {
			return fail(fmt.Sprintf("want url, got %s", tagName(n.Tag)))
		}
		u, err := url.Parse(n.Value)
		if err != nil || u.Scheme == "" {
			return fail(fmt.Sprintf("malformed url %q", n.Value))
		}
		return n.Value, nil
	case PrimAny:
		return anyValue(n), nil
	case PrimType:
		if n.Tag != yamldoc.TagStr {
			return fail(fmt.Sprintf("want a type signature, got %s", tagName(n.Tag)))
		}
		sig, err := ParseTypeSignature(n.Value)
		if err != nil {
			return fail(fmt.Sprintf("bad type signature %q: %v", n.Value, err))
		}
		if err := r.resolveSignature(sig); err != nil {
			return fail(fmt.Sprintf("type signature %q: %v", n.Value, err))
		}
		return n.Value, nil
	default:
		return fail("unhandled primitive")
	}
}

// resolveSignature checks the named types inside a type-valued field against
// the registry. Unqualified names must match exactly one namespace.
func (r *Registry) resolveSignature(t *TypeRef) error {
	switch t.Kind {
	case KindList:
		return r.resolveSignature(t.Elem)
	case KindMap:
		if err := r.resolveSignature(t.Key); err != nil {
			return err
		}
		return r.resolveSignature(t.Val)
	case KindNamed:
		if t.Name.Namespace != "" {
			if _, ok := r.Type(t.Name); ok {
				return nil
			}
			if _, ok := r.Enum(t.Name); ok {
				return nil
			}
			return fmt.Errorf("unknown type %s", t.Name)
		}
		if _, err := r.FindType(t.Name.Name); err == nil {
			return nil
		}
		for _, nsName := range r.nsOrder {
			if _, ok := r.namespaces[nsName].Enums[t.Name.Name]; ok {
				return nil
			}
		}
		return fmt.Errorf("unknown type %s", t.Name.Name)
	case KindRef:
		target := t.Ref.Type
		if target.Namespace == "" {
			td, err := r.FindType(target.Name)
			if err != nil {
				return err
			}
			target = td.QualifiedName()
		}
		td, ok := r.Type(target)
		if !ok {
			return fmt.Errorf("unknown type %s", target)
		}
		if _, ok := td.Property(t.Ref.Property); !ok {
			return fmt.Errorf("%s has no property %s", target, t.Ref.Property)
		}
		return nil
	default:
		return nil
	}
}

// anyValue converts a node into the loosest typed form for `any` properties.
func anyValue(n *yamldoc.Node) any {
	switch n.Kind {
	case yamldoc.ScalarNode:
		switch n.Tag {
		case yamldoc.TagNull:
			return nil
		case yamldoc.TagBool:
			return n.Value == "true"
		case yamldoc.TagInt:
			if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
				return i
			}
			return n.Value
		case yamldoc.TagFloat:
			if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
				return f
			}
			return n.Value
		default:
			return n.Value
		}
	case yamldoc.SequenceNode:
		out := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			out = append(out, anyValue(item))
		}
		return out
	case yamldoc.MappingNode:
		out := &Map{}
		for _, p := range n.Pairs {
			out.put(anyValue(p.Key), anyValue(p.Value))
		}
		return out
	default:
		return nil
	}
}

func tagName(tag string) string { return strings.TrimPrefix(tag, "!!") }

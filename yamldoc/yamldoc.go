// Package yamldoc turns YAML text into a small document tree that keeps
// source positions, and turns such trees back into YAML text. It is the only
// package in this module that touches the YAML wire format; everything above
// it works on *Node trees.
package yamldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the three shapes a document tree is built from.
type Kind int

const (
	ScalarNode Kind = iota + 1
	MappingNode
	SequenceNode
)

func (k Kind) String() string {
	switch k {
	case ScalarNode:
		return "scalar"
	case MappingNode:
		return "mapping"
	case SequenceNode:
		return "sequence"
	default:
		return "unknown"
	}
}

// Resolved scalar tags as produced by the YAML parser.
const (
	TagStr       = "!!str"
	TagInt       = "!!int"
	TagFloat     = "!!float"
	TagBool      = "!!bool"
	TagNull      = "!!null"
	TagTimestamp = "!!timestamp"
)

// Node is one element of a parsed document: a scalar carrying its raw text
// and resolved tag, a mapping with entries in source order, or a sequence.
// Line and Column are 1-based positions in the source text; nodes built
// programmatically for export carry zero positions.
type Node struct {
	Kind   Kind
	Value  string // scalar text
	Tag    string // resolved scalar tag
	Pairs  []Pair // mapping entries
	Items  []*Node
	Line   int
	Column int
}

// Pair is one key/value entry of a mapping node.
type Pair struct {
	Key   *Node
	Value *Node
}

// Doc is one YAML document plus the file it came from. File is empty for
// trees parsed from memory or built for export.
type Doc struct {
	File string
	Root *Node
}

// Parse decodes a YAML stream into its documents. Multi-document streams
// ("---" separated) yield one Doc per document; empty documents are skipped.
func Parse(data []byte, file string) ([]*Doc, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*Doc
	for {
		var yn yaml.Node
		err := dec.Decode(&yn)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if file != "" {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			return nil, err
		}
		root, err := fromYAML(&yn, map[*yaml.Node]bool{})
		if err != nil {
			if file != "" {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			return nil, err
		}
		if root == nil {
			continue
		}
		docs = append(docs, &Doc{File: file, Root: root})
	}
	return docs, nil
}

// ParseFile reads and parses one YAML file.
func ParseFile(path string) ([]*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

func fromYAML(yn *yaml.Node, seen map[*yaml.Node]bool) (*Node, error) {
	switch yn.Kind {
	case yaml.DocumentNode:
		if len(yn.Content) == 0 {
			return nil, nil
		}
		return fromYAML(yn.Content[0], seen)
	case yaml.AliasNode:
		if yn.Alias == nil {
			return nil, fmt.Errorf("line %d: unresolved alias %q", yn.Line, yn.Value)
		}
		if seen[yn.Alias] {
			return nil, fmt.Errorf("line %d: recursive alias %q", yn.Line, yn.Value)
		}
		seen[yn.Alias] = true
		n, err := fromYAML(yn.Alias, seen)
		delete(seen, yn.Alias)
		return n, err
	case yaml.ScalarNode:
		return &Node{Kind: ScalarNode, Value: yn.Value, Tag: yn.Tag, Line: yn.Line, Column: yn.Column}, nil
	case yaml.SequenceNode:
		n := &Node{Kind: SequenceNode, Line: yn.Line, Column: yn.Column}
		for _, c := range yn.Content {
			item, err := fromYAML(c, seen)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil
	case yaml.MappingNode:
		n := &Node{Kind: MappingNode, Line: yn.Line, Column: yn.Column}
		for i := 0; i+1 < len(yn.Content); i += 2 {
			k, err := fromYAML(yn.Content[i], seen)
			if err != nil {
				return nil, err
			}
			v, err := fromYAML(yn.Content[i+1], seen)
			if err != nil {
				return nil, err
			}
			n.Pairs = append(n.Pairs, Pair{Key: k, Value: v})
		}
		return n, nil
	default:
		return nil, nil
	}
}

// IsNull reports whether n is a null scalar.
func (n *Node) IsNull() bool {
	return n == nil || (n.Kind == ScalarNode && n.Tag == TagNull)
}

// Get looks up a mapping entry by scalar key.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != MappingNode {
		return nil, false
	}
	for _, p := range n.Pairs {
		if p.Key != nil && p.Key.Kind == ScalarNode && p.Key.Value == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Len returns the number of entries of a mapping or sequence node.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case MappingNode:
		return len(n.Pairs)
	case SequenceNode:
		return len(n.Items)
	default:
		return 0
	}
}

// Builders used by the export side.

func NewStr(s string) *Node   { return &Node{Kind: ScalarNode, Value: s, Tag: TagStr} }
func NewBool(b bool) *Node    { return &Node{Kind: ScalarNode, Value: strconv.FormatBool(b), Tag: TagBool} }
func NewInt(i int64) *Node    { return &Node{Kind: ScalarNode, Value: strconv.FormatInt(i, 10), Tag: TagInt} }
func NewNull() *Node          { return &Node{Kind: ScalarNode, Value: "null", Tag: TagNull} }
func NewSeq(items ...*Node) *Node {
	return &Node{Kind: SequenceNode, Items: items}
}
func NewFloat(f float64) *Node {
	return &Node{Kind: ScalarNode, Value: strconv.FormatFloat(f, 'g', -1, 64), Tag: TagFloat}
}

// NewRawScalar builds a scalar whose tag is resolved by the encoder, for
// values whose YAML shape is already known (timestamps, quantities).
func NewRawScalar(s string) *Node { return &Node{Kind: ScalarNode, Value: s} }

// NewMap builds an empty mapping; populate it with Set.
func NewMap() *Node { return &Node{Kind: MappingNode} }

// Set appends a string-keyed entry and returns the mapping for chaining.
func (n *Node) Set(key string, v *Node) *Node {
	n.Pairs = append(n.Pairs, Pair{Key: NewStr(key), Value: v})
	return n
}

// Marshal renders one document as YAML text.
func (d *Doc) Marshal() ([]byte, error) {
	return MarshalStream([]*Doc{d})
}

// MarshalStream renders documents as one YAML stream, "---" separated.
func MarshalStream(docs []*Doc) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, d := range docs {
		if d == nil || d.Root == nil {
			continue
		}
		if err := enc.Encode(toYAML(d.Root)); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toYAML(n *Node) *yaml.Node {
	yn := &yaml.Node{}
	switch n.Kind {
	case ScalarNode:
		yn.Kind = yaml.ScalarNode
		yn.Value = n.Value
		yn.Tag = n.Tag
	case SequenceNode:
		yn.Kind = yaml.SequenceNode
		for _, item := range n.Items {
			yn.Content = append(yn.Content, toYAML(item))
		}
	case MappingNode:
		yn.Kind = yaml.MappingNode
		for _, p := range n.Pairs {
			yn.Content = append(yn.Content, toYAML(p.Key), toYAML(p.Value))
		}
	}
	return yn
}

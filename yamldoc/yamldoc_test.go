package yamldoc_test

import (
	"strings"
	"testing"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
)

func TestParse_MultiDocument(t *testing.T) {
	src := `name: alice
age: 30
---
name: bob
age: 25
`
	docs, err := yamldoc.Parse([]byte(src), "people.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d", len(docs))
	}
	for i, d := range docs {
		if d.File != "people.yaml" {
			t.Fatalf("doc %d: want file people.yaml, got %q", i, d.File)
		}
		if d.Root.Kind != yamldoc.MappingNode {
			t.Fatalf("doc %d: want mapping root, got %s", i, d.Root.Kind)
		}
	}
	name, ok := docs[1].Root.Get("name")
	if !ok || name.Value != "bob" {
		t.Fatalf("want second doc name bob, got %v", name)
	}
}

func TestParse_PositionsAndTags(t *testing.T) {
	src := "name: alice\nage: 30\nheight: 1.7\nactive: true\nnickname: \"42\"\n"
	docs, err := yamldoc.Parse([]byte(src), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := docs[0].Root

	age, _ := root.Get("age")
	if age.Tag != yamldoc.TagInt || age.Value != "30" {
		t.Fatalf("want !!int 30, got %s %q", age.Tag, age.Value)
	}
	if age.Line != 2 {
		t.Fatalf("want age on line 2, got %d", age.Line)
	}
	height, _ := root.Get("height")
	if height.Tag != yamldoc.TagFloat {
		t.Fatalf("want !!float, got %s", height.Tag)
	}
	active, _ := root.Get("active")
	if active.Tag != yamldoc.TagBool {
		t.Fatalf("want !!bool, got %s", active.Tag)
	}
	// quoting forces the string tag, which the type checker relies on
	nick, _ := root.Get("nickname")
	if nick.Tag != yamldoc.TagStr || nick.Value != "42" {
		t.Fatalf("want !!str \"42\", got %s %q", nick.Tag, nick.Value)
	}
}

func TestParse_RecursiveAlias(t *testing.T) {
	src := "a: &x\n  b: *x\n"
	if _, err := yamldoc.Parse([]byte(src), "loop.yaml"); err == nil {
		t.Fatalf("expected an error for a recursive alias")
	}
}

func TestParse_SharedAliasIsFine(t *testing.T) {
	src := "base: &b\n  k: v\nleft: *b\nright: *b\n"
	docs, err := yamldoc.Parse([]byte(src), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	left, _ := docs[0].Root.Get("left")
	k, ok := left.Get("k")
	if !ok || k.Value != "v" {
		t.Fatalf("want alias expanded to mapping with k: v, got %v", left)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	root := yamldoc.NewMap().
		Set("name", yamldoc.NewStr("alice")).
		Set("age", yamldoc.NewInt(30)).
		Set("score", yamldoc.NewFloat(1.5)).
		Set("active", yamldoc.NewBool(true)).
		Set("code", yamldoc.NewStr("007")).
		Set("tags", yamldoc.NewSeq(yamldoc.NewStr("a"), yamldoc.NewStr("b")))
	out, err := (&yamldoc.Doc{Root: root}).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	docs, err := yamldoc.Parse(out, "")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	back := docs[0].Root
	if got, _ := back.Get("age"); got.Tag != yamldoc.TagInt || got.Value != "30" {
		t.Fatalf("age did not round-trip: %s %q", got.Tag, got.Value)
	}
	// a numeric-looking string must stay a string
	if got, _ := back.Get("code"); got.Tag != yamldoc.TagStr || got.Value != "007" {
		t.Fatalf("code did not stay a string: %s %q", got.Tag, got.Value)
	}
	if got, _ := back.Get("tags"); got.Len() != 2 {
		t.Fatalf("want 2 tags, got %d", got.Len())
	}
}

func TestMarshalStream_Separator(t *testing.T) {
	a := &yamldoc.Doc{Root: yamldoc.NewMap().Set("n", yamldoc.NewInt(1))}
	b := &yamldoc.Doc{Root: yamldoc.NewMap().Set("n", yamldoc.NewInt(2))}
	out, err := yamldoc.MarshalStream([]*yamldoc.Doc{a, b})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "---") {
		t.Fatalf("want a document separator in:\n%s", out)
	}
	docs, err := yamldoc.Parse(out, "")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents back, got %d", len(docs))
	}
}

func TestNode_GetAndIsNull(t *testing.T) {
	docs, err := yamldoc.Parse([]byte("a: null\nb: 1\n"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := docs[0].Root
	a, ok := root.Get("a")
	if !ok || !a.IsNull() {
		t.Fatalf("want a to be null, got %v", a)
	}
	if _, ok := root.Get("missing"); ok {
		t.Fatalf("did not expect to find a missing key")
	}
}

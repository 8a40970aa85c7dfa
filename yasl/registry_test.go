package yasl_test

import (
	"strings"
	"testing"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

func parseDocs(t *testing.T, file, src string) []*yamldoc.Doc {
	t.Helper()
	docs, err := yamldoc.Parse([]byte(src), file)
	if err != nil {
		t.Fatalf("parse %s: %v", file, err)
	}
	return docs
}

func loadSchema(t *testing.T, srcs ...string) *yasl.Registry {
	t.Helper()
	var docs []*yamldoc.Doc
	for _, s := range srcs {
		docs = append(docs, parseDocs(t, "schema.yasl", s)...)
	}
	reg, err := yasl.LoadSchema(docs...)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return reg
}

func schemaIssues(t *testing.T, srcs ...string) yasl.Issues {
	t.Helper()
	var docs []*yamldoc.Doc
	for _, s := range srcs {
		docs = append(docs, parseDocs(t, "schema.yasl", s)...)
	}
	_, err := yasl.LoadSchema(docs...)
	if err == nil {
		t.Fatalf("expected schema issues")
	}
	iss, ok := yasl.AsIssues(err)
	if !ok {
		t.Fatalf("expected Issues, got %T", err)
	}
	return iss
}

func hasIssue(iss yasl.Issues, code, contains string) bool {
	for _, it := range iss {
		if it.Code == code && strings.Contains(it.Message, contains) {
			return true
		}
	}
	return false
}

const agileSchema = `
metadata:
  name: agile backlog
definitions:
  agile:
    enums:
      Status:
        - todo
        - doing
        - done
    types:
      Epic:
        description: A body of work.
        properties:
          id:
            type: str
            unique: true
          name: str
          status:
            type: Status
            default: todo
      Task:
        properties:
          id:
            type: str
            unique: true
          epic:
            type: ref[Epic.id]
          estimate:
            type: duration
            presence: optional
`

func TestLoadSchema_Basic(t *testing.T) {
	reg := loadSchema(t, agileSchema)
	if reg.Metadata.Name != "agile backlog" {
		t.Fatalf("metadata name not collected: %q", reg.Metadata.Name)
	}
	if got := reg.NamespaceNames(); len(got) != 1 || got[0] != "agile" {
		t.Fatalf("want [agile], got %v", got)
	}
	td, ok := reg.Type(yasl.TypeName{Namespace: "agile", Name: "Epic"})
	if !ok {
		t.Fatalf("Epic not registered")
	}
	id, ok := td.Property("id")
	if !ok || !id.Unique {
		t.Fatalf("Epic.id should be unique")
	}
	if id.Presence != yasl.PresenceRequired {
		t.Fatalf("presence should default to required, got %s", id.Presence)
	}
	status, _ := td.Property("status")
	if status.Type.Kind != yasl.KindEnum {
		t.Fatalf("status should resolve to an enum, got %s", status.Type.Kind)
	}
	if !status.HasDefault() {
		t.Fatalf("status should carry a default")
	}
	en, ok := reg.Enum(yasl.TypeName{Namespace: "agile", Name: "Status"})
	if !ok || !en.Has("doing") || en.Has("blocked") {
		t.Fatalf("enum membership wrong: %v", en)
	}
	task, _ := reg.Type(yasl.TypeName{Namespace: "agile", Name: "Task"})
	est, _ := task.Property("estimate")
	if est.Presence != yasl.PresenceOptional {
		t.Fatalf("estimate should be optional, got %s", est.Presence)
	}
	if est.Type.Kind != yasl.KindQuantity || est.Type.Dimension != "duration" {
		t.Fatalf("estimate should be a duration quantity, got %v", est.Type)
	}
}

func TestLoadSchema_ForwardReferenceAcrossDocs(t *testing.T) {
	first := `
definitions:
  shop:
    types:
      Order:
        properties:
          id:
            type: str
            unique: true
          customer:
            type: ref[Customer.id]
          lines: Line[]
`
	second := `
definitions:
  shop:
    types:
      Customer:
        properties:
          id:
            type: str
            unique: true
      Line:
        properties:
          sku: str
          qty: int
`
	reg := loadSchema(t, first, second)
	order, ok := reg.Type(yasl.TypeName{Namespace: "shop", Name: "Order"})
	if !ok {
		t.Fatalf("Order not registered")
	}
	lines, _ := order.Property("lines")
	if lines.Type.Kind != yasl.KindList || lines.Type.Elem.Kind != yasl.KindNamed {
		t.Fatalf("lines should be a list of a named type, got %v", lines.Type)
	}
}

func TestLoadSchema_UnknownTypeWithHint(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      Holder:
        properties:
          w: Widget
  b:
    types:
      Widget:
        properties:
          n: str
`)
	if !hasIssue(iss, yasl.CodeUnknownType, "unknown type Widget") {
		t.Fatalf("expected an unknown type issue, got %v", iss)
	}
	var hint string
	for _, it := range iss {
		if it.Code == yasl.CodeUnknownType {
			hint = it.Hint
		}
	}
	if !strings.Contains(hint, "did you mean one of: b") {
		t.Fatalf("expected a namespace hint, got %q", hint)
	}
}

func TestLoadSchema_CircularTypes(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  g:
    types:
      A:
        properties:
          next: B
      B:
        properties:
          back: A
`)
	if !hasIssue(iss, yasl.CodeCircularType, "unable to resolve dependencies:") {
		t.Fatalf("expected a circular type issue, got %v", iss)
	}
}

func TestLoadSchema_ListBreaksCycle(t *testing.T) {
	loadSchema(t, `
definitions:
  g:
    types:
      A:
        properties:
          children: A[]
          name: str
`)
}

func TestLoadSchema_DuplicateType(t *testing.T) {
	dup := `
definitions:
  a:
    types:
      T:
        properties:
          n: str
`
	iss := schemaIssues(t, dup, dup)
	if !hasIssue(iss, yasl.CodeSchema, "type a.T defined twice") {
		t.Fatalf("expected a duplicate type issue, got %v", iss)
	}
}

func TestLoadSchema_BadDefault(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  hr:
    types:
      Person:
        properties:
          name: str
          age:
            type: int
            ge: 18
            default: 12
`)
	if !hasIssue(iss, yasl.CodeSchema, "default for Person.age:") {
		t.Fatalf("expected a default validation issue, got %v", iss)
	}
}

func TestLoadSchema_UniqueNonScalar(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      T:
        properties:
          tags:
            type: str[]
            unique: true
`)
	if !hasIssue(iss, yasl.CodeSchema, "unique applies to scalar properties, not str[]") {
		t.Fatalf("expected a unique constraint issue, got %v", iss)
	}
}

func TestLoadSchema_ValidatorTypeMismatch(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      T:
        properties:
          name:
            type: str
            ge: 10
`)
	if !hasIssue(iss, yasl.CodeSchema, "ge applies to int, float, or quantity properties, not str") {
		t.Fatalf("expected a validator mismatch issue, got %v", iss)
	}
}

func TestLoadSchema_RefTargetMustBeUnique(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      Target:
        properties:
          name: str
      Source:
        properties:
          t: ref[Target.name]
`)
	if !hasIssue(iss, yasl.CodeSchema, "ref target a.Target.name must be unique") {
		t.Fatalf("expected a ref target issue, got %v", iss)
	}
}

func TestLoadSchema_RefTargetMissingProperty(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      Target:
        properties:
          id:
            type: str
            unique: true
      Source:
        properties:
          t: ref[Target.code]
`)
	if !hasIssue(iss, yasl.CodeSchema, "ref target a.Target has no property code") {
		t.Fatalf("expected a missing ref property issue, got %v", iss)
	}
}

func TestLoadSchema_EnumLongForm(t *testing.T) {
	reg := loadSchema(t, `
definitions:
  a:
    enums:
      Level:
        description: Severity levels.
        values:
          - low
          - high
    types:
      T:
        properties:
          level: Level
`)
	en, ok := reg.Enum(yasl.TypeName{Namespace: "a", Name: "Level"})
	if !ok || en.Description != "Severity levels." {
		t.Fatalf("long form enum not collected: %v", en)
	}
	if !en.Has("low") {
		t.Fatalf("enum should contain low")
	}
}

func TestLoadSchema_EnumRepeatedValue(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    enums:
      Level:
        - low
        - low
    types:
      T:
        properties:
          level: Level
`)
	if !hasIssue(iss, yasl.CodeSchema, `enum Level repeats value "low"`) {
		t.Fatalf("expected a repeated enum value issue, got %v", iss)
	}
}

func TestLoadSchema_TypeNeedsProperties(t *testing.T) {
	iss := schemaIssues(t, `
definitions:
  a:
    types:
      Empty:
        description: nothing here
`)
	if !hasIssue(iss, yasl.CodeSchema, "type Empty wants at least one property") {
		t.Fatalf("expected an empty type issue, got %v", iss)
	}
}

func TestRegistry_FindType(t *testing.T) {
	reg := loadSchema(t, `
definitions:
  a:
    types:
      X:
        properties:
          n: str
  b:
    types:
      X:
        properties:
          n: str
      Y:
        properties:
          n: str
`)
	if _, err := reg.FindType("Y"); err != nil {
		t.Fatalf("unqualified unique name should resolve: %v", err)
	}
	td, err := reg.FindType("a.X")
	if err != nil || td.Namespace != "a" {
		t.Fatalf("qualified lookup failed: %v %v", td, err)
	}
	_, err = reg.FindType("X")
	if err == nil || !strings.Contains(err.Error(), "ambiguous type X: a.X, b.X") {
		t.Fatalf("expected an ambiguity error, got %v", err)
	}
	if _, err := reg.FindType("Zed"); err == nil {
		t.Fatalf("expected an unknown type error")
	}
}

func TestLoadSchema_NoDefinitions(t *testing.T) {
	_, err := yasl.LoadSchema()
	if err == nil {
		t.Fatalf("expected an error for an empty schema")
	}
	iss, _ := yasl.AsIssues(err)
	if !hasIssue(iss, yasl.CodeSchema, "no definitions found") {
		t.Fatalf("expected a no definitions issue, got %v", iss)
	}
}

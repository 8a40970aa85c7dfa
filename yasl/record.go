package yasl

import (
	"fmt"

	"github.com/google/uuid"
)

// Provenance locates a record or value in its source document.
type Provenance struct {
	File string
	Line int
	Col  int
}

func (p Provenance) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Record is one validated document instance. Fields are immutable once the
// document validation engine has built the record; the id makes the record
// addressable across export and store generations.
type Record struct {
	Type TypeName
	ID   uuid.UUID
	Prov Provenance

	fields    map[string]any
	order     []string
	defaulted map[string]bool
}

func newRecord(t TypeName, prov Provenance) *Record {
	return &Record{
		Type:   t,
		ID:     uuid.New(),
		Prov:   prov,
		fields: map[string]any{},
	}
}

func (r *Record) set(name string, v any, wasDefault bool) {
	if _, ok := r.fields[name]; !ok {
		r.order = append(r.order, name)
	}
	r.fields[name] = v
	if wasDefault {
		if r.defaulted == nil {
			r.defaulted = map[string]bool{}
		}
		r.defaulted[name] = true
	}
}

// Field looks up a field value by name.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// FieldNames returns the record's field names in schema property order.
func (r *Record) FieldNames() []string { return r.order }

// Defaulted reports whether the field's value came from the schema default
// rather than the document. Export omits such fields.
func (r *Record) Defaulted(name string) bool { return r.defaulted[name] }

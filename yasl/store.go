package yasl

import (
	"sync"

	"github.com/google/uuid"
)

// uniqueKey addresses one unique-marked property.
type uniqueKey struct {
	Type     TypeName
	Property string
}

// uniqueEntry is a staged registration: a value observed for a unique
// property while its document is still being validated. Entries commit to
// the index only when the whole document validates.
type uniqueEntry struct {
	key       uniqueKey
	canonical string
	display   string
	prov      Provenance
}

// UniquenessIndex records every observed value of every unique property,
// keyed by canonical form. It backs both duplicate detection and phase-2
// reference resolution.
type UniquenessIndex struct {
	entries map[uniqueKey]map[string]Provenance
}

func newUniquenessIndex() *UniquenessIndex {
	return &UniquenessIndex{entries: map[uniqueKey]map[string]Provenance{}}
}

// Lookup reports whether canonical was registered for (t, property) and
// where its first occurrence came from.
func (ix *UniquenessIndex) Lookup(t TypeName, property, canonical string) (Provenance, bool) {
	prov, ok := ix.entries[uniqueKey{Type: t, Property: property}][canonical]
	return prov, ok
}

func (ix *UniquenessIndex) commit(staged []uniqueEntry) {
	for _, e := range staged {
		m := ix.entries[e.key]
		if m == nil {
			m = map[string]Provenance{}
			ix.entries[e.key] = m
		}
		if _, ok := m[e.canonical]; !ok {
			m[e.canonical] = e.prov
		}
	}
}

// Store is the in-memory database: validated records grouped by type, in
// insertion order, plus the uniqueness index built during the load. A store
// is append-only while a load session runs and read-only afterwards; reloads
// build a fresh store and swap it in whole.
type Store struct {
	mu         sync.RWMutex
	generation uuid.UUID
	records    map[string][]*Record
	typeOrder  []string
	index      *UniquenessIndex
}

// NewStore returns an empty store with a fresh generation id.
func NewStore() *Store {
	return &Store{
		generation: uuid.New(),
		records:    map[string][]*Record{},
		index:      newUniquenessIndex(),
	}
}

// Generation identifies this store instance across atomic swaps.
func (s *Store) Generation() uuid.UUID { return s.generation }

// commit appends a validated record and registers its staged unique values.
// Writers are serialized; records are immutable once committed.
func (s *Store) commit(rec *Record, staged []uniqueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Type.String()
	if _, ok := s.records[key]; !ok {
		s.typeOrder = append(s.typeOrder, key)
	}
	s.records[key] = append(s.records[key], rec)
	s.index.commit(staged)
}

// Fork returns a new store generation seeded with the receiver's records and
// uniqueness registrations. Further loads append to the fork while readers
// holding the receiver keep a stable dataset.
func (s *Store) Fork() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next := NewStore()
	for key, recs := range s.records {
		next.records[key] = append([]*Record(nil), recs...)
	}
	next.typeOrder = append([]string(nil), s.typeOrder...)
	for key, vals := range s.index.entries {
		m := make(map[string]Provenance, len(vals))
		for c, p := range vals {
			m[c] = p
		}
		next.index.entries[key] = m
	}
	return next
}

// Records returns the records of one type in insertion order.
func (s *Store) Records(t TypeName) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[t.String()]
}

// TypeNames returns the names of types holding records, in first-insertion
// order.
func (s *Store) TypeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.typeOrder...)
}

// Len returns the total record count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}

// Index exposes the uniqueness index for reference resolution.
func (s *Store) Index() *UniquenessIndex { return s.index }

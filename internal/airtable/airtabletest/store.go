// Package airtabletest provides an in-memory twin of the remote table API for
// tests and local development.
package airtabletest

import (
	"strings"
	"sync"
	"time"

	"github.com/devrev/tablegateway/internal/model"
	"github.com/google/uuid"
)

// Store holds the twin's tables in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[model.TableRef]*table
	now    func() time.Time
}

type table struct {
	records map[string]model.Record
	order   []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tables: make(map[model.TableRef]*table),
		now:    time.Now,
	}
}

// NewRecordID returns an id shaped like a remote record id: "rec" followed by
// 14 alphanumeric characters.
func NewRecordID() string {
	return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// EnsureTable creates the table if it does not exist.
func (s *Store) EnsureTable(ref model.TableRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(ref)
}

func (s *Store) ensure(ref model.TableRef) *table {
	t, ok := s.tables[ref]
	if !ok {
		t = &table{records: make(map[string]model.Record)}
		s.tables[ref] = t
	}
	return t
}

// HasTable reports whether the table exists.
func (s *Store) HasTable(ref model.TableRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[ref]
	return ok
}

// Insert adds a record, assigning an id and creation time when unset, and
// returns the stored copy.
func (s *Store) Insert(ref model.TableRef, rec model.Record) model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.ensure(ref)
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	if rec.CreatedTime == "" {
		rec.CreatedTime = s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	rec.Fields = copyFields(rec.Fields)
	if _, exists := t.records[rec.ID]; !exists {
		t.order = append(t.order, rec.ID)
	}
	t.records[rec.ID] = rec
	return cloneRecord(rec)
}

// Get returns a record by id.
func (s *Store) Get(ref model.TableRef, id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[ref]
	if !ok {
		return model.Record{}, false
	}
	rec, ok := t.records[id]
	if !ok {
		return model.Record{}, false
	}
	return cloneRecord(rec), true
}

// Patch merges fields into a record. A nil value clears the field.
func (s *Store) Patch(ref model.TableRef, id string, fields model.Fields) (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[ref]
	if !ok {
		return model.Record{}, false
	}
	rec, ok := t.records[id]
	if !ok {
		return model.Record{}, false
	}
	for name, value := range fields {
		if value == nil {
			delete(rec.Fields, name)
			continue
		}
		rec.Fields[name] = value
	}
	t.records[id] = rec
	return cloneRecord(rec), true
}

// Delete removes a record and reports whether it existed.
func (s *Store) Delete(ref model.TableRef, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[ref]
	if !ok {
		return false
	}
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all records of a table in insertion order.
func (s *Store) List(ref model.TableRef) ([]model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[ref]
	if !ok {
		return nil, false
	}
	out := make([]model.Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cloneRecord(t.records[id]))
	}
	return out, true
}

// Reset removes every table.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[model.TableRef]*table)
}

func cloneRecord(rec model.Record) model.Record {
	rec.Fields = copyFields(rec.Fields)
	return rec
}

func copyFields(fields model.Fields) model.Fields {
	out := make(model.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

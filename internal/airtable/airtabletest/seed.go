package airtabletest

import (
	"fmt"
	"io"
	"os"

	"github.com/devrev/tablegateway/internal/model"
	"gopkg.in/yaml.v3"
)

// Fixture describes tables and records to preload into a Store.
//
//	tables:
//	  - base: appDEV
//	    table: Boreholes
//	    records:
//	      - fields: {POINT_ID: BH501, Zone: Zone5}
type Fixture struct {
	Tables []TableFixture `yaml:"tables"`
}

// TableFixture is one table of a Fixture.
type TableFixture struct {
	Base    string          `yaml:"base"`
	Table   string          `yaml:"table"`
	Records []RecordFixture `yaml:"records"`
}

// RecordFixture is one record of a TableFixture. ID and CreatedTime are
// generated when empty.
type RecordFixture struct {
	ID          string         `yaml:"id"`
	CreatedTime string         `yaml:"createdTime"`
	Fields      map[string]any `yaml:"fields"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, t := range f.Tables {
		if t.Base == "" || t.Table == "" {
			return nil, fmt.Errorf("fixture table %d: base and table are required", i)
		}
	}
	return &f, nil
}

// LoadFixtureFile reads a YAML fixture from path.
func LoadFixtureFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer file.Close()
	return ParseFixture(file)
}

// Seed loads every table and record of f into the store and returns the
// number of records inserted.
func (s *Store) Seed(f *Fixture) int {
	n := 0
	for _, t := range f.Tables {
		ref := model.NewTableRef(t.Base, t.Table)
		s.EnsureTable(ref)
		for _, rec := range t.Records {
			s.Insert(ref, model.Record{
				ID:          rec.ID,
				CreatedTime: rec.CreatedTime,
				Fields:      model.Fields(rec.Fields),
			})
			n++
		}
	}
	return n
}

// Package model contains the data types exchanged with the remote table API.
package model

import "strings"

// Fields maps a field name to a loosely typed value. Values are strings,
// json.Number, booleans, nil, or nested arrays and objects passed through
// untouched.
type Fields map[string]any

// Record is a single row of a remote table.
type Record struct {
	ID          string `json:"id,omitempty"`
	Fields      Fields `json:"fields"`
	CreatedTime string `json:"createdTime,omitempty"`
}

// TableRef identifies a table within a base.
type TableRef struct {
	BaseID    string `validate:"required,max=64,excludesall=/?#"`
	TableName string `validate:"required,max=255,excludesall=/?#"`
}

// NewTableRef creates a TableRef.
func NewTableRef(baseID, tableName string) TableRef {
	return TableRef{BaseID: baseID, TableName: tableName}
}

// IsZero reports whether neither identifier is set.
func (t TableRef) IsZero() bool {
	return t.BaseID == "" && t.TableName == ""
}

// String returns "base/table".
func (t TableRef) String() string {
	return t.BaseID + "/" + t.TableName
}

// FieldMatch is one exact-match condition on a field.
type FieldMatch struct {
	Field string
	Value string
}

// SortDirection is the ordering applied to a sort field.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortField orders results by a field.
type SortField struct {
	Field     string
	Direction SortDirection
}

// FilterCriteria is an ordered conjunction of exact-match conditions plus
// optional sort fields.
type FilterCriteria struct {
	Matches []FieldMatch
	Sort    []SortField
}

// Where appends an exact-match condition and returns the criteria.
func (c FilterCriteria) Where(field, value string) FilterCriteria {
	c.Matches = append(c.Matches[:len(c.Matches):len(c.Matches)], FieldMatch{Field: field, Value: value})
	return c
}

// OrderBy appends a sort field and returns the criteria.
func (c FilterCriteria) OrderBy(field string, direction SortDirection) FilterCriteria {
	c.Sort = append(c.Sort[:len(c.Sort):len(c.Sort)], SortField{Field: field, Direction: direction})
	return c
}

// IsEmpty reports whether the criteria has neither conditions nor sort fields.
func (c FilterCriteria) IsEmpty() bool {
	return len(c.Matches) == 0 && len(c.Sort) == 0
}

// ParseSortField parses "field" or "-field" into a SortField.
func ParseSortField(s string) SortField {
	if strings.HasPrefix(s, "-") {
		return SortField{Field: s[1:], Direction: SortDescending}
	}
	return SortField{Field: s, Direction: SortAscending}
}

// DeleteConfirmation is the remote acknowledgement of a deleted record.
type DeleteConfirmation struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ListPage is one page of a list response as returned by the remote API.
type ListPage struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

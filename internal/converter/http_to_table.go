// Package converter converts HTTP requests into table operations and table
// results into HTTP response bodies.
package converter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/devrev/tablegateway/internal/model"
	"github.com/gorilla/mux"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 1 << 20

// HTTPToTable handles conversion of HTTP requests to table operations.
type HTTPToTable struct{}

// NewHTTPToTable creates a new HTTPToTable converter.
func NewHTTPToTable() *HTTPToTable {
	return &HTTPToTable{}
}

// TableRef reads the {base} and {table} path variables.
func (c *HTTPToTable) TableRef(r *http.Request) model.TableRef {
	vars := mux.Vars(r)
	return model.NewTableRef(vars["base"], vars["table"])
}

// RecordRef reads the {base}, {table} and {id} path variables.
func (c *HTTPToTable) RecordRef(r *http.Request) (model.TableRef, string) {
	return c.TableRef(r), mux.Vars(r)["id"]
}

// ListRequest reads the table reference and the optional filter criteria.
// Conditions come from repeated filter=<field>:<value> parameters and sort
// fields from repeated sort=<field> parameters, with a leading '-' for
// descending order.
func (c *HTTPToTable) ListRequest(r *http.Request) (model.TableRef, model.FilterCriteria, error) {
	query := r.URL.Query()
	criteria := model.FilterCriteria{}

	for _, raw := range query["filter"] {
		field, value, ok := strings.Cut(raw, ":")
		if !ok {
			return model.TableRef{}, criteria, fmt.Errorf("invalid filter %q: expected <field>:<value>", raw)
		}
		criteria = criteria.Where(field, value)
	}

	for _, raw := range query["sort"] {
		if raw == "" || raw == "-" {
			return model.TableRef{}, criteria, fmt.Errorf("invalid sort %q: expected <field> or -<field>", raw)
		}
		sf := model.ParseSortField(raw)
		criteria = criteria.OrderBy(sf.Field, sf.Direction)
	}

	return c.TableRef(r), criteria, nil
}

// CreateRequest reads a record to create. The body is either
// {"fields": {...}} or a flat object of field values. An object under
// "fields" next to keys other than "id" and "createdTime" is rejected.
func (c *HTTPToTable) CreateRequest(r *http.Request) (model.TableRef, model.Fields, error) {
	obj, err := decodeObject(r)
	if err != nil {
		return model.TableRef{}, nil, err
	}

	if fields, ok := envelopeFields(obj); ok {
		return c.TableRef(r), fields, nil
	}
	if _, isObject := obj["fields"].(map[string]any); isObject {
		return model.TableRef{}, nil, fmt.Errorf("request body mixes \"fields\" with other keys: %s", strings.Join(extraKeys(obj), ", "))
	}
	return c.TableRef(r), model.Fields(obj), nil
}

// UpdateRequest reads a partial update. The body must be {"fields": {...}};
// "id" and "createdTime" keys are ignored.
func (c *HTTPToTable) UpdateRequest(r *http.Request) (model.TableRef, string, model.Fields, error) {
	obj, err := decodeObject(r)
	if err != nil {
		return model.TableRef{}, "", nil, err
	}

	fields, ok := envelopeFields(obj)
	if !ok {
		return model.TableRef{}, "", nil, fmt.Errorf("request body must be of the form {\"fields\": {...}}")
	}
	ref, id := c.RecordRef(r)
	return ref, id, fields, nil
}

// envelopeFields returns the "fields" object when obj is a record envelope:
// a "fields" object plus, optionally, "id" and "createdTime".
func envelopeFields(obj map[string]any) (model.Fields, bool) {
	raw, ok := obj["fields"]
	if !ok {
		return nil, false
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	for key := range obj {
		switch key {
		case "fields", "id", "createdTime":
		default:
			return nil, false
		}
	}
	return model.Fields(fields), true
}

// extraKeys lists the keys of obj that do not belong to a record envelope.
func extraKeys(obj map[string]any) []string {
	var keys []string
	for key := range obj {
		switch key {
		case "fields", "id", "createdTime":
		default:
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func decodeObject(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse request body: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse request body: unexpected data after JSON object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("request body must be a JSON object")
	}
	return obj, nil
}

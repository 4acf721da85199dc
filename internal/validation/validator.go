// Package validation checks identifiers and field maps before they are sent to
// the remote table API.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devrev/tablegateway/internal/model"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxIdentifierSize bounds base ids and record ids.
	MaxIdentifierSize = 64
	// MaxFieldNameSize bounds table and field names.
	MaxFieldNameSize = 255
)

// Validator validates table operations.
type Validator struct {
	validate             *validator.Validate
	requiredCreateFields []string
}

// Option configures a Validator.
type Option func(*Validator)

// WithRequiredCreateFields makes ValidateCreate reject records missing any of
// the named fields.
func WithRequiredCreateFields(fields ...string) Option {
	return func(v *Validator) {
		v.requiredCreateFields = append(v.requiredCreateFields, fields...)
	}
}

// NewValidator creates a new validator.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{validate: validator.New()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateTableRef validates a base id and table name.
func (v *Validator) ValidateTableRef(ref model.TableRef) error {
	if err := v.validate.Struct(ref); err != nil {
		return describe(err)
	}
	return nil
}

// ValidateRecordID validates a record id.
func (v *Validator) ValidateRecordID(id string) error {
	if err := v.validate.Var(id, fmt.Sprintf("required,max=%d,excludesall=/?#", MaxIdentifierSize)); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("record id %s", message(verrs[0]))
		}
		return err
	}
	return nil
}

// ValidateFields checks the shape of a field map: a non-nil map whose keys
// are non-empty and bounded in length.
func (v *Validator) ValidateFields(fields model.Fields) error {
	if fields == nil {
		return fmt.Errorf("fields must be a JSON object")
	}
	for name := range fields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("field names cannot be empty")
		}
		if len(name) > MaxFieldNameSize {
			return fmt.Errorf("field name %.32q... exceeds %d bytes", name, MaxFieldNameSize)
		}
	}
	return nil
}

// ValidateCreate validates a field map for a new record.
func (v *Validator) ValidateCreate(fields model.Fields) error {
	if err := v.ValidateFields(fields); err != nil {
		return err
	}
	var missing []string
	for _, name := range v.requiredCreateFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateCriteria checks that every condition and sort entry names a field.
func (v *Validator) ValidateCriteria(criteria model.FilterCriteria) error {
	for _, m := range criteria.Matches {
		if strings.TrimSpace(m.Field) == "" {
			return fmt.Errorf("filter field cannot be empty")
		}
		if strings.ContainsAny(m.Field, "{}") {
			return fmt.Errorf("filter field %q cannot contain braces", m.Field)
		}
	}
	for _, s := range criteria.Sort {
		if strings.TrimSpace(s.Field) == "" {
			return fmt.Errorf("sort field cannot be empty")
		}
		if s.Direction != model.SortAscending && s.Direction != model.SortDescending {
			return fmt.Errorf("invalid sort direction %q for field %s", s.Direction, s.Field)
		}
	}
	return nil
}

var fieldLabels = map[string]string{
	"BaseID":    "base id",
	"TableName": "table name",
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	return fmt.Errorf("%s %s", label, message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("exceeds %s characters", fe.Param())
	case "excludesall":
		return fmt.Sprintf("cannot contain any of %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Package service translates table operations into remote table API calls.
package service

import (
	"context"

	apierrors "github.com/devrev/tablegateway/internal/errors"
	"github.com/devrev/tablegateway/internal/model"
	"github.com/devrev/tablegateway/internal/validation"
	"go.uber.org/zap"
)

// TableClient is the remote table API as seen by the service.
type TableClient interface {
	ListAll(ctx context.Context, ref model.TableRef) ([]model.Record, error)
	ListFiltered(ctx context.Context, ref model.TableRef, criteria model.FilterCriteria) ([]model.Record, error)
	Get(ctx context.Context, ref model.TableRef, id string) (*model.Record, error)
	Create(ctx context.Context, ref model.TableRef, fields model.Fields) (*model.Record, error)
	Update(ctx context.Context, ref model.TableRef, id string, fields model.Fields) (*model.Record, error)
	Delete(ctx context.Context, ref model.TableRef, id string) (*model.DeleteConfirmation, error)
	Ping(ctx context.Context, ref model.TableRef) error
}

// TableService validates table operations and forwards them to a TableClient.
// Remote errors are returned unchanged.
type TableService struct {
	client    TableClient
	validator *validation.Validator
	defaults  model.TableRef
	logger    *zap.Logger
}

// NewTableService creates a new TableService. defaults is the table used by
// CheckConnection and Ping.
func NewTableService(client TableClient, validator *validation.Validator, defaults model.TableRef, logger *zap.Logger) *TableService {
	if validator == nil {
		validator = validation.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableService{
		client:    client,
		validator: validator,
		defaults:  defaults,
		logger:    logger.Named("service"),
	}
}

// ListRecords returns every record of a table.
func (s *TableService) ListRecords(ctx context.Context, ref model.TableRef) ([]model.Record, error) {
	if err := s.validator.ValidateTableRef(ref); err != nil {
		return nil, apierrors.InvalidRequest("list", err.Error())
	}
	return s.client.ListAll(ctx, ref)
}

// ListFiltered returns every record matching criteria.
func (s *TableService) ListFiltered(ctx context.Context, ref model.TableRef, criteria model.FilterCriteria) ([]model.Record, error) {
	if err := s.validator.ValidateTableRef(ref); err != nil {
		return nil, apierrors.InvalidRequest("list_filtered", err.Error())
	}
	if err := s.validator.ValidateCriteria(criteria); err != nil {
		return nil, apierrors.InvalidRequest("list_filtered", err.Error())
	}
	return s.client.ListFiltered(ctx, ref, criteria)
}

// GetRecord returns a single record.
func (s *TableService) GetRecord(ctx context.Context, ref model.TableRef, id string) (*model.Record, error) {
	if err := s.validateRecordRef(ref, id); err != nil {
		return nil, apierrors.InvalidRequest("get", err.Error())
	}
	return s.client.Get(ctx, ref, id)
}

// CreateRecord creates a record.
func (s *TableService) CreateRecord(ctx context.Context, ref model.TableRef, fields model.Fields) (*model.Record, error) {
	if err := s.validator.ValidateTableRef(ref); err != nil {
		return nil, apierrors.InvalidRequest("create", err.Error())
	}
	if err := s.validator.ValidateCreate(fields); err != nil {
		return nil, apierrors.InvalidRequest("create", err.Error())
	}
	return s.client.Create(ctx, ref, fields)
}

// UpdateRecord partially updates a record. Fields whose value is null are
// dropped before forwarding, so they are never cleared through this path.
func (s *TableService) UpdateRecord(ctx context.Context, ref model.TableRef, id string, fields model.Fields) (*model.Record, error) {
	if err := s.validateRecordRef(ref, id); err != nil {
		return nil, apierrors.InvalidRequest("update", err.Error())
	}
	if err := s.validator.ValidateFields(fields); err != nil {
		return nil, apierrors.InvalidRequest("update", err.Error())
	}

	present := DropNullFields(fields)
	if dropped := len(fields) - len(present); dropped > 0 {
		s.logger.Debug("dropped null fields from update",
			zap.String("table", ref.String()),
			zap.String("record_id", id),
			zap.Int("dropped", dropped),
		)
	}
	return s.client.Update(ctx, ref, id, present)
}

// DeleteRecord deletes a record. Deleting a missing record fails with a
// NotFound error.
func (s *TableService) DeleteRecord(ctx context.Context, ref model.TableRef, id string) (*model.DeleteConfirmation, error) {
	if err := s.validateRecordRef(ref, id); err != nil {
		return nil, apierrors.InvalidRequest("delete", err.Error())
	}
	return s.client.Delete(ctx, ref, id)
}

// CheckConnection lists the default table to confirm the credentials work.
func (s *TableService) CheckConnection(ctx context.Context) error {
	if err := s.requireDefaults("check_connection"); err != nil {
		return err
	}
	_, err := s.client.ListAll(ctx, s.defaults)
	return err
}

// Ping fetches a single record of the default table.
func (s *TableService) Ping(ctx context.Context) error {
	if err := s.requireDefaults("ping"); err != nil {
		return err
	}
	return s.client.Ping(ctx, s.defaults)
}

func (s *TableService) requireDefaults(op string) error {
	if s.defaults.BaseID == "" {
		return apierrors.ConfigurationMissing(op, "AIRTABLE_BASE_ID")
	}
	if s.defaults.TableName == "" {
		return apierrors.ConfigurationMissing(op, "AIRTABLE_TABLE_NAME")
	}
	return nil
}

func (s *TableService) validateRecordRef(ref model.TableRef, id string) error {
	if err := s.validator.ValidateTableRef(ref); err != nil {
		return err
	}
	return s.validator.ValidateRecordID(id)
}

// DropNullFields returns a copy of fields without null values.
func DropNullFields(fields model.Fields) model.Fields {
	out := make(model.Fields, len(fields))
	for name, value := range fields {
		if value != nil {
			out[name] = value
		}
	}
	return out
}

// Package handler provides HTTP request handlers for the table gateway.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/devrev/tablegateway/internal/converter"
	apierrors "github.com/devrev/tablegateway/internal/errors"
	"github.com/devrev/tablegateway/internal/model"
	"github.com/devrev/tablegateway/internal/redact"
	"go.uber.org/zap"
)

// TableService is the table API the handlers depend on.
type TableService interface {
	ListRecords(ctx context.Context, ref model.TableRef) ([]model.Record, error)
	ListFiltered(ctx context.Context, ref model.TableRef, criteria model.FilterCriteria) ([]model.Record, error)
	GetRecord(ctx context.Context, ref model.TableRef, id string) (*model.Record, error)
	CreateRecord(ctx context.Context, ref model.TableRef, fields model.Fields) (*model.Record, error)
	UpdateRecord(ctx context.Context, ref model.TableRef, id string, fields model.Fields) (*model.Record, error)
	DeleteRecord(ctx context.Context, ref model.TableRef, id string) (*model.DeleteConfirmation, error)
	CheckConnection(ctx context.Context) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	service      TableService
	httpToTable  *converter.HTTPToTable
	tableToHTTP  *converter.TableToHTTP
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewHandlers creates a new Handlers instance. timeout bounds each call to
// the service, including every page of a list.
func NewHandlers(
	service TableService,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewHandler(logger)
	}
	return &Handlers{
		service:      service,
		httpToTable:  converter.NewHTTPToTable(),
		tableToHTTP:  converter.NewTableToHTTP(),
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// ListRecords handles GET /{base}/{table}. filter or sort query parameters
// switch it to a filtered list.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	ref, criteria, err := h.httpToTable.ListRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var records []model.Record
	if criteria.IsEmpty() {
		records, err = h.service.ListRecords(ctx, ref)
	} else {
		records, err = h.service.ListFiltered(ctx, ref, criteria)
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.ListRecordsResponse(records))
}

// GetRecord handles GET /{base}/{table}/{id}.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	ref, id := h.httpToTable.RecordRef(r)

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	rec, err := h.service.GetRecord(ctx, ref, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.RecordResponse(rec))
}

// CreateRecord handles POST /{base}/{table}.
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ref, fields, err := h.httpToTable.CreateRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	rec, err := h.service.CreateRecord(ctx, ref, fields)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.Info("record created",
		zap.String("table", ref.String()),
		zap.String("record_id", rec.ID),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
	)
	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.RecordResponse(rec))
}

// UpdateRecord handles PATCH /{base}/{table}/{id}.
func (h *Handlers) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	ref, id, fields, err := h.httpToTable.UpdateRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	rec, err := h.service.UpdateRecord(ctx, ref, id, fields)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.RecordResponse(rec))
}

// DeleteRecord handles DELETE /{base}/{table}/{id}.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ref, id := h.httpToTable.RecordRef(r)

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	confirmation, err := h.service.DeleteRecord(ctx, ref, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.Info("record deleted",
		zap.String("table", ref.String()),
		zap.String("record_id", id),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
	)
	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.DeleteRecordResponse(confirmation))
}

// CheckConnection handles GET /check-connection. It always answers 200 and
// reports failures in the body.
func (h *Handlers) CheckConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	err := h.service.CheckConnection(ctx)
	detail := ""
	if err != nil {
		detail = redact.Error(err)
		h.logger.Warn("connection check failed",
			zap.String("kind", string(apierrors.KindOf(err))),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
		)
	}

	h.writeJSONResponse(w, http.StatusOK, h.tableToHTTP.CheckConnectionResponse(err, detail))
}

func (h *Handlers) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

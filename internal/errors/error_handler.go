package errors

import (
	"encoding/json"
	"net/http"

	"github.com/devrev/tablegateway/internal/redact"
	"go.uber.org/zap"
)

// ErrorResponse is the body written for every failed table request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Handler writes error responses and logs them.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger: logger,
	}
}

// HandleError maps err to a status code and writes a {"detail": ...} body.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := HTTPStatus(err)
	requestID := r.Header.Get("X-Request-ID")

	fields := []zap.Field{
		zap.Int("status_code", statusCode),
		zap.String("kind", string(KindOf(err))),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID),
		zap.String("error", redact.Error(err)),
	}
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("table request failed", fields...)
	} else {
		h.logger.Warn("table request failed", fields...)
	}

	h.WriteErrorResponse(w, statusCode, redact.Error(err))
}

// HTTPStatus converts an error to an HTTP status code. Only NotFound and
// InvalidRequest are distinguished; every other failure is a 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Detail: detail}); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

// WriteValidationError writes a 400 response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, detail string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, detail)
}

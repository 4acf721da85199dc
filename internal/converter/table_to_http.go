package converter

import (
	"github.com/devrev/tablegateway/internal/model"
)

// TableToHTTP handles conversion of table results to HTTP responses.
type TableToHTTP struct{}

// NewTableToHTTP creates a new TableToHTTP converter.
func NewTableToHTTP() *TableToHTTP {
	return &TableToHTTP{}
}

// ListRecordsHTTPResponse represents the HTTP response for a list.
type ListRecordsHTTPResponse struct {
	Records []model.Record `json:"records"`
}

// DeleteRecordHTTPResponse represents the HTTP response for a delete.
type DeleteRecordHTTPResponse struct {
	Message string `json:"message"`
}

// CheckConnectionHTTPResponse represents the HTTP response for a connection
// check. It is always sent with status 200.
type CheckConnectionHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ListRecordsResponse wraps records; a nil slice is sent as [].
func (c *TableToHTTP) ListRecordsResponse(records []model.Record) *ListRecordsHTTPResponse {
	if records == nil {
		records = []model.Record{}
	}
	return &ListRecordsHTTPResponse{Records: records}
}

// RecordResponse returns the record as sent to the caller.
func (c *TableToHTTP) RecordResponse(rec *model.Record) *model.Record {
	if rec.Fields == nil {
		rec.Fields = model.Fields{}
	}
	return rec
}

// DeleteRecordResponse builds the delete acknowledgement.
func (c *TableToHTTP) DeleteRecordResponse(_ *model.DeleteConfirmation) *DeleteRecordHTTPResponse {
	return &DeleteRecordHTTPResponse{Message: "Record deleted successfully"}
}

// CheckConnectionResponse builds the connection check body for err.
func (c *TableToHTTP) CheckConnectionResponse(err error, detail string) *CheckConnectionHTTPResponse {
	if err == nil {
		return &CheckConnectionHTTPResponse{Success: true, Message: "Connection successful"}
	}
	return &CheckConnectionHTTPResponse{Success: false, Message: "Connection failed", Error: detail}
}

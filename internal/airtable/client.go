// Package airtable provides an HTTP client for the remote table API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devrev/tablegateway/internal/config"
	apierrors "github.com/devrev/tablegateway/internal/errors"
	"github.com/devrev/tablegateway/internal/model"
	"github.com/devrev/tablegateway/internal/redact"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public endpoint of the remote table API.
	DefaultBaseURL = "https://api.airtable.com/v0"
	// MaxPageSize is the largest page the remote API returns.
	MaxPageSize = 100

	maxResponseSize = 32 << 20
)

// Recorder receives one observation per remote call.
type Recorder interface {
	RecordRemoteRequest(operation, status string, duration time.Duration)
	RecordRemoteError(operation, kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRemoteRequest(string, string, time.Duration) {}
func (nopRecorder) RecordRemoteError(string, string)                  {}

// Client talks to the remote table API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	limiter    *rate.Limiter
	recorder   Recorder
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is copied,
// and the copy gets the configured timeout when its Timeout is unset.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		cp := *hc
		c.httpClient = &cp
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewClient creates a new client for the remote table API.
func NewClient(cfg config.AirtableConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = MaxPageSize
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d: %d", MaxPageSize, pageSize)
	}

	limit, burst := rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(limit, burst),
		recorder:   nopRecorder{},
		logger:     logger.Named("airtable"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Timeout == 0 {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.httpClient.Timeout = timeout
	}

	return c, nil
}

// ListAll returns every record of the table, following pagination until the
// last page.
func (c *Client) ListAll(ctx context.Context, ref model.TableRef) ([]model.Record, error) {
	return c.list(ctx, "list", ref, model.FilterCriteria{})
}

// ListFiltered returns every record matching criteria. Empty criteria is
// equivalent to ListAll.
func (c *Client) ListFiltered(ctx context.Context, ref model.TableRef, criteria model.FilterCriteria) ([]model.Record, error) {
	return c.list(ctx, "list_filtered", ref, criteria)
}

func (c *Client) list(ctx context.Context, op string, ref model.TableRef, criteria model.FilterCriteria) ([]model.Record, error) {
	records := []model.Record{}
	offset := ""

	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		encodeCriteria(q, criteria)
		if offset != "" {
			q.Set("offset", offset)
		}

		var page model.ListPage
		if err := c.do(ctx, op, http.MethodGet, c.tableURL(ref)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		if page.Records == nil {
			return nil, c.malformed(op, fmt.Errorf("list page has no records"))
		}
		for _, rec := range page.Records {
			if err := c.checkRecord(op, &rec); err != nil {
				return nil, err
			}
			records = append(records, normalize(rec))
		}

		if page.Offset == "" {
			return records, nil
		}
		if page.Offset == offset {
			return nil, apierrors.MalformedResponse(op, fmt.Errorf("remote repeated offset %q", offset))
		}
		offset = page.Offset
	}
}

// Ping fetches a single record to confirm the table is reachable with the
// configured credentials.
func (c *Client) Ping(ctx context.Context, ref model.TableRef) error {
	q := url.Values{}
	q.Set("pageSize", "1")

	var page model.ListPage
	if err := c.do(ctx, "ping", http.MethodGet, c.tableURL(ref)+"?"+q.Encode(), nil, &page); err != nil {
		return err
	}
	if page.Records == nil {
		return c.malformed("ping", fmt.Errorf("list page has no records"))
	}
	return nil
}

// Get returns a single record.
func (c *Client) Get(ctx context.Context, ref model.TableRef, id string) (*model.Record, error) {
	var rec model.Record
	if err := c.do(ctx, "get", http.MethodGet, c.recordURL(ref, id), nil, &rec); err != nil {
		return nil, err
	}
	if err := c.checkRecord("get", &rec); err != nil {
		return nil, err
	}
	rec = normalize(rec)
	return &rec, nil
}

type fieldsBody struct {
	Fields model.Fields `json:"fields"`
}

// Create creates a record from fields.
func (c *Client) Create(ctx context.Context, ref model.TableRef, fields model.Fields) (*model.Record, error) {
	var rec model.Record
	if err := c.do(ctx, "create", http.MethodPost, c.tableURL(ref), fieldsBody{Fields: nonNil(fields)}, &rec); err != nil {
		return nil, err
	}
	if err := c.checkRecord("create", &rec); err != nil {
		return nil, err
	}
	rec = normalize(rec)
	return &rec, nil
}

// Update partially updates a record. Fields not named are left unchanged.
func (c *Client) Update(ctx context.Context, ref model.TableRef, id string, fields model.Fields) (*model.Record, error) {
	var rec model.Record
	if err := c.do(ctx, "update", http.MethodPatch, c.recordURL(ref, id), fieldsBody{Fields: nonNil(fields)}, &rec); err != nil {
		return nil, err
	}
	if err := c.checkRecord("update", &rec); err != nil {
		return nil, err
	}
	rec = normalize(rec)
	return &rec, nil
}

// Delete deletes a record.
func (c *Client) Delete(ctx context.Context, ref model.TableRef, id string) (*model.DeleteConfirmation, error) {
	var conf model.DeleteConfirmation
	if err := c.do(ctx, "delete", http.MethodDelete, c.recordURL(ref, id), nil, &conf); err != nil {
		return nil, err
	}
	if conf.ID == "" || !conf.Deleted {
		return nil, c.malformed("delete", fmt.Errorf("delete was not confirmed: id=%q deleted=%t", conf.ID, conf.Deleted))
	}
	return &conf, nil
}

func (c *Client) tableURL(ref model.TableRef) string {
	return c.baseURL + "/" + url.PathEscape(ref.BaseID) + "/" + url.PathEscape(ref.TableName)
}

func (c *Client) recordURL(ref model.TableRef, id string) string {
	return c.tableURL(ref) + "/" + url.PathEscape(id)
}

// do performs one remote call and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body, out any) (err error) {
	if c.apiKey == "" {
		return apierrors.ConfigurationMissing(op, "AIRTABLE_API_KEY")
	}

	start := time.Now()
	status := "error"
	defer func() {
		duration := time.Since(start)
		c.recorder.RecordRemoteRequest(op, status, duration)
		if err != nil {
			c.recorder.RecordRemoteError(op, string(apierrors.KindOf(err)))
		}
		c.logger.Debug("remote call",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.String("status", status),
			zap.Duration("duration", duration),
			zap.String("error", redact.Error(err)),
		)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return apierrors.RemoteUnavailable(op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apierrors.InvalidRequest(op, fmt.Sprintf("failed to encode request body: %v", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return apierrors.RemoteUnavailable(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierrors.RemoteUnavailable(op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return apierrors.RemoteUnavailable(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteType, message := parseRemoteError(data)
		if resp.StatusCode == http.StatusNotFound {
			return apierrors.NotFound(op, message, resp.StatusCode, remoteType)
		}
		return apierrors.RemoteRejected(op, message, resp.StatusCode, remoteType)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return apierrors.MalformedResponse(op, err)
	}
	return nil
}

// parseRemoteError extracts the error type and message from a remote error
// body. The body is either {"error":"TYPE"} or
// {"error":{"type":"TYPE","message":"..."}}.
func parseRemoteError(data []byte) (remoteType, message string) {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Error) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return s, ""
	}

	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		return detail.Type, detail.Message
	}
	return "", ""
}

// checkRecord rejects a decoded record without an id.
func (c *Client) checkRecord(op string, rec *model.Record) error {
	if rec.ID == "" {
		return c.malformed(op, fmt.Errorf("record has no id"))
	}
	return nil
}

// malformed reports a 2xx body that decoded but has the wrong shape.
func (c *Client) malformed(op string, cause error) error {
	err := apierrors.MalformedResponse(op, cause)
	c.recorder.RecordRemoteError(op, string(apierrors.KindMalformedResponse))
	c.logger.Warn("malformed remote response", zap.String("op", op), zap.Error(cause))
	return err
}

func normalize(rec model.Record) model.Record {
	rec.Fields = nonNil(rec.Fields)
	return rec
}

func nonNil(fields model.Fields) model.Fields {
	if fields == nil {
		return model.Fields{}
	}
	return fields
}

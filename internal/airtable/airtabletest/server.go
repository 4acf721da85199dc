package airtabletest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/devrev/tablegateway/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxPageSize = 100

// RecordedRequest is a request received by the twin.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
}

// Server is an HTTP twin of the remote table API, serving
// /v0/{base}/{table}[/{id}].
type Server struct {
	store  *Store
	apiKey string
	router chi.Router

	mu       sync.Mutex
	requests []RecordedRequest
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey makes the twin accept only this bearer token. Without it any
// non-empty token is accepted.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithStore uses an existing store.
func WithStore(store *Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// NewServer creates a twin server.
func NewServer(opts ...Option) *Server {
	s := &Server{store: NewStore()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Route("/v0/{base}/{table}", func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/", s.listRecords)
		r.Post("/", s.createRecord)
		r.Get("/{id}", s.getRecord)
		r.Patch("/{id}", s.updateRecord)
		r.Delete("/{id}", s.deleteRecord)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Requests returns every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if auth == "" || token == auth || token == "" {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
			return
		}
		if s.apiKey != "" && token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Invalid authentication token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tableRef(r *http.Request) model.TableRef {
	return model.NewTableRef(chi.URLParam(r, "base"), chi.URLParam(r, "table"))
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	ref := tableRef(r)
	records, ok := s.store.List(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}

	q := r.URL.Query()

	pageSize := maxPageSize
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_PAGE_SIZE", "pageSize must be between 1 and 100")
			return
		}
		pageSize = n
	}

	conds, err := parseFormula(q.Get("filterByFormula"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_FILTER_BY_FORMULA", err.Error())
		return
	}
	filtered := records[:0]
	for _, rec := range records {
		if matches(rec, conds) {
			filtered = append(filtered, rec)
		}
	}

	sortRecords(filtered, parseSort(q))

	start := 0
	if offset := q.Get("offset"); offset != "" {
		start = -1
		for i, rec := range filtered {
			if rec.ID == offset {
				start = i
				break
			}
		}
		if start < 0 {
			writeError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "offset is no longer valid")
			return
		}
	}

	end := start + pageSize
	page := model.ListPage{}
	if end < len(filtered) {
		page.Offset = filtered[end].ID
	} else {
		end = len(filtered)
	}
	page.Records = filtered[start:end]

	writeJSON(w, http.StatusOK, page)
}

func parseSort(q url.Values) []model.SortField {
	var fields []model.SortField
	for i := 0; ; i++ {
		field := q.Get(fmt.Sprintf("sort[%d][field]", i))
		if field == "" {
			return fields
		}
		dir := model.SortDirection(q.Get(fmt.Sprintf("sort[%d][direction]", i)))
		if dir != model.SortDescending {
			dir = model.SortAscending
		}
		fields = append(fields, model.SortField{Field: field, Direction: dir})
	}
}

func sortRecords(records []model.Record, fields []model.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, f := range fields {
			c := compareCells(records[i].Fields[f.Field], records[j].Fields[f.Field])
			if c == 0 {
				continue
			}
			if f.Direction == model.SortDescending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareCells(a, b any) int {
	as, bs := cellText(a), cellText(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(as, bs)
}

type fieldsRequest struct {
	Fields model.Fields `json:"fields"`
}

func decodeFields(r *http.Request) (model.Fields, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req fieldsRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("could not parse request body: %w", err)
	}
	if req.Fields == nil {
		return nil, fmt.Errorf("request body must contain a fields object")
	}
	return req.Fields, nil
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	ref := tableRef(r)
	if !s.store.HasTable(ref) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}
	fields, err := decodeFields(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN", err.Error())
		return
	}
	for name, value := range fields {
		if value == nil {
			delete(fields, name)
		}
	}
	writeJSON(w, http.StatusOK, s.store.Insert(ref, model.Record{Fields: fields}))
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Get(tableRef(r), id)
	if !ok {
		writeError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "Could not find record "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Patch(tableRef(r), id, fields)
	if !ok {
		writeError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "Could not find record "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.Delete(tableRef(r), id) {
		writeError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "Could not find record "+id)
		return
	}
	writeJSON(w, http.StatusOK, model.DeleteConfirmation{ID: id, Deleted: true})
}

// writeError writes {"error":"TYPE"} when message is empty and
// {"error":{"type":..,"message":..}} otherwise, mirroring both shapes the
// remote API uses.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	if message == "" {
		writeJSON(w, status, map[string]any{"error": errType})
		return
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"type": errType, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

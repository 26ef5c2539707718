// Package server exposes the ingestion service over HTTP. It is a thin
// collaborator: routing, multipart decoding, JSON rendering, and the mapping
// from pipeline errors to status codes live here and nowhere else.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"analytics/internal/aggregate"
	"analytics/internal/dataset"
	"analytics/internal/ingest"
	"analytics/internal/metrics"
	csvparser "analytics/internal/parser/csv"
	"analytics/internal/schema"
	"analytics/internal/storage"
)

// DefaultMaxUploadBytes bounds one upload payload (32 MiB). Sensor exports
// are far smaller; the bound exists so a bad client cannot exhaust memory.
const DefaultMaxUploadBytes = 32 << 20

// Server handles the four API endpoints.
type Server struct {
	svc            *ingest.Service
	metrics        metrics.Backend
	logger         ingest.Logger
	maxUploadBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics backend. Default: metrics.Nop.
func WithMetrics(b metrics.Backend) Option {
	return func(s *Server) { s.metrics = b }
}

// WithLogger sets the logger. Default: the standard logger.
func WithLogger(l ingest.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxUploadBytes overrides the upload payload bound.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// New builds a Server over svc.
func New(svc *ingest.Service, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		metrics:        metrics.Nop{},
		logger:         log.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router returns the configured route set.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/summary/latest", s.handleLatestSummary).Methods(http.MethodGet)
	api.HandleFunc("/dataset/{id:[0-9]+}/download", s.handleDownload).Methods(http.MethodGet)
	r.Use(s.countRequests)
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.IncCounter(metrics.HTTPRequestsTotal, 1,
			metrics.Labels{"status": strconv.Itoa(sw.status)})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error": fmt.Sprintf("Upload exceeds the %d byte limit", tooBig.Limit),
			})
			return
		}
		writeError(w, http.StatusBadRequest, map[string]any{"error": "No file provided"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, map[string]any{"error": "Unreadable upload: " + err.Error()})
		return
	}

	d, err := s.svc.Ingest(r.Context(), raw, header.Filename)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// writeIngestError maps the pipeline error taxonomy to user-visible
// responses: 400 for parse/schema/data, 404 for not-found, 500 for storage.
func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	var (
		parseErr  *csvparser.ParseError
		schemaErr *schema.SchemaError
		dataErr   *aggregate.DataError
	)
	switch {
	case errors.As(err, &parseErr):
		msg := "Invalid CSV format: " + parseErr.Msg
		if parseErr.Msg == "empty file" {
			msg = "CSV file is empty"
		}
		writeError(w, http.StatusBadRequest, map[string]any{"error": msg})

	case errors.As(err, &schemaErr):
		writeError(w, http.StatusBadRequest, map[string]any{
			"error":    "CSV missing required columns",
			"required": schema.RequiredColumns(),
			"found":    schemaErr.Found,
			"missing":  schemaErr.Missing,
		})

	case errors.As(err, &dataErr):
		writeError(w, http.StatusBadRequest, map[string]any{
			"error":  fmt.Sprintf("Invalid value %q in column %q", dataErr.Value, dataErr.Column),
			"row":    dataErr.Row,
			"column": dataErr.Column,
		})

	default:
		s.logger.Printf("upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, map[string]any{"error": "Processing error"})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListAll(r.Context())
	if err != nil {
		s.logger.Printf("history failed: %v", err)
		writeError(w, http.StatusInternalServerError, map[string]any{"error": "Processing error"})
		return
	}
	if list == nil {
		list = []*dataset.Dataset{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleLatestSummary(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Latest(r.Context())
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, map[string]any{"error": "No datasets found"})
			return
		}
		s.logger.Printf("latest summary failed: %v", err)
		writeError(w, http.StatusInternalServerError, map[string]any{"error": "Processing error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":           d.Summary,
		"uploaded_at":       d.UploadedAt,
		"original_filename": d.OriginalFilename,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, map[string]any{"error": "Dataset not found"})
		return
	}

	d, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	raw, err := s.svc.RawFile(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	filename := d.OriginalFilename
	if filename == "" {
		filename = "dataset.csv"
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, map[string]any{"error": "Dataset not found"})
		return
	}
	s.logger.Printf("download failed: %v", err)
	writeError(w, http.StatusInternalServerError, map[string]any{"error": "Processing error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body map[string]any) {
	writeJSON(w, status, body)
}

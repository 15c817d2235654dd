// Package api exposes the compliance analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridoc/compliscan/analysis"
	"github.com/veridoc/compliscan/annotation"
	"github.com/veridoc/compliscan/storage"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Analyzer runs one compliance check.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) *analysis.Result
}

// AnnotationStore is the CRUD surface for user triage of annotations.
type AnnotationStore interface {
	ListAnnotations(ctx context.Context, documentID string) ([]annotation.Annotation, error)
	GetAnnotation(ctx context.Context, documentID, annotationID string) (*annotation.Annotation, error)
	PutAnnotation(ctx context.Context, a annotation.Annotation) error
	DeleteAnnotation(ctx context.Context, documentID, annotationID string) error
}

// Server serves the analysis and annotation endpoints.
type Server struct {
	analyzer    Analyzer
	annotations AnnotationStore
	logger      *slog.Logger
}

// NewServer creates a Server.
func NewServer(analyzer Analyzer, annotations AnnotationStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		analyzer:    analyzer,
		annotations: annotations,
		logger:      logger,
	}
}

// RegisterHTTPHandlers registers all handlers on the given mux:
//
//	POST   /api/compliance/analyze
//	GET    /api/compliance/annotations?document_id=...
//	PATCH  /api/compliance/annotations/resolve
//	DELETE /api/compliance/annotations?document_id=...&annotation_id=...
//	GET    /healthz
//	GET    /metrics
func (s *Server) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/compliance/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/compliance/annotations", s.handleAnnotations)
	mux.HandleFunc("/api/compliance/annotations/resolve", s.handleResolve)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleAnalyze runs a comprehensive compliance check. The analyzer is its
// own error boundary, so a failed analysis still produces a structured
// JSON body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	res := s.analyzer.Analyze(r.Context(), req)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAnnotations(w, r)
	case http.MethodDelete:
		s.deleteAnnotation(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listAnnotations(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	anns, err := s.annotations.ListAnnotations(r.Context(), documentID)
	if err != nil {
		s.logger.Error("listing annotations failed", "document_id", documentID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if anns == nil {
		anns = []annotation.Annotation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"count":       len(anns),
		"annotations": anns,
	})
}

func (s *Server) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	annotationID := r.URL.Query().Get("annotation_id")
	if documentID == "" || annotationID == "" {
		http.Error(w, "document_id and annotation_id are required", http.StatusBadRequest)
		return
	}

	if err := s.annotations.DeleteAnnotation(r.Context(), documentID, annotationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Annotation not found", http.StatusNotFound)
			return
		}
		s.logger.Error("deleting annotation failed", "annotation_id", annotationID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResolveRequest toggles an annotation's resolved flag.
type ResolveRequest struct {
	DocumentID   string `json:"document_id"`
	AnnotationID string `json:"annotation_id"`
	Resolved     bool   `json:"resolved"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" || req.AnnotationID == "" {
		http.Error(w, "document_id and annotation_id are required", http.StatusBadRequest)
		return
	}

	ann, err := s.annotations.GetAnnotation(r.Context(), req.DocumentID, req.AnnotationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Annotation not found", http.StatusNotFound)
			return
		}
		s.logger.Error("loading annotation failed", "annotation_id", req.AnnotationID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	ann.Resolved = req.Resolved
	ann.UpdatedAt = time.Now().UTC()
	if err := s.annotations.PutAnnotation(r.Context(), *ann); err != nil {
		s.logger.Error("updating annotation failed", "annotation_id", req.AnnotationID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ann)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing useful to do.
		_ = err
	}
}

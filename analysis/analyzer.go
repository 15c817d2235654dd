// Package analysis orchestrates the compliance analysis pipeline: extract
// text blocks from a document, filter to the relevant subset, batch under
// a token budget, generate findings through the model, aggregate, map to
// page annotations, score a verdict, and persist the outcome.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/compliscan/annotation"
	"github.com/veridoc/compliscan/batch"
	"github.com/veridoc/compliscan/config"
	"github.com/veridoc/compliscan/controls"
	"github.com/veridoc/compliscan/document"
	"github.com/veridoc/compliscan/findings"
	"github.com/veridoc/compliscan/llm"
	"github.com/veridoc/compliscan/metrics"
	"github.com/veridoc/compliscan/storage"
	"github.com/veridoc/compliscan/verdict"
)

// Collaborator interfaces. The storage package's Store satisfies all of
// the persistence interfaces; they are split so tests can fake each
// concern independently.

// DocumentStore resolves a document ID to its metadata record.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (*storage.Document, error)
}

// BlobStore fetches raw document bytes by storage key.
type BlobStore interface {
	GetBytes(ctx context.Context, storageKey string) ([]byte, error)
}

// AnnotationStore persists annotations with hash-based upsert semantics.
type AnnotationStore interface {
	ListAnnotations(ctx context.Context, documentID string) ([]annotation.Annotation, error)
	UpsertAnnotations(ctx context.Context, documentID string, anns []annotation.Annotation) (created, updated int, err error)
}

// Cache reads and appends analysis records.
type Cache interface {
	GetLatestAnalysis(ctx context.Context, documentID, frameworkID string) (*storage.AnalysisRecord, error)
	PutAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error
}

// Extractor parses PDF bytes into positioned text blocks.
type Extractor interface {
	Extract(pdfBytes []byte) ([]document.TextBlock, error)
}

// Request asks for one document/framework analysis.
type Request struct {
	DocumentID      string `json:"document_id"`
	FrameworkID     string `json:"framework_id"`
	ForceReanalysis bool   `json:"force_reanalysis"`
}

// Result is the outcome of one analysis request. Analyze always returns a
// Result; failures are reported through Success and Error rather than as
// a Go error.
type Result struct {
	Success          bool                    `json:"success"`
	DocumentID       string                  `json:"document_id"`
	AnalysisID       string                  `json:"analysis_id,omitempty"`
	Framework        string                  `json:"framework"`
	AnnotationsCount int                     `json:"annotations_count"`
	Annotations      []annotation.Annotation `json:"annotations"`
	FinalVerdict     *verdict.Result         `json:"final_verdict,omitempty"`
	Cached           bool                    `json:"cached"`
	CachedAt         *time.Time              `json:"cached_at,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

// Deps are the collaborators an Analyzer needs. Model, Documents, Blobs,
// Controls, Annotations, and Cache are required; Status and Extractor are
// optional (status updates are skipped, extraction defaults to the PDF
// extractor).
type Deps struct {
	Documents   DocumentStore
	Blobs       BlobStore
	Controls    controls.Repository
	Annotations AnnotationStore
	Cache       Cache
	Status      verdict.StatusStore
	Model       llm.Invoker
	Extractor   Extractor
}

// Analyzer drives the analysis pipeline.
type Analyzer struct {
	deps      Deps
	cfg       config.AnalysisConfig
	planner   *batch.Planner
	generator *findings.Generator
	mapper    *annotation.Mapper
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the analyzer's logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = logger }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) AnalyzerOption {
	return func(a *Analyzer) { a.metrics = m }
}

// NewAnalyzer creates an Analyzer from its collaborators and the analysis
// limits.
func NewAnalyzer(deps Deps, cfg config.AnalysisConfig, opts ...AnalyzerOption) (*Analyzer, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if deps.Documents == nil || deps.Blobs == nil || deps.Controls == nil ||
		deps.Annotations == nil || deps.Cache == nil {
		return nil, fmt.Errorf("documents, blobs, controls, annotations, and cache stores are required")
	}

	a := &Analyzer{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.deps.Extractor == nil {
		a.deps.Extractor = document.NewExtractor(cfg.MaxPages, a.logger)
	}

	planner, err := batch.New(batch.Config{
		MaxTokensPerBatch: cfg.MaxTokensPerBatch,
		BlockTextLimit:    450,
	})
	if err != nil {
		return nil, fmt.Errorf("batch planner: %w", err)
	}
	a.planner = planner

	model := deps.Model
	if a.metrics != nil {
		model = a.metrics.Instrument(model)
	}
	a.generator = findings.NewGenerator(model,
		findings.WithLogger(a.logger),
		findings.WithMaxParallel(cfg.MaxParallelBatches),
		findings.WithMaxPerBatch(cfg.MaxFindingsPerBatch),
	)
	a.mapper = annotation.NewMapper(a.logger)

	return a, nil
}

// Analyze runs one comprehensive compliance check. It is the error
// boundary for the whole pipeline: validation and lookup failures abort
// with a failure result, model failures degrade per batch, and
// persistence failures are logged without invalidating the computed
// result.
func (a *Analyzer) Analyze(ctx context.Context, req Request) *Result {
	start := time.Now()

	if err := validate(req); err != nil {
		return a.failure(req, "", err)
	}

	logger := a.logger.With(
		"document_id", req.DocumentID,
		"framework", req.FrameworkID)

	if !req.ForceReanalysis {
		if res := a.cachedResult(ctx, req, logger); res != nil {
			a.record(req.FrameworkID, "cached", start)
			return res
		}
	}

	analysisID := uuid.NewString()
	logger = logger.With("analysis_id", analysisID)
	logger.Info("starting fresh analysis", "force", req.ForceReanalysis)

	res, err := a.analyzeFresh(ctx, req, analysisID, logger)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		a.record(req.FrameworkID, "failed", start)
		return a.failure(req, analysisID, err)
	}

	a.record(req.FrameworkID, "ok", start)
	return res
}

func validate(req Request) error {
	if req.DocumentID == "" {
		return &ValidationError{Field: "document_id", Message: "must not be empty"}
	}
	if !controls.ValidFramework(req.FrameworkID) {
		return &ValidationError{
			Field:   "framework_id",
			Message: fmt.Sprintf("%q is not a supported framework", req.FrameworkID),
		}
	}
	return nil
}

// cachedResult returns a hit as a Result, or nil on miss. Cache read
// errors count as misses.
func (a *Analyzer) cachedResult(ctx context.Context, req Request, logger *slog.Logger) *Result {
	rec, err := a.deps.Cache.GetLatestAnalysis(ctx, req.DocumentID, req.FrameworkID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("cache lookup failed, treating as miss", "error", err)
		}
		if a.metrics != nil {
			a.metrics.CacheMissesTotal.Inc()
		}
		return nil
	}

	if a.metrics != nil {
		a.metrics.CacheHitsTotal.Inc()
	}
	logger.Info("returning cached analysis", "cached_at", rec.CreatedAt)

	cachedAt := rec.CreatedAt
	v := rec.FinalVerdict
	return &Result{
		Success:          true,
		DocumentID:       rec.DocumentID,
		AnalysisID:       rec.AnalysisID,
		Framework:        rec.FrameworkID,
		AnnotationsCount: rec.AnnotationsCount,
		Annotations:      rec.Annotations,
		FinalVerdict:     &v,
		Cached:           true,
		CachedAt:         &cachedAt,
	}
}

func (a *Analyzer) analyzeFresh(ctx context.Context, req Request, analysisID string, logger *slog.Logger) (*Result, error) {
	doc, err := a.deps.Documents.GetDocument(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{DocumentID: req.DocumentID}
		}
		return nil, fmt.Errorf("resolving document: %w", err)
	}

	pdfBytes, err := a.deps.Blobs.GetBytes(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetching document bytes: %w", err)
	}

	blocks, err := a.deps.Extractor.Extract(pdfBytes)
	if err != nil {
		return nil, &ExtractionError{DocumentID: req.DocumentID, Err: err}
	}
	blocks = document.ClassifyAll(blocks)
	relevant := document.FilterRelevant(blocks)
	logger.Info("extracted and filtered blocks",
		"extracted", len(blocks),
		"relevant", len(relevant))
	if a.metrics != nil {
		a.metrics.BlocksExtractedTotal.Add(float64(len(blocks)))
		a.metrics.BlocksFilteredTotal.Add(float64(len(relevant)))
	}

	ctrls, err := a.deps.Controls.ListControls(ctx, req.FrameworkID)
	if err != nil {
		return nil, fmt.Errorf("loading %s controls: %w", req.FrameworkID, err)
	}

	summary := controls.Summary(ctrls, controls.SummaryTopN, controls.SummaryRequirementChars)
	batches := a.planner.Plan(relevant, summary)
	if a.metrics != nil {
		a.metrics.BatchesTotal.Add(float64(len(batches)))
	}

	results := a.generator.GenerateAll(ctx, req.FrameworkID, summary, batches)
	if a.metrics != nil {
		for _, r := range results {
			if r.Err != nil {
				a.metrics.BatchFailuresTotal.Inc()
			}
		}
	}

	final := findings.Aggregate(results, a.cfg.MaxAnnotationsPerPage, a.cfg.MaxTotalFindings)
	if a.metrics != nil {
		for _, f := range final {
			a.metrics.FindingsTotal.WithLabelValues(f.Severity).Inc()
		}
	}
	logger.Info("aggregated findings", "batches", len(batches), "findings", len(final))

	anns := a.mapper.Map(req.DocumentID, analysisID, req.FrameworkID, final, document.BlockLookup(blocks))

	created, updated, err := a.deps.Annotations.UpsertAnnotations(ctx, req.DocumentID, anns)
	if err != nil {
		logger.Warn("annotation persistence failed", "error", err)
		if a.metrics != nil {
			a.metrics.PersistFailuresTotal.WithLabelValues("annotations").Inc()
		}
	} else {
		logger.Info("annotations persisted", "created", created, "updated", updated)
		if a.metrics != nil {
			a.metrics.AnnotationsCreatedTotal.Add(float64(created))
			a.metrics.AnnotationsUpdatedTotal.Add(float64(updated))
		}
	}

	v := verdict.Score(anns)
	verdict.Apply(ctx, a.deps.Status, logger, req.DocumentID, v)

	rec := &storage.AnalysisRecord{
		DocumentID:       req.DocumentID,
		FrameworkID:      req.FrameworkID,
		AnalysisID:       analysisID,
		Annotations:      anns,
		AnnotationsCount: len(anns),
		FinalVerdict:     v,
	}
	if err := a.deps.Cache.PutAnalysis(ctx, rec); err != nil {
		logger.Warn("cache write failed", "error", err)
		if a.metrics != nil {
			a.metrics.PersistFailuresTotal.WithLabelValues("cache").Inc()
		}
	}

	return &Result{
		Success:          true,
		DocumentID:       req.DocumentID,
		AnalysisID:       analysisID,
		Framework:        req.FrameworkID,
		AnnotationsCount: len(anns),
		Annotations:      anns,
		FinalVerdict:     &v,
	}, nil
}

func (a *Analyzer) failure(req Request, analysisID string, err error) *Result {
	return &Result{
		Success:    false,
		DocumentID: req.DocumentID,
		AnalysisID: analysisID,
		Framework:  req.FrameworkID,
		Error:      err.Error(),
	}
}

func (a *Analyzer) record(framework, outcome string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordAnalysis(framework, outcome, time.Since(start))
}

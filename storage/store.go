// Package storage persists documents, annotations, and analysis records
// using NATS JetStream key-value buckets, with PDF bytes in an object
// store.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veridoc/compliscan/annotation"
	"github.com/veridoc/compliscan/verdict"
)

// Bucket names.
const (
	BucketDocuments   = "COMPLISCAN_DOCUMENTS"
	BucketAnnotations = "COMPLISCAN_ANNOTATIONS"
	BucketAnalyses    = "COMPLISCAN_ANALYSES"
	BucketBlobs       = "COMPLISCAN_BLOBS"
)

// Document is the metadata record for an uploaded file.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StorageKey string    `json:"storage_key"`
	Status     string    `json:"status"`
	Verdict    string    `json:"verdict,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AnalysisRecord is one cached analysis outcome. Rows are append-only;
// re-analysis writes a new record rather than updating an old one.
type AnalysisRecord struct {
	RecordID         string                  `json:"record_id"`
	DocumentID       string                  `json:"document_id"`
	FrameworkID      string                  `json:"framework_id"`
	AnalysisID       string                  `json:"analysis_id"`
	Annotations      []annotation.Annotation `json:"annotations"`
	AnnotationsCount int                     `json:"annotations_count"`
	FinalVerdict     verdict.Result          `json:"final_verdict"`
	CreatedAt        time.Time               `json:"created_at"`
}

// Store provides persistence backed by NATS JetStream KV and object
// storage.
type Store struct {
	documents   jetstream.KeyValue
	annotations jetstream.KeyValue
	analyses    jetstream.KeyValue
	blobs       jetstream.ObjectStore
}

// NewStore creates a Store with the given JetStream context, creating the
// buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	documents, err := getOrCreateBucket(ctx, js, BucketDocuments)
	if err != nil {
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}

	annotations, err := getOrCreateBucket(ctx, js, BucketAnnotations)
	if err != nil {
		return nil, fmt.Errorf("create annotations bucket: %w", err)
	}

	analyses, err := getOrCreateBucket(ctx, js, BucketAnalyses)
	if err != nil {
		return nil, fmt.Errorf("create analyses bucket: %w", err)
	}

	blobs, err := getOrCreateObjectStore(ctx, js, BucketBlobs)
	if err != nil {
		return nil, fmt.Errorf("create blob bucket: %w", err)
	}

	return &Store{
		documents:   documents,
		annotations: annotations,
		analyses:    analyses,
		blobs:       blobs,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Compliscan %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

func getOrCreateObjectStore(ctx context.Context, js jetstream.JetStream, name string) (jetstream.ObjectStore, error) {
	os, err := js.ObjectStore(ctx, name)
	if err == nil {
		return os, nil
	}
	return js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      name,
		Description: "Compliscan document bytes",
	})
}

// CreateDocument stores a new document record and its bytes, returning the
// generated document ID.
func (s *Store) CreateDocument(ctx context.Context, name string, pdfBytes []byte) (*Document, error) {
	doc := &Document{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    "uploaded",
		CreatedAt: time.Now().UTC(),
	}
	doc.UpdatedAt = doc.CreatedAt
	doc.StorageKey = "documents/" + doc.ID

	if _, err := s.blobs.PutBytes(ctx, doc.StorageKey, pdfBytes); err != nil {
		return nil, fmt.Errorf("store document bytes: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.documents.Create(ctx, doc.ID, data); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	return doc, nil
}

// GetDocument retrieves a document record by ID.
func (s *Store) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	entry, err := s.documents.Get(ctx, documentID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &doc, nil
}

// GetBytes fetches the raw document bytes for a storage key.
func (s *Store) GetBytes(ctx context.Context, storageKey string) ([]byte, error) {
	data, err := s.blobs.GetBytes(ctx, storageKey)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document bytes: %w", err)
	}
	return data, nil
}

// UpdateStatus writes the post-analysis status and verdict onto the
// document record.
func (s *Store) UpdateStatus(ctx context.Context, documentID, status, verdictName string) error {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	doc.Status = status
	doc.Verdict = verdictName
	doc.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.documents.Put(ctx, doc.ID, data); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// annotationKey namespaces annotations per document so listing can filter
// by key prefix.
func annotationKey(documentID, annotationID string) string {
	return documentID + "." + annotationID
}

// ListAnnotations returns all annotations for a document.
func (s *Store) ListAnnotations(ctx context.Context, documentID string) ([]annotation.Annotation, error) {
	keys, err := s.annotations.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list annotation keys: %w", err)
	}

	prefix := documentID + "."
	anns := make([]annotation.Annotation, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.annotations.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var a annotation.Annotation
		if err := json.Unmarshal(entry.Value(), &a); err != nil {
			continue
		}
		anns = append(anns, a)
	}

	sort.Slice(anns, func(i, j int) bool {
		if anns[i].PageNumber != anns[j].PageNumber {
			return anns[i].PageNumber < anns[j].PageNumber
		}
		return anns[i].AnnotationID < anns[j].AnnotationID
	})
	return anns, nil
}

// GetAnnotation retrieves one annotation.
func (s *Store) GetAnnotation(ctx context.Context, documentID, annotationID string) (*annotation.Annotation, error) {
	entry, err := s.annotations.Get(ctx, annotationKey(documentID, annotationID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}

	var a annotation.Annotation
	if err := json.Unmarshal(entry.Value(), &a); err != nil {
		return nil, fmt.Errorf("unmarshal annotation: %w", err)
	}
	return &a, nil
}

// PutAnnotation writes one annotation record.
func (s *Store) PutAnnotation(ctx context.Context, a annotation.Annotation) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal annotation: %w", err)
	}
	if _, err := s.annotations.Put(ctx, annotationKey(a.DocumentID, a.AnnotationID), data); err != nil {
		return fmt.Errorf("store annotation: %w", err)
	}
	return nil
}

// DeleteAnnotation removes one annotation record.
func (s *Store) DeleteAnnotation(ctx context.Context, documentID, annotationID string) error {
	if err := s.annotations.Delete(ctx, annotationKey(documentID, annotationID)); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

// UpsertAnnotations writes a fresh analysis run's annotations through the
// hash-based merge in MergeAnnotations. The rewritten annotations are
// copied back into anns so callers see the final IDs and timestamps.
func (s *Store) UpsertAnnotations(ctx context.Context, documentID string, anns []annotation.Annotation) (created, updated int, err error) {
	existing, err := s.ListAnnotations(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("list existing annotations: %w", err)
	}

	merged, created, updated := MergeAnnotations(existing, anns, time.Now().UTC())
	for i, a := range merged {
		if err := s.PutAnnotation(ctx, a); err != nil {
			return created, updated, err
		}
		anns[i] = a
	}

	return created, updated, nil
}

// analysisKey orders cache rows chronologically within a (document,
// framework) pair; zero-padding keeps lexicographic order equal to time
// order so the latest row is the max key.
func analysisKey(documentID, frameworkID string, t time.Time) string {
	return fmt.Sprintf("%s.%s.%020d", documentID, frameworkID, t.UnixNano())
}

// PutAnalysis appends a new analysis record. Existing rows are never
// updated.
func (s *Store) PutAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal analysis record: %w", err)
	}

	key := analysisKey(rec.DocumentID, rec.FrameworkID, rec.CreatedAt)
	if _, err := s.analyses.Create(ctx, key, data); err != nil {
		return fmt.Errorf("store analysis record: %w", err)
	}
	return nil
}

// GetLatestAnalysis returns the most recent analysis record for a
// document/framework pair, or ErrNotFound when none exists.
func (s *Store) GetLatestAnalysis(ctx context.Context, documentID, frameworkID string) (*AnalysisRecord, error) {
	keys, err := s.analyses.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list analysis keys: %w", err)
	}

	prefix := documentID + "." + frameworkID + "."
	var latest string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) && key > latest {
			latest = key
		}
	}
	if latest == "" {
		return nil, ErrNotFound
	}

	entry, err := s.analyses.Get(ctx, latest)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get analysis record: %w", err)
	}

	var rec AnalysisRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal analysis record: %w", err)
	}
	return &rec, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "key not found") ||
		strings.Contains(err.Error(), "object not found"))
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/compliscan/annotation"
	"github.com/veridoc/compliscan/config"
	"github.com/veridoc/compliscan/controls"
	"github.com/veridoc/compliscan/document"
	"github.com/veridoc/compliscan/llm"
	"github.com/veridoc/compliscan/llm/testutil"
	"github.com/veridoc/compliscan/storage"
	"github.com/veridoc/compliscan/verdict"
)

// Fakes for the persistence collaborators. The annotation fake routes
// through storage.MergeAnnotations so upsert semantics match the real
// store.

type fakeDocs struct {
	docs map[string]*storage.Document
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*storage.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

type fakeBlobs struct {
	data map[string][]byte
}

func (f *fakeBlobs) GetBytes(_ context.Context, key string) ([]byte, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

type fakeControls struct {
	ctrls []controls.Control
	err   error
}

func (f *fakeControls) ListControls(_ context.Context, _ string) ([]controls.Control, error) {
	return f.ctrls, f.err
}

type fakeAnnotations struct {
	rows        map[string]map[string]annotation.Annotation
	err         error
	lastCreated int
	lastUpdated int
}

func newFakeAnnotations() *fakeAnnotations {
	return &fakeAnnotations{rows: make(map[string]map[string]annotation.Annotation)}
}

func (f *fakeAnnotations) ListAnnotations(_ context.Context, documentID string) ([]annotation.Annotation, error) {
	if f.err != nil {
		return nil, f.err
	}
	var anns []annotation.Annotation
	for _, a := range f.rows[documentID] {
		anns = append(anns, a)
	}
	return anns, nil
}

func (f *fakeAnnotations) UpsertAnnotations(ctx context.Context, documentID string, anns []annotation.Annotation) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	existing, _ := f.ListAnnotations(ctx, documentID)
	merged, created, updated := storage.MergeAnnotations(existing, anns, time.Now().UTC())
	if f.rows[documentID] == nil {
		f.rows[documentID] = make(map[string]annotation.Annotation)
	}
	for i, a := range merged {
		f.rows[documentID][a.AnnotationID] = a
		anns[i] = a
	}
	f.lastCreated, f.lastUpdated = created, updated
	return created, updated, nil
}

type fakeCache struct {
	recs   []*storage.AnalysisRecord
	getErr error
	putErr error
}

func (f *fakeCache) GetLatestAnalysis(_ context.Context, documentID, frameworkID string) (*storage.AnalysisRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := len(f.recs) - 1; i >= 0; i-- {
		if f.recs[i].DocumentID == documentID && f.recs[i].FrameworkID == frameworkID {
			return f.recs[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeCache) PutAnalysis(_ context.Context, rec *storage.AnalysisRecord) error {
	if f.putErr != nil {
		return f.putErr
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	f.recs = append(f.recs, rec)
	return nil
}

type fakeStatus struct {
	updates []string
	err     error
}

func (f *fakeStatus) UpdateStatus(_ context.Context, _, status, _ string) error {
	f.updates = append(f.updates, status)
	return f.err
}

type fakeExtractor struct {
	blocks []document.TextBlock
	err    error
}

func (f *fakeExtractor) Extract(_ []byte) ([]document.TextBlock, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]document.TextBlock, len(f.blocks))
	copy(out, f.blocks)
	return out, nil
}

// policyBlocks is a 2-page document whose first block matches compliance
// keywords and survives filtering.
func policyBlocks() []document.TextBlock {
	return []document.TextBlock{
		{
			PageNumber: 1,
			BlockIndex: 0,
			Text:       "We may retain personal data indefinitely",
			BBox:       document.BBox{MinX: 72, MinY: 100, MaxX: 400, MaxY: 130},
			PageHeight: 792,
			FontSizes:  []float64{11},
			CharCount:  41,
			LineCount:  1,
		},
		{
			PageNumber: 2,
			BlockIndex: 1,
			Text:       "Backups are stored without encryption at a third-party facility",
			BBox:       document.BBox{MinX: 72, MinY: 200, MaxX: 420, MaxY: 230},
			PageHeight: 792,
			FontSizes:  []float64{11},
			CharCount:  64,
			LineCount:  1,
		},
		{
			PageNumber: 2,
			BlockIndex: 2,
			Text:       "Contact us at the address below.",
			BBox:       document.BBox{MinX: 72, MinY: 260, MaxX: 380, MaxY: 280},
			PageHeight: 792,
			FontSizes:  []float64{11},
			CharCount:  32,
			LineCount:  1,
		},
	}
}

type env struct {
	docs        *fakeDocs
	blobs       *fakeBlobs
	controls    *fakeControls
	annotations *fakeAnnotations
	cache       *fakeCache
	status      *fakeStatus
	extractor   *fakeExtractor
	mock        *testutil.MockClient
}

func newEnv() *env {
	return &env{
		docs: &fakeDocs{docs: map[string]*storage.Document{
			"doc-1": {ID: "doc-1", Name: "policy.pdf", StorageKey: "documents/doc-1"},
		}},
		blobs: &fakeBlobs{data: map[string][]byte{
			"documents/doc-1": []byte("%PDF-fake"),
		}},
		controls: &fakeControls{ctrls: []controls.Control{{
			ControlID:   "GDPR-5.1",
			FrameworkID: "GDPR",
			Category:    "retention",
			Requirement: "Personal data must not be kept longer than necessary.",
			Severity:    "high",
		}}},
		annotations: newFakeAnnotations(),
		cache:       &fakeCache{},
		status:      &fakeStatus{},
		extractor:   &fakeExtractor{blocks: policyBlocks()},
		mock:        &testutil.MockClient{},
	}
}

func (e *env) analyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Deps{
		Documents:   e.docs,
		Blobs:       e.blobs,
		Controls:    e.controls,
		Annotations: e.annotations,
		Cache:       e.cache,
		Status:      e.status,
		Model:       e.mock,
		Extractor:   e.extractor,
	}, config.DefaultConfig().Analysis)
	require.NoError(t, err)
	return a
}

func retentionFindingJSON(blockIndex int) string {
	return fmt.Sprintf(`[{
		"page_number": 1,
		"block_index": %d,
		"control_id": "GDPR-5.1",
		"severity": "high",
		"issue_description": "No retention period",
		"bookmark_type": "action_required",
		"suggested_action": "Define a retention period"
	}]`, blockIndex)
}

func TestAnalyzeValidation(t *testing.T) {
	e := newEnv()
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "", FrameworkID: "GDPR"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "document_id")

	res = a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "PCI-DSS"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "framework_id")
	assert.Equal(t, 0, e.mock.CallCount())
}

func TestAnalyzeDocumentNotFound(t *testing.T) {
	e := newEnv()
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "missing", FrameworkID: "GDPR"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "document not found")
	assert.Equal(t, 0, e.mock.CallCount())
}

func TestAnalyzeExtractionFailure(t *testing.T) {
	e := newEnv()
	e.extractor.err = errors.New("malformed xref table")
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "extracting document")
}

func TestAnalyzeEndToEnd(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{{Content: retentionFindingJSON(0)}}
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, res.Success, "error: %s", res.Error)
	assert.False(t, res.Cached)
	assert.NotEmpty(t, res.AnalysisID)
	require.Equal(t, 1, res.AnnotationsCount)

	ann := res.Annotations[0]
	assert.Equal(t, "action_required", ann.BookmarkType)
	assert.Equal(t, 1, ann.PageNumber)
	assert.Contains(t, ann.ReviewComments, "No retention period")
	assert.Contains(t, ann.ReviewComments, "Define a retention period")

	require.NotNil(t, res.FinalVerdict)
	assert.Equal(t, verdict.VerdictPartial, res.FinalVerdict.Verdict)
	assert.Equal(t, 90.0, res.FinalVerdict.ComplianceScore)

	// Status side effect and cache write both happened.
	assert.Equal(t, []string{verdict.StatusPartial}, e.status.updates)
	require.Len(t, e.cache.recs, 1)
	assert.Equal(t, res.AnalysisID, e.cache.recs[0].AnalysisID)
}

func TestAnalyzeCacheShortCircuit(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{{Content: retentionFindingJSON(0)}}
	a := e.analyzer(t)

	first := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, first.Success)
	callsAfterFirst := e.mock.CallCount()
	require.Greater(t, callsAfterFirst, 0)

	second := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	require.NotNil(t, second.CachedAt)
	assert.Equal(t, first.AnalysisID, second.AnalysisID)
	assert.Equal(t, callsAfterFirst, e.mock.CallCount(), "cached hit must not invoke the model")
}

func TestAnalyzeForceBypassesCache(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{
		{Content: retentionFindingJSON(0)},
		{Content: retentionFindingJSON(0)},
	}
	a := e.analyzer(t)

	first := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR", ForceReanalysis: true})
	require.True(t, first.Success)
	second := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR", ForceReanalysis: true})
	require.True(t, second.Success)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.AnalysisID, second.AnalysisID)

	// Append-only cache: both runs wrote a row.
	assert.Len(t, e.cache.recs, 2)
}

func TestAnalyzeIdempotentReanalysis(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{
		{Content: retentionFindingJSON(0)},
		{Content: retentionFindingJSON(0)},
	}
	a := e.analyzer(t)

	first := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR", ForceReanalysis: true})
	require.True(t, first.Success)
	require.Len(t, first.Annotations, 1)
	assert.Equal(t, 1, e.annotations.lastCreated)
	assert.Equal(t, 0, e.annotations.lastUpdated)

	second := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR", ForceReanalysis: true})
	require.True(t, second.Success)
	require.Len(t, second.Annotations, 1)
	assert.Equal(t, 0, e.annotations.lastCreated)
	assert.Equal(t, 1, e.annotations.lastUpdated)

	// Same geometry, same identity.
	assert.Equal(t, first.Annotations[0].AnnotationID, second.Annotations[0].AnnotationID)
	assert.Equal(t, first.Annotations[0].Hash, second.Annotations[0].Hash)
}

func TestAnalyzeDropsDanglingBlockIndex(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{{Content: retentionFindingJSON(99)}}
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, res.Success)
	assert.Equal(t, 0, res.AnnotationsCount)
	require.NotNil(t, res.FinalVerdict)
	assert.Equal(t, verdict.VerdictCompliant, res.FinalVerdict.Verdict)
}

func TestAnalyzePersistenceFailuresAreSwallowed(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{{Content: retentionFindingJSON(0)}}
	e.cache.putErr = errors.New("cache bucket unavailable")
	e.annotations.err = errors.New("annotation bucket unavailable")
	e.status.err = errors.New("status store unavailable")
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, res.Success)
	assert.Equal(t, 1, res.AnnotationsCount)
}

func TestAnalyzeCacheReadErrorIsMiss(t *testing.T) {
	e := newEnv()
	e.mock.Responses = []*llm.Response{{Content: retentionFindingJSON(0)}}
	e.cache.getErr = errors.New("kv timeout")
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Greater(t, e.mock.CallCount(), 0)
}

func TestAnalyzeControlsLoadFailure(t *testing.T) {
	e := newEnv()
	e.controls.err = errors.New("controls dir unreadable")
	a := e.analyzer(t)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "controls")
}

func TestAnalyzePartialBatchFailure(t *testing.T) {
	e := newEnv()
	// Route by prompt content: the retention batch parses, the other
	// batch returns garbage and must be isolated.
	e.mock.ResponseFn = func(req llm.Request) (*llm.Response, error) {
		prompt := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(prompt, "retain personal data") {
			return &llm.Response{Content: retentionFindingJSON(0)}, nil
		}
		return nil, errors.New("model timeout")
	}

	cfg := config.DefaultConfig().Analysis
	cfg.MaxTokensPerBatch = 50 // force the two relevant blocks apart
	a, err := NewAnalyzer(Deps{
		Documents:   e.docs,
		Blobs:       e.blobs,
		Controls:    e.controls,
		Annotations: e.annotations,
		Cache:       e.cache,
		Status:      e.status,
		Model:       e.mock,
		Extractor:   e.extractor,
	}, cfg)
	require.NoError(t, err)

	res := a.Analyze(context.Background(), Request{DocumentID: "doc-1", FrameworkID: "GDPR"})
	require.True(t, res.Success, "one failed batch must not fail the analysis")
	require.Equal(t, 1, res.AnnotationsCount)
	assert.Equal(t, "GDPR-5.1", res.Annotations[0].ControlID)
	assert.Equal(t, 2, e.mock.CallCount())
}

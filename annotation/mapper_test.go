package annotation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/compliscan/document"
	"github.com/veridoc/compliscan/findings"
)

func sampleBlocks() map[int]document.TextBlock {
	return map[int]document.TextBlock{
		0: {
			PageNumber: 1,
			BlockIndex: 0,
			Text:       "We retain data indefinitely.",
			BBox:       document.BBox{MinX: 72, MinY: 100, MaxX: 400, MaxY: 130},
		},
		3: {
			PageNumber: 2,
			BlockIndex: 3,
			Text:       "Access is granted on request.",
			BBox:       document.BBox{MinX: 80, MinY: 300, MaxX: 500, MaxY: 340},
		},
	}
}

func sampleFinding(block int, severity string) findings.Finding {
	return findings.Finding{
		PageNumber:       1,
		BlockIndex:       block,
		ControlID:        "GDPR-5",
		Severity:         severity,
		IssueDescription: "Retention is unbounded.",
		BookmarkType:     findings.BookmarkActionRequired,
		SuggestedAction:  "Define a retention schedule.",
	}
}

func TestMapAppliesPadding(t *testing.T) {
	m := NewMapper(nil)

	anns := m.Map("doc-1", "an-1", "GDPR",
		[]findings.Finding{sampleFinding(0, "high")}, sampleBlocks())
	require.Len(t, anns, 1)

	got := anns[0]
	assert.Equal(t, 68.0, got.X)
	assert.Equal(t, 96.0, got.Y)
	assert.Equal(t, (400-72)+16.0, got.Width)
	assert.Equal(t, (130-100)+8.0, got.Height)
	assert.Equal(t, 1, got.PageNumber)
	assert.NotEmpty(t, got.AnnotationID)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "an-1", got.AnalysisID)
}

func TestMapUsesBlockPage(t *testing.T) {
	m := NewMapper(nil)
	f := sampleFinding(3, "medium")
	f.PageNumber = 9 // model got the page wrong; geometry wins

	anns := m.Map("doc-1", "an-1", "GDPR", []findings.Finding{f}, sampleBlocks())
	require.Len(t, anns, 1)
	assert.Equal(t, 2, anns[0].PageNumber)
}

func TestMapDropsDanglingBlockIndex(t *testing.T) {
	m := NewMapper(nil)

	anns := m.Map("doc-1", "an-1", "GDPR",
		[]findings.Finding{sampleFinding(0, "high"), sampleFinding(42, "low")},
		sampleBlocks())
	require.Len(t, anns, 1)
	assert.Equal(t, 1, anns[0].PageNumber)
}

func TestGeometryHashStability(t *testing.T) {
	h1 := GeometryHash("doc-1", 1, 68, 96, 344, 38)
	h2 := GeometryHash("doc-1", 1, 68, 96, 344, 38)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, GeometryHash("doc-2", 1, 68, 96, 344, 38))
	assert.NotEqual(t, h1, GeometryHash("doc-1", 2, 68, 96, 344, 38))
	assert.NotEqual(t, h1, GeometryHash("doc-1", 1, 68.5, 96, 344, 38))
}

func TestMapHashMatchesGeometry(t *testing.T) {
	m := NewMapper(nil)
	anns := m.Map("doc-1", "an-1", "GDPR",
		[]findings.Finding{sampleFinding(0, "high")}, sampleBlocks())
	require.Len(t, anns, 1)

	got := anns[0]
	want := GeometryHash("doc-1", got.PageNumber, got.X, got.Y, got.Width, got.Height)
	assert.Equal(t, want, got.Hash)
}

func TestRenderComment(t *testing.T) {
	body := RenderComment(sampleFinding(0, "high"))
	assert.True(t, strings.HasPrefix(body, "\U0001F534"))
	assert.Contains(t, body, "**HIGH Severity**")
	assert.Contains(t, body, "GDPR-5")
	assert.Contains(t, body, "**Issue:** Retention is unbounded.")
	assert.Contains(t, body, "**Recommended Action:** Define a retention schedule.")

	assert.True(t, strings.HasPrefix(RenderComment(sampleFinding(0, "medium")), "\U0001F7E0"))
	assert.True(t, strings.HasPrefix(RenderComment(sampleFinding(0, "low")), "\U0001F7E1"))
}

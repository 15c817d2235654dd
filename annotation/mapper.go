package annotation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/compliscan/controls"
	"github.com/veridoc/compliscan/document"
	"github.com/veridoc/compliscan/findings"
)

// Highlight padding around the source block's bounding box, in PDF points.
const (
	padLeft   = 4.0
	padTop    = 4.0
	padWidth  = 16.0
	padHeight = 8.0
)

// Mapper converts findings into page annotations using block geometry.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper creates a Mapper.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// Map produces one annotation per finding whose block still exists. A
// finding referencing a block_index absent from the lookup is dropped with
// a warning; the model occasionally invents indexes and a misplaced
// highlight is worse than none.
func (m *Mapper) Map(documentID, analysisID, frameworkID string, found []findings.Finding, blocks map[int]document.TextBlock) []Annotation {
	now := time.Now().UTC()
	anns := make([]Annotation, 0, len(found))

	for _, f := range found {
		block, ok := blocks[f.BlockIndex]
		if !ok {
			m.logger.Warn("finding references unknown block, dropping",
				"block_index", f.BlockIndex,
				"page", f.PageNumber,
				"control_id", f.ControlID)
			continue
		}

		x := block.BBox.MinX - padLeft
		y := block.BBox.MinY - padTop
		width := (block.BBox.MaxX - block.BBox.MinX) + padWidth
		height := (block.BBox.MaxY - block.BBox.MinY) + padHeight
		page := block.PageNumber

		anns = append(anns, Annotation{
			AnnotationID:   uuid.NewString(),
			DocumentID:     documentID,
			AnalysisID:     analysisID,
			FrameworkID:    frameworkID,
			Hash:           GeometryHash(documentID, page, x, y, width, height),
			PageNumber:     page,
			X:              x,
			Y:              y,
			Width:          width,
			Height:         height,
			Severity:       f.Severity,
			ControlID:      f.ControlID,
			BookmarkType:   f.BookmarkType,
			ReviewComments: RenderComment(f),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	return anns
}

// severityEmoji marks the comment heading so severity is visible at a
// glance in viewers that render markdown.
func severityEmoji(severity string) string {
	switch controls.NormalizeSeverity(severity) {
	case controls.SeverityHigh:
		return "\U0001F534"
	case controls.SeverityMedium:
		return "\U0001F7E0"
	default:
		return "\U0001F7E1"
	}
}

// RenderComment formats a finding as the markdown body of a review
// comment.
func RenderComment(f findings.Finding) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s **%s Severity** | Control: %s\n\n",
		severityEmoji(f.Severity),
		strings.ToUpper(controls.NormalizeSeverity(f.Severity)),
		f.ControlID)
	fmt.Fprintf(&sb, "**Issue:** %s\n\n", f.IssueDescription)
	fmt.Fprintf(&sb, "**Recommended Action:** %s\n\n", f.SuggestedAction)
	sb.WriteString("*Generated by automated compliance analysis. Verify before acting.*")

	return sb.String()
}

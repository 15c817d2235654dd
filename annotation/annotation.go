// Package annotation maps compliance findings onto PDF page rectangles
// and renders reviewer-facing comments.
package annotation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Annotation is a positioned compliance marker on a document page.
type Annotation struct {
	AnnotationID string  `json:"annotation_id"`
	DocumentID   string  `json:"document_id"`
	AnalysisID   string  `json:"analysis_id"`
	FrameworkID  string  `json:"framework_id"`
	Hash         string  `json:"hash"`
	PageNumber   int     `json:"page_number"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Severity     string  `json:"severity"`
	ControlID    string  `json:"control_id"`
	BookmarkType string  `json:"bookmark_type"`

	ReviewComments string    `json:"review_comments"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GeometryHash identifies an annotation by where it sits: same document,
// page, and rectangle means the same hash across re-analysis runs, which
// is what the upsert path keys on.
func GeometryHash(documentID string, page int, x, y, width, height float64) string {
	key := fmt.Sprintf("%s|%d|%.2f|%.2f|%.2f|%.2f", documentID, page, x, y, width, height)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

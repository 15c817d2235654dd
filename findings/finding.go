// Package findings turns batched text blocks into model-generated
// compliance findings and aggregates them under page and global caps.
package findings

import (
	"fmt"

	"github.com/veridoc/compliscan/controls"
)

// Bookmark types describe what kind of follow-up a finding asks for.
const (
	BookmarkVerify         = "verify"
	BookmarkReview         = "review"
	BookmarkInfo           = "info"
	BookmarkActionRequired = "action_required"
)

var validBookmarks = map[string]bool{
	BookmarkVerify:         true,
	BookmarkReview:         true,
	BookmarkInfo:           true,
	BookmarkActionRequired: true,
}

// ValidBookmark reports whether s is a recognized bookmark type.
func ValidBookmark(s string) bool {
	return validBookmarks[s]
}

// Finding is a single compliance issue the model identified in one block.
type Finding struct {
	PageNumber       int    `json:"page_number"`
	BlockIndex       int    `json:"block_index"`
	ControlID        string `json:"control_id"`
	Severity         string `json:"severity"`
	IssueDescription string `json:"issue_description"`
	BookmarkType     string `json:"bookmark_type"`
	SuggestedAction  string `json:"suggested_action"`
}

// Validate checks the fields the pipeline relies on downstream. Severity
// is normalized rather than rejected; unknown bookmark types degrade to
// review rather than failing the whole batch.
func (f *Finding) Validate() error {
	if f.PageNumber < 1 {
		return fmt.Errorf("page_number must be >= 1, got %d", f.PageNumber)
	}
	if f.BlockIndex < 0 {
		return fmt.Errorf("block_index must be >= 0, got %d", f.BlockIndex)
	}
	if f.ControlID == "" {
		return fmt.Errorf("control_id is required")
	}
	if f.IssueDescription == "" {
		return fmt.Errorf("issue_description is required")
	}
	f.Severity = controls.NormalizeSeverity(f.Severity)
	if f.Severity == "" {
		f.Severity = controls.SeverityMedium
	}
	if !ValidBookmark(f.BookmarkType) {
		f.BookmarkType = BookmarkReview
	}
	if f.SuggestedAction == "" {
		f.SuggestedAction = "Review this section against the cited control."
	}
	return nil
}

// Package verdict derives a document-level compliance judgement from the
// final annotation set.
package verdict

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/veridoc/compliscan/annotation"
	"github.com/veridoc/compliscan/controls"
)

// Discrete verdicts.
const (
	VerdictCompliant    = "COMPLIANT"
	VerdictPartial      = "PARTIAL"
	VerdictNonCompliant = "NON_COMPLIANT"
)

// Document status codes written to the document-metadata store.
const (
	StatusCompliant    = "compliant"
	StatusPartial      = "partially_compliant"
	StatusNonCompliant = "non_compliant"
)

// Caps on the critical-issue extract.
const (
	maxCriticalIssues  = 5
	criticalIssueChars = 200
)

// Result is the aggregate compliance judgement for one analysis.
type Result struct {
	Verdict             string   `json:"verdict"`
	DocumentStatus      string   `json:"document_status"`
	TotalAnnotations    int      `json:"total_annotations"`
	HighSeverityCount   int      `json:"high_severity_count"`
	MediumSeverityCount int      `json:"medium_severity_count"`
	LowSeverityCount    int      `json:"low_severity_count"`
	ComplianceScore     float64  `json:"compliance_score"`
	CriticalIssues      []string `json:"critical_issues,omitempty"`
	Summary             string   `json:"summary"`
}

// Score computes the verdict from the final annotations. Severity comes
// from the structured field; annotations whose field is empty (older rows,
// or comments edited by hand) fall back to matching the severity marker in
// the rendered comment text.
func Score(anns []annotation.Annotation) Result {
	var high, medium, low int
	for _, a := range anns {
		switch severityOf(a) {
		case controls.SeverityHigh:
			high++
		case controls.SeverityMedium:
			medium++
		case controls.SeverityLow:
			low++
		}
	}

	penalty := high*10 + medium*3 + low
	if penalty > 100 {
		penalty = 100
	}
	score := float64(100 - penalty)

	var v string
	switch {
	case high == 0 && medium == 0 && low <= 2:
		v = VerdictCompliant
	case high >= 3 || (high >= 1 && medium >= 5):
		v = VerdictNonCompliant
	default:
		v = VerdictPartial
	}

	return Result{
		Verdict:             v,
		DocumentStatus:      statusFor(v),
		TotalAnnotations:    len(anns),
		HighSeverityCount:   high,
		MediumSeverityCount: medium,
		LowSeverityCount:    low,
		ComplianceScore:     score,
		CriticalIssues:      criticalIssues(anns),
		Summary:             summarize(v, high, medium, low, score),
	}
}

func statusFor(v string) string {
	switch v {
	case VerdictCompliant:
		return StatusCompliant
	case VerdictNonCompliant:
		return StatusNonCompliant
	default:
		return StatusPartial
	}
}

// severityOf prefers the structured field and falls back to the rendered
// comment's markers.
func severityOf(a annotation.Annotation) string {
	if a.Severity != "" {
		return controls.NormalizeSeverity(a.Severity)
	}
	comment := a.ReviewComments
	switch {
	case strings.Contains(comment, "\U0001F534"), strings.Contains(comment, "HIGH Severity"):
		return controls.SeverityHigh
	case strings.Contains(comment, "\U0001F7E0"), strings.Contains(comment, "MEDIUM Severity"):
		return controls.SeverityMedium
	case strings.Contains(comment, "\U0001F7E1"), strings.Contains(comment, "LOW Severity"):
		return controls.SeverityLow
	}
	return ""
}

// criticalIssues extracts the Issue text from high-severity annotations,
// capped in count and length.
func criticalIssues(anns []annotation.Annotation) []string {
	var issues []string
	for _, a := range anns {
		if severityOf(a) != controls.SeverityHigh {
			continue
		}
		issue := extractIssue(a.ReviewComments)
		if issue == "" {
			continue
		}
		issue = truncate(issue, criticalIssueChars)
		issues = append(issues, issue)
		if len(issues) >= maxCriticalIssues {
			break
		}
	}
	return issues
}

// extractIssue pulls the text after the Issue label in a rendered comment.
func extractIssue(comment string) string {
	const label = "**Issue:**"
	start := strings.Index(comment, label)
	if start < 0 {
		return ""
	}
	rest := comment[start+len(label):]
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func summarize(v string, high, medium, low int, score float64) string {
	switch v {
	case VerdictCompliant:
		if high+medium+low == 0 {
			return "No compliance issues were identified."
		}
		return fmt.Sprintf("Document is compliant with %d minor observation(s).", low)
	case VerdictNonCompliant:
		return fmt.Sprintf("Document is non-compliant: %d high and %d medium severity issue(s) found (score %.0f).", high, medium, score)
	default:
		return fmt.Sprintf("Document is partially compliant: %d high, %d medium, %d low severity issue(s) found (score %.0f).", high, medium, low, score)
	}
}

// StatusStore writes the document-level status after an analysis.
type StatusStore interface {
	UpdateStatus(ctx context.Context, documentID, status, verdict string) error
}

// Apply writes the verdict's document status. Failures are logged and
// swallowed; the computed result has already been returned to the caller
// and a missed status update must not invalidate it.
func Apply(ctx context.Context, store StatusStore, logger *slog.Logger, documentID string, r Result) {
	if store == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.UpdateStatus(ctx, documentID, r.DocumentStatus, r.Verdict); err != nil {
		logger.Warn("document status update failed",
			"document_id", documentID,
			"status", r.DocumentStatus,
			"error", err)
	}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

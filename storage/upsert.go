package storage

import (
	"time"

	"github.com/veridoc/compliscan/annotation"
)

// MergeAnnotations matches a fresh analysis run's annotations against the
// existing rows by geometry hash. A hash match reuses the existing
// annotation_id and created_at, so a rectangle that re-appears across runs
// updates its old row instead of duplicating it. The resolved flag
// survives the update when control and severity are unchanged; if either
// moved, the row is a new issue and goes back to unresolved.
func MergeAnnotations(existing, incoming []annotation.Annotation, now time.Time) (merged []annotation.Annotation, created, updated int) {
	byHash := make(map[string]annotation.Annotation, len(existing))
	for _, a := range existing {
		byHash[a.Hash] = a
	}

	merged = make([]annotation.Annotation, 0, len(incoming))
	for _, a := range incoming {
		if prev, ok := byHash[a.Hash]; ok {
			a.AnnotationID = prev.AnnotationID
			a.CreatedAt = prev.CreatedAt
			a.UpdatedAt = now
			if prev.ControlID == a.ControlID && prev.Severity == a.Severity {
				a.Resolved = prev.Resolved
			}
			updated++
		} else {
			a.CreatedAt = now
			a.UpdatedAt = now
			created++
		}
		merged = append(merged, a)
	}

	return merged, created, updated
}

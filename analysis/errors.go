package analysis

import "fmt"

// ValidationError reports bad input to Analyze. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports a document that does not resolve in the document
// store.
type NotFoundError struct {
	DocumentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.DocumentID)
}

// ExtractionError reports unreadable or corrupt PDF bytes.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting document %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

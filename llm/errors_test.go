package llm

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := fmt.Errorf("boom")

	transient := NewTransientError(base)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))

	fatal := NewFatalError(base)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))

	// Wrapped errors are still classified
	wrapped := fmt.Errorf("outer: %w", transient)
	assert.True(t, IsTransient(wrapped))
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusInternalServerError, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusTeapot, false},
	}

	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("body"))
		if tt.transient {
			assert.True(t, IsTransient(err), "status %d should be transient", tt.status)
		} else {
			assert.True(t, IsFatal(err), "status %d should be fatal", tt.status)
		}
	}
}

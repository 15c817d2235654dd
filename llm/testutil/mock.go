// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing LLM client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/veridoc/compliscan/llm"
)

// MockClient is a thread-safe mock LLM invoker for testing.
// It returns responses in sequence and records every prompt it receives.
//
// Usage:
//
//	mock := &testutil.MockClient{
//	    Responses: []*llm.Response{
//	        {Content: `[{"page_number": 1}]`, Model: "test-model"},
//	    },
//	}
type MockClient struct {
	mu        sync.Mutex
	Responses []*llm.Response // Responses to return in sequence
	Err       error           // Error to return (takes precedence over Responses)
	// ResponseFn computes each response when set; overrides Responses.
	ResponseFn    func(llm.Request) (*llm.Response, error)
	requests      []llm.Request
	responseIndex int
}

// Complete implements llm.Invoker.
// Returns the next response from Responses, or Err if set.
func (m *MockClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if m.ResponseFn != nil {
		return m.ResponseFn(req)
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// CallCount returns the number of times Complete() was called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all captured requests.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

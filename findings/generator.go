package findings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veridoc/compliscan/batch"
	"github.com/veridoc/compliscan/llm"
)

// Generator runs batches through the model and decodes findings.
type Generator struct {
	client      llm.Invoker
	logger      *slog.Logger
	maxParallel int
	maxPerBatch int
	temperature float64
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the generator's logger.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// WithMaxParallel bounds concurrent model calls.
func WithMaxParallel(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxParallel = n
		}
	}
}

// WithMaxPerBatch caps findings accepted from a single batch.
func WithMaxPerBatch(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxPerBatch = n
		}
	}
}

// NewGenerator creates a Generator backed by the given model client.
func NewGenerator(client llm.Invoker, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:      client,
		logger:      slog.Default(),
		maxParallel: 3,
		maxPerBatch: 5,
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BatchResult is the outcome of one batch's model call.
type BatchResult struct {
	BatchIndex int
	Findings   []Finding
	Err        error
}

// Generate runs one batch through the model. Model output that is not a
// valid JSON array is an error; individual array items that fail
// validation are dropped with a warning rather than failing the batch.
func (g *Generator) Generate(ctx context.Context, frameworkID, controlsSummary string, b batch.Batch) ([]Finding, error) {
	prompt := BuildPrompt(frameworkID, controlsSummary, b, g.maxPerBatch)

	resp, err := g.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var decoded []Finding
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decoding findings: %w", err)
	}

	accepted := make([]Finding, 0, len(decoded))
	for i := range decoded {
		f := decoded[i]
		if err := f.Validate(); err != nil {
			g.logger.Warn("dropping malformed finding",
				"error", err,
				"page", f.PageNumber,
				"control_id", f.ControlID)
			continue
		}
		accepted = append(accepted, f)
		if len(accepted) >= g.maxPerBatch {
			break
		}
	}

	return accepted, nil
}

// GenerateAll fans batches out across at most maxParallel concurrent model
// calls. A failed batch yields an error in its slot; other batches are
// unaffected. Results are returned in batch order.
func (g *Generator) GenerateAll(ctx context.Context, frameworkID, controlsSummary string, batches []batch.Batch) []BatchResult {
	results := make([]BatchResult, len(batches))

	sem := make(chan struct{}, g.maxParallel)
	var wg sync.WaitGroup

	for i, b := range batches {
		wg.Add(1)
		go func(idx int, b batch.Batch) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			found, err := g.Generate(ctx, frameworkID, controlsSummary, b)
			results[idx] = BatchResult{BatchIndex: idx, Findings: found, Err: err}
			if err != nil {
				g.logger.Warn("batch analysis failed",
					"batch", idx,
					"pages", b.Pages,
					"error", err)
			}
		}(i, b)
	}

	wg.Wait()
	return results
}

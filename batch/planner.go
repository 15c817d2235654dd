// Package batch packs filtered text blocks into token-budget-bounded
// batches, each destined for one model call.
package batch

import (
	"fmt"
	"sort"

	"github.com/veridoc/compliscan/document"
)

// charsPerToken is the approximate average characters per token for GPT tokenizers.
const charsPerToken = 4

// blockMetaChars approximates the serialized overhead per block in the
// prompt (page number, block index, flags, delimiters).
const blockMetaChars = 40

// Config holds batch planning configuration.
type Config struct {
	// MaxTokensPerBatch is the per-batch token budget.
	MaxTokensPerBatch int

	// BlockTextLimit caps how many characters of a block's text are
	// rendered into the prompt.
	BlockTextLimit int
}

// DefaultConfig returns sensible planning defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokensPerBatch: 10000,
		BlockTextLimit:    450,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxTokensPerBatch <= 0 {
		return fmt.Errorf("MaxTokensPerBatch must be positive, got %d", c.MaxTokensPerBatch)
	}
	if c.BlockTextLimit <= 0 {
		return fmt.Errorf("BlockTextLimit must be positive, got %d", c.BlockTextLimit)
	}
	return nil
}

// Batch is a bin-packed group of text blocks for one model call.
type Batch struct {
	// Blocks preserves original document order; prompts reference
	// block_index and expect nearby context.
	Blocks []document.TextBlock

	// Pages is the sorted set of page numbers the batch touches.
	Pages []int

	// EstimatedTokens is the projected prompt cost, including the
	// controls-summary overhead every batch carries.
	EstimatedTokens int
}

// Planner packs blocks into batches under a token budget.
type Planner struct {
	config Config
}

// New creates a Planner with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Planner, error) {
	if cfg.MaxTokensPerBatch == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Planner{config: cfg}, nil
}

// MustNew creates a Planner, panicking on invalid config.
// Use for known-good configurations.
func MustNew(cfg Config) *Planner {
	p, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// NewDefault creates a Planner with default configuration.
func NewDefault() *Planner {
	return MustNew(DefaultConfig())
}

// Plan packs the blocks into batches in document order. Every batch is
// seeded with the token cost of the rendered controls summary, since that
// summary is embedded in every prompt. A block whose own cost exceeds the
// budget becomes a batch of one rather than being split or dropped, so
// every input block lands in exactly one batch.
func (p *Planner) Plan(blocks []document.TextBlock, controlsSummary string) []Batch {
	if len(blocks) == 0 {
		return nil
	}

	overhead := estimateTokens(controlsSummary)

	var batches []Batch
	current := Batch{EstimatedTokens: overhead}

	for _, block := range blocks {
		cost := p.blockTokens(block)

		if len(current.Blocks) > 0 && current.EstimatedTokens+cost > p.config.MaxTokensPerBatch {
			batches = append(batches, finalize(current))
			current = Batch{EstimatedTokens: overhead}
		}

		current.Blocks = append(current.Blocks, block)
		current.EstimatedTokens += cost
	}

	if len(current.Blocks) > 0 {
		batches = append(batches, finalize(current))
	}

	return batches
}

// BlockTokens returns the planning cost of one block. Exposed so the
// prompt builder and tests share the same estimate.
func (p *Planner) BlockTokens(block document.TextBlock) int {
	return p.blockTokens(block)
}

// blockTokens estimates the marginal prompt cost of a block: its truncated
// text plus fixed serialization overhead.
func (p *Planner) blockTokens(block document.TextBlock) int {
	chars := len(block.Text)
	if chars > p.config.BlockTextLimit {
		chars = p.config.BlockTextLimit
	}
	return tokensForChars(chars + blockMetaChars)
}

// finalize computes the page set for a completed batch.
func finalize(b Batch) Batch {
	seen := make(map[int]struct{}, len(b.Blocks))
	for _, block := range b.Blocks {
		seen[block.PageNumber] = struct{}{}
	}
	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	b.Pages = pages
	return b
}

// estimateTokens estimates token count using the chars/token heuristic.
func estimateTokens(content string) int {
	return tokensForChars(len(content))
}

func tokensForChars(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

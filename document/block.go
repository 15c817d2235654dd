// Package document provides positioned text extraction and classification
// for PDF documents under compliance analysis.
package document

// BBox is an axis-aligned bounding box in page coordinates.
// The origin is the top-left corner of the page; Y grows downward.
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 {
	return b.MaxX - b.MinX
}

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 {
	return b.MaxY - b.MinY
}

// TextBlock is one paragraph-like region of a page.
//
// BlockIndex is a stable ordinal across the whole document, assigned in
// extraction order. It is the only join key later stages use to recover a
// block's geometry, so it must never be reassigned after extraction.
type TextBlock struct {
	PageNumber    int       `json:"page_number"` // 1-indexed
	BlockIndex    int       `json:"block_index"`
	Text          string    `json:"text"`
	BBox          BBox      `json:"bbox"`
	PageHeight    float64   `json:"page_height"`
	FontSizes     []float64 `json:"font_sizes,omitempty"`
	IsBold        bool      `json:"is_bold"`
	IsItalic      bool      `json:"is_italic"`
	IsHeader      bool      `json:"is_header"`
	IsFooter      bool      `json:"is_footer"`
	IsTOC         bool      `json:"is_toc"`
	IsBoilerplate bool      `json:"is_boilerplate"`
	CharCount     int       `json:"char_count"`
	LineCount     int       `json:"line_count"`
}

// AvgFontSize returns the mean font size across the block's lines,
// or 0 for a block with no recorded sizes.
func (b *TextBlock) AvgFontSize() float64 {
	if len(b.FontSizes) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.FontSizes {
		sum += s
	}
	return sum / float64(len(b.FontSizes))
}

// BlockLookup builds a block_index -> TextBlock map from the full
// extraction set. Findings referencing unknown indices resolve to nothing.
func BlockLookup(blocks []TextBlock) map[int]TextBlock {
	lookup := make(map[int]TextBlock, len(blocks))
	for _, b := range blocks {
		lookup[b.BlockIndex] = b
	}
	return lookup
}

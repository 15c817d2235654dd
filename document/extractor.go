package document

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// defaultPageHeight is assumed when a page carries no MediaBox (US Letter).
	defaultPageHeight = 792.0

	// minBlockChars is the minimum merged text length for a block to survive.
	// Shorter fragments are layout noise, not content.
	minBlockChars = 10

	// lineYTolerance is the maximum Y distance between glyphs on one line.
	lineYTolerance = 2.0

	// wordGap is the horizontal gap beyond which a space is inserted
	// between adjacent text runs on a line.
	wordGap = 1.0

	// blockGapFactor scales font size into the vertical gap that separates
	// two blocks.
	blockGapFactor = 1.8
)

// Extractor parses PDF bytes into positioned text blocks.
// It reads at most maxPages pages; pages beyond the limit are ignored
// to bound worst-case latency on huge documents.
type Extractor struct {
	maxPages int
	logger   *slog.Logger
}

// NewExtractor creates an Extractor that reads at most maxPages pages.
func NewExtractor(maxPages int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{maxPages: maxPages, logger: logger}
}

// Extract parses the given PDF bytes into text blocks in document order.
// Block indices are assigned sequentially across all pages. Malformed PDF
// bytes return an error; the caller decides how to surface it.
func (e *Extractor) Extract(pdfBytes []byte) (blocks []TextBlock, err error) {
	// The pdf library panics on some malformed object structures.
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = fmt.Errorf("malformed pdf content: %v", r)
		}
	}()

	reader, err := pdf.NewReader(newBytesReaderAt(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pageLimit := numPages
	if pageLimit > e.maxPages {
		e.logger.Debug("Truncating document to page limit",
			"pages", numPages, "max_pages", e.maxPages)
		pageLimit = e.maxPages
	}

	blockIndex := 0
	for pageNum := 1; pageNum <= pageLimit; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageHeight := mediaBoxHeight(page)
		lines := groupLines(page.Content().Text)
		for _, group := range groupBlocks(lines) {
			block := buildBlock(group, pageNum, pageHeight)
			if len(block.Text) < minBlockChars {
				continue
			}
			block.BlockIndex = blockIndex
			blockIndex++
			blocks = append(blocks, block)
		}
	}

	return blocks, nil
}

// mediaBoxHeight reads the page height from the MediaBox, falling back to
// US Letter when the box is absent or inherited out of reach.
func mediaBoxHeight(page pdf.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return defaultPageHeight
	}
	height := box.Index(3).Float64() - box.Index(1).Float64()
	if height <= 0 {
		return defaultPageHeight
	}
	return height
}

// line is one horizontal run of text with merged geometry.
type line struct {
	text     string
	minX     float64
	maxX     float64
	y        float64 // PDF coordinates, origin bottom-left
	fontSize float64
	bold     bool
	italic   bool
}

// groupLines clusters raw positioned text runs into lines by Y proximity.
func groupLines(texts []pdf.Text) []line {
	if len(texts) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > lineYTolerance {
			return sorted[i].Y > sorted[j].Y // top of page first
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []line
	var cur *line
	var prevEnd float64

	for _, t := range sorted {
		if t.S == "" {
			continue
		}

		if cur == nil || math.Abs(t.Y-cur.y) > lineYTolerance {
			if cur != nil {
				lines = append(lines, *cur)
			}
			cur = &line{
				text:     t.S,
				minX:     t.X,
				maxX:     t.X + t.W,
				y:        t.Y,
				fontSize: t.FontSize,
				bold:     isBoldFont(t.Font),
				italic:   isItalicFont(t.Font),
			}
			prevEnd = t.X + t.W
			continue
		}

		if t.X-prevEnd > wordGap && !strings.HasSuffix(cur.text, " ") {
			cur.text += " "
		}
		cur.text += t.S
		if t.X < cur.minX {
			cur.minX = t.X
		}
		if t.X+t.W > cur.maxX {
			cur.maxX = t.X + t.W
		}
		if t.FontSize > cur.fontSize {
			cur.fontSize = t.FontSize
		}
		cur.bold = cur.bold || isBoldFont(t.Font)
		cur.italic = cur.italic || isItalicFont(t.Font)
		prevEnd = t.X + t.W
	}
	if cur != nil {
		lines = append(lines, *cur)
	}

	return lines
}

// groupBlocks clusters consecutive lines into paragraph-like blocks.
// A vertical gap larger than blockGapFactor times the font size starts a
// new block.
func groupBlocks(lines []line) [][]line {
	var groups [][]line
	var cur []line

	for i, l := range lines {
		if i == 0 {
			cur = []line{l}
			continue
		}
		prev := cur[len(cur)-1]
		gap := prev.y - l.y
		threshold := blockGapFactor * math.Max(prev.fontSize, 8)
		if gap > threshold {
			groups = append(groups, cur)
			cur = []line{l}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups
}

// buildBlock merges a group of lines into one TextBlock. Line texts are
// joined with single spaces; geometry is converted to top-left origin.
func buildBlock(group []line, pageNum int, pageHeight float64) TextBlock {
	parts := make([]string, 0, len(group))
	fontSizes := make([]float64, 0, len(group))

	minX := math.Inf(1)
	maxX := math.Inf(-1)
	minYPDF := math.Inf(1)
	maxYPDF := math.Inf(-1)
	bold := false
	italic := false

	for _, l := range group {
		trimmed := strings.TrimSpace(l.text)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
		fontSizes = append(fontSizes, l.fontSize)
		if l.minX < minX {
			minX = l.minX
		}
		if l.maxX > maxX {
			maxX = l.maxX
		}
		if l.y < minYPDF {
			minYPDF = l.y
		}
		if l.y+l.fontSize > maxYPDF {
			maxYPDF = l.y + l.fontSize
		}
		bold = bold || l.bold
		italic = italic || l.italic
	}

	text := strings.Join(parts, " ")

	return TextBlock{
		PageNumber: pageNum,
		Text:       text,
		BBox: BBox{
			MinX: minX,
			MinY: pageHeight - maxYPDF,
			MaxX: maxX,
			MaxY: pageHeight - minYPDF,
		},
		PageHeight: pageHeight,
		FontSizes:  fontSizes,
		IsBold:     bold,
		IsItalic:   italic,
		CharCount:  len(text),
		LineCount:  len(group),
	}
}

// isBoldFont reports whether a PDF font name indicates a bold face.
func isBoldFont(font string) bool {
	lower := strings.ToLower(font)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black") ||
		strings.Contains(lower, "heavy")
}

// isItalicFont reports whether a PDF font name indicates an italic face.
func isItalicFont(font string) bool {
	lower := strings.ToLower(font)
	return strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
}

// bytesReaderAt implements io.ReaderAt for a byte slice.
type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

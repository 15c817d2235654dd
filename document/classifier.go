package document

import (
	"strings"
	"unicode"
)

// Classification thresholds.
const (
	headerFontSize    = 13.0
	headerMaxChars    = 200
	footerMaxChars    = 100
	footerPageFrac    = 0.90 // bottom 10% of the page
	tocMaxChars       = 150
	boilerplateChars  = 20
	sectionTitleChars = 60
)

var footerKeywords = []string{
	"page ",
	"copyright",
	"©",
	"all rights reserved",
	"confidential",
	"proprietary",
}

var sectionTitleKeywords = []string{
	"table of contents",
	"contents",
	"appendix",
	"index",
	"glossary",
	"revision history",
	"document control",
	"references",
}

var bulletPrefixes = []string{"•", "◦", "▪", "-", "–", "*", "·"}

// Classify sets the structural flags (header/footer/toc/boilerplate) on a
// block. Flags are derived purely from geometry and text shape; the
// relevance filter decides what survives.
func Classify(b *TextBlock) {
	b.IsHeader = isHeader(b)
	b.IsFooter = isFooter(b)
	b.IsTOC = isTOC(b)
	b.IsBoilerplate = isBoilerplate(b)
}

// ClassifyAll classifies every block in place and returns the slice.
func ClassifyAll(blocks []TextBlock) []TextBlock {
	for i := range blocks {
		Classify(&blocks[i])
	}
	return blocks
}

// isHeader detects section headings: prominent type (large or bold), short,
// and cased like a title.
func isHeader(b *TextBlock) bool {
	if b.CharCount >= headerMaxChars {
		return false
	}
	prominent := b.AvgFontSize() >= headerFontSize || b.IsBold
	if !prominent {
		return false
	}
	return isAllUpper(b.Text) || isTitleCase(b.Text)
}

// isFooter detects page furniture: text in the bottom 10% of the page, or
// short text carrying a footer keyword.
func isFooter(b *TextBlock) bool {
	if b.PageHeight > 0 && b.BBox.MinY > footerPageFrac*b.PageHeight {
		return true
	}
	if b.CharCount >= footerMaxChars {
		return false
	}
	lower := strings.ToLower(b.Text)
	for _, kw := range footerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isTOC detects table-of-contents entries: leader dots, trailing page
// numbers, or bullet markers on short lines.
func isTOC(b *TextBlock) bool {
	if b.CharCount >= tocMaxChars {
		return false
	}
	text := strings.TrimSpace(b.Text)
	if text == "" {
		return false
	}
	if strings.Contains(text, "...") || strings.Contains(text, "…") {
		return true
	}
	if unicode.IsDigit(rune(text[len(text)-1])) {
		return true
	}
	for _, prefix := range bulletPrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// isBoilerplate marks blocks with no analytical value: footers, TOC
// entries, very short fragments, and bare section titles.
func isBoilerplate(b *TextBlock) bool {
	if b.IsFooter || b.IsTOC {
		return true
	}
	if b.CharCount < boilerplateChars {
		return true
	}
	if b.LineCount == 1 && b.CharCount < sectionTitleChars {
		lower := strings.ToLower(strings.TrimSpace(b.Text))
		for _, kw := range sectionTitleKeywords {
			if lower == kw {
				return true
			}
		}
	}
	return false
}

// isAllUpper reports whether every letter in s is uppercase.
// Strings with no letters at all don't count.
func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isTitleCase reports whether the significant words of s start uppercase.
// Short connective words (of, and, the, ...) are ignored.
func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	checked := 0
	for _, w := range words {
		runes := []rune(w)
		if len(runes) <= 3 || !unicode.IsLetter(runes[0]) {
			continue
		}
		checked++
		if !unicode.IsUpper(runes[0]) {
			return false
		}
	}
	return checked > 0
}

package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterRelevant_KeepsHeaders(t *testing.T) {
	header := block("Unrelated Heading Text", bold)
	Classify(&header)
	require.True(t, header.IsHeader)

	kept := FilterRelevant([]TextBlock{header})
	assert.Len(t, kept, 1, "headers are kept unconditionally")
}

func TestFilterRelevant_KeywordMatch(t *testing.T) {
	b := block("We may retain personal data indefinitely unless deletion is requested by the user.")
	Classify(&b)

	kept := FilterRelevant([]TextBlock{b})
	require.Len(t, kept, 1)
	assert.Equal(t, b.Text, kept[0].Text)
}

func TestFilterRelevant_DropsBoilerplateEvenWithKeyword(t *testing.T) {
	footer := block("Confidential — Acme Corp", atBottom)
	Classify(&footer)
	require.True(t, footer.IsBoilerplate)

	kept := FilterRelevant([]TextBlock{footer})
	assert.Empty(t, kept)
}

func TestFilterRelevant_LongActionParagraph(t *testing.T) {
	text := "Managers across every region shall establish quarterly walkthroughs of " +
		"office spaces and shared working areas so that visitors, contractors and " +
		"guests always sign the entry register before entering any floor."
	b := block(text)
	Classify(&b)

	kept := FilterRelevant([]TextBlock{b})
	assert.Len(t, kept, 1, "long paragraph with action verb is kept")
}

func TestFilterRelevant_DropsIrrelevantText(t *testing.T) {
	b := block("The cafeteria offers lunch between noon and two on weekdays for staff.")
	Classify(&b)

	kept := FilterRelevant([]TextBlock{b})
	assert.Empty(t, kept)
}

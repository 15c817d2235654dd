package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONArray_CodeFence(t *testing.T) {
	content := "Here are the findings:\n```json\n[{\"page_number\": 1, \"severity\": \"high\"}]\n```\nDone."

	extracted := ExtractJSONArray(content)
	require.NotEmpty(t, extracted)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(extracted), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "high", items[0]["severity"])
}

func TestExtractJSONArray_BareArray(t *testing.T) {
	content := `[{"a": 1}, {"a": 2}]`

	extracted := ExtractJSONArray(content)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(extracted), &items))
	assert.Len(t, items, 2)
}

func TestExtractJSONArray_TrailingComma(t *testing.T) {
	content := "```json\n[{\"a\": 1},]\n```"

	extracted := ExtractJSONArray(content)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(extracted), &items))
	assert.Len(t, items, 1)
}

func TestExtractJSONArray_Comments(t *testing.T) {
	content := "[\n{\"a\": 1}, // first item\n{\"a\": 2}\n]"

	extracted := ExtractJSONArray(content)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(extracted), &items))
	assert.Len(t, items, 2)
}

func TestExtractJSONArray_NoArray(t *testing.T) {
	assert.Empty(t, ExtractJSONArray("no json here"))
	assert.Empty(t, ExtractJSONArray(""))
}

func TestStripLineComment_PreservesURLs(t *testing.T) {
	line := `"url": "http://example.com" // comment`
	assert.Equal(t, `"url": "http://example.com"`, stripLineComment(line))

	line = `"url": "http://example.com"`
	assert.Equal(t, line, stripLineComment(line))
}

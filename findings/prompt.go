package findings

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/veridoc/compliscan/batch"
)

// blockPromptChars caps how much of each block's text is quoted in the
// prompt. Must stay consistent with the batch planner's estimate.
const blockPromptChars = 450

// systemPrompt fixes the model's role across providers.
const systemPrompt = `You are a compliance analyst. You review excerpts from a policy document against a list of regulatory controls and report concrete gaps. You respond with strict JSON only.`

// BuildPrompt renders the user prompt for one batch: the framework's
// control summary followed by the batch's blocks, with strict output
// instructions the JSON boundary depends on.
func BuildPrompt(frameworkID, controlsSummary string, b batch.Batch, maxFindings int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Framework under review: %s\n\n", frameworkID)
	sb.WriteString("Controls to check against:\n")
	sb.WriteString(controlsSummary)
	sb.WriteString("\nDocument excerpts:\n\n")

	for _, block := range b.Blocks {
		text := block.Text
		if len(text) > blockPromptChars {
			text = truncate(text, blockPromptChars) + "..."
		}
		fmt.Fprintf(&sb, "[page=%d block_index=%d header=%t]\n%s\n\n",
			block.PageNumber, block.BlockIndex, block.IsHeader, text)
	}

	fmt.Fprintf(&sb, `Identify at most %d compliance findings in these excerpts.

Respond with a JSON array only. No prose, no markdown fences. Each element:
{
  "page_number": <page of the excerpt>,
  "block_index": <block_index of the excerpt>,
  "control_id": "<ID from the controls list>",
  "severity": "high" | "medium" | "low",
  "issue_description": "<what is missing or wrong>",
  "bookmark_type": "verify" | "review" | "info" | "action_required",
  "suggested_action": "<concrete remediation>"
}

Only report findings you can tie to a listed control and a quoted excerpt.
Return [] if the excerpts raise no issues.`, maxFindings)

	return sb.String()
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

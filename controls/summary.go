package controls

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// SummaryTopN is how many controls are rendered into a prompt summary.
	SummaryTopN = 12
	// SummaryRequirementChars truncates each requirement in the summary.
	SummaryRequirementChars = 200
)

// Summary renders a compact, severity-ordered control list for embedding in
// an analysis prompt. Only the top topN controls are included and each
// requirement is truncated to truncateAt characters, so the summary's token
// cost stays bounded regardless of framework size.
func Summary(ctrls []Control, topN, truncateAt int) string {
	if len(ctrls) == 0 {
		return ""
	}

	sorted := make([]Control, len(ctrls))
	copy(sorted, ctrls)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := SeverityRank(sorted[i].Severity), SeverityRank(sorted[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return sorted[i].ControlID < sorted[j].ControlID
	})

	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}

	var sb strings.Builder
	for _, c := range sorted {
		req := c.Requirement
		if truncateAt > 0 && len(req) > truncateAt {
			req = truncate(req, truncateAt) + "..."
		}
		fmt.Fprintf(&sb, "- [%s] (%s, %s) %s\n", c.ControlID, c.Severity, c.Category, req)
	}
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

package findings

import (
	"sort"

	"github.com/veridoc/compliscan/controls"
)

// Aggregate merges per-batch results into one capped finding list.
// Failed batches contribute nothing. Each page keeps at most maxPerPage
// findings and the document keeps at most maxTotal, in both cases
// preferring higher severity; ties keep earlier batches' findings, so the
// result is deterministic for a given set of results.
func Aggregate(results []BatchResult, maxPerPage, maxTotal int) []Finding {
	var all []Finding
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		all = append(all, r.Findings...)
	}
	if len(all) == 0 {
		return nil
	}

	byPage := make(map[int][]Finding)
	for _, f := range all {
		byPage[f.PageNumber] = append(byPage[f.PageNumber], f)
	}

	pages := make([]int, 0, len(byPage))
	for page := range byPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	var kept []Finding
	for _, page := range pages {
		onPage := byPage[page]
		sort.SliceStable(onPage, func(i, j int) bool {
			return controls.SeverityRank(onPage[i].Severity) > controls.SeverityRank(onPage[j].Severity)
		})
		if maxPerPage > 0 && len(onPage) > maxPerPage {
			onPage = onPage[:maxPerPage]
		}
		kept = append(kept, onPage...)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ri, rj := controls.SeverityRank(kept[i].Severity), controls.SeverityRank(kept[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return kept[i].PageNumber < kept[j].PageNumber
	})

	if maxTotal > 0 && len(kept) > maxTotal {
		kept = kept[:maxTotal]
	}
	return kept
}

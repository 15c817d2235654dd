package document

import "strings"

// Relevance thresholds for the keyword-free long-paragraph path.
const (
	longParagraphChars = 100
	longParagraphWords = 15
)

// complianceKeywords is the curated vocabulary that marks a block as worth
// sending to the model. It spans regulatory, security, and organizational
// process language across the supported frameworks.
var complianceKeywords = []string{
	// data protection / GDPR
	"personal data",
	"personal information",
	"data subject",
	"consent",
	"data protection",
	"privacy",
	"retention",
	"processing",
	"controller",
	"lawful basis",
	"legitimate interest",
	"right to erasure",
	"portability",
	"minimization",
	"minimisation",
	"pseudonymi",
	"anonymi",
	"cross-border",
	"data transfer",
	"gdpr",
	// health / HIPAA
	"hipaa",
	"protected health",
	"phi",
	"medical record",
	"patient",
	"de-identif",
	// security / SOC2
	"soc 2",
	"soc2",
	"encryption",
	"encrypt",
	"access control",
	"authentication",
	"authorization",
	"multi-factor",
	"least privilege",
	"audit",
	"logging",
	"monitoring",
	"incident",
	"vulnerability",
	"penetration test",
	"breach",
	"risk assessment",
	"threat",
	"safeguard",
	"backup",
	"disaster recovery",
	"business continuity",
	"availability",
	"integrity",
	"confidential",
	// organizational process
	"third party",
	"third-party",
	"vendor",
	"subprocessor",
	"sub-processor",
	"training",
	"awareness",
	"policy",
	"procedure",
	"compliance",
	"security",
	"governance",
	"oversight",
}

// actionVerbs mark long paragraphs that read as obligations even without a
// recognized keyword.
var actionVerbs = []string{
	"ensure",
	"maintain",
	"implement",
	"establish",
	"enforce",
	"document",
	"review",
	"monitor",
	"restrict",
	"protect",
	"encrypt",
	"retain",
	"dispose",
	"notify",
	"train",
	"assess",
	"verify",
	"comply",
	"require",
	"prohibit",
}

// FilterRelevant keeps the compliance-relevant subset of classified blocks:
// headers (kept unconditionally for context), keyword-bearing content, and
// long obligation-style paragraphs. Everything else is discarded before
// batching.
func FilterRelevant(blocks []TextBlock) []TextBlock {
	var kept []TextBlock
	for _, b := range blocks {
		if isRelevant(&b) {
			kept = append(kept, b)
		}
	}
	return kept
}

func isRelevant(b *TextBlock) bool {
	if b.IsHeader {
		return true
	}
	if b.IsBoilerplate {
		return false
	}

	lower := strings.ToLower(b.Text)
	for _, kw := range complianceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if b.CharCount > longParagraphChars && len(strings.Fields(b.Text)) > longParagraphWords {
		for _, verb := range actionVerbs {
			if strings.Contains(lower, verb) {
				return true
			}
		}
	}

	return false
}

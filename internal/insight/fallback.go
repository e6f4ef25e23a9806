package insight

import (
	"strings"
	"unicode"

	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Fallback values substituted when a stage cannot produce a usable result.
const (
	FallbackInsight         = "Market analysis requires additional data"
	fallbackCompanyName     = "Unknown Company"
	fallbackQueryAnswerFmt  = "Unable to provide specific analysis for query: %s"
	defaultRecommendationCI = 0.5
)

// CompanyFromFilename derives a display name from an upload's filename:
// the .pdf extension is dropped, underscores become spaces and the result is
// title-cased. "report.pdf" becomes "Report".
func CompanyFromFilename(filename string) string {
	stem := strings.TrimSpace(filename)
	if strings.HasSuffix(strings.ToLower(stem), ".pdf") {
		stem = stem[:len(stem)-len(".pdf")]
	}
	stem = strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))
	if stem == "" {
		return fallbackCompanyName
	}
	return titleCase(stem)
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "acme_10k" style stems read "Acme 10K".
func titleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		sb.WriteRune(r)
		prevLetter = false
	}
	return sb.String()
}

func fallbackRecommendations() []models.InvestmentRecommendation {
	return []models.InvestmentRecommendation{{
		Action:     models.ActionMonitor,
		Asset:      "Company stock",
		Rationale:  "Requires further analysis based on available metrics",
		RiskLevel:  models.RiskMedium,
		Confidence: defaultRecommendationCI,
	}}
}

func fallbackRisks() []models.RiskAssessment {
	return []models.RiskAssessment{{
		Category:    "Market Risk",
		Level:       models.RiskMedium,
		Description: "General market volatility affects all investments",
		Mitigation:  "Diversify portfolio and maintain long-term perspective",
	}}
}

func fallbackInsights() []string {
	return []string{FallbackInsight}
}

// DocumentType classifies a transcript by keyword.
func DocumentType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "quarterly report", "q1", "q2", "q3", "q4"):
		return "Quarterly Report"
	case containsAny(lower, "annual report", "10-k"):
		return "Annual Report"
	case strings.Contains(lower, "10-q"):
		return "Quarterly Filing (10-Q)"
	case strings.Contains(lower, "earnings"):
		return "Earnings Report"
	default:
		return "Financial Document"
	}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

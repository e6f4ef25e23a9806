package insight

import (
	"fmt"
	"strconv"

	"github.com/kiranshivaraju/finsight/pkg/models"
)

const summaryTemplate = `Financial Analysis Summary for %s:

Key Performance: Revenue of $%sM and net income of $%sM demonstrate the company's current financial position.

Analysis Focus: This evaluation addresses your query: "%s" by examining core financial metrics and operational performance.

Investment Perspective: Based on available data, the company shows measurable financial indicators that inform strategic investment decisions.`

// Summary renders the fixed summary paragraph. It makes no model call.
func Summary(m models.FinancialMetrics, company, query string) string {
	return fmt.Sprintf(summaryTemplate, company, formatMetric(m.Revenue), formatMetric(m.NetIncome), query)
}

func formatMetric(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Package prompt builds the model requests issued for each insight stage.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Character caps applied to document excerpts, counted in runes.
const (
	CompanyNameChars     = 1000
	MetricsChars         = 8000
	RecommendationsChars = 3000
	RisksChars           = 3000
	InsightsChars        = 2000
	QueryAnswerChars     = 3000
)

// Builder constructs model requests. All methods are pure functions.
// Zero value is usable; Temperature and MaxTokens are copied into every request.
type Builder struct {
	Temperature float64
	MaxTokens   int
}

// CompanyName asks for the issuing company's name as plain text.
func (b Builder) CompanyName(text, filename string) models.GenerateRequest {
	p := fmt.Sprintf(`Extract the company name from this financial document. Return only the company name.

Document text (first %d characters):
%s

Filename: %s`, CompanyNameChars, Truncate(text, CompanyNameChars), filename)
	return b.request(p)
}

// Metrics asks for a JSON object of the seven financial metrics.
func (b Builder) Metrics(text string) models.GenerateRequest {
	p := fmt.Sprintf(`Extract key financial metrics from this document. Return JSON format:
{
  "revenue": <number in millions>,
  "net_income": <number in millions>,
  "total_assets": <number in millions>,
  "operating_cash_flow": <number in millions>,
  "profit_margin": <percentage>,
  "debt_to_equity": <ratio>,
  "eps": <earnings per share>
}
Use null for any metric the document does not state.

Document text: %s`, Truncate(text, MetricsChars))
	return b.request(p)
}

// Recommendations asks for a JSON array of two or three investment recommendations.
func (b Builder) Recommendations(metricsJSON, query, text string) models.GenerateRequest {
	p := fmt.Sprintf(`Based on this financial data, provide 2-3 investment recommendations.

Financial Metrics: %s
User Query: %s

Return JSON array:
[{
  "action": "buy/sell/hold/monitor",
  "asset": "specific asset",
  "rationale": "detailed reasoning",
  "risk_level": "Low/Medium/High",
  "confidence": 0.0-1.0
}]

Document context: %s`, metricsJSON, query, Truncate(text, RecommendationsChars))
	return b.request(p)
}

// Risks asks for a JSON array of risk assessments.
func (b Builder) Risks(metricsJSON, text string) models.GenerateRequest {
	p := fmt.Sprintf(`Analyze risks based on this financial data. Return JSON array:
[{
  "category": "Financial/Market/Operational",
  "level": "Low/Medium/High",
  "description": "risk description",
  "mitigation": "mitigation strategy"
}]

Financial Metrics: %s
Document context: %s`, metricsJSON, Truncate(text, RisksChars))
	return b.request(p)
}

// Insights asks for three to five market insights as a JSON array of strings.
func (b Builder) Insights(companyName, text string) models.GenerateRequest {
	p := fmt.Sprintf(`Provide 3-5 key market insights for %s based on this financial document.
Return as JSON array of strings.

Document context: %s`, companyName, Truncate(text, InsightsChars))
	return b.request(p)
}

// QueryAnswer asks for a free-text answer to the user's question.
func (b Builder) QueryAnswer(query, metricsJSON, text string) models.GenerateRequest {
	p := fmt.Sprintf(`User asked: %q

Financial metrics: %s

Provide a detailed answer to their specific question based on the document.

Document excerpt: %s`, query, metricsJSON, Truncate(text, QueryAnswerChars))
	return b.request(p)
}

func (b Builder) request(p string) models.GenerateRequest {
	return models.GenerateRequest{
		Prompt:      strings.TrimSpace(p),
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
	}
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

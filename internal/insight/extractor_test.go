package insight_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai"
	"github.com/kiranshivaraju/finsight/internal/ai/mock"
	"github.com/kiranshivaraju/finsight/internal/insight"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageReplies maps a distinctive prompt prefix to the canned model reply.
type stageReplies map[string]string

func routedProvider(replies stageReplies) *mock.MockProvider {
	return &mock.MockProvider{
		Name_:  "mock-routed",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (string, error) {
			for prefix, reply := range replies {
				if strings.HasPrefix(req.Prompt, prefix) {
					return reply, nil
				}
			}
			return "", ai.ErrInvalidResponse
		},
	}
}

const (
	companyPrompt  = "Extract the company name"
	metricsPrompt  = "Extract key financial metrics"
	recsPrompt     = "Based on this financial data"
	risksPrompt    = "Analyze risks"
	insightsPrompt = "Provide 3-5 key market insights"
	queryPrompt    = "User asked"
)

func happyReplies() stageReplies {
	return stageReplies{
		companyPrompt: "  Acme Corp \n",
		metricsPrompt: "```json\n{\"revenue\": 1200, \"net_income\": \"85.5\", \"profit_margin\": \"7.1%\", \"eps\": null}\n```",
		recsPrompt: `[{"action":"BUY","asset":"ACME common","rationale":"Strong growth","risk_level":"medium","confidence":0.8},
		             {"action":"short","asset":"x","rationale":"y","risk_level":"Low","confidence":0.2},
		             {"action":"hold","asset":"ACME bonds","rationale":"Stable coupon","risk_level":"Low","confidence":1.7}]`,
		risksPrompt:    `Sure: [{"category":"Financial","level":"high","description":"Leverage is rising","mitigation":"Watch debt"}]`,
		insightsPrompt: `["Demand is strong", "Margins expanding", "  "]`,
		queryPrompt:    "Growth looks durable.",
	}
}

func TestAnalyze_HappyPath(t *testing.T) {
	e := insight.New(routedProvider(happyReplies()))

	res := e.Analyze(context.Background(), "Acme Corp Quarterly Report Q2", "acme.pdf", "Growth potential?")

	assert.Equal(t, "Acme Corp", res.CompanyName)
	assert.Equal(t, "Quarterly Report", res.DocumentType)

	require.NotNil(t, res.FinancialMetrics.Revenue)
	assert.Equal(t, 1200.0, *res.FinancialMetrics.Revenue)
	require.NotNil(t, res.FinancialMetrics.NetIncome)
	assert.Equal(t, 85.5, *res.FinancialMetrics.NetIncome)
	require.NotNil(t, res.FinancialMetrics.ProfitMargin)
	assert.Equal(t, 7.1, *res.FinancialMetrics.ProfitMargin)
	assert.Nil(t, res.FinancialMetrics.EPS)

	require.Len(t, res.InvestmentRecommendations, 2, "invalid action is dropped")
	assert.Equal(t, "buy", res.InvestmentRecommendations[0].Action)
	assert.Equal(t, "Medium", res.InvestmentRecommendations[0].RiskLevel)
	assert.Equal(t, 0.8, res.InvestmentRecommendations[0].Confidence)
	assert.InDelta(t, 0.017, res.InvestmentRecommendations[1].Confidence, 1e-9)

	require.Len(t, res.RiskAssessments, 1)
	assert.Equal(t, "High", res.RiskAssessments[0].Level)

	assert.Equal(t, []string{"Demand is strong", "Margins expanding"}, res.MarketInsights)
	assert.Contains(t, res.Summary, "Acme Corp")
	assert.Contains(t, res.Summary, "$1200M")
	assert.Equal(t, "Growth looks durable.", res.QueryResponse)
}

func TestAnalyze_StageOrderAndDependencies(t *testing.T) {
	p := routedProvider(happyReplies())
	e := insight.New(p)

	e.Analyze(context.Background(), "doc", "acme.pdf", "q")

	calls := p.Calls()
	require.Len(t, calls, 6)
	for i, prefix := range []string{companyPrompt, metricsPrompt, recsPrompt, risksPrompt, insightsPrompt, queryPrompt} {
		assert.True(t, strings.HasPrefix(calls[i].Prompt, prefix), "call %d should be %q", i, prefix)
	}
	assert.Contains(t, calls[2].Prompt, `"revenue":1200`, "recommendations embed metrics")
	assert.Contains(t, calls[3].Prompt, `"revenue":1200`, "risks embed metrics")
	assert.Contains(t, calls[4].Prompt, "Acme Corp", "insights embed company name")
}

func TestAnalyze_AllStagesFail(t *testing.T) {
	e := insight.New(mock.NewFailingProvider(ai.ErrProviderUnavailable))

	res := e.Analyze(context.Background(), "some text", "report.pdf", "Growth potential and competitive analysis")

	assert.Equal(t, "Report", res.CompanyName)
	assert.True(t, res.FinancialMetrics.IsEmpty())
	require.Len(t, res.InvestmentRecommendations, 1)
	assert.Equal(t, models.InvestmentRecommendation{
		Action:     "monitor",
		Asset:      "Company stock",
		Rationale:  "Requires further analysis based on available metrics",
		RiskLevel:  "Medium",
		Confidence: 0.5,
	}, res.InvestmentRecommendations[0])
	require.Len(t, res.RiskAssessments, 1)
	assert.Equal(t, "Market Risk", res.RiskAssessments[0].Category)
	assert.Equal(t, "Medium", res.RiskAssessments[0].Level)
	assert.Equal(t, []string{insight.FallbackInsight}, res.MarketInsights)
	assert.Contains(t, res.Summary, "$N/AM")
	assert.Equal(t, "Unable to provide specific analysis for query: Growth potential and competitive analysis", res.QueryResponse)
	assert.Equal(t, "Financial Document", res.DocumentType)
}

func TestAnalyze_UnparsableReplies(t *testing.T) {
	e := insight.New(mock.NewMockProvider("I'm sorry, I can't determine that from the excerpt provided, and I would need a considerably longer passage of the document before I could name anything"))

	res := e.Analyze(context.Background(), "text", "quarterly_update.pdf", "q")

	assert.Equal(t, "Quarterly Update", res.CompanyName, "overlong name falls back")
	assert.True(t, res.FinancialMetrics.IsEmpty())
	assert.Equal(t, "monitor", res.InvestmentRecommendations[0].Action)
	assert.Equal(t, "Market Risk", res.RiskAssessments[0].Category)
	// Plain text insights are read line by line.
	assert.Len(t, res.MarketInsights, 1)
}

func TestAnalyze_InsightLinesCapped(t *testing.T) {
	replies := happyReplies()
	replies[insightsPrompt] = "one\n\ntwo\nthree\nfour\nfive\nsix\n"
	e := insight.New(routedProvider(replies))

	res := e.Analyze(context.Background(), "doc", "a.pdf", "q")
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, res.MarketInsights)
}

func TestAnalyze_MalformedInsightsFallBack(t *testing.T) {
	replies := happyReplies()
	replies[insightsPrompt] = `["unterminated", `
	e := insight.New(routedProvider(replies))

	res := e.Analyze(context.Background(), "doc", "a.pdf", "q")
	assert.Equal(t, []string{insight.FallbackInsight}, res.MarketInsights)
}

func TestAnalyze_CallTimeout(t *testing.T) {
	e := insight.New(mock.NewTimeoutProvider(), insight.WithCallTimeout(20*time.Millisecond))

	start := time.Now()
	res := e.Analyze(context.Background(), "doc", "report.pdf", "q")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "Report", res.CompanyName)
}

type recorder struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (r *recorder) ObserveStage(stage, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[stage] = outcome
}

func TestAnalyze_RecordsOutcomes(t *testing.T) {
	replies := happyReplies()
	replies[metricsPrompt] = "no numbers available"
	replies[risksPrompt] = `[{"category":"","level":"Extreme","description":""}]`
	rec := &recorder{outcomes: map[string]string{}}
	e := insight.New(routedProvider(replies), insight.WithRecorder(rec))

	e.Analyze(context.Background(), "doc", "a.pdf", "q")

	assert.Equal(t, insight.OutcomeOK, rec.outcomes[insight.StageCompanyName])
	assert.Equal(t, insight.OutcomeNoJSON, rec.outcomes[insight.StageMetrics])
	assert.Equal(t, insight.OutcomeImplausible, rec.outcomes[insight.StageRisks])
	assert.Equal(t, insight.OutcomeOK, rec.outcomes[insight.StageQueryAnswer])
}

func TestAnalyze_Deterministic(t *testing.T) {
	e := insight.New(routedProvider(happyReplies()))

	a := e.Analyze(context.Background(), "doc", "acme.pdf", "q")
	b := e.Analyze(context.Background(), "doc", "acme.pdf", "q")
	assert.Equal(t, a, b)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, insight.OutcomeOK, insight.Outcome(nil))
	assert.Equal(t, insight.OutcomeTimeout, insight.Outcome(ai.ErrInferenceTimeout))
	assert.Equal(t, insight.OutcomeTimeout, insight.Outcome(context.DeadlineExceeded))
	assert.Equal(t, insight.OutcomeProviderError, insight.Outcome(ai.ErrProviderUnavailable))
	assert.Equal(t, insight.OutcomeMalformedJSON, insight.Outcome(&insight.StageError{Stage: "x", Err: insight.ErrMalformedJSON}))
}

// Package insight turns a document transcript and a user query into an
// AnalysisResult through a fixed sequence of model calls. Every stage has a
// deterministic fallback, so Analyze never fails.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/kiranshivaraju/finsight/pkg/prompt"
)

const (
	maxCompanyNameRunes = 100
	maxInsightLines     = 5
)

// StageRecorder observes the outcome of each stage.
type StageRecorder interface {
	ObserveStage(stage, outcome string)
}

// Extractor runs the insight pipeline against an injected model provider.
type Extractor struct {
	provider models.AIProvider
	prompts  prompt.Builder
	validate *validator.Validate
	timeout  time.Duration
	recorder StageRecorder
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPromptBuilder overrides sampling parameters applied to every request.
func WithPromptBuilder(b prompt.Builder) Option {
	return func(e *Extractor) { e.prompts = b }
}

// WithCallTimeout bounds each individual model call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// WithRecorder reports stage outcomes, typically to Prometheus.
func WithRecorder(r StageRecorder) Option {
	return func(e *Extractor) { e.recorder = r }
}

// New creates an Extractor. The provider is constructed once at startup and shared.
func New(provider models.AIProvider, opts ...Option) *Extractor {
	e := &Extractor{
		provider: provider,
		prompts:  prompt.Builder{Temperature: 0.1},
		validate: validator.New(),
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze runs every stage in dependency order and always returns a
// fully-populated result.
func (e *Extractor) Analyze(ctx context.Context, text, filename, query string) models.AnalysisResult {
	company := runStage(ctx, e, StageCompanyName,
		func() string { return CompanyFromFilename(filename) },
		func(ctx context.Context) (string, error) { return e.companyName(ctx, text, filename) })

	metrics := runStage(ctx, e, StageMetrics,
		func() models.FinancialMetrics { return models.FinancialMetrics{} },
		func(ctx context.Context) (models.FinancialMetrics, error) { return e.metrics(ctx, text) })
	metricsJSON := marshalMetrics(metrics)

	recs := runStage(ctx, e, StageRecommendations, fallbackRecommendations,
		func(ctx context.Context) ([]models.InvestmentRecommendation, error) {
			return e.recommendations(ctx, metricsJSON, query, text)
		})

	risks := runStage(ctx, e, StageRisks, fallbackRisks,
		func(ctx context.Context) ([]models.RiskAssessment, error) { return e.risks(ctx, metricsJSON, text) })

	insights := runStage(ctx, e, StageInsights, fallbackInsights,
		func(ctx context.Context) ([]string, error) { return e.insights(ctx, company, text) })

	summary := Summary(metrics, company, query)

	answer := runStage(ctx, e, StageQueryAnswer,
		func() string { return fmt.Sprintf(fallbackQueryAnswerFmt, query) },
		func(ctx context.Context) (string, error) { return e.queryAnswer(ctx, query, metricsJSON, text) })

	return models.AnalysisResult{
		CompanyName:               company,
		DocumentType:              DocumentType(text),
		FinancialMetrics:          metrics,
		InvestmentRecommendations: recs,
		RiskAssessments:           risks,
		MarketInsights:            insights,
		Summary:                   summary,
		QueryResponse:             answer,
	}
}

// runStage executes one stage with its own call timeout. Any error is logged
// as a StageError and replaced by the stage's fallback.
func runStage[T any](ctx context.Context, e *Extractor, stage string, fallback func() T, fn func(context.Context) (T, error)) T {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := fn(callCtx)
	if e.recorder != nil {
		e.recorder.ObserveStage(stage, Outcome(err))
	}
	if err != nil {
		slog.Warn("insight stage fell back",
			"stage", stage,
			"outcome", Outcome(err),
			"error", &StageError{Stage: stage, Err: err},
		)
		return fallback()
	}
	return out
}

func (e *Extractor) generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	return e.provider.Generate(ctx, req)
}

func (e *Extractor) companyName(ctx context.Context, text, filename string) (string, error) {
	raw, err := e.generate(ctx, e.prompts.CompanyName(text, filename))
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyResult
	}
	if utf8.RuneCountInString(name) >= maxCompanyNameRunes {
		return "", fmt.Errorf("%w: company name is %d characters", ErrImplausible, utf8.RuneCountInString(name))
	}
	return name, nil
}

type rawMetrics struct {
	Revenue           number `json:"revenue"`
	NetIncome         number `json:"net_income"`
	TotalAssets       number `json:"total_assets"`
	OperatingCashFlow number `json:"operating_cash_flow"`
	ProfitMargin      number `json:"profit_margin"`
	DebtToEquity      number `json:"debt_to_equity"`
	EPS               number `json:"eps"`
}

func (e *Extractor) metrics(ctx context.Context, text string) (models.FinancialMetrics, error) {
	raw, err := e.generate(ctx, e.prompts.Metrics(text))
	if err != nil {
		return models.FinancialMetrics{}, err
	}
	rm, err := decodeObject[rawMetrics](raw)
	if err != nil {
		return models.FinancialMetrics{}, err
	}
	m := models.FinancialMetrics{
		Revenue:           rm.Revenue.ptr(),
		NetIncome:         rm.NetIncome.ptr(),
		TotalAssets:       rm.TotalAssets.ptr(),
		OperatingCashFlow: rm.OperatingCashFlow.ptr(),
		ProfitMargin:      rm.ProfitMargin.ptr(),
		DebtToEquity:      rm.DebtToEquity.ptr(),
		EPS:               rm.EPS.ptr(),
	}
	if m.IsEmpty() {
		return models.FinancialMetrics{}, ErrEmptyResult
	}
	return m, nil
}

type rawRecommendation struct {
	Action     string `json:"action"`
	Asset      string `json:"asset"`
	Rationale  string `json:"rationale"`
	RiskLevel  string `json:"risk_level"`
	Confidence number `json:"confidence"`
}

func (e *Extractor) recommendations(ctx context.Context, metricsJSON, query, text string) ([]models.InvestmentRecommendation, error) {
	raw, err := e.generate(ctx, e.prompts.Recommendations(metricsJSON, query, text))
	if err != nil {
		return nil, err
	}
	elems, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}

	var out []models.InvestmentRecommendation
	for _, el := range elems {
		var r rawRecommendation
		if err := json.Unmarshal(el, &r); err != nil {
			continue
		}
		rec := models.InvestmentRecommendation{
			Action:     strings.ToLower(strings.TrimSpace(r.Action)),
			Asset:      strings.TrimSpace(r.Asset),
			Rationale:  strings.TrimSpace(r.Rationale),
			RiskLevel:  titleCase(strings.TrimSpace(r.RiskLevel)),
			Confidence: clampConfidence(r.Confidence),
		}
		if err := e.validate.Struct(rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of %d recommendations passed validation", ErrImplausible, len(elems))
	}
	return out, nil
}

// clampConfidence bounds a model-reported confidence to [0,1]. Values above 1
// and at most 100 are read as percentages. A missing value defaults to 0.5.
func clampConfidence(n number) float64 {
	if n.value == nil {
		return defaultRecommendationCI
	}
	v := *n.value
	if v > 1 && v <= 100 {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}

type rawRisk struct {
	Category    string `json:"category"`
	Level       string `json:"level"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
}

func (e *Extractor) risks(ctx context.Context, metricsJSON, text string) ([]models.RiskAssessment, error) {
	raw, err := e.generate(ctx, e.prompts.Risks(metricsJSON, text))
	if err != nil {
		return nil, err
	}
	elems, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}

	var out []models.RiskAssessment
	for _, el := range elems {
		var r rawRisk
		if err := json.Unmarshal(el, &r); err != nil {
			continue
		}
		risk := models.RiskAssessment{
			Category:    strings.TrimSpace(r.Category),
			Level:       titleCase(strings.TrimSpace(r.Level)),
			Description: strings.TrimSpace(r.Description),
			Mitigation:  strings.TrimSpace(r.Mitigation),
		}
		if err := e.validate.Struct(risk); err != nil {
			continue
		}
		out = append(out, risk)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of %d risk assessments passed validation", ErrImplausible, len(elems))
	}
	return out, nil
}

func (e *Extractor) insights(ctx context.Context, company, text string) ([]string, error) {
	raw, err := e.generate(ctx, e.prompts.Insights(company, text))
	if err != nil {
		return nil, err
	}

	elems, err := decodeArray(raw)
	switch {
	case err == nil:
		var out []string
		for _, el := range elems {
			var s string
			if json.Unmarshal(el, &s) != nil {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, ErrEmptyResult
		}
		return out, nil
	case errors.Is(err, ErrNoJSON):
		return insightLines(raw)
	default:
		return nil, err
	}
}

// insightLines is the plain-text reading of an insights reply: the first
// non-empty lines, at most five.
func insightLines(raw string) ([]string, error) {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
			if len(out) == maxInsightLines {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

func (e *Extractor) queryAnswer(ctx context.Context, query, metricsJSON, text string) (string, error) {
	raw, err := e.generate(ctx, e.prompts.QueryAnswer(query, metricsJSON, text))
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", ErrEmptyResult
	}
	return answer, nil
}

func marshalMetrics(m models.FinancialMetrics) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

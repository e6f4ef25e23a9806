package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult is the payload stored on a completed job. Every field has a
// fallback, so a result is always well-formed even when model calls fail.
type AnalysisResult struct {
	CompanyName               string                     `json:"company_name"`
	DocumentType              string                     `json:"document_type"`
	FinancialMetrics          FinancialMetrics           `json:"financial_metrics"`
	InvestmentRecommendations []InvestmentRecommendation `json:"investment_recommendations"`
	RiskAssessments           []RiskAssessment           `json:"risk_assessments"`
	MarketInsights            []string                   `json:"market_insights"`
	Summary                   string                     `json:"summary"`
	QueryResponse             string                     `json:"query_response"`
}

// FinancialMetrics holds figures extracted from a report. Monetary values are in
// millions, percentages are plain numbers (12.4 means 12.4%).
type FinancialMetrics struct {
	Revenue           *float64 `json:"revenue,omitempty"`
	NetIncome         *float64 `json:"net_income,omitempty"`
	TotalAssets       *float64 `json:"total_assets,omitempty"`
	OperatingCashFlow *float64 `json:"operating_cash_flow,omitempty"`
	ProfitMargin      *float64 `json:"profit_margin,omitempty"`
	DebtToEquity      *float64 `json:"debt_to_equity,omitempty"`
	EPS               *float64 `json:"eps,omitempty"`
}

// IsEmpty reports whether no metric was extracted.
func (m FinancialMetrics) IsEmpty() bool {
	return m.Revenue == nil && m.NetIncome == nil && m.TotalAssets == nil &&
		m.OperatingCashFlow == nil && m.ProfitMargin == nil && m.DebtToEquity == nil && m.EPS == nil
}

const (
	ActionBuy     = "buy"
	ActionSell    = "sell"
	ActionHold    = "hold"
	ActionMonitor = "monitor"

	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

type InvestmentRecommendation struct {
	Action     string  `json:"action"     validate:"required,oneof=buy sell hold monitor"`
	Asset      string  `json:"asset"      validate:"required,max=200"`
	Rationale  string  `json:"rationale"  validate:"required"`
	RiskLevel  string  `json:"risk_level" validate:"required,oneof=Low Medium High"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type RiskAssessment struct {
	Category    string `json:"category"    validate:"required,max=100"`
	Level       string `json:"level"       validate:"required,oneof=Low Medium High"`
	Description string `json:"description" validate:"required"`
	Mitigation  string `json:"mitigation"`
}

// FinancialMetricsRecord is the denormalised analytics row written for each
// completed analysis. It is derived entirely from the job's result payload.
type FinancialMetricsRecord struct {
	ID                int64     `db:"id"                  json:"id"`
	JobID             uuid.UUID `db:"job_id"              json:"task_id"`
	CompanyName       *string   `db:"company_name"        json:"company_name"`
	Revenue           *float64  `db:"revenue"             json:"revenue"`
	NetIncome         *float64  `db:"net_income"          json:"net_income"`
	TotalAssets       *float64  `db:"total_assets"        json:"total_assets"`
	OperatingCashFlow *float64  `db:"operating_cash_flow" json:"operating_cash_flow"`
	ProfitMargin      *float64  `db:"profit_margin"       json:"profit_margin"`
	DebtToEquity      *float64  `db:"debt_to_equity"      json:"debt_to_equity"`
	EPS               *float64  `db:"eps"                 json:"eps"`
	ExtractedAt       time.Time `db:"extracted_at"        json:"extracted_at"`
}

// NewFinancialMetricsRecord derives the analytics row for a completed job.
// Returns nil when the result carries no metrics.
func NewFinancialMetricsRecord(jobID uuid.UUID, r *AnalysisResult, at time.Time) *FinancialMetricsRecord {
	if r == nil || r.FinancialMetrics.IsEmpty() {
		return nil
	}
	var company *string
	if r.CompanyName != "" {
		c := r.CompanyName
		company = &c
	}
	m := r.FinancialMetrics
	return &FinancialMetricsRecord{
		JobID:             jobID,
		CompanyName:       company,
		Revenue:           m.Revenue,
		NetIncome:         m.NetIncome,
		TotalAssets:       m.TotalAssets,
		OperatingCashFlow: m.OperatingCashFlow,
		ProfitMargin:      m.ProfitMargin,
		DebtToEquity:      m.DebtToEquity,
		EPS:               m.EPS,
		ExtractedAt:       at,
	}
}

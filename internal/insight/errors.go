package insight

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/finsight/internal/ai"
)

// Stage names, also used as the stage label on metrics.
const (
	StageCompanyName     = "company_name"
	StageMetrics         = "financial_metrics"
	StageRecommendations = "recommendations"
	StageRisks           = "risk_assessment"
	StageInsights        = "market_insights"
	StageQueryAnswer     = "query_answer"
)

// Stage outcomes recorded per call.
const (
	OutcomeOK            = "ok"
	OutcomeNoJSON        = "no_json"
	OutcomeMalformedJSON = "malformed_json"
	OutcomeEmpty         = "empty"
	OutcomeImplausible   = "implausible"
	OutcomeTimeout       = "timeout"
	OutcomeProviderError = "provider_error"
)

// StageError describes why a stage fell back. It never leaves the extractor.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("insight stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome maps a stage error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNoJSON):
		return OutcomeNoJSON
	case errors.Is(err, ErrMalformedJSON):
		return OutcomeMalformedJSON
	case errors.Is(err, ErrEmptyResult):
		return OutcomeEmpty
	case errors.Is(err, ErrImplausible):
		return OutcomeImplausible
	case errors.Is(err, ai.ErrInferenceTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeProviderError
	}
}

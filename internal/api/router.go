package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/finsight/internal/api/middleware"
	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// Instrument wraps every request; nil disables it.
	Instrument func(http.Handler) http.Handler

	HealthHandler  http.Handler
	MetricsHandler http.Handler

	AnalyzeHandler      http.HandlerFunc
	AnalyzeFastHandler  http.HandlerFunc
	GetAnalysisHandler  http.HandlerFunc
	ListAnalysesHandler http.HandlerFunc
	StatsHandler        http.HandlerFunc
	FinancialMetrics    http.HandlerFunc
	DeleteAnalysis      http.HandlerFunc
	RebuildMetrics      http.HandlerFunc
	CreateKeyHandler    http.HandlerFunc
	ListKeysHandler     http.HandlerFunc
	RevokeKeyHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}

	// Public
	r.Method(http.MethodGet, "/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", orNotImplemented(deps.MetricsHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/analyze", orNotImplementedFunc(deps.AnalyzeHandler))
		r.Post("/analyze-fast", orNotImplementedFunc(deps.AnalyzeFastHandler))
		r.Get("/analysis/{taskID}", orNotImplementedFunc(deps.GetAnalysisHandler))
		r.Get("/analyses", orNotImplementedFunc(deps.ListAnalysesHandler))
		r.Get("/stats", orNotImplementedFunc(deps.StatsHandler))
		r.Get("/financial-metrics", orNotImplementedFunc(deps.FinancialMetrics))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Delete("/analysis/{taskID}", orNotImplementedFunc(deps.DeleteAnalysis))
			r.Post("/admin/financial-metrics/rebuild", orNotImplementedFunc(deps.RebuildMetrics))
			r.Post("/admin/keys", orNotImplementedFunc(deps.CreateKeyHandler))
			r.Get("/admin/keys", orNotImplementedFunc(deps.ListKeysHandler))
			r.Delete("/admin/keys/{keyID}", orNotImplementedFunc(deps.RevokeKeyHandler))
		})
	})

	return r
}

func orNotImplementedFunc(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return notImplemented
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return notImplemented
}

var notImplemented = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
})

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

const defaultMetricsLimit = 50

// StatsReader defines the aggregate and analytics reads.
type StatsReader interface {
	Stats(ctx context.Context) (*models.JobStats, error)
	FinancialMetrics(ctx context.Context, filter store.MetricsFilter) ([]*models.FinancialMetricsRecord, error)
	RebuildFinancialMetrics(ctx context.Context) (int, error)
}

// NewStatsHandler returns an http.HandlerFunc for GET /stats.
func NewStatsHandler(svc StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			slog.Error("reading stats", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		response.JSON(w, stats)
	}
}

// NewFinancialMetricsHandler returns an http.HandlerFunc for GET /financial-metrics.
func NewFinancialMetricsHandler(svc StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		if limit == 0 {
			limit = defaultMetricsLimit
		}

		rows, err := svc.FinancialMetrics(r.Context(), store.MetricsFilter{
			Company: strings.TrimSpace(r.URL.Query().Get("company")),
			Limit:   limit,
		})
		if err != nil {
			slog.Error("listing financial metrics", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if rows == nil {
			rows = []*models.FinancialMetricsRecord{}
		}
		response.Collection(w, rows, response.ListMeta{Limit: limit, Count: len(rows)})
	}
}

// NewRebuildMetricsHandler returns an http.HandlerFunc for
// POST /admin/financial-metrics/rebuild.
func NewRebuildMetricsHandler(svc StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RebuildFinancialMetrics(r.Context())
		if err != nil {
			slog.Error("rebuilding financial metrics", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		slog.Info("financial metrics rebuilt", "rows", n)
		response.JSON(w, map[string]int{"rebuilt": n})
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStats struct {
	stats     *models.JobStats
	err       error
	rows      []*models.FinancialMetricsRecord
	filter    store.MetricsFilter
	rebuildN  int
	rebuildEr error
}

func (m *mockStats) Stats(context.Context) (*models.JobStats, error) { return m.stats, m.err }

func (m *mockStats) FinancialMetrics(_ context.Context, f store.MetricsFilter) ([]*models.FinancialMetricsRecord, error) {
	m.filter = f
	return m.rows, m.err
}

func (m *mockStats) RebuildFinancialMetrics(context.Context) (int, error) {
	return m.rebuildN, m.rebuildEr
}

func TestStats(t *testing.T) {
	svc := &mockStats{stats: &models.JobStats{Total: 4, Completed: 3, Failed: 1, SuccessRate: "75.0%"}}
	rec := httptest.NewRecorder()
	NewStatsHandler(svc)(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(4), data["total_analyses"])
	assert.Equal(t, "75.0%", data["success_rate"])
}

func TestStats_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStatsHandler(&mockStats{err: errors.New("boom")})(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFinancialMetrics_FilterAndMeta(t *testing.T) {
	company := "Acme Corp"
	rev := 120.5
	svc := &mockStats{rows: []*models.FinancialMetricsRecord{
		{ID: 1, JobID: uuid.New(), CompanyName: &company, Revenue: &rev},
	}}

	rec := httptest.NewRecorder()
	NewFinancialMetricsHandler(svc)(rec, httptest.NewRequest(http.MethodGet, "/financial-metrics?company=acme&limit=20", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.MetricsFilter{Company: "acme", Limit: 20}, svc.filter)

	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Limit int `json:"limit"`
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Acme Corp", env.Data[0]["company_name"])
	assert.Equal(t, 20, env.Meta.Limit)
	assert.Equal(t, 1, env.Meta.Count)
}

func TestFinancialMetrics_DefaultLimit(t *testing.T) {
	svc := &mockStats{}
	rec := httptest.NewRecorder()
	NewFinancialMetricsHandler(svc)(rec, httptest.NewRequest(http.MethodGet, "/financial-metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultMetricsLimit, svc.filter.Limit)
	assert.Empty(t, svc.filter.Company)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestRebuildMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRebuildMetricsHandler(&mockStats{rebuildN: 7})(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decodeData(t, rec)["rebuilt"])
}

func TestRebuildMetrics_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRebuildMetricsHandler(&mockStats{rebuildEr: errors.New("tx aborted")})(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

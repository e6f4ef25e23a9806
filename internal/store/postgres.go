package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, filename, query, status, result, error_message, company_name, processing_time,
	created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j      models.Job
		result []byte
	)
	if err := row.Scan(&j.ID, &j.Filename, &j.Query, &j.Status, &result, &j.ErrorMessage, &j.CompanyName,
		&j.ProcessingTime, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		var r models.AnalysisResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", j.ID, err)
		}
		j.Result = &r
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, filename, query, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Filename, job.Query, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM analyses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM analyses ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job and, by cascade, its analytics row.
func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus moves a job to status. The current status is read under a
// row lock and the change is rejected with ErrInvalidTransition unless it is
// legal. Completion writes the result and its analytics row in the same
// transaction.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error {
	params := ResolveJobUpdate(opts...)

	switch {
	case status == models.JobStatusCompleted && params.Result == nil:
		return fmt.Errorf("completing job %s: result is required", id)
	case status == models.JobStatusFailed && params.ErrorMessage == nil:
		return fmt.Errorf("failing job %s: error message is required", id)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current models.JobStatus
	err = tx.QueryRow(ctx, `SELECT status FROM analyses WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if !models.CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	query := `UPDATE analyses SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusProcessing {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status.IsTerminal() {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.ProcessingTime != nil {
		query += fmt.Sprintf(", processing_time = $%d", argIdx)
		args = append(args, *params.ProcessingTime)
		argIdx++
	}
	if params.Result != nil {
		payload, err := json.Marshal(params.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		query += fmt.Sprintf(", result = $%d, company_name = $%d", argIdx, argIdx+1)
		args = append(args, payload, nullIfEmpty(params.Result.CompanyName))
	}

	query += " WHERE id = $1"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if status == models.JobStatusCompleted {
		if rec := models.NewFinancialMetricsRecord(id, params.Result, now); rec != nil {
			if err := insertFinancialMetrics(ctx, tx, rec); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job status: %w", err)
	}
	return nil
}

// FailStaleJobs fails every job that entered processing before startedBefore.
func (s *PostgresStore) FailStaleJobs(ctx context.Context, startedBefore time.Time, message string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE analyses
		 SET status = 'failed', error_message = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE status = 'processing' AND started_at < $1
		 RETURNING id`, startedBefore, message)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) JobStats(ctx context.Context) (*models.JobStats, error) {
	var st models.JobStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'queued'),
		        COUNT(*) FILTER (WHERE status = 'processing'),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status = 'failed')
		 FROM analyses`,
	).Scan(&st.Total, &st.Queued, &st.Processing, &st.Completed, &st.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	st.SuccessRate = models.SuccessRate(st.Completed, st.Total)
	return &st, nil
}

// --- Financial metrics ---

func insertFinancialMetrics(ctx context.Context, tx pgx.Tx, rec *models.FinancialMetricsRecord) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO financial_metrics (job_id, company_name, revenue, net_income, total_assets,
		   operating_cash_flow, profit_margin, debt_to_equity, eps, extracted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (job_id) DO UPDATE SET
		   company_name = EXCLUDED.company_name,
		   revenue = EXCLUDED.revenue,
		   net_income = EXCLUDED.net_income,
		   total_assets = EXCLUDED.total_assets,
		   operating_cash_flow = EXCLUDED.operating_cash_flow,
		   profit_margin = EXCLUDED.profit_margin,
		   debt_to_equity = EXCLUDED.debt_to_equity,
		   eps = EXCLUDED.eps,
		   extracted_at = EXCLUDED.extracted_at`,
		rec.JobID, rec.CompanyName, rec.Revenue, rec.NetIncome, rec.TotalAssets,
		rec.OperatingCashFlow, rec.ProfitMargin, rec.DebtToEquity, rec.EPS, rec.ExtractedAt)
	if err != nil {
		return fmt.Errorf("insert financial metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFinancialMetrics(ctx context.Context, filter MetricsFilter) ([]*models.FinancialMetricsRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, company_name, revenue, net_income, total_assets, operating_cash_flow,
		        profit_margin, debt_to_equity, eps, extracted_at
		 FROM financial_metrics
		 WHERE ($1::text = '' OR company_name ILIKE '%' || $1::text || '%')
		 ORDER BY extracted_at DESC, id DESC
		 LIMIT $2`, filter.Company, limit)
	if err != nil {
		return nil, fmt.Errorf("list financial metrics: %w", err)
	}
	defer rows.Close()

	out := []*models.FinancialMetricsRecord{}
	for rows.Next() {
		var r models.FinancialMetricsRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.CompanyName, &r.Revenue, &r.NetIncome, &r.TotalAssets,
			&r.OperatingCashFlow, &r.ProfitMargin, &r.DebtToEquity, &r.EPS, &r.ExtractedAt); err != nil {
			return nil, fmt.Errorf("scan financial metrics: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RebuildFinancialMetrics regenerates the analytics table from completed
// job payloads and returns the number of rows written.
func (s *PostgresStore) RebuildFinancialMetrics(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT id, result, COALESCE(completed_at, updated_at) FROM analyses
		 WHERE status = 'completed' AND result IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("read completed jobs: %w", err)
	}

	var records []*models.FinancialMetricsRecord
	for rows.Next() {
		var (
			id      uuid.UUID
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&id, &payload, &at); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan completed job: %w", err)
		}
		var r models.AnalysisResult
		if err := json.Unmarshal(payload, &r); err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode result of job %s: %w", id, err)
		}
		if rec := models.NewFinancialMetricsRecord(id, &r, at); rec != nil {
			records = append(records, rec)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read completed jobs: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM financial_metrics`); err != nil {
		return 0, fmt.Errorf("clear financial metrics: %w", err)
	}
	for _, rec := range records {
		if err := insertFinancialMetrics(ctx, tx, rec); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit rebuild: %w", err)
	}
	return len(records), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)

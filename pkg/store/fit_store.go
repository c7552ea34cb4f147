package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
)

// FitRecord 一行 ou_fit_runs
// 可空列用指针表示
type FitRecord struct {
	ID            uuid.UUID
	RunID         uuid.UUID
	Pair          string
	LegA          string
	LegB          string
	Stage         string // 写入列数据所用的窗口：train / retrain
	Mu            *float64
	Theta         *float64
	Sigma         *float64
	MeanReverting bool
	Kappa         *float64
	HalfLife      *float64 // 观测周期数
	EntryLevel    *float64
	ExitLevel     *float64
	EntryZ        *float64
	ExitZ         *float64
	Error         string
	Detail        []byte
	StartedAt     time.Time
	FinishedAt    time.Time
	CreatedAt     time.Time
}

// NewFitRecord 把分析结果展开成一行记录，完整结果保存在 Detail (JSONB)
func NewFitRecord(r *analysis.Result) (*FitRecord, error) {
	detail, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal result detail: %w", err)
	}

	rec := &FitRecord{
		ID:         uuid.New(),
		RunID:      r.RunID,
		Pair:       r.Pair.String(),
		LegA:       r.Pair.A,
		LegB:       r.Pair.B,
		Error:      r.Error,
		Detail:     detail,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}

	fit := r.Active()
	if fit == nil {
		return rec, nil
	}

	rec.Stage = fit.Window.Name
	rec.Mu = float64Ptr(fit.Params.Mu)
	rec.Theta = float64Ptr(fit.Params.Theta)
	rec.Sigma = float64Ptr(fit.Params.Sigma)
	rec.MeanReverting = fit.Params.MeanReverting
	if fit.Model != nil {
		rec.Kappa = float64Ptr(fit.Model.Kappa)
		rec.HalfLife = float64Ptr(fit.Model.HalfLifePeriods())
	}
	if fit.Levels != nil {
		rec.EntryLevel = float64Ptr(fit.Levels.Entry)
		rec.ExitLevel = float64Ptr(fit.Levels.Liquidation)
	}
	if fit.ZScores != nil {
		rec.EntryZ = float64Ptr(fit.ZScores.EntryZ)
		rec.ExitZ = float64Ptr(fit.ZScores.ExitZ)
	}
	return rec, nil
}

func float64Ptr(v float64) *float64 {
	return &v
}

// FitStore reads and writes ou_fit_runs.
type FitStore struct {
	pool *pgxpool.Pool
}

// NewFitStore creates a FitStore backed by the given connection pool.
func NewFitStore(pool *pgxpool.Pool) *FitStore {
	return &FitStore{pool: pool}
}

// Save inserts one row for the result.
func (s *FitStore) Save(ctx context.Context, r *analysis.Result) error {
	rec, err := NewFitRecord(r)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO ou_fit_runs (
			id, run_id, pair, leg_a, leg_b, stage,
			mu, theta, sigma, mean_reverting, kappa, half_life,
			entry_level, exit_level, entry_z, exit_z,
			error, detail, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID.String(), rec.RunID.String(), rec.Pair, rec.LegA, rec.LegB, rec.Stage,
		rec.Mu, rec.Theta, rec.Sigma, rec.MeanReverting, rec.Kappa, rec.HalfLife,
		rec.EntryLevel, rec.ExitLevel, rec.EntryZ, rec.ExitZ,
		rec.Error, rec.Detail, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save fit %s: %w", rec.Pair, err)
	}
	log.Printf("[Store] Saved %s run %s", rec.Pair, rec.RunID)
	return nil
}

// Recent returns the latest rows for a pair, newest first.
func (s *FitStore) Recent(ctx context.Context, pair string, limit int) ([]FitRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT id::text, run_id::text, pair, leg_a, leg_b, stage,
			mu, theta, sigma, mean_reverting, kappa, half_life,
			entry_level, exit_level, entry_z, exit_z,
			error, detail, started_at, finished_at, created_at
		FROM ou_fit_runs
		WHERE pair = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fits %s: %w", pair, err)
	}
	defer rows.Close()

	var records []FitRecord
	for rows.Next() {
		var rec FitRecord
		var id, runID string
		if err := rows.Scan(
			&id, &runID, &rec.Pair, &rec.LegA, &rec.LegB, &rec.Stage,
			&rec.Mu, &rec.Theta, &rec.Sigma, &rec.MeanReverting, &rec.Kappa, &rec.HalfLife,
			&rec.EntryLevel, &rec.ExitLevel, &rec.EntryZ, &rec.ExitZ,
			&rec.Error, &rec.Detail, &rec.StartedAt, &rec.FinishedAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fit: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("postgres: parse id %q: %w", id, err)
		}
		if rec.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("postgres: parse run_id %q: %w", runID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fits: %w", err)
	}

	return records, nil
}

// Name implements analysis.Sink
func (s *FitStore) Name() string {
	return "postgres"
}

// Consume implements analysis.Sink
func (s *FitStore) Consume(ctx context.Context, r *analysis.Result) error {
	return s.Save(ctx, r)
}

var _ analysis.Sink = (*FitStore)(nil)

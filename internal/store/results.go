package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dezgo/tradintel/internal/model"
)

// SaveOptimizationResult upserts a grid-search candidate, deduped on
// (strategy, symbol, timeframe, params) per spec.md §4.6/§4.8.
func (s *Store) SaveOptimizationResult(ctx context.Context, r model.OptimizationResult) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("save optimization result: marshal params: %w", err)
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("save optimization result: marshal metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_results (strategy, symbol, timeframe, params_json, score, metrics_json, created_ts)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(strategy, symbol, timeframe, params_json) DO UPDATE SET
			score=excluded.score, metrics_json=excluded.metrics_json, created_ts=excluded.created_ts`,
		r.Strategy, r.Symbol, string(r.Timeframe), string(params), r.Score, string(metrics), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save optimization result: %w", err)
	}
	return nil
}

// TopOptimizationResults returns the best-scoring rows for (strategy,
// symbol), best first, truncated to n (spec.md §4.8: "Top-5... upserted").
func (s *Store) TopOptimizationResults(ctx context.Context, strategy, symbol string, n int) ([]model.OptimizationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, timeframe, params_json, score, metrics_json, created_ts
		FROM optimization_results WHERE strategy = ? AND symbol = ?
		ORDER BY score DESC LIMIT ?`, strategy, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("top optimization results: %w", err)
	}
	defer rows.Close()

	var out []model.OptimizationResult
	for rows.Next() {
		var r model.OptimizationResult
		var tf, paramsJSON, metricsJSON string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &tf, &paramsJSON, &r.Score, &metricsJSON, &r.CreatedTs); err != nil {
			return nil, fmt.Errorf("top optimization results: scan: %w", err)
		}
		r.Timeframe = model.Timeframe(tf)
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("top optimization results: unmarshal params: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
			return nil, fmt.Errorf("top optimization results: unmarshal metrics: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OptimizationFilter narrows ListOptimizationResults for GET
// /optimizer/results (spec.md §6).
type OptimizationFilter struct {
	Strategy string
	Symbol   string
	MinScore float64
	Limit    int
}

// ListOptimizationResults returns grid-search candidates across every
// (strategy, symbol) pair, best first, honoring Filter's optional
// narrowing — unlike TopOptimizationResults, which is scoped to one pair.
func (s *Store) ListOptimizationResults(ctx context.Context, f OptimizationFilter) ([]model.OptimizationResult, error) {
	q := `SELECT id, strategy, symbol, timeframe, params_json, score, metrics_json, created_ts
		FROM optimization_results WHERE score >= ?`
	args := []any{f.MinScore}
	if f.Strategy != "" {
		q += " AND strategy = ?"
		args = append(args, f.Strategy)
	}
	if f.Symbol != "" {
		q += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	q += " ORDER BY score DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list optimization results: %w", err)
	}
	defer rows.Close()

	var out []model.OptimizationResult
	for rows.Next() {
		var r model.OptimizationResult
		var tf, paramsJSON, metricsJSON string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &tf, &paramsJSON, &r.Score, &metricsJSON, &r.CreatedTs); err != nil {
			return nil, fmt.Errorf("list optimization results: scan: %w", err)
		}
		r.Timeframe = model.Timeframe(tf)
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("list optimization results: unmarshal params: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
			return nil, fmt.Errorf("list optimization results: unmarshal metrics: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetOptimizationResultByID fetches a single grid-search candidate for
// promotion (POST /optimizer/promote/<id>).
func (s *Store) GetOptimizationResultByID(ctx context.Context, id int64) (model.OptimizationResult, error) {
	var r model.OptimizationResult
	var tf, paramsJSON, metricsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, timeframe, params_json, score, metrics_json, created_ts
		FROM optimization_results WHERE id = ?`, id).
		Scan(&r.ID, &r.Strategy, &r.Symbol, &tf, &paramsJSON, &r.Score, &metricsJSON, &r.CreatedTs)
	if err != nil {
		return r, fmt.Errorf("get optimization result: %w", err)
	}
	r.Timeframe = model.Timeframe(tf)
	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return r, fmt.Errorf("get optimization result: unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
		return r, fmt.Errorf("get optimization result: unmarshal metrics: %w", err)
	}
	return r, nil
}

// SaveEvolvedStrategy inserts a ranked genome candidate for a generation.
func (s *Store) SaveEvolvedStrategy(ctx context.Context, e model.EvolvedStrategy) error {
	genome, err := json.Marshal(e.Genome)
	if err != nil {
		return fmt.Errorf("save evolved strategy: marshal genome: %w", err)
	}
	metrics, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("save evolved strategy: marshal metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evolved_strategies (symbol, timeframe, genome_json, score, generation, metrics_json, created_ts)
		VALUES (?,?,?,?,?,?,?)`,
		e.Symbol, string(e.Timeframe), string(genome), e.Score, e.Generation, string(metrics), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save evolved strategy: %w", err)
	}
	return nil
}

// EvolvedFilter narrows ListEvolvedStrategies.
type EvolvedFilter struct {
	Symbol   string
	MinScore float64
	Limit    int
}

// ListEvolvedStrategies returns persisted genome candidates best-first,
// honoring Filter.MinScore/Limit.
func (s *Store) ListEvolvedStrategies(ctx context.Context, f EvolvedFilter) ([]model.EvolvedStrategy, error) {
	q := `SELECT id, symbol, timeframe, genome_json, score, generation, metrics_json, created_ts
		FROM evolved_strategies WHERE score >= ?`
	args := []any{f.MinScore}
	if f.Symbol != "" {
		q += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	q += " ORDER BY score DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list evolved strategies: %w", err)
	}
	defer rows.Close()

	var out []model.EvolvedStrategy
	for rows.Next() {
		var e model.EvolvedStrategy
		var tf, genomeJSON, metricsJSON string
		if err := rows.Scan(&e.ID, &e.Symbol, &tf, &genomeJSON, &e.Score, &e.Generation, &metricsJSON, &e.CreatedTs); err != nil {
			return nil, fmt.Errorf("list evolved strategies: scan: %w", err)
		}
		e.Timeframe = model.Timeframe(tf)
		if err := json.Unmarshal([]byte(genomeJSON), &e.Genome); err != nil {
			return nil, fmt.Errorf("list evolved strategies: unmarshal genome: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
			return nil, fmt.Errorf("list evolved strategies: unmarshal metrics: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetTopEvolvedStrategiesForPortfolio picks the n best genomes across all
// symbols for portfolio promotion (spec.md §4.9).
func (s *Store) GetTopEvolvedStrategiesForPortfolio(ctx context.Context, n int, minScore float64) ([]model.EvolvedStrategy, error) {
	return s.ListEvolvedStrategies(ctx, EvolvedFilter{MinScore: minScore, Limit: n})
}

// GetEvolvedStrategyByID fetches a single evolved genome for promotion
// (POST /evolution/promote/<id>, spec.md §6/§8 S5).
func (s *Store) GetEvolvedStrategyByID(ctx context.Context, id int64) (model.EvolvedStrategy, error) {
	var e model.EvolvedStrategy
	var tf, genomeJSON, metricsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, timeframe, genome_json, score, generation, metrics_json, created_ts
		FROM evolved_strategies WHERE id = ?`, id).
		Scan(&e.ID, &e.Symbol, &tf, &genomeJSON, &e.Score, &e.Generation, &metricsJSON, &e.CreatedTs)
	if err != nil {
		return model.EvolvedStrategy{}, fmt.Errorf("get evolved strategy %d: %w", id, err)
	}
	e.Timeframe = model.Timeframe(tf)
	if err := json.Unmarshal([]byte(genomeJSON), &e.Genome); err != nil {
		return model.EvolvedStrategy{}, fmt.Errorf("get evolved strategy %d: unmarshal genome: %w", id, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
		return model.EvolvedStrategy{}, fmt.Errorf("get evolved strategy %d: unmarshal metrics: %w", id, err)
	}
	return e, nil
}

// SavedBacktest is a persisted backtest configuration + result, used both
// for ad hoc /backtest runs and for promoted-strategy bookkeeping.
type SavedBacktest struct {
	ID        int64
	Strategy  string
	Symbol    string
	Timeframe model.Timeframe
	Params    map[string]any
	Metrics   model.BacktestMetrics
	CreatedTs int64
}

// SaveBacktest persists one backtest configuration + result row.
func (s *Store) SaveBacktest(ctx context.Context, b SavedBacktest) (int64, error) {
	params, err := json.Marshal(b.Params)
	if err != nil {
		return 0, fmt.Errorf("save backtest: marshal params: %w", err)
	}
	metrics, err := json.Marshal(b.Metrics)
	if err != nil {
		return 0, fmt.Errorf("save backtest: marshal metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_backtests (strategy, symbol, timeframe, params_json, metrics_json, created_ts)
		VALUES (?,?,?,?,?,?)`,
		b.Strategy, b.Symbol, string(b.Timeframe), string(params), string(metrics), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("save backtest: %w", err)
	}
	return res.LastInsertId()
}

// ListSavedBacktests returns every saved configuration, newest first, for
// GET /backtest/saved.
func (s *Store) ListSavedBacktests(ctx context.Context) ([]SavedBacktest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, timeframe, params_json, metrics_json, created_ts
		FROM saved_backtests ORDER BY created_ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("list saved backtests: %w", err)
	}
	defer rows.Close()

	var out []SavedBacktest
	for rows.Next() {
		b, err := scanSavedBacktest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetSavedBacktestByID fetches one saved configuration, for GET
// /backtest/saved/<id>.
func (s *Store) GetSavedBacktestByID(ctx context.Context, id int64) (SavedBacktest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, timeframe, params_json, metrics_json, created_ts
		FROM saved_backtests WHERE id = ?`, id)
	return scanSavedBacktest(row)
}

// DeleteSavedBacktest removes a saved configuration, for DELETE
// /backtest/saved/<id>.
func (s *Store) DeleteSavedBacktest(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM saved_backtests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete saved backtest: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedBacktest(row rowScanner) (SavedBacktest, error) {
	var b SavedBacktest
	var tf, paramsJSON, metricsJSON string
	if err := row.Scan(&b.ID, &b.Strategy, &b.Symbol, &tf, &paramsJSON, &metricsJSON, &b.CreatedTs); err != nil {
		return b, fmt.Errorf("scan saved backtest: %w", err)
	}
	b.Timeframe = model.Timeframe(tf)
	if err := json.Unmarshal([]byte(paramsJSON), &b.Params); err != nil {
		return b, fmt.Errorf("scan saved backtest: unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &b.Metrics); err != nil {
		return b, fmt.Errorf("scan saved backtest: unmarshal metrics: %w", err)
	}
	return b, nil
}

// Package store persists bot snapshots, the append-only trade log, bar
// cache, optimizer/evolver results, and settings in a single SQLite-
// equivalent database (spec.md §4.6).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store wraps a single *sql.DB. SQLite is single-writer, so the pool is
// capped at one connection (grounded on polybot's sqlite.go) and writes
// additionally take mu, per spec.md's "process-wide mutex around all
// writes" — belt-and-braces against any future pool widening.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// Open applies WAL mode, foreign keys, and pending migrations, then
// returns a ready Store. path may be ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies every migration whose version exceeds the database's
// current user_version, in order, each inside its own transaction.
func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.logger.Info("applied migration", zap.Int("version", m.version))
	}
	return nil
}

// BotSnapshot is the hydrated worker state persisted between restarts.
type BotSnapshot struct {
	Name               string
	Symbol             string
	Timeframe          model.Timeframe
	StrategyKind       string
	Params             map[string]float64
	Allocation         decimal.Decimal
	StartingAllocation decimal.Decimal
	Cash               decimal.Decimal
	PosQty             decimal.Decimal
	AvgPrice           decimal.Decimal
	Equity             decimal.Decimal
	CumPnL             decimal.Decimal
	Trades             int
	Score              float64
	LastBarTs          int64
	LastTradeTs        int64
}

// UpsertBot writes a full snapshot, overwriting any prior row for Name.
func (s *Store) UpsertBot(ctx context.Context, b BotSnapshot) error {
	params, err := json.Marshal(b.Params)
	if err != nil {
		return fmt.Errorf("upsert bot: marshal params: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bots (name, symbol, timeframe, strategy_kind, params_json, allocation,
			starting_allocation, cash, pos_qty, avg_price, equity, cum_pnl, trades, score,
			last_bar_ts, last_trade_ts, updated_ts)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			symbol=excluded.symbol, timeframe=excluded.timeframe, strategy_kind=excluded.strategy_kind,
			params_json=excluded.params_json, allocation=excluded.allocation,
			starting_allocation=excluded.starting_allocation, cash=excluded.cash,
			pos_qty=excluded.pos_qty, avg_price=excluded.avg_price, equity=excluded.equity,
			cum_pnl=excluded.cum_pnl, trades=excluded.trades, score=excluded.score,
			last_bar_ts=excluded.last_bar_ts, last_trade_ts=excluded.last_trade_ts,
			updated_ts=excluded.updated_ts`,
		b.Name, b.Symbol, string(b.Timeframe), b.StrategyKind, string(params),
		b.Allocation.String(), b.StartingAllocation.String(), b.Cash.String(), b.PosQty.String(),
		b.AvgPrice.String(), b.Equity.String(), b.CumPnL.String(), b.Trades, b.Score,
		b.LastBarTs, b.LastTradeTs, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert bot %s: %w", b.Name, err)
	}
	return nil
}

// LoadBots returns every persisted bot snapshot, ordered by name.
func (s *Store) LoadBots(ctx context.Context) ([]BotSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, symbol, timeframe, strategy_kind, params_json, allocation,
			starting_allocation, cash, pos_qty, avg_price, equity, cum_pnl, trades, score,
			last_bar_ts, last_trade_ts
		FROM bots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load bots: %w", err)
	}
	defer rows.Close()

	var out []BotSnapshot
	for rows.Next() {
		var b BotSnapshot
		var tf, paramsJSON, alloc, startAlloc, cash, posQty, avgPrice, equity, cumPnL string
		if err := rows.Scan(&b.Name, &b.Symbol, &tf, &b.StrategyKind, &paramsJSON, &alloc,
			&startAlloc, &cash, &posQty, &avgPrice, &equity, &cumPnL, &b.Trades, &b.Score,
			&b.LastBarTs, &b.LastTradeTs); err != nil {
			return nil, fmt.Errorf("load bots: scan: %w", err)
		}
		b.Timeframe = model.Timeframe(tf)
		if err := json.Unmarshal([]byte(paramsJSON), &b.Params); err != nil {
			return nil, fmt.Errorf("load bots: unmarshal params for %s: %w", b.Name, err)
		}
		b.Allocation = mustDecimal(alloc)
		b.StartingAllocation = mustDecimal(startAlloc)
		b.Cash = mustDecimal(cash)
		b.PosQty = mustDecimal(posQty)
		b.AvgPrice = mustDecimal(avgPrice)
		b.Equity = mustDecimal(equity)
		b.CumPnL = mustDecimal(cumPnL)
		out = append(out, b)
	}
	return out, rows.Err()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RecordTrade appends one execution to the trade log and an equity-curve
// sample, guaranteeing a monotone id ordering for round-trip
// reconstruction (spec.md §5's ordering guarantee).
func (s *Store) RecordTrade(ctx context.Context, botName, symbol string, side model.Side, qty, price, fee decimal.Decimal, isMaker bool, equity decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	defer tx.Rollback()

	maker := 0
	if isMaker {
		maker = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades (ts, bot_name, symbol, side, qty, price, fee, is_maker)
		VALUES (?,?,?,?,?,?,?,?)`,
		now, botName, symbol, string(side), qty.String(), price.String(), fee.String(), maker); err != nil {
		return fmt.Errorf("record trade: insert trade: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO equity_history (bot_name, ts, equity) VALUES (?,?,?)`,
		botName, now, equity.String()); err != nil {
		return fmt.Errorf("record trade: insert equity: %w", err)
	}
	return tx.Commit()
}

// TradeFilter narrows ListTrades / ListRoundtrips / ListOpenPositions.
type TradeFilter struct {
	BotName string
	Symbol  string
	SinceID int64
	Limit   int
}

// ListTrades returns raw trade rows, newest first, honoring Filter.Limit.
func (s *Store) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	q := `SELECT id, ts, bot_name, symbol, side, qty, price, fee, is_maker FROM trades WHERE 1=1`
	var args []any
	if f.BotName != "" {
		q += " AND bot_name = ?"
		args = append(args, f.BotName)
	}
	if f.Symbol != "" {
		q += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.SinceID > 0 {
		q += " AND id > ?"
		args = append(args, f.SinceID)
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, qty, price, fee string
		var maker int
		if err := rows.Scan(&t.ID, &t.Ts, &t.BotName, &t.Symbol, &side, &qty, &price, &fee, &maker); err != nil {
			return nil, fmt.Errorf("list trades: scan: %w", err)
		}
		t.Side = model.Side(side)
		t.Qty = mustDecimal(qty)
		t.Price = mustDecimal(price)
		t.Fee = mustDecimal(fee)
		t.IsMaker = maker != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradeCounts returns the number of trades recorded per bot name.
func (s *Store) TradeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bot_name, COUNT(*) FROM trades GROUP BY bot_name`)
	if err != nil {
		return nil, fmt.Errorf("trade counts: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("trade counts: scan: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

// GetSetting returns a stored setting value, or ("", false) if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// TradingPaused implements worker.SettingsReader directly off the
// settings table — a thin, Step()-safe read with no caching across bars
// (spec.md §5: "do not cache across Step()s").
func (s *Store) TradingPaused(ctx context.Context) bool {
	v, ok, err := s.GetSetting(ctx, "trading_paused")
	if err != nil || !ok {
		return false
	}
	return v == "true" || v == "1"
}

// StoreBars upserts a batch of bars for (symbol, timeframe), ignoring
// duplicates on (symbol, timeframe, ts).
func (s *Store) StoreBars(ctx context.Context, symbol string, tf model.Timeframe, source string, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store bars: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, timeframe, ts, open, high, low, close, volume, source)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume, source=excluded.source`)
	if err != nil {
		return fmt.Errorf("store bars: prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), b.Ts,
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(), source); err != nil {
			return fmt.Errorf("store bars: insert: %w", err)
		}
	}
	return tx.Commit()
}

// GetBars returns up to limit bars for (symbol, timeframe) in ascending
// ts order, oldest first, matching the data-provider contract.
func (s *Store) GetBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM bars
		WHERE symbol = ? AND timeframe = ? ORDER BY ts DESC LIMIT ?`,
		symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	var rev []model.Bar
	for rows.Next() {
		var b model.Bar
		var o, h, l, c, v string
		if err := rows.Scan(&b.Ts, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("get bars: scan: %w", err)
		}
		b.Open, b.High, b.Low, b.Close, b.Volume = mustDecimal(o), mustDecimal(h), mustDecimal(l), mustDecimal(c), mustDecimal(v)
		rev = append(rev, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Bar, len(rev))
	for i, b := range rev {
		out[len(rev)-1-i] = b
	}
	return out, nil
}

// GetBarCoverage returns the oldest and newest ts stored for (symbol,
// timeframe), and whether any bars exist at all.
func (s *Store) GetBarCoverage(ctx context.Context, symbol string, tf model.Timeframe) (oldest, newest int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MIN(ts), MAX(ts) FROM bars WHERE symbol = ? AND timeframe = ?`, symbol, string(tf))
	var minTs, maxTs sql.NullInt64
	if scanErr := row.Scan(&minTs, &maxTs); scanErr != nil {
		return 0, 0, false, fmt.Errorf("get bar coverage: %w", scanErr)
	}
	if !minTs.Valid {
		return 0, 0, false, nil
	}
	return minTs.Int64, maxTs.Int64, true, nil
}

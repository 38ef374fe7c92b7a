package store

// migration is one versioned schema step, applied in order against
// PRAGMA user_version (spec.md §4.6).
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS bots (
	name                TEXT PRIMARY KEY,
	symbol              TEXT NOT NULL,
	timeframe           TEXT NOT NULL,
	strategy_kind       TEXT NOT NULL,
	params_json         TEXT NOT NULL DEFAULT '{}',
	allocation          TEXT NOT NULL,
	starting_allocation TEXT NOT NULL,
	cash                TEXT NOT NULL,
	pos_qty             TEXT NOT NULL,
	avg_price           TEXT NOT NULL,
	equity              TEXT NOT NULL,
	cum_pnl             TEXT NOT NULL,
	trades              INTEGER NOT NULL DEFAULT 0,
	score               REAL NOT NULL DEFAULT 0,
	last_bar_ts         INTEGER NOT NULL DEFAULT 0,
	last_trade_ts       INTEGER NOT NULL DEFAULT 0,
	updated_ts          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        INTEGER NOT NULL,
	bot_name  TEXT NOT NULL REFERENCES bots(name) ON DELETE CASCADE,
	symbol    TEXT NOT NULL,
	side      TEXT NOT NULL,
	qty       TEXT NOT NULL,
	price     TEXT NOT NULL,
	fee       TEXT NOT NULL,
	is_maker  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_bot_symbol ON trades(bot_name, symbol, id);

CREATE TABLE IF NOT EXISTS equity_history (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_name TEXT NOT NULL REFERENCES bots(name) ON DELETE CASCADE,
	ts       INTEGER NOT NULL,
	equity   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_history_bot ON equity_history(bot_name, ts);

CREATE TABLE IF NOT EXISTS param_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_name    TEXT NOT NULL REFERENCES bots(name) ON DELETE CASCADE,
	ts          INTEGER NOT NULL,
	params_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bars (
	symbol    TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	open      TEXT NOT NULL,
	high      TEXT NOT NULL,
	low       TEXT NOT NULL,
	close     TEXT NOT NULL,
	volume    TEXT NOT NULL,
	source    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (symbol, timeframe, ts)
);

CREATE TABLE IF NOT EXISTS saved_backtests (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	params_json TEXT NOT NULL,
	metrics_json TEXT NOT NULL,
	created_ts  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS optimization_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	params_json TEXT NOT NULL,
	score       REAL NOT NULL,
	metrics_json TEXT NOT NULL,
	created_ts  INTEGER NOT NULL,
	UNIQUE(strategy, symbol, timeframe, params_json)
);
CREATE INDEX IF NOT EXISTS idx_opt_results_score ON optimization_results(strategy, symbol, score DESC);

CREATE TABLE IF NOT EXISTS evolved_strategies (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	genome_json TEXT NOT NULL,
	score       REAL NOT NULL,
	generation  INTEGER NOT NULL,
	metrics_json TEXT NOT NULL,
	created_ts  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evolved_score ON evolved_strategies(symbol, score DESC);

CREATE TABLE IF NOT EXISTS price_alerts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol         TEXT NOT NULL,
	target_price   REAL NOT NULL,
	condition      TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	last_checked_ts INTEGER NOT NULL DEFAULT 0,
	triggered_ts   INTEGER,
	triggered_price REAL
);
CREATE INDEX IF NOT EXISTS idx_price_alerts_active ON price_alerts(active);
`,
	},
}

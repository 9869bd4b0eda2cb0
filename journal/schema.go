package journal

// Times are stored as fixed-width RFC 3339 text in UTC and amounts as decimal text,
// so rows read back exactly as written.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	config_digest TEXT NOT NULL,
	input_digest TEXT NOT NULL,
	complete INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	ticks INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	round_trips INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	initial_cash TEXT NOT NULL,
	final_equity TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	total_return REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	sharpe REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	run_id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	body BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id INTEGER NOT NULL,
	order_id INTEGER NOT NULL,
	time TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	commission TEXT NOT NULL,
	slippage TEXT NOT NULL,
	realized TEXT NOT NULL,
	level INTEGER NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time TEXT NOT NULL,
	cash TEXT NOT NULL,
	equity TEXT NOT NULL,
	PRIMARY KEY (run_id, time)
);

CREATE TABLE IF NOT EXISTS inputs (
	run_id TEXT PRIMARY KEY,
	config BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS bars (
	run_id TEXT NOT NULL,
	level INTEGER NOT NULL,
	instrument TEXT NOT NULL,
	time TEXT NOT NULL,
	open TEXT NOT NULL,
	high TEXT NOT NULL,
	low TEXT NOT NULL,
	close TEXT NOT NULL,
	volume TEXT NOT NULL,
	PRIMARY KEY (run_id, level, instrument, time)
);

CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(run_id, time);
`

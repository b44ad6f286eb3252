package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy          TEXT    NOT NULL,
	symbol            TEXT    NOT NULL,
	source            TEXT    NOT NULL,
	start_date        TEXT    NOT NULL,
	end_date          TEXT    NOT NULL,
	bars              INTEGER NOT NULL,
	short_window      INTEGER NOT NULL,
	long_window       INTEGER NOT NULL,
	risk_per_trade    REAL    NOT NULL,
	initial_capital   REAL    NOT NULL,
	accounting_mode   TEXT    NOT NULL,
	transaction_costs REAL    NOT NULL,
	sharpe_ratio      REAL    NOT NULL,
	max_drawdown      REAL    NOT NULL,
	total_return      REAL    NOT NULL,
	total_trades      INTEGER NOT NULL,
	created_at        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// runs table if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run. A zero CreatedAt is set to now.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			strategy, symbol, source, start_date, end_date, bars,
			short_window, long_window, risk_per_trade, initial_capital,
			accounting_mode, transaction_costs,
			sharpe_ratio, max_drawdown, total_return, total_trades, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Symbol, run.Source,
		run.Start.Format(time.DateOnly), run.End.Format(time.DateOnly), run.Bars,
		run.ShortWindow, run.LongWindow, run.RiskPerTrade, run.InitialCapital,
		run.AccountingMode, run.TransactionCosts,
		run.SharpeRatio, run.MaxDrawdown, run.TotalReturn, run.TotalTrades,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, source, start_date, end_date, bars,
			short_window, long_window, risk_per_trade, initial_capital,
			accounting_mode, transaction_costs,
			sharpe_ratio, max_drawdown, total_return, total_trades, created_at
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			start, end, added string
		)
		if err := rows.Scan(
			&r.ID, &r.Strategy, &r.Symbol, &r.Source, &start, &end, &r.Bars,
			&r.ShortWindow, &r.LongWindow, &r.RiskPerTrade, &r.InitialCapital,
			&r.AccountingMode, &r.TransactionCosts,
			&r.SharpeRatio, &r.MaxDrawdown, &r.TotalReturn, &r.TotalTrades, &added,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return nil, fmt.Errorf("run %d start_date: %w", r.ID, err)
		}
		if r.End, err = time.Parse(time.DateOnly, end); err != nil {
			return nil, fmt.Errorf("run %d end_date: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, added); err != nil {
			return nil, fmt.Errorf("run %d created_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

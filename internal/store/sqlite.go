package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vecbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	strategy          TEXT NOT NULL,
	params            TEXT NOT NULL,
	start_ms          INTEGER NOT NULL,
	end_ms            INTEGER NOT NULL,
	initial_capital   REAL NOT NULL,
	cost_rate         REAL NOT NULL,
	total_return      REAL NOT NULL,
	market_return     REAL NOT NULL,
	annualized_return REAL NOT NULL,
	volatility        REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	sharpe            REAL,
	sortino           REAL,
	calmar            REAL,
	trades            INTEGER NOT NULL,
	total_cost        REAL NOT NULL,
	created_ms        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_symbol_strategy ON runs (symbol, strategy, created_ms);
`

const runColumns = `id, symbol, strategy, params, start_ms, end_ms, initial_capital, cost_rate,
	total_return, market_return, annualized_return, volatility, max_drawdown,
	sharpe, sortino, calmar, trades, total_cost, created_ms`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Strategy, string(params),
		run.Start.UnixMilli(), run.End.UnixMilli(), run.InitialCapital, run.CostRate,
		run.TotalReturn, run.MarketReturn, run.AnnualizedReturn, run.Volatility, run.MaxDrawdown,
		nullFloat(run.Sharpe), nullFloat(run.Sortino), nullFloat(run.Calmar),
		run.Trades, run.TotalCost, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs matching filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]domain.RunRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if filter.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	q := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_ms DESC, id"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.RunRecord, error) {
	var (
		run                     domain.RunRecord
		params                  string
		startMs, endMs, created int64
		sharpe, sortino, calmar sql.NullFloat64
	)
	err := sc.Scan(&run.ID, &run.Symbol, &run.Strategy, &params, &startMs, &endMs,
		&run.InitialCapital, &run.CostRate,
		&run.TotalReturn, &run.MarketReturn, &run.AnnualizedReturn, &run.Volatility, &run.MaxDrawdown,
		&sharpe, &sortino, &calmar, &run.Trades, &run.TotalCost, &created)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params of run %s: %w", run.ID, err)
	}
	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(created).UTC()
	run.Sharpe = floatPtr(sharpe)
	run.Sortino = floatPtr(sortino)
	run.Calmar = floatPtr(calmar)
	return &run, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

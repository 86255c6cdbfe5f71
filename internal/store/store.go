// Package store defines storage interfaces for persisting and retrieving
// daily bars, backtest run summaries and per-run result tables.
package store

import (
	"context"
	"errors"
	"time"

	"vecbt/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Symbol   string
	Strategy string
	Limit    int
}

// RunStore persists backtest run summaries.
type RunStore interface {
	// SaveRun inserts a run. IDs are unique.
	SaveRun(ctx context.Context, run *domain.RunRecord) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.RunRecord, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.RunRecord, error)
}

// ResultStore persists the per-row result table of a run.
type ResultStore interface {
	// WriteResult stores rows under runID, replacing any previous table.
	WriteResult(ctx context.Context, runID string, rows []ResultRecord) error

	// ReadResult returns the rows stored under runID, or ErrNotFound.
	ReadResult(ctx context.Context, runID string) ([]ResultRecord, error)
}

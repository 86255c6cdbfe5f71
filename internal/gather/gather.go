// Package gather defines how daily price data reaches vecbt: the PriceFetcher
// collaborator used by backtests, and the Gatherer processes that fill the
// local bar store.
package gather

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"vecbt/internal/domain"
	"vecbt/internal/store"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It blocks until done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching. Both ends are
// inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParseDateRange parses two YYYY-MM-DD dates. An end before start fails.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, domain.InvalidParamsf("end date %s is before start date %s", end, start)
	}
	return DateRange{Start: s, End: e}, nil
}

// PriceFetcher supplies daily bars for one symbol. Implementations return an
// error wrapping domain.ErrEmptyDataset when the range holds no rows.
type PriceFetcher interface {
	FetchDaily(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error)
}

// ---------------------------------------------------------------------------
// StoreFetcher: reads bars previously gathered into a BarStore.
// ---------------------------------------------------------------------------

var _ PriceFetcher = (*StoreFetcher)(nil)

// StoreFetcher serves bars from a BarStore.
type StoreFetcher struct {
	store  store.BarStore
	market string
}

// NewStoreFetcher creates a StoreFetcher reading the given market partition.
func NewStoreFetcher(s store.BarStore, market string) *StoreFetcher {
	return &StoreFetcher{store: s, market: market}
}

// FetchDaily reads bars for symbol within r.
func (f *StoreFetcher) FetchDaily(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	bars, err := f.store.ReadBars(ctx, symbol, f.market, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, emptyDataset(symbol, r)
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// MemoryFetcher: fixed in-memory bars, used for mocks and tests.
// ---------------------------------------------------------------------------

var _ PriceFetcher = (*MemoryFetcher)(nil)

// MemoryFetcher serves bars held in memory, keyed by upper-case symbol.
type MemoryFetcher struct {
	bars  map[string][]domain.Bar
	calls atomic.Int64
}

// NewMemoryFetcher creates a MemoryFetcher over bars grouped by their Symbol.
func NewMemoryFetcher(bars []domain.Bar) *MemoryFetcher {
	m := &MemoryFetcher{bars: make(map[string][]domain.Bar)}
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		m.bars[sym] = append(m.bars[sym], b)
	}
	return m
}

// Calls returns how many times FetchDaily has been invoked.
func (m *MemoryFetcher) Calls() int { return int(m.calls.Load()) }

// FetchDaily returns the stored bars for symbol within r, sorted by time.
func (m *MemoryFetcher) FetchDaily(_ context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	m.calls.Add(1)
	var out []domain.Bar
	for _, b := range m.bars[strings.ToUpper(symbol)] {
		if r.Contains(b.Timestamp) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, emptyDataset(symbol, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func emptyDataset(symbol string, r DateRange) error {
	return fmt.Errorf("%w: no bars for %s between %s and %s", domain.ErrEmptyDataset,
		symbol, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

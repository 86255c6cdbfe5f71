package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vecbt/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("aapl", "us", 2024)
	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	rp, err := ps.resultPath("run-1")
	if err != nil {
		t.Fatalf("resultPath: %v", err)
	}
	wantResultPath := filepath.Join("/data", "results", "run-1.parquet")
	if rp != wantResultPath {
		t.Errorf("resultPath mismatch:\n  got  %s\n  want %s", rp, wantResultPath)
	}

	for _, bad := range []string{"", "../etc", "a/b", `a\b`} {
		if _, err := ps.resultPath(bad); err == nil {
			t.Errorf("resultPath(%q) should fail", bad)
		}
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000, TradeCount: 450000, VWAP: 185.75,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000, TradeCount: 500000, VWAP: 185.25,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
			Close:     192.5,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 192.5 {
		t.Errorf("first bar Close = %v, want 192.5", got[0].Close)
	}
	if got[1].Close != 185.5 {
		t.Errorf("second bar Close = %v, want 185.5", got[1].Close)
	}
	if !got[1].Timestamp.Equal(end) {
		t.Errorf("second bar Timestamp = %v, want %v", got[1].Timestamp, end)
	}
}

func TestParquetStoreReadMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NOPE", "us",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if err := ps.WriteBars(ctx, []domain.Bar{{Symbol: "MSFT", Timestamp: day1, Close: 403.0}}); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	// Same symbol and year: merged, and the repeated day is replaced.
	if err := ps.WriteBars(ctx, []domain.Bar{
		{Symbol: "MSFT", Timestamp: day2, Close: 408.0},
		{Symbol: "MSFT", Timestamp: day1, Close: 404.0},
	}); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", day1, day2)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("merged bar Close = %v, want 404.0", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	none, err := ps.ListSymbols(ctx, "cn")
	if err != nil || none != nil {
		t.Errorf("ListSymbols(cn) = %v, %v; want nil, nil", none, err)
	}
}

func TestParquetStoreResults(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	rows := []ResultRecord{
		{Timestamp: 1704153600000, Close: 101, StrategyValue: 1010, Drawdown: 0},
		{Timestamp: 1704240000000, Close: 99, StrategyValue: 990, Peak: 1010, Drawdown: -0.0198},
	}
	if err := ps.WriteResult(ctx, "abc", rows); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	got, err := ps.ReadResult(ctx, "abc")
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadResult returned %d rows, want 2", len(got))
	}
	if got[1] != rows[1] {
		t.Errorf("row 1 = %+v, want %+v", got[1], rows[1])
	}

	if _, err := ps.ReadResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadResult(missing) error = %v, want ErrNotFound", err)
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func TestSQLiteStoreOpen(t *testing.T) {
	store := openSQLite(t)
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	sharpe := 1.25
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	runs := []domain.RunRecord{
		{
			ID: "r1", Symbol: "SPY", Strategy: "sma-cross",
			Params:         map[string]float64{"short": 10, "long": 50},
			Start:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:            time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			InitialCapital: 10000, CostRate: 0.001,
			TotalReturn: 0.3, MarketReturn: 0.4, MaxDrawdown: -0.2,
			Sharpe: &sharpe, Trades: 12, TotalCost: 0.012,
			CreatedAt: base,
		},
		{ID: "r2", Symbol: "QQQ", Strategy: "momentum", Params: map[string]float64{"window": 20}, CreatedAt: base.Add(time.Hour)},
		{ID: "r3", Symbol: "SPY", Strategy: "momentum", Params: map[string]float64{"window": 5}, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range runs {
		if err := store.SaveRun(ctx, &runs[i]); err != nil {
			t.Fatalf("SaveRun(%s): %v", runs[i].ID, err)
		}
	}
	if err := store.SaveRun(ctx, &runs[0]); err == nil {
		t.Error("SaveRun with duplicate id should fail")
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Params["long"] != 50 || got.Trades != 12 || !got.CreatedAt.Equal(base) {
		t.Errorf("GetRun(r1) = %+v", got)
	}
	if got.Sharpe == nil || *got.Sharpe != 1.25 {
		t.Errorf("Sharpe = %v, want 1.25", got.Sharpe)
	}
	if got.Sortino != nil || got.Calmar != nil {
		t.Errorf("undefined ratios should read back nil, got %v %v", got.Sortino, got.Calmar)
	}

	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(nope) error = %v, want ErrNotFound", err)
	}

	all, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r3" || all[2].ID != "r1" {
		t.Errorf("ListRuns order = %v, want newest first", runIDs(all))
	}

	spy, err := store.ListRuns(ctx, RunFilter{Symbol: "spy", Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns(spy): %v", err)
	}
	if len(spy) != 1 || spy[0].ID != "r3" {
		t.Errorf("ListRuns(spy, 1) = %v, want [r3]", runIDs(spy))
	}

	mom, err := store.ListRuns(ctx, RunFilter{Strategy: "momentum"})
	if err != nil {
		t.Fatalf("ListRuns(momentum): %v", err)
	}
	if len(mom) != 2 {
		t.Errorf("ListRuns(momentum) = %v, want 2 runs", runIDs(mom))
	}
}

func runIDs(runs []domain.RunRecord) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

package vecbt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	c := NewClient(baseURL)
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != baseURL {
		t.Errorf("expected baseURL %q, got %q", baseURL, c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestClientBacktest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/backtest" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req BacktestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Symbol != "SPY" || req.Params["short"] != 5 {
			t.Errorf("got request %+v", req)
		}
		sharpe := 1.25
		_ = json.NewEncoder(w).Encode(Run{
			ID: "abc", Symbol: "SPY", Strategy: req.Strategy,
			Metrics: Metrics{TotalReturn: 0.1, Sharpe: &sharpe, Trades: 3},
		})
	}))
	defer srv.Close()

	run, err := NewClient(srv.URL).Backtest(context.Background(), BacktestRequest{
		Symbol: "SPY", Start: "2024-01-01", End: "2024-06-30",
		Strategy: "sma-cross", Params: map[string]float64{"short": 5, "long": 20},
	})
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if run.ID != "abc" || run.Metrics.Trades != 3 {
		t.Errorf("got run %+v", run)
	}
	if run.Metrics.Sharpe == nil || *run.Metrics.Sharpe != 1.25 {
		t.Errorf("got sharpe %v, want 1.25", run.Metrics.Sharpe)
	}
	if run.Metrics.Sortino != nil {
		t.Errorf("got sortino %v, want nil", *run.Metrics.Sortino)
	}
}

func TestClientListRunsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("symbol"); got != "QQQ" {
			t.Errorf("got symbol %q, want QQQ", got)
		}
		if got := q.Get("limit"); got != "5" {
			t.Errorf("got limit %q, want 5", got)
		}
		if q.Has("strategy") {
			t.Error("strategy should be omitted when empty")
		}
		_ = json.NewEncoder(w).Encode([]Run{{ID: "1"}, {ID: "2"}})
	}))
	defer srv.Close()

	runs, err := NewClient(srv.URL).ListRuns(context.Background(), RunFilter{Symbol: "QQQ", Limit: 5})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "1" {
		t.Errorf("got %+v", runs)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"run not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetRun(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "run not found" {
		t.Errorf("got message %q", apiErr.Message)
	}
}

func TestClientStrategies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{"mean-reversion", "momentum", "sma-cross"})
	}))
	defer srv.Close()

	names, err := NewClient(srv.URL).Strategies(context.Background())
	if err != nil {
		t.Fatalf("Strategies: %v", err)
	}
	if len(names) != 3 || names[2] != "sma-cross" {
		t.Errorf("got %v", names)
	}
}

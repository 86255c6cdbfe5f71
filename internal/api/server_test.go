package api

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"vecbt/internal/config"
	"vecbt/internal/domain"
	"vecbt/internal/engine"
	"vecbt/internal/gather"
	"vecbt/internal/store"
	"vecbt/internal/strategy/builtins"
	"vecbt/pkg/vecbt"
)

func testBars(n int) []domain.Bar {
	day0 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = domain.Bar{
			Symbol:    "SPY",
			Timestamp: day0.AddDate(0, 0, i),
			Close:     100 * math.Exp(0.001*float64(i)+0.05*math.Sin(float64(i)/5)),
		}
	}
	return out
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	runs, err := store.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	eng := engine.NewEngine(gather.NewMemoryFetcher(testBars(200)), builtins.NewRegistry(), runs, store.NewParquetStore(dir), nil)
	cfg := config.Default()
	cfg.Backtest.Symbol = "SPY"
	cfg.Backtest.Strategy = builtins.SMACrossName
	cfg.Backtest.Params = map[string]float64{"short": 5, "long": 20}
	return NewServer(cfg, eng, prometheus.NewRegistry(), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.httpAddr != "127.0.0.1:8080" {
		t.Errorf("got httpAddr %q, want 127.0.0.1:8080", s.httpAddr)
	}
	if s.grpcAddr != "127.0.0.1:9090" {
		t.Errorf("got grpcAddr %q, want 127.0.0.1:9090", s.grpcAddr)
	}
}

func TestBacktestThenFetchRun(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/backtest",
		`{"symbol":"spy","start":"2023-01-02","end":"2023-12-31","costRate":0.001}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("backtest: got status %d, body %s", rec.Code, rec.Body)
	}
	var run RunJSON
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID")
	}
	if run.Symbol != "SPY" {
		t.Errorf("got symbol %q, want SPY", run.Symbol)
	}
	if run.Params["short"] != 5 || run.Params["long"] != 20 {
		t.Errorf("got params %v, want default short=5 long=20", run.Params)
	}
	if run.CostRate != 0.001 {
		t.Errorf("got costRate %v, want 0.001", run.CostRate)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/runs/"+run.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: got status %d", rec.Code)
	}
	var got RunJSON
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != run.ID || got.Metrics.TotalReturn != run.Metrics.TotalReturn {
		t.Errorf("stored run %+v differs from returned %+v", got, run)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/runs/"+run.ID+"/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get result: got status %d", rec.Code)
	}
	var rows []ResultRowJSON
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) == 0 {
		t.Error("expected result rows")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/runs?symbol=spy&limit=10", "")
	var runs []RunJSON
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("got runs %+v, want the one run", runs)
	}
}

func TestBacktestErrors(t *testing.T) {
	h := newTestServer(t).Handler()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"symbol":`, http.StatusBadRequest},
		{"unknown field", `{"symbol":"SPY","bogus":1}`, http.StatusBadRequest},
		{"bad window", `{"start":"2023-01-02","end":"2023-12-31","params":{"short":20,"long":5}}`, http.StatusBadRequest},
		{"unknown strategy", `{"start":"2023-01-02","end":"2023-12-31","strategy":"nope"}`, http.StatusBadRequest},
		{"end before start", `{"start":"2023-12-31","end":"2023-01-02"}`, http.StatusBadRequest},
		{"empty dataset", `{"symbol":"QQQ","start":"2023-01-02","end":"2023-12-31"}`, http.StatusUnprocessableEntity},
		{"window too long", `{"start":"2023-01-02","end":"2023-01-20","params":{"short":5,"long":100}}`, http.StatusBadRequest},
		{"single defined row", `{"start":"2023-01-02","end":"2023-01-20","params":{"short":5,"long":18}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/backtest", tt.body)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	body := `{"start":"2023-01-02","end":"2023-12-31","metric":"total_return",
		"grid":{"short":{"start":2,"stop":8,"step":2},"long":{"start":10,"stop":30,"step":10}}}`
	rec := doJSON(t, h, http.MethodPost, "/api/v1/optimize", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rec.Code, rec.Body)
	}
	var out OptimizeJSON
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Evaluations) != 6 {
		t.Errorf("got %d evaluations, want 6", len(out.Evaluations))
	}
	if out.Best.ID == "" {
		t.Error("expected best run to be persisted")
	}
}

func TestRunNotFound(t *testing.T) {
	h := newTestServer(t).Handler()
	for _, path := range []string{"/api/v1/runs/missing", "/api/v1/runs/missing/result"} {
		rec := doJSON(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: got status %d, want 404", path, rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/runs?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got status %d, want 400", rec.Code)
	}
}

func TestStrategiesAndHealth(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/strategies", "")
	var names []string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{builtins.MeanReversionName, builtins.MomentumName, builtins.SMACrossName}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", names, want)
	}

	rec = doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: got status %d", rec.Code)
	}
}

func dialBufconn(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := s.GRPCServer()
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCHealth(t *testing.T) {
	conn := dialBufconn(t, newTestServer(t))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: BacktestServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("got status %v, want SERVING", resp.GetStatus())
	}
}

func TestGRPCBacktestService(t *testing.T) {
	s := newTestServer(t)
	lis := bufconn.Listen(1 << 20)
	gs := s.GRPCServer()
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	client, err := vecbt.DialGRPC("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	run, err := client.Run(ctx, vecbt.BacktestRequest{Symbol: "SPY", Start: "2023-01-02", End: "2023-12-31"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.ID == "" || run.Strategy != builtins.SMACrossName {
		t.Errorf("got run %+v", run)
	}

	got, err := client.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("got ID %q, want %q", got.ID, run.ID)
	}

	runs, err := client.ListRuns(ctx, vecbt.RunFilter{Symbol: "SPY"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("got %d runs, want 1", len(runs))
	}

	_, err = client.GetRun(ctx, "missing")
	if status.Code(err) != codes.NotFound {
		t.Errorf("got code %v, want NotFound", status.Code(err))
	}
	_, err = client.Run(ctx, vecbt.BacktestRequest{Start: "2023-01-02", End: "2023-12-31", Params: map[string]float64{"short": 9, "long": 3}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("got code %v, want InvalidArgument", status.Code(err))
	}
}

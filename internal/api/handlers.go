package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"vecbt/internal/domain"
	"vecbt/internal/optimize"
	"vecbt/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/v1/optimize", s.handleOptimize)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/result", s.handleGetResult)
	mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := req.RunConfig(s.defaults.Backtest)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.engine.Backtest(r.Context(), cfg)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	run := runJSON(out.Record)
	run.Metrics = metricsJSON(out.Metrics)
	writeJSON(w, run)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := req.RunConfig(s.defaults.Backtest)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Params == nil {
		cfg.Params = nil
	}
	grid := req.Grid
	if len(grid) == 0 {
		grid = s.defaults.Optimize.Grid
	}
	sc := optimize.Config{
		Metric:   firstNonEmpty(req.Metric, s.defaults.Optimize.Metric),
		Minimize: req.Minimize,
		Workers:  req.Workers,
	}
	if sc.Workers == 0 {
		sc.Workers = s.defaults.Optimize.Workers
	}

	out, err := s.engine.Optimize(r.Context(), cfg, grid, sc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	best := runJSON(out.Best.Record)
	best.Metrics = metricsJSON(out.Best.Metrics)
	writeJSON(w, OptimizeJSON{
		Metric:      out.Report.Metric,
		Minimize:    out.Report.Minimize,
		Best:        best,
		Evaluations: evaluationsJSON(out.Report.Evaluations),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Symbol: q.Get("symbol"), Strategy: q.Get("strategy"), Limit: 100}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	runs, err := s.engine.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]RunJSON, len(runs))
	for i, run := range runs {
		out[i] = runJSON(run)
	}
	writeJSON(w, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, runJSON(*run))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.GetResult(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, resultRowsJSON(rows))
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Strategies())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParameters), errors.Is(err, domain.ErrDataIntegrity):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyDataset), errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, optimize.ErrNoCandidates):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

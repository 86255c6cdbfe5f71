package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(BacktestRunsTotal.WithLabelValues("probe", StatusFailure))
	RecordRun("probe", errors.New("boom"), time.Millisecond)
	RecordRun("probe", nil, time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(BacktestRunsTotal.WithLabelValues("probe", StatusFailure)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(BacktestRunsTotal.WithLabelValues("probe", StatusSuccess)), 1.0)
}

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(SweepEvaluationsTotal.WithLabelValues("probe", "skipped"))
	RecordEvaluation("probe", "skipped")
	assert.Equal(t, before+1, testutil.ToFloat64(SweepEvaluationsTotal.WithLabelValues("probe", "skipped")))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Registering twice on the same registry is rejected.
	assert.Error(t, Register(reg))
}

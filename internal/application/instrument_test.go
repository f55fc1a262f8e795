package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *recordedMetrics) Counter(name observability.MetricKey) observability.Counter {
	return recordedCounter{m: m, name: string(name)}
}

func (m *recordedMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

type recordedCounter struct {
	m    *recordedMetrics
	name string
}

func (c recordedCounter) Add(d float64, labels ...observability.Label) {
	key := c.name
	for _, l := range labels {
		key += "|" + l.Key + "=" + l.Value
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.counts[key] += d
}

func (c recordedCounter) Bind(...observability.Label) observability.BoundCounter {
	return observability.NopCounter().Bind()
}

func newObserved() (observability.Observability, *observer.ObservedLogs, *recordedMetrics) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := &recordedMetrics{counts: map[string]float64{}}
	return infraobs.New(nil, zaplogger.New(zap.New(core)), metrics), logs, metrics
}

func TestInstrument_RecordsOutcome(t *testing.T) {
	tel, logs, metrics := newObserved()
	inst := NewInstrument(tel, "test-service", "test.op")

	tests := []struct {
		name    string
		err     error
		outcome string
		status  string
	}{
		{"success", nil, "success", "OK"},
		{"rejected", apperr.New(apperr.KindInsufficientStock, "inventory", "short"), "rejected", "INSUFFICIENT_STOCK"},
		{"timeout", apperr.Wrap(apperr.KindTimeout, "memory", context.DeadlineExceeded), "timeout", "TIMEOUT"},
		{"unclassified", errors.New("boom"), "error", "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, run := inst.Start(context.Background(), "Op")
			run.End(tt.err)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, "use_case_done", entries[0].Message)
			assert.Equal(t, tt.outcome, fields["outcome"])
			assert.Equal(t, tt.status, fields["status"])
			assert.Equal(t, "test.op", fields["use_case"])
			assert.Equal(t, "test-service", fields["service"])
			if tt.outcome == "error" {
				assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
			}
			assert.Equal(t, 1.0, metrics.counts["usecase_requests_total|use_case=test.op|outcome="+tt.outcome])
		})
	}
}

func TestInstrument_StatusAndAnnotations(t *testing.T) {
	tel, logs, _ := newObserved()
	inst := NewInstrument(tel, "svc", "test.op")

	ctx, run := inst.Start(context.Background(), "Op")
	run.SetStatus("IDEMPOTENT_REPLAY")
	run.Annotate(observability.F("order_id", "o-1"))
	run.Logger().Info("inside")
	run.End(nil)

	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "test.op", entries[0].ContextMap()["use_case"], "the run logger is use-case scoped")
	done := entries[1].ContextMap()
	assert.Equal(t, "IDEMPOTENT_REPLAY", done["status"])
	assert.Equal(t, "o-1", done["order_id"])
	assert.NotNil(t, ctx)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "rejected", Outcome(apperr.ErrInvalidState))
	assert.Equal(t, "error", Outcome(apperr.ErrStoreUnavailable))
}

package prometrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandard_CountersAndHistograms(t *testing.T) {
	r, err := NewStandard("minishop")
	require.NoError(t, err)

	c := r.Counter(observability.MUsecaseRequests)
	c.Add(1, observability.L("use_case", "payment.pay_order"), observability.L("outcome", "success"))
	c.Add(2, observability.L("use_case", "payment.pay_order"), observability.L("outcome", "rejected"))
	r.Counter(observability.MLedgerMutations).Bind(observability.L("ledger", "stock"), observability.L("outcome", "applied")).Add(1)
	r.Histogram(observability.MUsecaseDuration).Observe(0.02, observability.L("use_case", "payment.pay_order"))

	expected := `
# HELP minishop_usecase_requests_total Total number of use case invocations.
# TYPE minishop_usecase_requests_total counter
minishop_usecase_requests_total{outcome="rejected",use_case="payment.pay_order"} 2
minishop_usecase_requests_total{outcome="success",use_case="payment.pay_order"} 1
# HELP minishop_ledger_mutations_total Stock and balance check-and-set attempts.
# TYPE minishop_ledger_mutations_total counter
minishop_ledger_mutations_total{ledger="stock",outcome="applied"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"minishop_usecase_requests_total", "minishop_ledger_mutations_total"))

	n, err := testutil.GatherAndCount(r.Gatherer(), "minishop_usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistry_UnknownKeysAreNoop(t *testing.T) {
	r := New("")
	assert.NotPanics(t, func() {
		r.Counter("missing_total").Add(1, observability.L("a", "b"))
		r.Histogram("missing_seconds").Bind().Observe(1)
	})
}

func TestRegistry_RegisterTwiceIsIdempotent(t *testing.T) {
	r := New("")
	require.NoError(t, r.RegisterCounter("jobs_total", "Jobs.", "kind"))
	require.NoError(t, r.RegisterCounter("jobs_total", "Jobs.", "kind"))
	require.NoError(t, r.RegisterHistogram("jobs_seconds", "Jobs.", []float64{1}, "kind"))
	require.NoError(t, r.RegisterHistogram("jobs_seconds", "Jobs.", []float64{1}, "kind"))
}

func TestHandler_ServesTextFormat(t *testing.T) {
	r, err := NewStandard("")
	require.NoError(t, err)
	r.Counter(observability.MOutboxRelay).Add(3, observability.L("outcome", "sent"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `outbox_relay_total{outcome="sent"} 3`)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.RecordClaim("quote", "ok")
	assert.Equal(t, float64(1), testutil.ToFloat64(a.claims.WithLabelValues("quote", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.claims.WithLabelValues("quote", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordClaimedAmount(decimal.RequireFromString("0.9"))
	c.RecordDeployment("custodial", "ok")
	c.RecordReconciliation("settlement_failed")
	c.SetCustodyBalance(decimal.NewFromInt(3))
	c.RecordHTTPRequest("/health", http.MethodGet, "200", 5*time.Millisecond)
	c.OracleFailures().Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"gitup_custody_claimed_sol_total 0.9",
		`gitup_custody_deployments_total{mode="custodial",outcome="ok"} 1`,
		`gitup_custody_reconciliations_total{kind="settlement_failed"} 1`,
		"gitup_custody_custody_balance_sol 3",
		"gitup_custody_oracle_failures_total 1",
		"gitup_custody_http_request_duration_seconds_count",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}

	c.Reset()
	assert.Equal(t, float64(0), testutil.ToFloat64(c.custodyBalance))
}

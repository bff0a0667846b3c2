package custody

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/gitup-custody/internal/storage/memory"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
)

func TestReconcilerRecord(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	store := memory.NewStorage()
	r := NewReconciler(store, srv.URL, metrics.NewCollector(), zap.New(core))

	r.Record(context.Background(), &models.Reconciliation{
		Kind:      models.ReconcileSettlementFailed,
		TokenMint: "mint-1",
		Signature: "sig-1",
		Amount:    dec("0.42"),
		Details:   "database unavailable",
	})

	open, err := store.ListReconciliations(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "sig-1", open[0].Signature)

	p := <-received
	assert.Equal(t, models.ReconcileSettlementFailed, p.Kind)
	assert.Equal(t, "0.42", p.Amount)
	assert.Equal(t, open[0].ID, p.ID)

	entries := logs.FilterMessage("Ledger reconciliation required").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, true, entries[0].ContextMap()["reconciliation_required"])
}

func TestReconcilerSurvivesWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.NewStorage()
	r := NewReconciler(store, srv.URL, nil, zap.NewNop())
	r.Record(context.Background(), &models.Reconciliation{Kind: models.ReconcileOverClaim, Amount: dec("1")})

	open, err := store.ListReconciliations(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

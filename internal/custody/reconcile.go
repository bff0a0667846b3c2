// internal/custody/reconcile.go
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
)

const webhookTimeout = 5 * time.Second

// Reconciler фиксирует расхождения между блокчейном и леджером: средства
// уже ушли, а запись не обновилась. Такие события не должны теряться.
type Reconciler struct {
	store      storage.Storage
	webhookURL string
	httpClient *http.Client
	metrics    *metrics.Collector
	logger     *zap.Logger
}

func NewReconciler(store storage.Storage, webhookURL string, m *metrics.Collector, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: webhookTimeout},
		metrics:    m,
		logger:     logger.Named("reconciler"),
	}
}

type webhookPayload struct {
	ID        uint      `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	TokenMint string    `json:"token_mint,omitempty"`
	Repo      string    `json:"repo,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Amount    string    `json:"amount"`
	Details   string    `json:"details"`
	At        time.Time `json:"at"`
}

// Record сохраняет запись, пишет лог уровня Error и уведомляет оператора.
// Никогда не возвращает ошибку: лог остаётся последним носителем записи.
func (r *Reconciler) Record(ctx context.Context, rec *models.Reconciliation) {
	fields := []zap.Field{
		zap.Bool("reconciliation_required", true),
		zap.String("kind", rec.Kind),
		zap.String("token_mint", rec.TokenMint),
		zap.String("repo", rec.RepoIdentifier),
		zap.String("signature", rec.Signature),
		zap.String("amount", rec.Amount.String()),
		zap.String("details", rec.Details),
	}

	// Контекст запроса мог быть отменён, а запись обязана сохраниться.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()
	if err := r.store.SaveReconciliation(saveCtx, rec); err != nil {
		r.logger.Error("Failed to persist reconciliation record", append(fields, zap.Error(err))...)
	} else {
		fields = append(fields, zap.Uint("reconciliation_id", rec.ID))
	}
	r.logger.Error("Ledger reconciliation required", fields...)
	if r.metrics != nil {
		r.metrics.RecordReconciliation(rec.Kind)
	}

	if r.webhookURL == "" {
		return
	}
	if err := r.notify(saveCtx, rec); err != nil {
		r.logger.Warn("Reconciliation webhook failed", zap.Error(err), zap.String("kind", rec.Kind))
	}
}

func (r *Reconciler) notify(ctx context.Context, rec *models.Reconciliation) error {
	body, err := json.Marshal(webhookPayload{
		ID:        rec.ID,
		Kind:      rec.Kind,
		TokenMint: rec.TokenMint,
		Repo:      rec.RepoIdentifier,
		Signature: rec.Signature,
		Amount:    rec.Amount.String(),
		Details:   rec.Details,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

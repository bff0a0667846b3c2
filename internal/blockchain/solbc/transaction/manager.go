// internal/blockchain/solbc/transaction/manager.go
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
)

const (
	defaultMaxRetries       = 3
	defaultRetryDelay       = 500 * time.Millisecond
	defaultConfirmationTime = 60 * time.Second
)

// Manager подписанные транзакции отправляет с повторами и дожидается подтверждения.
type Manager struct {
	client    blockchain.Client
	logger    *zap.Logger
	config    Config
	validator *Validator
	metrics   *Metrics
}

func NewManager(client blockchain.Client, logger *zap.Logger, config Config, metrics *Metrics) *Manager {
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if config.ConfirmationTime <= 0 {
		config.ConfirmationTime = defaultConfirmationTime
	}
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Manager{
		client:    client,
		logger:    logger.Named("tx-manager"),
		config:    config,
		validator: NewValidator(logger),
		metrics:   metrics,
	}
}

func (tm *Manager) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (*Status, error) {
	defer tm.metrics.TrackTransaction(time.Now())

	if err := tm.validator.ValidateTransaction(tx); err != nil {
		tm.logger.Error("Transaction validation failed", zap.Error(err))
		return nil, err
	}

	signature, err := tm.sendWithRetry(ctx, tx)
	if err != nil {
		tm.logger.Error("Failed to send transaction", zap.Error(err))
		return nil, err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, tm.config.ConfirmationTime)
	defer cancel()
	if err := tm.client.WaitForTransactionConfirmation(confirmCtx, signature, tm.config.Commitment); err != nil {
		tm.metrics.failureCounter.Inc()
		tm.logger.Error("Transaction confirmation failed",
			zap.String("signature", signature.String()),
			zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = blockchain.ErrConfirmationTimeout
		}
		return &Status{Signature: signature, Status: "unconfirmed", Timestamp: time.Now()}, err
	}

	tm.metrics.successCounter.Inc()
	status := &Status{
		Signature: signature,
		Status:    string(tm.config.Commitment),
		Timestamp: time.Now(),
	}
	if info, err := tm.client.GetTransaction(ctx, signature); err == nil && info != nil {
		status.Slot = info.Slot
		status.BlockTime = info.BlockTime
	}
	return status, nil
}

func (tm *Manager) sendWithRetry(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	operation := func() (solana.Signature, error) {
		signature, err := tm.client.SendTransaction(ctx, tx)
		if err != nil {
			tm.metrics.failureCounter.Inc()
			tm.logger.Warn("Retrying transaction send", zap.Error(err))
			return solana.Signature{}, err
		}
		return signature, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = tm.config.RetryDelay
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(tm.config.MaxRetries)))
}

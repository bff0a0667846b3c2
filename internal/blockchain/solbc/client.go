// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/rpc"
)

const (
	defaultConfirmTimeout = 30 * time.Second
	pollInterval          = 500 * time.Millisecond
)

// Client – тонкий адаптер для взаимодействия с блокчейном Solana через solana-go.
type Client struct {
	rpc            *rpc.RPCClient
	logger         *zap.Logger
	confirmTimeout time.Duration
}

// NewClient создаёт новый клиент поверх списка RPC узлов.
func NewClient(urls []string, confirmTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.NewClient(urls, logger)
	if err != nil {
		return nil, err
	}
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Client{
		rpc:            rpcClient,
		logger:         logger.Named("solbc-client"),
		confirmTimeout: confirmTimeout,
	}, nil
}

// GetRecentBlockhash получает последний blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.rpc.ExecuteWithRetry(ctx, "getLatestBlockhash", func(ctx context.Context, node *solanarpc.Client) error {
		result, err := node.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = result.Value.Blockhash
		return nil
	})
	if err != nil {
		c.logger.Error("GetRecentBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return hash, nil
}

// SendTransaction отправляет транзакцию.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.rpc.ExecuteWithRetry(ctx, "sendTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		sig, err = node.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: solanarpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SendTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetBalance получает баланс аккаунта.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment solanarpc.CommitmentType) (uint64, error) {
	var balance uint64
	err := c.rpc.ExecuteWithRetry(ctx, "getBalance", func(ctx context.Context, node *solanarpc.Client) error {
		result, err := node.GetBalance(ctx, pubkey, commitment)
		if err != nil {
			return err
		}
		balance = result.Value
		return nil
	})
	if err != nil {
		c.logger.Error("GetBalance error", zap.String("pubkey", pubkey.String()), zap.Error(err))
		return 0, err
	}
	return balance, nil
}

// GetTransaction получает подтвержденную транзакцию. Если узел ее не знает – nil, nil.
func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*blockchain.TransactionInfo, error) {
	maxVersion := uint64(0)
	var (
		out   *solanarpc.GetTransactionResult
		found = true
	)
	err := c.rpc.ExecuteWithRetry(ctx, "getTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		out, err = node.GetTransaction(ctx, signature, &solanarpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     solanarpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if errors.Is(err, solanarpc.ErrNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Error("GetTransaction error", zap.String("signature", signature.String()), zap.Error(err))
		return nil, err
	}
	if !found || out == nil || out.Transaction == nil {
		return nil, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}

	info := &blockchain.TransactionInfo{
		Signature:   signature,
		Slot:        out.Slot,
		Transaction: tx,
	}
	if out.BlockTime != nil {
		t := out.BlockTime.Time()
		info.BlockTime = &t
	}
	if out.Meta != nil {
		info.Err = out.Meta.Err
	}
	return info, nil
}

// WaitForTransactionConfirmation ожидает подтверждения транзакции (polling).
func (c *Client) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment solanarpc.CommitmentType) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	timeout := time.After(c.confirmTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return blockchain.ErrConfirmationTimeout
		case <-ticker.C:
			var statuses *solanarpc.GetSignatureStatusesResult
			err := c.rpc.ExecuteWithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, node *solanarpc.Client) error {
				var err error
				statuses, err = node.GetSignatureStatuses(ctx, false, signature)
				return err
			})
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", blockchain.ErrTransactionFailed, status.Err)
			}
			if reached(status.ConfirmationStatus, commitment) {
				return nil
			}
		}
	}
}

// reached сравнивает достигнутый уровень подтверждения с требуемым.
func reached(got solanarpc.ConfirmationStatusType, want solanarpc.CommitmentType) bool {
	switch want {
	case solanarpc.CommitmentFinalized:
		return got == solanarpc.ConfirmationStatusFinalized
	case solanarpc.CommitmentProcessed:
		return got != ""
	default:
		return got == solanarpc.ConfirmationStatusConfirmed || got == solanarpc.ConfirmationStatusFinalized
	}
}

// Гарантируем, что Client реализует интерфейс blockchain.Client.
var _ blockchain.Client = (*Client)(nil)

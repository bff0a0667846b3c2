// internal/blockchain/types.go
package blockchain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrConfirmationTimeout – транзакция не подтвердилась за отведенное время.
// Вызывающий код трактует это как "еще не подтверждена", а не как провал.
var ErrConfirmationTimeout = errors.New("transaction confirmation timeout")

// ErrTransactionFailed – транзакция попала в блок, но завершилась ошибкой исполнения.
var ErrTransactionFailed = errors.New("transaction failed on-chain")

// TransactionInfo – подтвержденная транзакция вместе с результатом исполнения.
type TransactionInfo struct {
	Signature   solana.Signature
	Slot        uint64
	BlockTime   *time.Time
	Err         interface{}
	Transaction *solana.Transaction
}

// Failed сообщает, записала ли транзакция ошибку исполнения.
func (t *TransactionInfo) Failed() bool {
	return t.Err != nil
}

// Client определяет общий интерфейс для взаимодействия с блокчейном.
type Client interface {
	// Получить последний blockhash.
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	// Отправить подписанную транзакцию.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// Получить баланс аккаунта в лампортах.
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	// Получить транзакцию по подписи. Возвращает nil, nil, если транзакция не найдена.
	GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error)
	// Ожидание подтверждения транзакции.
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
}

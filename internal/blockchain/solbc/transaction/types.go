// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrInvalidSignature   = errors.New("invalid transaction signature")
	ErrInvalidBlockhash   = errors.New("invalid blockhash")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

type Config struct {
	MaxRetries       int
	RetryDelay       time.Duration
	ConfirmationTime time.Duration
	SkipPreflight    bool
	Commitment       rpc.CommitmentType
}

// Status – итог отправки и подтверждения транзакции.
type Status struct {
	Signature solana.Signature
	Status    string
	Slot      uint64
	Timestamp time.Time
	BlockTime *time.Time
}

// Transfer – декодированная системная инструкция перевода SOL.
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}

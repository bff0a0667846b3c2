// internal/domain/claim.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimStatus is the client-facing status of an in-flight claim attempt.
type ClaimStatus string

const (
	StatusQuoted    ClaimStatus = "quoted"
	StatusConfirmed ClaimStatus = "confirmed"
)

// ClaimAttempt is never persisted. It lives in the pending-quote ledger between
// quote and settlement and is dropped on confirm or expiry.
type ClaimAttempt struct {
	TokenMint        string
	ClaimantWallet   string
	UserID           string
	RequestedAmount  decimal.Decimal
	ClaimedAtQuote   decimal.Decimal
	Transaction      string
	CustodySignature string // подпись кастоди, по ней подтверждение сопоставляется с котировкой
	Status           ClaimStatus
	ExpiresAt        time.Time
}

// Expired сообщает, истек ли срок действия котировки.
func (a *ClaimAttempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// FeeSnapshot – результат расчета комиссий по объему торгов.
type FeeSnapshot struct {
	TotalVolume decimal.Decimal
	FeesEarned  decimal.Decimal
	LastTrade   *time.Time
}

// internal/storage/models/settlement.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimSettlement фиксирует подпись, по которой уже зачтён вывод.
// Уникальность подписи делает повторное подтверждение идемпотентным.
type ClaimSettlement struct {
	BaseModel
	Signature      string          `gorm:"uniqueIndex;not null;type:varchar(88)"`
	TokenMint      string          `gorm:"index;not null;type:varchar(44)"`
	Amount         decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	ClaimedBefore  decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	ClaimedAfter   decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	ClaimantWallet string          `gorm:"not null;type:varchar(44)"`
	UserID         string          `gorm:"type:varchar(64)"`
	Slot           uint64
	SettledAt      time.Time `gorm:"not null"`
}

// SettleParams – входные данные атомарного зачёта вывода.
type SettleParams struct {
	Signature       string
	TokenMint       string
	Amount          decimal.Decimal
	ExpectedClaimed decimal.Decimal
	ObservedEarned  decimal.Decimal
	ClaimantWallet  string
	UserID          string
	Slot            uint64
	SettledAt       time.Time
}

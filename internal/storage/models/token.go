// internal/storage/models/token.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenRecord – одна запись на токенизированный репозиторий.
type TokenRecord struct {
	BaseModel
	TokenMint         string          `gorm:"uniqueIndex;not null;type:varchar(44)"`
	RepoIdentifier    string          `gorm:"uniqueIndex;not null;type:varchar(255)"`
	RepoFullName      string          `gorm:"not null;type:varchar(255)"`
	RepoProvider      string          `gorm:"not null;type:varchar(20);default:github"`
	Name              string          `gorm:"type:varchar(64)"`
	Symbol            string          `gorm:"type:varchar(16)"`
	MetadataURI       string          `gorm:"type:text"`
	IsCustodial       bool            `gorm:"not null;default:false"`
	DeployerWallet    string          `gorm:"type:varchar(44)"`
	CreationSignature string          `gorm:"type:varchar(88)"`
	PaymentSignature  *string         `gorm:"uniqueIndex;type:varchar(88)"`
	TotalFeesEarned   decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	TotalFeesClaimed  decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	IsClaimed         bool            `gorm:"not null;default:false"`
	ClaimedAt         *time.Time
	ClaimedByUserID   string `gorm:"type:varchar(64)"`
	ClaimedByWallet   string `gorm:"type:varchar(44)"`
}

// Claimable – остаток к выводу по данным записи, не меньше нуля.
func (t *TokenRecord) Claimable() decimal.Decimal {
	diff := t.TotalFeesEarned.Sub(t.TotalFeesClaimed)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// internal/storage/models/reconciliation.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы расхождений между блокчейном и леджером.
const (
	ReconcileSettlementFailed    = "settlement_failed"
	ReconcileUntrackedDeployment = "untracked_deployment"
	ReconcileOverClaim           = "over_claim"
)

// Reconciliation – запись для оператора: перевод в сети уже произошёл,
// а леджер его не отразил.
type Reconciliation struct {
	BaseModel
	Kind           string          `gorm:"index;not null;type:varchar(40)"`
	TokenMint      string          `gorm:"index;type:varchar(44)"`
	RepoIdentifier string          `gorm:"type:varchar(255)"`
	Signature      string          `gorm:"index;type:varchar(88)"`
	Amount         decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	Details        string          `gorm:"type:text"`
	Resolved       bool            `gorm:"index;not null;default:false"`
	ResolvedAt     *time.Time
	ResolutionNote string `gorm:"type:text"`
}

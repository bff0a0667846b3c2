// internal/storage/models/payment.go
package models

// PaymentClaim закрепляет подпись оплаты за одним деплоем. Строка создаётся
// до сборки create-транзакции и удаляется, только если в сеть ничего не ушло.
type PaymentClaim struct {
	BaseModel
	Signature      string `gorm:"uniqueIndex;not null;type:varchar(88)"`
	RepoIdentifier string `gorm:"not null;type:varchar(255)"`
	PayerWallet    string `gorm:"not null;type:varchar(44)"`
	Lamports       uint64 `gorm:"not null"`
}

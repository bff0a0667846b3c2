// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

var (
	// ErrNotFound – запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey – нарушено ограничение уникальности (репозиторий, минт или подпись оплаты).
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConflict – запись изменилась между чтением и условным обновлением.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrInvalidInput – параметры нарушают инварианты леджера.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExceedsEarned – после зачёта выведенное превысило бы начисленное.
	ErrExceedsEarned = errors.New("claimed total would exceed earned fees")
)

// Storage определяет интерфейс для работы с хранилищем
type Storage interface {
	// Токены
	CreateToken(ctx context.Context, token *models.TokenRecord) error
	GetTokenByMint(ctx context.Context, mint string) (*models.TokenRecord, error)
	GetTokenByRepo(ctx context.Context, repoIdentifier string) (*models.TokenRecord, error)
	GetTokenByPaymentSignature(ctx context.Context, signature string) (*models.TokenRecord, error)
	ListTokens(ctx context.Context, limit, offset int) ([]*models.TokenRecord, error)
	// RecordFeesEarned только повышает totalFeesEarned, никогда не понижает.
	RecordFeesEarned(ctx context.Context, mint string, earned decimal.Decimal) error

	// Оплата деплоя. ClaimPayment возвращает ErrDuplicateKey, если подпись уже занята.
	ClaimPayment(ctx context.Context, claim *models.PaymentClaim) error
	ReleasePayment(ctx context.Context, signature string) error

	// Зачёт вывода. Возвращает created=false, если подпись уже была зачтена.
	SettleClaim(ctx context.Context, params models.SettleParams) (settlement *models.ClaimSettlement, created bool, err error)
	GetSettlement(ctx context.Context, signature string) (*models.ClaimSettlement, error)
	ListSettlements(ctx context.Context, mint string) ([]*models.ClaimSettlement, error)

	// Расхождения
	SaveReconciliation(ctx context.Context, rec *models.Reconciliation) error
	ListReconciliations(ctx context.Context, onlyOpen bool) ([]*models.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id uint, note string) error

	RunMigrations() error
	Close() error
}

// ValidateSettle проверяет параметры зачёта независимо от реализации хранилища.
func ValidateSettle(p models.SettleParams) error {
	if p.Signature == "" || p.TokenMint == "" || p.ClaimantWallet == "" {
		return ErrInvalidInput
	}
	if !p.Amount.IsPositive() || p.ExpectedClaimed.IsNegative() {
		return ErrInvalidInput
	}
	return nil
}

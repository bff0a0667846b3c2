// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

// gormLogger реализует интерфейс logger.Interface для GORM
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

// newGormLogger создает новый логгер для GORM
func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

// LogMode реализация интерфейса logger.Interface
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

// Info реализация интерфейса logger.Interface
func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

// Warn реализация интерфейса logger.Interface
func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

// Error реализация интерфейса logger.Interface
func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace реализация интерфейса logger.Interface
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Debug("trace", fields...)
	}
}

// postgresStorage реализует интерфейс Storage
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Настройка пула соединений
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger.Named("postgres"),
	}, nil
}

// RunMigrations использует GORM AutoMigrate под advisory lock
func (p *postgresStorage) RunMigrations() error {
	// Сначала попробуем получить блокировку
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(101)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(101)")

	err = p.db.AutoMigrate(
		&models.TokenRecord{},
		&models.ClaimSettlement{},
		&models.Reconciliation{},
		&models.PaymentClaim{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Инвариант леджера дублируется ограничением в базе.
	return p.db.Exec(`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'token_records_claimed_le_earned') THEN
			ALTER TABLE token_records ADD CONSTRAINT token_records_claimed_le_earned
				CHECK (total_fees_claimed >= 0 AND total_fees_claimed <= total_fees_earned);
		END IF;
	END $$`).Error
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError переводит ошибки GORM в ошибки пакета storage.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err)
	default:
		return err
	}
}

func (p *postgresStorage) CreateToken(ctx context.Context, token *models.TokenRecord) error {
	if token.TokenMint == "" || token.RepoIdentifier == "" {
		return storage.ErrInvalidInput
	}
	return translateError(p.db.WithContext(ctx).Create(token).Error)
}

func (p *postgresStorage) getToken(ctx context.Context, column, value string) (*models.TokenRecord, error) {
	var token models.TokenRecord
	err := p.db.WithContext(ctx).Where(column+" = ?", value).First(&token).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &token, nil
}

func (p *postgresStorage) GetTokenByMint(ctx context.Context, mint string) (*models.TokenRecord, error) {
	return p.getToken(ctx, "token_mint", mint)
}

func (p *postgresStorage) GetTokenByRepo(ctx context.Context, repoIdentifier string) (*models.TokenRecord, error) {
	return p.getToken(ctx, "repo_identifier", repoIdentifier)
}

func (p *postgresStorage) GetTokenByPaymentSignature(ctx context.Context, signature string) (*models.TokenRecord, error) {
	return p.getToken(ctx, "payment_signature", signature)
}

func (p *postgresStorage) ListTokens(ctx context.Context, limit, offset int) ([]*models.TokenRecord, error) {
	var tokens []*models.TokenRecord
	q := p.db.WithContext(ctx).Order("id desc").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tokens).Error
	return tokens, translateError(err)
}

func (p *postgresStorage) RecordFeesEarned(ctx context.Context, mint string, earned decimal.Decimal) error {
	res := p.db.WithContext(ctx).Model(&models.TokenRecord{}).
		Where("token_mint = ?", mint).
		Updates(map[string]interface{}{
			"total_fees_earned": gorm.Expr("GREATEST(total_fees_earned, ?)", earned),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimPayment полагается на уникальный индекс по подписи.
func (p *postgresStorage) ClaimPayment(ctx context.Context, claim *models.PaymentClaim) error {
	if claim.Signature == "" || claim.RepoIdentifier == "" {
		return storage.ErrInvalidInput
	}
	return translateError(p.db.WithContext(ctx).Create(claim).Error)
}

func (p *postgresStorage) ReleasePayment(ctx context.Context, signature string) error {
	return translateError(p.db.WithContext(ctx).
		Where("signature = ?", signature).
		Delete(&models.PaymentClaim{}).Error)
}

var errAlreadySettled = errors.New("signature already settled")

// SettleClaim атомарно увеличивает totalFeesClaimed при условии, что он не
// изменился с момента чтения, и записывает подпись в журнал зачётов.
func (p *postgresStorage) SettleClaim(ctx context.Context, params models.SettleParams) (*models.ClaimSettlement, bool, error) {
	if err := storage.ValidateSettle(params); err != nil {
		return nil, false, err
	}
	settledAt := params.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	var settlement *models.ClaimSettlement
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ClaimSettlement
		err := tx.Where("signature = ?", params.Signature).First(&existing).Error
		if err == nil {
			settlement = &existing
			return errAlreadySettled
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var token models.TokenRecord
		if err := tx.Where("token_mint = ?", params.TokenMint).First(&token).Error; err != nil {
			return translateError(err)
		}
		if !token.TotalFeesClaimed.Equal(params.ExpectedClaimed) {
			return storage.ErrConflict
		}
		earned := decimal.Max(token.TotalFeesEarned, params.ObservedEarned)
		claimed := params.ExpectedClaimed.Add(params.Amount)
		if claimed.GreaterThan(earned) {
			return storage.ErrExceedsEarned
		}

		res := tx.Model(&models.TokenRecord{}).
			Where("token_mint = ? AND total_fees_claimed = ?", params.TokenMint, params.ExpectedClaimed).
			Updates(map[string]interface{}{
				"total_fees_claimed": claimed,
				"total_fees_earned":  gorm.Expr("GREATEST(total_fees_earned, ?)", earned),
				"is_claimed":         true,
				"claimed_at":         gorm.Expr("COALESCE(claimed_at, ?)", settledAt),
				"claimed_by_user_id": gorm.Expr("CASE WHEN is_claimed THEN claimed_by_user_id ELSE ? END", params.UserID),
				"claimed_by_wallet":  gorm.Expr("CASE WHEN is_claimed THEN claimed_by_wallet ELSE ? END", params.ClaimantWallet),
				"updated_at":         time.Now().UTC(),
			})
		if res.Error != nil {
			return translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrConflict
		}

		settlement = &models.ClaimSettlement{
			Signature:      params.Signature,
			TokenMint:      params.TokenMint,
			Amount:         params.Amount,
			ClaimedBefore:  params.ExpectedClaimed,
			ClaimedAfter:   claimed,
			ClaimantWallet: params.ClaimantWallet,
			UserID:         params.UserID,
			Slot:           params.Slot,
			SettledAt:      settledAt,
		}
		return translateError(tx.Create(settlement).Error)
	})

	switch {
	case errors.Is(err, errAlreadySettled):
		return settlement, false, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		// Параллельный зачёт той же подписи успел раньше.
		existing, getErr := p.GetSettlement(ctx, params.Signature)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	case err != nil:
		return nil, false, err
	}
	return settlement, true, nil
}

func (p *postgresStorage) GetSettlement(ctx context.Context, signature string) (*models.ClaimSettlement, error) {
	var s models.ClaimSettlement
	if err := p.db.WithContext(ctx).Where("signature = ?", signature).First(&s).Error; err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

func (p *postgresStorage) ListSettlements(ctx context.Context, mint string) ([]*models.ClaimSettlement, error) {
	var list []*models.ClaimSettlement
	err := p.db.WithContext(ctx).Where("token_mint = ?", mint).Order("id asc").Find(&list).Error
	return list, translateError(err)
}

func (p *postgresStorage) SaveReconciliation(ctx context.Context, rec *models.Reconciliation) error {
	return translateError(p.db.WithContext(ctx).Create(rec).Error)
}

func (p *postgresStorage) ListReconciliations(ctx context.Context, onlyOpen bool) ([]*models.Reconciliation, error) {
	var list []*models.Reconciliation
	q := p.db.WithContext(ctx).Order("id desc")
	if onlyOpen {
		q = q.Where("resolved = ?", false)
	}
	err := q.Find(&list).Error
	return list, translateError(err)
}

func (p *postgresStorage) ResolveReconciliation(ctx context.Context, id uint, note string) error {
	now := time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&models.Reconciliation{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":        true,
			"resolved_at":     now,
			"resolution_note": note,
			"updated_at":      now,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&models.Reconciliation{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return translateError(err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
	}
	return nil
}

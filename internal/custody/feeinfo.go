// internal/custody/feeinfo.go
package custody

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

// TokenFees – сводка комиссий токена для страницы токена.
type TokenFees struct {
	TokenMint        string          `json:"tokenMint"`
	RepoFullName     string          `json:"repoFullName"`
	IsCustodial      bool            `json:"isCustodial"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	FeesEarned       decimal.Decimal `json:"feesEarned"`
	LastTrade        *time.Time      `json:"lastTrade"`
	TotalFeesClaimed decimal.Decimal `json:"totalFeesClaimed"`
	ClaimableAmount  decimal.Decimal `json:"claimableAmount"`
	IsClaimed        bool            `json:"isClaimed"`
}

// CalculateTokenFees переводит объём оракула в комиссии. При недоступности
// оракула возвращает нули, а не ошибку.
func (s *Service) CalculateTokenFees(ctx context.Context, mint string) domain.FeeSnapshot {
	volume := s.oracle.GetVolume(ctx, mint)
	return domain.FeeSnapshot{
		TotalVolume: volume.TotalVolume,
		FeesEarned:  s.calc.ComputeFees(volume.TotalVolume),
		LastTrade:   volume.LastTradeAt,
	}
}

// FeeInfo возвращает сводку комиссий по токену. Только чтение, в леджер не пишет.
func (s *Service) FeeInfo(ctx context.Context, mint string) (*TokenFees, error) {
	token, err := s.loadToken(ctx, mint)
	if err != nil {
		return nil, err
	}
	snapshot := s.CalculateTokenFees(ctx, mint)
	earned := s.calc.Earned(token.TotalFeesEarned, snapshot.FeesEarned)

	claimable := decimal.Zero
	if token.IsCustodial {
		claimable = s.calc.Claimable(earned, token.TotalFeesClaimed)
	}
	return &TokenFees{
		TokenMint:        token.TokenMint,
		RepoFullName:     token.RepoFullName,
		IsCustodial:      token.IsCustodial,
		TotalVolume:      snapshot.TotalVolume,
		FeesEarned:       earned,
		LastTrade:        snapshot.LastTrade,
		TotalFeesClaimed: token.TotalFeesClaimed,
		ClaimableAmount:  claimable,
		IsClaimed:        token.IsClaimed,
	}, nil
}

func (s *Service) loadToken(ctx context.Context, mint string) (*models.TokenRecord, error) {
	if _, err := parsePublicKey("token mint", mint); err != nil {
		return nil, err
	}
	token, err := s.store.GetTokenByMint(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NotFoundError("token " + mint + " is not registered")
	}
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to load token", err)
	}
	return token, nil
}

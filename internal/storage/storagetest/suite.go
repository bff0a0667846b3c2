// Package storagetest содержит общий набор проверок для реализаций storage.Storage.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

var seq atomic.Int64

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// NewToken создаёт кастодиальную запись с уникальными ключами.
func NewToken(earned, claimed string) *models.TokenRecord {
	return &models.TokenRecord{
		TokenMint:        uniq("mint"),
		RepoIdentifier:   uniq("github:octo/repo"),
		RepoFullName:     "octo/repo",
		RepoProvider:     "github",
		IsCustodial:      true,
		TotalFeesEarned:  dec(earned),
		TotalFeesClaimed: dec(claimed),
	}
}

// Run прогоняет общий набор проверок на хранилище из newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		s := newStore(t)
		sig := uniq("pay")
		tok := NewToken("0", "0")
		tok.PaymentSignature = &sig
		require.NoError(t, s.CreateToken(ctx, tok))

		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.Equal(t, tok.RepoIdentifier, got.RepoIdentifier)
		assert.True(t, got.IsCustodial)

		got, err = s.GetTokenByRepo(ctx, tok.RepoIdentifier)
		require.NoError(t, err)
		assert.Equal(t, tok.TokenMint, got.TokenMint)

		got, err = s.GetTokenByPaymentSignature(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, tok.TokenMint, got.TokenMint)

		_, err = s.GetTokenByMint(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("unique repo, mint and payment", func(t *testing.T) {
		s := newStore(t)
		sig := uniq("pay")
		first := NewToken("0", "0")
		first.PaymentSignature = &sig
		require.NoError(t, s.CreateToken(ctx, first))

		sameRepo := NewToken("0", "0")
		sameRepo.RepoIdentifier = first.RepoIdentifier
		assert.ErrorIs(t, s.CreateToken(ctx, sameRepo), storage.ErrDuplicateKey)

		sameMint := NewToken("0", "0")
		sameMint.TokenMint = first.TokenMint
		assert.ErrorIs(t, s.CreateToken(ctx, sameMint), storage.ErrDuplicateKey)

		samePayment := NewToken("0", "0")
		samePayment.PaymentSignature = &sig
		assert.ErrorIs(t, s.CreateToken(ctx, samePayment), storage.ErrDuplicateKey)

		// Прямые запуски без оплаты не конфликтуют между собой.
		require.NoError(t, s.CreateToken(ctx, NewToken("0", "0")))
		require.NoError(t, s.CreateToken(ctx, NewToken("0", "0")))
	})

	t.Run("payment claimed once", func(t *testing.T) {
		s := newStore(t)
		sig := uniq("pay")
		claim := func(repo string) error {
			return s.ClaimPayment(ctx, &models.PaymentClaim{
				Signature: sig, RepoIdentifier: repo, PayerWallet: "w", Lamports: 50_000_000,
			})
		}

		require.NoError(t, claim(uniq("github:octo/one")))
		assert.ErrorIs(t, claim(uniq("github:octo/two")), storage.ErrDuplicateKey)

		require.NoError(t, s.ReleasePayment(ctx, sig))
		require.NoError(t, claim(uniq("github:octo/two")), "released payment can be claimed again")
		require.NoError(t, s.ReleasePayment(ctx, uniq("pay")), "releasing an unknown payment is a no-op")

		assert.ErrorIs(t, s.ClaimPayment(ctx, &models.PaymentClaim{RepoIdentifier: "r"}), storage.ErrInvalidInput)
	})

	t.Run("concurrent payment claims", func(t *testing.T) {
		s := newStore(t)
		sig := uniq("pay")

		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.ClaimPayment(ctx, &models.PaymentClaim{
					Signature: sig, RepoIdentifier: uniq("github:octo/repo"), PayerWallet: "w",
				})
				if err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), ok.Load())
	})

	t.Run("fees earned only grow", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("1.0", "0")
		require.NoError(t, s.CreateToken(ctx, tok))

		require.NoError(t, s.RecordFeesEarned(ctx, tok.TokenMint, dec("0.5")))
		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesEarned.Equal(dec("1.0")))

		require.NoError(t, s.RecordFeesEarned(ctx, tok.TokenMint, dec("1.5")))
		got, err = s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesEarned.Equal(dec("1.5")))

		assert.ErrorIs(t, s.RecordFeesEarned(ctx, "missing", dec("1")), storage.ErrNotFound)
	})

	t.Run("settle claim", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("1.0", "0.3")
		require.NoError(t, s.CreateToken(ctx, tok))

		params := models.SettleParams{
			Signature:       uniq("sig"),
			TokenMint:       tok.TokenMint,
			Amount:          dec("0.9"),
			ExpectedClaimed: dec("0.3"),
			ObservedEarned:  dec("1.2"),
			ClaimantWallet:  "wallet",
			UserID:          "user-1",
		}
		settlement, created, err := s.SettleClaim(ctx, params)
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, settlement.ClaimedAfter.Equal(dec("1.2")))

		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesClaimed.Equal(dec("1.2")))
		assert.True(t, got.TotalFeesEarned.Equal(dec("1.2")))
		assert.True(t, got.Claimable().IsZero())
		assert.True(t, got.IsClaimed)
		require.NotNil(t, got.ClaimedAt)
		assert.Equal(t, "user-1", got.ClaimedByUserID)

		// Повторное подтверждение той же подписи ничего не меняет.
		again, created, err := s.SettleClaim(ctx, params)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, settlement.Signature, again.Signature)
		got, err = s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesClaimed.Equal(dec("1.2")))

		list, err := s.ListSettlements(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("claim markers set once", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("2", "0")
		require.NoError(t, s.CreateToken(ctx, tok))

		_, _, err := s.SettleClaim(ctx, models.SettleParams{
			Signature: uniq("sig"), TokenMint: tok.TokenMint, Amount: dec("1"),
			ExpectedClaimed: dec("0"), ClaimantWallet: "first-wallet", UserID: "first",
		})
		require.NoError(t, err)
		_, _, err = s.SettleClaim(ctx, models.SettleParams{
			Signature: uniq("sig"), TokenMint: tok.TokenMint, Amount: dec("0.5"),
			ExpectedClaimed: dec("1"), ClaimantWallet: "second-wallet", UserID: "second",
		})
		require.NoError(t, err)

		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.Equal(t, "first", got.ClaimedByUserID)
		assert.Equal(t, "first-wallet", got.ClaimedByWallet)
		assert.True(t, got.TotalFeesClaimed.Equal(dec("1.5")))
	})

	t.Run("stale read conflicts", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("1", "0.3")
		require.NoError(t, s.CreateToken(ctx, tok))

		_, _, err := s.SettleClaim(ctx, models.SettleParams{
			Signature: uniq("sig"), TokenMint: tok.TokenMint, Amount: dec("0.1"),
			ExpectedClaimed: dec("0.2"), ClaimantWallet: "w",
		})
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("over claim rejected", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("1", "0.5")
		require.NoError(t, s.CreateToken(ctx, tok))

		_, _, err := s.SettleClaim(ctx, models.SettleParams{
			Signature: uniq("sig"), TokenMint: tok.TokenMint, Amount: dec("0.6"),
			ExpectedClaimed: dec("0.5"), ObservedEarned: dec("0.9"), ClaimantWallet: "w",
		})
		assert.ErrorIs(t, err, storage.ErrExceedsEarned)

		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesClaimed.Equal(dec("0.5")))
	})

	t.Run("concurrent settlements never exceed earned", func(t *testing.T) {
		s := newStore(t)
		tok := NewToken("1", "0")
		require.NoError(t, s.CreateToken(ctx, tok))

		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := s.SettleClaim(ctx, models.SettleParams{
					Signature: uniq("sig"), TokenMint: tok.TokenMint, Amount: dec("0.6"),
					ExpectedClaimed: dec("0"), ClaimantWallet: "w",
				})
				if err == nil && created {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		got, err := s.GetTokenByMint(ctx, tok.TokenMint)
		require.NoError(t, err)
		assert.True(t, got.TotalFeesClaimed.LessThanOrEqual(got.TotalFeesEarned))
	})

	t.Run("reconciliations", func(t *testing.T) {
		s := newStore(t)
		rec := &models.Reconciliation{
			Kind:      models.ReconcileSettlementFailed,
			TokenMint: uniq("mint"),
			Signature: uniq("sig"),
			Amount:    dec("0.9"),
			Details:   "ledger update failed",
		}
		require.NoError(t, s.SaveReconciliation(ctx, rec))
		require.NotZero(t, rec.ID)

		open, err := s.ListReconciliations(ctx, true)
		require.NoError(t, err)
		require.NotEmpty(t, open)

		require.NoError(t, s.ResolveReconciliation(ctx, rec.ID, "credited manually"))
		open, err = s.ListReconciliations(ctx, true)
		require.NoError(t, err)
		for _, r := range open {
			assert.NotEqual(t, rec.ID, r.ID)
		}
		assert.ErrorIs(t, s.ResolveReconciliation(ctx, 999999, "x"), storage.ErrNotFound)
	})

	t.Run("list tokens paginates", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.CreateToken(ctx, NewToken("0", "0")))
		}
		page, err := s.ListTokens(ctx, 2, 0)
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})
}

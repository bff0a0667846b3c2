// internal/custody/payment.go
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/gitup-custody/internal/domain"
	"github.com/rovshanmuradov/gitup-custody/internal/fees"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

// verifyPayment проверяет, что транзакция sig перевела с payer на кастодиальный
// адрес не меньше tolerance * expected SOL. Отсутствие подходящего перевода –
// ошибка авторизации оплаты, а не повод для повтора.
func (s *Service) verifyPayment(ctx context.Context, sig solana.Signature, payer solana.PublicKey, expected decimal.Decimal) (uint64, error) {
	used, err := s.store.GetTokenByPaymentSignature(ctx, sig.String())
	if err == nil {
		return 0, domain.PaymentNotVerifiedError(
			fmt.Sprintf("payment %s was already used to deploy %s", sig, used.TokenMint), nil)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, domain.NewError(domain.KindInternal, "failed to check payment usage", err)
	}

	info, err := s.chain.GetTransaction(ctx, sig)
	if err != nil {
		return 0, domain.UpstreamServiceError("blockchain rpc", err)
	}
	if info == nil {
		return 0, domain.PaymentNotVerifiedError("payment transaction "+sig.String()+" was not found", nil)
	}
	if info.Failed() {
		return 0, domain.PaymentNotVerifiedError(
			fmt.Sprintf("payment transaction %s failed on-chain: %v", sig, info.Err), nil)
	}

	transfers, err := transaction.SystemTransfers(info.Transaction)
	if err != nil {
		return 0, domain.PaymentNotVerifiedError("payment transaction could not be decoded", err)
	}

	custodial := s.signer.PublicIdentity()
	minimum := fees.ToLamports(expected.Mul(s.policy.PaymentTolerance))
	for _, t := range transfers {
		if t.To.Equals(custodial) && t.From.Equals(payer) && t.Lamports >= minimum {
			return t.Lamports, nil
		}
	}
	return 0, domain.PaymentNotVerifiedError(
		fmt.Sprintf("transaction %s has no transfer of at least %s SOL from %s to the custody address",
			sig, fees.FromLamports(minimum), payer), nil)
}

// claimPayment атомарно закрепляет оплату за деплоем repo. Вторая заявка на
// ту же подпись отклоняется ещё до сборки create-транзакции.
func (s *Service) claimPayment(ctx context.Context, sig solana.Signature, payer solana.PublicKey, lamports uint64, repo Repository) error {
	err := s.store.ClaimPayment(ctx, &models.PaymentClaim{
		Signature:      sig.String(),
		RepoIdentifier: repo.Identifier,
		PayerWallet:    payer.String(),
		Lamports:       lamports,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrDuplicateKey):
		return domain.PaymentNotVerifiedError("payment "+sig.String()+" is already used by another deployment", nil)
	default:
		return domain.NewError(domain.KindInternal, "failed to reserve payment", err)
	}
}

func (s *Service) releasePayment(ctx context.Context, sig solana.Signature, log *zap.Logger) {
	if err := s.store.ReleasePayment(context.WithoutCancel(ctx), sig.String()); err != nil {
		log.Error("Failed to release deployment payment",
			zap.String("payment_signature", sig.String()),
			zap.Error(err))
	}
}

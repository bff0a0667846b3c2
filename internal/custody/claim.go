// internal/custody/claim.go
package custody

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/gitup-custody/internal/domain"
	"github.com/rovshanmuradov/gitup-custody/internal/fees"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/logger"
)

const (
	settleMaxTries  = 5
	claimMemoPrefix = "gitup:claim:"
)

// ClaimQuote – частично подписанная транзакция вывода, которую клиент
// подписывает как плательщик комиссии и отправляет сам.
type ClaimQuote struct {
	TokenMint        string          `json:"tokenMint"`
	ClaimantWallet   string          `json:"claimantWallet"`
	Amount           decimal.Decimal `json:"amount"`
	FeesEarned       decimal.Decimal `json:"feesEarned"`
	TotalFeesClaimed decimal.Decimal `json:"totalFeesClaimed"`
	Transaction      string          `json:"transaction"`
	ExpiresAt        time.Time       `json:"expiresAt"`
}

// ClaimResult – итог зачёта подтверждённого вывода.
type ClaimResult struct {
	TokenMint        string             `json:"tokenMint"`
	Signature        string             `json:"signature"`
	Amount           decimal.Decimal    `json:"amount"`
	TotalFeesEarned  decimal.Decimal    `json:"totalFeesEarned"`
	TotalFeesClaimed decimal.Decimal    `json:"totalFeesClaimed"`
	ClaimableAmount  decimal.Decimal    `json:"claimableAmount"`
	Status           domain.ClaimStatus `json:"status"`
	AlreadySettled   bool               `json:"alreadySettled"`
}

// QuoteClaim проверяет все предусловия вывода и возвращает транзакцию,
// подписанную только кастодиальным ключом.
func (s *Service) QuoteClaim(ctx context.Context, caller Caller, mint, claimantWallet string) (*ClaimQuote, error) {
	log := logger.WithClaim(logger.WithOperation(s.logger, "claim_quote"), mint, claimantWallet, caller.UserID)

	quote, err := s.quoteClaim(ctx, caller, mint, claimantWallet, log)
	if err != nil {
		s.metrics.RecordClaim("quote", string(domain.KindOf(err)))
		log.Info("Claim quote rejected", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordClaim("quote", "ok")
	log.Info("Claim quoted", zap.String("amount", quote.Amount.String()))
	return quote, nil
}

func (s *Service) quoteClaim(ctx context.Context, caller Caller, mint, claimantWallet string, log *zap.Logger) (*ClaimQuote, error) {
	claimant, err := parsePublicKey("claimant wallet", claimantWallet)
	if err != nil {
		return nil, err
	}
	token, err := s.loadToken(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !token.IsCustodial {
		return nil, domain.NotCustodialError(mint)
	}

	access, err := s.verifyAccess(ctx, caller, token.RepoProvider, token.RepoFullName)
	if err != nil {
		return nil, err
	}
	if !access.Allowed() {
		return nil, domain.AuthorizationError("you are neither the owner nor an admin of "+token.RepoFullName, nil)
	}

	var (
		snapshot domain.FeeSnapshot
		balance  decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot = s.CalculateTokenFees(gctx, mint)
		return nil
	})
	g.Go(func() error {
		var err error
		balance, err = s.custodyBalance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	earned := s.calc.Earned(token.TotalFeesEarned, snapshot.FeesEarned)
	claimable := s.calc.Claimable(earned, token.TotalFeesClaimed)
	// Порог сравнивается с суммой, которая реально уйдёт в сети.
	lamports := fees.ToLamports(claimable)
	amount := fees.FromLamports(lamports)
	if !s.calc.AboveDust(amount) {
		return nil, domain.NoFeesAvailableError(fmt.Sprintf(
			"claimable amount %s SOL does not exceed the %s SOL minimum", amount, s.calc.MinClaim()))
	}
	attempt := &domain.ClaimAttempt{
		TokenMint:       mint,
		ClaimantWallet:  claimant.String(),
		UserID:          caller.UserID,
		RequestedAmount: amount,
		ClaimedAtQuote:  token.TotalFeesClaimed,
		Status:          domain.StatusQuoted,
		ExpiresAt:       s.now().Add(s.policy.QuoteTTL),
	}
	if err := s.reserved.reserveClaim(attempt, balance, s.policy.SafetyBuffer); err != nil {
		return nil, err
	}

	encoded, custodySig, err := s.buildClaimTransaction(ctx, mint, claimant, lamports)
	if err != nil {
		s.reserved.releaseClaim(mint)
		return nil, err
	}
	s.reserved.setClaimTransaction(mint, encoded, custodySig.String())
	log.Debug("Claim transaction built",
		zap.Uint64("lamports", lamports),
		zap.String("custody_signature", custodySig.String()))

	return &ClaimQuote{
		TokenMint:        mint,
		ClaimantWallet:   claimant.String(),
		Amount:           amount,
		FeesEarned:       earned,
		TotalFeesClaimed: token.TotalFeesClaimed,
		Transaction:      encoded,
		ExpiresAt:        attempt.ExpiresAt,
	}, nil
}

// buildClaimTransaction собирает перевод custody -> claimant, где плательщик
// комиссии – заявитель, и ставит только подпись кастоди. Memo с mint входит
// в подписанное сообщение и привязывает перевод к токену.
func (s *Service) buildClaimTransaction(ctx context.Context, mint string, claimant solana.PublicKey, lamports uint64) (string, solana.Signature, error) {
	blockhash, err := s.chain.GetRecentBlockhash(ctx)
	if err != nil {
		return "", solana.Signature{}, domain.UpstreamServiceError("blockchain rpc", err)
	}

	instructions, err := transaction.PriorityInstructions(s.policy.ClaimPriority)
	if err != nil {
		return "", solana.Signature{}, domain.NewError(domain.KindInternal, "failed to build priority instructions", err)
	}
	instructions = append(instructions,
		system.NewTransferInstruction(lamports, s.signer.PublicIdentity(), claimant).Build(),
		transaction.MemoInstruction(claimMemoPrefix+mint))

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(claimant))
	if err != nil {
		return "", solana.Signature{}, domain.NewError(domain.KindInternal, "failed to build claim transaction", err)
	}
	sig, err := s.signer.PartialSign(tx)
	if err != nil {
		return "", solana.Signature{}, domain.NewError(domain.KindInternal, "failed to sign claim transaction", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", solana.Signature{}, domain.NewError(domain.KindInternal, "failed to encode claim transaction", err)
	}
	return base64.StdEncoding.EncodeToString(raw), sig, nil
}

// ConfirmClaim проверяет транзакцию вывода в сети и зачитывает её в леджер.
// Повторный вызов с той же подписью возвращает уже сохранённый результат.
func (s *Service) ConfirmClaim(ctx context.Context, caller Caller, mint, signature string) (*ClaimResult, error) {
	log := logger.WithTransaction(logger.WithToken(logger.WithOperation(s.logger, "claim_confirm"), mint), signature)

	result, err := s.confirmClaim(ctx, caller, mint, signature, log)
	if err != nil {
		s.metrics.RecordClaim("confirm", string(domain.KindOf(err)))
		log.Info("Claim confirmation failed", zap.Error(err))
		return nil, err
	}
	if result.AlreadySettled {
		s.metrics.RecordClaim("confirm", "duplicate")
	} else {
		s.metrics.RecordClaim("confirm", "settled")
		s.metrics.RecordClaimedAmount(result.Amount)
	}
	log.Info("Claim settled",
		zap.String("amount", result.Amount.String()),
		zap.String("total_claimed", result.TotalFeesClaimed.String()),
		zap.Bool("already_settled", result.AlreadySettled))
	return result, nil
}

func (s *Service) confirmClaim(ctx context.Context, caller Caller, mint, signature string, log *zap.Logger) (*ClaimResult, error) {
	sig, err := parseSignature(signature)
	if err != nil {
		return nil, err
	}
	token, err := s.loadToken(ctx, mint)
	if err != nil {
		return nil, err
	}

	if settled, err := s.store.GetSettlement(ctx, sig.String()); err == nil {
		return s.settledResult(ctx, mint, settled, false)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(domain.KindInternal, "failed to look up settlement", err)
	}

	if !token.IsCustodial {
		return nil, domain.NotCustodialError(mint)
	}

	var (
		info     *blockchain.TransactionInfo
		snapshot domain.FeeSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.chain.GetTransaction(gctx, sig)
		if err != nil {
			return domain.UnconfirmedTransactionError(sig.String(), err)
		}
		return nil
	})
	g.Go(func() error {
		snapshot = s.CalculateTokenFees(gctx, mint)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if info == nil {
		return nil, domain.UnconfirmedTransactionError(sig.String(), nil)
	}
	pending, hasPending := s.reserved.pendingClaim(mint)
	if info.Failed() {
		// Неудачная транзакция сожгла blockhash, котировка больше не пригодна.
		if hasPending && quoteMatches(pending, info.Transaction) {
			s.reserved.releaseClaim(mint)
		}
		return nil, domain.UnconfirmedTransactionError(sig.String(), fmt.Errorf("%w: %v", blockchain.ErrTransactionFailed, info.Err))
	}
	if !claimBoundTo(info.Transaction, mint) {
		return nil, domain.InvalidRequestError("transaction "+sig.String()+" is not a claim for "+mint, nil)
	}
	if hasPending && !quoteMatches(pending, info.Transaction) {
		return nil, domain.InvalidRequestError("transaction "+sig.String()+" does not belong to the pending claim for "+mint, nil)
	}

	claimant := feePayer(info.Transaction)
	lamports, err := transaction.TransferredLamports(info.Transaction, s.signer.PublicIdentity(), claimant)
	if err != nil {
		return nil, domain.InvalidRequestError("claim transaction could not be decoded", err)
	}
	if lamports == 0 {
		return nil, domain.InvalidRequestError("transaction "+sig.String()+" does not release custody funds", nil)
	}

	userID := caller.UserID
	if hasPending && pending.UserID != "" {
		userID = pending.UserID
	}
	amount := fees.FromLamports(lamports)
	settledAt := s.now()
	if info.BlockTime != nil {
		settledAt = info.BlockTime.UTC()
	}

	// С этого момента средства уже ушли: любая ошибка – расхождение леджера.
	defer s.reserved.releaseClaim(mint)

	settlement, created, err := s.settle(ctx, models.SettleParams{
		Signature:      sig.String(),
		TokenMint:      mint,
		Amount:         amount,
		ObservedEarned: snapshot.FeesEarned,
		ClaimantWallet: claimant.String(),
		UserID:         userID,
		Slot:           info.Slot,
		SettledAt:      settledAt,
	}, log)
	if err != nil {
		kind := models.ReconcileSettlementFailed
		if errors.Is(err, storage.ErrExceedsEarned) {
			kind = models.ReconcileOverClaim
		}
		s.reconciler.Record(ctx, &models.Reconciliation{
			Kind:           kind,
			TokenMint:      mint,
			RepoIdentifier: token.RepoIdentifier,
			Signature:      sig.String(),
			Amount:         amount,
			Details: fmt.Sprintf("claimant=%s user=%s observed_earned=%s: %v",
				claimant, userID, snapshot.FeesEarned, err),
		})
		return nil, domain.SettlementFailedError("transfer "+sig.String()+" confirmed but the ledger could not be updated", err)
	}
	return s.settledResult(ctx, mint, settlement, created)
}

// settle повторяет зачёт при конфликте: totalFeesClaimed перечитывается, а
// сумма остаётся той, что реально ушла в сети.
func (s *Service) settle(ctx context.Context, params models.SettleParams, log *zap.Logger) (*models.ClaimSettlement, bool, error) {
	type outcome struct {
		settlement *models.ClaimSettlement
		created    bool
	}
	operation := func() (outcome, error) {
		current, err := s.store.GetTokenByMint(ctx, params.TokenMint)
		if err != nil {
			return outcome{}, err
		}
		params.ExpectedClaimed = current.TotalFeesClaimed
		settlement, created, err := s.store.SettleClaim(ctx, params)
		switch {
		case err == nil:
			return outcome{settlement, created}, nil
		case errors.Is(err, storage.ErrConflict):
			log.Warn("Settlement conflict, retrying", zap.String("expected_claimed", params.ExpectedClaimed.String()))
			return outcome{}, err
		case errors.Is(err, storage.ErrExceedsEarned), errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrNotFound):
			return outcome{}, backoff.Permanent(err)
		default:
			log.Warn("Settlement write failed, retrying", zap.Error(err))
			return outcome{}, err
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = time.Second
	// Зачёт должен пережить отмену запроса клиентом.
	res, err := backoff.Retry(context.WithoutCancel(ctx), operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(settleMaxTries))
	if err != nil {
		return nil, false, err
	}
	return res.settlement, res.created, nil
}

func (s *Service) settledResult(ctx context.Context, mint string, settlement *models.ClaimSettlement, created bool) (*ClaimResult, error) {
	if settlement.TokenMint != mint {
		return nil, domain.InvalidRequestError("transaction "+settlement.Signature+" was settled for another token", nil)
	}
	token, err := s.store.GetTokenByMint(ctx, mint)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to reload token", err)
	}
	return &ClaimResult{
		TokenMint:        mint,
		Signature:        settlement.Signature,
		Amount:           settlement.Amount,
		TotalFeesEarned:  token.TotalFeesEarned,
		TotalFeesClaimed: token.TotalFeesClaimed,
		ClaimableAmount:  token.Claimable(),
		Status:           domain.StatusConfirmed,
		AlreadySettled:   !created,
	}, nil
}

// quoteMatches сообщает, содержит ли транзакция подпись кастоди из котировки.
func quoteMatches(attempt *domain.ClaimAttempt, tx *solana.Transaction) bool {
	if attempt.CustodySignature == "" || tx == nil {
		return true
	}
	for _, sig := range tx.Signatures {
		if sig.String() == attempt.CustodySignature {
			return true
		}
	}
	return false
}

// claimBoundTo сообщает, выдана ли транзакция вывода для этого mint.
func claimBoundTo(tx *solana.Transaction, mint string) bool {
	for _, memo := range transaction.Memos(tx) {
		if memo == claimMemoPrefix+mint {
			return true
		}
	}
	return false
}

func feePayer(tx *solana.Transaction) solana.PublicKey {
	if tx == nil || len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}
	}
	return tx.Message.AccountKeys[0]
}

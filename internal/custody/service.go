// internal/custody/service.go
package custody

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/gitup-custody/internal/dex/pumpfun"
	"github.com/rovshanmuradov/gitup-custody/internal/domain"
	"github.com/rovshanmuradov/gitup-custody/internal/fees"
	"github.com/rovshanmuradov/gitup-custody/internal/oracle"
	"github.com/rovshanmuradov/gitup-custody/internal/ownership"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
)

// Signer – кастодиальный ключ. Сырой ключ наружу не отдаётся.
type Signer interface {
	PublicIdentity() solana.PublicKey
	SignTransaction(tx *solana.Transaction, extra ...solana.PrivateKey) error
	PartialSign(tx *solana.Transaction) (solana.Signature, error)
}

// VolumeOracle – источник объёма торгов, никогда не возвращает ошибку.
type VolumeOracle interface {
	GetVolume(ctx context.Context, mint string) oracle.Volume
}

// Launcher строит неподписанную create-транзакцию.
type Launcher interface {
	CreateTransaction(ctx context.Context, req pumpfun.CreateRequest) (*solana.Transaction, error)
}

// Sender отправляет подписанную транзакцию и ждёт подтверждения.
type Sender interface {
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (*transaction.Status, error)
}

// Policy – константы политики кастоди. Все суммы в SOL.
type Policy struct {
	FeeRate          decimal.Decimal
	MinClaim         decimal.Decimal
	SafetyBuffer     decimal.Decimal
	PaymentTolerance decimal.Decimal
	DeploymentCost   decimal.Decimal
	InitialBuy       decimal.Decimal
	QuoteTTL         time.Duration
	ClaimPriority    transaction.PriorityLevel
}

// RequiredPayment – сумма, которую должен перевести заказчик кастодиального деплоя.
func (p Policy) RequiredPayment() decimal.Decimal {
	return p.DeploymentCost.Add(p.InitialBuy)
}

// Deps – внешние зависимости сервиса.
type Deps struct {
	Signer     Signer
	Chain      blockchain.Client
	Sender     Sender
	Oracle     VolumeOracle
	Verifier   ownership.Verifier
	Launcher   Launcher
	Store      storage.Storage
	Reconciler *Reconciler
	Metrics    *metrics.Collector
}

// Caller – аутентифицированный пользователь и его токен хостинга репозиториев.
type Caller struct {
	UserID      string
	Provider    string
	AccessToken string
}

// Service объединяет оркестраторы деплоя и вывода комиссий.
type Service struct {
	signer     Signer
	chain      blockchain.Client
	sender     Sender
	oracle     VolumeOracle
	verifier   ownership.Verifier
	launcher   Launcher
	store      storage.Storage
	reconciler *Reconciler
	metrics    *metrics.Collector
	calc       *fees.Calculator
	policy     Policy
	reserved   *reservations
	repoLocks  *keyedLocks
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(deps Deps, policy Policy, logger *zap.Logger) *Service {
	if policy.ClaimPriority == "" {
		policy.ClaimPriority = transaction.PriorityLow
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	logger = logger.Named("custody")
	if deps.Reconciler == nil {
		deps.Reconciler = NewReconciler(deps.Store, "", deps.Metrics, logger)
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Service{
		signer:     deps.Signer,
		chain:      deps.Chain,
		sender:     deps.Sender,
		oracle:     deps.Oracle,
		verifier:   deps.Verifier,
		launcher:   deps.Launcher,
		store:      deps.Store,
		reconciler: deps.Reconciler,
		metrics:    deps.Metrics,
		calc:       fees.NewCalculator(policy.FeeRate, policy.MinClaim),
		policy:     policy,
		reserved:   newReservations(now),
		repoLocks:  newKeyedLocks(),
		logger:     logger,
		now:        now,
	}
}

// CustodyInfo – публичные реквизиты кастоди для предварительной оплаты деплоя.
type CustodyInfo struct {
	Address         string          `json:"address"`
	DeploymentCost  decimal.Decimal `json:"deploymentCost"`
	InitialBuy      decimal.Decimal `json:"initialBuy"`
	RequiredPayment decimal.Decimal `json:"requiredPayment"`
	MinClaim        decimal.Decimal `json:"minClaim"`
}

func (s *Service) CustodyInfo() CustodyInfo {
	return CustodyInfo{
		Address:         s.signer.PublicIdentity().String(),
		DeploymentCost:  s.policy.DeploymentCost,
		InitialBuy:      s.policy.InitialBuy,
		RequiredPayment: s.policy.RequiredPayment(),
		MinClaim:        s.policy.MinClaim,
	}
}

// custodyBalance читает баланс кастодиального кошелька в SOL.
func (s *Service) custodyBalance(ctx context.Context) (decimal.Decimal, error) {
	lamports, err := s.chain.GetBalance(ctx, s.signer.PublicIdentity(), solanarpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, domain.UpstreamServiceError("blockchain rpc", err)
	}
	balance := fees.FromLamports(lamports)
	s.metrics.SetCustodyBalance(balance)
	return balance, nil
}

// verifyAccess проверяет, что вызывающий – владелец или администратор репозитория.
func (s *Service) verifyAccess(ctx context.Context, caller Caller, provider, repoFullName string) (ownership.Result, error) {
	if caller.Provider != "" && provider != "" && caller.Provider != provider {
		return ownership.Result{}, domain.AuthorizationError("signed in with "+caller.Provider+" but the repository is hosted on "+provider, nil)
	}
	res, err := s.verifier.Verify(ctx, provider, repoFullName, caller.AccessToken)
	if err != nil {
		return ownership.Result{}, err
	}
	return res, nil
}

func parsePublicKey(field, value string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, domain.InvalidRequestError("invalid "+field, err)
	}
	return pk, nil
}

func parseSignature(value string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(value)
	if err != nil {
		return solana.Signature{}, domain.InvalidRequestError("invalid transaction signature", err)
	}
	return sig, nil
}

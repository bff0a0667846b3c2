// internal/custody/deploy.go
package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
	"github.com/rovshanmuradov/gitup-custody/internal/dex/pumpfun"
	"github.com/rovshanmuradov/gitup-custody/internal/domain"
	"github.com/rovshanmuradov/gitup-custody/internal/ownership"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/logger"
)

// Режимы деплоя.
const (
	ModeOwner     = "owner"
	ModeCustodial = "custodial"
	ModeDirect    = "direct"
	// ModeUnknown – запрос отклонён до выбора пути.
	ModeUnknown = "unknown"
)

// Repository идентифицирует репозиторий на хостинге.
type Repository struct {
	Identifier string `json:"repoIdentifier"`
	FullName   string `json:"repoFullName"`
	Provider   string `json:"provider"`
}

// DeployRequest – запрос на токенизацию репозитория.
type DeployRequest struct {
	Repository
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	MetadataURI      string `json:"metadataUri"`
	PaymentSignature string `json:"paymentSignature,omitempty"`
	PayerWallet      string `json:"payerWallet,omitempty"`
}

// DeployResult – итог деплоя. Для владельца содержит только MetadataURI:
// запуск продолжается на клиенте его собственным кошельком.
type DeployResult struct {
	Mode        string `json:"mode"`
	MetadataURI string `json:"metadataUri"`
	TokenMint   string `json:"tokenMint,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// DirectRequest регистрирует токен, запущенный владельцем самостоятельно.
type DirectRequest struct {
	Repository
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	MetadataURI       string `json:"metadataUri"`
	CreationSignature string `json:"creationSignature"`
}

// canonical приводит репозиторий к виду, по которому проверяется
// уникальность: "provider:owner/name" в нижнем регистре. Идентификатор
// клиента необязателен, но если передан, должен совпадать с полным именем.
func (r Repository) canonical() (Repository, error) {
	provider := strings.ToLower(strings.TrimSpace(r.Provider))
	if provider == "" {
		provider = ownership.ProviderGitHub
	}
	if provider != ownership.ProviderGitHub && provider != ownership.ProviderGitLab {
		return Repository{}, domain.InvalidRequestError("unsupported repository provider "+r.Provider, nil)
	}

	fullName := strings.Trim(strings.TrimSpace(r.FullName), "/")
	fullName = strings.TrimSuffix(fullName, ".git")
	parts := strings.Split(fullName, "/")
	if len(parts) < 2 || (provider == ownership.ProviderGitHub && len(parts) != 2) {
		return Repository{}, domain.InvalidRequestError("repository full name must look like owner/name", nil)
	}
	for _, part := range parts {
		if part == "" || strings.ContainsAny(part, " \t\n:") {
			return Repository{}, domain.InvalidRequestError("invalid repository full name "+r.FullName, nil)
		}
	}

	identifier := provider + ":" + strings.ToLower(fullName)
	if given := strings.ToLower(strings.TrimSpace(r.Identifier)); given != "" && given != identifier {
		return Repository{}, domain.InvalidRequestError(
			fmt.Sprintf("repository identifier %q does not match %s", r.Identifier, identifier), nil)
	}
	return Repository{Identifier: identifier, FullName: fullName, Provider: provider}, nil
}

func (r DeployRequest) validate() (Repository, error) {
	if r.Name == "" || r.Symbol == "" || r.MetadataURI == "" {
		return Repository{}, domain.InvalidRequestError("name, symbol and metadata URI are required", nil)
	}
	return r.Repository.canonical()
}

// Deploy – оркестратор деплоя. Проверенный владелец получает MetadataURI и
// запускает токен сам. Остальные платят кастоди, и токен создаёт
// кастодиальный ключ.
func (s *Service) Deploy(ctx context.Context, caller Caller, req DeployRequest) (*DeployResult, error) {
	log := logger.WithOperation(s.logger, "deploy").With(zap.String("repo", req.FullName))

	mode := ModeUnknown
	res, err := s.deploy(ctx, caller, req, &mode, log)
	if err != nil {
		s.metrics.RecordDeployment(mode, string(domain.KindOf(err)))
		log.Info("Deployment rejected", zap.String("mode", mode), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordDeployment(res.Mode, "ok")
	log.Info("Deployment finished", zap.String("mode", res.Mode), zap.String("token_mint", res.TokenMint))
	return res, nil
}

// deploy записывает в mode путь, до которого дошёл запрос.
func (s *Service) deploy(ctx context.Context, caller Caller, req DeployRequest, mode *string, log *zap.Logger) (*DeployResult, error) {
	repo, err := req.validate()
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("repo_identifier", repo.Identifier))

	unlock, ok := s.repoLocks.tryLock(repo.Identifier)
	if !ok {
		return nil, domain.NewError(domain.KindAlreadyTokenized,
			"a deployment for repository "+repo.FullName+" is already in progress", nil)
	}
	defer unlock()

	if err := s.ensureNotTokenized(ctx, repo); err != nil {
		return nil, err
	}

	// Сбой проверки прав на этом пути означает "не владелец": такой
	// пользователь всё равно может задеплоить через кастоди.
	access, err := s.verifyAccess(ctx, caller, repo.Provider, repo.FullName)
	if domain.IsKind(err, domain.KindInvalidRequest) {
		return nil, err
	}
	if err != nil {
		log.Warn("Ownership verification failed, falling back to custodial deployment", zap.Error(err))
	} else if access.Allowed() {
		*mode = ModeOwner
		return &DeployResult{Mode: ModeOwner, MetadataURI: req.MetadataURI}, nil
	}
	*mode = ModeCustodial

	required := s.policy.RequiredPayment()
	if req.PaymentSignature == "" {
		return nil, domain.PaymentRequiredError(fmt.Sprintf(
			"send %s SOL to %s and resubmit with the payment signature", required, s.signer.PublicIdentity()))
	}
	paymentSig, err := parseSignature(req.PaymentSignature)
	if err != nil {
		return nil, err
	}
	payer, err := parsePublicKey("payer wallet", req.PayerWallet)
	if err != nil {
		return nil, err
	}
	paid, err := s.verifyPayment(ctx, paymentSig, payer, required)
	if err != nil {
		return nil, err
	}
	if err := s.claimPayment(ctx, paymentSig, payer, paid, repo); err != nil {
		return nil, err
	}
	// Оплата освобождается, только если create-транзакция точно не попала в сеть.
	keepPayment := false
	defer func() {
		if !keepPayment {
			s.releasePayment(ctx, paymentSig, log)
		}
	}()
	log.Info("Deployment payment verified",
		zap.String("payment_signature", paymentSig.String()),
		zap.Uint64("lamports", paid))

	release := s.reserved.reserveDeploy(required)
	defer release()

	mint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to generate mint keypair", err)
	}
	tx, err := s.launcher.CreateTransaction(ctx, pumpfun.CreateRequest{
		Signer: s.signer.PublicIdentity(),
		Mint:   mint.PublicKey(),
		Metadata: pumpfun.TokenMetadata{
			Name:   req.Name,
			Symbol: req.Symbol,
			URI:    req.MetadataURI,
		},
		InitialBuyAmount: s.policy.InitialBuy.InexactFloat64(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.signer.SignTransaction(tx, mint); err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to sign creation transaction", err)
	}

	keepPayment = true
	status, err := s.sender.SendAndConfirm(ctx, tx)
	if err != nil {
		if errors.Is(err, blockchain.ErrTransactionFailed) {
			keepPayment = false
			return nil, domain.NewError(domain.KindUpstream, "creation transaction failed on-chain", err)
		}
		// Отправка не удалась или подтверждения нет: транзакция ещё может
		// попасть в блок, поэтому оплата остаётся занятой до решения оператора.
		signature := tx.Signatures[0]
		if status != nil {
			signature = status.Signature
		}
		s.reconciler.Record(ctx, &models.Reconciliation{
			Kind:           models.ReconcileUntrackedDeployment,
			TokenMint:      mint.PublicKey().String(),
			RepoIdentifier: repo.Identifier,
			Signature:      signature.String(),
			Amount:         required,
			Details:        fmt.Sprintf("creation unconfirmed, payment %s from %s: %v", paymentSig, payer, err),
		})
		if status == nil {
			return nil, domain.UpstreamServiceError("blockchain rpc", err)
		}
		return nil, domain.UnconfirmedTransactionError(status.Signature.String(), err)
	}

	paymentKey := paymentSig.String()
	record := &models.TokenRecord{
		TokenMint:         mint.PublicKey().String(),
		RepoIdentifier:    repo.Identifier,
		RepoFullName:      repo.FullName,
		RepoProvider:      repo.Provider,
		Name:              req.Name,
		Symbol:            req.Symbol,
		MetadataURI:       req.MetadataURI,
		IsCustodial:       true,
		DeployerWallet:    s.signer.PublicIdentity().String(),
		CreationSignature: status.Signature.String(),
		PaymentSignature:  &paymentKey,
	}
	if err := s.recordToken(ctx, record, repo); err != nil {
		return nil, err
	}

	return &DeployResult{
		Mode:        ModeCustodial,
		MetadataURI: req.MetadataURI,
		TokenMint:   record.TokenMint,
		Signature:   record.CreationSignature,
	}, nil
}

// RegisterDirect записывает токен, запущенный проверенным владельцем со своего
// кошелька. Такой токен никогда не проходит через кастоди.
func (s *Service) RegisterDirect(ctx context.Context, caller Caller, mint string, req DirectRequest) (*DeployResult, error) {
	res, err := s.registerDirect(ctx, caller, mint, req)
	if err != nil {
		s.metrics.RecordDeployment(ModeDirect, string(domain.KindOf(err)))
		return nil, err
	}
	s.metrics.RecordDeployment(ModeDirect, "ok")
	logger.WithToken(s.logger, mint).Info("Direct launch registered", zap.String("repo", req.FullName))
	return res, nil
}

func (s *Service) registerDirect(ctx context.Context, caller Caller, mint string, req DirectRequest) (*DeployResult, error) {
	repo, err := req.Repository.canonical()
	if err != nil {
		return nil, err
	}
	mintKey, err := parsePublicKey("token mint", mint)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature(req.CreationSignature)
	if err != nil {
		return nil, err
	}

	access, err := s.verifyAccess(ctx, caller, repo.Provider, repo.FullName)
	if err != nil {
		return nil, err
	}
	if !access.Allowed() {
		return nil, domain.AuthorizationError("only the owner or an admin of "+repo.FullName+" can register a direct launch", nil)
	}

	unlock, ok := s.repoLocks.tryLock(repo.Identifier)
	if !ok {
		return nil, domain.NewError(domain.KindAlreadyTokenized,
			"a deployment for repository "+repo.FullName+" is already in progress", nil)
	}
	defer unlock()

	if err := s.ensureNotTokenized(ctx, repo); err != nil {
		return nil, err
	}

	info, err := s.chain.GetTransaction(ctx, sig)
	if err != nil {
		return nil, domain.UpstreamServiceError("blockchain rpc", err)
	}
	if info == nil || info.Failed() {
		return nil, domain.UnconfirmedTransactionError(sig.String(), nil)
	}
	if !pumpfun.IsCreateTransaction(info.Transaction, mintKey) {
		return nil, domain.InvalidRequestError("transaction "+sig.String()+" does not create token "+mint, nil)
	}

	record := &models.TokenRecord{
		TokenMint:         mintKey.String(),
		RepoIdentifier:    repo.Identifier,
		RepoFullName:      repo.FullName,
		RepoProvider:      repo.Provider,
		Name:              req.Name,
		Symbol:            req.Symbol,
		MetadataURI:       req.MetadataURI,
		IsCustodial:       false,
		DeployerWallet:    feePayer(info.Transaction).String(),
		CreationSignature: sig.String(),
	}
	if err := s.store.CreateToken(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, domain.AlreadyTokenizedError(repo.FullName)
		}
		return nil, domain.NewError(domain.KindInternal, "failed to record token", err)
	}
	return &DeployResult{
		Mode:        ModeDirect,
		MetadataURI: req.MetadataURI,
		TokenMint:   record.TokenMint,
		Signature:   record.CreationSignature,
	}, nil
}

// ensureNotTokenized – быстрая проверка. Авторитетна уникальность в хранилище.
func (s *Service) ensureNotTokenized(ctx context.Context, repo Repository) error {
	_, err := s.store.GetTokenByRepo(ctx, repo.Identifier)
	switch {
	case err == nil:
		return domain.AlreadyTokenizedError(repo.FullName)
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return domain.NewError(domain.KindInternal, "failed to look up repository", err)
	}
}

// recordToken сохраняет запись после подтверждённого деплоя. Токен уже в
// сети, поэтому любая ошибка записи уходит в очередь расхождений.
func (s *Service) recordToken(ctx context.Context, record *models.TokenRecord, repo Repository) error {
	err := s.store.CreateToken(context.WithoutCancel(ctx), record)
	if err == nil {
		return nil
	}
	s.reconciler.Record(ctx, &models.Reconciliation{
		Kind:           models.ReconcileUntrackedDeployment,
		TokenMint:      record.TokenMint,
		RepoIdentifier: repo.Identifier,
		Signature:      record.CreationSignature,
		Amount:         s.policy.RequiredPayment(),
		Details:        fmt.Sprintf("token deployed but not recorded: %v", err),
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return domain.AlreadyTokenizedError(repo.FullName)
	}
	return domain.SettlementFailedError("token "+record.TokenMint+" deployed but could not be recorded", err)
}

package custody

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/blockchaintest"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/gitup-custody/internal/dex/pumpfun"
	"github.com/rovshanmuradov/gitup-custody/internal/oracle"
	"github.com/rovshanmuradov/gitup-custody/internal/ownership"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/memory"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
	"github.com/rovshanmuradov/gitup-custody/internal/wallet"
)

const solLamports = 1_000_000_000

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeOracle struct {
	mu      sync.Mutex
	volumes map[string]decimal.Decimal
}

func (f *fakeOracle) set(mint, volume string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[mint] = dec(volume)
}

// GetVolume ведёт себя как недоступный оракул для неизвестных токенов.
func (f *fakeOracle) GetVolume(_ context.Context, mint string) oracle.Volume {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[mint]
	if !ok {
		return oracle.Volume{TotalVolume: decimal.Zero}
	}
	now := time.Now()
	return oracle.Volume{TotalVolume: v, LastTradeAt: &now}
}

type fakeVerifier struct {
	mu     sync.Mutex
	result ownership.Result
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(context.Context, string, string, string) (ownership.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeVerifier) allow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = ownership.Result{IsOwner: true}, nil
}

// fakeLauncher строит create-транзакцию pump.fun, которую должны подписать signer и mint.
// Если задан hold, вызов сообщает в entered и ждёт закрытия hold.
type fakeLauncher struct {
	mu      sync.Mutex
	calls   int
	err     error
	entered chan struct{}
	hold    chan struct{}
}

func (f *fakeLauncher) CreateTransaction(_ context.Context, req pumpfun.CreateRequest) (*solana.Transaction, error) {
	f.mu.Lock()
	f.calls++
	err, entered, hold := f.err, f.entered, f.hold
	f.mu.Unlock()
	if hold != nil {
		entered <- struct{}{}
		<-hold
	}
	if err != nil {
		return nil, err
	}
	return createTransaction(req.Signer, req.Mint)
}

func createTransaction(signer, mint solana.PublicKey) (*solana.Transaction, error) {
	ix := solana.NewInstruction(pumpfun.PumpFunProgramID, solana.AccountMetaSlice{
		solana.Meta(mint).WRITE().SIGNER(),
		solana.Meta(signer).WRITE().SIGNER(),
	}, []byte{0x18, 0x1e, 0xc8, 0x28, 0x05, 0x1c, 0x07, 0x77})
	return solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{7, 7}, solana.TransactionPayer(signer))
}

type harness struct {
	svc      *Service
	chain    *blockchaintest.FakeClient
	store    storage.Storage
	custody  *wallet.Wallet
	oracle   *fakeOracle
	verifier *fakeVerifier
	launcher *fakeLauncher
	metrics  *metrics.Collector
	caller   Caller

	mu  sync.Mutex
	now time.Time
}

func testPolicy() Policy {
	return Policy{
		FeeRate:          dec("0.005"),
		MinClaim:         dec("0.0001"),
		SafetyBuffer:     dec("1.0"),
		PaymentTolerance: dec("0.95"),
		DeploymentCost:   dec("0.05"),
		InitialBuy:       decimal.Zero,
		QuoteTTL:         90 * time.Second,
		ClaimPriority:    transaction.PriorityLow,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	custody, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	chain := blockchaintest.NewFakeClient()
	chain.SetBalance(custody.PublicKey, 10*solLamports)

	h := &harness{
		chain:    chain,
		store:    memory.NewStorage(),
		custody:  custody,
		oracle:   &fakeOracle{volumes: make(map[string]decimal.Decimal)},
		verifier: &fakeVerifier{},
		launcher: &fakeLauncher{},
		metrics:  metrics.NewCollector(),
		caller:   Caller{UserID: "user-1", Provider: ownership.ProviderGitHub, AccessToken: "gho_token"},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(Deps{
		Signer: custody,
		Chain:  chain,
		Sender: transaction.NewManager(chain, logger, transaction.Config{
			MaxRetries:       2,
			RetryDelay:       time.Millisecond,
			ConfirmationTime: time.Second,
		}, nil),
		Oracle:   h.oracle,
		Verifier: h.verifier,
		Launcher: h.launcher,
		Store:    h.store,
		Metrics:  h.metrics,
	}, testPolicy(), logger)

	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.svc.now = clock
	h.svc.reserved.now = clock
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) seedToken(t *testing.T, earned, claimed string, custodial bool) *models.TokenRecord {
	t.Helper()
	mint := solana.NewWallet().PublicKey().String()
	rec := &models.TokenRecord{
		TokenMint:        mint,
		RepoIdentifier:   "github:" + mint,
		RepoFullName:     "octo/widget",
		RepoProvider:     ownership.ProviderGitHub,
		IsCustodial:      custodial,
		TotalFeesEarned:  dec(earned),
		TotalFeesClaimed: dec(claimed),
	}
	require.NoError(t, h.store.CreateToken(context.Background(), rec))
	return rec
}

func (h *harness) token(t *testing.T, mint string) *models.TokenRecord {
	t.Helper()
	rec, err := h.store.GetTokenByMint(context.Background(), mint)
	require.NoError(t, err)
	return rec
}

// signAsClaimant декодирует котировку, ставит подпись плательщика и публикует транзакцию в сети.
func (h *harness) signAsClaimant(t *testing.T, encoded string, claimant solana.PrivateKey) solana.Signature {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sig, err := claimant.Sign(msg)
	require.NoError(t, err)
	tx.Signatures[0] = sig
	require.NoError(t, tx.VerifySignatures())

	return h.chain.AddTransaction(tx, nil)
}

// pay публикует перевод payer -> custody.
func (h *harness) pay(t *testing.T, payer solana.PrivateKey, lamports uint64) solana.Signature {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, payer.PublicKey(), h.custody.PublicKey).Build()},
		solana.Hash{5, 5},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)
	return h.chain.AddTransaction(tx, nil)
}

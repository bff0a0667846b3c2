// internal/server/runner.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/api"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc"
	"github.com/rovshanmuradov/gitup-custody/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/gitup-custody/internal/config"
	"github.com/rovshanmuradov/gitup-custody/internal/custody"
	"github.com/rovshanmuradov/gitup-custody/internal/dex/pumpfun"
	"github.com/rovshanmuradov/gitup-custody/internal/oracle"
	"github.com/rovshanmuradov/gitup-custody/internal/ownership"
	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/memory"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/postgres"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
	"github.com/rovshanmuradov/gitup-custody/internal/wallet"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	collector  *metrics.Collector
	store      storage.Storage
	service    *custody.Service
	httpServer *http.Server
	shutdown   *ShutdownHandler
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		logger:   logger,
		shutdown: NewShutdownHandler(logger, shutdownTimeout),
	}
}

// InitializeWithConfig собирает все зависимости сервиса из загруженного конфига.
func (r *Runner) InitializeWithConfig(cfg *config.Config) error {
	r.config = cfg

	signer, err := wallet.LoadCustodialSigner(cfg.CustodialPrivateKey)
	if err != nil {
		return err
	}
	r.logger.Info("🔑 Custodial wallet loaded", zap.String("address", signer.PublicIdentity().String()))

	policy, err := PolicyFromConfig(cfg)
	if err != nil {
		return err
	}

	r.collector = metrics.NewCollector()

	client, err := solbc.NewClient(cfg.RPCList, cfg.ConfirmTimeout, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create blockchain client: %w", err)
	}

	sender := transaction.NewManager(client, r.logger, transaction.Config{
		MaxRetries:       cfg.Retries,
		ConfirmationTime: cfg.ConfirmTimeout,
		Commitment:       rpc.CommitmentConfirmed,
	}, transaction.NewMetrics(r.collector.Registry()))

	store, err := OpenStorage(cfg.PostgresURL, r.logger)
	if err != nil {
		return err
	}
	r.store = store
	r.shutdown.Add("storage", store)

	reconciler := custody.NewReconciler(store, cfg.WebhookURL, r.collector, r.logger)

	r.service = custody.NewService(custody.Deps{
		Signer: signer,
		Chain:  client,
		Sender: sender,
		Oracle: oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.Timeout, cfg.Oracle.TradesLimit, r.logger,
			oracle.WithFailureCounter(r.collector.OracleFailures())),
		Verifier:   ownership.NewHTTPVerifier(cfg.GitHubAPIURL, cfg.GitLabAPIURL, r.logger),
		Launcher:   pumpfun.NewLaunchClient(cfg.Launch.APIURL, cfg.Launch.Slippage, cfg.Launch.PriorityFee, r.logger),
		Store:      store,
		Reconciler: reconciler,
		Metrics:    r.collector,
	}, policy, r.logger)

	router := api.NewRouter(api.NewHandler(r.service, r.logger), cfg.JWTSecret, cfg.AllowedOrigins, r.collector, r.logger)
	r.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	r.shutdown.AddFunc("http", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return r.httpServer.Shutdown(ctx)
	})

	r.logger.Info("✅ Custody service initialized",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Bool("postgres", cfg.PostgresURL != ""),
		zap.String("required_payment", policy.RequiredPayment().String()))
	return nil
}

// Run слушает HTTP до сигнала или отмены контекста, затем останавливает сервисы.
func (r *Runner) Run(ctx context.Context) error {
	if r.httpServer == nil {
		return errors.New("runner is not initialized")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("🚀 HTTP server listening", zap.String("addr", r.httpServer.Addr))
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		r.logger.Info("📡 Shutdown requested")
	case serveErr = <-errCh:
	}

	if err := r.shutdown.Shutdown(context.Background()); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Sync сбрасывает буферы логгера, игнорируя известные ошибки stdout/stderr.
func (r *Runner) Sync() {
	if err := r.logger.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	}
}

// OpenStorage открывает Postgres и накатывает миграции, без DSN – хранилище в памяти.
func OpenStorage(dsn string, logger *zap.Logger) (storage.Storage, error) {
	if dsn == "" {
		logger.Warn("postgres_url is empty, using in-memory ledger")
		return memory.NewStorage(), nil
	}
	store, err := postgres.NewStorage(dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// PolicyFromConfig переводит секцию policy и initial buy в decimal-политику кастоди.
func PolicyFromConfig(cfg *config.Config) (custody.Policy, error) {
	priority, err := transaction.ParsePriorityLevel(cfg.Policy.ClaimPriority)
	if err != nil {
		return custody.Policy{}, err
	}
	return custody.Policy{
		FeeRate:          cfg.Policy.FeeRateDecimal(),
		MinClaim:         cfg.Policy.MinClaimDecimal(),
		SafetyBuffer:     cfg.Policy.SafetyBufferDecimal(),
		PaymentTolerance: cfg.Policy.PaymentToleranceDecimal(),
		DeploymentCost:   cfg.Policy.DeploymentCostDecimal(),
		InitialBuy:       decimal.NewFromFloat(cfg.Launch.InitialBuyAmount),
		QuoteTTL:         cfg.Policy.QuoteTTL,
		ClaimPriority:    priority,
	}, nil
}

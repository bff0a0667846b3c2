// =============================
// File: internal/dex/pumpfun/launch.go
// =============================
package pumpfun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

const (
	launchServiceName  = "launch"
	defaultHTTPTimeout = 15 * time.Second
	maxTxSize          = 64 * 1024
)

// LaunchClient строит create-транзакции через trade-local API сервиса запуска.
// Возвращаемая транзакция не подписана: подписи ставит вызывающий код.
type LaunchClient struct {
	apiURL      string
	slippage    float64
	priorityFee float64
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewLaunchClient(apiURL string, slippage, priorityFee float64, logger *zap.Logger) *LaunchClient {
	return &LaunchClient{
		apiURL:      apiURL,
		slippage:    slippage,
		priorityFee: priorityFee,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:      logger.Named("pumpfun-launch"),
	}
}

// CreateTransaction запрашивает транзакцию создания токена.
func (c *LaunchClient) CreateTransaction(ctx context.Context, req CreateRequest) (*solana.Transaction, error) {
	if req.Metadata.URI == "" || req.Metadata.Name == "" || req.Metadata.Symbol == "" {
		return nil, domain.InvalidRequestError("token name, symbol and metadata uri are required", nil)
	}

	payload := createPayload{
		PublicKey:        req.Signer.String(),
		Action:           "create",
		TokenMetadata:    req.Metadata,
		Mint:             req.Mint.String(),
		DenominatedInSol: "true",
		Amount:           req.InitialBuyAmount,
		Slippage:         c.slippage,
		PriorityFee:      c.priorityFee,
		Pool:             "pump",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Requesting create transaction",
		zap.String("mint", req.Mint.String()),
		zap.String("signer", req.Signer.String()),
		zap.Float64("initial_buy", req.InitialBuyAmount))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.UpstreamServiceError(launchServiceName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTxSize))
	if err != nil {
		return nil, domain.UpstreamServiceError(launchServiceName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.UpstreamServiceError(launchServiceName,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, domain.UpstreamServiceError(launchServiceName, fmt.Errorf("decode transaction: %w", err))
	}
	if !IsCreateTransaction(tx, req.Mint) {
		return nil, domain.UpstreamServiceError(launchServiceName,
			fmt.Errorf("returned transaction does not create mint %s", req.Mint))
	}
	return tx, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

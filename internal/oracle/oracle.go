// Package oracle читает объём торгов токена из внешнего сервиса рыночных данных.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultTradesLimit = 200
	maxBodySize        = 4 << 20
	lamportsExp        = -9
)

// Volume – агрегированный объём торгов токена в SOL.
type Volume struct {
	TotalVolume decimal.Decimal
	LastTradeAt *time.Time
}

// coinSummary – интересующие нас поля сводки токена.
type coinSummary struct {
	Mint               string           `json:"mint"`
	TotalVolume        *decimal.Decimal `json:"total_volume"`
	LastTradeTimestamp *int64           `json:"last_trade_timestamp"`
}

type trade struct {
	Signature string `json:"signature"`
	SolAmount uint64 `json:"sol_amount"`
	Timestamp int64  `json:"timestamp"`
}

// Client опрашивает сервис рыночных данных. Все ошибки превращаются в нулевой
// объём: результат годится только для отображения, но не для необратимых действий.
type Client struct {
	baseURL     string
	tradesLimit int
	httpClient  *http.Client
	failures    prometheus.Counter
	logger      *zap.Logger
}

type Option func(*Client)

// WithFailureCounter считает запросы, завершившиеся деградацией к нулю.
func WithFailureCounter(c prometheus.Counter) Option {
	return func(cl *Client) { cl.failures = c }
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.httpClient = h }
}

func NewClient(baseURL string, timeout time.Duration, tradesLimit int, logger *zap.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if tradesLimit <= 0 {
		tradesLimit = defaultTradesLimit
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tradesLimit: tradesLimit,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.Named("oracle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetVolume возвращает объём торгов токена. Никогда не возвращает ошибку.
//
// Если сводка не содержит total_volume, объём считается по последним
// tradesLimit сделкам. Это приближение: более старые сделки не учитываются.
func (c *Client) GetVolume(ctx context.Context, mint string) Volume {
	logger := c.logger.With(zap.String("mint", mint))

	var summary coinSummary
	if err := c.getJSON(ctx, "/coins/"+url.PathEscape(mint), nil, &summary); err != nil {
		logger.Warn("Coin summary unavailable, reporting zero volume", zap.Error(err))
		c.fail()
		return Volume{TotalVolume: decimal.Zero}
	}

	var lastTrade *time.Time
	if summary.LastTradeTimestamp != nil && *summary.LastTradeTimestamp > 0 {
		t := time.UnixMilli(*summary.LastTradeTimestamp).UTC()
		lastTrade = &t
	}

	if summary.TotalVolume != nil {
		return Volume{TotalVolume: clampZero(*summary.TotalVolume), LastTradeAt: lastTrade}
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprint(c.tradesLimit))
	query.Set("offset", "0")
	var trades []trade
	if err := c.getJSON(ctx, "/trades/all/"+url.PathEscape(mint), query, &trades); err != nil {
		logger.Warn("Trades unavailable, reporting zero volume", zap.Error(err))
		c.fail()
		return Volume{TotalVolume: decimal.Zero, LastTradeAt: lastTrade}
	}

	total := decimal.Zero
	for _, tr := range trades {
		total = total.Add(decimal.New(int64(tr.SolAmount), lamportsExp))
		if tr.Timestamp > 0 {
			ts := time.Unix(tr.Timestamp, 0).UTC()
			if lastTrade == nil || ts.After(*lastTrade) {
				lastTrade = &ts
			}
		}
	}
	if len(trades) >= c.tradesLimit {
		logger.Debug("Trade page is full, volume is a lower bound", zap.Int("limit", c.tradesLimit))
	}
	return Volume{TotalVolume: total, LastTradeAt: lastTrade}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out)
}

func (c *Client) fail() {
	if c.failures != nil {
		c.failures.Inc()
	}
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

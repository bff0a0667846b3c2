// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	minAttempts = 2
	retryDelay  = 500 * time.Millisecond
	reqTimeout  = 10 * time.Second
)

// RPCClient – пул RPC узлов с переключением по кругу при ошибке
type RPCClient struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	mu      sync.Mutex
	delay   time.Duration
	logger  *zap.Logger
}

func NewClient(urls []string, logger *zap.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &RPCClient{
		nodes:  nodes,
		urls:   urls,
		delay:  retryDelay,
		logger: logger.Named("rpc-client"),
	}, nil
}

// next возвращает текущий узел и сдвигает указатель на следующий
func (c *RPCClient) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node := c.nodes[c.current]
	url := c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// ExecuteWithRetry выполняет запрос, переходя к следующему узлу после каждой ошибки.
// Каждый узел пробуется хотя бы раз, общий запрос ограничен reqTimeout.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *solanarpc.Client) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, reqTimeout)
	defer cancel()

	attempts := max(minAttempts, len(c.nodes))
	attempt := 0

	_, err := backoff.Retry(timeoutCtx, func() (struct{}, error) {
		attempt++
		node, url := c.next()
		if err := operation(timeoutCtx, node); err != nil {
			c.logger.Debug("RPC request failed, trying next node",
				zap.String("url", url),
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, NewError(err, url, method)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(uint(attempts)))

	if err == nil {
		return nil
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", ErrTimeout, method)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("all %d attempts failed: %w", attempt, err)
}

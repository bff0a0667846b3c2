package rpc

import (
	"context"
	"errors"
	"testing"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, urls ...string) *RPCClient {
	t.Helper()
	c, err := NewClient(urls, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.delay = 0
	return c
}

func TestNewClientRequiresNodes(t *testing.T) {
	_, err := NewClient(nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}

func TestExecuteWithRetryFailsOver(t *testing.T) {
	c := newTestClient(t, "http://node-a", "http://node-b")

	var used []*solanarpc.Client
	err := c.ExecuteWithRetry(context.Background(), "getBalance", func(_ context.Context, node *solanarpc.Client) error {
		used = append(used, node)
		if len(used) == 1 {
			return errors.New("node down")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, used, 2)
	assert.NotSame(t, used[0], used[1])
}

func TestExecuteWithRetryWrapsLastError(t *testing.T) {
	c := newTestClient(t, "http://node-a")
	cause := errors.New("rate limited")

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), "sendTransaction", func(context.Context, *solanarpc.Client) error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, minAttempts, calls)
	assert.ErrorIs(t, err, cause)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "sendTransaction", rpcErr.Method)
	assert.Equal(t, "http://node-a", rpcErr.NodeURL)
}

func TestExecuteWithRetryStopsOnCancel(t *testing.T) {
	c := newTestClient(t, "http://node-a", "http://node-b")
	ctx, cancel := context.WithCancel(context.Background())

	err := c.ExecuteWithRetry(ctx, "getTransaction", func(context.Context, *solanarpc.Client) error {
		cancel()
		return errors.New("interrupted")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

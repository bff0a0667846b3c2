package solbc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer отвечает на JSON-RPC вызовы заранее заданными результатами по имени метода.
func newRPCServer(t *testing.T, results map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGetBalance(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]string{
		"getBalance": `{"context":{"slot":1},"value":1500000000}`,
	})
	c, err := NewClient([]string{srv.URL}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	balance, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey(), solanarpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), balance)
}

func TestGetTransactionNotFound(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]string{
		"getTransaction": `null`,
	})
	c, err := NewClient([]string{srv.URL}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	info, err := c.GetTransaction(context.Background(), solana.Signature{1})
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestFailoverToSecondNode(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)
	healthy, calls := newRPCServer(t, map[string]string{
		"getBalance": `{"context":{"slot":1},"value":42}`,
	})

	c, err := NewClient([]string{broken.URL, healthy.URL}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	balance, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey(), solanarpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestWaitForConfirmationReportsFailure(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":5},"value":[{"slot":5,"confirmations":null,"err":{"InstructionError":[0,"Custom"]},"confirmationStatus":"confirmed"}]}`,
	})
	c, err := NewClient([]string{srv.URL}, 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = c.WaitForTransactionConfirmation(context.Background(), solana.Signature{2}, solanarpc.CommitmentConfirmed)
	assert.ErrorIs(t, err, blockchain.ErrTransactionFailed)
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":5},"value":[null]}`,
	})
	c, err := NewClient([]string{srv.URL}, 1200*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = c.WaitForTransactionConfirmation(context.Background(), solana.Signature{3}, solanarpc.CommitmentConfirmed)
	assert.ErrorIs(t, err, blockchain.ErrConfirmationTimeout)
}

func TestReached(t *testing.T) {
	assert.True(t, reached(solanarpc.ConfirmationStatusConfirmed, solanarpc.CommitmentConfirmed))
	assert.True(t, reached(solanarpc.ConfirmationStatusFinalized, solanarpc.CommitmentConfirmed))
	assert.False(t, reached(solanarpc.ConfirmationStatusProcessed, solanarpc.CommitmentConfirmed))
	assert.False(t, reached(solanarpc.ConfirmationStatusConfirmed, solanarpc.CommitmentFinalized))
	assert.True(t, reached(solanarpc.ConfirmationStatusProcessed, solanarpc.CommitmentProcessed))
}

package pumpfun

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

// unsignedCreateTx имитирует ответ сервиса запуска: create-инструкция программы
// Pump.fun с пустыми слотами подписей.
func unsignedCreateTx(t *testing.T, signer, mint solana.PublicKey, program solana.PublicKey) []byte {
	t.Helper()
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(mint).WRITE().SIGNER(),
		solana.Meta(signer).WRITE().SIGNER(),
	}, []byte{0x18, 0x1e, 0xc8, 0x28, 0x05, 0x1c, 0x07, 0x77})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{5}, solana.TransactionPayer(signer))
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestCreateTransaction(t *testing.T) {
	signer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	var got createPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(unsignedCreateTx(t, signer, mint, PumpFunProgramID))
	}))
	defer srv.Close()

	c := NewLaunchClient(srv.URL, 10, 0.0005, zaptest.NewLogger(t))
	tx, err := c.CreateTransaction(context.Background(), CreateRequest{
		Signer:           signer,
		Mint:             mint,
		Metadata:         TokenMetadata{Name: "octo/repo", Symbol: "REPO", URI: "https://ipfs.io/ipfs/abc"},
		InitialBuyAmount: 0.1,
	})
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "create", got.Action)
	assert.Equal(t, "pump", got.Pool)
	assert.Equal(t, "true", got.DenominatedInSol)
	assert.Equal(t, mint.String(), got.Mint)
	assert.Equal(t, signer.String(), got.PublicKey)
	assert.Equal(t, 0.1, got.Amount)
	assert.Equal(t, "https://ipfs.io/ipfs/abc", got.TokenMetadata.URI)

	assert.True(t, tx.Message.AccountKeys[0].Equals(signer))
}

func TestCreateTransactionUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewLaunchClient(srv.URL, 10, 0.0005, zaptest.NewLogger(t))
	_, err := c.CreateTransaction(context.Background(), CreateRequest{
		Signer:   solana.NewWallet().PublicKey(),
		Mint:     solana.NewWallet().PublicKey(),
		Metadata: TokenMetadata{Name: "n", Symbol: "S", URI: "https://x"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
}

func TestCreateTransactionRejectsForeignProgram(t *testing.T) {
	signer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(unsignedCreateTx(t, signer, mint, solana.NewWallet().PublicKey()))
	}))
	defer srv.Close()

	c := NewLaunchClient(srv.URL, 10, 0.0005, zaptest.NewLogger(t))
	_, err := c.CreateTransaction(context.Background(), CreateRequest{
		Signer:   signer,
		Mint:     mint,
		Metadata: TokenMetadata{Name: "n", Symbol: "S", URI: "https://x"},
	})
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
}

func TestCreateTransactionRequiresMetadata(t *testing.T) {
	c := NewLaunchClient("http://127.0.0.1:1", 10, 0.0005, zaptest.NewLogger(t))
	_, err := c.CreateTransaction(context.Background(), CreateRequest{})
	assert.True(t, domain.IsKind(err, domain.KindInvalidRequest))
}

func TestDeriveAccounts(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	a, err := DeriveAccounts(mint)
	require.NoError(t, err)
	b, err := DeriveAccounts(mint)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, a.BondingCurve.IsZero())
	assert.False(t, a.AssociatedBondingCurve.Equals(a.BondingCurve))

	_, err = DeriveAccounts(solana.PublicKey{})
	assert.Error(t, err)
}

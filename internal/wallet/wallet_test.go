package wallet

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

func keyAsByteArray(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	return string(raw)
}

func TestLoadCustodialSigner(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      string
		wantKind domain.Kind
	}{
		{name: "base58", raw: key.String()},
		{name: "byte array", raw: keyAsByteArray(t, key)},
		{name: "byte array with whitespace", raw: "  " + keyAsByteArray(t, key) + "\n"},
		{name: "empty", raw: "", wantKind: domain.KindConfiguration},
		{name: "garbage", raw: "not-a-key!", wantKind: domain.KindConfiguration},
		{name: "short byte array", raw: "[1,2,3]", wantKind: domain.KindConfiguration},
		{name: "byte out of range", raw: "[256]", wantKind: domain.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := LoadCustodialSigner(tt.raw)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, tt.wantKind))
				assert.Nil(t, w)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, key.PublicKey(), w.PublicIdentity())
		})
	}
}

func TestPartialSignLeavesFeePayerSlotEmpty(t *testing.T) {
	custodialKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := NewWallet(custodialKey.String())
	require.NoError(t, err)

	claimant := solana.NewWallet().PublicKey()
	ix := system.NewTransferInstruction(1_000_000, w.PublicKey, claimant).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(claimant),
	)
	require.NoError(t, err)

	sig, err := w.PartialSign(tx)
	require.NoError(t, err)

	signers := tx.Message.Signers()
	require.Len(t, signers, 2)
	require.Len(t, tx.Signatures, 2)
	assert.True(t, signers[0].Equals(claimant))
	assert.Equal(t, solana.Signature{}, tx.Signatures[0], "fee payer slot must stay empty")
	assert.Equal(t, sig, tx.Signatures[1])

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, sig.Verify(w.PublicKey, msg))
}

func TestPartialSignRejectsForeignTransaction(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, from, to).Build()},
		solana.Hash{9},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)

	_, err = w.PartialSign(tx)
	assert.Error(t, err)
}

func TestSignTransactionWithExtraSigner(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	mint := solana.NewWallet().PrivateKey

	ix := system.NewTransferInstruction(1, mint.PublicKey(), w.PublicKey).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{7}, solana.TransactionPayer(w.PublicKey))
	require.NoError(t, err)

	require.Error(t, w.SignTransaction(tx), "mint signer missing")
	require.NoError(t, w.SignTransaction(tx, mint))
	assert.NoError(t, tx.VerifySignatures())
}

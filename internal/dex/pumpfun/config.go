// =============================
// File: internal/dex/pumpfun/config.go
// =============================
package pumpfun

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Known PumpFun protocol addresses
var (
	// Program ID for Pump.fun protocol
	PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
)

// Accounts – адреса, связанные с токеном на bonding curve.
type Accounts struct {
	Mint                   solana.PublicKey
	Global                 solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
}

// DeriveAccounts вычисляет PDA bonding curve и её ассоциированный токен-аккаунт для минта.
func DeriveAccounts(mint solana.PublicKey) (*Accounts, error) {
	if mint.IsZero() {
		return nil, fmt.Errorf("token mint address is required")
	}

	global, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("global")},
		PumpFunProgramID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive global account: %w", err)
	}

	bondingCurve, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		PumpFunProgramID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive bonding curve: %w", err)
	}

	associatedBondingCurve, _, err := solana.FindAssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated bonding curve: %w", err)
	}

	return &Accounts{
		Mint:                   mint,
		Global:                 global,
		BondingCurve:           bondingCurve,
		AssociatedBondingCurve: associatedBondingCurve,
	}, nil
}

// IsCreateTransaction сообщает, вызывает ли транзакция программу Pump.fun и
// подписана ли она ключом минта. Используется при регистрации прямого запуска.
func IsCreateTransaction(tx *solana.Transaction, mint solana.PublicKey) bool {
	if tx == nil {
		return false
	}
	signedByMint := false
	for _, signer := range tx.Message.Signers() {
		if signer.Equals(mint) {
			signedByMint = true
			break
		}
	}
	if !signedByMint {
		return false
	}
	keys := tx.Message.AccountKeys
	for _, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) < len(keys) && keys[ci.ProgramIDIndex].Equals(PumpFunProgramID) {
			return true
		}
	}
	return false
}

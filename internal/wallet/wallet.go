// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

const keypairLength = 64

// Wallet представляет кастодиальный кошелёк Solana.
// Приватный ключ не экспортируется: наружу доступны только адрес и подпись.
type Wallet struct {
	privateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return fromBytes(privateKeyBytes)
}

// NewWalletFromBytes создаёт кошелёк из JSON-массива байт (формат solana-keygen).
func NewWalletFromBytes(raw string) (*Wallet, error) {
	var ints []int
	if err := json.Unmarshal([]byte(raw), &ints); err != nil {
		return nil, fmt.Errorf("failed to parse key byte array: %w", err)
	}
	keyBytes := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("key byte %d out of range: %d", i, v)
		}
		keyBytes[i] = byte(v)
	}
	return fromBytes(keyBytes)
}

func fromBytes(keyBytes []byte) (*Wallet, error) {
	if len(keyBytes) != keypairLength {
		return nil, fmt.Errorf("invalid private key length: expected %d bytes, got %d", keypairLength, len(keyBytes))
	}
	privateKey := solana.PrivateKey(keyBytes)
	return &Wallet{
		privateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// LoadCustodialSigner загружает кастодиальный ключ, пробуя обе кодировки:
// base58-строку и массив байт. Любая неудача – ConfigurationError.
func LoadCustodialSigner(raw string) (*Wallet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ConfigurationError("custodial private key is not configured", nil)
	}

	w, b58Err := NewWallet(raw)
	if b58Err == nil {
		return w, nil
	}

	w, bytesErr := NewWalletFromBytes(raw)
	if bytesErr == nil {
		return w, nil
	}

	return nil, domain.ConfigurationError(
		"custodial private key is malformed",
		errors.Join(b58Err, bytesErr),
	)
}

// PublicIdentity возвращает адрес кастодиального кошелька.
func (w *Wallet) PublicIdentity() solana.PublicKey {
	return w.PublicKey
}

// SignTransaction подписывает транзакцию, в которой кошелёк – единственный недостающий подписант.
func (w *Wallet) SignTransaction(tx *solana.Transaction, extra ...solana.PrivateKey) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.privateKey
		}
		for i := range extra {
			if key.Equals(extra[i].PublicKey()) {
				return &extra[i]
			}
		}
		return nil
	})
	return err
}

// PartialSign ставит только подпись кастодиального кошелька и оставляет
// остальные слоты пустыми – их заполнит клиент (например, плательщик комиссии).
func (w *Wallet) PartialSign(tx *solana.Transaction) (solana.Signature, error) {
	messageContent, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("unable to encode message for signing: %w", err)
	}

	signers := tx.Message.Signers()
	slot := -1
	for i, key := range signers {
		if key.Equals(w.PublicKey) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return solana.Signature{}, fmt.Errorf("custodial key %s is not a signer of the transaction", w.PublicKey)
	}

	sig, err := w.privateKey.Sign(messageContent)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign message: %w", err)
	}

	if len(tx.Signatures) != len(signers) {
		signatures := make([]solana.Signature, len(signers))
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[slot] = sig
	return sig, nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

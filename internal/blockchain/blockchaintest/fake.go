// Package blockchaintest содержит потокобезопасную in-memory реализацию blockchain.Client для тестов.
package blockchaintest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/gitup-custody/internal/blockchain"
)

// FakeClient имитирует узел Solana: хранит балансы и "подтверждённые" транзакции.
type FakeClient struct {
	mu           sync.Mutex
	Blockhash    solana.Hash
	balances     map[solana.PublicKey]uint64
	transactions map[solana.Signature]*blockchain.TransactionInfo
	Sent         []*solana.Transaction

	// SendErr возвращается из SendTransaction первые SendFailures раз.
	SendErr      error
	SendFailures int
	// ConfirmErr возвращается из WaitForTransactionConfirmation.
	ConfirmErr error
	// BalanceErr и TxErr имитируют недоступность RPC.
	BalanceErr error
	TxErr      error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Blockhash:    solana.Hash{0xb1, 0x0c},
		balances:     make(map[solana.PublicKey]uint64),
		transactions: make(map[solana.Signature]*blockchain.TransactionInfo),
	}
}

func (f *FakeClient) SetBalance(pubkey solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[pubkey] = lamports
}

// AddTransaction регистрирует транзакцию как подтверждённую в сети.
func (f *FakeClient) AddTransaction(tx *solana.Transaction, txErr interface{}) solana.Signature {
	f.mu.Lock()
	defer f.mu.Unlock()
	sig := signatureOf(tx)
	now := time.Now()
	f.transactions[sig] = &blockchain.TransactionInfo{
		Signature:   sig,
		Slot:        uint64(len(f.transactions) + 1),
		BlockTime:   &now,
		Err:         txErr,
		Transaction: tx,
	}
	return sig
}

func (f *FakeClient) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeClient) GetRecentBlockhash(context.Context) (solana.Hash, error) {
	return f.Blockhash, nil
}

func (f *FakeClient) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	if f.SendFailures > 0 {
		f.SendFailures--
		err := f.SendErr
		f.mu.Unlock()
		if err == nil {
			err = errors.New("send failed")
		}
		return solana.Signature{}, err
	}
	f.Sent = append(f.Sent, tx)
	f.mu.Unlock()
	return f.AddTransaction(tx, nil), nil
}

func (f *FakeClient) GetBalance(_ context.Context, pubkey solana.PublicKey, _ rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return 0, f.BalanceErr
	}
	return f.balances[pubkey], nil
}

func (f *FakeClient) GetTransaction(_ context.Context, signature solana.Signature) (*blockchain.TransactionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TxErr != nil {
		return nil, f.TxErr
	}
	return f.transactions[signature], nil
}

func (f *FakeClient) WaitForTransactionConfirmation(_ context.Context, signature solana.Signature, _ rpc.CommitmentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfirmErr != nil {
		return f.ConfirmErr
	}
	info, ok := f.transactions[signature]
	if !ok {
		return blockchain.ErrConfirmationTimeout
	}
	if info.Failed() {
		return blockchain.ErrTransactionFailed
	}
	return nil
}

func signatureOf(tx *solana.Transaction) solana.Signature {
	if len(tx.Signatures) > 0 && tx.Signatures[0] != (solana.Signature{}) {
		return tx.Signatures[0]
	}
	// Неподписанные транзакции получают детерминированный псевдо-идентификатор.
	msg, _ := tx.Message.MarshalBinary()
	var sig solana.Signature
	copy(sig[:], msg)
	return sig
}

var _ blockchain.Client = (*FakeClient)(nil)

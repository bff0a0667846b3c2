// internal/blockchain/solbc/transaction/transfers.go
package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// SystemTransfers возвращает все переводы SOL системной программы в транзакции.
// Инструкции других программ пропускаются.
func SystemTransfers(tx *solana.Transaction) ([]Transfer, error) {
	if tx == nil {
		return nil, nil
	}
	keys := tx.Message.AccountKeys
	var transfers []Transfer
	for i, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) || !keys[ci.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}

		accounts := make([]*solana.AccountMeta, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			accounts = append(accounts, solana.Meta(keys[idx]))
		}

		inst, err := system.DecodeInstruction(accounts, ci.Data)
		if err != nil {
			// Неизвестные системные инструкции не относятся к переводам.
			continue
		}
		transfer, ok := inst.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil || len(accounts) < 2 {
			continue
		}
		transfers = append(transfers, Transfer{
			From:     accounts[0].PublicKey,
			To:       accounts[1].PublicKey,
			Lamports: *transfer.Lamports,
		})
	}
	return transfers, nil
}

// TransferredLamports суммирует переводы from -> to.
func TransferredLamports(tx *solana.Transaction, from, to solana.PublicKey) (uint64, error) {
	transfers, err := SystemTransfers(tx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, t := range transfers {
		if t.From.Equals(from) && t.To.Equals(to) {
			total += t.Lamports
		}
	}
	return total, nil
}

// MemoInstruction – инструкция memo-программы без подписантов.
func MemoInstruction(text string) solana.Instruction {
	return solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{}, []byte(text))
}

// Memos возвращает тексты всех memo-инструкций транзакции.
func Memos(tx *solana.Transaction) []string {
	if tx == nil {
		return nil
	}
	keys := tx.Message.AccountKeys
	var memos []string
	for _, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) < len(keys) && keys[ci.ProgramIDIndex].Equals(solana.MemoProgramID) {
			memos = append(memos, string(ci.Data))
		}
	}
	return memos
}

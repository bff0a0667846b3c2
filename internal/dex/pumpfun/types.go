// =============================
// File: internal/dex/pumpfun/types.go
// =============================
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
)

// TokenMetadata – имя, тикер и уже загруженный URI метаданных токена.
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// CreateRequest – запрос к сервису запуска на построение create-транзакции.
type CreateRequest struct {
	Signer           solana.PublicKey
	Mint             solana.PublicKey
	Metadata         TokenMetadata
	InitialBuyAmount float64 // SOL, 0 – без начальной покупки
}

// createPayload – тело запроса trade-local API.
type createPayload struct {
	PublicKey        string        `json:"publicKey"`
	Action           string        `json:"action"`
	TokenMetadata    TokenMetadata `json:"tokenMetadata"`
	Mint             string        `json:"mint"`
	DenominatedInSol string        `json:"denominatedInSol"`
	Amount           float64       `json:"amount"`
	Slippage         float64       `json:"slippage"`
	PriorityFee      float64       `json:"priorityFee"`
	Pool             string        `json:"pool"`
}

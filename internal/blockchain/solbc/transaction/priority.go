// internal/blockchain/solbc/transaction/priority.go
package transaction

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

type PriorityLevel string

const (
	PriorityNone   PriorityLevel = "none"
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
)

type PriorityConfig struct {
	ComputeUnits uint32 // Лимит compute units
	PriorityFee  uint64 // Цена compute unit в micro-lamports
}

var priorityProfiles = map[PriorityLevel]PriorityConfig{
	PriorityNone: {},
	// Перевод SOL укладывается в ~450 CU, запас оставлен под compute budget инструкции.
	PriorityLow:    {ComputeUnits: 1_000, PriorityFee: 1_000},
	PriorityMedium: {ComputeUnits: 1_000, PriorityFee: 5_000},
	PriorityHigh:   {ComputeUnits: 1_000, PriorityFee: 10_000},
}

// ParsePriorityLevel разбирает уровень приоритета из конфигурации. Пустая строка – low.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	if s == "" {
		return PriorityLow, nil
	}
	level := PriorityLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := priorityProfiles[level]; !ok {
		return "", fmt.Errorf("unknown priority level: %s", s)
	}
	return level, nil
}

// PriorityInstructions строит compute budget инструкции для указанного уровня.
func PriorityInstructions(level PriorityLevel) ([]solana.Instruction, error) {
	config, ok := priorityProfiles[level]
	if !ok {
		return nil, fmt.Errorf("unknown priority level: %s", level)
	}

	var instructions []solana.Instruction
	if config.ComputeUnits > 0 {
		instructions = append(instructions, computebudget.NewSetComputeUnitLimitInstruction(config.ComputeUnits).Build())
	}
	if config.PriorityFee > 0 {
		instructions = append(instructions, computebudget.NewSetComputeUnitPriceInstruction(config.PriorityFee).Build())
	}
	return instructions, nil
}

// Package fees считает начисленные и доступные к выводу комиссии токена.
package fees

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL – количество лампортов в одном SOL.
const LamportsPerSOL = 1_000_000_000

// Calculator переводит объём торгов в комиссии по фиксированной ставке.
type Calculator struct {
	rate     decimal.Decimal
	minClaim decimal.Decimal
}

func NewCalculator(rate, minClaim decimal.Decimal) *Calculator {
	return &Calculator{rate: rate, minClaim: minClaim}
}

// Rate возвращает ставку комиссии.
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// MinClaim возвращает порог пыли.
func (c *Calculator) MinClaim() decimal.Decimal {
	return c.minClaim
}

// ComputeFees возвращает volume * rate. Отрицательный объём трактуется как ноль.
func (c *Calculator) ComputeFees(volume decimal.Decimal) decimal.Decimal {
	if volume.IsNegative() {
		return decimal.Zero
	}
	return volume.Mul(c.rate)
}

// Earned выбирает итоговую сумму начисленного: наблюдение оракула не
// согласовано с леджером транзакционно и может временно откатиться назад,
// поэтому берётся максимум из сохранённого и наблюдаемого.
func (c *Calculator) Earned(recorded, observed decimal.Decimal) decimal.Decimal {
	return decimal.Max(recorded, observed)
}

// Claimable = max(0, earned - claimed).
func (c *Calculator) Claimable(earned, claimed decimal.Decimal) decimal.Decimal {
	diff := earned.Sub(claimed)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// AboveDust сообщает, превышает ли сумма порог пыли (строго больше).
func (c *Calculator) AboveDust(amount decimal.Decimal) bool {
	return amount.GreaterThan(c.minClaim) && amount.IsPositive()
}

// ToLamports переводит SOL в лампорты, отбрасывая дробную часть лампорта.
func ToLamports(sol decimal.Decimal) uint64 {
	if sol.IsNegative() {
		return 0
	}
	return uint64(sol.Shift(9).Truncate(0).IntPart())
}

// FromLamports переводит лампорты в SOL.
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

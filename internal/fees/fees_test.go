package fees

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestCalculator() *Calculator {
	return NewCalculator(d("0.005"), d("0.0001"))
}

func TestComputeFees(t *testing.T) {
	c := newTestCalculator()
	tests := []struct {
		volume string
		want   string
	}{
		{"0", "0"},
		{"240", "1.2"},
		{"200", "1"},
		{"0.01", "0.00005"},
		{"-5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.volume, func(t *testing.T) {
			got := c.ComputeFees(d(tt.volume))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestClaimableNeverNegative(t *testing.T) {
	c := newTestCalculator()
	assert.True(t, c.Claimable(d("0.9"), d("1.2")).IsZero())
	assert.True(t, c.Claimable(d("1.2"), d("0.3")).Equal(d("0.9")))

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		earned := decimal.NewFromInt(r.Int63n(1_000_000)).Shift(-6)
		claimed := decimal.NewFromInt(r.Int63n(1_000_000)).Shift(-6)
		got := c.Claimable(earned, claimed)
		assert.False(t, got.IsNegative())
		assert.True(t, got.LessThanOrEqual(decimal.Max(earned, decimal.Zero)))
	}
}

func TestComputeFeesMonotonic(t *testing.T) {
	c := newTestCalculator()
	r := rand.New(rand.NewSource(11))
	prev := decimal.Zero
	volume := decimal.Zero
	for i := 0; i < 500; i++ {
		volume = volume.Add(decimal.NewFromInt(r.Int63n(10_000)).Shift(-3))
		fees := c.ComputeFees(volume)
		assert.True(t, fees.GreaterThanOrEqual(prev))
		prev = fees
	}
}

func TestEarnedNeverRegresses(t *testing.T) {
	c := newTestCalculator()
	assert.True(t, c.Earned(d("1.0"), d("1.2")).Equal(d("1.2")))
	assert.True(t, c.Earned(d("1.0"), d("0")).Equal(d("1.0")))
}

func TestAboveDust(t *testing.T) {
	c := newTestCalculator()
	assert.False(t, c.AboveDust(d("0.00005")))
	assert.False(t, c.AboveDust(d("0.0001")))
	assert.True(t, c.AboveDust(d("0.00011")))
	assert.False(t, c.AboveDust(decimal.Zero))
}

func TestLamportConversion(t *testing.T) {
	assert.Equal(t, uint64(900_000_000), ToLamports(d("0.9")))
	assert.Equal(t, uint64(1), ToLamports(d("0.0000000019")))
	assert.Equal(t, uint64(0), ToLamports(d("-1")))
	assert.True(t, FromLamports(1_500_000_000).Equal(d("1.5")))
	assert.True(t, FromLamports(ToLamports(d("0.123456789"))).Equal(d("0.123456789")))
}

package custody

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

func TestReservations(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newReservations(func() time.Time { return now })

	attempt := &domain.ClaimAttempt{TokenMint: "A", RequestedAmount: dec("0.5"), ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, r.reserveClaim(attempt, dec("3"), dec("1")))

	release := r.reserveDeploy(dec("0.05"))
	assert.True(t, dec("0.55").Equal(r.Reserved()))

	// 3 - 0.55 - 1.45 = 1.0, что не выше буфера.
	err := r.reserveClaim(&domain.ClaimAttempt{TokenMint: "B", RequestedAmount: dec("1.45"), ExpiresAt: now.Add(time.Minute)}, dec("3"), dec("1"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	release()
	release()
	assert.True(t, dec("0.5").Equal(r.Reserved()))

	now = now.Add(2 * time.Minute)
	assert.True(t, r.Reserved().IsZero(), "expired quotes are pruned")
	_, ok := r.pendingClaim("A")
	assert.False(t, ok)
}

func TestConcurrentQuotesForSameToken(t *testing.T) {
	now := time.Now()
	r := newReservations(func() time.Time { return now })

	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := &domain.ClaimAttempt{TokenMint: "A", RequestedAmount: dec("0.1"), ExpiresAt: now.Add(time.Minute)}
			if r.reserveClaim(a, dec("100"), dec("1")) == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

func TestKeyedLocks(t *testing.T) {
	k := newKeyedLocks()
	unlock, ok := k.tryLock("repo")
	require.True(t, ok)

	_, ok = k.tryLock("repo")
	assert.False(t, ok)
	_, ok = k.tryLock("other")
	assert.True(t, ok)

	unlock()
	_, ok = k.tryLock("repo")
	assert.True(t, ok)
}

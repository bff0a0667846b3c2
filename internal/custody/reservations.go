// internal/custody/reservations.go
package custody

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

// reservations – учёт сумм, уже обещанных из кастодиального баланса, но ещё
// не списанных в сети: выданные котировки и идущие деплои. Котировка также
// служит блокировкой токена: пока она жива, вторую выдать нельзя.
type reservations struct {
	mu      sync.Mutex
	quotes  map[string]*domain.ClaimAttempt // по mint
	deploys map[string]decimal.Decimal
	now     func() time.Time
}

func newReservations(now func() time.Time) *reservations {
	return &reservations{
		quotes:  make(map[string]*domain.ClaimAttempt),
		deploys: make(map[string]decimal.Decimal),
		now:     now,
	}
}

// reservedLocked суммирует живые резервы, попутно удаляя истёкшие котировки.
func (r *reservations) reservedLocked(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for mint, q := range r.quotes {
		if q.Expired(now) {
			delete(r.quotes, mint)
			continue
		}
		total = total.Add(q.RequestedAmount)
	}
	for _, amount := range r.deploys {
		total = total.Add(amount)
	}
	return total
}

// Reserved возвращает сумму всех живых резервов.
func (r *reservations) Reserved() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reservedLocked(r.now())
}

// reserveClaim атомарно проверяет блокировку токена и достаточность баланса
// с учётом уже зарезервированного и резервирует сумму котировки.
func (r *reservations) reserveClaim(attempt *domain.ClaimAttempt, balance, buffer decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	reserved := r.reservedLocked(now)
	if _, pending := r.quotes[attempt.TokenMint]; pending {
		return domain.ClaimInProgressError(attempt.TokenMint)
	}

	remaining := balance.Sub(reserved).Sub(attempt.RequestedAmount)
	if remaining.LessThanOrEqual(buffer) {
		return domain.InsufficientCustodyBalanceError(
			"custody balance " + balance.String() + " SOL cannot cover " + attempt.RequestedAmount.String() +
				" SOL while keeping the " + buffer.String() + " SOL reserve")
	}

	r.quotes[attempt.TokenMint] = attempt
	return nil
}

// pendingClaim возвращает живую котировку токена, если она есть.
func (r *reservations) pendingClaim(mint string) (*domain.ClaimAttempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[mint]
	if !ok {
		return nil, false
	}
	if q.Expired(r.now()) {
		delete(r.quotes, mint)
		return nil, false
	}
	cp := *q
	return &cp, true
}

// setClaimTransaction сохраняет выданную транзакцию и подпись кастоди в котировке.
func (r *reservations) setClaimTransaction(mint, encoded, custodySig string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.quotes[mint]; ok {
		q.Transaction = encoded
		q.CustodySignature = custodySig
	}
}

func (r *reservations) releaseClaim(mint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.quotes, mint)
}

// reserveDeploy резервирует стоимость деплоя и возвращает функцию освобождения.
func (r *reservations) reserveDeploy(amount decimal.Decimal) func() {
	id := uuid.NewString()
	r.mu.Lock()
	r.deploys[id] = amount
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.deploys, id)
			r.mu.Unlock()
		})
	}
}

// keyedLocks – неблокирующие мьютексы по ключу (репозиторию).
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: make(map[string]struct{})}
}

// tryLock захватывает ключ. false – ключ уже занят.
func (k *keyedLocks) tryLock(key string) (unlock func(), ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[key]; busy {
		return nil, false
	}
	k.held[key] = struct{}{}
	return func() {
		k.mu.Lock()
		delete(k.held, key)
		k.mu.Unlock()
	}, true
}

// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

// memoryStorage – хранилище в памяти с теми же гарантиями уникальности и
// условного обновления, что и postgres. Для тестов и локального запуска.
type memoryStorage struct {
	mu              sync.RWMutex
	nextID          uint
	tokens          map[string]*models.TokenRecord // по mint
	settlements     map[string]*models.ClaimSettlement
	payments        map[string]*models.PaymentClaim
	reconciliations []*models.Reconciliation
	now             func() time.Time
}

func NewStorage() storage.Storage {
	return &memoryStorage{
		tokens:      make(map[string]*models.TokenRecord),
		settlements: make(map[string]*models.ClaimSettlement),
		payments:    make(map[string]*models.PaymentClaim),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (m *memoryStorage) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memoryStorage) CreateToken(_ context.Context, token *models.TokenRecord) error {
	if token.TokenMint == "" || token.RepoIdentifier == "" {
		return storage.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if t.TokenMint == token.TokenMint || t.RepoIdentifier == token.RepoIdentifier {
			return storage.ErrDuplicateKey
		}
		if token.PaymentSignature != nil && t.PaymentSignature != nil && *t.PaymentSignature == *token.PaymentSignature {
			return storage.ErrDuplicateKey
		}
	}

	now := m.now()
	token.ID = m.id()
	token.CreatedAt = now
	token.UpdatedAt = now
	cp := *token
	m.tokens[token.TokenMint] = &cp
	return nil
}

func (m *memoryStorage) GetTokenByMint(_ context.Context, mint string) (*models.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStorage) findToken(match func(*models.TokenRecord) bool) (*models.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if match(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memoryStorage) GetTokenByRepo(_ context.Context, repoIdentifier string) (*models.TokenRecord, error) {
	return m.findToken(func(t *models.TokenRecord) bool { return t.RepoIdentifier == repoIdentifier })
}

func (m *memoryStorage) GetTokenByPaymentSignature(_ context.Context, signature string) (*models.TokenRecord, error) {
	return m.findToken(func(t *models.TokenRecord) bool {
		return t.PaymentSignature != nil && *t.PaymentSignature == signature
	})
}

func (m *memoryStorage) ListTokens(_ context.Context, limit, offset int) ([]*models.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*models.TokenRecord, 0, len(m.tokens))
	for _, t := range m.tokens {
		cp := *t
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, limit, offset), nil
}

func (m *memoryStorage) RecordFeesEarned(_ context.Context, mint string, earned decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[mint]
	if !ok {
		return storage.ErrNotFound
	}
	if earned.GreaterThan(t.TotalFeesEarned) {
		t.TotalFeesEarned = earned
		t.UpdatedAt = m.now()
	}
	return nil
}

func (m *memoryStorage) ClaimPayment(_ context.Context, claim *models.PaymentClaim) error {
	if claim.Signature == "" || claim.RepoIdentifier == "" {
		return storage.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[claim.Signature]; ok {
		return storage.ErrDuplicateKey
	}
	claim.ID = m.id()
	claim.CreatedAt = m.now()
	claim.UpdatedAt = claim.CreatedAt
	cp := *claim
	m.payments[claim.Signature] = &cp
	return nil
}

func (m *memoryStorage) ReleasePayment(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payments, signature)
	return nil
}

func (m *memoryStorage) SettleClaim(_ context.Context, p models.SettleParams) (*models.ClaimSettlement, bool, error) {
	if err := storage.ValidateSettle(p); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.settlements[p.Signature]; ok {
		cp := *existing
		return &cp, false, nil
	}

	t, ok := m.tokens[p.TokenMint]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if !t.TotalFeesClaimed.Equal(p.ExpectedClaimed) {
		return nil, false, storage.ErrConflict
	}

	earned := decimal.Max(t.TotalFeesEarned, p.ObservedEarned)
	claimed := t.TotalFeesClaimed.Add(p.Amount)
	if claimed.GreaterThan(earned) {
		return nil, false, storage.ErrExceedsEarned
	}

	settledAt := p.SettledAt
	if settledAt.IsZero() {
		settledAt = m.now()
	}
	t.TotalFeesEarned = earned
	t.TotalFeesClaimed = claimed
	if !t.IsClaimed {
		t.IsClaimed = true
		t.ClaimedAt = &settledAt
		t.ClaimedByUserID = p.UserID
		t.ClaimedByWallet = p.ClaimantWallet
	}
	t.UpdatedAt = m.now()

	s := &models.ClaimSettlement{
		Signature:      p.Signature,
		TokenMint:      p.TokenMint,
		Amount:         p.Amount,
		ClaimedBefore:  p.ExpectedClaimed,
		ClaimedAfter:   claimed,
		ClaimantWallet: p.ClaimantWallet,
		UserID:         p.UserID,
		Slot:           p.Slot,
		SettledAt:      settledAt,
	}
	s.ID = m.id()
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt
	m.settlements[p.Signature] = s
	cp := *s
	return &cp, true, nil
}

func (m *memoryStorage) GetSettlement(_ context.Context, signature string) (*models.ClaimSettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStorage) ListSettlements(_ context.Context, mint string) ([]*models.ClaimSettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*models.ClaimSettlement
	for _, s := range m.settlements {
		if s.TokenMint == mint {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *memoryStorage) SaveReconciliation(_ context.Context, rec *models.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id()
	rec.CreatedAt = m.now()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	m.reconciliations = append(m.reconciliations, &cp)
	return nil
}

func (m *memoryStorage) ListReconciliations(_ context.Context, onlyOpen bool) ([]*models.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*models.Reconciliation
	for i := len(m.reconciliations) - 1; i >= 0; i-- {
		r := m.reconciliations[i]
		if onlyOpen && r.Resolved {
			continue
		}
		cp := *r
		list = append(list, &cp)
	}
	return list, nil
}

func (m *memoryStorage) ResolveReconciliation(_ context.Context, id uint, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reconciliations {
		if r.ID == id {
			if r.Resolved {
				return nil
			}
			now := m.now()
			r.Resolved = true
			r.ResolvedAt = &now
			r.ResolutionNote = note
			r.UpdatedAt = now
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryStorage) RunMigrations() error { return nil }

func (m *memoryStorage) Close() error { return nil }

func paginate[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

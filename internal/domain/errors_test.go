package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", cause, KindInternal},
		{"upstream", UpstreamServiceError("oracle", cause), KindUpstream},
		{"wrapped", fmt.Errorf("quote: %w", NotCustodialError("M")), KindNotCustodial},
		{"authorization", AuthorizationError("not owner", nil), KindAuthorization},
		{"claim in progress", ClaimInProgressError("M"), KindClaimInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := fmt.Errorf("confirm: %w", UnconfirmedTransactionError("sig", cause))

	assert.ErrorIs(t, err, ErrUnconfirmed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.True(t, IsKind(err, KindUnconfirmed))
	assert.False(t, IsKind(nil, KindUnconfirmed))
	assert.Contains(t, err.Error(), "sig")
}

func TestNextAction(t *testing.T) {
	assert.NotEmpty(t, NextAction(KindPaymentRequired))
	assert.NotEmpty(t, NextAction(KindSettlementFailed))
	assert.Empty(t, NextAction(KindInternal))
}

func TestClaimAttemptExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &ClaimAttempt{ExpiresAt: now.Add(time.Second)}

	assert.False(t, a.Expired(now))
	assert.True(t, a.Expired(now.Add(time.Second)))
}

package console

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/memory"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

func seededStore(t *testing.T) storage.Storage {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.CreateToken(ctx, &models.TokenRecord{
		TokenMint:        "MintA",
		RepoIdentifier:   "github:1",
		RepoFullName:     "octo/widget",
		IsCustodial:      true,
		TotalFeesEarned:  decimal.RequireFromString("1.5"),
		TotalFeesClaimed: decimal.RequireFromString("0.5"),
	}))
	require.NoError(t, store.SaveReconciliation(ctx, &models.Reconciliation{
		Kind:      models.ReconcileSettlementFailed,
		TokenMint: "MintA",
		Signature: "sig-1",
		Amount:    decimal.RequireFromString("0.25"),
		Details:   "database unavailable",
	}))
	return store
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelLoadsData(t *testing.T) {
	m := NewModel(seededStore(t))
	msg := m.Init()()
	require.IsType(t, dataLoadedMsg{}, msg)

	m, _ = send(t, m, msg)
	require.Len(t, m.tokens.Rows(), 1)
	assert.Equal(t, "octo/widget", m.tokens.Rows()[0][1])
	assert.Equal(t, "1.000000", m.tokens.Rows()[0][5])
	assert.Equal(t, 1, m.openCount)

	view := m.View()
	assert.Contains(t, view, "Reconciliations (1)")
	assert.Contains(t, view, "MintA")
}

func TestModelResolvesReconciliation(t *testing.T) {
	store := seededStore(t)
	m := NewModel(store)
	m, _ = send(t, m, m.Init()())

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, viewReconciliations, m.view)

	m, _ = send(t, m, keyRunes("r"))
	require.True(t, m.resolving)

	m, _ = send(t, m, keyRunes("refunded manually"))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.False(t, m.resolving)
	msg := cmd()
	require.IsType(t, resolvedMsg{}, msg)

	m, cmd = send(t, m, msg)
	assert.Contains(t, m.status, "resolved")
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.Equal(t, 0, m.openCount)

	all, err := store.ListReconciliations(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	assert.Equal(t, "refunded manually", all[0].ResolutionNote)
}

func TestModelResolveRequiresNote(t *testing.T) {
	m := NewModel(seededStore(t))
	m, _ = send(t, m, m.Init()())
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = send(t, m, keyRunes("r"))

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, m.resolving)

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.resolving)
}

func TestResolveOnTokensViewIsIgnored(t *testing.T) {
	m := NewModel(seededStore(t))
	m, _ = send(t, m, m.Init()())
	m, _ = send(t, m, keyRunes("r"))
	assert.False(t, m.resolving)
}

func TestResolveUnknownReconciliation(t *testing.T) {
	msg := resolve(memory.NewStorage(), 42, "note")()
	require.IsType(t, errMsg{}, msg)
	assert.ErrorIs(t, msg.(errMsg).err, storage.ErrNotFound)
}

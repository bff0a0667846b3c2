// Package console – терминальная консоль оператора: токены под кастоди
// и открытые расхождения леджера.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/gitup-custody/internal/storage"
	"github.com/rovshanmuradov/gitup-custody/internal/storage/models"
)

const (
	queryTimeout = 10 * time.Second
	tokensLimit  = 500
)

type view int

const (
	viewTokens view = iota
	viewReconciliations
)

type dataLoadedMsg struct {
	tokens          []*models.TokenRecord
	reconciliations []*models.Reconciliation
}

type resolvedMsg struct{ id uint }

type errMsg struct{ err error }

// Model – корневая bubbletea-модель консоли.
type Model struct {
	store storage.Storage
	keys  KeyMap
	help  help.Model

	view            view
	tokens          table.Model
	reconciliations table.Model
	note            textinput.Model
	resolving       bool

	openCount int
	status    string
	err       error
	width     int
}

func NewModel(store storage.Storage) Model {
	note := textinput.New()
	note.Placeholder = "resolution note"
	note.CharLimit = 256

	return Model{
		store: store,
		keys:  DefaultKeyMap(),
		help:  help.New(),
		tokens: table.New(
			table.WithColumns([]table.Column{
				{Title: "Mint", Width: 44},
				{Title: "Repository", Width: 28},
				{Title: "Custodial", Width: 9},
				{Title: "Earned", Width: 14},
				{Title: "Claimed", Width: 14},
				{Title: "Claimable", Width: 14},
			}),
			table.WithFocused(true),
			table.WithHeight(15),
		),
		reconciliations: table.New(
			table.WithColumns([]table.Column{
				{Title: "ID", Width: 6},
				{Title: "Kind", Width: 20},
				{Title: "Mint", Width: 44},
				{Title: "Amount", Width: 14},
				{Title: "Created", Width: 19},
				{Title: "Details", Width: 40},
			}),
			table.WithHeight(15),
		),
		note: note,
	}
}

func (m Model) Init() tea.Cmd {
	return loadData(m.store)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case dataLoadedMsg:
		m.tokens.SetRows(tokenRows(msg.tokens))
		m.reconciliations.SetRows(reconciliationRows(msg.reconciliations))
		m.openCount = len(msg.reconciliations)
		m.err = nil
		return m, nil

	case resolvedMsg:
		m.status = fmt.Sprintf("reconciliation #%d resolved", msg.id)
		return m, loadData(m.store)

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.resolving {
			return m.updateResolving(msg)
		}
		return m.updateBrowsing(msg)
	}
	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.view == viewTokens {
			m.view = viewReconciliations
			m.tokens.Blur()
			m.reconciliations.Focus()
		} else {
			m.view = viewTokens
			m.reconciliations.Blur()
			m.tokens.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		return m, loadData(m.store)

	case key.Matches(msg, m.keys.Resolve):
		if m.view != viewReconciliations || len(m.reconciliations.SelectedRow()) == 0 {
			return m, nil
		}
		m.resolving = true
		m.note.Reset()
		return m, m.note.Focus()
	}

	var cmd tea.Cmd
	if m.view == viewTokens {
		m.tokens, cmd = m.tokens.Update(msg)
	} else {
		m.reconciliations, cmd = m.reconciliations.Update(msg)
	}
	return m, cmd
}

func (m Model) updateResolving(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.resolving = false
		m.note.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		note := strings.TrimSpace(m.note.Value())
		if note == "" {
			return m, nil
		}
		id, err := selectedID(m.reconciliations.SelectedRow())
		m.resolving = false
		m.note.Blur()
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, resolve(m.store, id, note)
	}

	var cmd tea.Cmd
	m.note, cmd = m.note.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GitUp custody console"))
	b.WriteString("\n\n")

	tokensTab, reconTab := activeTabStyle, tabStyle
	if m.view == viewReconciliations {
		tokensTab, reconTab = tabStyle, activeTabStyle
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tokensTab.Render("Tokens"),
		reconTab.Render(fmt.Sprintf("Reconciliations (%d)", m.openCount)),
	))
	b.WriteString("\n")

	if m.view == viewTokens {
		b.WriteString(tableBoxStyle.Render(m.tokens.View()))
	} else {
		b.WriteString(tableBoxStyle.Render(m.reconciliations.View()))
	}
	b.WriteString("\n")

	if m.resolving {
		b.WriteString(warningStyle.Render("Resolve selected reconciliation:"))
		b.WriteString(" " + m.note.View() + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func loadData(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		tokens, err := store.ListTokens(ctx, tokensLimit, 0)
		if err != nil {
			return errMsg{err: fmt.Errorf("list tokens: %w", err)}
		}
		recs, err := store.ListReconciliations(ctx, true)
		if err != nil {
			return errMsg{err: fmt.Errorf("list reconciliations: %w", err)}
		}
		return dataLoadedMsg{tokens: tokens, reconciliations: recs}
	}
}

func resolve(store storage.Storage, id uint, note string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		if err := store.ResolveReconciliation(ctx, id, note); err != nil {
			return errMsg{err: fmt.Errorf("resolve #%d: %w", id, err)}
		}
		return resolvedMsg{id: id}
	}
}

func tokenRows(tokens []*models.TokenRecord) []table.Row {
	rows := make([]table.Row, 0, len(tokens))
	for _, t := range tokens {
		custodial := "no"
		if t.IsCustodial {
			custodial = "yes"
		}
		rows = append(rows, table.Row{
			t.TokenMint,
			t.RepoFullName,
			custodial,
			t.TotalFeesEarned.StringFixed(6),
			t.TotalFeesClaimed.StringFixed(6),
			t.Claimable().StringFixed(6),
		})
	}
	return rows
}

func reconciliationRows(recs []*models.Reconciliation) []table.Row {
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, table.Row{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Kind,
			r.TokenMint,
			r.Amount.StringFixed(6),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Details,
		})
	}
	return rows
}

func selectedID(row table.Row) (uint, error) {
	if len(row) == 0 {
		return 0, fmt.Errorf("no reconciliation selected")
	}
	id, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid reconciliation id %q: %w", row[0], err)
	}
	return uint(id), nil
}

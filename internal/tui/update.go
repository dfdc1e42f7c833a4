package tui

import (
	"context"

	tea "charm.land/bubbletea/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/skip-hire/internal/offer"
)

type fetchDoneMsg struct {
	err error
}

// Init starts the initial fetch.
func (m Model) Init() tea.Cmd {
	return m.fetch()
}

func (m Model) fetch() tea.Cmd {
	p, timeout := m.pipeline, m.fetchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fetchDoneMsg{err: p.Retry(ctx)}
	}
}

// Update is the bubbletea update function.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case fetchDoneMsg:
		m.refresh()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q", "esc":
		m.pipeline.Close()
		return m, tea.Quit
	}

	switch {
	case m.snapshot.Loading:
		return m, nil
	case m.snapshot.Error != "":
		if key == "r" || key == "enter" {
			return m.retry()
		}
		return m, nil
	}

	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.snapshot.Offers)-1 {
			m.cursor++
		}
	case "enter", "space":
		if m.cursor < len(m.snapshot.Offers) {
			m.pipeline.Select(m.snapshot.Offers[m.cursor].ID)
		}
	case "1", "2", "3":
		_ = m.pipeline.SetSortOrder(offer.SortOrders()[key[0]-'1'])
	case "s":
		_ = m.pipeline.SetSortOrder(nextSortOrder(m.snapshot.SortOrder))
	case "[":
		m.nudgeRange(offer.PriceStep.Neg(), decimal.Zero)
	case "]":
		m.nudgeRange(offer.PriceStep, decimal.Zero)
	case "{":
		m.nudgeRange(decimal.Zero, offer.PriceStep.Neg())
	case "}":
		m.nudgeRange(decimal.Zero, offer.PriceStep)
	case "p":
		_ = m.pipeline.ApplyPreset(nextPreset(m.snapshot.ActivePreset))
	case "x":
		m.pipeline.ResetFilters()
	case "r":
		return m.retry()
	case "c":
		if checkout := m.pipeline.SelectedSummary(); checkout != nil {
			m.confirmed = checkout
			return m, tea.Quit
		}
	}
	m.refresh()
	return m, nil
}

func (m Model) retry() (tea.Model, tea.Cmd) {
	cmd := m.fetch()
	m.snapshot.Loading = true
	m.snapshot.Error = ""
	return m, cmd
}

// nudgeRange moves the bounds by the given deltas, clamped to the slider
// limits. Bounds may cross; the filter then matches nothing.
func (m *Model) nudgeRange(dLow, dHigh decimal.Decimal) {
	r := m.snapshot.PriceRange
	m.pipeline.SetPriceRange(clampPrice(r.Low.Add(dLow)), clampPrice(r.High.Add(dHigh)))
}

func clampPrice(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(offer.MinPrice) {
		return offer.MinPrice
	}
	if v.GreaterThan(offer.MaxPrice) {
		return offer.MaxPrice
	}
	return v
}

func nextSortOrder(current offer.SortOrder) offer.SortOrder {
	orders := offer.SortOrders()
	for i, o := range orders {
		if o == current {
			return orders[(i+1)%len(orders)]
		}
	}
	return orders[0]
}

// nextPreset cycles through the presets, starting from the first when the
// range matches none of them.
func nextPreset(active string) string {
	presets := offer.Presets()
	for i, p := range presets {
		if p.Name == active {
			return presets[(i+1)%len(presets)].Name
		}
	}
	return presets[0].Name
}

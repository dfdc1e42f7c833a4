package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/noah-isme/skip-hire/internal/offer"
	"github.com/noah-isme/skip-hire/internal/pipeline"
	"github.com/noah-isme/skip-hire/internal/pricing"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF88"))

	stepActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#00FF88"))

	stepDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA66"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00"))

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFAA00")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	cardCursorStyle = cardStyle.
			BorderForeground(lipgloss.Color("#FFAA00"))

	cardSelectedStyle = cardStyle.
				BorderForeground(lipgloss.Color("#00FF88"))

	checkoutStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("#00FF88")).
			Padding(0, 1)
)

// View renders the full-screen TUI.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	var b strings.Builder
	b.WriteString(m.viewSteps())
	b.WriteString("\n\n")
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")

	switch {
	case m.snapshot.Loading:
		b.WriteString(m.viewLoading())
	case m.snapshot.Error != "":
		b.WriteString(m.viewError())
	default:
		b.WriteString(m.viewFilters())
		b.WriteString("\n\n")
		if m.snapshot.NoResults {
			b.WriteString(m.viewNoResults())
		} else {
			b.WriteString(m.viewCards())
		}
		if c := m.snapshot.Checkout; c != nil {
			b.WriteString("\n")
			b.WriteString(m.viewCheckout(c))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.viewHelp())
	return b.String()
}

func (m Model) viewSteps() string {
	parts := make([]string, 0, len(m.steps))
	for i, s := range m.steps {
		switch {
		case i == m.activeStep:
			parts = append(parts, stepActiveStyle.Render(" "+s.Label+" "))
		case s.Completed:
			parts = append(parts, stepDoneStyle.Render("✓ "+s.Label))
		default:
			parts = append(parts, dimStyle.Render(s.Label))
		}
	}
	return strings.Join(parts, dimStyle.Render(" › "))
}

func (m Model) viewHeader() string {
	s := titleStyle.Render("Choose Your Skip Size")
	if m.location != "" {
		s += "\n" + dimStyle.Render(m.location)
	}
	return s
}

func (m Model) viewLoading() string {
	return dimStyle.Render("Loading skip options...")
}

func (m Model) viewError() string {
	body := errStyle.Render("Error Loading Data") + "\n\n" +
		m.snapshot.Error + "\n\n" +
		valueStyle.Render("[r] Try Again")
	return panelStyle.Render(body)
}

func (m Model) viewNoResults() string {
	body := titleStyle.Render("No skips match your filters") + "\n" +
		dimStyle.Render("Try adjusting your price range to see more options") + "\n\n" +
		valueStyle.Render("[x] Reset Filters")
	return panelStyle.Render(body)
}

func (m Model) viewFilters() string {
	r := m.snapshot.PriceRange
	var b strings.Builder
	fmt.Fprintf(&b, "Price Range (£): %s - %s",
		valueStyle.Render(r.Low.StringFixed(0)), valueStyle.Render(r.High.StringFixed(0)))

	presets := make([]string, 0, len(offer.Presets()))
	for _, p := range offer.Presets() {
		if p.Name == m.snapshot.ActivePreset {
			presets = append(presets, stepActiveStyle.Render(p.Label))
		} else {
			presets = append(presets, dimStyle.Render(p.Label))
		}
	}
	b.WriteString("   " + strings.Join(presets, " "))

	sorts := make([]string, 0, 3)
	for i, o := range offer.SortOrders() {
		label := fmt.Sprintf("%d %s", i+1, o.Label())
		if o == m.snapshot.SortOrder {
			sorts = append(sorts, stepActiveStyle.Render(label))
		} else {
			sorts = append(sorts, dimStyle.Render(label))
		}
	}
	fmt.Fprintf(&b, "\nSort: %s", strings.Join(sorts, " "))
	fmt.Fprintf(&b, "   %s", dimStyle.Render(fmt.Sprintf("%d of %d skips", len(m.snapshot.Offers), m.snapshot.TotalOffers)))
	return b.String()
}

func (m Model) viewCards() string {
	cards := make([]string, 0, len(m.snapshot.Offers))
	for i, c := range m.snapshot.Offers {
		style := cardStyle
		switch {
		case i == m.cursor:
			style = cardCursorStyle
		case c.Selected:
			style = cardSelectedStyle
		}
		cards = append(cards, style.Render(renderCard(c)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func renderCard(c pipeline.Card) string {
	var b strings.Builder
	head := titleStyle.Render(c.SizeLabel + " Yards")
	if c.Badge != "" {
		head += " " + badgeStyle.Render(c.Badge)
	}
	if c.Selected {
		head += " " + stepDoneStyle.Render("✓ Selected")
	}
	b.WriteString(head + "\n")
	fmt.Fprintf(&b, "%s  %s\n", valueStyle.Render(c.TotalLabel), dimStyle.Render(fmt.Sprintf("%d day hire", c.HirePeriodDays)))
	fmt.Fprintf(&b, "%s · %s\n", c.PlacementLabel, c.HeavyWaste)

	details := []string{
		"Price (ex. VAT): " + nullMoney(c.PriceBeforeVAT.Valid, c.PriceBeforeVAT.Decimal),
		"Transport Cost: " + nullMoney(c.TransportCost.Valid, c.TransportCost.Decimal),
	}
	if c.Area != "" {
		details = append(details, "Area: "+c.Area)
	}
	if c.Postcode != "" {
		details = append(details, "Postcode: "+c.Postcode)
	}
	b.WriteString(dimStyle.Render(strings.Join(details, "  ")))
	return b.String()
}

func nullMoney(valid bool, v pricing.Money) string {
	if !valid {
		return "N/A"
	}
	return pricing.Format(v)
}

func (m Model) viewCheckout(c *pipeline.Checkout) string {
	line := fmt.Sprintf("%s  %s  %s   %s",
		titleStyle.Render(c.Title),
		dimStyle.Render(c.HirePeriodLabel),
		valueStyle.Render(c.TotalLabel),
		stepActiveStyle.Render(" [c] Continue to Checkout "))
	return checkoutStyle.Render(line)
}

func (m Model) viewHelp() string {
	return dimStyle.Render("↑/↓ move • enter select • 1-3/s sort • [ ] min • { } max • p preset • x reset • r reload • q quit")
}

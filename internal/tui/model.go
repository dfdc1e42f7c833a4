package tui

import (
	"time"

	"github.com/noah-isme/skip-hire/internal/pipeline"
)

// Step is one stage of the hire journey shown in the header.
type Step struct {
	Label     string
	Completed bool
}

// DefaultSteps is the journey with "Select Skip" as the current stage.
func DefaultSteps() []Step {
	return []Step{
		{Label: "Postcode", Completed: true},
		{Label: "Waste Type", Completed: true},
		{Label: "Select Skip", Completed: true},
		{Label: "Permit Check"},
		{Label: "Choose Date"},
		{Label: "Payment"},
	}
}

const selectSkipStep = 2

// Options configures a Model.
type Options struct {
	// Location is shown under the page title, e.g. "NR32, Lowestoft".
	Location     string
	FetchTimeout time.Duration
}

// Model is the root bubbletea model for the skip picker. It renders the
// pipeline's latest View and forwards key presses to pipeline commands.
type Model struct {
	pipeline     *pipeline.Pipeline
	location     string
	fetchTimeout time.Duration

	steps      []Step
	activeStep int

	snapshot pipeline.View
	cursor   int

	width  int
	height int

	confirmed *pipeline.Checkout
}

// New builds a Model around p. Init starts the first fetch.
func New(p *pipeline.Pipeline, opts Options) Model {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := Model{
		pipeline:     p,
		location:     opts.Location,
		fetchTimeout: timeout,
		steps:        DefaultSteps(),
		activeStep:   selectSkipStep,
	}
	m.refresh()
	return m
}

// Confirmed returns the checkout the user continued with, or nil when they
// quit without continuing.
func (m Model) Confirmed() *pipeline.Checkout {
	return m.confirmed
}

// Cursor is the index of the highlighted card in the visible offers.
func (m Model) Cursor() int {
	return m.cursor
}

// Snapshot exposes the view the model last rendered.
func (m Model) Snapshot() pipeline.View {
	return m.snapshot
}

// refresh pulls a new snapshot and keeps the cursor on a visible card.
func (m *Model) refresh() {
	m.snapshot = m.pipeline.View()
	switch n := len(m.snapshot.Offers); {
	case n == 0:
		m.cursor = 0
	case m.cursor >= n:
		m.cursor = n - 1
	case m.cursor < 0:
		m.cursor = 0
	}
}

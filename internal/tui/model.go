// Package tui is the interactive terminal browser over the customer table.
// The model owns one table.Store; every mutation happens in Update.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/detail"
	"churn-ops-dashboard/internal/table"
)

// Loader fetches the customer collection.
type Loader interface {
	LoadCollection(ctx context.Context) ([]customer.Record, error)
}

// Dispatcher runs a batch action against the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind actions.Kind, ids []customer.ID) (actions.Outcome, error)
}

// displayColumns is the compact column set rendered in a terminal.
var displayColumns = []table.ColumnID{
	table.ColCustomerID,
	table.ColName,
	table.ColContract,
	table.ColMonthlyCharges,
	table.ColChurnProbability,
	table.ColStatus,
	table.ColChurned,
}

// statusCycle is the order the status filter key steps through; "" clears.
var statusCycle = append([]string{""}, table.StatusFilterValues...)

type loadedMsg struct {
	records []customer.Record
	err     error
}

type actionDoneMsg struct {
	kind    actions.Kind
	outcome actions.Outcome
	err     error
}

// Options tunes a Model. Zero values select defaults.
type Options struct {
	PageSize      int
	ActionTimeout time.Duration
}

// Model is the bubbletea model of the table browser.
type Model struct {
	ctx        context.Context
	loader     Loader
	dispatcher Dispatcher
	opts       Options

	store   *table.Store
	cursor  int
	sortCol int
	status  int

	loading bool
	busy    map[actions.Kind]bool

	filtering bool
	input     textinput.Model

	detail *detail.View

	message    string
	messageErr bool

	spinner spinner.Model
	help    help.Model
	width   int
	height  int
}

// New builds a browser. ctx bounds every backend call the model issues.
func New(ctx context.Context, loader Loader, dispatcher Dispatcher, opts Options) Model {
	if opts.PageSize <= 0 {
		opts.PageSize = table.DefaultPageSize
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 60 * time.Second
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	in := textinput.New()
	in.Placeholder = "name contains..."
	in.Prompt = "filter: "
	in.CharLimit = 64

	return Model{
		ctx:        ctx,
		loader:     loader,
		dispatcher: dispatcher,
		opts:       opts,
		loading:    true,
		busy:       map[actions.Kind]bool{},
		input:      in,
		spinner:    sp,
		help:       help.New(),
		sortCol:    indexOf(table.ColChurnProbability),
	}
}

func indexOf(col table.ColumnID) int {
	for i, c := range displayColumns {
		if c == col {
			return i
		}
	}
	return 0
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m Model) loadCmd() tea.Cmd {
	loader, ctx, timeout := m.loader, m.ctx, m.opts.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		records, err := loader.LoadCollection(ctx)
		return loadedMsg{records: records, err: err}
	}
}

func (m Model) actionCmd(kind actions.Kind, ids []customer.ID) tea.Cmd {
	dispatcher, ctx, timeout := m.dispatcher, m.ctx, m.opts.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		out, err := dispatcher.Dispatch(ctx, kind, ids)
		return actionDoneMsg{kind: kind, outcome: out, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setMessage(loadErrorText(msg.err), true)
			return m, nil
		}
		if err := m.applyRecords(msg.records); err != nil {
			m.setMessage(loadErrorText(err), true)
			return m, nil
		}
		if m.detail != nil {
			if r, ok := m.store.Record(m.detail.CustomerID); ok {
				v := detail.Build(r)
				m.detail = &v
			}
		}
		return m, nil

	case actionDoneMsg:
		m.busy[msg.kind] = false
		if msg.err != nil {
			m.setMessage(msg.err.Error(), true)
			return m, nil
		}
		m.setMessage(msg.outcome.Message, len(msg.outcome.Failed) > 0)
		if msg.outcome.Reload {
			m.loading = true
			return m, m.loadCmd()
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func loadErrorText(err error) string {
	if customer.IsShapeError(err) {
		return "Unexpected data format: " + err.Error()
	}
	return "Failed to load customers: " + err.Error()
}

// applyRecords installs a fresh collection. A reload keeps order, selection
// and table state for ids that survive.
func (m *Model) applyRecords(records []customer.Record) error {
	if m.store == nil {
		st, err := table.NewStore(records, m.opts.PageSize)
		if err != nil {
			return err
		}
		m.store = st
		if err := m.store.SetSort(table.SortKey{Column: displayColumns[m.sortCol], Desc: true}); err != nil {
			return err
		}
	} else if err := m.store.Replace(records); err != nil {
		return err
	}
	m.clampCursor()
	return nil
}

func (m *Model) setMessage(text string, isErr bool) {
	m.message = text
	m.messageErr = isErr
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
		m.input.Blur()
		if m.store != nil {
			if err := m.store.SetFilter(table.ColName, m.input.Value()); err != nil {
				m.setMessage(err.Error(), true)
			}
			m.cursor = 0
		}
		return m, nil
	case tea.KeyEsc:
		m.filtering = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.detail != nil {
		switch {
		case key.Matches(msg, keys.Back, keys.Detail):
			m.detail = nil
		case key.Matches(msg, keys.Notify):
			return m.dispatch(actions.KindNotify, []customer.ID{m.detail.CustomerID})
		case key.Matches(msg, keys.Predict):
			return m.dispatch(actions.KindPredict, []customer.ID{m.detail.CustomerID})
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Reload):
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.loadCmd()
	case key.Matches(msg, keys.Notify):
		return m.startAction(actions.KindNotify)
	case key.Matches(msg, keys.Predict):
		return m.startAction(actions.KindPredict)
	}

	if m.store == nil {
		return m, nil
	}
	rows := m.store.Page().Rows

	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Select):
		if r, ok := m.current(); ok {
			m.store.ToggleSelected(r.CustomerID, !m.store.IsSelected(r.CustomerID))
		}
	case key.Matches(msg, keys.SelectPage):
		all, _ := m.store.PageSelection()
		m.store.ToggleAllOnPage(!all)
	case key.Matches(msg, keys.Sort):
		if err := m.store.ToggleSort(displayColumns[m.sortCol]); err != nil {
			m.setMessage(err.Error(), true)
		}
		m.cursor = 0
	case key.Matches(msg, keys.SortColumn):
		m.sortCol = (m.sortCol + 1) % len(displayColumns)
	case key.Matches(msg, keys.Filter):
		m.filtering = true
		m.input.SetValue(m.store.Filters()[table.ColName])
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, keys.Status):
		m.status = (m.status + 1) % len(statusCycle)
		if err := m.store.SetFilter(table.ColStatus, statusCycle[m.status]); err != nil {
			m.setMessage(err.Error(), true)
		}
		m.cursor = 0
	case key.Matches(msg, keys.NextPage):
		m.store.NextPage()
		m.cursor = 0
	case key.Matches(msg, keys.PrevPage):
		m.store.PreviousPage()
		m.cursor = 0
	case key.Matches(msg, keys.PageSize):
		m.cyclePageSize()
	case key.Matches(msg, keys.MoveUp):
		m.move(-1)
	case key.Matches(msg, keys.MoveDown):
		m.move(1)
	case key.Matches(msg, keys.Detail):
		if r, ok := m.current(); ok {
			v := detail.Build(r)
			m.detail = &v
		}
	}
	m.clampCursor()
	return m, nil
}

// startAction dispatches kind for the selected, filtered rows.
func (m Model) startAction(kind actions.Kind) (tea.Model, tea.Cmd) {
	var ids []customer.ID
	if m.store != nil {
		ids = m.store.SelectedTargets()
	}
	return m.dispatch(kind, ids)
}

// dispatch runs kind for ids in the background. A kind that is already in
// flight ignores the key.
func (m Model) dispatch(kind actions.Kind, ids []customer.ID) (tea.Model, tea.Cmd) {
	if m.busy[kind] {
		return m, nil
	}
	if len(ids) == 0 {
		_, err := m.dispatcher.Dispatch(m.ctx, kind, nil)
		var ve *actions.ValidationError
		if errors.As(err, &ve) {
			m.setMessage(ve.Message, true)
		}
		return m, nil
	}
	m.busy[kind] = true
	m.setMessage(fmt.Sprintf("%s %d customer(s)...", actionVerb(kind), len(ids)), false)
	return m, m.actionCmd(kind, ids)
}

func actionVerb(kind actions.Kind) string {
	if kind == actions.KindNotify {
		return "Notifying"
	}
	return "Predicting churn for"
}

// move shifts the cursor row one slot in the manual order. Only meaningful
// without a sort, since a sort overrides the manual order.
func (m *Model) move(delta int) {
	if len(m.store.Sort()) > 0 {
		m.setMessage("Clear the sort (s) to reorder rows", true)
		return
	}
	rows := m.store.Page().Rows
	target := m.cursor + delta
	if target < 0 || target >= len(rows) {
		return
	}
	if m.store.Reorder(rows[m.cursor].CustomerID, rows[target].CustomerID) {
		m.cursor = target
	}
}

func (m *Model) cyclePageSize() {
	size := m.store.Page().PageSize
	next := table.PageSizes[0]
	for i, s := range table.PageSizes {
		if s == size && i+1 < len(table.PageSizes) {
			next = table.PageSizes[i+1]
		}
	}
	_ = m.store.SetPageSize(next)
}

func (m Model) current() (customer.Record, bool) {
	if m.store == nil {
		return customer.Record{}, false
	}
	rows := m.store.Page().Rows
	if m.cursor < 0 || m.cursor >= len(rows) {
		return customer.Record{}, false
	}
	return rows[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.store == nil {
		m.cursor = 0
		return
	}
	n := len(m.store.Page().Rows)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Busy reports whether kind is in flight.
func (m Model) Busy(kind actions.Kind) bool {
	return m.busy[kind]
}

// Store exposes the table state, nil until the first load completes.
func (m Model) Store() *table.Store {
	return m.store
}

// Run starts the browser on the alternate screen.
func Run(ctx context.Context, loader Loader, dispatcher Dispatcher, opts Options) error {
	p := tea.NewProgram(New(ctx, loader, dispatcher, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

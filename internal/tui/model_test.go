package tui

import (
	"context"
	"errors"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/table"
)

type fakeLoader struct {
	records []customer.Record
	err     error
	calls   int
}

func (f *fakeLoader) LoadCollection(context.Context) ([]customer.Record, error) {
	f.calls++
	return f.records, f.err
}

type fakeBackend struct {
	notified  []int64
	predicted []customer.ID
}

func (f *fakeBackend) Notify(_ context.Context, ids []int64) (churnapi.ActionResponse, error) {
	f.notified = ids
	return churnapi.ActionResponse{}, nil
}

func (f *fakeBackend) Predict(context.Context, []int64) (churnapi.ActionResponse, error) {
	return churnapi.ActionResponse{}, nil
}

func (f *fakeBackend) PredictBatch(_ context.Context, ids []customer.ID) (churnapi.BatchPrediction, error) {
	f.predicted = ids
	preds := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		preds = append(preds, map[string]any{"customer_id": id.String()})
	}
	return churnapi.BatchPrediction{Predictions: preds}, nil
}

func (f *fakeBackend) UploadCSV(context.Context, string, io.Reader) (churnapi.UploadResponse, error) {
	return churnapi.UploadResponse{}, nil
}

func (f *fakeBackend) AskChatbot(context.Context, string) (string, error) {
	return "", nil
}

func fixture() []customer.Record {
	return []customer.Record{
		{CustomerID: "1", FirstName: "Ada", LastName: "Lovelace", ChurnProbability: 0.9},
		{CustomerID: "2", FirstName: "Bob", LastName: "Stone", ChurnProbability: 0.2},
		{CustomerID: "3", FirstName: "Cy", LastName: "Young", ChurnProbability: 0.5, NotifiedDate: customer.ParseTimestamp("2024-03-01")},
		{CustomerID: "4", FirstName: "Dee", LastName: "Park", ChurnProbability: 0.7},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func loaded(t *testing.T, backend *fakeBackend, loader *fakeLoader) Model {
	t.Helper()
	m := New(context.Background(), loader, actions.NewDispatcher(backend), Options{PageSize: 10})
	m, _ = press(t, m, m.loadCmd()())
	require.NotNil(t, m.Store())
	return m
}

func pageIDs(m Model) []customer.ID {
	var out []customer.ID
	for _, r := range m.Store().Page().Rows {
		out = append(out, r.CustomerID)
	}
	return out
}

func TestLoad_SortsByChurnProbability(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})
	assert.False(t, m.loading)
	assert.Equal(t, []customer.ID{"1", "4", "3", "2"}, pageIDs(m))
	assert.Contains(t, m.View(), "Churn Probability")
	assert.Contains(t, m.View(), "Page 1 of 1")
}

func TestLoad_Errors(t *testing.T) {
	m := New(context.Background(), &fakeLoader{err: errors.New("connection refused")}, actions.NewDispatcher(&fakeBackend{}), Options{})
	m, _ = press(t, m, m.loadCmd()())
	assert.Nil(t, m.Store())
	assert.True(t, m.messageErr)
	assert.Contains(t, m.View(), "Failed to load customers: connection refused")

	m = New(context.Background(), &fakeLoader{err: &customer.ShapeError{Reason: "empty payload"}}, actions.NewDispatcher(&fakeBackend{}), Options{})
	m, _ = press(t, m, m.loadCmd()())
	assert.Contains(t, m.message, "Unexpected data format")
}

func TestSelectionAndNotify(t *testing.T) {
	backend := &fakeBackend{}
	m := loaded(t, backend, &fakeLoader{records: fixture()})

	m, _ = press(t, m, runes("j"))
	m, _ = press(t, m, runes(" "))
	assert.Equal(t, []customer.ID{"4"}, m.Store().SelectedTargets())

	m, cmd := press(t, m, runes("N"))
	require.NotNil(t, cmd)
	assert.True(t, m.Busy(actions.KindNotify))

	m, again := press(t, m, runes("N"))
	assert.Nil(t, again, "a second notify is ignored while one is in flight")

	m, reload := press(t, m, cmd())
	assert.Nil(t, reload, "notify does not reload")
	assert.False(t, m.Busy(actions.KindNotify))
	assert.Equal(t, []int64{4}, backend.notified)
	assert.Equal(t, "1 customer(s) notified successfully!", m.message)
	assert.False(t, m.messageErr)
}

func TestNotify_EmptySelection(t *testing.T) {
	backend := &fakeBackend{}
	m := loaded(t, backend, &fakeLoader{records: fixture()})

	m, cmd := press(t, m, runes("N"))
	assert.Nil(t, cmd)
	assert.Nil(t, backend.notified)
	assert.Equal(t, "Please select at least one customer to notify", m.message)
	assert.True(t, m.messageErr)

	m, cmd = press(t, m, runes("P"))
	assert.Nil(t, cmd)
	assert.Equal(t, "Please select at least one customer for prediction", m.message)
}

func TestPredict_ReloadKeepsSelection(t *testing.T) {
	backend := &fakeBackend{}
	loader := &fakeLoader{records: fixture()}
	m := loaded(t, backend, loader)

	m, _ = press(t, m, runes("a"))
	require.Len(t, m.Store().SelectedTargets(), 4)

	m, cmd := press(t, m, runes("P"))
	require.NotNil(t, cmd)
	assert.True(t, m.Busy(actions.KindPredict))
	assert.False(t, m.Busy(actions.KindNotify), "actions are independent")

	m, reload := press(t, m, cmd())
	require.NotNil(t, reload, "a successful prediction reloads the table")
	assert.Equal(t, []customer.ID{"1", "4", "3", "2"}, backend.predicted)

	updated := fixture()
	updated[1].ChurnProbability = 0.95
	loader.records = updated
	m, _ = press(t, m, reload())
	assert.Equal(t, 2, loader.calls)
	assert.Equal(t, []customer.ID{"2", "1", "4", "3"}, pageIDs(m))
	assert.Len(t, m.Store().SelectedTargets(), 4)
}

func TestFilterByName(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})

	m, _ = press(t, m, runes("f"))
	require.True(t, m.filtering)
	for _, r := range "you" {
		m, _ = press(t, m, runes(string(r)))
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.filtering)
	assert.Equal(t, []customer.ID{"3"}, pageIDs(m))

	m, _ = press(t, m, runes("f"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.filtering)
	assert.Equal(t, []customer.ID{"3"}, pageIDs(m), "esc keeps the applied filter")
}

func TestStatusFilterCycle(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})

	m, _ = press(t, m, runes("t"))
	assert.Equal(t, "not_notified", m.Store().Filters()[table.ColStatus])
	assert.Equal(t, []customer.ID{"1", "4", "2"}, pageIDs(m))

	m, _ = press(t, m, runes("t"))
	assert.Equal(t, []customer.ID{"3"}, pageIDs(m))

	for range len(statusCycle) - 2 {
		m, _ = press(t, m, runes("t"))
	}
	assert.Empty(t, m.Store().Filters())
}

func TestSortAndReorder(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})

	m, _ = press(t, m, runes("K"))
	assert.Contains(t, m.message, "Clear the sort")

	m, _ = press(t, m, runes("s"))
	assert.Empty(t, m.Store().Sort())
	assert.Equal(t, []customer.ID{"1", "2", "3", "4"}, pageIDs(m))

	m, _ = press(t, m, runes("J"))
	assert.Equal(t, []customer.ID{"2", "1", "3", "4"}, pageIDs(m))
	assert.Equal(t, 1, m.cursor, "the cursor follows the moved row")

	m, _ = press(t, m, runes("S"))
	assert.Equal(t, table.ColStatus, displayColumns[m.sortCol])
	m, _ = press(t, m, runes("S"))
	m, _ = press(t, m, runes("s"))
	assert.Equal(t, []table.SortKey{{Column: table.ColChurned}}, m.Store().Sort())
}

func TestPagingAndPageSize(t *testing.T) {
	m := New(context.Background(), &fakeLoader{records: fixture()}, actions.NewDispatcher(&fakeBackend{}), Options{PageSize: 10})
	m, _ = press(t, m, m.loadCmd()())
	require.NoError(t, m.Store().SetPageSize(3))

	m, _ = press(t, m, runes("n"))
	assert.Equal(t, []customer.ID{"2"}, pageIDs(m))
	m, _ = press(t, m, runes("n"))
	assert.Equal(t, 1, m.Store().Page().PageIndex, "paging past the end is clamped")
	m, _ = press(t, m, runes("p"))
	assert.Equal(t, 0, m.Store().Page().PageIndex)

	require.NoError(t, m.Store().SetPageSize(10))
	m, _ = press(t, m, runes("z"))
	assert.Equal(t, 20, m.Store().Page().PageSize)
}

func TestDetailView(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})

	m, _ = press(t, m, runes("j"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.detail)
	assert.Equal(t, customer.ID("4"), m.detail.CustomerID)
	view := m.View()
	assert.Contains(t, view, "Dee Park")
	assert.Contains(t, view, "70.00%")
	assert.Contains(t, view, "Notification Status")

	m, _ = press(t, m, runes("j"))
	assert.Equal(t, 1, m.cursor, "table keys are ignored on the detail screen")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, m.detail)
}

func TestDetailView_Actions(t *testing.T) {
	backend := &fakeBackend{}
	loader := &fakeLoader{records: fixture()}
	m := loaded(t, backend, loader)

	m, _ = press(t, m, runes("j"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.detail)
	assert.Empty(t, m.Store().SelectedTargets(), "the shown customer is targeted without selecting it")

	m, cmd := press(t, m, runes("N"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	assert.Equal(t, []int64{4}, backend.notified)
	assert.Contains(t, m.View(), "1 customer(s) notified successfully!")

	m, cmd = press(t, m, runes("P"))
	require.NotNil(t, cmd)
	m, reload := press(t, m, cmd())
	assert.Equal(t, []customer.ID{"4"}, backend.predicted)
	require.NotNil(t, reload)

	updated := fixture()
	updated[3].ChurnProbability = 0.15
	loader.records = updated
	m, _ = press(t, m, reload())
	require.NotNil(t, m.detail, "the detail screen stays open across the reload")
	assert.Contains(t, m.View(), "15.00%")
}

func TestHeadersFitColumns(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})
	view := m.View()
	for _, id := range displayColumns {
		c, ok := table.Lookup(id)
		require.True(t, ok)
		assert.Contains(t, view, c.Header)
	}
	assert.Contains(t, view, "Churn Probability ▼")
}

func TestQuit(t *testing.T) {
	m := loaded(t, &fakeBackend{}, &fakeLoader{records: fixture()})
	_, cmd := press(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", 4))
	assert.Equal(t, "abc…", pad("abcdef", 4))
}

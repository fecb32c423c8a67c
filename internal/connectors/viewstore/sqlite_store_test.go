package viewstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/table"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "views.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertGetList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := table.State{
		Sort:     []table.SortKey{{Column: table.ColChurnProbability, Desc: true}},
		Filters:  map[table.ColumnID]string{table.ColStatus: "responded"},
		Hidden:   []table.ColumnID{table.ColEmail},
		PageSize: 20,
		Order:    []customer.ID{"3", "1"},
	}
	id, err := s.Upsert(ctx, " risky ", "top churners", state)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "risky", got.Name)
	assert.Equal(t, "top churners", got.Description)
	assert.NotNil(t, got.CreatedAt)
	if diff := cmp.Diff(state, got.State); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	// Same name updates in place.
	state.PageSize = 50
	id2, err := s.Upsert(ctx, "risky", "", state)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	_, err = s.Upsert(ctx, "another", "", table.State{})
	require.NoError(t, err)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "another", list[0].Name)
	assert.Equal(t, 50, list[1].State.PageSize)

	byName, err := s.GetByName(ctx, "risky")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
}

func TestUpsert_Validates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, "  ", "", table.State{})
	assert.Error(t, err)

	_, err = s.Upsert(ctx, "bad", "", table.State{Filters: map[table.ColumnID]string{table.ColStatus: "maybe"}})
	assert.Error(t, err)

	_, err = s.Upsert(ctx, "bad", "", table.State{Hidden: []table.ColumnID{table.ColCustomerID}})
	assert.Error(t, err)

	_, err = s.Upsert(ctx, "bad", "", table.State{Sort: []table.SortKey{{Column: "nope"}}})
	assert.ErrorIs(t, err, table.ErrUnknownColumn)
}

func TestDeleteAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Upsert(ctx, "tmp", "", table.State{})
	require.NoError(t, err)

	n, err := s.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByName(ctx, "tmp")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedPresets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
views:
  - name: High risk
    description: not yet contacted
    state:
      sort:
        - column: churn_probability
          desc: true
      filters:
        status: not_notified
  - name: Answered
    state:
      filters:
        status: responded
      page_size: 25
`), 0o600))

	n, err := s.SeedPresets(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := s.GetByName(ctx, "High risk")
	require.NoError(t, err)
	assert.Equal(t, []table.SortKey{{Column: table.ColChurnProbability, Desc: true}}, v.State.Sort)
	assert.Equal(t, "not_notified", v.State.Filters[table.ColStatus])

	// Reseeding is idempotent.
	_, err = s.SeedPresets(ctx, path)
	require.NoError(t, err)
	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err = s.SeedPresets(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParsePresets_Rejects(t *testing.T) {
	_, err := ParsePresets([]byte("views:\n  - description: x\n"))
	assert.Error(t, err)

	_, err = ParsePresets([]byte("views:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)

	_, err = ParsePresets([]byte("views:\n  - name: a\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")

	presets, err := ParsePresets(nil)
	require.NoError(t, err)
	assert.Empty(t, presets)
}

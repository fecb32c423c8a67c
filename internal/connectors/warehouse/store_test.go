package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"churn-ops-dashboard/internal/customer"
)

// The store only uses portable SQL, so an in-memory SQLite database stands in
// for MySQL here.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE customers (
  customer_id INTEGER PRIMARY KEY,
  gender TEXT, senior_citizen INTEGER, partner TEXT, dependents INTEGER, tenure INTEGER,
  phone_service INTEGER, multiple_lines TEXT, internet_service TEXT, online_security TEXT,
  online_backup TEXT, device_protection TEXT, tech_support TEXT, streaming_tv TEXT,
  streaming_movies TEXT, contract TEXT, paperless_billing INTEGER, payment_method TEXT,
  monthly_charges REAL, total_charges REAL, churn INTEGER, status TEXT, notified INTEGER,
  updated_at TEXT, first_name TEXT, last_name TEXT, email TEXT
);
INSERT INTO customers VALUES
  (2, 'Male', 0, 'No', 0, 5, 1, 'No', 'DSL', NULL, 'No', 'No', 'No', 'No', 'No',
   NULL, 0, 'Mailed check', 20.5, 102.5, 0, 'not_notified', 0, NULL, 'Bo', 'Ek', 'bo@example.com'),
  (1, 'Female', 1, 'Yes', 1, 40, 1, 'Yes', 'Fiber optic', 'Yes', 'No', 'Yes', 'No', 'Yes', 'Yes',
   'Two year', 1, 'Credit card', 99.9, 3996, 1, 'notified', 1, '2024-03-01 10:00:00', 'Ada', 'L', 'ada@example.com');
`)
	require.NoError(t, err)

	s, err := NewFromDB(db, "customers", time.Second)
	require.NoError(t, err)
	return s
}

func TestFetchCustomers_EmitsLegacyRows(t *testing.T) {
	s := newTestStore(t)
	raw, err := s.FetchCustomers(context.Background())
	require.NoError(t, err)

	list := raw.(map[string]any)["customers"].([]any)
	require.Len(t, list, 2)
	first := list[0].([]any)
	require.Len(t, first, len(customer.LegacyColumns))
	assert.Equal(t, "1", first[0])
	assert.Equal(t, true, first[3], "yes/no text columns scan as booleans")

	records, err := customer.NormalizeCollection(raw)
	require.NoError(t, err)
	assert.Equal(t, customer.ID("1"), records[0].CustomerID)
	assert.True(t, records[0].Partner)
	assert.Equal(t, 40, records[0].Tenure)
	assert.True(t, records[0].Churned)
	assert.Equal(t, customer.StatusNotified, records[0].Status())
	assert.Equal(t, "Month-to-month", records[1].Contract, "NULL contract falls back to the default")
	assert.Equal(t, "No", records[1].OnlineSecurity)
	assert.False(t, records[1].Partner)
}

func TestFetchCustomer(t *testing.T) {
	s := newTestStore(t)
	raw, err := s.FetchCustomer(context.Background(), "2")
	require.NoError(t, err)

	rec, err := customer.NormalizeValue(raw)
	require.NoError(t, err)
	assert.Equal(t, "Bo Ek", rec.FullName())
	assert.InDelta(t, 102.5, rec.TotalCharges, 1e-9)

	_, err = s.FetchCustomer(context.Background(), "99")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServiceStats(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.ServiceStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.CustomersTotal)
	assert.Equal(t, int64(1), stats.ChurnedTotal)
	assert.Equal(t, int64(1), stats.NotifiedTotal)
	assert.Equal(t, "customers", stats.Table)
}

func TestNewFromDB_RejectsUnsafeTableName(t *testing.T) {
	_, err := NewFromDB(nil, "customers; DROP TABLE x", time.Second)
	assert.Error(t, err)
}

func TestFlexBool(t *testing.T) {
	cases := []struct {
		in    any
		want  bool
		valid bool
	}{
		{nil, false, false},
		{int64(1), true, true},
		{[]byte("0"), false, true},
		{"Yes", true, true},
		{"no", false, true},
		{"true", true, true},
		{"", false, false},
	}
	for _, c := range cases {
		var b flexBool
		require.NoError(t, b.Scan(c.in))
		assert.Equal(t, c.want, b.Bool, "%#v", c.in)
		assert.Equal(t, c.valid, b.Valid, "%#v", c.in)
	}
	var b flexBool
	assert.Error(t, b.Scan("maybe"))
}

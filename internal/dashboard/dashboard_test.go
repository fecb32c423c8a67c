package dashboard

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestParseStats_MissingFieldsAreZero(t *testing.T) {
	stats, err := ParseStats(decode(t, `{"total_customers": 120, "churn_percentage": "26.5", "response_rate": 40}`))
	require.NoError(t, err)
	assert.Equal(t, 120, stats.TotalCustomers)
	assert.InDelta(t, 26.5, stats.ChurnPercentage, 1e-9)
	assert.Zero(t, stats.AtRiskCount)
	assert.True(t, stats.HighChurn())
	assert.True(t, stats.LowResponse())

	normal := Stats{ChurnPercentage: 20, ResponseRate: 50}
	assert.False(t, normal.HighChurn())
	assert.False(t, normal.LowResponse())

	_, err = ParseStats(decode(t, `[1,2]`))
	assert.Error(t, err)
}

func TestParseSeries_Shapes(t *testing.T) {
	wrapped, err := ParseSeries(decode(t, `{"data": [{"date": "2024-05-02", "churn": 4}, {"date": "2024-05-01", "churn": 3}]}`))
	require.NoError(t, err)
	require.Len(t, wrapped, 2)
	assert.Equal(t, "2024-05-01", wrapped[0].Day, "points are sorted by date")

	bare, err := ParseSeries(decode(t, `[{"date": "2024-05-01T12:30:00Z", "churn": "7"}, {"date": "nope", "churn": 1}, 5]`))
	require.NoError(t, err)
	require.Len(t, bare, 1)
	assert.Equal(t, "2024-05-01", bare[0].Day)
	assert.Equal(t, 7.0, bare[0].Churn)

	empty, err := ParseSeries(decode(t, `{"data": null}`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseSeries(decode(t, `"x"`))
	assert.Error(t, err)
}

func TestFilterRange_RelativeToLatestPointInclusive(t *testing.T) {
	var raw []any
	for d := 1; d <= 30; d++ {
		raw = append(raw, map[string]any{"date": fmt.Sprintf("2024-06-%02d", d), "churn": float64(d)})
	}
	points, err := ParseSeries(raw)
	require.NoError(t, err)

	week := FilterRange(points, Range7d)
	require.Len(t, week, 8)
	assert.Equal(t, "2024-06-23", week[0].Day)
	assert.Equal(t, "2024-06-30", week[len(week)-1].Day)

	assert.Len(t, FilterRange(points, Range90d), 30)
	assert.Empty(t, FilterRange(nil, Range30d))
}

func TestParseRange(t *testing.T) {
	assert.Equal(t, Range30d, ParseRange("30D"))
	assert.Equal(t, Range7d, ParseRange("7d"))
	assert.Equal(t, Range90d, ParseRange(""))
	assert.Equal(t, Range90d, ParseRange("1y"))
}

func TestNewOverview(t *testing.T) {
	o := NewOverview(Stats{ChurnPercentage: 30, ResponseRate: 80}, nil, Range30d)
	assert.True(t, o.HighChurn)
	assert.False(t, o.LowResponse)
	assert.NotNil(t, o.Series)
}

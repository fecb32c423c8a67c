package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"churn-ops-dashboard/internal/customer"
)

const (
	HighChurnPercent   = 20.0
	LowResponsePercent = 50.0
)

// Stats are the KPI counters reported by the backend. Missing fields are zero.
type Stats struct {
	TotalCustomers           int     `json:"total_customers"`
	ChurnPercentage          float64 `json:"churn_percentage"`
	ChurnCount               int     `json:"churn_count"`
	NotifiedCount            int     `json:"notified_count"`
	AtRiskCount              int     `json:"at_risk_count"`
	ResponseRate             float64 `json:"response_rate"`
	CustomersWithPredictions int     `json:"customers_with_predictions"`
}

func (s Stats) HighChurn() bool   { return s.ChurnPercentage > HighChurnPercent }
func (s Stats) LowResponse() bool { return s.ResponseRate < LowResponsePercent }

// ParseStats reads a decoded stats object. Unknown fields are ignored.
func ParseStats(v any) (Stats, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Stats{}, fmt.Errorf("dashboard stats: expected object, got %T", v)
	}
	return Stats{
		TotalCustomers:           customer.Int(m["total_customers"]),
		ChurnPercentage:          customer.Number(m["churn_percentage"]),
		ChurnCount:               customer.Int(m["churn_count"]),
		NotifiedCount:            customer.Int(m["notified_count"]),
		AtRiskCount:              customer.Int(m["at_risk_count"]),
		ResponseRate:             customer.Number(m["response_rate"]),
		CustomersWithPredictions: customer.Int(m["customers_with_predictions"]),
	}, nil
}

// ChurnPoint is one day of the churn-over-time series.
type ChurnPoint struct {
	Date  time.Time `json:"-"`
	Day   string    `json:"date"`
	Churn float64   `json:"churn"`
}

// ParseSeries accepts {"data": [...]} or a bare array of {date, churn}
// points. Points with an unparsable date are skipped; the result is sorted by
// date.
func ParseSeries(v any) ([]ChurnPoint, error) {
	var items []any
	switch x := v.(type) {
	case map[string]any:
		raw, ok := x["data"]
		if !ok {
			return nil, fmt.Errorf("churn series: object has no data field")
		}
		if raw == nil {
			return []ChurnPoint{}, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("churn series: data is %T, want array", raw)
		}
		items = list
	case []any:
		items = x
	default:
		return nil, fmt.Errorf("churn series: unsupported payload %T", v)
	}

	out := make([]ChurnPoint, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ts := customer.ParseTimestamp(m["date"])
		if !ts.Valid() {
			continue
		}
		day := ts.Time.Truncate(24 * time.Hour)
		out = append(out, ChurnPoint{
			Date:  day,
			Day:   day.Format("2006-01-02"),
			Churn: customer.Number(m["churn"]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Range is a chart window such as "90d".
type Range string

const (
	Range90d Range = "90d"
	Range30d Range = "30d"
	Range7d  Range = "7d"
)

// ParseRange defaults to Range90d for empty or unknown values.
func ParseRange(raw string) Range {
	switch Range(strings.ToLower(strings.TrimSpace(raw))) {
	case Range30d:
		return Range30d
	case Range7d:
		return Range7d
	default:
		return Range90d
	}
}

func (r Range) Days() int {
	switch r {
	case Range30d:
		return 30
	case Range7d:
		return 7
	default:
		return 90
	}
}

// FilterRange keeps points no older than r.Days() before the latest point.
// The start day is inclusive.
func FilterRange(points []ChurnPoint, r Range) []ChurnPoint {
	if len(points) == 0 {
		return []ChurnPoint{}
	}
	ref := points[0].Date
	for _, p := range points[1:] {
		if p.Date.After(ref) {
			ref = p.Date
		}
	}
	start := ref.AddDate(0, 0, -r.Days())
	out := make([]ChurnPoint, 0, len(points))
	for _, p := range points {
		if !p.Date.Before(start) {
			out = append(out, p)
		}
	}
	return out
}

// Overview is the combined KPI and chart payload of the dashboard page.
type Overview struct {
	Stats       Stats        `json:"stats"`
	HighChurn   bool         `json:"high_churn"`
	LowResponse bool         `json:"low_response"`
	Range       Range        `json:"range"`
	Series      []ChurnPoint `json:"series"`
}

func NewOverview(stats Stats, series []ChurnPoint, r Range) Overview {
	return Overview{
		Stats:       stats,
		HighChurn:   stats.HighChurn(),
		LowResponse: stats.LowResponse(),
		Range:       r,
		Series:      FilterRange(series, r),
	}
}

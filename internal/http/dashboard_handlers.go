package http

import (
	nethttp "net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/dashboard"
	"churn-ops-dashboard/internal/detail"
	"churn-ops-dashboard/internal/table"
)

// overviewHandler fetches the KPI stats and the churn series concurrently and
// trims the series to the requested range.
func overviewHandler(backend *churnapi.Client) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !backend.Enabled() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": "backend not configured (set APP_API_BASE_URL)"})
			return
		}
		rng := dashboard.ParseRange(r.URL.Query().Get("range"))

		var (
			stats  dashboard.Stats
			series []dashboard.ChurnPoint
		)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			start := time.Now()
			var err error
			stats, err = backend.DashboardStats(ctx)
			recordBackendCall("backend", "DashboardStats", time.Since(start).Seconds(), err)
			return err
		})
		g.Go(func() error {
			start := time.Now()
			var err error
			series, err = backend.ChurnOverTime(ctx)
			recordBackendCall("backend", "ChurnOverTime", time.Since(start).Seconds(), err)
			return err
		})
		if err := g.Wait(); err != nil {
			writeUpstreamError(w, "failed to load dashboard", err)
			return
		}

		overview := dashboard.NewOverview(stats, series, rng)
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"range":      rng,
				"days":       rng.Days(),
				"points":     len(overview.Series),
				"points_all": len(series),
				"fetched_at": time.Now().UTC(),
			},
			"data": overview,
		})
	}
}

// dashboardSettingsHandler exposes the fixed thresholds and choices the UI
// renders with.
func dashboardSettingsHandler(defaultPage int, source string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		statuses := make([]map[string]string, 0, len(customer.Statuses))
		for _, s := range customer.Statuses {
			statuses = append(statuses, map[string]string{"value": string(s), "label": s.Label()})
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"data": map[string]any{
				"customer_source":      source,
				"default_page_size":    defaultPage,
				"page_sizes":           table.PageSizes,
				"status_filter_values": table.StatusFilterValues,
				"statuses":             statuses,
				"high_churn_percent":   dashboard.HighChurnPercent,
				"low_response_percent": dashboard.LowResponsePercent,
				"medium_band_from":     detail.MediumBandFrom,
				"high_band_from":       detail.HighBandFrom,
				"ranges":               []dashboard.Range{dashboard.Range90d, dashboard.Range30d, dashboard.Range7d},
			},
		})
	}
}

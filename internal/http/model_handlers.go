package http

import (
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"churn-ops-dashboard/internal/connectors/modelmetrics"
)

func modelMetricsDisabled(w nethttp.ResponseWriter) {
	writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
		"error": "model metrics integration disabled (set APP_MODEL_METRICS_ENABLED=true)",
	})
}

// modelLiveMetricsHandler scrapes the exporter now. With cached=true it
// returns the poller's last snapshots instead.
func modelLiveMetricsHandler(scraper *modelmetrics.Scraper) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !scraper.Enabled() {
			modelMetricsDisabled(w)
			return
		}

		if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
			snaps := scraper.Latest()
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"meta": map[string]any{"cached": true, "targets": len(snaps)},
				"data": snaps,
			})
			return
		}

		start := time.Now()
		snaps, err := scraper.Scrape(r.Context())
		recordBackendCall("model_exporter", "Scrape", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": "failed to scrape model metrics exporter", "detail": err.Error()})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"cached": false, "targets": len(snaps)},
			"data": snaps,
		})
	}
}

func modelMetricsChartHandler(scraper *modelmetrics.Scraper) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !scraper.Enabled() {
			modelMetricsDisabled(w)
			return
		}

		targets := scraper.Targets()
		target := strings.TrimSpace(r.URL.Query().Get("target"))
		if target == "" {
			target = targets[0]
		}

		metric := strings.TrimSpace(r.URL.Query().Get("metric"))
		minutes := 60
		if raw := strings.TrimSpace(r.URL.Query().Get("minutes")); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 24*60*7 {
				minutes = v
			}
		}

		if metric == "" {
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"meta": map[string]any{"target": target, "minutes": minutes},
				"data": map[string]any{
					"targets":       targets,
					"known_metrics": modelmetrics.KnownMetrics,
					"seen_metrics":  scraper.SeenMetrics(target),
				},
			})
			return
		}
		if !modelmetrics.IsModelMetric(metric) {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "unknown model metric", "detail": metric})
			return
		}

		since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
		points := scraper.Series(target, metric, since)
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"target":  target,
				"metric":  metric,
				"minutes": minutes,
				"count":   len(points),
			},
			"data": points,
		})
	}
}

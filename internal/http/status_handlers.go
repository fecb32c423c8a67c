package http

import (
	"context"
	nethttp "net/http"
	"time"

	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/connectors/modelmetrics"
	"churn-ops-dashboard/internal/connectors/viewstore"
	"churn-ops-dashboard/internal/connectors/warehouse"
)

func servicesStatusHandler(backend *churnapi.Client, wh *warehouse.Store, views *viewstore.Store, scraper *modelmetrics.Scraper) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
		defer cancel()

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at": time.Now().UTC(),
			"services": map[string]any{
				"backend":        backendStatus(ctx, backend),
				"warehouse":      warehouseStatus(ctx, wh),
				"view_store":     viewStoreStatus(ctx, views),
				"model_exporter": exporterStatus(ctx, scraper),
			},
		})
	}
}

func backendStatus(ctx context.Context, backend *churnapi.Client) map[string]any {
	if !backend.Enabled() {
		return map[string]any{"enabled": false, "ok": false, "error": "backend not configured"}
	}

	start := time.Now()
	latency, err := backend.Ping(ctx)
	recordBackendCall("backend", "Ping", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "base_url": backend.BaseURL(), "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "base_url": backend.BaseURL(), "ping_ms": latency.Milliseconds()}
}

func warehouseStatus(ctx context.Context, wh *warehouse.Store) map[string]any {
	if wh == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "warehouse integration disabled"}
	}

	start := time.Now()
	stats, err := wh.ServiceStats(ctx)
	recordDBQuery("warehouse", "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

func viewStoreStatus(ctx context.Context, views *viewstore.Store) map[string]any {
	if views == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "saved views disabled"}
	}

	start := time.Now()
	err := views.Ping(ctx)
	recordDBQuery("views", "Ping", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "ping_ms": time.Since(start).Milliseconds()}
}

func exporterStatus(ctx context.Context, scraper *modelmetrics.Scraper) map[string]any {
	if !scraper.Enabled() {
		return map[string]any{"enabled": false, "ok": false, "error": "model metrics integration disabled"}
	}

	start := time.Now()
	probes := scraper.ProbeTargets(ctx)
	recordBackendCall("model_exporter", "ProbeTargets", time.Since(start).Seconds(), nil)

	up := 0
	for _, p := range probes {
		if p.OK {
			up++
		}
	}

	return map[string]any{
		"enabled":       true,
		"ok":            up == len(probes) && len(probes) > 0,
		"targets_total": len(probes),
		"targets_up":    up,
		"targets":       probes,
	}
}

package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"churn-ops-dashboard/internal/connectors/viewstore"
	"churn-ops-dashboard/internal/table"
)

type saveViewRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	State       table.State `json:"state"`
}

func viewsDisabled(w nethttp.ResponseWriter) {
	writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
		"error": "saved views disabled (set APP_VIEWS_SQLITE_PATH)",
	})
}

func listViewsHandler(views *viewstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if views == nil {
			viewsDisabled(w)
			return
		}
		limit := 100
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
				limit = v
			}
		}

		start := time.Now()
		items, err := views.List(r.Context(), limit)
		recordDBQuery("views", "List", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to list views"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"limit": limit, "count": len(items)},
			"data": items,
		})
	}
}

func saveViewHandler(views *viewstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if views == nil {
			viewsDisabled(w)
			return
		}
		var req saveViewRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body", "detail": err.Error()})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "view name is required"})
			return
		}
		if err := req.State.Validate(); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid view state", "detail": err.Error()})
			return
		}

		start := time.Now()
		id, err := views.Upsert(r.Context(), req.Name, req.Description, req.State)
		recordDBQuery("views", "Upsert", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to save view", "detail": err.Error()})
			return
		}
		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"data": map[string]any{"id": id, "name": strings.TrimSpace(req.Name)},
		})
	}
}

func getViewHandler(views *viewstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if views == nil {
			viewsDisabled(w)
			return
		}
		v, err := lookupView(r.Context(), views, chi.URLParam(r, "id"))
		if err != nil {
			writeViewError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": v})
	}
}

func deleteViewHandler(views *viewstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if views == nil {
			viewsDisabled(w)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid view id"})
			return
		}

		start := time.Now()
		n, err := views.Delete(r.Context(), id)
		recordDBQuery("views", "Delete", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to delete view"})
			return
		}
		if n == 0 {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "view not found"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": map[string]any{"deleted": n}})
	}
}

// lookupView accepts a numeric id or a view name.
func lookupView(ctx context.Context, views *viewstore.Store, ref string) (*viewstore.View, error) {
	ref = strings.TrimSpace(ref)
	start := time.Now()
	var (
		v   *viewstore.View
		err error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		v, err = views.Get(ctx, id)
		recordDBQuery("views", "Get", time.Since(start).Seconds(), err)
		return v, err
	}
	v, err = views.GetByName(ctx, ref)
	recordDBQuery("views", "GetByName", time.Since(start).Seconds(), err)
	return v, err
}

func writeViewError(w nethttp.ResponseWriter, err error) {
	if errors.Is(err, viewstore.ErrNotFound) {
		writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "view not found", "detail": err.Error()})
		return
	}
	writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to load view", "detail": err.Error()})
}

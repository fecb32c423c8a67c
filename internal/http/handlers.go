package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/connectors/viewstore"
	"churn-ops-dashboard/internal/connectors/warehouse"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/detail"
	"churn-ops-dashboard/internal/table"
)

const (
	maxPageSize  = 500
	maxBodyBytes = 1 << 20
)

// batchActionRequest carries the selection. When Filters is present the
// selection is narrowed to the rows those filters leave visible.
type batchActionRequest struct {
	CustomerIDs []customer.ID             `json:"customer_ids"`
	Filters     map[table.ColumnID]string `json:"filters,omitempty"`
}

type chatbotRequest struct {
	Question string `json:"question"`
}

func customersHandler(loader *customer.Loader, views *viewstore.Store, defaultPage int) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()

		var state table.State
		if ref := strings.TrimSpace(q.Get("view")); ref != "" {
			if views == nil {
				writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
					"error": "saved views disabled (set APP_VIEWS_SQLITE_PATH)",
				})
				return
			}
			v, err := lookupView(r.Context(), views, ref)
			if err != nil {
				writeViewError(w, err)
				return
			}
			state = v.State
		}
		if err := applyTableQuery(&state, q); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := state.Validate(); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		records, err := loader.LoadCollection(r.Context())
		if err != nil {
			writeUpstreamError(w, "failed to load customers", err)
			return
		}
		store, err := table.NewStore(records, defaultPage)
		if err != nil {
			writeUpstreamError(w, "failed to load customers", err)
			return
		}
		if err := store.ApplyState(state); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		page := store.Page()
		columns := make([]map[string]any, 0, len(table.Columns))
		for _, c := range store.VisibleColumns() {
			columns = append(columns, map[string]any{"id": c.ID, "header": c.Header, "filterable": c.Filterable()})
		}
		meta := map[string]any{
			"page":       page.PageIndex + 1,
			"page_size":  page.PageSize,
			"page_count": page.PageCount,
			"filtered":   page.Filtered,
			"total":      page.Total,
			"sort":       store.Sort(),
			"filters":    store.Filters(),
			"order":      store.Order(),
			"columns":    columns,
		}
		if raw := strings.TrimSpace(q.Get("facets")); raw != "" {
			facets := map[string]any{}
			for _, col := range splitList(raw) {
				items, err := store.Facets(table.ColumnID(col))
				if err != nil {
					writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
					return
				}
				facets[col] = items
			}
			meta["facets"] = facets
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": meta,
			"data": page.Rows,
		})
	}
}

// applyTableQuery overlays URL query parameters on a (possibly saved) state:
//
//	sort=churn_probability,-tenure  filter.status=responded  hidden=email,gender
//	order=3,1,2  page=2 (1-based)  page_size=20
func applyTableQuery(st *table.State, q url.Values) error {
	if raw, ok := q["sort"]; ok {
		st.Sort = table.ParseSort(strings.Join(raw, ","))
	}
	for key, values := range q {
		col, ok := strings.CutPrefix(key, "filter.")
		if !ok || len(values) == 0 {
			continue
		}
		if st.Filters == nil {
			st.Filters = map[table.ColumnID]string{}
		}
		v := strings.TrimSpace(values[len(values)-1])
		if v == "" {
			delete(st.Filters, table.ColumnID(col))
			continue
		}
		st.Filters[table.ColumnID(col)] = v
	}
	if raw, ok := q["hidden"]; ok {
		st.Hidden = nil
		for _, col := range splitList(strings.Join(raw, ",")) {
			st.Hidden = append(st.Hidden, table.ColumnID(col))
		}
	}
	if raw, ok := q["order"]; ok {
		st.Order = customer.ParseIDs(raw)
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageSize {
			return fmt.Errorf("page_size must be between 1 and %d", maxPageSize)
		}
		st.PageSize = n
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("page must be a positive integer")
		}
		st.PageIndex = n - 1
	}
	return nil
}

func customerDetailHandler(loader *customer.Loader) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id, ok := customer.IDFromValue(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "customer id is required"})
			return
		}

		rec, err := loader.LoadOne(r.Context(), id)
		if err != nil {
			if errors.Is(err, warehouse.ErrNotFound) || churnapi.StatusCode(err) == nethttp.StatusNotFound {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "customer not found", "detail": id.String()})
				return
			}
			writeUpstreamError(w, "failed to load customer", err)
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"customer_id": rec.CustomerID},
			"data": map[string]any{
				"customer": rec,
				"view":     detail.Build(rec),
			},
		})
	}
}

func batchActionHandler(dispatcher *actions.Dispatcher, loader *customer.Loader) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		kind, ok := actions.ParseKind(chi.URLParam(r, "kind"))
		if !ok {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "unknown action"})
			return
		}

		var req batchActionRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body", "detail": err.Error()})
			return
		}

		ids := req.CustomerIDs
		if req.Filters != nil && len(ids) > 0 {
			st := table.State{Filters: req.Filters}
			if err := st.Validate(); err != nil {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			scoped, err := visibleSelection(r.Context(), loader, st, ids)
			if err != nil {
				writeUpstreamError(w, "failed to load customers", err)
				return
			}
			ids = scoped
		}

		start := time.Now()
		out, err := dispatcher.Dispatch(r.Context(), kind, ids)
		recordAction(string(kind), actionOutcome(out, err), time.Since(start).Seconds())
		if err != nil {
			writeActionError(w, err)
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"kind": kind, "requested": out.Requested},
			"data": out,
		})
	}
}

// visibleSelection keeps the ids that are loaded and pass the filters of st,
// in display order.
func visibleSelection(ctx context.Context, loader *customer.Loader, st table.State, ids []customer.ID) ([]customer.ID, error) {
	records, err := loader.LoadCollection(ctx)
	if err != nil {
		return nil, err
	}
	store, err := table.NewStore(records, 0)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyState(st); err != nil {
		return nil, err
	}
	for _, id := range ids {
		store.ToggleSelected(id, true)
	}
	return store.SelectedTargets(), nil
}

func actionOutcome(out actions.Outcome, err error) string {
	var ve *actions.ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case err != nil:
		return "error"
	case len(out.Failed) == 0:
		return "ok"
	case out.Succeeded > 0:
		return "partial"
	default:
		return "failed"
	}
}

func uploadHandler(uploader *actions.Uploader, maxBytes int64) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if maxBytes > 0 {
			r.Body = nethttp.MaxBytesReader(w, r.Body, maxBytes)
		}
		start := time.Now()

		mr, err := r.MultipartReader()
		if err != nil {
			recordUpload("invalid", 0, time.Since(start).Seconds())
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "expected multipart/form-data with a file field"})
			return
		}
		var file io.ReadCloser
		var filename string
		for {
			part, err := mr.NextPart()
			if err != nil {
				recordUpload("invalid", 0, time.Since(start).Seconds())
				msg := "missing file field"
				if !errors.Is(err, io.EOF) {
					msg = "malformed multipart body"
				}
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": msg})
				return
			}
			if part.FormName() == "file" {
				file, filename = part, part.FileName()
				break
			}
			_ = part.Close()
		}

		res, err := uploader.Upload(r.Context(), filename, file)
		if err != nil {
			var ve *actions.ValidationError
			var tooLarge *nethttp.MaxBytesError
			switch {
			case errors.As(err, &ve):
				recordUpload("invalid", 0, time.Since(start).Seconds())
			case errors.As(err, &tooLarge):
				recordUpload("too_large", 0, time.Since(start).Seconds())
				writeJSON(w, nethttp.StatusRequestEntityTooLarge, map[string]any{"error": "upload too large", "detail": err.Error()})
				return
			default:
				recordUpload("error", 0, time.Since(start).Seconds())
			}
			writeActionError(w, err)
			return
		}
		recordUpload("ok", res.Processed, time.Since(start).Seconds())

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"filename": filename, "message": res.Message()},
			"data": res,
		})
	}
}

func chatbotHandler(assistant *actions.Assistant) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req chatbotRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body", "detail": err.Error()})
			return
		}
		answer, err := assistant.Ask(r.Context(), req.Question)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"data": map[string]any{"answer": answer},
		})
	}
}

func decodeJSONBody(w nethttp.ResponseWriter, r *nethttp.Request, out any) error {
	dec := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// writeActionError renders the operator-facing failure text of a batch action,
// upload or chatbot call.
func writeActionError(w nethttp.ResponseWriter, err error) {
	var ve *actions.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": ve.Message})
		return
	}
	status, _ := upstreamStatus(err)
	writeJSON(w, status, map[string]any{"error": err.Error(), "detail": upstreamDetail(err)})
}

func writeUpstreamError(w nethttp.ResponseWriter, what string, err error) {
	status, msg := upstreamStatus(err)
	if msg == "" {
		msg = what
	}
	writeJSON(w, status, map[string]any{"error": msg, "detail": err.Error()})
}

// upstreamStatus maps a failure of the backend, the warehouse or the
// normalizer onto a response status and, for known kinds, a fixed message.
func upstreamStatus(err error) (int, string) {
	var (
		shapeErr  *customer.ShapeError
		httpErr   *churnapi.HTTPError
		decodeErr *churnapi.DecodeError
	)
	switch {
	case errors.As(err, &shapeErr):
		return nethttp.StatusBadGateway, "unexpected data format"
	case errors.As(err, &decodeErr):
		return nethttp.StatusBadGateway, "invalid response from backend"
	case errors.As(err, &httpErr):
		return nethttp.StatusBadGateway, ""
	case errors.Is(err, warehouse.ErrNotFound):
		return nethttp.StatusNotFound, "customer not found"
	case errors.Is(err, context.DeadlineExceeded):
		return nethttp.StatusGatewayTimeout, "backend timed out"
	default:
		return nethttp.StatusBadGateway, ""
	}
}

func upstreamDetail(err error) string {
	var httpErr *churnapi.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("%s %s returned HTTP %d", httpErr.Method, httpErr.Path, httpErr.Status)
	}
	var decodeErr *churnapi.DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Error()
	}
	return ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

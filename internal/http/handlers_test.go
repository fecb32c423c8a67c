package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/config"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/connectors/viewstore"
)

const customersFixture = `{"customers": [
	{"customer_id": 1, "first_name": "Ada", "last_name": "Lovelace", "churn_probability": 0.9, "churn": 1,
	 "notified_date": "2024-03-01", "feedback_date": "2024-03-03", "feedback_answer": "yes"},
	{"customer_id": 2, "first_name": "Bob", "last_name": "Stone", "churn_probability": 0.2},
	{"customer_id": 3, "first_name": "Cy", "last_name": "Young", "churn_probability": 0.5, "notified_date": "2024-03-02"},
	{"customer_id": 4, "first_name": "Dee", "last_name": "Park", "churn_probability": 0.7},
	{"customer_id": 5, "first_name": "Eve", "last_name": "Adams", "churn_probability": 0.1,
	 "notified_date": "2024-03-01", "feedback_date": "2024-03-05", "feedback_answer": "no"}
]}`

// fakeBackend serves the churn API routes the dashboard calls. Overrides win
// over the defaults, keyed by request path.
type fakeBackend struct {
	overrides map[string]http.HandlerFunc
	uploaded  string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := f.overrides[r.URL.Path]; ok {
		h(w, r)
		return
	}
	switch r.URL.Path {
	case "/health":
		_, _ = io.WriteString(w, `{"status": "ok"}`)
	case "/customers":
		_, _ = io.WriteString(w, customersFixture)
	case "/customers/3":
		_, _ = io.WriteString(w, `{"customer": {"customer_id": 3, "first_name": "Cy", "churn_probability": 0.5}}`)
	case "/notify":
		_, _ = io.WriteString(w, `{}`)
	case "/predict/batch":
		_, _ = io.WriteString(w, `{"predictions": [{"customer_id": 1}, {"customer_id": 2}], "failed": ["C-3"]}`)
	case "/customers/upload_csv":
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		blob, _ := io.ReadAll(file)
		_ = file.Close()
		f.uploaded = string(blob)
		_, _ = io.WriteString(w, `{"processed": 3, "errors": [], "generated_ids": [7]}`)
	case "/chatbot/query":
		_, _ = io.WriteString(w, `{"answer": "42 customers churned"}`)
	case "/dashboard/stats":
		_, _ = io.WriteString(w, `{"total_customers": 100, "churn_percentage": 26.5, "churn_count": 26,
			"notified_count": 40, "response_rate": 62.5}`)
	case "/dashboard/churn-over-time":
		_, _ = io.WriteString(w, `[{"date": "2024-01-01", "churn": 1}, {"date": "2024-03-25", "churn": 4},
			{"date": "2024-03-31", "churn": 6}]`)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	backend *fakeBackend
	router  chi.Router
	views   *viewstore.Store
}

type envOption func(*testing.T, *config.Config, *testEnv)

func withViews() envOption {
	return func(t *testing.T, _ *config.Config, env *testEnv) {
		store, err := viewstore.NewSQLiteStore(filepath.Join(t.TempDir(), "views.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		env.views = store
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{backend: &fakeBackend{overrides: map[string]http.HandlerFunc{}}}
	srv := httptest.NewServer(env.backend)

	cfg := config.Config{
		APIBaseURL:     srv.URL,
		APITimeout:     5 * time.Second,
		CustomerSource: config.SourceAPI,
		DefaultPage:    10,
		MaxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(t, &cfg, env)
	}

	client := churnapi.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})
	env.router = newRouter(newServices(zap.NewNop(), cfg, client, nil, env.views, nil))
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func (env *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return env.do(t, http.MethodGet, target, nil, "")
}

func (env *testEnv) postJSON(t *testing.T, target, body string) *httptest.ResponseRecorder {
	return env.do(t, http.MethodPost, target, strings.NewReader(body), "application/json")
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func rowIDs(t *testing.T, payload map[string]any) []float64 {
	t.Helper()
	rows, ok := payload["data"].([]any)
	require.True(t, ok, "data is not a list")
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(map[string]any)["customer_id"].(float64))
	}
	return out
}

func TestCustomers_SortAndPaginate(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/customers?sort=-churn_probability&page_size=2")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)
	assert.Equal(t, []float64{1, 4}, rowIDs(t, payload))

	meta := payload["meta"].(map[string]any)
	assert.EqualValues(t, 1, meta["page"])
	assert.EqualValues(t, 3, meta["page_count"])
	assert.EqualValues(t, 5, meta["total"])

	rr = env.get(t, "/api/v1/customers?sort=-churn_probability&page_size=2&page=3")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []float64{5}, rowIDs(t, decodeBody(t, rr)))
}

func TestCustomers_ManualOrder(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/customers?order=4,2,99")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)
	assert.Equal(t, []float64{4, 2, 1, 3, 5}, rowIDs(t, payload))
	meta := payload["meta"].(map[string]any)
	assert.Equal(t, []any{4.0, 2.0, 1.0, 3.0, 5.0}, meta["order"])
}

func TestCustomers_FilterAndFacets(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/customers?filter.status=responded&facets=status")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)
	assert.ElementsMatch(t, []float64{1, 5}, rowIDs(t, payload))

	meta := payload["meta"].(map[string]any)
	assert.EqualValues(t, 2, meta["filtered"])
	assert.EqualValues(t, 5, meta["total"])

	facets := meta["facets"].(map[string]any)["status"].([]any)
	require.Len(t, facets, 4, "a column's own filter does not narrow its facets")
	first := facets[0].(map[string]any)
	assert.Equal(t, "not_notified", first["value"])
	assert.EqualValues(t, 2, first["count"])

	rr = env.get(t, "/api/v1/customers?filter.name=ADA")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.ElementsMatch(t, []float64{1, 5}, rowIDs(t, decodeBody(t, rr)))
}

func TestCustomers_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/customers?sort=bogus",
		"/api/v1/customers?filter.monthly_charges=10",
		"/api/v1/customers?filter.status=cancelled",
		"/api/v1/customers?page_size=501",
		"/api/v1/customers?page=0",
		"/api/v1/customers?facets=bogus",
	} {
		rr := env.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.NotEmpty(t, decodeBody(t, rr)["error"], target)
	}
}

func TestCustomers_UnexpectedShape(t *testing.T) {
	env := newTestEnv(t)
	env.backend.overrides["/customers"] = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"customers": "not a list"}`)
	}

	rr := env.get(t, "/api/v1/customers")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "unexpected data format", decodeBody(t, rr)["error"])
}

func TestCustomers_BackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.overrides["/customers"] = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}

	rr := env.get(t, "/api/v1/customers")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "invalid response from backend", decodeBody(t, rr)["error"])
}

func TestCustomerDetail(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/customers/3")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeBody(t, rr)["data"].(map[string]any)["view"].(map[string]any)
	assert.Equal(t, "Cy", view["name"])
	probability := view["probability"].(map[string]any)
	assert.Equal(t, "50.00%", probability["label"])
	assert.Equal(t, "medium", probability["band"])

	rr = env.get(t, "/api/v1/customers/99")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "customer not found", decodeBody(t, rr)["error"])
}

func TestNotifyAction(t *testing.T) {
	env := newTestEnv(t)
	var got string
	env.backend.overrides["/notify"] = func(w http.ResponseWriter, r *http.Request) {
		blob, _ := io.ReadAll(r.Body)
		got = string(blob)
		_, _ = io.WriteString(w, `{}`)
	}

	rr := env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Please select at least one customer to notify", decodeBody(t, rr)["error"])
	assert.Empty(t, got, "an empty selection never reaches the backend")

	rr = env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": [3, "7"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, "2 customer(s) notified successfully!", data["message"])
	assert.JSONEq(t, `{"customer_ids": [3, 7]}`, got)
}

func TestNotifyAction_SkipsSelectedRowsHiddenByFilter(t *testing.T) {
	env := newTestEnv(t)
	var got string
	env.backend.overrides["/notify"] = func(w http.ResponseWriter, r *http.Request) {
		blob, _ := io.ReadAll(r.Body)
		got = string(blob)
		_, _ = io.WriteString(w, `{}`)
	}

	// 1 and 5 have responded, so only 3 is visible under status=notified.
	rr := env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": [1, 3, 5], "filters": {"status": "notified"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"customer_ids": [3]}`, got)
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["requested"])

	got = ""
	rr = env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": [2], "filters": {"status": "responded"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Please select at least one customer to notify", decodeBody(t, rr)["error"])
	assert.Empty(t, got)

	rr = env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": [2], "filters": {"status": "bogus"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotifyAction_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.overrides["/notify"] = func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "smtp relay down", http.StatusInternalServerError)
	}

	rr := env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": [1]}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	payload := decodeBody(t, rr)
	assert.Equal(t, "Notification failed: smtp relay down", payload["error"])
	assert.Equal(t, "POST /notify returned HTTP 500", payload["detail"])
}

func TestPredictAction_Partial(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postJSON(t, "/api/v1/actions/predict", `{"customer_ids": [1, 2, "C-3"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.EqualValues(t, 3, data["requested"])
	assert.EqualValues(t, 2, data["succeeded"])
	assert.Equal(t, []any{"C-3"}, data["failed"])
	assert.Equal(t, true, data["reload"])
}

func TestActions_UnknownKindAndBadBody(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postJSON(t, "/api/v1/actions/delete", `{"customer_ids": [1]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.postJSON(t, "/api/v1/actions/notify", ``)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "empty body", decodeBody(t, rr)["detail"])
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	part, err := mw.CreateFormFile("file", "customers.csv")
	require.NoError(t, err)
	_, _ = io.WriteString(part, "customer_id,gender\n1,Male\n")
	require.NoError(t, mw.Close())

	rr := env.do(t, http.MethodPost, "/api/v1/customers/upload", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)
	meta := payload["meta"].(map[string]any)
	assert.Equal(t, "customers.csv", meta["filename"])
	assert.Equal(t, "Uploaded 3 customers, 1 IDs generated", meta["message"])
	assert.Equal(t, "customer_id,gender\n1,Male\n", env.backend.uploaded)
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	rr := env.do(t, http.MethodPost, "/api/v1/customers/upload", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "missing file field", decodeBody(t, rr)["error"])

	rr = env.postJSON(t, "/api/v1/customers/upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatbot(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postJSON(t, "/api/v1/chatbot/query", `{"question": "how many churned?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "42 customers churned", decodeBody(t, rr)["data"].(map[string]any)["answer"])

	rr = env.postJSON(t, "/api/v1/chatbot/query", `{"question": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/dashboard/overview?range=7d")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)

	meta := payload["meta"].(map[string]any)
	assert.Equal(t, "7d", meta["range"])
	assert.EqualValues(t, 2, meta["points"])
	assert.EqualValues(t, 3, meta["points_all"])

	data := payload["data"].(map[string]any)
	assert.Equal(t, true, data["high_churn"])
	assert.Equal(t, false, data["low_response"])
	assert.EqualValues(t, 100, data["stats"].(map[string]any)["total_customers"])

	env.backend.overrides["/dashboard/stats"] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	rr = env.get(t, "/api/v1/dashboard/overview")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestDashboardSettings(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/api/v1/settings/dashboard")
	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, "api", data["customer_source"])
	assert.EqualValues(t, 10, data["default_page_size"])
	assert.Contains(t, data["status_filter_values"], "responded")
}

func TestViews_CRUD(t *testing.T) {
	env := newTestEnv(t, withViews())

	rr := env.postJSON(t, "/api/v1/views", `{"name": "At risk", "state": {
		"sort": [{"column": "churn_probability", "desc": true}], "page_size": 2}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decodeBody(t, rr)["data"].(map[string]any)["id"].(float64)

	rr = env.get(t, "/api/v1/views/At%20risk")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, decodeBody(t, rr)["data"].(map[string]any)["id"])

	rr = env.get(t, "/api/v1/customers?view=At%20risk")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []float64{1, 4}, rowIDs(t, decodeBody(t, rr)))

	rr = env.get(t, "/api/v1/customers?view=At%20risk&sort=churn_probability")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []float64{5, 2}, rowIDs(t, decodeBody(t, rr)), "query parameters override the saved state")

	rr = env.get(t, "/api/v1/views")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeBody(t, rr)["meta"].(map[string]any)["count"])

	rr = env.do(t, http.MethodDelete, "/api/v1/views/1", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/v1/views/1", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.get(t, "/api/v1/customers?view=At%20risk")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestViews_RejectInvalidState(t *testing.T) {
	env := newTestEnv(t, withViews())

	rr := env.postJSON(t, "/api/v1/views", `{"name": "bad", "state": {"sort": [{"column": "bogus"}]}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.postJSON(t, "/api/v1/views", `{"name": " ", "state": {}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDisabledIntegrations(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/views",
		"/api/v1/customers?view=1",
		"/api/v1/model/metrics/live",
		"/api/v1/charts/model-metrics",
	} {
		rr := env.get(t, target)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
		assert.Contains(t, decodeBody(t, rr)["error"], "(set APP_", target)
	}
}

func TestServicesStatus(t *testing.T) {
	env := newTestEnv(t, withViews())

	rr := env.get(t, "/api/v1/status/services")
	require.Equal(t, http.StatusOK, rr.Code)
	services := decodeBody(t, rr)["services"].(map[string]any)
	assert.Equal(t, true, services["backend"].(map[string]any)["ok"])
	assert.Equal(t, true, services["view_store"].(map[string]any)["ok"])
	assert.Equal(t, false, services["warehouse"].(map[string]any)["enabled"])
	assert.Equal(t, false, services["model_exporter"].(map[string]any)["enabled"])
}

func TestRequestIDAndNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))

	rr = env.get(t, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "not found", decodeBody(t, rr)["error"])
}

func TestMetricsExposition(t *testing.T) {
	env := newTestEnv(t)
	_ = env.get(t, "/api/v1/customers")
	_ = env.postJSON(t, "/api/v1/actions/notify", `{"customer_ids": []}`)

	rr := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `churn_dashboard_http_requests_total{method="GET",path="/api/v1/customers",status="200"}`)
	assert.Contains(t, body, `churn_dashboard_backend_call_duration_seconds_count{target="backend",operation="FetchCustomers"}`)
	assert.Contains(t, body, `churn_dashboard_batch_actions_total{kind="notify",outcome="invalid"}`)
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "/api/v1/customers")
}

func TestDashboardPage_ActionWiring(t *testing.T) {
	env := newTestEnv(t)
	page := env.get(t, "/").Body.String()

	// Table actions carry the active filters so hidden selections are dropped.
	assert.Contains(t, page, "customer_ids: Array.from(state.selected), filters: state.filters")
	// The upload form is cleared whatever the outcome.
	finally := strings.Index(page, "} finally {\n        form.reset();")
	require.Positive(t, finally, "upload form reset belongs in the finally block")
	// Detail panel actions and manual row moves.
	assert.Contains(t, page, `data-action=\"notify\"`)
	assert.Contains(t, page, `data-action=\"predict\"`)
	assert.Contains(t, page, `q.set("order", state.order.join(","))`)
	assert.Contains(t, page, `data-move=\"-1\"`)
}

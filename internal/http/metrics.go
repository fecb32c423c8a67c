package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
)

const metricPrefix = "churn_dashboard_"

var (
	appStartedAtUnix = time.Now().Unix()
	inFlightRequests int64
	metricsMu        sync.Mutex
	httpSeries       = map[httpMetricKey]*durationSeries{}
	dbQuerySeries    = map[callMetricKey]*durationSeries{}
	externalSeries   = map[callMetricKey]*durationSeries{}
	actionSeries     = map[actionMetricKey]*durationSeries{}
	uploadSeries     = map[string]*durationSeries{}
	uploadedRows     uint64
)

type httpMetricKey struct {
	Method string
	Path   string
	Status string
}

// callMetricKey labels a warehouse query (connector/operation) or a backend
// call (target/operation).
type callMetricKey struct {
	Target    string
	Operation string
}

type actionMetricKey struct {
	Kind    string
	Outcome string
}

type durationSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

func (s *durationSeries) observe(durationSeconds float64, err error) {
	s.Count++
	s.DurationSecondsSum += durationSeconds
	if err != nil {
		s.Errors++
	}
}

type labelled struct {
	labels string
	series durationSeries
}

// snapshot copies a series map under metricsMu and orders it by label text.
func snapshot[K comparable](m map[K]*durationSeries, labels func(K) string) []labelled {
	out := make([]labelled, 0, len(m))
	for k, s := range m {
		out = append(out, labelled{labels: labels(k), series: *s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].labels < out[j].labels })
	return out
}

func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		httpSnap := snapshot(httpSeries, func(k httpMetricKey) string {
			return fmt.Sprintf("method=%q,path=%q,status=%q", escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status))
		})
		dbSnap := snapshot(dbQuerySeries, func(k callMetricKey) string {
			return fmt.Sprintf("connector=%q,operation=%q", escapeLabel(k.Target), escapeLabel(k.Operation))
		})
		exSnap := snapshot(externalSeries, func(k callMetricKey) string {
			return fmt.Sprintf("target=%q,operation=%q", escapeLabel(k.Target), escapeLabel(k.Operation))
		})
		actionSnap := snapshot(actionSeries, func(k actionMetricKey) string {
			return fmt.Sprintf("kind=%q,outcome=%q", escapeLabel(k.Kind), escapeLabel(k.Outcome))
		})
		uploadSnap := snapshot(uploadSeries, func(k string) string {
			return fmt.Sprintf("outcome=%q", escapeLabel(k))
		})
		rows := uploadedRows
		metricsMu.Unlock()

		writeCounter(w, "http_requests_total", "Total HTTP requests handled by this app.", httpSnap, countOf)
		writeCounter(w, "http_request_duration_seconds_sum", "Total duration in seconds for observed requests.", httpSnap, sumOf)
		writeCounter(w, "http_request_duration_seconds_count", "Number of observed requests in duration series.", httpSnap, countOf)
		writeGauge(w, "http_in_flight_requests", "In-flight HTTP requests currently served by this app.", strconv.FormatInt(atomic.LoadInt64(&inFlightRequests), 10))

		writeCounter(w, "db_query_duration_seconds_sum", "Warehouse query duration sum in seconds by connector/operation.", dbSnap, sumOf)
		writeCounter(w, "db_query_duration_seconds_count", "Warehouse query observation count by connector/operation.", dbSnap, countOf)
		writeCounter(w, "db_query_errors_total", "Warehouse query errors by connector/operation.", dbSnap, errorsOf)

		writeCounter(w, "backend_call_duration_seconds_sum", "Backend call duration sum in seconds by target/operation.", exSnap, sumOf)
		writeCounter(w, "backend_call_duration_seconds_count", "Backend call observation count by target/operation.", exSnap, countOf)
		writeCounter(w, "backend_call_errors_total", "Backend call errors by target/operation.", exSnap, errorsOf)

		writeCounter(w, "batch_actions_total", "Batch actions by kind and outcome.", actionSnap, countOf)
		writeCounter(w, "batch_action_duration_seconds_sum", "Batch action duration sum in seconds by kind and outcome.", actionSnap, sumOf)

		writeCounter(w, "uploads_total", "CSV uploads by outcome.", uploadSnap, countOf)
		writeCounter(w, "upload_duration_seconds_sum", "CSV upload duration sum in seconds by outcome.", uploadSnap, sumOf)
		writeTotal(w, "uploaded_customers_total", "Customers processed by successful uploads.", strconv.FormatUint(rows, 10))

		uptime := time.Now().Unix() - appStartedAtUnix
		writeGauge(w, "uptime_seconds", "Process uptime in seconds.", strconv.FormatInt(uptime, 10))

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		writeGauge(w, "runtime_goroutines", "Number of goroutines.", strconv.Itoa(runtime.NumGoroutine()))
		writeGauge(w, "runtime_memory_alloc_bytes", "Heap allocation bytes.", strconv.FormatUint(ms.Alloc, 10))
		writeTotal(w, "runtime_gc_total", "Total GC runs since process start.", strconv.FormatUint(uint64(ms.NumGC), 10))

		proc := readProcStats()
		if proc.hasCPU {
			writeTotal(w, "runtime_cpu_seconds_total", "Total CPU time consumed by this process in seconds.", fmt.Sprintf("%.6f", proc.cpuSeconds))
			if uptime > 0 {
				writeGauge(w, "runtime_cpu_percent", "Average CPU percent of one core since process start.", fmt.Sprintf("%.6f", proc.cpuSeconds/float64(uptime)*100))
			}
		}
		if proc.hasIO {
			writeTotal(w, "runtime_io_read_bytes_total", "Bytes read by this process from storage.", strconv.FormatUint(proc.readBytes, 10))
			writeTotal(w, "runtime_io_write_bytes_total", "Bytes written by this process to storage.", strconv.FormatUint(proc.writeBytes, 10))
		}
	})
}

func countOf(s durationSeries) string  { return strconv.FormatUint(s.Count, 10) }
func errorsOf(s durationSeries) string { return strconv.FormatUint(s.Errors, 10) }
func sumOf(s durationSeries) string    { return fmt.Sprintf("%.9f", s.DurationSecondsSum) }

func writeCounter(w io.Writer, name, help string, rows []labelled, value func(durationSeries) string) {
	_, _ = fmt.Fprintf(w, "# HELP %s%s %s\n", metricPrefix, name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s%s counter\n", metricPrefix, name)
	for _, it := range rows {
		_, _ = fmt.Fprintf(w, "%s%s{%s} %s\n", metricPrefix, name, it.labels, value(it.series))
	}
}

func writeGauge(w io.Writer, name, help, value string) {
	writeSingle(w, "gauge", name, help, value)
}

// writeTotal writes an unlabelled counter.
func writeTotal(w io.Writer, name, help, value string) {
	writeSingle(w, "counter", name, help, value)
}

func writeSingle(w io.Writer, typ, name, help, value string) {
	_, _ = fmt.Fprintf(w, "# HELP %s%s %s\n# TYPE %s%s %s\n%s%s %s\n",
		metricPrefix, name, help, metricPrefix, name, typ, metricPrefix, name, value)
}

func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type endpointRow struct {
			Method  string  `json:"method"`
			Path    string  `json:"path"`
			Status  string  `json:"status"`
			Count   uint64  `json:"count"`
			AvgMS   float64 `json:"avg_ms"`
			TotalMS float64 `json:"total_ms"`
		}
		type callRow struct {
			Target    string  `json:"target"`
			Operation string  `json:"operation"`
			Count     uint64  `json:"count"`
			Errors    uint64  `json:"errors"`
			AvgMS     float64 `json:"avg_ms"`
		}
		type actionRow struct {
			Kind    string `json:"kind"`
			Outcome string `json:"outcome"`
			Count   uint64 `json:"count"`
		}

		avgMS := func(s *durationSeries) float64 {
			if s.Count == 0 {
				return 0
			}
			return (s.DurationSecondsSum / float64(s.Count)) * 1000.0
		}

		metricsMu.Lock()
		httpRows := make([]endpointRow, 0, len(httpSeries))
		for k, s := range httpSeries {
			httpRows = append(httpRows, endpointRow{
				Method:  k.Method,
				Path:    k.Path,
				Status:  k.Status,
				Count:   s.Count,
				AvgMS:   avgMS(s),
				TotalMS: s.DurationSecondsSum * 1000.0,
			})
		}
		callRows := make([]callRow, 0, len(dbQuerySeries)+len(externalSeries))
		var dbErrors, backendErrors uint64
		for k, s := range dbQuerySeries {
			callRows = append(callRows, callRow{Target: "warehouse:" + k.Target, Operation: k.Operation, Count: s.Count, Errors: s.Errors, AvgMS: avgMS(s)})
			dbErrors += s.Errors
		}
		for k, s := range externalSeries {
			callRows = append(callRows, callRow{Target: k.Target, Operation: k.Operation, Count: s.Count, Errors: s.Errors, AvgMS: avgMS(s)})
			backendErrors += s.Errors
		}
		actionRows := make([]actionRow, 0, len(actionSeries))
		for k, s := range actionSeries {
			actionRows = append(actionRows, actionRow{Kind: k.Kind, Outcome: k.Outcome, Count: s.Count})
		}
		metricsMu.Unlock()

		sort.Slice(httpRows, func(i, j int) bool { return httpRows[i].AvgMS > httpRows[j].AvgMS })
		sort.Slice(callRows, func(i, j int) bool { return callRows[i].AvgMS > callRows[j].AvgMS })
		sort.Slice(actionRows, func(i, j int) bool {
			if actionRows[i].Kind != actionRows[j].Kind {
				return actionRows[i].Kind < actionRows[j].Kind
			}
			return actionRows[i].Outcome < actionRows[j].Outcome
		})

		if len(httpRows) > 5 {
			httpRows = httpRows[:5]
		}
		if len(callRows) > 5 {
			callRows = callRows[:5]
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at": time.Now().UTC(),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms":  httpRows,
				"top_calls_slowest_avg_ms": callRows,
				"batch_actions":            actionRows,
				"errors": map[string]any{
					"db_query_total":     dbErrors,
					"backend_call_total": backendErrors,
				},
			},
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&inFlightRequests, 1)
		defer atomic.AddInt64(&inFlightRequests, -1)

		rec, ok := w.(*statusRecorder)
		if !ok {
			rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		next.ServeHTTP(rec, r)

		recordHTTPMetric(r.Method, routePattern(r), rec.status, time.Since(start).Seconds())
	})
}

// routePattern labels requests by their chi route so that ids do not create
// new series. Unmatched paths share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// seriesFor returns the series for key, creating it. metricsMu must be held.
func seriesFor[K comparable](m map[K]*durationSeries, key K) *durationSeries {
	row := m[key]
	if row == nil {
		row = &durationSeries{}
		m[key] = row
	}
	return row
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	key := httpMetricKey{Method: method, Path: path, Status: strconv.Itoa(status)}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	seriesFor(httpSeries, key).observe(durationSeconds, nil)
}

func recordDBQuery(connector, operation string, durationSeconds float64, err error) {
	recordCall(dbQuerySeries, connector, operation, durationSeconds, err)
}

func recordBackendCall(target, operation string, durationSeconds float64, err error) {
	recordCall(externalSeries, target, operation, durationSeconds, err)
}

func recordCall(m map[callMetricKey]*durationSeries, target, operation string, durationSeconds float64, err error) {
	if target == "" || operation == "" {
		return
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	seriesFor(m, callMetricKey{Target: target, Operation: operation}).observe(durationSeconds, err)
}

// recordAction counts one batch action. outcome is ok, partial, invalid or
// failed.
func recordAction(kind, outcome string, durationSeconds float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	seriesFor(actionSeries, actionMetricKey{Kind: strings.ToLower(kind), Outcome: outcome}).observe(durationSeconds, nil)
}

func recordUpload(outcome string, processed int, durationSeconds float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	seriesFor(uploadSeries, outcome).observe(durationSeconds, nil)
	if processed > 0 {
		uploadedRows += uint64(processed)
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}

// procStats is what the kernel reports about this process. Fields stay zero
// where the platform does not expose them.
type procStats struct {
	cpuSeconds float64
	hasCPU     bool
	readBytes  uint64
	writeBytes uint64
	hasIO      bool
}

func readProcStats() procStats {
	var st procStats
	var ru syscall.Rusage
	if syscall.Getrusage(syscall.RUSAGE_SELF, &ru) == nil {
		st.cpuSeconds = timevalSeconds(ru.Utime) + timevalSeconds(ru.Stime)
		st.hasCPU = true
	}
	if raw, err := os.ReadFile("/proc/self/io"); err == nil {
		st.hasIO = true
		for _, line := range strings.Split(string(raw), "\n") {
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
			if err != nil {
				continue
			}
			switch strings.TrimSpace(key) {
			case "read_bytes":
				st.readBytes = n
			case "write_bytes":
				st.writeBytes = n
			}
		}
	}
	return st
}

func timevalSeconds(tv syscall.Timeval) float64 {
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}

package churnapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"churn-ops-dashboard/internal/customer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	c := NewClient(srv.URL+"/", 5*time.Second)
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return c
}

func TestListCustomers_EnvelopeWithLegacyRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers", r.URL.Path)
		_, _ = io.WriteString(w, `{"customers": [
			{"customer_id": 1, "first_name": "Ada", "notified_date": "2024-01-01"},
			[2, "Male", 0, 0, 0, 1, 0, "No", "DSL", "No", "No", "No", "No", "No", "No",
			 "Month-to-month", 0, "Mailed check", 20, 20, 1, "responded_ok", 1, null, "Bo", "", ""]
		]}`)
	})

	records, err := c.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, customer.StatusNotified, records[0].Status())
	assert.Equal(t, customer.StatusRespondedOK, records[1].Status())
	assert.True(t, records[1].Churned)
}

func TestGetCustomer_WrappedAndEscaped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/C%2F9", r.URL.RawPath)
		_, _ = io.WriteString(w, `{"customer": {"customer_id": "C/9", "tenure": 3}}`)
	})

	rec, err := c.GetCustomer(context.Background(), "C/9")
	require.NoError(t, err)
	assert.Equal(t, customer.ID("C/9"), rec.CustomerID)
	assert.Equal(t, 3, rec.Tenure)
}

func TestHTTPErrorCarriesBodyText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/notify":
			http.Error(w, "smtp relay down", http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	_, err := c.Notify(context.Background(), []int64{1})
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadGateway, he.Status)
	assert.Equal(t, "smtp relay down", err.Error())

	_, err = c.DashboardStats(context.Background())
	require.Error(t, err)
	assert.Equal(t, "HTTP 500", err.Error())
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestInvalidJSONOnSuccessIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>ok</html>")
	})

	_, err := c.Notify(context.Background(), []int64{1})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "/notify", de.Path)
	assert.Zero(t, StatusCode(err))
}

func TestPredictBatch_RequestAndFailedShapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict/batch", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `[4, "C-7"]`, string(body["customer_ids"]))
		_, _ = io.WriteString(w, `{"message": "done", "predictions": [{"customer_id": 4}],
			"failed": ["C-7", {"customer_id": 8, "error": "missing features"}]}`)
	})

	res, err := c.PredictBatch(context.Background(), []customer.ID{"4", "C-7"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Message)
	assert.Len(t, res.Predictions, 1)
	assert.Equal(t, []FailedPrediction{
		{CustomerID: "C-7"},
		{CustomerID: "8", Reason: "missing features"},
	}, res.Failed)
}

func TestUploadCSV_StreamsMultipartFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers/upload_csv", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		blob, _ := io.ReadAll(file)
		assert.Equal(t, "customers.csv", header.Filename)
		assert.Equal(t, "id,gender\n1,Male\n", string(blob))
		_, _ = io.WriteString(w, `{"processed": 5, "errors": [], "generated_ids": [2, 3]}`)
	})

	res, err := c.UploadCSV(context.Background(), "customers.csv", strings.NewReader("id,gender\n1,Male\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
	assert.Len(t, res.GeneratedIDs, 2)
	assert.Empty(t, res.Errors)
}

func TestUploadCSV_ServerRejectsEarly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad header row", http.StatusBadRequest)
	})

	_, err := c.UploadCSV(context.Background(), "x.csv", strings.NewReader(strings.Repeat("a,b\n", 1000)))
	require.Error(t, err)
	assert.Equal(t, "bad header row", err.Error())
}

// endlessReader yields CSV rows forever and counts reads made after done is set.
type endlessReader struct {
	done      atomic.Bool
	lateReads atomic.Int32
}

func (r *endlessReader) Read(p []byte) (int, error) {
	if r.done.Load() {
		r.lateReads.Add(1)
	}
	return copy(p, strings.Repeat("a,b\n", len(p)/4+1)), nil
}

func TestUploadCSV_StopsReadingSourceOnReturn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad header row", http.StatusBadRequest)
	})

	src := &endlessReader{}
	_, err := c.UploadCSV(context.Background(), "x.csv", src)
	src.done.Store(true)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, src.lateReads.Load(), "source read after UploadCSV returned")
}

func TestChurnOverTimeAndChatbot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dashboard/churn-over-time":
			_, _ = io.WriteString(w, `[{"date": "2024-04-01", "churn": 5}]`)
		case "/chatbot/query":
			var body struct {
				Question string `json:"question"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = io.WriteString(w, `{"answer": "you asked: `+body.Question+`"}`)
		default:
			http.NotFound(w, r)
		}
	})

	series, err := c.ChurnOverTime(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 5.0, series[0].Churn)

	answer, err := c.AskChatbot(context.Background(), "how many")
	require.NoError(t, err)
	assert.Equal(t, "you asked: how many", answer)
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("  ", 0)
	assert.False(t, c.Enabled())
	_, err := c.FetchCustomers(context.Background())
	assert.Error(t, err)
	_, err = c.UploadCSV(context.Background(), "x.csv", strings.NewReader(""))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.FetchCustomers(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package churnapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/dashboard"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 2048
)

// HTTPError is a non-2xx answer from the backend. Body is the response text.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error returns the response body text, or "HTTP <status>" when it is empty.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// DecodeError is a 2xx answer whose body is not valid JSON.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON response from %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Client talks to the churn-prediction backend.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Close releases idle keep-alive connections.
func (c *Client) Close() {
	if c != nil {
		c.http.CloseIdleConnections()
	}
}

// FetchCustomers returns the decoded /customers payload.
func (c *Client) FetchCustomers(ctx context.Context) (any, error) {
	return c.getJSON(ctx, "/customers")
}

// FetchCustomer returns the decoded /customers/{id} payload.
func (c *Client) FetchCustomer(ctx context.Context, id customer.ID) (any, error) {
	return c.getJSON(ctx, "/customers/"+url.PathEscape(id.String()))
}

// ListCustomers fetches and normalizes the full collection.
func (c *Client) ListCustomers(ctx context.Context) ([]customer.Record, error) {
	return customer.NewLoader(c).LoadCollection(ctx)
}

// GetCustomer fetches and normalizes one customer.
func (c *Client) GetCustomer(ctx context.Context, id customer.ID) (customer.Record, error) {
	return customer.NewLoader(c).LoadOne(ctx, id)
}

// ActionResponse is the body of /notify and /predict.
type ActionResponse struct {
	Message string `json:"message"`
}

// Notify asks the backend to notify the given customers.
func (c *Client) Notify(ctx context.Context, ids []int64) (ActionResponse, error) {
	var out ActionResponse
	err := c.postJSON(ctx, "/notify", map[string]any{"customer_ids": ids}, &out)
	return out, err
}

// Predict runs the single-shot prediction endpoint.
func (c *Client) Predict(ctx context.Context, ids []int64) (ActionResponse, error) {
	var out ActionResponse
	err := c.postJSON(ctx, "/predict", map[string]any{"customer_ids": ids}, &out)
	return out, err
}

// FailedPrediction is one entry of the failed list of a batch prediction.
type FailedPrediction struct {
	CustomerID customer.ID `json:"customer_id"`
	Reason     string      `json:"reason,omitempty"`
}

// BatchPrediction is the body of /predict/batch.
type BatchPrediction struct {
	Message     string             `json:"message"`
	Predictions []map[string]any   `json:"predictions"`
	Failed      []FailedPrediction `json:"failed"`
}

// UnmarshalJSON accepts failed entries as bare ids or as objects.
func (b *BatchPrediction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Message     string           `json:"message"`
		Predictions []map[string]any `json:"predictions"`
		Failed      []any            `json:"failed"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	b.Message = raw.Message
	b.Predictions = raw.Predictions
	b.Failed = make([]FailedPrediction, 0, len(raw.Failed))
	for _, f := range raw.Failed {
		switch x := f.(type) {
		case map[string]any:
			v, ok := x["customer_id"]
			if !ok {
				v = x["id"]
			}
			id, _ := customer.IDFromValue(v)
			reason := customer.Text(x["error"], customer.Text(x["reason"], ""))
			b.Failed = append(b.Failed, FailedPrediction{CustomerID: id, Reason: reason})
		default:
			if id, ok := customer.IDFromValue(x); ok {
				b.Failed = append(b.Failed, FailedPrediction{CustomerID: id})
			}
		}
	}
	return nil
}

// PredictBatch runs the batch prediction endpoint. Ids keep their string or
// integer form.
func (c *Client) PredictBatch(ctx context.Context, ids []customer.ID) (BatchPrediction, error) {
	var out BatchPrediction
	err := c.postJSON(ctx, "/predict/batch", map[string]any{"customer_ids": ids}, &out)
	return out, err
}

// UploadResponse is the body of /customers/upload_csv. Counts default to zero.
type UploadResponse struct {
	Processed    int
	Errors       []any
	GeneratedIDs []any
}

// UploadCSV streams r to the backend as the multipart field "file". r is not
// read after UploadCSV returns.
func (c *Client) UploadCSV(ctx context.Context, filename string, r io.Reader) (UploadResponse, error) {
	if !c.Enabled() {
		return UploadResponse{}, errors.New("churn api base url not configured")
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	// Closing the read side fails the writer's next Write, so a response that
	// arrives before the body is sent still ends the copy.
	defer func() {
		_ = pr.Close()
		<-written
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/customers/upload_csv", pr)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var raw map[string]any
	if err := c.do(req, "/customers/upload_csv", &raw); err != nil {
		return UploadResponse{}, err
	}
	out := UploadResponse{Processed: customer.Int(raw["processed"])}
	if list, ok := raw["errors"].([]any); ok {
		out.Errors = list
	}
	if list, ok := raw["generated_ids"].([]any); ok {
		out.GeneratedIDs = list
	}
	return out, nil
}

// DashboardStats fetches the KPI counters.
func (c *Client) DashboardStats(ctx context.Context) (dashboard.Stats, error) {
	raw, err := c.getJSON(ctx, "/dashboard/stats")
	if err != nil {
		return dashboard.Stats{}, err
	}
	return dashboard.ParseStats(raw)
}

// ChurnOverTime fetches the churn series.
func (c *Client) ChurnOverTime(ctx context.Context) ([]dashboard.ChurnPoint, error) {
	raw, err := c.getJSON(ctx, "/dashboard/churn-over-time")
	if err != nil {
		return nil, err
	}
	return dashboard.ParseSeries(raw)
}

// AskChatbot relays a question and returns the raw answer.
func (c *Client) AskChatbot(ctx context.Context, question string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	if err := c.postJSON(ctx, "/chatbot/query", map[string]any{"question": question}, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Ping checks backend reachability through its health endpoint.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, err := c.getJSON(ctx, "/health")
	return time.Since(start), err
}

func (c *Client) getJSON(ctx context.Context, path string) (any, error) {
	if !c.Enabled() {
		return nil, errors.New("churn api base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	var out any
	if err := c.do(req, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	if !c.Enabled() {
		return errors.New("churn api base url not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Method: req.Method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(blob)),
		}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

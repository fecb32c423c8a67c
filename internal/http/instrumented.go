package http

import (
	"context"
	"io"
	"time"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/customer"
)

// instrumentedSource records every customer fetch as a backend call or a
// warehouse query.
type instrumentedSource struct {
	name  string
	inner customer.Source
	db    bool
}

func (s instrumentedSource) FetchCustomers(ctx context.Context) (any, error) {
	start := time.Now()
	v, err := s.inner.FetchCustomers(ctx)
	s.record("FetchCustomers", start, err)
	return v, err
}

func (s instrumentedSource) FetchCustomer(ctx context.Context, id customer.ID) (any, error) {
	start := time.Now()
	v, err := s.inner.FetchCustomer(ctx, id)
	s.record("FetchCustomer", start, err)
	return v, err
}

func (s instrumentedSource) record(op string, start time.Time, err error) {
	if s.db {
		recordDBQuery(s.name, op, time.Since(start).Seconds(), err)
		return
	}
	recordBackendCall(s.name, op, time.Since(start).Seconds(), err)
}

// instrumentedBackend times the backend calls made by batch actions, uploads
// and the chatbot.
type instrumentedBackend struct {
	inner actions.Backend
}

var _ actions.Backend = instrumentedBackend{}

func (b instrumentedBackend) Notify(ctx context.Context, ids []int64) (churnapi.ActionResponse, error) {
	start := time.Now()
	res, err := b.inner.Notify(ctx, ids)
	recordBackendCall("backend", "Notify", time.Since(start).Seconds(), err)
	return res, err
}

func (b instrumentedBackend) Predict(ctx context.Context, ids []int64) (churnapi.ActionResponse, error) {
	start := time.Now()
	res, err := b.inner.Predict(ctx, ids)
	recordBackendCall("backend", "Predict", time.Since(start).Seconds(), err)
	return res, err
}

func (b instrumentedBackend) PredictBatch(ctx context.Context, ids []customer.ID) (churnapi.BatchPrediction, error) {
	start := time.Now()
	res, err := b.inner.PredictBatch(ctx, ids)
	recordBackendCall("backend", "PredictBatch", time.Since(start).Seconds(), err)
	return res, err
}

func (b instrumentedBackend) UploadCSV(ctx context.Context, filename string, r io.Reader) (churnapi.UploadResponse, error) {
	start := time.Now()
	res, err := b.inner.UploadCSV(ctx, filename, r)
	recordBackendCall("backend", "UploadCSV", time.Since(start).Seconds(), err)
	return res, err
}

func (b instrumentedBackend) AskChatbot(ctx context.Context, question string) (string, error) {
	start := time.Now()
	res, err := b.inner.AskChatbot(ctx, question)
	recordBackendCall("backend", "AskChatbot", time.Since(start).Seconds(), err)
	return res, err
}

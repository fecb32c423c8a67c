package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/customer"
)

// Kind is a batch action.
type Kind string

const (
	KindNotify  Kind = "notify"
	KindPredict Kind = "predict"
)

// ParseKind recognizes "notify" and "predict".
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindNotify:
		return KindNotify, true
	case KindPredict:
		return KindPredict, true
	}
	return "", false
}

// Backend is the subset of the churn API used by actions.
type Backend interface {
	Notify(ctx context.Context, ids []int64) (churnapi.ActionResponse, error)
	Predict(ctx context.Context, ids []int64) (churnapi.ActionResponse, error)
	PredictBatch(ctx context.Context, ids []customer.ID) (churnapi.BatchPrediction, error)
	UploadCSV(ctx context.Context, filename string, r io.Reader) (churnapi.UploadResponse, error)
	AskChatbot(ctx context.Context, question string) (string, error)
}

// ValidationError is a local precondition failure. No request was issued.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ActionError is a failed backend call, phrased for the operator.
type ActionError struct {
	Kind Kind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind.noun(), e.Err.Error())
}

func (e *ActionError) Unwrap() error { return e.Err }

func (k Kind) noun() string {
	switch k {
	case KindNotify:
		return "Notification"
	case KindPredict:
		return "Prediction"
	case kindUpload:
		return "Upload"
	default:
		return "Request"
	}
}

// Outcome is the aggregate result of one batch action.
type Outcome struct {
	Kind      Kind          `json:"kind"`
	Message   string        `json:"message"`
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
	Failed    []customer.ID `json:"failed"`
	// Reload asks the caller to refetch the whole collection.
	Reload bool `json:"reload"`
}

// Dispatcher turns a selection of ids into one backend call.
type Dispatcher struct {
	backend Backend
}

func NewDispatcher(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// Dispatch runs kind for ids. An empty id list fails locally with a
// ValidationError; backend failures are returned as ActionError.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, ids []customer.ID) (Outcome, error) {
	switch kind {
	case KindNotify:
		return d.Notify(ctx, ids)
	case KindPredict:
		return d.Predict(ctx, ids)
	default:
		return Outcome{}, &ValidationError{Message: fmt.Sprintf("unknown action %q", kind)}
	}
}

// Notify sends one notify request for all ids.
func (d *Dispatcher) Notify(ctx context.Context, ids []customer.ID) (Outcome, error) {
	if len(ids) == 0 {
		return Outcome{}, &ValidationError{Message: "Please select at least one customer to notify"}
	}
	numeric, err := integerIDs(ids)
	if err != nil {
		return Outcome{}, err
	}
	res, err := d.backend.Notify(ctx, numeric)
	if err != nil {
		return Outcome{}, &ActionError{Kind: KindNotify, Err: err}
	}
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("%d customer(s) notified successfully!", len(ids))
	}
	return Outcome{
		Kind:      KindNotify,
		Message:   msg,
		Requested: len(ids),
		Succeeded: len(ids),
		Failed:    []customer.ID{},
	}, nil
}

// Predict runs the batch prediction endpoint and falls back to the
// single-shot endpoint when the backend has no batch route.
func (d *Dispatcher) Predict(ctx context.Context, ids []customer.ID) (Outcome, error) {
	if len(ids) == 0 {
		return Outcome{}, &ValidationError{Message: "Please select at least one customer for prediction"}
	}
	res, err := d.backend.PredictBatch(ctx, ids)
	if churnapi.StatusCode(err) == http.StatusNotFound {
		return d.predictLegacy(ctx, ids)
	}
	if err != nil {
		return Outcome{}, &ActionError{Kind: KindPredict, Err: err}
	}

	failed := make([]customer.ID, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.CustomerID)
	}
	succeeded := len(res.Predictions)
	if res.Predictions == nil {
		succeeded = max(len(ids)-len(failed), 0)
	}
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("Churn prediction completed for %d customer(s)!", succeeded)
		if len(failed) > 0 {
			msg += fmt.Sprintf(" %d failed.", len(failed))
		}
	}
	return Outcome{
		Kind:      KindPredict,
		Message:   msg,
		Requested: len(ids),
		Succeeded: succeeded,
		Failed:    failed,
		Reload:    succeeded > 0,
	}, nil
}

func (d *Dispatcher) predictLegacy(ctx context.Context, ids []customer.ID) (Outcome, error) {
	numeric, err := integerIDs(ids)
	if err != nil {
		return Outcome{}, err
	}
	res, err := d.backend.Predict(ctx, numeric)
	if err != nil {
		return Outcome{}, &ActionError{Kind: KindPredict, Err: err}
	}
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("Churn prediction completed for %d customer(s)!", len(ids))
	}
	return Outcome{
		Kind:      KindPredict,
		Message:   msg,
		Requested: len(ids),
		Succeeded: len(ids),
		Failed:    []customer.ID{},
		Reload:    true,
	}, nil
}

func integerIDs(ids []customer.ID) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, ok := id.Int()
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("customer id %q is not numeric", id)}
		}
		out = append(out, n)
	}
	return out, nil
}

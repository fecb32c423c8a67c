package customer

import (
	"fmt"
	"strings"
)

// LegacyColumns is the fixed column order of legacy positional rows (the
// backend's "SELECT * FROM customers" tuple). It is kept for backward
// compatibility only and must not grow.
var LegacyColumns = [27]string{
	"customer_id",
	"gender",
	"senior_citizen",
	"partner",
	"dependents",
	"tenure",
	"phone_service",
	"multiple_lines",
	"internet_service",
	"online_security",
	"online_backup",
	"device_protection",
	"tech_support",
	"streaming_tv",
	"streaming_movies",
	"contract",
	"paperless_billing",
	"payment_method",
	"monthly_charges",
	"total_charges",
	"churn",
	"status",
	"notified",
	"updated_at",
	"first_name",
	"last_name",
	"email",
}

const (
	defaultService  = "No"
	defaultContract = "Month-to-month"
)

// Normalize turns any recognized payload shape into a Record.
func Normalize(p Payload) (Record, error) {
	switch x := p.(type) {
	case KeyedPayload:
		return normalizeKeyed(x)
	case WrappedPayload:
		if x.Customer == nil {
			return Record{}, shapeErrorf("empty customer envelope")
		}
		return normalizeKeyed(x.Customer)
	case PositionalPayload:
		if len(x) != len(LegacyColumns) {
			return Record{}, shapeErrorf("positional record has %d values, want %d", len(x), len(LegacyColumns))
		}
		keyed := make(KeyedPayload, len(LegacyColumns))
		for i, col := range LegacyColumns {
			keyed[col] = x[i]
		}
		return normalizeKeyed(keyed)
	case nil:
		return Record{}, shapeErrorf("empty payload")
	default:
		return Record{}, shapeErrorf("unsupported payload %s", p.shape())
	}
}

// NormalizeValue classifies and normalizes a decoded JSON value.
func NormalizeValue(v any) (Record, error) {
	p, err := PayloadOf(v)
	if err != nil {
		return Record{}, err
	}
	return Normalize(p)
}

// NormalizeCollection accepts either a {"customers": [...]} envelope or a bare
// array. Every element must normalize and ids must be unique.
func NormalizeCollection(v any) ([]Record, error) {
	var items []any
	switch x := v.(type) {
	case map[string]any:
		raw, ok := x["customers"]
		if !ok {
			return nil, shapeErrorf("collection has no customers field")
		}
		if raw == nil {
			return []Record{}, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, shapeErrorf("customers field is %T, want array", raw)
		}
		items = list
	case []any:
		items = x
	case nil:
		return nil, shapeErrorf("empty collection")
	default:
		return nil, shapeErrorf("unsupported collection type %T", v)
	}

	out := make([]Record, 0, len(items))
	seen := make(map[ID]int, len(items))
	for i, item := range items {
		rec, err := NormalizeValue(item)
		if err != nil {
			return nil, fmt.Errorf("customer at index %d: %w", i, err)
		}
		if prev, dup := seen[rec.CustomerID]; dup {
			return nil, shapeErrorf("duplicate customer_id %s at index %d and %d", rec.CustomerID, prev, i)
		}
		seen[rec.CustomerID] = i
		out = append(out, rec)
	}
	return out, nil
}

func normalizeKeyed(m KeyedPayload) (Record, error) {
	rawID, _ := lookup(m, "customer_id", "id")
	id, ok := IDFromValue(rawID)
	if !ok {
		return Record{}, shapeErrorf("record has no customer_id")
	}

	rec := Record{
		CustomerID: id,

		Gender:        text(m, "", "gender"),
		SeniorCitizen: flag(m, "senior_citizen"),
		Partner:       flag(m, "partner"),
		Dependents:    flag(m, "dependents"),
		Tenure:        Int(get(m, "tenure")),

		PhoneService:     flag(m, "phone_service"),
		MultipleLines:    text(m, defaultService, "multiple_lines"),
		InternetService:  text(m, defaultService, "internet_service"),
		OnlineSecurity:   text(m, defaultService, "online_security"),
		OnlineBackup:     text(m, defaultService, "online_backup"),
		DeviceProtection: text(m, defaultService, "device_protection"),
		TechSupport:      text(m, defaultService, "tech_support"),
		StreamingTV:      text(m, defaultService, "streaming_tv"),
		StreamingMovies:  text(m, defaultService, "streaming_movies"),

		Contract:         text(m, defaultContract, "contract"),
		PaperlessBilling: flag(m, "paperless_billing"),
		PaymentMethod:    text(m, "", "payment_method"),
		MonthlyCharges:   NonNegative(get(m, "monthly_charges")),
		TotalCharges:     NonNegative(get(m, "total_charges")),

		ChurnProbability: Number(get(m, "churn_probability")),

		NotifiedDate:   ParseTimestamp(get(m, "notified_date")),
		FeedbackDate:   ParseTimestamp(get(m, "feedback_date")),
		FeedbackAnswer: text(m, "", "feedback_answer"),

		FirstName: text(m, "", "first_name"),
		LastName:  text(m, "", "last_name"),
		Email:     text(m, "", "email"),

		Notified:     flag(m, "notified"),
		StoredStatus: strings.ToLower(text(m, "", "status")),
		UpdatedAt:    ParseTimestamp(get(m, "updated_at")),
	}

	// A prediction flag wins even when it is present but falsy.
	if v, ok := lookup(m, "prediction", "churned"); ok {
		rec.Churned = Bool(v)
	} else {
		rec.Churned = Bool(get(m, "churn"))
	}

	return rec, nil
}

func lookup(m KeyedPayload, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func get(m KeyedPayload, key string) any {
	return m[key]
}

func flag(m KeyedPayload, key string) bool {
	return Bool(m[key])
}

func text(m KeyedPayload, def string, key string) string {
	return Text(m[key], def)
}

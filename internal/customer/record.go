package customer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is the canonical customer-prediction record produced by Normalize.
type Record struct {
	CustomerID ID `json:"customer_id"`

	Gender        string `json:"gender"`
	SeniorCitizen bool   `json:"senior_citizen"`
	Partner       bool   `json:"partner"`
	Dependents    bool   `json:"dependents"`
	Tenure        int    `json:"tenure"`

	PhoneService     bool   `json:"phone_service"`
	MultipleLines    string `json:"multiple_lines"`
	InternetService  string `json:"internet_service"`
	OnlineSecurity   string `json:"online_security"`
	OnlineBackup     string `json:"online_backup"`
	DeviceProtection string `json:"device_protection"`
	TechSupport      string `json:"tech_support"`
	StreamingTV      string `json:"streaming_tv"`
	StreamingMovies  string `json:"streaming_movies"`

	Contract         string  `json:"contract"`
	PaperlessBilling bool    `json:"paperless_billing"`
	PaymentMethod    string  `json:"payment_method"`
	MonthlyCharges   float64 `json:"monthly_charges"`
	TotalCharges     float64 `json:"total_charges"`

	ChurnProbability float64 `json:"churn_probability"`
	Churned          bool    `json:"churned"`

	NotifiedDate   *Timestamp `json:"notified_date,omitempty"`
	FeedbackDate   *Timestamp `json:"feedback_date,omitempty"`
	FeedbackAnswer string     `json:"feedback_answer,omitempty"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`

	// Legacy columns. StoredStatus is only consulted when no lifecycle
	// timestamp is available.
	Notified     bool       `json:"notified"`
	StoredStatus string     `json:"-"`
	UpdatedAt    *Timestamp `json:"updated_at,omitempty"`
}

// MarshalJSON adds the derived status so consumers never read a stored one.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
	}{plain: plain(r), Status: r.Status()})
}

// FullName joins first and last name, falling back to the id.
func (r Record) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
	if name == "" {
		return "Customer " + r.CustomerID.String()
	}
	return name
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is an optional backend timestamp. Raw keeps the value as sent;
// Time is zero when Raw could not be parsed. A non-nil *Timestamp means the
// backend set the field, which is what status derivation cares about.
type Timestamp struct {
	Raw  string
	Time time.Time
}

// ParseTimestamp returns nil for absent or falsy values.
func ParseTimestamp(v any) *Timestamp {
	switch x := v.(type) {
	case nil:
		return nil
	case *Timestamp:
		return x
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return &Timestamp{Raw: x.UTC().Format(time.RFC3339), Time: x.UTC()}
	case *time.Time:
		if x == nil {
			return nil
		}
		return ParseTimestamp(*x)
	case []byte:
		return ParseTimestamp(string(x))
	case string:
		raw := strings.TrimSpace(x)
		if raw == "" {
			return nil
		}
		ts := &Timestamp{Raw: raw}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				ts.Time = t.UTC()
				break
			}
		}
		return ts
	default:
		if !Bool(v) {
			return nil
		}
		return &Timestamp{Raw: Text(v, "")}
	}
}

// Valid reports whether the raw value was understood as a time.
func (t *Timestamp) Valid() bool {
	return t != nil && !t.Time.IsZero()
}

// Date renders the calendar date, or the raw value when unparsed.
func (t *Timestamp) Date() string {
	if t == nil {
		return ""
	}
	if t.Valid() {
		return t.Time.Format("2006-01-02")
	}
	return t.Raw
}

func (t *Timestamp) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Raw)), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if parsed := ParseTimestamp(raw); parsed != nil {
		*t = *parsed
	}
	return nil
}

package detail

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"churn-ops-dashboard/internal/customer"
)

// Band is the colour band of a churn probability.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// NormalizePercent reads values up to 1 as fractions and everything else as
// a percentage, then clamps to [0, 100].
func NormalizePercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	p := v
	if v <= 1 {
		p = v * 100
	}
	return math.Max(0, math.Min(100, p))
}

// Band thresholds in percent; each band includes its lower bound.
const (
	MediumBandFrom = 33.0
	HighBandFrom   = 66.0
)

// BandOf compares the unrounded percentage against the band thresholds.
func BandOf(percent float64) Band {
	switch {
	case percent < MediumBandFrom:
		return BandLow
	case percent < HighBandFrom:
		return BandMedium
	default:
		return BandHigh
	}
}

// Indicator is the churn probability gauge.
type Indicator struct {
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
	Band    Band    `json:"band"`
}

func NewIndicator(probability float64) Indicator {
	p := NormalizePercent(probability)
	return Indicator{
		Percent: p,
		Label:   strconv.FormatFloat(p, 'f', 2, 64) + "%",
		Band:    BandOf(p),
	}
}

// Tone hints how a value should be highlighted.
type Tone string

const (
	ToneNone     Tone = ""
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneWarning  Tone = "warning"
	ToneMuted    Tone = "muted"
)

// Field is one labelled, already formatted value.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
	Tone  Tone   `json:"tone,omitempty"`
}

// Section is a titled group of fields.
type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// View is the read-only detail page of one customer.
type View struct {
	CustomerID  customer.ID     `json:"customer_id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Churned     bool            `json:"churned"`
	Status      customer.Status `json:"status"`
	Probability Indicator       `json:"probability"`
	Sections    []Section       `json:"sections"`
}

// Build lays out a record for display. It derives nothing beyond the status
// and the clamped probability.
func Build(r customer.Record) View {
	status := r.Status()
	return View{
		CustomerID:  r.CustomerID,
		Name:        r.FullName(),
		Email:       r.Email,
		Churned:     r.Churned,
		Status:      status,
		Probability: NewIndicator(r.ChurnProbability),
		Sections: []Section{
			{Title: "Customer Info", Fields: []Field{
				text("First Name", r.FirstName),
				text("Last Name", r.LastName),
				text("Email", r.Email),
				boolean("Senior Citizen", r.SeniorCitizen),
				boolean("Partner", r.Partner),
			}},
			{Title: "Profile", Fields: []Field{
				text("Gender", r.Gender),
				boolean("Senior Citizen", r.SeniorCitizen),
				boolean("Partner", r.Partner),
				boolean("Dependents", r.Dependents),
				{Label: "Tenure", Value: months(r.Tenure)},
			}},
			{Title: "Contact", Fields: []Field{
				boolean("Phone Service", r.PhoneService),
				text("Multiple Lines", r.MultipleLines),
			}},
			{Title: "Internet & Add-ons", Fields: []Field{
				text("Internet Service", r.InternetService),
				text("Online Security", r.OnlineSecurity),
				text("Online Backup", r.OnlineBackup),
				text("Device Protection", r.DeviceProtection),
				text("Tech Support", r.TechSupport),
				text("Streaming TV", r.StreamingTV),
				text("Streaming Movies", r.StreamingMovies),
			}},
			{Title: "Billing", Fields: []Field{
				text("Contract", r.Contract),
				boolean("Paperless Billing", r.PaperlessBilling),
				text("Payment Method", r.PaymentMethod),
			}},
			{Title: "Charges", Fields: []Field{
				{Label: "Monthly Charges", Value: Money(r.MonthlyCharges)},
				{Label: "Total Charges", Value: Money(r.TotalCharges)},
			}},
			{Title: "Notification Status", Fields: notificationFields(r, status)},
		},
	}
}

func notificationFields(r customer.Record, status customer.Status) []Field {
	fields := []Field{{Label: "Status", Value: status.Label(), Tone: statusTone(status)}}
	if r.NotifiedDate == nil {
		return append(fields, Field{Label: "Notified", Value: "No", Tone: ToneMuted})
	}
	fields = append(fields, Field{Label: "Notified", Value: "Yes", Note: r.NotifiedDate.Date(), Tone: TonePositive})

	answer := strings.TrimSpace(r.FeedbackAnswer)
	if r.FeedbackDate == nil || answer == "" {
		return append(fields, Field{Label: "Feedback", Value: "No response yet", Tone: ToneMuted})
	}
	fb := Field{Label: "Feedback", Value: "Responded No", Note: r.FeedbackDate.Date(), Tone: ToneWarning}
	if strings.EqualFold(answer, "yes") {
		fb.Value, fb.Tone = "Responded OK", TonePositive
	}
	return append(fields, fb)
}

func statusTone(s customer.Status) Tone {
	switch s {
	case customer.StatusNotified, customer.StatusRespondedOK:
		return TonePositive
	case customer.StatusNotNotified:
		return ToneNegative
	case customer.StatusRespondedNo:
		return ToneWarning
	default:
		return ToneNone
	}
}

// Money formats an amount in dollars with two decimals and thousands separators.
func Money(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	fixed := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + "$" + fixed
	}
	return sign + "$" + humanize.Comma(n) + "." + frac
}

func months(n int) string {
	if n == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%s months", humanize.Comma(int64(n)))
}

func text(label, v string) Field {
	if v == "" {
		return Field{Label: label, Value: "-", Tone: ToneMuted}
	}
	return Field{Label: label, Value: v}
}

func boolean(label string, v bool) Field {
	if v {
		return Field{Label: label, Value: "Yes", Tone: TonePositive}
	}
	return Field{Label: label, Value: "No", Tone: ToneNegative}
}

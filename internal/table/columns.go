package table

import (
	"fmt"
	"strconv"
	"strings"

	"churn-ops-dashboard/internal/customer"
)

// ColumnID names one table column.
type ColumnID string

const (
	ColCustomerID       ColumnID = "customer_id"
	ColName             ColumnID = "name"
	ColEmail            ColumnID = "email"
	ColGender           ColumnID = "gender"
	ColContract         ColumnID = "contract"
	ColPaymentMethod    ColumnID = "payment_method"
	ColMonthlyCharges   ColumnID = "monthly_charges"
	ColTotalCharges     ColumnID = "total_charges"
	ColChurnProbability ColumnID = "churn_probability"
	ColNotified         ColumnID = "notified"
	ColStatus           ColumnID = "status"
	ColChurned          ColumnID = "churned"
)

// Column describes how a record is rendered, sorted and filtered in one column.
// Filter is nil for columns that cannot be filtered. Key, when set, is the
// filter-value form of a cell and is used for facets instead of Value.
type Column struct {
	ID       ColumnID
	Header   string
	Hideable bool
	Value    func(customer.Record) string
	Key      func(customer.Record) string
	Less     func(a, b customer.Record) bool
	Filter   func(r customer.Record, value string) bool
}

// FacetKey returns the value a filter on this column would match.
func (c Column) FacetKey(r customer.Record) string {
	if c.Key != nil {
		return c.Key(r)
	}
	return c.Value(r)
}

// Filterable reports whether the column accepts a filter value.
func (c Column) Filterable() bool {
	return c.Filter != nil
}

// StatusFilterResponded matches either response status.
const StatusFilterResponded = "responded"

// StatusFilterValues lists every recognized status filter value.
var StatusFilterValues = []string{
	string(customer.StatusNotNotified),
	string(customer.StatusNotified),
	string(customer.StatusRespondedOK),
	string(customer.StatusRespondedNo),
	StatusFilterResponded,
}

// MatchStatus applies a status filter value to a record.
func MatchStatus(r customer.Record, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	st := r.Status()
	if value == StatusFilterResponded {
		return st.Responded()
	}
	return string(st) == value
}

// ValidateFilter checks a filter value before it is stored.
func ValidateFilter(col ColumnID, value string) error {
	switch col {
	case ColStatus:
		v := strings.ToLower(strings.TrimSpace(value))
		for _, known := range StatusFilterValues {
			if v == known {
				return nil
			}
		}
		return fmt.Errorf("unknown status filter %q", value)
	case ColChurned, ColNotified:
		if _, ok := parseYesNo(value); !ok {
			return fmt.Errorf("filter %s expects yes or no, got %q", col, value)
		}
	}
	return nil
}

// Columns is the fixed column set of the customer table, in display order.
var Columns = []Column{
	{
		ID:     ColCustomerID,
		Header: "Customer ID",
		Value:  func(r customer.Record) string { return r.CustomerID.String() },
		Less:   func(a, b customer.Record) bool { return lessID(a.CustomerID, b.CustomerID) },
		Filter: func(r customer.Record, v string) bool { return containsFold(r.CustomerID.String(), v) },
	},
	{
		ID:       ColName,
		Header:   "Name",
		Hideable: true,
		Value:    func(r customer.Record) string { return r.FullName() },
		Less:     func(a, b customer.Record) bool { return lessFold(a.FullName(), b.FullName()) },
		Filter:   func(r customer.Record, v string) bool { return containsFold(r.FullName(), v) },
	},
	{
		ID:       ColEmail,
		Header:   "Email",
		Hideable: true,
		Value:    func(r customer.Record) string { return r.Email },
		Less:     func(a, b customer.Record) bool { return lessFold(a.Email, b.Email) },
		Filter:   func(r customer.Record, v string) bool { return containsFold(r.Email, v) },
	},
	{
		ID:       ColGender,
		Header:   "Gender",
		Hideable: true,
		Value:    func(r customer.Record) string { return r.Gender },
		Less:     func(a, b customer.Record) bool { return lessFold(a.Gender, b.Gender) },
		Filter:   func(r customer.Record, v string) bool { return strings.EqualFold(r.Gender, strings.TrimSpace(v)) },
	},
	{
		ID:       ColContract,
		Header:   "Contract",
		Hideable: true,
		Value:    func(r customer.Record) string { return r.Contract },
		Less:     func(a, b customer.Record) bool { return lessFold(a.Contract, b.Contract) },
		Filter:   func(r customer.Record, v string) bool { return strings.EqualFold(r.Contract, strings.TrimSpace(v)) },
	},
	// A missing payment method shows as "-", which is also its facet and filter value.
	{
		ID:       ColPaymentMethod,
		Header:   "Payment Method",
		Hideable: true,
		Value:    func(r customer.Record) string { return dash(r.PaymentMethod) },
		Less:     func(a, b customer.Record) bool { return lessFold(a.PaymentMethod, b.PaymentMethod) },
		Filter:   func(r customer.Record, v string) bool { return strings.EqualFold(dash(r.PaymentMethod), strings.TrimSpace(v)) },
	},
	{
		ID:       ColMonthlyCharges,
		Header:   "Monthly Charges",
		Hideable: true,
		Value:    func(r customer.Record) string { return money(r.MonthlyCharges) },
		Less:     func(a, b customer.Record) bool { return a.MonthlyCharges < b.MonthlyCharges },
	},
	{
		ID:       ColTotalCharges,
		Header:   "Total Charges",
		Hideable: true,
		Value:    func(r customer.Record) string { return money(r.TotalCharges) },
		Less:     func(a, b customer.Record) bool { return a.TotalCharges < b.TotalCharges },
	},
	{
		ID:       ColChurnProbability,
		Header:   "Churn Probability",
		Hideable: true,
		Value: func(r customer.Record) string {
			return strconv.FormatFloat(r.ChurnProbability, 'f', -1, 64)
		},
		Less: func(a, b customer.Record) bool { return a.ChurnProbability < b.ChurnProbability },
	},
	{
		ID:       ColNotified,
		Header:   "Notified",
		Hideable: true,
		Value:    func(r customer.Record) string { return yesNo(r.Notified) },
		Less:     func(a, b customer.Record) bool { return !a.Notified && b.Notified },
		Filter:   func(r customer.Record, v string) bool { return matchYesNo(r.Notified, v) },
	},
	{
		ID:       ColStatus,
		Header:   "Status",
		Hideable: true,
		Value:    func(r customer.Record) string { return r.Status().Label() },
		Key:      func(r customer.Record) string { return string(r.Status()) },
		Less:     func(a, b customer.Record) bool { return statusRank(a.Status()) < statusRank(b.Status()) },
		Filter:   MatchStatus,
	},
	{
		ID:       ColChurned,
		Header:   "Churn",
		Hideable: true,
		Value:    func(r customer.Record) string { return yesNo(r.Churned) },
		Less:     func(a, b customer.Record) bool { return !a.Churned && b.Churned },
		Filter:   func(r customer.Record, v string) bool { return matchYesNo(r.Churned, v) },
	},
}

var columnIndex = func() map[ColumnID]int {
	m := make(map[ColumnID]int, len(Columns))
	for i, c := range Columns {
		m[c.ID] = i
	}
	return m
}()

// Lookup finds a column by id.
func Lookup(id ColumnID) (Column, bool) {
	i, ok := columnIndex[id]
	if !ok {
		return Column{}, false
	}
	return Columns[i], true
}

func statusRank(s customer.Status) int {
	for i, known := range customer.Statuses {
		if s == known {
			return i
		}
	}
	return len(customer.Statuses)
}

// lessID orders integer ids numerically and places them before string ids.
func lessID(a, b customer.ID) bool {
	ai, aok := a.Int()
	bi, bok := b.Int()
	switch {
	case aok && bok:
		return ai < bi
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

func lessFold(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

func parseYesNo(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0":
		return false, true
	}
	return false, false
}

func matchYesNo(field bool, v string) bool {
	want, ok := parseYesNo(v)
	return ok && field == want
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

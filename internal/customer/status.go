package customer

import "strings"

// Status is the notification/feedback lifecycle state of a customer. It is
// always derived, never stored.
type Status string

const (
	StatusNotNotified Status = "not_notified"
	StatusNotified    Status = "notified"
	StatusRespondedOK Status = "responded_ok"
	StatusRespondedNo Status = "responded_no"
)

// Statuses lists every derivable status in lifecycle order.
var Statuses = []Status{StatusNotNotified, StatusNotified, StatusRespondedOK, StatusRespondedNo}

// Derive maps the lifecycle fields to a Status:
//
//	feedback date and answer set -> responded_ok ("yes") or responded_no
//	notified date set            -> notified
//	otherwise                    -> not_notified
func Derive(notified, feedback *Timestamp, answer string) Status {
	answer = strings.TrimSpace(answer)
	if feedback != nil && answer != "" {
		if strings.EqualFold(answer, "yes") {
			return StatusRespondedOK
		}
		return StatusRespondedNo
	}
	if notified != nil {
		return StatusNotified
	}
	return StatusNotNotified
}

// ParseStatus recognizes one of the four status values.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Status derives the record status. The backend's stored status string is
// only used when the record carries no lifecycle timestamps at all.
func (r Record) Status() Status {
	if r.NotifiedDate == nil && r.FeedbackDate == nil {
		if stored, ok := ParseStatus(r.StoredStatus); ok {
			return stored
		}
	}
	return Derive(r.NotifiedDate, r.FeedbackDate, r.FeedbackAnswer)
}

// Label is the human readable badge text.
func (s Status) Label() string {
	switch s {
	case StatusNotNotified:
		return "Not Notified"
	case StatusNotified:
		return "Notified"
	case StatusRespondedOK:
		return "Responded OK"
	case StatusRespondedNo:
		return "Responded No"
	default:
		return "Unknown"
	}
}

// Responded reports whether the customer answered the notification.
func (s Status) Responded() bool {
	return s == StatusRespondedOK || s == StatusRespondedNo
}

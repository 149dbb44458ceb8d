// Package notify delivers operator notifications for terminal attempt outcomes.
//
// Events are queued on a Dispatcher and delivered by a background worker, so
// a slow or failing sink never blocks the rollout. Each sink gets bounded
// retries with exponential backoff; delivery is at-least-once.
package notify

import (
	"fmt"
	"strconv"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// Field is one labelled value attached to an event.
type Field struct {
	Title string
	Value string
	Short bool
}

// Event is a notification independent of any sink format.
type Event struct {
	// Key deduplicates repeated deliveries of the same event.
	Key       string
	Summary   string
	Severity  constants.Severity
	ServiceID string
	Fields    []Field
}

// FromIncident builds the event announcing inc.
func FromIncident(inc *domain.Incident) Event {
	summary := fmt.Sprintf("[%s] %s: %s", inc.ServiceID, inc.Type, inc.Reason)
	if inc.Reason == "" {
		summary = fmt.Sprintf("[%s] %s", inc.ServiceID, inc.Type)
	}
	fields := []Field{
		{Title: "Service", Value: inc.ServiceID, Short: true},
		{Title: "Type", Value: inc.Type.String(), Short: true},
		{Title: "From", Value: inc.FromEnv.String(), Short: true},
		{Title: "To", Value: inc.ToEnv.String(), Short: true},
		{Title: "Status", Value: inc.Status.String(), Short: true},
		{Title: "Duration", Value: strconv.FormatFloat(inc.DurationSeconds, 'f', 1, 64) + "s", Short: true},
		{Title: "Initiator", Value: inc.Initiator, Short: true},
	}
	if inc.Revision != "" {
		fields = append(fields, Field{Title: "Revision", Value: inc.Revision, Short: true})
	}
	if inc.AttemptID != "" {
		fields = append(fields, Field{Title: "Attempt", Value: inc.AttemptID})
	}
	fields = append(fields, Field{Title: "Incident", Value: inc.ID})
	return Event{
		Key:       inc.ID,
		Summary:   summary,
		Severity:  inc.Severity(),
		ServiceID: inc.ServiceID,
		Fields:    fields,
	}
}

// rank orders severities from least to most urgent.
func rank(s constants.Severity) int {
	switch s {
	case constants.SeverityInfo:
		return 0
	case constants.SeverityWarning:
		return 1
	case constants.SeverityError:
		return 2
	case constants.SeverityCritical:
		return 3
	default:
		return 1
	}
}

// AtLeast reports whether s is at least as urgent as minimum.
func AtLeast(s, minimum constants.Severity) bool {
	return rank(s) >= rank(minimum)
}

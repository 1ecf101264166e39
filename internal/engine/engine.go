package engine

import (
	"time"

	"github.com/leozw/domain-tracker/internal/core"
)

// Outcome describes the side effects of applying one check result.
type Outcome struct {
	NotificationDue bool
	Payload         NotificationPayload
	StatusChanged   bool
}

// NotificationPayload carries what the sink needs to render an alert.
type NotificationPayload struct {
	Domain    string
	FirstSeen time.Time
}

// ApplyResult mutates rec according to the transition table and reports
// whether an availability notification is due. It is the only place a
// record's status fields change during monitoring.
//
// The function is idempotent under replay: reapplying a result that does
// not flip NotificationSent never re-notifies and never moves
// LastStatusChange.
func ApplyResult(rec *core.DomainRecord, result core.CheckResult, now time.Time) Outcome {
	checked := now
	rec.LastChecked = &checked

	switch result.Classification {
	case core.StatusUnregistered:
		return applyUnregistered(rec, result, now)
	case core.StatusRegistered:
		return applyRegistered(rec, now)
	default:
		// Checker failure or ambiguity: a data point, not a transition.
		rec.ConsecutiveErrors++
		return Outcome{}
	}
}

func applyUnregistered(rec *core.DomainRecord, result core.CheckResult, now time.Time) Outcome {
	rec.ConsecutiveErrors = 0

	out := Outcome{}
	if rec.Status != core.StatusUnregistered {
		change := now
		rec.LastStatusChange = &change
		out.StatusChanged = true
	}
	rec.Status = core.StatusUnregistered

	// First observation of this unregistered episode.
	if rec.FirstUnregistered == nil {
		first := now
		rec.FirstUnregistered = &first
	}

	if !rec.NotificationSent {
		rec.NotificationSent = true
		out.NotificationDue = true
		out.Payload = NotificationPayload{
			Domain:    result.Domain,
			FirstSeen: *rec.FirstUnregistered,
		}
	}
	return out
}

func applyRegistered(rec *core.DomainRecord, now time.Time) Outcome {
	rec.ConsecutiveErrors = 0

	out := Outcome{}
	if rec.Status != core.StatusRegistered {
		change := now
		rec.LastStatusChange = &change
		out.StatusChanged = true
	}
	rec.Status = core.StatusRegistered

	// Leaving the unregistered episode re-arms notification.
	rec.NotificationSent = false
	rec.FirstUnregistered = nil
	return out
}

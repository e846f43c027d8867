// Package lifecycle holds the pure rules of the quotation and invoice
// workflows. Nothing here touches storage, so services call these before
// issuing their conditional updates.
package lifecycle

import (
	"fmt"
	"time"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
)

// transitions lists the legal status edges. Same-state writes are always allowed.
var transitions = map[models.QuotationStatus][]models.QuotationStatus{
	models.QuotationDraft:    {models.QuotationSent, models.QuotationExpired},
	models.QuotationSent:     {models.QuotationAccepted, models.QuotationRejected, models.QuotationExpired, models.QuotationDraft},
	models.QuotationExpired:  {models.QuotationSent},
	models.QuotationRejected: {models.QuotationDraft},
	models.QuotationAccepted: {},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to models.QuotationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates a requested status change.
func CheckTransition(from, to models.QuotationStatus) error {
	if !to.Valid() {
		return errs.Validation("unknown quotation status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrIllegalTransition, from, to)
	}
	return nil
}

// CheckResponse validates a client response against the quotation status.
// Responses are only taken while a quotation is sent; the mapped edge must
// also be legal.
func CheckResponse(from models.QuotationStatus, o Outcome) error {
	if from != models.QuotationSent {
		return fmt.Errorf("%w: quotation is %s, responses need %s", errs.ErrIllegalTransition, from, models.QuotationSent)
	}
	return CheckTransition(from, o.Status)
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s models.QuotationStatus) []models.QuotationStatus {
	out := make([]models.QuotationStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// StatusTimestampField is the bson field stamped when a quotation enters s,
// or "" when s carries no timestamp.
func StatusTimestampField(s models.QuotationStatus) string {
	switch s {
	case models.QuotationSent:
		return "sent_at"
	case models.QuotationAccepted:
		return "accepted_at"
	case models.QuotationRejected:
		return "rejected_at"
	case models.QuotationExpired:
		return "expired_at"
	}
	return ""
}

// Editable reports whether the items and summary of a quotation may still change.
func Editable(s models.QuotationStatus) bool {
	return s == models.QuotationDraft || s == models.QuotationSent
}

// Outcome is the effect of a client response on a quotation.
type Outcome struct {
	Status       models.QuotationStatus
	ClientStatus models.ClientStatus
	Notification models.NotificationType
	Activity     string
	Title        string
}

// OutcomeFor maps a client action to its status pair and notification type.
func OutcomeFor(action models.FeedbackAction) (Outcome, error) {
	switch action {
	case models.ActionApprove:
		return Outcome{
			Status:       models.QuotationAccepted,
			ClientStatus: models.ClientApproved,
			Notification: models.NotificationSuccess,
			Activity:     "client_approved",
			Title:        "Quotation approved",
		}, nil
	case models.ActionReject:
		return Outcome{
			Status:       models.QuotationRejected,
			ClientStatus: models.ClientRejected,
			Notification: models.NotificationError,
			Activity:     "client_rejected",
			Title:        "Quotation rejected",
		}, nil
	case models.ActionRequestChanges:
		return Outcome{
			Status:       models.QuotationSent,
			ClientStatus: models.ClientChangesRequested,
			Notification: models.NotificationWarning,
			Activity:     "client_requested_changes",
			Title:        "Changes requested",
		}, nil
	}
	return Outcome{}, errs.Validation("unknown action %q, expected approve, reject or request-changes", action)
}

// CheckTokenLive returns errs.ErrGone once now is past the token expiry.
func CheckTokenLive(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && now.After(*expiresAt) {
		return fmt.Errorf("share link expired at %s: %w", expiresAt.UTC().Format(time.RFC3339), errs.ErrGone)
	}
	return nil
}

// TokenExpiry is the valid-till date when it is still ahead of now, otherwise now+ttl.
func TokenExpiry(validTill *time.Time, now time.Time, ttl time.Duration) time.Time {
	if validTill != nil && validTill.After(now) {
		return validTill.UTC()
	}
	return now.Add(ttl).UTC()
}

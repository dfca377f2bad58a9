package state

import "sort"

// salientEvents maps an event type to the state it moves a transaction to.
// Event types absent from this table (PAYMENT_DETAILS_ENTERED, FEE_INCURRED,
// REFUND_AVAILABILITY_UPDATED and other bookkeeping facts) deliberately leave
// current state untouched: the projection engine reports "no mapping" and moves
// on, so unknown producer events degrade safely.
var salientEvents = map[string]State{
	// payment lifecycle
	"PAYMENT_CREATED":                    Created,
	"PAYMENT_NOTIFICATION_CREATED":       Created,
	"PAYMENT_STARTED":                    Started,
	"GATEWAY_REQUIRES_3DS_AUTHORISATION": Started,
	"PAYMENT_EXPIRED":                    FailedExpired,

	// authorisation
	"AUTHORISATION_SUCCESSFUL":                      Submitted,
	"AUTHORISATION_REJECTED":                        FailedRejected,
	"AUTHORISATION_CANCELLED":                       FailedCancelled,
	"AUTHORISATION_ERROR":                           ErrorGateway,
	"GATEWAY_ERROR_DURING_AUTHORISATION":            ErrorGateway,
	"GATEWAY_TIMEOUT_DURING_AUTHORISATION":          ErrorGateway,
	"UNEXPECTED_GATEWAY_ERROR_DURING_AUTHORISATION": ErrorGateway,

	// capture
	"USER_APPROVED_FOR_CAPTURE":                           Success,
	"USER_APPROVED_FOR_CAPTURE_AWAITING_SERVICE_APPROVAL": Capturable,
	"SERVICE_APPROVED_FOR_CAPTURE":                        Success,
	"CAPTURE_SUBMITTED":                                   Success,
	"CAPTURE_CONFIRMED":                                   Success,
	"CAPTURE_ERRORED":                                     ErrorGateway,
	"CAPTURE_ABANDONED_AFTER_TOO_MANY_RETRIES":            ErrorGateway,

	// cancellation
	"CANCELLED_BY_USER":       FailedCancelled,
	"CANCELLED_BY_SERVICE":    Cancelled,
	"CANCELLED_BY_EXPIRATION": FailedExpired,

	// refunds
	"REFUND_CREATED_BY_USER":    Submitted,
	"REFUND_CREATED_BY_SERVICE": Submitted,
	"REFUND_SUBMITTED":          Submitted,
	"REFUND_SUCCEEDED":          Success,
	"REFUND_ERROR":              Error,

	// payouts
	"PAYOUT_CREATED":  Created,
	"PAYOUT_PAID_OUT": Success,
	"PAYOUT_FAILED":   Error,

	// disputes
	"DISPUTE_CREATED":            Created,
	"DISPUTE_EVIDENCE_SUBMITTED": Submitted,
	"DISPUTE_WON":                Success,
	"DISPUTE_LOST":               FailedRejected,
}

// FromEventType resolves an event type to a state. The second return value is
// false for event types with no state mapping.
func FromEventType(eventType string) (State, bool) {
	s, ok := salientEvents[eventType]
	return s, ok
}

// MappedEventTypes returns every event type in the table, sorted. Used by the
// exhaustive mapping test and by operational tooling listing known types.
func MappedEventTypes() []string {
	types := make([]string, 0, len(salientEvents))
	for t := range salientEvents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

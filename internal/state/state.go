// Package state holds the event-type → transaction-state table and the
// versioned external labels derived from it. The table is data: adding an event
// type means adding a row here and a line to the exhaustive test, nothing else.
package state

// State is the internal tag a salient event moves a transaction to. Clients
// never see these tags directly; they see the versioned Status labels.
type State string

const (
	Created         State = "created"
	Started         State = "started"
	Submitted       State = "submitted"
	Capturable      State = "capturable"
	Success         State = "success"
	FailedRejected  State = "failed_rejected"
	FailedExpired   State = "failed_expired"
	FailedCancelled State = "failed_cancelled"
	Cancelled       State = "cancelled"
	Error           State = "error"
	ErrorGateway    State = "error_gateway"
)

// All returns every state once, so tests can enumerate the label table
// exhaustively per version.
func All() []State {
	return []State{
		Created, Started, Submitted, Capturable, Success,
		FailedRejected, FailedExpired, FailedCancelled,
		Cancelled, Error, ErrorGateway,
	}
}

// Status versions. VersionCoarse collapses the failure sub-states into
// "failed"; VersionFine exposes them. The versions differ only on the
// failure/error sub-states.
const (
	VersionCoarse = 1
	VersionFine   = 2
)

// Status returns the client-facing label for the given status version.
// Any version below VersionFine gets the coarse labels.
func (s State) Status(version int) string {
	if version >= VersionFine {
		return s.fineStatus()
	}
	return s.coarseStatus()
}

func (s State) coarseStatus() string {
	switch s {
	case FailedRejected, FailedExpired, FailedCancelled:
		return "failed"
	case ErrorGateway:
		return "error"
	default:
		return string(s)
	}
}

func (s State) fineStatus() string {
	switch s {
	case FailedRejected:
		return "declined"
	case FailedExpired:
		return "timedout"
	case FailedCancelled:
		return "cancelled"
	case ErrorGateway:
		return "error"
	default:
		return string(s)
	}
}

// Finished reports whether the state is terminal for the resource.
func (s State) Finished() bool {
	switch s {
	case Success, FailedRejected, FailedExpired, FailedCancelled, Cancelled, Error, ErrorGateway:
		return true
	}
	return false
}

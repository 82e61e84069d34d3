package models

import "time"

// Kind is the direction of a farm operation.
type Kind string

const (
	Deposit  Kind = "guardar"
	Withdraw Kind = "retirar"
)

// ParseKind maps a stored kind string back to a Kind.
// Unknown or empty values default to Deposit, which keeps records written by
// the old queue format (no operation column) readable.
func ParseKind(s string) Kind {
	if s == string(Withdraw) {
		return Withdraw
	}
	return Deposit
}

// Operation represents one member request to change their weekly counter.
// Immutable once created.
type Operation struct {
	ID          string    // unique identifier
	Identity    string    // passport number, digits only
	Amount      int       // units of aluminium, positive
	Kind        Kind      // deposit or withdraw
	SubmittedAt time.Time // when the message arrived
}

// PendingRecord is an operation that could not be applied to the remote
// ledger and is waiting in the durable queue for replay.
type PendingRecord struct {
	Operation    Operation
	AttemptCount int
	CreatedAt    time.Time
}

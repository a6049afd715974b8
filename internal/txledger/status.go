package txledger

// Status is the lifecycle state of a submitted transaction.
//
// The only legal transitions are pending -> confirmed and pending -> failed.
// Both are terminal: nothing transitions out of them, and no consumer ever
// observes a transition backward.
type Status string

const (
	// StatusPending marks a transaction submitted but not yet finalized
	// on chain.
	StatusPending Status = "pending"

	// StatusConfirmed marks a transaction with an observed successful receipt.
	StatusConfirmed Status = "confirmed"

	// StatusFailed marks a transaction definitively rejected by the chain.
	StatusFailed Status = "failed"
)

// Terminal returns true for confirmed and failed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Valid returns true for a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

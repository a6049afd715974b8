package ledger

import "errors"

// Caller-input errors. All recoverable, surfaced verbatim to the caller.
var (
	// ErrAlreadyTracked is returned when tracking an asset whose symbol is
	// already present in the ledger.
	ErrAlreadyTracked = errors.New("asset already tracked")

	// ErrUnknownAsset is returned for operations on a symbol that is not tracked.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrDuplicateIndex is returned when creating an account at an index that
	// already exists in the asset's account map.
	ErrDuplicateIndex = errors.New("duplicate account index")

	// ErrUnknownAccount is returned when selecting an index absent from the
	// asset's account map.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInvalidBalance is returned for a negative balance amount. It guards
	// against malformed collaborator responses: the offending update is
	// dropped, never applied.
	ErrInvalidBalance = errors.New("invalid balance")
)

package rotation

import (
	"errors"
	"fmt"
)

var (
	// ErrSecurityAbort indicates the candidate set exceeded the safety ceiling.
	ErrSecurityAbort = errors.New("rotation: security abort")
	// ErrValidation indicates a malformed operation id or argument.
	ErrValidation = errors.New("rotation: validation failed")
	// ErrIntegrity indicates rollback data failed structural checks.
	ErrIntegrity = errors.New("rotation: rollback data integrity")
	// ErrNotFound indicates missing rollback data or missing accounts.
	ErrNotFound = errors.New("rotation: not found")
)

// TxError wraps any failure inside the atomic unit of work. The database
// rollback guarantees no partial state; the operation id is preserved so the
// operator can retry or inspect.
type TxError struct {
	OperationID string
	Err         error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("rotation: transaction failed (operation %s): %v", e.OperationID, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

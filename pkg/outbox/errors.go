package outbox

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrTxRequired    = errors.New("transaction required")
	ErrNotFound      = errors.New("outbox message not found")
	ErrNotReplayable = errors.New("outbox message is not replayable")
	ErrClaimLost     = errors.New("outbox claim no longer held")
)

// PersistenceError wraps a storage failure. The record it names is left in
// its previous state.
type PersistenceError struct {
	Op        string
	MessageID uuid.UUID
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.MessageID == uuid.Nil {
		return fmt.Sprintf("outbox %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("outbox %s %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Operation() string {
	return "outbox " + e.Op
}

func (e *PersistenceError) OutboxMessageID() string {
	if e.MessageID == uuid.Nil {
		return ""
	}
	return e.MessageID.String()
}

// IsPersistenceError reports whether err carries a PersistenceError.
func IsPersistenceError(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func persistenceErr(op string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, MessageID: id, Err: err}
}

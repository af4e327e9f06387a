package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Lifecycle errors. Check with errors.Is / errors.As.
var (
	// ErrNotFound is returned when a document, trail head or trail node does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument covers unparseable operations, malformed version labels and missing fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when a document changed between read and write.
	ErrConflict = errors.New("concurrent modification")
)

// TransitionError is returned when an operation is not legal from the
// document's state. Without an Operation it describes a bare state change to
// Target, and Available lists the states reachable from Current.
type TransitionError struct {
	DocumentID string
	Operation  string
	Current    DocumentState
	Required   DocumentState
	Target     DocumentState
	Available  []string
}

func (e *TransitionError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("invalid transition from state '%s' to '%s'; valid targets: [%s]",
			e.Current, e.Target, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("cannot execute operation '%s' on document '%s': document is in state '%s' but operation requires state '%s'; available operations: [%s]",
		e.Operation, e.DocumentID, e.Current, e.Required, strings.Join(e.Available, ", "))
}

// ExclusivityError is returned when a transition would leave two documents of
// one system in conflicting states.
type ExclusivityError struct {
	SystemCode     string
	States         []DocumentState
	ConflictingIDs []string
}

func (e *ExclusivityError) Error() string {
	states := make([]string, 0, len(e.States))
	for _, s := range e.States {
		states = append(states, string(s))
	}
	return fmt.Sprintf("system %s already has documents in exclusive states: %s", e.SystemCode, strings.Join(states, ", "))
}

// InvalidStateError reports an audit-trail integrity problem. Corrupt is set
// when the stored data contradicts itself rather than the caller asking for
// something impossible.
type InvalidStateError struct {
	SystemCode string
	Reason     string
	Corrupt    bool
}

func (e *InvalidStateError) Error() string {
	if e.SystemCode == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s for systemCode: %s", e.Reason, e.SystemCode)
}

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it is already a lifecycle error.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if ErrorKind(err) != KindStorage {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Error kinds reported by ErrorKind. They double as metric labels.
const (
	KindNotFound        = "not_found"
	KindInvalidArgument = "invalid_argument"
	KindTransition      = "invalid_transition"
	KindExclusivity     = "exclusivity_violation"
	KindInvalidState    = "invalid_state"
	KindConflict        = "conflict"
	KindStorage         = "storage_error"
)

// ErrorKind classifies err into the lifecycle error taxonomy. Anything not
// recognised is a storage error.
func ErrorKind(err error) string {
	var te *TransitionError
	var ee *ExclusivityError
	var ie *InvalidStateError
	switch {
	case errors.As(err, &te):
		return KindTransition
	case errors.As(err, &ee):
		return KindExclusivity
	case errors.As(err, &ie):
		return KindInvalidState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindStorage
	}
}

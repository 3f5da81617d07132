package models

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how far they are allowed to propagate.
type Kind int

const (
	// DelegationFailed aborts the processing of one account.
	DelegationFailed Kind = iota + 1
	// RemoteAPIError is absorbed: empty catalog or empty result.
	RemoteAPIError
	// TaskFault drops a single record.
	TaskFault
	// QueueEntryFailure is a rejected entry of a queue batch.
	QueueEntryFailure
	// StoreWriteError is a failed write of an output document.
	StoreWriteError
	// ConfigInvalid is a configuration that cannot be used.
	ConfigInvalid
)

var kindNames = map[Kind]string{
	DelegationFailed:  "DelegationFailed",
	RemoteAPIError:    "RemoteAPIError",
	TaskFault:         "TaskFault",
	QueueEntryFailure: "QueueEntryFailure",
	StoreWriteError:   "StoreWriteError",
	ConfigInvalid:     "ConfigInvalid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure of one operation.
type Error struct {
	Kind Kind
	Op   string

	// HTTP status of the remote response, 0 when there was none
	Status int

	Err error
}

// NewError classifies err as kind for operation op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

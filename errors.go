package eventdex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akrennmair/eventdex/column"
)

var (
	// ErrOutOfOrderID is returned when a value is appended at an ID that
	// an index has already passed. The index is left unchanged.
	ErrOutOfOrderID = errors.New("out-of-order ID")

	// ErrFormat is returned when persisted fragment data is malformed.
	ErrFormat = column.ErrFormat

	// ErrUnsupportedValueType is returned when a value has no matching
	// column index in a fragment.
	ErrUnsupportedValueType = column.ErrUnsupportedValueType

	// ErrTerminated is returned by every operation on a closed fragment.
	ErrTerminated = errors.New("fragment terminated")
)

// FieldError describes why a single value of an event could not be indexed.
type FieldError struct {
	Column string
	Err    error
}

func (e FieldError) Error() string {
	return e.Column + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// IndexError is returned by Fragment.Index when some values of an event
// could not be indexed. All other values of the event were indexed.
// errors.Is sees through to the individual field errors.
type IndexError struct {
	ID     uint64
	Fields []FieldError
}

func (e *IndexError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("event %d partially indexed: %s", e.ID, strings.Join(msgs, "; "))
}

func (e *IndexError) Unwrap() []error {
	errs := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		errs[i] = f
	}
	return errs
}

type fieldErrors struct {
	id     uint64
	fields []FieldError
}

func (fe *fieldErrors) add(column string, err error) {
	fe.fields = append(fe.fields, FieldError{Column: column, Err: err})
}

func (fe *fieldErrors) err() error {
	if len(fe.fields) == 0 {
		return nil
	}
	return &IndexError{ID: fe.id, Fields: fe.fields}
}

package records

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindFetchFailure   Kind = "FetchFailure"
	KindWriteFailure   Kind = "WriteFailure"
	KindNotFound       Kind = "NotFound"
	KindRefreshFailure Kind = "RefreshFailure"
)

var (
	ErrFetchFailure   = errors.New("records could not be fetched")
	ErrWriteFailure   = errors.New("record could not be written")
	ErrNotFound       = errors.New("record not found")
	ErrRefreshFailure = errors.New("record written but the list could not be refreshed")
)

var kindSentinels = map[Kind]error{
	KindFetchFailure:   ErrFetchFailure,
	KindWriteFailure:   ErrWriteFailure,
	KindNotFound:       ErrNotFound,
	KindRefreshFailure: ErrRefreshFailure,
}

// Error reports which store operation failed and how.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("[%s] %s: %v", e.Op, kindSentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

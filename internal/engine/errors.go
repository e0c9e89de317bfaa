package engine

import (
	"errors"
	"fmt"

	"github.com/redocdc/redocdc/internal/redo"
)

// DecodeError is a record with a vector the decoder rejected.
type DecodeError struct {
	SCN    redo.SCN
	Vector int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("scn %s vector %d: %v", e.SCN, e.Vector, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func NewDecodeError(scn redo.SCN, vector int, err error) *DecodeError {
	return &DecodeError{SCN: scn, Vector: vector, Err: err}
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// skippable reports whether a record can be dropped under ContinueOnError.
func skippable(err error) bool {
	return IsDecodeError(err) || redo.IsShortFieldError(err)
}

package systxn

import (
	"errors"
	"fmt"
)

// DDLInconsistencyError reports a catalog row change that cannot be applied
// to the mirrored dictionary.
type DDLInconsistencyError struct {
	Table   string
	Column  string
	Message string
}

func (e *DDLInconsistencyError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("ddl inconsistency in %s: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("ddl inconsistency in %s.%s: %s", e.Table, e.Column, e.Message)
}

func NewDDLInconsistencyError(table, column, message string) *DDLInconsistencyError {
	return &DDLInconsistencyError{
		Table:   table,
		Column:  column,
		Message: message,
	}
}

func IsDDLInconsistencyError(err error) bool {
	return AsDDLInconsistencyError(err) != nil
}

func AsDDLInconsistencyError(err error) *DDLInconsistencyError {
	var de *DDLInconsistencyError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

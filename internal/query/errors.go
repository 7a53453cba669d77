package query

import "fmt"

// UnsafeQueryError rejects a statement before it reaches the database.
type UnsafeQueryError struct {
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe query: %s", e.Reason)
}

// ExecutionError carries the database's own message for a failed statement.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError wraps a database failure without altering its message.
func NewExecutionError(err error) error {
	if err == nil {
		return nil
	}
	return &ExecutionError{Message: err.Error(), Err: err}
}

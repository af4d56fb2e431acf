package schedule

import "fmt"

// ValidationError marks caller input the engine refuses to act on. It is
// fatal to the single requested operation and nothing is committed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

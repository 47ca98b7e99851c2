package driver

import "fmt"

// FatalError aborts a run. Every other failure is logged and skipped.
type FatalError struct {
	Step string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(step string, err error) *FatalError {
	return &FatalError{Step: step, Err: err}
}

package cli

import "fmt"

// ExitError carries a non-zero exit status out of a command whose output
// has already been written
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

package pipeline

import "fmt"

// PageError attaches the offending entry's ordinal and name to a
// page-scoped failure, so the terminal error names the page it came
// from. Wrapped kinds stay reachable through errors.Is/As.
type PageError struct {
	Ordinal int
	Name    string
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Ordinal, e.Name, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

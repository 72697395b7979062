package coordinator

import "fmt"

// SetupError reports that the first refresh of an entry failed and setup was aborted.
type SetupError struct {
	EntryID string
	Address string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup of entry %s (%s) failed: %v", e.EntryID, e.Address, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

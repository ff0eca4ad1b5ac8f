package errors

import "fmt"

var (
	ErrEmptyRoom          = fmt.Errorf("room identifier is empty")
	ErrStorageUnavailable = fmt.Errorf("event log unavailable")
)

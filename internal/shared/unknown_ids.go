package shared

import "fmt"

// UnknownIDsError carries referenced ids that failed an existence check,
// keyed by the request field that named them.
type UnknownIDsError struct {
	Field string
	IDs   []int64
}

func (e *UnknownIDsError) Error() string {
	return fmt.Sprintf("unknown %s: %v", e.Field, e.IDs)
}

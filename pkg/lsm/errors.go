package lsm

import "fmt"

// InvariantError is raised (via panic) for violations that indicate a
// programmer or on-disk-format mistake rather than an ordinary I/O
// failure: an out-of-order Add to an SSTable builder, a levels or table
// index out of range, a corrupt bloom filter buffer. These are precondition
// violations the caller could have avoided, so spec section 4.11 treats
// them as panics rather than returned errors; anything that can happen
// purely from disk/filesystem conditions is returned as a wrapped error
// instead.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return e.Msg }

func invariantf(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}

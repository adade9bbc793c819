package hashtable

import "errors"

var (
	// ErrBadMagic is returned when a file's header magic doesn't match.
	ErrBadMagic = errors.New("bad magic")
	// ErrTruncated is returned when a file is too short to hold its fixed-size
	// header.
	ErrTruncated = errors.New("truncated file")
	// ErrWrongPartition is returned when a slot's partition doesn't match
	// the table it's being written into.
	ErrWrongPartition = errors.New("slot belongs to a different partition")
)

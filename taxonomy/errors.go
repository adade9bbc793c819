package taxonomy

import "errors"

var (
	// ErrBadMagic is returned when a taxonomy dump does not start with the
	// expected magic bytes.
	ErrBadMagic = errors.New("bad magic")
	// ErrTruncated is returned when a dump's node records reference bytes
	// past the end of a name or rank pool.
	ErrTruncated = errors.New("truncated file")
)

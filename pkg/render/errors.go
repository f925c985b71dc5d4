package render

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is matched by errors for invalid render arguments.
	ErrInvalidArgument = errors.New("render: invalid argument")
	// ErrNotInitialized is returned by Render before Init succeeded.
	ErrNotInitialized = errors.New("render: adapter not initialized")
	// ErrWatchUnsupported is returned by Watch when the engine cannot watch
	// its sources.
	ErrWatchUnsupported = errors.New("render: engine does not support watching")
)

// InvalidTypeError is returned when Render is called with a namespace the host
// does not currently register. It matches ErrInvalidArgument.
type InvalidTypeError struct {
	Type  string
	Known []string
}

func (e *InvalidTypeError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("render: unexpected type (%s)", e.Type)
	}
	return fmt.Sprintf("render: unexpected type (%s), expected one of: %s", e.Type, strings.Join(e.Known, ", "))
}

// Is reports whether target is ErrInvalidArgument.
func (e *InvalidTypeError) Is(target error) bool {
	return target == ErrInvalidArgument
}

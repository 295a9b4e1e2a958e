package writer

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (spec §7's closed "Type"/"Storage" error set).
var (
	ErrInvalidType               = errors.New("invalid type")
	ErrFlatBufferInvalidDataType = errors.New("flatbuffer invalid data type")
)

// PathError enriches an underlying storage error with the hierarchical
// path of the group/dataset/attribute at which it occurred (spec §4.3).
// Every public writer operation wraps its returned error through
// atPath so the rendered string always ends in " at <path>".
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v at %s", e.Err, e.Path)
}

func (e *PathError) Unwrap() error { return e.Err }

// atPath wraps err, if non-nil, with the path it occurred at.
func atPath(path string, err error) error {
	if err == nil {
		return nil
	}
	return &PathError{Path: path, Err: err}
}

package directory

import "errors"

var (
	ErrInvalidTarget = errors.New("invalid broadcast target")
	ErrUnknownGroup  = errors.New("unknown broadcast group")
)

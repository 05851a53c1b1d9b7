package memory

import "errors"

var (
	errNilObject   = errors.New("object is nil")
	errMissingType = errors.New("object type missing")
)

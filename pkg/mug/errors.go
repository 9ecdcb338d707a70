package mug

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownAttribute indicates a caller asked for an attribute that is not
// in the characteristic registry. This is a programming error, not a device one.
var ErrUnknownAttribute = errors.New("unknown attribute")

// DecodeError indicates the device returned a payload the codec could not
// parse for one attribute. A batch refresh reports these and keeps going.
type DecodeError struct {
	Attr   Attribute
	Length int
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s payload (%d bytes): %v", e.Attr, e.Length, e.Cause)
}

// ValidationError indicates a write was rejected before touching the device
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

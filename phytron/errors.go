package phytron

import (
	"errors"
	"fmt"

	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// ErrAxisNotFound is generated when an axis id is not in a Registry
var ErrAxisNotFound = errors.New("axis not found")

// EncodingError is generated when a Command can not be represented on the wire
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "phytron: cannot encode command: " + e.Reason
}

// FramingError is generated when a received frame is malformed
type FramingError struct {
	Frame  []byte
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("phytron: malformed frame %q: %s", e.Frame, e.Reason)
}

// ProtocolError is generated when the controller rejects a command (NAK) or
// reports a fault in its status word
type ProtocolError struct {
	// Command is the body of the rejected command, or "SE" for status faults
	Command string

	// Detail describes the fault
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Command == "" {
		return "phytron: " + e.Detail
	}
	return fmt.Sprintf("phytron: %s: %s", e.Command, e.Detail)
}

// RangeError is generated when a target is outside the soft limits of an axis
// or a parameter value is outside its allowed range
type RangeError struct {
	What   string
	Value  int64
	Limits util.Limiter

	// Allowed, if not nil, is the set of discrete values that are accepted
	Allowed []int64
}

func (e *RangeError) Error() string {
	if e.Allowed != nil {
		return fmt.Sprintf("%s %d not one of %v", e.What, e.Value, e.Allowed)
	}
	return fmt.Sprintf("%s %d outside limits [%d, %d]", e.What, e.Value, e.Limits.Min, e.Limits.Max)
}

// StateError is generated when an operation is not permitted in the current
// state of an axis
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not permitted while axis is %s", e.Op, e.State)
}

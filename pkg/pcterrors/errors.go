// Package pcterrors defines the failure kinds of the thermography pipeline.
//
// Every kind is terminal for the invocation that produced it. Each carries the
// pipeline stage and the subject (a file, a source index, a parameter) that
// triggered it so an operator knows what to fix before re-running.
package pcterrors

import (
	"fmt"
)

// DecodeError reports a video source that cannot produce the expected number
// or shape of frames.
type DecodeError struct {
	Stage   string
	Subject string
	Err     error
}

func (e *DecodeError) Error() string {
	return format("decode", e.Stage, e.Subject, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidRegionError reports a region of interest that is empty or lies
// outside the frame, or a source that yielded no frames to select it from.
type InvalidRegionError struct {
	Stage   string
	Subject string
	Err     error
}

func (e *InvalidRegionError) Error() string {
	return format("invalid region", e.Stage, e.Subject, e.Err)
}

func (e *InvalidRegionError) Unwrap() error { return e.Err }

// DecompositionError reports an observation matrix that cannot be factorized:
// non-finite entries, an all-constant matrix, or too few pixels/frames.
type DecompositionError struct {
	Stage   string
	Subject string
	Err     error
}

func (e *DecompositionError) Error() string {
	return format("decomposition", e.Stage, e.Subject, e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// Decode builds a *DecodeError.
func Decode(stage, subject string, err error) error {
	return &DecodeError{Stage: stage, Subject: subject, Err: err}
}

// InvalidRegion builds an *InvalidRegionError.
func InvalidRegion(stage, subject string, err error) error {
	return &InvalidRegionError{Stage: stage, Subject: subject, Err: err}
}

// Decomposition builds a *DecompositionError.
func Decomposition(stage, subject string, err error) error {
	return &DecompositionError{Stage: stage, Subject: subject, Err: err}
}

func format(kind, stage, subject string, err error) string {
	msg := kind + " error"
	if stage != "" {
		msg += " in " + stage
	}
	if subject != "" {
		msg += fmt.Sprintf(" (%s)", subject)
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

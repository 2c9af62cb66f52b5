package usb

import (
	"errors"
	"fmt"
)

// Code is a high-level transport error category, independent of any
// particular transport library's native error codes.
type Code string

const (
	CodeIO             Code = "I/O error"
	CodePipe           Code = "pipe (stall)"
	CodeNoDevice       Code = "no device"
	CodeAccess         Code = "access denied"
	CodeBusy           Code = "device busy"
	CodeTimeout        Code = "timeout"
	CodeOverflow       Code = "ring overflow"
	CodeInterrupted    Code = "interrupted"
	CodeNotSupported   Code = "not supported"
	CodeOutOfMemory    Code = "out of memory"
	CodeConfigSizes    Code = "ring_size <= transfer_queue_size"
	CodeMismatch       Code = "control transfer echo mismatch"
	CodeSerial         Code = "no matching serial number"
	CodeDeviceNotFound Code = "device not found"
	CodeOther          Code = "other"
)

// Error is a structured transport error: the operation that failed, its
// category, an optional wrapped cause, and the fields needed to build a
// Mismatch diagnostic without losing context.
type Error struct {
	Op       string
	Code     Code
	Msg      string
	Expected []byte
	Read     []byte
	Inner    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Code == CodeMismatch && (e.Expected != nil || e.Read != nil) {
		msg = fmt.Sprintf("%s (expected %x, read %x)", msg, e.Expected, e.Read)
	}
	if e.Op != "" {
		return fmt.Sprintf("usb: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("usb: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured Error with no wrapped cause.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Mismatch builds the register-script echo-mismatch diagnostic called out in
// the error-handling design's "register-script errors" category.
func Mismatch(op string, expected, read []byte) *Error {
	return &Error{Op: op, Code: CodeMismatch, Expected: expected, Read: read}
}

// Wrap attaches op and CodeOther to inner, or, if inner is already an
// *Error, returns a copy of it with Op replaced by op.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var existing *Error
	if errors.As(inner, &existing) {
		return &Error{Op: op, Code: existing.Code, Msg: existing.Msg, Expected: existing.Expected, Read: existing.Read, Inner: existing.Inner}
	}
	return &Error{Op: op, Code: CodeOther, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error with the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ErrConfigSizes is returned by Ring construction when ring_size <=
// transfer_queue_size.
var ErrConfigSizes = NewError("NewRing", CodeConfigSizes, "ring_size must be greater than transfer_queue_size")

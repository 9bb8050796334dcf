package jdwp

import (
	"errors"
	"fmt"

	"github.com/chazu/dexvm/vm"
)

// ErrorCode is a JDWP error code carried in reply packets.
type ErrorCode uint16

const (
	ErrNone               ErrorCode = 0
	ErrCodeInvalidThread  ErrorCode = 10
	ErrCodeInvalidGroup   ErrorCode = 11
	ErrCodeNotSuspended   ErrorCode = 13
	ErrCodeSuspended      ErrorCode = 14
	ErrCodeInvalidObject  ErrorCode = 20
	ErrCodeInvalidClass   ErrorCode = 21
	ErrCodeNotPrepared    ErrorCode = 22
	ErrCodeInvalidMethod  ErrorCode = 23
	ErrCodeInvalidField   ErrorCode = 25
	ErrCodeInvalidFrame   ErrorCode = 30
	ErrCodeOpaqueFrame    ErrorCode = 32
	ErrCodeTypeMismatch   ErrorCode = 34
	ErrCodeInvalidSlot    ErrorCode = 35
	ErrCodeNotImplemented ErrorCode = 99
	ErrCodeAbsentInfo     ErrorCode = 101
	ErrCodeInvalidEvent   ErrorCode = 102
	ErrCodeIllegalArg     ErrorCode = 103
	ErrCodeOutOfMemory    ErrorCode = 110
	ErrCodeVMDead         ErrorCode = 112
	ErrCodeInternal       ErrorCode = 113
	ErrCodeInvalidTag     ErrorCode = 500
	ErrCodeInvalidLength  ErrorCode = 504
	ErrCodeInvalidString  ErrorCode = 506
	ErrCodeInvalidArray   ErrorCode = 508
	ErrCodeInvalidIndex   ErrorCode = 503
)

var (
	ErrInvalidObject   = errors.New("invalid object id")
	ErrInvalidClass    = errors.New("invalid reference type id")
	ErrInvalidMethod   = errors.New("invalid method id")
	ErrInvalidField    = errors.New("invalid field id")
	ErrInvalidThread   = errors.New("invalid thread")
	ErrInvalidGroup    = errors.New("invalid thread group")
	ErrNotPrepared     = errors.New("class not prepared")
	ErrInvalidFrame    = errors.New("invalid frame id")
	ErrInvalidSlot     = errors.New("invalid slot")
	ErrThreadSuspended = errors.New("thread suspended too deeply")
	ErrNotSuspended    = errors.New("thread not suspended")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidIndex    = errors.New("index out of range")
	ErrNotConnected    = errors.New("debugger not connected")
	ErrBadPacket       = errors.New("malformed packet")
	ErrNotImplemented  = errors.New("command not implemented")
	ErrHandshake       = errors.New("bad handshake")
	ErrInvalidArray    = errors.New("not an array")
	ErrInvalidString   = errors.New("not a string")
	ErrAbsentInfo      = errors.New("information not available")
	ErrInvalidEvent    = errors.New("invalid event request")
	ErrInvalidLength   = errors.New("invalid length")
	ErrOpaqueFrame     = errors.New("frame has no registers")
)

// Error is a protocol failure with the code sent to the debugger.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("jdwp error %d: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var codes = []struct {
	err  error
	code ErrorCode
}{
	// Wrapping sentinels come before the ones they wrap.
	{ErrInvalidThread, ErrCodeInvalidThread},
	{ErrInvalidGroup, ErrCodeInvalidGroup},
	{ErrNotPrepared, ErrCodeNotPrepared},
	{ErrInvalidClass, ErrCodeInvalidClass},
	{ErrInvalidObject, ErrCodeInvalidObject},
	{ErrInvalidMethod, ErrCodeInvalidMethod},
	{ErrInvalidField, ErrCodeInvalidField},
	{ErrInvalidFrame, ErrCodeInvalidFrame},
	{ErrInvalidSlot, ErrCodeInvalidSlot},
	{ErrThreadSuspended, ErrCodeSuspended},
	{ErrNotSuspended, ErrCodeNotSuspended},
	{ErrTypeMismatch, ErrCodeTypeMismatch},
	{ErrInvalidIndex, ErrCodeInvalidIndex},
	{ErrNotConnected, ErrCodeVMDead},
	{ErrBadPacket, ErrCodeIllegalArg},
	{ErrInvalidArray, ErrCodeInvalidArray},
	{ErrInvalidString, ErrCodeInvalidString},
	{ErrAbsentInfo, ErrCodeAbsentInfo},
	{ErrInvalidEvent, ErrCodeInvalidEvent},
	{ErrInvalidLength, ErrCodeInvalidLength},
	{ErrOpaqueFrame, ErrCodeOpaqueFrame},
	{ErrNotImplemented, ErrCodeNotImplemented},
	{vm.ErrOutOfMemory, ErrCodeOutOfMemory},
	{vm.ErrShutdown, ErrCodeVMDead},
}

// CodeOf maps err to the code reported to the debugger.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrCodeInternal
}

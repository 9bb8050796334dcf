package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrClassNotFound   = errors.New("class not found")
	ErrNoSuchMethod    = errors.New("no such method")
	ErrNoSuchField     = errors.New("no such field")
	ErrClassCircular   = errors.New("class circularity")
	ErrOutOfMemory     = errors.New("heap exhausted")
	ErrThreadNotFound  = errors.New("thread not found")
	ErrNotSuspended    = errors.New("thread not suspended")
	ErrUnsatisfiedLink = errors.New("native method not registered")
	ErrShutdown        = errors.New("vm shut down")
)

// ThrowError carries an exception object raised by interpreted code, a
// native method or the runtime itself out to Go callers.
type ThrowError struct {
	Exception *Object
}

func (e *ThrowError) Error() string {
	if e.Exception == nil {
		return "exception: <nil>"
	}
	name := e.Exception.Class.Name()
	if msg := e.Exception.Message(); msg != "" {
		return fmt.Sprintf("exception %s: %s", name, msg)
	}
	return "exception " + name
}

// AsThrow extracts the exception object from err, if any.
func AsThrow(err error) (*Object, bool) {
	var te *ThrowError
	if errors.As(err, &te) {
		return te.Exception, true
	}
	return nil, false
}

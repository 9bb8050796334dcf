package dex

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Verification Error Types
// ---------------------------------------------------------------------------

var (
	ErrBadMagic       = errors.New("bad magic/version tag")
	ErrTruncated      = errors.New("file truncated")
	ErrBadHeader      = errors.New("bad header")
	ErrChecksum       = errors.New("checksum mismatch")
	ErrBadEndianTag   = errors.New("unrecognized endian tag")
	ErrOutOfRange     = errors.New("offset out of range")
	ErrMisaligned     = errors.New("misaligned item")
	ErrBadMap         = errors.New("bad map")
	ErrBadIndex       = errors.New("index out of range")
	ErrBadPadding     = errors.New("non-zero padding")
	ErrOutOfOrder     = errors.New("out-of-order entry")
	ErrBadEncoding    = errors.New("bad encoding")
	ErrBadFlags       = errors.New("bad access flags")
	ErrBadDescriptor  = errors.New("invalid descriptor")
	ErrWrongOwner     = errors.New("member defined by wrong class")
	ErrWrongItemType  = errors.New("reference to item of wrong type")
	ErrDuplicate      = errors.New("duplicate entry")
	ErrBadTryRange    = errors.New("bad try range")
	ErrBadHandler     = errors.New("bad catch handler")
	ErrBadString      = errors.New("bad string data")
	ErrBadDebugInfo   = errors.New("bad debug info")
	ErrBadAnnotation  = errors.New("bad annotation")
	ErrClassNotFound  = errors.New("class not defined in container")
	ErrNotInArchive   = errors.New("no classes.dex in archive")
)

// VerifyError reports the precise location of a verification failure.
type VerifyError struct {
	Offset uint32 // File offset of the item or field
	Item   string // Item type name, e.g. "code_item"
	Field  string // Field or check that failed
	Err    error  // Sentinel cause
	Detail string // Optional extra context
}

func (e *VerifyError) Error() string {
	msg := fmt.Sprintf("%s @ 0x%x: %s: %v", e.Item, e.Offset, e.Field, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// verifyErr builds a *VerifyError and logs it at error level. Every
// verification failure goes through here so the diagnostic surface stays
// uniform.
func verifyErr(off uint32, item, field string, err error, format string, args ...interface{}) *VerifyError {
	e := &VerifyError{Offset: off, Item: item, Field: field, Err: err}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	log.Errorf("%s", e.Error())
	return e
}

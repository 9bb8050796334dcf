package dex

import (
	"encoding/binary"
	"math"
)

// Annotation visibilities.
const (
	VisibilityBuild   byte = 0x00
	VisibilityRuntime byte = 0x01
	VisibilitySystem  byte = 0x02
)

// Encoded value types (the low five bits of the header byte).
const (
	ValueByte       = 0x00
	ValueShort      = 0x02
	ValueChar       = 0x03
	ValueInt        = 0x04
	ValueLong       = 0x06
	ValueFloat      = 0x10
	ValueDouble     = 0x11
	ValueString     = 0x17
	ValueType       = 0x18
	ValueField      = 0x19
	ValueMethod     = 0x1a
	ValueEnum       = 0x1b
	ValueArray      = 0x1c
	ValueAnnotation = 0x1d
	ValueNull       = 0x1e
	ValueBoolean    = 0x1f
)

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// valueVerifier checks encoded_value trees. With a nil file only index
// bounds are checked; with a parsed file, annotation type and member names
// are checked as well.
type valueVerifier struct {
	buf  []byte
	hdr  *Header
	file *File
}

func (v *valueVerifier) fail(p int, field string, err error, format string, args ...interface{}) error {
	return verifyErr(uint32(p), "encoded_value", field, err, format, args...)
}

// fixed reads an n-byte little-endian unsigned value.
func (v *valueVerifier) fixed(p, n int) (uint32, int, error) {
	if p+n > len(v.buf) {
		return 0, 0, v.fail(p, "value", ErrTruncated, "")
	}
	var r uint32
	for i := 0; i < n; i++ {
		r |= uint32(v.buf[p+i]) << (8 * uint(i))
	}
	return r, p + n, nil
}

func (v *valueVerifier) array(p int) (int, error) {
	size, next, ok := ReadULEB128(v.buf, p)
	if !ok {
		return 0, v.fail(p, "array size", ErrBadEncoding, "bogus encoded_array size")
	}
	p = next
	var err error
	for i := uint32(0); i < size; i++ {
		if p, err = v.value(p); err != nil {
			return 0, err
		}
	}
	return p, nil
}

func (v *valueVerifier) value(p int) (int, error) {
	if p >= len(v.buf) {
		return 0, v.fail(p, "header", ErrTruncated, "")
	}
	typ := v.buf[p] & 0x1f
	arg := int(v.buf[p] >> 5)
	p++
	index := func(limit uint32, what string) (int, error) {
		if arg > 3 {
			return 0, v.fail(p, what, ErrBadEncoding, "bogus %s size 0x%x", what, arg)
		}
		idx, next, err := v.fixed(p, arg+1)
		if err != nil {
			return 0, err
		}
		if idx >= limit {
			return 0, v.fail(p, what, ErrBadIndex, "%d >= %d", idx, limit)
		}
		return next, nil
	}
	skip := func(n int) (int, error) {
		if p+n > len(v.buf) {
			return 0, v.fail(p, "value", ErrTruncated, "")
		}
		return p + n, nil
	}

	switch typ {
	case ValueByte:
		if arg != 0 {
			return 0, v.fail(p, "byte", ErrBadEncoding, "bogus byte size 0x%x", arg)
		}
		return skip(1)
	case ValueShort, ValueChar:
		if arg > 1 {
			return 0, v.fail(p, "short", ErrBadEncoding, "bogus char/short size 0x%x", arg)
		}
		return skip(arg + 1)
	case ValueInt, ValueFloat:
		if arg > 3 {
			return 0, v.fail(p, "int", ErrBadEncoding, "bogus int/float size 0x%x", arg)
		}
		return skip(arg + 1)
	case ValueLong, ValueDouble:
		return skip(arg + 1)
	case ValueString:
		return index(v.hdr.StringIDsSize, "string")
	case ValueType:
		return index(v.hdr.TypeIDsSize, "type")
	case ValueField, ValueEnum:
		return index(v.hdr.FieldIDsSize, "field")
	case ValueMethod:
		return index(v.hdr.MethodIDsSize, "method")
	case ValueArray:
		if arg != 0 {
			return 0, v.fail(p, "array", ErrBadEncoding, "bogus array value_arg 0x%x", arg)
		}
		return v.array(p)
	case ValueAnnotation:
		if arg != 0 {
			return 0, v.fail(p, "annotation", ErrBadEncoding, "bogus annotation value_arg 0x%x", arg)
		}
		return v.annotation(p)
	case ValueNull:
		if arg != 0 {
			return 0, v.fail(p, "null", ErrBadEncoding, "bogus null value_arg 0x%x", arg)
		}
		return p, nil
	case ValueBoolean:
		if arg > 1 {
			return 0, v.fail(p, "boolean", ErrBadEncoding, "bogus boolean value_arg 0x%x", arg)
		}
		return p, nil
	}
	return 0, v.fail(p-1, "value_type", ErrBadEncoding, "bogus value_type 0x%x", typ)
}

func (v *valueVerifier) annotation(p int) (int, error) {
	typeIdx, next, ok := ReadULEB128(v.buf, p)
	if !ok {
		return 0, v.fail(p, "type_idx", ErrBadEncoding, "bogus encoded_annotation type_idx")
	}
	if typeIdx >= v.hdr.TypeIDsSize {
		return 0, v.fail(p, "type_idx", ErrBadIndex, "%d >= %d", typeIdx, v.hdr.TypeIDsSize)
	}
	if v.file != nil {
		if d := v.file.TypeDescriptor(typeIdx); !IsValidClassDescriptor(d) {
			return 0, v.fail(p, "type_idx", ErrBadAnnotation, "bogus annotation type: %q", d)
		}
	}
	p = next
	size, next, ok := ReadULEB128(v.buf, p)
	if !ok {
		return 0, v.fail(p, "size", ErrBadEncoding, "bogus encoded_annotation size")
	}
	p = next
	var last uint32
	var err error
	for i := uint32(0); i < size; i++ {
		nameIdx, next, ok := ReadULEB128(v.buf, p)
		if !ok {
			return 0, v.fail(p, "name_idx", ErrBadEncoding, "bogus encoded_annotation name_idx")
		}
		if nameIdx >= v.hdr.StringIDsSize {
			return 0, v.fail(p, "name_idx", ErrBadIndex, "%d >= %d", nameIdx, v.hdr.StringIDsSize)
		}
		if v.file != nil {
			if name := v.file.String(nameIdx); !IsValidMemberName(name) {
				return 0, v.fail(p, "name_idx", ErrBadAnnotation, "bogus annotation member name: %q", name)
			}
		}
		if i > 0 && last >= nameIdx {
			return 0, v.fail(p, "name_idx", ErrOutOfOrder,
				"out-of-order encoded_annotation name_idx: 0x%x then 0x%x", last, nameIdx)
		}
		last = nameIdx
		if p, err = v.value(next); err != nil {
			return 0, err
		}
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// EncodedValue is a decoded encoded_value. Bits holds the zero- or
// sign-extended payload of numeric kinds (float/double as raw IEEE bits)
// and the index of string, type, field, method, and enum kinds.
type EncodedValue struct {
	Type       byte
	Bits       uint64
	Array      []EncodedValue
	Annotation *EncodedAnnotation
}

// EncodedAnnotation is a decoded encoded_annotation.
type EncodedAnnotation struct {
	TypeIdx  uint32
	Elements []AnnotationElement
}

// AnnotationElement is one name/value pair of an annotation.
type AnnotationElement struct {
	NameIdx uint32
	Value   EncodedValue
}

// Int returns the value as a 32-bit integer.
func (ev EncodedValue) Int() int32 { return int32(ev.Bits) }

// Long returns the value as a 64-bit integer.
func (ev EncodedValue) Long() int64 { return int64(ev.Bits) }

// Float returns the value interpreted as a float.
func (ev EncodedValue) Float() float32 { return math.Float32frombits(uint32(ev.Bits)) }

// Double returns the value interpreted as a double.
func (ev EncodedValue) Double() float64 { return math.Float64frombits(ev.Bits) }

// Bool returns the value of a boolean encoded value.
func (ev EncodedValue) Bool() bool { return ev.Bits != 0 }

// decodeArray decodes an already verified encoded_array at p.
func decodeArray(buf []byte, p int) ([]EncodedValue, int) {
	size, p, _ := ReadULEB128(buf, p)
	vals := make([]EncodedValue, 0, size)
	for i := uint32(0); i < size; i++ {
		var v EncodedValue
		v, p = decodeValue(buf, p)
		vals = append(vals, v)
	}
	return vals, p
}

func decodeValue(buf []byte, p int) (EncodedValue, int) {
	typ := buf[p] & 0x1f
	arg := int(buf[p] >> 5)
	p++
	ev := EncodedValue{Type: typ}
	readBytes := func(n int) uint64 {
		var tmp [8]byte
		copy(tmp[:], buf[p:p+n])
		p += n
		return binary.LittleEndian.Uint64(tmp[:])
	}
	switch typ {
	case ValueByte, ValueShort, ValueInt, ValueLong:
		n := arg + 1
		raw := readBytes(n)
		shift := uint(64 - 8*n)
		ev.Bits = uint64(int64(raw<<shift) >> shift)
	case ValueChar, ValueString, ValueType, ValueField, ValueMethod, ValueEnum:
		ev.Bits = readBytes(arg + 1)
	case ValueFloat:
		// Right-zero-extended: the bytes given are the high-order bytes.
		n := arg + 1
		ev.Bits = readBytes(n) << uint(32-8*n)
	case ValueDouble:
		n := arg + 1
		ev.Bits = readBytes(n) << uint(64-8*n)
	case ValueArray:
		ev.Array, p = decodeArray(buf, p)
	case ValueAnnotation:
		ev.Annotation, p = decodeAnnotation(buf, p)
	case ValueBoolean:
		ev.Bits = uint64(arg)
	}
	return ev, p
}

func decodeAnnotation(buf []byte, p int) (*EncodedAnnotation, int) {
	a := &EncodedAnnotation{}
	a.TypeIdx, p, _ = ReadULEB128(buf, p)
	size, p, _ := ReadULEB128(buf, p)
	for i := uint32(0); i < size; i++ {
		var el AnnotationElement
		el.NameIdx, p, _ = ReadULEB128(buf, p)
		el.Value, p = decodeValue(buf, p)
		a.Elements = append(a.Elements, el)
	}
	return a, p
}

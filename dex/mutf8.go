package dex

import (
	"unicode"
	"unicode/utf16"

	"google.golang.org/protobuf/encoding/protowire"
)

// ---------------------------------------------------------------------------
// Modified UTF-8
// ---------------------------------------------------------------------------
//
// String data uses the JVM's modified UTF-8: U+0000 is encoded as two bytes
// (0xc0 0x80), supplementary characters are encoded as surrogate pairs of
// three-byte sequences, and four-byte forms are illegal.

// checkStringData validates a string_data_item at off: a uleb128 utf16_size
// followed by exactly that many code units of modified UTF-8 and a
// terminating NUL. Returns the offset just past the NUL.
func checkStringData(buf []byte, off int) (int, error) {
	utf16Size, p, ok := ReadULEB128(buf, off)
	if !ok {
		return 0, verifyErr(uint32(off), "string_data_item", "utf16_size", ErrBadEncoding, "")
	}
	for i := uint32(0); i < utf16Size; i++ {
		if p >= len(buf) {
			return 0, verifyErr(uint32(off), "string_data_item", "data", ErrTruncated,
				"string data would go beyond end-of-file")
		}
		b1 := buf[p]
		p++
		switch b1 >> 4 {
		case 0x00:
			if b1 == 0 {
				return 0, verifyErr(uint32(off), "string_data_item", "data", ErrBadString,
					"string shorter than indicated utf16_size 0x%x", utf16Size)
			}
		case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07:
		case 0x08, 0x09, 0x0a, 0x0b, 0x0f:
			return 0, verifyErr(uint32(p-1), "string_data_item", "data", ErrBadString,
				"illegal start byte 0x%x", b1)
		case 0x0e:
			if p+2 > len(buf) {
				return 0, verifyErr(uint32(off), "string_data_item", "data", ErrTruncated, "")
			}
			b2, b3 := buf[p], buf[p+1]
			p += 2
			if b2&0xc0 != 0x80 || b3&0xc0 != 0x80 {
				return 0, verifyErr(uint32(p-2), "string_data_item", "data", ErrBadString,
					"illegal continuation byte")
			}
			v := uint16(b1&0x0f)<<12 | uint16(b2&0x3f)<<6 | uint16(b3&0x3f)
			if v < 0x800 {
				return 0, verifyErr(uint32(p-3), "string_data_item", "data", ErrBadString,
					"illegal representation for value %x", v)
			}
		case 0x0c, 0x0d:
			if p >= len(buf) {
				return 0, verifyErr(uint32(off), "string_data_item", "data", ErrTruncated, "")
			}
			b2 := buf[p]
			p++
			if b2&0xc0 != 0x80 {
				return 0, verifyErr(uint32(p-1), "string_data_item", "data", ErrBadString,
					"illegal continuation byte 0x%x", b2)
			}
			v := uint16(b1&0x1f)<<6 | uint16(b2&0x3f)
			if v != 0 && v < 0x80 {
				return 0, verifyErr(uint32(p-2), "string_data_item", "data", ErrBadString,
					"illegal representation for value %x", v)
			}
		}
	}
	if p >= len(buf) || buf[p] != 0 {
		return 0, verifyErr(uint32(off), "string_data_item", "terminator", ErrBadString,
			"string longer than indicated utf16_size 0x%x", utf16Size)
	}
	return p + 1, nil
}

// decodeUnits decodes NUL-terminated modified UTF-8 into UTF-16 code units.
func decodeUnits(b []byte) []uint16 {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return units
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0 && i+2 < len(b):
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			units = append(units, unicode.ReplacementChar)
			i++
		}
	}
	return units
}

// DecodeModifiedUTF8 converts NUL-terminated modified UTF-8 bytes into a Go
// string.
func DecodeModifiedUTF8(b []byte) string {
	return string(utf16.Decode(decodeUnits(b)))
}

// CompareModifiedUTF8 compares two modified UTF-8 strings by UTF-16 code
// unit, which is the ordering the string table is sorted by.
func CompareModifiedUTF8(a, b []byte) int {
	ua, ub := decodeUnits(a), decodeUnits(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}

// EncodeModifiedUTF8 encodes s as modified UTF-8 without the terminating
// NUL, and returns the number of UTF-16 code units it represents.
func EncodeModifiedUTF8(s string) ([]byte, int) {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)+1)
	for _, u := range units {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			out = append(out, 0xe0|byte(u>>12), 0x80|byte((u>>6)&0x3f), 0x80|byte(u&0x3f))
		}
	}
	return out, len(units)
}

// compareStrings orders Go strings the same way CompareModifiedUTF8 orders
// their encodings.
func compareStrings(a, b string) int {
	ea, _ := EncodeModifiedUTF8(a)
	eb, _ := EncodeModifiedUTF8(b)
	return CompareModifiedUTF8(ea, eb)
}

// CheckModifiedUTF8 validates b, which excludes the terminating NUL, as
// modified UTF-8.
func CheckModifiedUTF8(b []byte) error {
	buf := protowire.AppendVarint(nil, uint64(len(decodeUnits(b))))
	buf = append(buf, b...)
	buf = append(buf, 0)
	_, err := checkStringData(buf, 0)
	return err
}

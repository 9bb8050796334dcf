package dex

// LEB128 readers. Each returns the decoded value, the offset just past the
// encoding, and ok=false when the encoding runs past the end of the buffer
// or uses more than five bytes.

const maxLEB128Len = 5

// ReadULEB128 decodes an unsigned LEB128 value starting at off.
func ReadULEB128(buf []byte, off int) (uint32, int, bool) {
	var result uint32
	for i := 0; i < maxLEB128Len; i++ {
		if off+i >= len(buf) || off+i < 0 {
			return 0, off, false
		}
		b := buf[off+i]
		result |= uint32(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, off + i + 1, true
		}
	}
	return 0, off, false
}

// ReadSLEB128 decodes a signed LEB128 value starting at off.
func ReadSLEB128(buf []byte, off int) (int32, int, bool) {
	var result int32
	var shift uint
	for i := 0; i < maxLEB128Len; i++ {
		if off+i >= len(buf) || off+i < 0 {
			return 0, off, false
		}
		b := buf[off+i]
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, off + i + 1, true
		}
	}
	return 0, off, false
}

// ReadULEB128p1 decodes a uleb128p1 value: the stored value minus one, so
// that an encoded 0 yields -1 ("no index").
func ReadULEB128p1(buf []byte, off int) (int64, int, bool) {
	v, next, ok := ReadULEB128(buf, off)
	return int64(v) - 1, next, ok
}

// ulebLen returns the number of bytes the ULEB128 encoding of v occupies.
func ulebLen(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

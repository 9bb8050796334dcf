package dex

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
)

// VerifyOption adjusts a call to Verify.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	skipChecksum    bool
	skipCrossVerify bool
}

// SkipChecksum disables the Adler-32 comparison.
func SkipChecksum() VerifyOption {
	return func(c *verifyConfig) { c.skipChecksum = true }
}

// SkipCrossVerify disables pass 2. Pass 1 still runs because it is what
// normalizes the byte order.
func SkipCrossVerify() VerifyOption {
	return func(c *verifyConfig) { c.skipCrossVerify = true }
}

// Checksum computes the Adler-32 checksum of buf as stored in the header.
func Checksum(buf []byte) uint32 {
	return adler32.Checksum(buf[checksumStart:])
}

// detectOrder reads the endian tag, which is always interpreted as
// little-endian first.
func detectOrder(buf []byte) (binary.ByteOrder, error) {
	switch tag := binary.LittleEndian.Uint32(buf[40:]); tag {
	case EndianConstant:
		return binary.LittleEndian, nil
	case ReverseEndianConstant:
		return binary.BigEndian, nil
	default:
		return nil, verifyErr(40, "header_item", "endian_tag", ErrBadEndianTag, "0x%08x", tag)
	}
}

// checkHeader validates the magic and the declared file size and returns
// the buffer truncated to the declared size.
func checkHeader(buf []byte, order binary.ByteOrder) ([]byte, error) {
	fileSize := order.Uint32(buf[32:])
	if uint64(len(buf)) < uint64(fileSize) {
		return nil, verifyErr(32, "header_item", "file_size", ErrTruncated,
			"bad length: expected %d, got %d", fileSize, len(buf))
	}
	if fileSize < HeaderSize {
		return nil, verifyErr(32, "header_item", "file_size", ErrBadHeader, "file_size %d below header size", fileSize)
	}
	if uint32(len(buf)) != fileSize {
		log.Warningf("odd length: expected %d, got %d", fileSize, len(buf))
		buf = buf[:fileSize]
	}
	return buf, nil
}

// Verify normalizes buf to little-endian in place and checks every
// structural invariant of the container. On success the returned File
// shares buf.
func Verify(buf []byte, opts ...VerifyOption) (*File, error) {
	var cfg verifyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(buf) < HeaderSize {
		return nil, verifyErr(0, "header_item", "size", ErrTruncated, "%d bytes", len(buf))
	}
	if !bytes.Equal(buf[:8], []byte(Magic)) {
		return nil, verifyErr(0, "header_item", "magic", ErrBadMagic, "% x", buf[:8])
	}
	order, err := detectOrder(buf)
	if err != nil {
		return nil, err
	}
	if buf, err = checkHeader(buf, order); err != nil {
		return nil, err
	}

	if !cfg.skipChecksum {
		stored := order.Uint32(buf[8:])
		if sum := Checksum(buf); sum != stored {
			return nil, verifyErr(8, "header_item", "checksum", ErrChecksum,
				"bad checksum (%08x, expected %08x)", sum, stored)
		}
	}

	c := newChecker(buf, order, binary.LittleEndian)
	hdr, err := c.swapHeader()
	if err != nil {
		return nil, err
	}
	items, err := c.swapMap()
	if err != nil {
		return nil, err
	}
	if err := c.swapEverything(items); err != nil {
		return nil, err
	}
	if order == binary.BigEndian {
		hdr.Checksum = Checksum(buf)
		binary.LittleEndian.PutUint32(buf[8:], hdr.Checksum)
	}

	f := parse(buf, hdr, items, c)
	if !cfg.skipCrossVerify {
		if err := CrossVerify(f); err != nil {
			return nil, err
		}
	}
	log.Debugf("verified container: %d classes, %d strings, %d methods",
		len(f.ClassDefs), len(f.StringIDs), len(f.MethodIDs))
	return f, nil
}

// ToByteOrder verifies buf and returns a copy of it rewritten in order,
// with the checksum recomputed. buf itself is left untouched.
func ToByteOrder(buf []byte, order binary.ByteOrder) ([]byte, error) {
	work := append([]byte(nil), buf...)
	f, err := Verify(work)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), f.Bytes()...)
	if order == binary.LittleEndian {
		return out, nil
	}

	c := newChecker(out, binary.LittleEndian, order)
	if _, err := c.swapHeader(); err != nil {
		return nil, err
	}
	items, err := c.swapMap()
	if err != nil {
		return nil, err
	}
	if err := c.swapEverything(items); err != nil {
		return nil, err
	}
	order.PutUint32(out[8:], Checksum(out))
	return out, nil
}

package jdwp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ---------------------------------------------------------------------------
// Packets
// ---------------------------------------------------------------------------

const (
	headerSize = 11
	flagReply  = 0x80

	// maxPacket bounds the length field of incoming packets.
	maxPacket = 16 << 20
)

var handshake = []byte("JDWP-Handshake")

// Packet is a command or reply. Commands carry CommandSet and Command;
// replies carry ErrorCode.
type Packet struct {
	ID         uint32
	Flags      byte
	CommandSet byte
	Command    byte
	ErrorCode  ErrorCode
	Data       []byte
}

// IsReply reports whether p is a reply packet.
func (p *Packet) IsReply() bool {
	return p.Flags&flagReply != 0
}

// ReadPacket reads one packet from r.
func ReadPacket(r io.Reader) (*Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[0:])
	if length < headerSize || length > maxPacket {
		return nil, fmt.Errorf("packet length %d: %w", length, ErrBadPacket)
	}
	p := &Packet{
		ID:    binary.BigEndian.Uint32(hdr[4:]),
		Flags: hdr[8],
	}
	if p.IsReply() {
		p.ErrorCode = ErrorCode(binary.BigEndian.Uint16(hdr[9:]))
	} else {
		p.CommandSet = hdr[9]
		p.Command = hdr[10]
	}
	p.Data = make([]byte, length-headerSize)
	if _, err := io.ReadFull(r, p.Data); err != nil {
		return nil, fmt.Errorf("packet body: %w", err)
	}
	return p, nil
}

// Bytes encodes p with its header.
func (p *Packet) Bytes() []byte {
	buf := make([]byte, headerSize, headerSize+len(p.Data))
	binary.BigEndian.PutUint32(buf[0:], uint32(headerSize+len(p.Data)))
	binary.BigEndian.PutUint32(buf[4:], p.ID)
	buf[8] = p.Flags
	if p.IsReply() {
		binary.BigEndian.PutUint16(buf[9:], uint16(p.ErrorCode))
	} else {
		buf[9] = p.CommandSet
		buf[10] = p.Command
	}
	return append(buf, p.Data...)
}

// ---------------------------------------------------------------------------
// Payload encoding
// ---------------------------------------------------------------------------

// Writer builds a big-endian packet payload.
type Writer struct {
	buf []byte
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U1(v byte)     { w.buf = append(w.buf, v) }
func (w *Writer) U2(v uint16)   { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) U4(v uint32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *Writer) U8(v uint64)   { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *Writer) ID(id ObjectID) { w.U8(uint64(id)) }
func (w *Writer) Bool(b bool) {
	if b {
		w.U1(1)
	} else {
		w.U1(0)
	}
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) Str(s string) {
	w.U4(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw writes bytes without a length.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Untagged writes the value bytes of v without its tag.
func (w *Writer) Untagged(v Value) {
	switch TagWidth(v.Tag) {
	case 1:
		w.U1(byte(v.Bits))
	case 2:
		w.U2(uint16(v.Bits))
	case 4:
		w.U4(uint32(v.Bits))
	case 8:
		w.U8(v.Bits)
	}
}

// Value writes a tagged value.
func (w *Writer) Value(v Value) {
	w.U1(byte(v.Tag))
	w.Untagged(v)
}

// Location writes a code location.
func (w *Writer) Location(l Location) {
	w.U1(byte(l.TypeTag))
	w.ID(l.Class)
	w.ID(l.Method)
	w.U8(l.Index)
}

// Reader decodes a big-endian packet payload. The first decoding error
// sticks; later reads return zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first decoding error.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at offset %d of %d: %w", n, r.off, len(r.buf), ErrBadPacket)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U1() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) U8() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) ID() ObjectID { return ObjectID(r.U8()) }

func (r *Reader) Bool() bool { return r.U1() != 0 }

// Int reads a signed 32-bit count or index.
func (r *Reader) Int() int { return int(int32(r.U4())) }

func (r *Reader) Str() string {
	n := r.U4()
	if n > math.MaxInt32 {
		r.err = fmt.Errorf("string length %d: %w", n, ErrBadPacket)
		return ""
	}
	return string(r.take(int(n)))
}

// Untagged reads the value bytes for a known tag.
func (r *Reader) Untagged(t Tag) Value {
	v := Value{Tag: t}
	switch TagWidth(t) {
	case 0:
	case 1:
		v.Bits = uint64(r.U1())
	case 2:
		v.Bits = uint64(r.U2())
	case 4:
		v.Bits = uint64(r.U4())
	case 8:
		v.Bits = r.U8()
	default:
		if r.err == nil {
			r.err = fmt.Errorf("tag %q: %w", byte(t), ErrBadPacket)
		}
	}
	return v
}

// Value reads a tagged value.
func (r *Reader) Value() Value {
	return r.Untagged(Tag(r.U1()))
}

// Location reads a code location.
func (r *Reader) Location() Location {
	return Location{
		TypeTag: TypeTag(r.U1()),
		Class:   r.ID(),
		Method:  r.ID(),
		Index:   r.U8(),
	}
}

// ---------------------------------------------------------------------------
// Values and locations
// ---------------------------------------------------------------------------

// Value is a tagged value as the debugger sees it. Bits holds the
// primitive bits or, for reference tags, the ObjectID.
type Value struct {
	Tag  Tag
	Bits uint64
}

// ID returns the object id of a reference value.
func (v Value) ID() ObjectID { return ObjectID(v.Bits) }

// Location is a code position in debugger ids. Index is the pc in code
// units.
type Location struct {
	TypeTag TypeTag
	Class   ObjectID
	Method  ObjectID
	Index   uint64
}

package dex

import "encoding/binary"

// Code is a decoded code_item.
type Code struct {
	Offset        uint32
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	DebugInfoOff  uint32
	Insns         []uint16
	Tries         []Try
	Handlers      []CatchHandler
}

// Try is one entry of a code_item's try table.
type Try struct {
	StartAddr  uint32
	InsnCount  uint16
	HandlerOff uint16
}

// Contains reports whether pc falls inside the try range.
func (t Try) Contains(pc uint32) bool {
	return pc >= t.StartAddr && pc < t.StartAddr+uint32(t.InsnCount)
}

// CatchHandler is one encoded_catch_handler. Offset is relative to the
// start of the encoded_catch_handler_list, which is what Try.HandlerOff
// refers to.
type CatchHandler struct {
	Offset     uint32
	Entries    []CatchEntry
	CatchAll   bool
	CatchAllPC uint32
}

// CatchEntry is a typed handler: exceptions assignable to TypeIdx jump to
// Addr.
type CatchEntry struct {
	TypeIdx uint32
	Addr    uint32
}

// HandlerAt returns the handler whose list-relative offset is off.
func (c *Code) HandlerAt(off uint16) *CatchHandler {
	for i := range c.Handlers {
		if c.Handlers[i].Offset == uint32(off) {
			return &c.Handlers[i]
		}
	}
	return nil
}

// readCatchHandlers decodes and checks an encoded_catch_handler_list at
// base. Every type index must be below typeIDs and every address below
// insnsSize. Returns the handlers and the offset just past the list.
func readCatchHandlers(buf []byte, base, insnsSize, typeIDs uint32) ([]CatchHandler, uint32, error) {
	const item = "code_item"
	size, p, ok := ReadULEB128(buf, int(base))
	if !ok {
		return nil, 0, verifyErr(base, item, "handlers_size", ErrBadEncoding, "bogus handlers_size")
	}
	if size == 0 || size >= 65536 {
		return nil, 0, verifyErr(base, item, "handlers_size", ErrBadHandler, "invalid handlers_size: %d", size)
	}
	handlers := make([]CatchHandler, 0, size)
	for i := uint32(0); i < size; i++ {
		h := CatchHandler{Offset: uint32(p) - base}
		n, next, ok := ReadSLEB128(buf, p)
		if !ok {
			return nil, 0, verifyErr(uint32(p), item, "handler size", ErrBadEncoding, "bogus size")
		}
		if n < -65536 || n > 65536 {
			return nil, 0, verifyErr(uint32(p), item, "handler size", ErrBadHandler, "invalid size: %d", n)
		}
		p = next
		if n <= 0 {
			h.CatchAll = true
			n = -n
		}
		for j := int32(0); j < n; j++ {
			typeIdx, next, ok := ReadULEB128(buf, p)
			if !ok {
				return nil, 0, verifyErr(uint32(p), item, "type_idx", ErrBadEncoding, "bogus type_idx")
			}
			if typeIdx >= typeIDs {
				return nil, 0, verifyErr(uint32(p), item, "type_idx", ErrBadIndex, "%d >= %d", typeIdx, typeIDs)
			}
			addr, next2, ok := ReadULEB128(buf, next)
			if !ok {
				return nil, 0, verifyErr(uint32(next), item, "addr", ErrBadEncoding, "bogus addr")
			}
			if addr >= insnsSize {
				return nil, 0, verifyErr(uint32(next), item, "addr", ErrBadHandler, "invalid addr: 0x%x", addr)
			}
			h.Entries = append(h.Entries, CatchEntry{TypeIdx: typeIdx, Addr: addr})
			p = next2
		}
		if h.CatchAll {
			addr, next, ok := ReadULEB128(buf, p)
			if !ok {
				return nil, 0, verifyErr(uint32(p), item, "catch_all_addr", ErrBadEncoding, "bogus catch_all_addr")
			}
			if addr >= insnsSize {
				return nil, 0, verifyErr(uint32(p), item, "catch_all_addr", ErrBadHandler,
					"invalid catch_all_addr: 0x%x", addr)
			}
			h.CatchAllPC = addr
			p = next
		}
		handlers = append(handlers, h)
	}
	return handlers, uint32(p), nil
}

// readCode decodes a normalized (little-endian) code_item at off.
func readCode(buf []byte, off uint32, typeIDs uint32) (*Code, error) {
	le := binary.LittleEndian
	if uint64(off)+codeItemHeader > uint64(len(buf)) {
		return nil, verifyErr(off, "code_item", "header", ErrOutOfRange, "")
	}
	c := &Code{
		Offset:        off,
		RegistersSize: le.Uint16(buf[off:]),
		InsSize:       le.Uint16(buf[off+2:]),
		OutsSize:      le.Uint16(buf[off+4:]),
		DebugInfoOff:  le.Uint32(buf[off+8:]),
	}
	triesSize := uint32(le.Uint16(buf[off+6:]))
	insnsSize := le.Uint32(buf[off+12:])
	p := off + codeItemHeader
	if uint64(p)+uint64(insnsSize)*2 > uint64(len(buf)) {
		return nil, verifyErr(off, "code_item", "insns", ErrOutOfRange, "")
	}
	c.Insns = make([]uint16, insnsSize)
	for i := range c.Insns {
		c.Insns[i] = le.Uint16(buf[p+uint32(i)*2:])
	}
	p += insnsSize * 2
	if triesSize == 0 {
		return c, nil
	}
	if p&3 != 0 {
		p += 2
	}
	if uint64(p)+uint64(triesSize)*tryItemSize > uint64(len(buf)) {
		return nil, verifyErr(off, "code_item", "tries", ErrOutOfRange, "")
	}
	c.Tries = make([]Try, triesSize)
	for i := range c.Tries {
		q := p + uint32(i)*tryItemSize
		c.Tries[i] = Try{
			StartAddr:  le.Uint32(buf[q:]),
			InsnCount:  le.Uint16(buf[q+4:]),
			HandlerOff: le.Uint16(buf[q+6:]),
		}
	}
	handlers, _, err := readCatchHandlers(buf, p+triesSize*tryItemSize, insnsSize, typeIDs)
	if err != nil {
		return nil, err
	}
	c.Handlers = handlers
	return c, nil
}

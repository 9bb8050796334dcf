package dex

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Debug info state machine opcodes.
const (
	dbgEndSequence        = 0x00
	dbgAdvancePC          = 0x01
	dbgAdvanceLine        = 0x02
	dbgStartLocal         = 0x03
	dbgStartLocalExtended = 0x04
	dbgEndLocal           = 0x05
	dbgRestartLocal       = 0x06
	dbgSetPrologueEnd     = 0x07
	dbgSetEpilogueBegin   = 0x08
	dbgSetFile            = 0x09
	dbgFirstSpecial       = 0x0a
	dbgLineBase           = -4
	dbgLineRange          = 15
)

// checkDebugInfo validates a debug_info_item at off and returns the offset
// past its END_SEQUENCE.
func checkDebugInfo(buf []byte, off int, stringIDs uint32) (int, error) {
	const item = "debug_info_item"
	bad := func(p int, field string) error {
		return verifyErr(uint32(p), item, field, ErrBadDebugInfo, "")
	}
	stringRef := func(p int, field string) (int, error) {
		idx, next, ok := ReadULEB128(buf, p)
		if !ok {
			return 0, bad(p, field)
		}
		if idx != 0 && idx-1 >= stringIDs {
			return 0, verifyErr(uint32(p), item, field, ErrBadIndex, "%d >= %d", idx-1, stringIDs)
		}
		return next, nil
	}
	register := func(p int) (int, error) {
		reg, next, ok := ReadULEB128(buf, p)
		if !ok || reg >= 65536 {
			return 0, bad(p, "register_num")
		}
		return next, nil
	}

	_, p, ok := ReadULEB128(buf, off)
	if !ok {
		return 0, bad(off, "line_start")
	}
	params, next, ok := ReadULEB128(buf, p)
	if !ok {
		return 0, bad(p, "parameters_size")
	}
	if params > 65536 {
		return 0, verifyErr(uint32(p), item, "parameters_size", ErrBadDebugInfo, "invalid parameters_size: 0x%x", params)
	}
	p = next
	var err error
	for i := uint32(0); i < params; i++ {
		if p, err = stringRef(p, "parameter_name"); err != nil {
			return 0, err
		}
	}

	for {
		if p >= len(buf) {
			return 0, verifyErr(uint32(off), item, "opcodes", ErrTruncated, "")
		}
		op := buf[p]
		p++
		switch op {
		case dbgEndSequence:
			return p, nil
		case dbgAdvancePC:
			if _, p, ok = ReadULEB128(buf, p); !ok {
				return 0, bad(p, "advance_pc")
			}
		case dbgAdvanceLine:
			if _, p, ok = ReadSLEB128(buf, p); !ok {
				return 0, bad(p, "advance_line")
			}
		case dbgStartLocal, dbgStartLocalExtended:
			if p, err = register(p); err != nil {
				return 0, err
			}
			refs := 2
			if op == dbgStartLocalExtended {
				refs = 3
			}
			for i := 0; i < refs; i++ {
				if p, err = stringRef(p, "local"); err != nil {
					return 0, err
				}
			}
		case dbgEndLocal, dbgRestartLocal:
			if p, err = register(p); err != nil {
				return 0, err
			}
		case dbgSetFile:
			if p, err = stringRef(p, "set_file"); err != nil {
				return 0, err
			}
		}
	}
}

// Position maps an instruction address to a source line.
type Position struct {
	Address uint32
	Line    uint32
}

// LocalVar is one live range of a named local variable.
type LocalVar struct {
	Reg        uint16
	StartAddr  uint32
	EndAddr    uint32
	Name       string
	Descriptor string
	Signature  string
}

// DebugInfo is the decoded line and local-variable history of a method.
type DebugInfo struct {
	Positions []Position
	Locals    []LocalVar
}

// DebugInfo runs the debug_info state machine for code belonging to
// method methodIdx. Parameter locals, including "this" for instance
// methods, are seeded from the method's prototype.
func (f *File) DebugInfo(code *Code, methodIdx uint32, isStatic bool) *DebugInfo {
	info := &DebugInfo{}
	if code == nil || code.DebugInfoOff == 0 {
		return info
	}
	buf := f.data
	line, p, ok := ReadULEB128(buf, int(code.DebugInfoOff))
	if !ok {
		return info
	}
	paramCount, p, ok := ReadULEB128(buf, p)
	if !ok {
		return info
	}

	type live struct {
		LocalVar
		open bool
	}
	locals := make(map[uint16]*live)
	end := func(reg uint16, addr uint32) {
		if l, ok := locals[reg]; ok && l.open {
			l.EndAddr = addr
			l.open = false
			info.Locals = append(info.Locals, l.LocalVar)
		}
	}

	argReg := code.RegistersSize - code.InsSize
	if !isStatic {
		locals[argReg] = &live{LocalVar: LocalVar{
			Reg: argReg, Name: "this", Descriptor: f.TypeDescriptor(uint32(f.MethodIDs[methodIdx].ClassIdx)),
		}, open: true}
		argReg++
	}
	params := f.ProtoParameters(uint32(f.MethodIDs[methodIdx].ProtoIdx))
	for i := uint32(0); i < paramCount; i++ {
		nameIdx, next, ok := ReadULEB128p1(buf, p)
		if !ok {
			return info
		}
		p = next
		if int(i) >= len(params) {
			continue
		}
		desc := params[i]
		if nameIdx >= 0 {
			locals[argReg] = &live{LocalVar: LocalVar{
				Reg: argReg, Name: f.String(uint32(nameIdx)), Descriptor: desc,
			}, open: true}
		}
		argReg++
		if desc == "J" || desc == "D" {
			argReg++
		}
	}

	var addr uint32
	insnsSize := uint32(len(code.Insns))
	for p < len(buf) {
		op := buf[p]
		p++
		switch op {
		case dbgEndSequence:
			regs := maps.Keys(locals)
			slices.Sort(regs)
			for _, reg := range regs {
				end(reg, insnsSize)
			}
			return info
		case dbgAdvancePC:
			var d uint32
			if d, p, ok = ReadULEB128(buf, p); !ok {
				return info
			}
			addr += d
		case dbgAdvanceLine:
			var d int32
			if d, p, ok = ReadSLEB128(buf, p); !ok {
				return info
			}
			line = uint32(int32(line) + d)
		case dbgStartLocal, dbgStartLocalExtended:
			var reg uint32
			var name, typ, sig int64
			if reg, p, ok = ReadULEB128(buf, p); !ok {
				return info
			}
			if name, p, ok = ReadULEB128p1(buf, p); !ok {
				return info
			}
			if typ, p, ok = ReadULEB128p1(buf, p); !ok {
				return info
			}
			sig = -1
			if op == dbgStartLocalExtended {
				if sig, p, ok = ReadULEB128p1(buf, p); !ok {
					return info
				}
			}
			end(uint16(reg), addr)
			lv := LocalVar{Reg: uint16(reg), StartAddr: addr}
			if name >= 0 {
				lv.Name = f.String(uint32(name))
			}
			if typ >= 0 {
				lv.Descriptor = f.TypeDescriptor(uint32(typ))
			}
			if sig >= 0 {
				lv.Signature = f.String(uint32(sig))
			}
			locals[uint16(reg)] = &live{LocalVar: lv, open: true}
		case dbgEndLocal:
			var reg uint32
			if reg, p, ok = ReadULEB128(buf, p); !ok {
				return info
			}
			end(uint16(reg), addr)
		case dbgRestartLocal:
			var reg uint32
			if reg, p, ok = ReadULEB128(buf, p); !ok {
				return info
			}
			if l, ok := locals[uint16(reg)]; ok && !l.open {
				l.StartAddr = addr
				l.open = true
			}
		case dbgSetPrologueEnd, dbgSetEpilogueBegin:
		case dbgSetFile:
			if _, p, ok = ReadULEB128(buf, p); !ok {
				return info
			}
		default:
			adjusted := int(op) - dbgFirstSpecial
			addr += uint32(adjusted / dbgLineRange)
			line = uint32(int32(line) + int32(dbgLineBase+adjusted%dbgLineRange))
			info.Positions = append(info.Positions, Position{Address: addr, Line: line})
		}
	}
	return info
}

// LineForAddress returns the source line of the closest position entry at
// or before addr, or 0 when no line information exists.
func (d *DebugInfo) LineForAddress(addr uint32) uint32 {
	var line uint32
	for _, p := range d.Positions {
		if p.Address > addr {
			break
		}
		line = p.Line
	}
	return line
}

// AddressesForLine returns every address that begins the given line.
func (d *DebugInfo) AddressesForLine(line uint32) []uint32 {
	var addrs []uint32
	for _, p := range d.Positions {
		if p.Line == line {
			addrs = append(addrs, p.Address)
		}
	}
	return addrs
}

package dex

import "golang.org/x/exp/slices"

// ---------------------------------------------------------------------------
// Assembler: helper for constructing instruction streams
// ---------------------------------------------------------------------------

// Assembler builds a code_item instruction stream one instruction at a
// time. Branches take labels that are resolved when Insns is called;
// switch and array payloads are appended after the last instruction.
type Assembler struct {
	insns    []uint16
	fixups   []fixup
	payloads []payload
	done     bool
}

// Label is a branch target.
type Label struct {
	pc       int
	resolved bool
}

type fixup struct {
	from  int // pc of the branching instruction
	at    int // code unit holding the offset
	label *Label
}

type payload struct {
	from  int
	at    int
	build func(a *Assembler, from int) []uint16
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{insns: make([]uint16, 0, 32)}
}

// PC returns the address of the next instruction.
func (a *Assembler) PC() int {
	return len(a.insns)
}

// Emit appends raw code units.
func (a *Assembler) Emit(units ...uint16) {
	a.insns = append(a.insns, units...)
}

func unit(op Opcode, hi uint8) uint16 {
	return uint16(op) | uint16(hi)<<8
}

// Op10x emits an instruction with no operands.
func (a *Assembler) Op10x(op Opcode) {
	a.Emit(unit(op, 0))
}

// Op11x emits a single-register instruction.
func (a *Assembler) Op11x(op Opcode, ra uint8) {
	a.Emit(unit(op, ra))
}

// Op12x emits a two-register instruction with 4-bit registers.
func (a *Assembler) Op12x(op Opcode, ra, rb uint8) {
	a.Emit(unit(op, ra&0xf|rb<<4))
}

// Op11n emits const/4.
func (a *Assembler) Op11n(op Opcode, ra uint8, lit int8) {
	a.Emit(unit(op, ra&0xf|uint8(lit)<<4))
}

// Op21s emits an instruction with a register and a 16-bit literal.
func (a *Assembler) Op21s(op Opcode, ra uint8, lit int16) {
	a.Emit(unit(op, ra), uint16(lit))
}

// Op21c emits an instruction with a register and a 16-bit index.
func (a *Assembler) Op21c(op Opcode, ra uint8, idx uint32) {
	a.Emit(unit(op, ra), uint16(idx))
}

// Op22x emits move/from16 style instructions.
func (a *Assembler) Op22x(op Opcode, ra uint8, rb uint16) {
	a.Emit(unit(op, ra), rb)
}

// Op22c emits an instruction with two 4-bit registers and an index.
func (a *Assembler) Op22c(op Opcode, ra, rb uint8, idx uint32) {
	a.Emit(unit(op, ra&0xf|rb<<4), uint16(idx))
}

// Op22s emits an instruction with two 4-bit registers and a 16-bit literal.
func (a *Assembler) Op22s(op Opcode, ra, rb uint8, lit int16) {
	a.Emit(unit(op, ra&0xf|rb<<4), uint16(lit))
}

// Op22b emits an instruction with two 8-bit registers and an 8-bit literal.
func (a *Assembler) Op22b(op Opcode, ra, rb uint8, lit int8) {
	a.Emit(unit(op, ra), uint16(rb)|uint16(uint8(lit))<<8)
}

// Op23x emits a three-register instruction.
func (a *Assembler) Op23x(op Opcode, ra, rb, rc uint8) {
	a.Emit(unit(op, ra), uint16(rb)|uint16(rc)<<8)
}

// Op31i emits an instruction with a register and a 32-bit literal.
func (a *Assembler) Op31i(op Opcode, ra uint8, lit int32) {
	a.Emit(unit(op, ra), uint16(uint32(lit)), uint16(uint32(lit)>>16))
}

// Op51l emits const-wide.
func (a *Assembler) Op51l(op Opcode, ra uint8, lit int64) {
	v := uint64(lit)
	a.Emit(unit(op, ra), uint16(v), uint16(v>>16), uint16(v>>32), uint16(v>>48))
}

// Op35c emits an invoke or filled-new-array with up to five argument
// registers.
func (a *Assembler) Op35c(op Opcode, idx uint32, regs ...uint8) {
	var packed uint16
	var g uint8
	for i, r := range regs {
		if i < 4 {
			packed |= uint16(r&0xf) << (4 * uint(i))
		} else {
			g = r & 0xf
		}
	}
	a.Emit(unit(op, uint8(len(regs))<<4|g), uint16(idx), packed)
}

// Op3rc emits the range form of an invoke.
func (a *Assembler) Op3rc(op Opcode, idx uint32, first uint16, count uint8) {
	a.Emit(unit(op, count), uint16(idx), first)
}

// NewLabel creates an unresolved label.
func (a *Assembler) NewLabel() *Label {
	return &Label{}
}

// Mark resolves a label to the current position.
func (a *Assembler) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.pc = a.PC()
	l.resolved = true
}

// Goto emits goto/16 to l.
func (a *Assembler) Goto(l *Label) {
	from := a.PC()
	a.Emit(unit(OpGoto16, 0), 0)
	a.fixups = append(a.fixups, fixup{from: from, at: from + 1, label: l})
}

// If emits a two-register conditional branch (if-eq .. if-le).
func (a *Assembler) If(op Opcode, ra, rb uint8, l *Label) {
	from := a.PC()
	a.Emit(unit(op, ra&0xf|rb<<4), 0)
	a.fixups = append(a.fixups, fixup{from: from, at: from + 1, label: l})
}

// Ifz emits a compare-with-zero branch (if-eqz .. if-lez).
func (a *Assembler) Ifz(op Opcode, ra uint8, l *Label) {
	from := a.PC()
	a.Emit(unit(op, ra), 0)
	a.fixups = append(a.fixups, fixup{from: from, at: from + 1, label: l})
}

// PackedSwitch emits packed-switch on ra with consecutive keys starting at
// first.
func (a *Assembler) PackedSwitch(ra uint8, first int32, targets []*Label) {
	from := a.PC()
	a.Emit(unit(OpPackedSwitch, ra), 0, 0)
	a.payloads = append(a.payloads, payload{from: from, at: from + 1, build: func(a *Assembler, from int) []uint16 {
		out := []uint16{packedSwitchIdent, uint16(len(targets)), uint16(uint32(first)), uint16(uint32(first) >> 16)}
		for _, t := range targets {
			rel := uint32(int32(t.pc - from))
			out = append(out, uint16(rel), uint16(rel>>16))
		}
		return out
	}})
}

// SparseSwitch emits sparse-switch on ra. Cases are sorted by key.
func (a *Assembler) SparseSwitch(ra uint8, cases map[int32]*Label) {
	keys := make([]int32, 0, len(cases))
	for k := range cases {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	from := a.PC()
	a.Emit(unit(OpSparseSwitch, ra), 0, 0)
	a.payloads = append(a.payloads, payload{from: from, at: from + 1, build: func(a *Assembler, from int) []uint16 {
		out := []uint16{sparseSwitchIdent, uint16(len(keys))}
		for _, k := range keys {
			out = append(out, uint16(uint32(k)), uint16(uint32(k)>>16))
		}
		for _, k := range keys {
			rel := uint32(int32(cases[k].pc - from))
			out = append(out, uint16(rel), uint16(rel>>16))
		}
		return out
	}})
}

// FillArrayData emits fill-array-data on ra with elements of the given
// byte width, stored little-endian in data.
func (a *Assembler) FillArrayData(ra uint8, width int, data []byte) {
	from := a.PC()
	a.Emit(unit(OpFillArrayData, ra), 0, 0)
	a.payloads = append(a.payloads, payload{from: from, at: from + 1, build: func(*Assembler, int) []uint16 {
		count := uint32(len(data) / width)
		out := []uint16{fillArrayIdent, uint16(width), uint16(count), uint16(count >> 16)}
		for i := 0; i < len(data); i += 2 {
			u := uint16(data[i])
			if i+1 < len(data) {
				u |= uint16(data[i+1]) << 8
			}
			out = append(out, u)
		}
		return out
	}})
}

// Insns resolves labels, appends payloads and returns the finished
// instruction stream.
func (a *Assembler) Insns() []uint16 {
	if a.done {
		return a.insns
	}
	a.done = true
	for _, p := range a.payloads {
		if len(a.insns)%2 != 0 {
			a.Emit(unit(OpNop, 0))
		}
		rel := uint32(int32(len(a.insns) - p.from))
		a.insns[p.at] = uint16(rel)
		a.insns[p.at+1] = uint16(rel >> 16)
		a.Emit(p.build(a, p.from)...)
	}
	for _, f := range a.fixups {
		if !f.label.resolved {
			panic("branch to unmarked label")
		}
		a.insns[f.at] = uint16(int16(f.label.pc - f.from))
	}
	return a.insns
}

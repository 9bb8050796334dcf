package dex

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the low byte of the first code unit of an instruction.
type Opcode byte

// Moves, results and returns
const (
	OpNop              Opcode = 0x00
	OpMove             Opcode = 0x01
	OpMoveFrom16       Opcode = 0x02
	OpMove16           Opcode = 0x03
	OpMoveWide         Opcode = 0x04
	OpMoveWideFrom16   Opcode = 0x05
	OpMoveWide16       Opcode = 0x06
	OpMoveObject       Opcode = 0x07
	OpMoveObjectFrom16 Opcode = 0x08
	OpMoveObject16     Opcode = 0x09
	OpMoveResult       Opcode = 0x0a
	OpMoveResultWide   Opcode = 0x0b
	OpMoveResultObject Opcode = 0x0c
	OpMoveException    Opcode = 0x0d
	OpReturnVoid       Opcode = 0x0e
	OpReturn           Opcode = 0x0f
	OpReturnWide       Opcode = 0x10
	OpReturnObject     Opcode = 0x11
)

// Constants
const (
	OpConst4           Opcode = 0x12
	OpConst16          Opcode = 0x13
	OpConst            Opcode = 0x14
	OpConstHigh16      Opcode = 0x15
	OpConstWide16      Opcode = 0x16
	OpConstWide32      Opcode = 0x17
	OpConstWide        Opcode = 0x18
	OpConstWideHigh16  Opcode = 0x19
	OpConstString      Opcode = 0x1a
	OpConstStringJumbo Opcode = 0x1b
	OpConstClass       Opcode = 0x1c
)

// Objects, arrays and control flow
const (
	OpMonitorEnter        Opcode = 0x1d
	OpMonitorExit         Opcode = 0x1e
	OpCheckCast           Opcode = 0x1f
	OpInstanceOf          Opcode = 0x20
	OpArrayLength         Opcode = 0x21
	OpNewInstance         Opcode = 0x22
	OpNewArray            Opcode = 0x23
	OpFilledNewArray      Opcode = 0x24
	OpFilledNewArrayRange Opcode = 0x25
	OpFillArrayData       Opcode = 0x26
	OpThrow               Opcode = 0x27
	OpGoto                Opcode = 0x28
	OpGoto16              Opcode = 0x29
	OpGoto32              Opcode = 0x2a
	OpPackedSwitch        Opcode = 0x2b
	OpSparseSwitch        Opcode = 0x2c
	OpCmplFloat           Opcode = 0x2d
	OpCmpgFloat           Opcode = 0x2e
	OpCmplDouble          Opcode = 0x2f
	OpCmpgDouble          Opcode = 0x30
	OpCmpLong             Opcode = 0x31
	OpIfEq                Opcode = 0x32
	OpIfNe                Opcode = 0x33
	OpIfLt                Opcode = 0x34
	OpIfGe                Opcode = 0x35
	OpIfGt                Opcode = 0x36
	OpIfLe                Opcode = 0x37
	OpIfEqz               Opcode = 0x38
	OpIfNez               Opcode = 0x39
	OpIfLtz               Opcode = 0x3a
	OpIfGez               Opcode = 0x3b
	OpIfGtz               Opcode = 0x3c
	OpIfLez               Opcode = 0x3d
)

// Field and array access. Each family runs in the order plain, wide,
// object, boolean, byte, char, short.
const (
	OpAget        Opcode = 0x44
	OpAgetWide    Opcode = 0x45
	OpAgetObject  Opcode = 0x46
	OpAgetBoolean Opcode = 0x47
	OpAgetByte    Opcode = 0x48
	OpAgetChar    Opcode = 0x49
	OpAgetShort   Opcode = 0x4a
	OpAput        Opcode = 0x4b
	OpAputWide    Opcode = 0x4c
	OpAputObject  Opcode = 0x4d
	OpAputBoolean Opcode = 0x4e
	OpAputByte    Opcode = 0x4f
	OpAputChar    Opcode = 0x50
	OpAputShort   Opcode = 0x51
	OpIget        Opcode = 0x52
	OpIgetWide    Opcode = 0x53
	OpIgetObject  Opcode = 0x54
	OpIgetBoolean Opcode = 0x55
	OpIgetByte    Opcode = 0x56
	OpIgetChar    Opcode = 0x57
	OpIgetShort   Opcode = 0x58
	OpIput        Opcode = 0x59
	OpIputWide    Opcode = 0x5a
	OpIputObject  Opcode = 0x5b
	OpIputBoolean Opcode = 0x5c
	OpIputByte    Opcode = 0x5d
	OpIputChar    Opcode = 0x5e
	OpIputShort   Opcode = 0x5f
	OpSget        Opcode = 0x60
	OpSgetWide    Opcode = 0x61
	OpSgetObject  Opcode = 0x62
	OpSgetBoolean Opcode = 0x63
	OpSgetByte    Opcode = 0x64
	OpSgetChar    Opcode = 0x65
	OpSgetShort   Opcode = 0x66
	OpSput        Opcode = 0x67
	OpSputWide    Opcode = 0x68
	OpSputObject  Opcode = 0x69
	OpSputBoolean Opcode = 0x6a
	OpSputByte    Opcode = 0x6b
	OpSputChar    Opcode = 0x6c
	OpSputShort   Opcode = 0x6d
)

// Invokes
const (
	OpInvokeVirtual        Opcode = 0x6e
	OpInvokeSuper          Opcode = 0x6f
	OpInvokeDirect         Opcode = 0x70
	OpInvokeStatic         Opcode = 0x71
	OpInvokeInterface      Opcode = 0x72
	OpInvokeVirtualRange   Opcode = 0x74
	OpInvokeSuperRange     Opcode = 0x75
	OpInvokeDirectRange    Opcode = 0x76
	OpInvokeStaticRange    Opcode = 0x77
	OpInvokeInterfaceRange Opcode = 0x78
)

// Unary operations and conversions
const (
	OpNegInt        Opcode = 0x7b
	OpNotInt        Opcode = 0x7c
	OpNegLong       Opcode = 0x7d
	OpNotLong       Opcode = 0x7e
	OpNegFloat      Opcode = 0x7f
	OpNegDouble     Opcode = 0x80
	OpIntToLong     Opcode = 0x81
	OpIntToFloat    Opcode = 0x82
	OpIntToDouble   Opcode = 0x83
	OpLongToInt     Opcode = 0x84
	OpLongToFloat   Opcode = 0x85
	OpLongToDouble  Opcode = 0x86
	OpFloatToInt    Opcode = 0x87
	OpFloatToLong   Opcode = 0x88
	OpFloatToDouble Opcode = 0x89
	OpDoubleToInt   Opcode = 0x8a
	OpDoubleToLong  Opcode = 0x8b
	OpDoubleToFloat Opcode = 0x8c
	OpIntToByte     Opcode = 0x8d
	OpIntToChar     Opcode = 0x8e
	OpIntToShort    Opcode = 0x8f
)

// Binary operations. The /2addr forms are the three-register opcode plus
// 0x20.
const (
	OpAddInt    Opcode = 0x90
	OpSubInt    Opcode = 0x91
	OpMulInt    Opcode = 0x92
	OpDivInt    Opcode = 0x93
	OpRemInt    Opcode = 0x94
	OpAndInt    Opcode = 0x95
	OpOrInt     Opcode = 0x96
	OpXorInt    Opcode = 0x97
	OpShlInt    Opcode = 0x98
	OpShrInt    Opcode = 0x99
	OpUshrInt   Opcode = 0x9a
	OpAddLong   Opcode = 0x9b
	OpSubLong   Opcode = 0x9c
	OpMulLong   Opcode = 0x9d
	OpDivLong   Opcode = 0x9e
	OpRemLong   Opcode = 0x9f
	OpAndLong   Opcode = 0xa0
	OpOrLong    Opcode = 0xa1
	OpXorLong   Opcode = 0xa2
	OpShlLong   Opcode = 0xa3
	OpShrLong   Opcode = 0xa4
	OpUshrLong  Opcode = 0xa5
	OpAddFloat  Opcode = 0xa6
	OpSubFloat  Opcode = 0xa7
	OpMulFloat  Opcode = 0xa8
	OpDivFloat  Opcode = 0xa9
	OpRemFloat  Opcode = 0xaa
	OpAddDouble Opcode = 0xab
	OpSubDouble Opcode = 0xac
	OpMulDouble Opcode = 0xad
	OpDivDouble Opcode = 0xae
	OpRemDouble Opcode = 0xaf

	OpAddInt2Addr    Opcode = 0xb0
	OpSubInt2Addr    Opcode = 0xb1
	OpMulInt2Addr    Opcode = 0xb2
	OpDivInt2Addr    Opcode = 0xb3
	OpRemInt2Addr    Opcode = 0xb4
	OpAndInt2Addr    Opcode = 0xb5
	OpOrInt2Addr     Opcode = 0xb6
	OpXorInt2Addr    Opcode = 0xb7
	OpShlInt2Addr    Opcode = 0xb8
	OpShrInt2Addr    Opcode = 0xb9
	OpUshrInt2Addr   Opcode = 0xba
	OpAddLong2Addr   Opcode = 0xbb
	OpSubLong2Addr   Opcode = 0xbc
	OpMulLong2Addr   Opcode = 0xbd
	OpDivLong2Addr   Opcode = 0xbe
	OpRemLong2Addr   Opcode = 0xbf
	OpAndLong2Addr   Opcode = 0xc0
	OpOrLong2Addr    Opcode = 0xc1
	OpXorLong2Addr   Opcode = 0xc2
	OpShlLong2Addr   Opcode = 0xc3
	OpShrLong2Addr   Opcode = 0xc4
	OpUshrLong2Addr  Opcode = 0xc5
	OpAddFloat2Addr  Opcode = 0xc6
	OpSubFloat2Addr  Opcode = 0xc7
	OpMulFloat2Addr  Opcode = 0xc8
	OpDivFloat2Addr  Opcode = 0xc9
	OpRemFloat2Addr  Opcode = 0xca
	OpAddDouble2Addr Opcode = 0xcb
	OpSubDouble2Addr Opcode = 0xcc
	OpMulDouble2Addr Opcode = 0xcd
	OpDivDouble2Addr Opcode = 0xce
	OpRemDouble2Addr Opcode = 0xcf

	OpAddIntLit16 Opcode = 0xd0
	OpRsubInt     Opcode = 0xd1
	OpXorIntLit16 Opcode = 0xd7
	OpAddIntLit8  Opcode = 0xd8
	OpRsubIntLit8 Opcode = 0xd9
	OpUshrIntLit8 Opcode = 0xe2
)

// ---------------------------------------------------------------------------
// Instruction formats
// ---------------------------------------------------------------------------

// Format is an instruction format as named by the instruction set: the
// first digit is the width in code units, the second the register count,
// the letter the kind of extra data.
type Format uint8

const (
	FmtUnknown Format = iota
	Fmt10x
	Fmt12x
	Fmt11n
	Fmt11x
	Fmt10t
	Fmt20t
	Fmt22x
	Fmt21t
	Fmt21s
	Fmt21h
	Fmt21c
	Fmt23x
	Fmt22b
	Fmt22t
	Fmt22s
	Fmt22c
	Fmt30t
	Fmt32x
	Fmt31i
	Fmt31t
	Fmt31c
	Fmt35c
	Fmt3rc
	Fmt51l
)

// Width returns the instruction width in 16-bit code units.
func (f Format) Width() int {
	switch f {
	case Fmt10x, Fmt12x, Fmt11n, Fmt11x, Fmt10t:
		return 1
	case Fmt20t, Fmt22x, Fmt21t, Fmt21s, Fmt21h, Fmt21c, Fmt23x, Fmt22b, Fmt22t, Fmt22s, Fmt22c:
		return 2
	case Fmt30t, Fmt32x, Fmt31i, Fmt31t, Fmt31c, Fmt35c, Fmt3rc:
		return 3
	case Fmt51l:
		return 5
	}
	return 1
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name   string
	Format Format
}

var opcodeTable [256]OpcodeInfo

func defineOps(first Opcode, format Format, names ...string) {
	for i, n := range names {
		opcodeTable[int(first)+i] = OpcodeInfo{Name: n, Format: format}
	}
}

func init() {
	defineOps(OpNop, Fmt10x, "nop")
	defineOps(OpMove, Fmt12x, "move")
	defineOps(OpMoveFrom16, Fmt22x, "move/from16")
	defineOps(OpMove16, Fmt32x, "move/16")
	defineOps(OpMoveWide, Fmt12x, "move-wide")
	defineOps(OpMoveWideFrom16, Fmt22x, "move-wide/from16")
	defineOps(OpMoveWide16, Fmt32x, "move-wide/16")
	defineOps(OpMoveObject, Fmt12x, "move-object")
	defineOps(OpMoveObjectFrom16, Fmt22x, "move-object/from16")
	defineOps(OpMoveObject16, Fmt32x, "move-object/16")
	defineOps(OpMoveResult, Fmt11x, "move-result", "move-result-wide", "move-result-object",
		"move-exception")
	defineOps(OpReturnVoid, Fmt10x, "return-void")
	defineOps(OpReturn, Fmt11x, "return", "return-wide", "return-object")

	defineOps(OpConst4, Fmt11n, "const/4")
	defineOps(OpConst16, Fmt21s, "const/16")
	defineOps(OpConst, Fmt31i, "const")
	defineOps(OpConstHigh16, Fmt21h, "const/high16")
	defineOps(OpConstWide16, Fmt21s, "const-wide/16")
	defineOps(OpConstWide32, Fmt31i, "const-wide/32")
	defineOps(OpConstWide, Fmt51l, "const-wide")
	defineOps(OpConstWideHigh16, Fmt21h, "const-wide/high16")
	defineOps(OpConstString, Fmt21c, "const-string")
	defineOps(OpConstStringJumbo, Fmt31c, "const-string/jumbo")
	defineOps(OpConstClass, Fmt21c, "const-class")

	defineOps(OpMonitorEnter, Fmt11x, "monitor-enter", "monitor-exit")
	defineOps(OpCheckCast, Fmt21c, "check-cast")
	defineOps(OpInstanceOf, Fmt22c, "instance-of")
	defineOps(OpArrayLength, Fmt12x, "array-length")
	defineOps(OpNewInstance, Fmt21c, "new-instance")
	defineOps(OpNewArray, Fmt22c, "new-array")
	defineOps(OpFilledNewArray, Fmt35c, "filled-new-array")
	defineOps(OpFilledNewArrayRange, Fmt3rc, "filled-new-array/range")
	defineOps(OpFillArrayData, Fmt31t, "fill-array-data")
	defineOps(OpThrow, Fmt11x, "throw")
	defineOps(OpGoto, Fmt10t, "goto")
	defineOps(OpGoto16, Fmt20t, "goto/16")
	defineOps(OpGoto32, Fmt30t, "goto/32")
	defineOps(OpPackedSwitch, Fmt31t, "packed-switch", "sparse-switch")
	defineOps(OpCmplFloat, Fmt23x, "cmpl-float", "cmpg-float", "cmpl-double", "cmpg-double", "cmp-long")
	defineOps(OpIfEq, Fmt22t, "if-eq", "if-ne", "if-lt", "if-ge", "if-gt", "if-le")
	defineOps(OpIfEqz, Fmt21t, "if-eqz", "if-nez", "if-ltz", "if-gez", "if-gtz", "if-lez")

	kinds := []string{"", "-wide", "-object", "-boolean", "-byte", "-char", "-short"}
	family := func(first Opcode, format Format, base string) {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = base + k
		}
		defineOps(first, format, names...)
	}
	family(OpAget, Fmt23x, "aget")
	family(OpAput, Fmt23x, "aput")
	family(OpIget, Fmt22c, "iget")
	family(OpIput, Fmt22c, "iput")
	family(OpSget, Fmt21c, "sget")
	family(OpSput, Fmt21c, "sput")

	invokes := []string{"invoke-virtual", "invoke-super", "invoke-direct", "invoke-static", "invoke-interface"}
	defineOps(OpInvokeVirtual, Fmt35c, invokes...)
	ranges := make([]string, len(invokes))
	for i, n := range invokes {
		ranges[i] = n + "/range"
	}
	defineOps(OpInvokeVirtualRange, Fmt3rc, ranges...)

	defineOps(OpNegInt, Fmt12x, "neg-int", "not-int", "neg-long", "not-long", "neg-float", "neg-double",
		"int-to-long", "int-to-float", "int-to-double", "long-to-int", "long-to-float", "long-to-double",
		"float-to-int", "float-to-long", "float-to-double", "double-to-int", "double-to-long",
		"double-to-float", "int-to-byte", "int-to-char", "int-to-short")

	binops := []string{
		"add-int", "sub-int", "mul-int", "div-int", "rem-int", "and-int", "or-int", "xor-int",
		"shl-int", "shr-int", "ushr-int",
		"add-long", "sub-long", "mul-long", "div-long", "rem-long", "and-long", "or-long", "xor-long",
		"shl-long", "shr-long", "ushr-long",
		"add-float", "sub-float", "mul-float", "div-float", "rem-float",
		"add-double", "sub-double", "mul-double", "div-double", "rem-double",
	}
	defineOps(OpAddInt, Fmt23x, binops...)
	addr2 := make([]string, len(binops))
	for i, n := range binops {
		addr2[i] = n + "/2addr"
	}
	defineOps(OpAddInt2Addr, Fmt12x, addr2...)
	defineOps(OpAddIntLit16, Fmt22s, "add-int/lit16", "rsub-int", "mul-int/lit16", "div-int/lit16",
		"rem-int/lit16", "and-int/lit16", "or-int/lit16", "xor-int/lit16")
	defineOps(OpAddIntLit8, Fmt22b, "add-int/lit8", "rsub-int/lit8", "mul-int/lit8", "div-int/lit8",
		"rem-int/lit8", "and-int/lit8", "or-int/lit8", "xor-int/lit8", "shl-int/lit8", "shr-int/lit8",
		"ushr-int/lit8")
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info := opcodeTable[op]; info.Name != "" {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unused-%02x", byte(op)), Format: Fmt10x}
}

// Name returns the mnemonic of an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Known reports whether op is an instruction this package understands.
func (op Opcode) Known() bool {
	return opcodeTable[op].Name != ""
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Width returns the width in code units of the instruction at insns[pc],
// including the payload pseudo-instructions that follow switch and
// fill-array-data.
func Width(insns []uint16, pc int) int {
	u := insns[pc]
	switch u {
	case packedSwitchIdent:
		if pc+1 < len(insns) {
			return 4 + int(insns[pc+1])*2
		}
	case sparseSwitchIdent:
		if pc+1 < len(insns) {
			return 2 + int(insns[pc+1])*4
		}
	case fillArrayIdent:
		if pc+3 < len(insns) {
			n := int(insns[pc+1]) * int(uint32(insns[pc+2])|uint32(insns[pc+3])<<16)
			return 4 + (n+1)/2
		}
	}
	return Opcode(u).Info().Format.Width()
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Instruction is a decoded instruction. Fields unused by the format are
// zero. B holds the literal or index operand and Offset a branch target
// relative to the instruction.
type Instruction struct {
	Op     Opcode
	A      uint32
	B      uint32
	C      uint32
	Lit    int64
	Offset int32
	Args   []uint32
}

// Decode decodes the instruction at insns[pc].
func Decode(insns []uint16, pc int) Instruction {
	u := insns[pc]
	op := Opcode(u)
	in := Instruction{Op: op}
	at := func(i int) uint16 {
		if pc+i < len(insns) {
			return insns[pc+i]
		}
		return 0
	}
	u32 := func(i int) uint32 { return uint32(at(i)) | uint32(at(i+1))<<16 }
	switch op.Info().Format {
	case Fmt12x:
		in.A = uint32(u>>8) & 0xf
		in.B = uint32(u >> 12)
	case Fmt11n:
		in.A = uint32(u>>8) & 0xf
		in.Lit = int64(int8(u>>8) >> 4)
	case Fmt11x:
		in.A = uint32(u >> 8)
	case Fmt10t:
		in.Offset = int32(int8(u >> 8))
	case Fmt20t:
		in.Offset = int32(int16(at(1)))
	case Fmt22x:
		in.A = uint32(u >> 8)
		in.B = uint32(at(1))
	case Fmt21t:
		in.A = uint32(u >> 8)
		in.Offset = int32(int16(at(1)))
	case Fmt21s:
		in.A = uint32(u >> 8)
		in.Lit = int64(int16(at(1)))
	case Fmt21h:
		in.A = uint32(u >> 8)
		if op == OpConstHigh16 {
			in.Lit = int64(int32(uint32(at(1)) << 16))
		} else {
			in.Lit = int64(uint64(at(1)) << 48)
		}
	case Fmt21c:
		in.A = uint32(u >> 8)
		in.B = uint32(at(1))
	case Fmt23x:
		in.A = uint32(u >> 8)
		in.B = uint32(at(1) & 0xff)
		in.C = uint32(at(1) >> 8)
	case Fmt22b:
		in.A = uint32(u >> 8)
		in.B = uint32(at(1) & 0xff)
		in.Lit = int64(int8(at(1) >> 8))
	case Fmt22t:
		in.A = uint32(u>>8) & 0xf
		in.B = uint32(u >> 12)
		in.Offset = int32(int16(at(1)))
	case Fmt22s:
		in.A = uint32(u>>8) & 0xf
		in.B = uint32(u >> 12)
		in.Lit = int64(int16(at(1)))
	case Fmt22c:
		in.A = uint32(u>>8) & 0xf
		in.B = uint32(u >> 12)
		in.C = uint32(at(1))
	case Fmt30t:
		in.Offset = int32(u32(1))
	case Fmt32x:
		in.A = uint32(at(1))
		in.B = uint32(at(2))
	case Fmt31i:
		in.A = uint32(u >> 8)
		in.Lit = int64(int32(u32(1)))
	case Fmt31t:
		in.A = uint32(u >> 8)
		in.Offset = int32(u32(1))
	case Fmt31c:
		in.A = uint32(u >> 8)
		in.B = u32(1)
	case Fmt35c:
		count := int(u >> 12)
		in.A = uint32(count)
		in.B = uint32(at(1))
		regs := at(2)
		for i := 0; i < count && i < 4; i++ {
			in.Args = append(in.Args, uint32(regs>>(4*uint(i)))&0xf)
		}
		if count == 5 {
			in.Args = append(in.Args, uint32(u>>8)&0xf)
		}
	case Fmt3rc:
		count := int(u >> 8)
		in.A = uint32(count)
		in.B = uint32(at(1))
		first := uint32(at(2))
		for i := 0; i < count; i++ {
			in.Args = append(in.Args, first+uint32(i))
		}
	case Fmt51l:
		in.A = uint32(u >> 8)
		in.Lit = int64(uint64(u32(1)) | uint64(u32(3))<<32)
	}
	return in
}

// Disassemble renders the instruction at insns[pc] in dexdump style. Index
// operands are resolved through f when it is non-nil.
func Disassemble(f *File, insns []uint16, pc int) string {
	switch insns[pc] {
	case packedSwitchIdent:
		return "packed-switch-data"
	case sparseSwitchIdent:
		return "sparse-switch-data"
	case fillArrayIdent:
		return "array-data"
	}
	in := Decode(insns, pc)
	info := in.Op.Info()
	ref := func(kind string, idx uint32) string {
		if f == nil {
			return fmt.Sprintf("%s@%04x", kind, idx)
		}
		switch kind {
		case "string":
			return fmt.Sprintf("%q", f.String(idx))
		case "type":
			return f.TypeDescriptor(idx)
		case "field":
			c, n, t := f.FieldRef(idx)
			return c + "." + n + ":" + t
		case "method":
			c, n, d := f.MethodRef(idx)
			return c + "." + n + ":" + d
		}
		return ""
	}
	refKind := func() string {
		switch {
		case in.Op == OpConstString || in.Op == OpConstStringJumbo:
			return "string"
		case in.Op >= OpIget && in.Op <= OpSputShort:
			return "field"
		case in.Op >= OpInvokeVirtual && in.Op <= OpInvokeInterfaceRange:
			return "method"
		}
		return "type"
	}
	switch info.Format {
	case Fmt10x:
		return info.Name
	case Fmt12x:
		return fmt.Sprintf("%s v%d, v%d", info.Name, in.A, in.B)
	case Fmt11n, Fmt21s, Fmt21h, Fmt31i, Fmt51l:
		return fmt.Sprintf("%s v%d, #%d", info.Name, in.A, in.Lit)
	case Fmt11x:
		return fmt.Sprintf("%s v%d", info.Name, in.A)
	case Fmt10t, Fmt20t, Fmt30t:
		return fmt.Sprintf("%s %04x", info.Name, pc+int(in.Offset))
	case Fmt22x, Fmt32x:
		return fmt.Sprintf("%s v%d, v%d", info.Name, in.A, in.B)
	case Fmt21t, Fmt31t:
		return fmt.Sprintf("%s v%d, %04x", info.Name, in.A, pc+int(in.Offset))
	case Fmt21c, Fmt31c:
		return fmt.Sprintf("%s v%d, %s", info.Name, in.A, ref(refKind(), in.B))
	case Fmt23x:
		return fmt.Sprintf("%s v%d, v%d, v%d", info.Name, in.A, in.B, in.C)
	case Fmt22b, Fmt22s:
		return fmt.Sprintf("%s v%d, v%d, #%d", info.Name, in.A, in.B, in.Lit)
	case Fmt22t:
		return fmt.Sprintf("%s v%d, v%d, %04x", info.Name, in.A, in.B, pc+int(in.Offset))
	case Fmt22c:
		return fmt.Sprintf("%s v%d, v%d, %s", info.Name, in.A, in.B, ref(refKind(), in.C))
	case Fmt35c, Fmt3rc:
		regs := ""
		for i, r := range in.Args {
			if i > 0 {
				regs += ", "
			}
			regs += fmt.Sprintf("v%d", r)
		}
		return fmt.Sprintf("%s {%s}, %s", info.Name, regs, ref(refKind(), in.B))
	}
	return info.Name
}

package vm

import "math"

// ---------------------------------------------------------------------------
// Registers and values
// ---------------------------------------------------------------------------

// Reg is one interpreter register. A register holds either a 32-bit
// primitive in Bits or a reference in Ref; wide values occupy two
// consecutive registers, low word first.
type Reg struct {
	Bits uint32
	Ref  *Object
}

// IsZero reports whether the register holds integer zero or null.
func (r Reg) IsZero() bool {
	return r.Bits == 0 && r.Ref == nil
}

// Value is a type-agnostic argument or result: a primitive of up to 64
// bits or a reference.
type Value struct {
	Bits uint64
	Ref  *Object
}

// Int returns v as a Java int.
func (v Value) Int() int32 { return int32(uint32(v.Bits)) }

// Long returns v as a Java long.
func (v Value) Long() int64 { return int64(v.Bits) }

// Float returns v as a Java float.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.Bits)) }

// Double returns v as a Java double.
func (v Value) Double() float64 { return math.Float64frombits(v.Bits) }

// Bool returns v as a Java boolean.
func (v Value) Bool() bool { return v.Bits&0xff != 0 }

// IntValue wraps a Java int.
func IntValue(i int32) Value { return Value{Bits: uint64(uint32(i))} }

// LongValue wraps a Java long.
func LongValue(i int64) Value { return Value{Bits: uint64(i)} }

// FloatValue wraps a Java float.
func FloatValue(f float32) Value { return Value{Bits: uint64(math.Float32bits(f))} }

// DoubleValue wraps a Java double.
func DoubleValue(f float64) Value { return Value{Bits: math.Float64bits(f)} }

// BoolValue wraps a Java boolean.
func BoolValue(b bool) Value {
	if b {
		return Value{Bits: 1}
	}
	return Value{}
}

// RefValue wraps a reference.
func RefValue(o *Object) Value { return Value{Ref: o} }

// isWide reports whether a descriptor names a two-register type.
func isWide(desc string) bool {
	return desc == "J" || desc == "D"
}

// isRef reports whether a descriptor names a reference type.
func isRef(desc string) bool {
	return desc != "" && (desc[0] == 'L' || desc[0] == '[')
}

// primWidth returns the storage width of a primitive descriptor.
func primWidth(desc string) int {
	switch desc {
	case "J", "D":
		return 8
	case "I", "F":
		return 4
	case "S", "C":
		return 2
	case "B", "Z":
		return 1
	}
	return 0
}

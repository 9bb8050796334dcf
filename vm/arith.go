package vm

import "math"

// ---------------------------------------------------------------------------
// Arithmetic with Java semantics
// ---------------------------------------------------------------------------

// Binary operation kinds, in instruction-set order.
const (
	binAdd = iota
	binSub
	binMul
	binDiv
	binRem
	binAnd
	binOr
	binXor
	binShl
	binShr
	binUshr
)

// intBinop applies op to two ints. ok is false on division by zero.
func intBinop(op int, a, b int32) (int32, bool) {
	switch op {
	case binAdd:
		return a + b, true
	case binSub:
		return a - b, true
	case binMul:
		return a * b, true
	case binDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case binRem:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case binAnd:
		return a & b, true
	case binOr:
		return a | b, true
	case binXor:
		return a ^ b, true
	case binShl:
		return a << (uint32(b) & 0x1f), true
	case binShr:
		return a >> (uint32(b) & 0x1f), true
	case binUshr:
		return int32(uint32(a) >> (uint32(b) & 0x1f)), true
	}
	return 0, true
}

// longBinop applies op to two longs. For shifts b is the int shift count.
func longBinop(op int, a, b int64) (int64, bool) {
	switch op {
	case binAdd:
		return a + b, true
	case binSub:
		return a - b, true
	case binMul:
		return a * b, true
	case binDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case binRem:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case binAnd:
		return a & b, true
	case binOr:
		return a | b, true
	case binXor:
		return a ^ b, true
	case binShl:
		return a << (uint64(b) & 0x3f), true
	case binShr:
		return a >> (uint64(b) & 0x3f), true
	case binUshr:
		return int64(uint64(a) >> (uint64(b) & 0x3f)), true
	}
	return 0, true
}

func floatBinop(op int, a, b float32) float32 {
	switch op {
	case binAdd:
		return a + b
	case binSub:
		return a - b
	case binMul:
		return a * b
	case binDiv:
		return a / b
	}
	return float32(math.Mod(float64(a), float64(b)))
}

func doubleBinop(op int, a, b float64) float64 {
	switch op {
	case binAdd:
		return a + b
	case binSub:
		return a - b
	case binMul:
		return a * b
	case binDiv:
		return a / b
	}
	return math.Mod(a, b)
}

// litBinop applies a literal-form operation. The literal forms order
// their operations add, rsub, mul, div, rem, and, or, xor, shl, shr,
// ushr.
func litBinop(k int, a, lit int32) (int32, bool) {
	if k == 1 {
		return lit - a, true
	}
	return intBinop(k, a, lit)
}

// cmpFloating compares two floating-point values; bias is the result
// when either is NaN (-1 for cmpl, 1 for cmpg).
func cmpFloating(a, b float64, bias int32) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	return bias
}

func cmpLong(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// toInt converts with Java narrowing rules: NaN becomes 0 and out of
// range values saturate.
func toInt(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func toLong(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

package vm

import (
	"math"
	"testing"
)

func TestIntBinopDivideByZero(t *testing.T) {
	for _, op := range []int{binDiv, binRem} {
		if _, ok := intBinop(op, 1, 0); ok {
			t.Errorf("intBinop(%d, 1, 0) ok, want division failure", op)
		}
		if _, ok := longBinop(op, 1, 0); ok {
			t.Errorf("longBinop(%d, 1, 0) ok, want division failure", op)
		}
	}
}

func TestIntBinopOverflow(t *testing.T) {
	tests := []struct {
		name string
		op   int
		a, b int32
		want int32
	}{
		{"add wraps", binAdd, math.MaxInt32, 1, math.MinInt32},
		{"min div -1", binDiv, math.MinInt32, -1, math.MinInt32},
		{"min rem -1", binRem, math.MinInt32, -1, 0},
		{"shl uses low five bits", binShl, 1, 32, 1},
		{"ushr negative", binUshr, -8, 1, 0x7ffffffc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := intBinop(tt.op, tt.a, tt.b)
			if !ok || got != tt.want {
				t.Errorf("intBinop = %d, %t; want %d", got, ok, tt.want)
			}
		})
	}
}

func TestLongShiftMasksCount(t *testing.T) {
	if got, _ := longBinop(binShl, 1, 64); got != 1 {
		t.Errorf("1 << 64 = %d, want 1", got)
	}
	if got, _ := longBinop(binUshr, -1, 60); got != 15 {
		t.Errorf("-1 >>> 60 = %d, want 15", got)
	}
}

func TestLitBinopReverseSubtract(t *testing.T) {
	if got, _ := litBinop(1, 3, 10); got != 7 {
		t.Errorf("rsub = %d, want 7", got)
	}
	if got, _ := litBinop(binMul, 3, 10); got != 30 {
		t.Errorf("mul = %d, want 30", got)
	}
}

func TestFloatingCompareBias(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		a, b float64
		bias int32
		want int32
	}{
		{1, 2, -1, -1},
		{2, 1, -1, 1},
		{1, 1, 1, 0},
		{nan, 1, -1, -1},
		{nan, 1, 1, 1},
		{1, nan, 1, 1},
	}
	for _, tt := range tests {
		if got := cmpFloating(tt.a, tt.b, tt.bias); got != tt.want {
			t.Errorf("cmpFloating(%v, %v, %d) = %d, want %d", tt.a, tt.b, tt.bias, got, tt.want)
		}
	}
}

func TestNarrowingConversions(t *testing.T) {
	tests := []struct {
		in       float64
		wantInt  int32
		wantLong int64
	}{
		{math.NaN(), 0, 0},
		{1e20, math.MaxInt32, math.MaxInt64},
		{-1e20, math.MinInt32, math.MinInt64},
		{math.Inf(1), math.MaxInt32, math.MaxInt64},
		{-3.9, -3, -3},
		{3.9, 3, 3},
	}
	for _, tt := range tests {
		if got := toInt(tt.in); got != tt.wantInt {
			t.Errorf("toInt(%v) = %d, want %d", tt.in, got, tt.wantInt)
		}
		if got := toLong(tt.in); got != tt.wantLong {
			t.Errorf("toLong(%v) = %d, want %d", tt.in, got, tt.wantLong)
		}
	}
}

func TestFloatRemainder(t *testing.T) {
	if got := doubleBinop(binRem, -7.5, 2); got != -1.5 {
		t.Errorf("-7.5 %% 2 = %v, want -1.5", got)
	}
	if got := floatBinop(binRem, 7, 0); !math.IsNaN(float64(got)) {
		t.Errorf("7 %% 0 = %v, want NaN", got)
	}
}

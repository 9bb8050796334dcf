package vm

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/exp/slices"

	"github.com/chazu/dexvm/dex"
)

// ---------------------------------------------------------------------------
// Interpreter: register machine execution
// ---------------------------------------------------------------------------

// DefaultMaxFrameDepth bounds the call stack of a thread.
const DefaultMaxFrameDepth = 1024

// invokeMethod runs m with its argument registers already laid out. An
// escaping exception is returned instead of a value.
func (vm *VM) invokeMethod(t *Thread, m *Method, args []Reg) (Value, *Object) {
	if len(t.frames) >= vm.maxDepth {
		return Value{}, vm.throwable(t, "Ljava/lang/StackOverflowError;", m.Key())
	}
	vm.Profiler.RecordInvocation(m)
	switch {
	case m.IsNative():
		return vm.callNative(t, m, args)
	case m.Code == nil:
		return Value{}, vm.throwable(t, "Ljava/lang/AbstractMethodError;", m.Key())
	}
	return vm.execute(t, m, args)
}

// callNative runs a native method in ThreadNative status. The arguments
// stay visible to the collector through the native frame.
func (vm *VM) callNative(t *Thread, m *Method, args []Reg) (Value, *Object) {
	fn := m.Native
	if fn == nil {
		if fn = vm.Natives.Lookup(m.Key()); fn == nil {
			return Value{}, vm.throwable(t, "Ljava/lang/UnsatisfiedLinkError;", m.Key())
		}
	}
	f := newFrame(m, 0)
	f.Regs = args
	f.State = FrameExecuting
	t.pushFrame(f)
	defer t.popFrame()

	old := t.SetStatus(ThreadNative)
	v, err := fn(t, argValues(m, args))
	t.SetStatus(old)
	if err != nil {
		f.State = FramePropagated
		return Value{}, vm.errorThrowable(t, err)
	}
	f.State = FrameReturned
	return v, nil
}

// execute interprets m in a new frame.
func (vm *VM) execute(t *Thread, m *Method, args []Reg) (result Value, exc *Object) {
	code := m.Code
	if len(args) > int(code.RegistersSize) {
		return Value{}, vm.throwable(t, "Ljava/lang/LinkageError;", m.Key()+": too many arguments")
	}
	f := newFrame(m, int(code.RegistersSize))
	copy(f.Regs[len(f.Regs)-len(args):], args)
	t.pushFrame(f)
	defer t.popFrame()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); !ok {
				panic(r)
			}
			log.Errorf("%s at pc %d: %v", m.Key(), f.PC, r)
			f.State = FramePropagated
			result, exc = Value{}, vm.throwable(t, "Ljava/lang/VirtualMachineError;", fmt.Sprint(r))
		}
	}()

	f.State = FrameExecuting
	t.SafePoint()
	t.clearPending()
	if h := vm.hooks(); h.Active() {
		h.PostMethodEntry(t, f)
	}

	insns := code.Insns
	regs := f.Regs
	file := m.Class.File
	for {
		pc := f.PC
		if pc >= len(insns) {
			return Value{}, vm.throwable(t, "Ljava/lang/VirtualMachineError;", m.Key()+": fell off the end of the code")
		}
		if h := vm.hooks(); h.Active() {
			h.PostInstruction(t, f)
		}
		in := dex.Decode(insns, pc)
		next := pc + dex.Width(insns, pc)
		exc = nil

		switch in.Op {
		case dex.OpNop:

		// Moves and results
		case dex.OpMove, dex.OpMoveFrom16, dex.OpMove16,
			dex.OpMoveObject, dex.OpMoveObjectFrom16, dex.OpMoveObject16:
			regs[in.A] = regs[in.B]
		case dex.OpMoveWide, dex.OpMoveWideFrom16, dex.OpMoveWide16:
			lo, hi := regs[in.B], regs[in.B+1]
			regs[in.A], regs[in.A+1] = lo, hi
		case dex.OpMoveResult:
			regs[in.A] = Reg{Bits: uint32(f.result.Bits)}
		case dex.OpMoveResultWide:
			setJ(regs, in.A, int64(f.result.Bits))
		case dex.OpMoveResultObject:
			regs[in.A] = Reg{Ref: f.result.Ref}
			f.result = Value{}
		case dex.OpMoveException:
			regs[in.A] = Reg{Ref: t.exception}
			t.exception = nil

		// Returns
		case dex.OpReturnVoid:
			return vm.finish(t, f, Value{})
		case dex.OpReturn:
			return vm.finish(t, f, Value{Bits: uint64(regs[in.A].Bits)})
		case dex.OpReturnWide:
			return vm.finish(t, f, Value{Bits: uint64(getJ(regs, in.A))})
		case dex.OpReturnObject:
			return vm.finish(t, f, Value{Ref: regs[in.A].Ref})

		// Constants
		case dex.OpConst4, dex.OpConst16, dex.OpConst, dex.OpConstHigh16:
			regs[in.A] = Reg{Bits: uint32(in.Lit)}
		case dex.OpConstWide16, dex.OpConstWide32, dex.OpConstWide, dex.OpConstWideHigh16:
			setJ(regs, in.A, in.Lit)
		case dex.OpConstString, dex.OpConstStringJumbo:
			var s *Object
			if s, exc = vm.resolveString(t, file, in.B); exc == nil {
				regs[in.A] = Reg{Ref: s}
			}
		case dex.OpConstClass:
			var c *Class
			if c, exc = vm.resolveClass(t, file, in.B); exc == nil {
				mirror, err := vm.ClassObject(t, c)
				if err != nil {
					exc = vm.errorThrowable(t, err)
				} else {
					regs[in.A] = Reg{Ref: mirror}
				}
			}

		// Objects and arrays
		case dex.OpMonitorEnter, dex.OpMonitorExit:
			if regs[in.A].Ref == nil {
				exc = vm.throwable(t, "Ljava/lang/NullPointerException;", "")
			}
		case dex.OpCheckCast:
			if o := regs[in.A].Ref; o != nil {
				var c *Class
				if c, exc = vm.resolveClass(t, file, in.B); exc == nil && !o.Class.IsAssignableTo(c) {
					exc = vm.throwable(t, "Ljava/lang/ClassCastException;", o.Class.Name()+" cannot be cast to "+c.Name())
				}
			}
		case dex.OpInstanceOf:
			o := regs[in.B].Ref
			var c *Class
			if c, exc = vm.resolveClass(t, file, in.C); exc == nil {
				regs[in.A] = Reg{Bits: boolBits(o != nil && o.Class.IsAssignableTo(c))}
			}
		case dex.OpArrayLength:
			if o := regs[in.B].Ref; o == nil {
				exc = vm.throwable(t, "Ljava/lang/NullPointerException;", "Attempt to get length of null array")
			} else {
				regs[in.A] = Reg{Bits: uint32(o.Length)}
			}
		case dex.OpNewInstance:
			var (
				c *Class
				o *Object
			)
			if c, exc = vm.resolveClass(t, file, in.B); exc == nil {
				if o, exc = vm.newInstance(t, c); exc == nil {
					regs[in.A] = Reg{Ref: o}
				}
			}
		case dex.OpNewArray:
			var (
				c *Class
				o *Object
			)
			if c, exc = vm.resolveClass(t, file, in.C); exc == nil {
				if o, exc = vm.newArray(t, c, int32(regs[in.B].Bits)); exc == nil {
					regs[in.A] = Reg{Ref: o}
				}
			}
		case dex.OpFilledNewArray, dex.OpFilledNewArrayRange:
			exc = vm.filledNewArray(t, f, in)
		case dex.OpFillArrayData:
			exc = vm.fillArrayData(t, regs[in.A].Ref, insns, pc+int(in.Offset))
		case dex.OpThrow:
			if exc = regs[in.A].Ref; exc == nil {
				exc = vm.throwable(t, "Ljava/lang/NullPointerException;", "throw with null exception")
			} else {
				t.posted = nil
			}

		// Control flow
		case dex.OpGoto, dex.OpGoto16, dex.OpGoto32:
			next = pc + int(in.Offset)
		case dex.OpPackedSwitch:
			if first, targets, ok := dex.PackedSwitch(insns, pc+int(in.Offset)); ok {
				k := int64(int32(regs[in.A].Bits)) - int64(first)
				if k >= 0 && k < int64(len(targets)) {
					next = pc + int(targets[k])
				}
			}
		case dex.OpSparseSwitch:
			if keys, targets, ok := dex.SparseSwitch(insns, pc+int(in.Offset)); ok {
				if i, found := slices.BinarySearch(keys, int32(regs[in.A].Bits)); found {
					next = pc + int(targets[i])
				}
			}
		case dex.OpIfEq, dex.OpIfNe, dex.OpIfLt, dex.OpIfGe, dex.OpIfGt, dex.OpIfLe:
			if testCond(int(in.Op-dex.OpIfEq), regs[in.A], regs[in.B]) {
				next = pc + int(in.Offset)
			}
		case dex.OpIfEqz, dex.OpIfNez, dex.OpIfLtz, dex.OpIfGez, dex.OpIfGtz, dex.OpIfLez:
			if testCond(int(in.Op-dex.OpIfEqz), regs[in.A], Reg{}) {
				next = pc + int(in.Offset)
			}

		// Comparisons
		case dex.OpCmplFloat, dex.OpCmpgFloat:
			bias := int32(-1)
			if in.Op == dex.OpCmpgFloat {
				bias = 1
			}
			setI(regs, in.A, cmpFloating(float64(getF(regs, in.B)), float64(getF(regs, in.C)), bias))
		case dex.OpCmplDouble, dex.OpCmpgDouble:
			bias := int32(-1)
			if in.Op == dex.OpCmpgDouble {
				bias = 1
			}
			setI(regs, in.A, cmpFloating(getD(regs, in.B), getD(regs, in.C), bias))
		case dex.OpCmpLong:
			setI(regs, in.A, cmpLong(getJ(regs, in.B), getJ(regs, in.C)))

		default:
			switch op := in.Op; {
			case op >= dex.OpAget && op <= dex.OpAputShort:
				exc = vm.arrayOp(t, regs, in)
			case op >= dex.OpIget && op <= dex.OpIputShort:
				exc = vm.instanceFieldOp(t, f, in)
			case op >= dex.OpSget && op <= dex.OpSputShort:
				exc = vm.staticFieldOp(t, f, in)
			case op >= dex.OpInvokeVirtual && op <= dex.OpInvokeInterface,
				op >= dex.OpInvokeVirtualRange && op <= dex.OpInvokeInterfaceRange:
				exc = vm.invokeOp(t, f, in)
			case op >= dex.OpNegInt && op <= dex.OpIntToShort:
				unop(regs, in)
			case op >= dex.OpAddInt && op <= dex.OpRemDouble2Addr:
				if !binop(regs, in) {
					exc = vm.throwable(t, "Ljava/lang/ArithmeticException;", "divide by zero")
				}
			case op >= dex.OpAddIntLit16 && op <= dex.OpUshrIntLit8:
				k := int(op - dex.OpAddIntLit16)
				if op >= dex.OpAddIntLit8 {
					k = int(op - dex.OpAddIntLit8)
				}
				v, ok := litBinop(k, int32(regs[in.B].Bits), int32(in.Lit))
				if !ok {
					exc = vm.throwable(t, "Ljava/lang/ArithmeticException;", "divide by zero")
				} else {
					setI(regs, in.A, v)
				}
			default:
				exc = vm.throwable(t, "Ljava/lang/VirtualMachineError;", fmt.Sprintf("unsupported instruction %s at %s@%d", op, m.Key(), pc))
			}
		}

		if exc != nil {
			f.ThrowPC = pc
			f.State = FrameUnwinding
			vm.postThrow(t, f, pc, exc)
			if addr, ok := vm.findCatch(t, m, pc, exc); ok {
				f.CatchPC = int(addr)
				f.State = FrameExecuting
				t.exception = exc
				f.PC = int(addr)
				continue
			}
			f.State = FramePropagated
			return Value{}, exc
		}
		if next <= pc {
			t.SafePoint()
			t.clearPending()
		}
		f.PC = next
	}
}

func (vm *VM) finish(t *Thread, f *Frame, v Value) (Value, *Object) {
	f.State = FrameReturned
	if h := vm.hooks(); h.Active() {
		h.PostMethodExit(t, f, v)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Instruction helpers
// ---------------------------------------------------------------------------

func (vm *VM) newInstance(t *Thread, c *Class) (*Object, *Object) {
	if c.IsAbstract() || c.IsArray() || c.Primitive {
		return nil, vm.throwable(t, "Ljava/lang/InstantiationError;", c.Name())
	}
	if err := vm.InitializeClass(t, c); err != nil {
		return nil, vm.errorThrowable(t, err)
	}
	o, err := vm.Heap.Alloc(t, c)
	if err != nil {
		return nil, vm.errorThrowable(t, err)
	}
	return o, nil
}

func (vm *VM) newArray(t *Thread, c *Class, n int32) (*Object, *Object) {
	if !c.IsArray() {
		return nil, vm.throwable(t, "Ljava/lang/InstantiationError;", c.Name())
	}
	if n < 0 {
		return nil, vm.throwable(t, "Ljava/lang/NegativeArraySizeException;", fmt.Sprint(n))
	}
	o, err := vm.Heap.AllocArray(t, c, int(n))
	if err != nil {
		return nil, vm.errorThrowable(t, err)
	}
	return o, nil
}

func (vm *VM) filledNewArray(t *Thread, f *Frame, in dex.Instruction) *Object {
	c, exc := vm.resolveClass(t, f.Method.Class.File, in.B)
	if exc != nil {
		return exc
	}
	o, exc := vm.newArray(t, c, int32(len(in.Args)))
	if exc != nil {
		return exc
	}
	elem := o.ElementType()
	for i, r := range in.Args {
		if isRef(elem) {
			o.Refs[i] = f.Regs[r].Ref
		} else {
			o.Set(i, Value{Bits: uint64(f.Regs[r].Bits)})
		}
	}
	f.result = Value{Ref: o}
	return nil
}

func (vm *VM) fillArrayData(t *Thread, arr *Object, insns []uint16, off int) *Object {
	if arr == nil {
		return vm.throwable(t, "Ljava/lang/NullPointerException;", "fill-array-data on null array")
	}
	data, ok := dex.FillArrayData(insns, off)
	if !ok || !arr.IsArray() || isRef(arr.ElementType()) || primWidth(arr.ElementType()) != data.ElementWidth {
		return vm.throwable(t, "Ljava/lang/VirtualMachineError;", "bad fill-array-data payload")
	}
	if n := len(data.Data) / data.ElementWidth; n > arr.Length {
		return vm.throwable(t, "Ljava/lang/ArrayIndexOutOfBoundsException;", fmt.Sprintf("length=%d; index=%d", arr.Length, n-1))
	}
	copy(arr.Prims, data.Data)
	return nil
}

func (vm *VM) arrayOp(t *Thread, regs []Reg, in dex.Instruction) *Object {
	arr := regs[in.B].Ref
	if arr == nil {
		return vm.throwable(t, "Ljava/lang/NullPointerException;", "Attempt to access element of null array")
	}
	idx := int32(regs[in.C].Bits)
	if idx < 0 || int(idx) >= arr.Length {
		return vm.throwable(t, "Ljava/lang/ArrayIndexOutOfBoundsException;", fmt.Sprintf("length=%d; index=%d", arr.Length, idx))
	}
	i := int(idx)
	switch in.Op {
	case dex.OpAgetWide:
		setJ(regs, in.A, int64(arr.Get(i).Bits))
	case dex.OpAgetObject:
		regs[in.A] = Reg{Ref: arr.Refs[i]}
	case dex.OpAget, dex.OpAgetBoolean, dex.OpAgetByte, dex.OpAgetChar, dex.OpAgetShort:
		regs[in.A] = Reg{Bits: uint32(arr.Get(i).Bits)}
	case dex.OpAputWide:
		arr.Set(i, Value{Bits: uint64(getJ(regs, in.A))})
	case dex.OpAputObject:
		v := regs[in.A].Ref
		if v != nil && !v.Class.IsAssignableTo(arr.Class.Component) {
			return vm.throwable(t, "Ljava/lang/ArrayStoreException;", v.Class.Name()+" cannot be stored in an array of type "+arr.Class.Name())
		}
		arr.Refs[i] = v
	default:
		arr.Set(i, Value{Bits: uint64(regs[in.A].Bits)})
	}
	return nil
}

func (vm *VM) instanceFieldOp(t *Thread, f *Frame, in dex.Instruction) *Object {
	fld, exc := vm.resolveField(t, f.Method.Class.File, in.C, false)
	if exc != nil {
		return exc
	}
	obj := f.Regs[in.B].Ref
	get := in.Op <= dex.OpIgetShort
	if obj == nil {
		verb := "write to"
		if get {
			verb = "read from"
		}
		return vm.throwable(t, "Ljava/lang/NullPointerException;",
			fmt.Sprintf("Attempt to %s field '%s %s.%s' on a null object reference", verb, fld.Type, fld.Class.Name(), fld.Name))
	}
	if get {
		f.Set(int(in.A), fld.Type, obj.GetField(fld))
	} else {
		obj.SetField(fld, f.Get(int(in.A), fld.Type))
	}
	return nil
}

func (vm *VM) staticFieldOp(t *Thread, f *Frame, in dex.Instruction) *Object {
	fld, exc := vm.resolveField(t, f.Method.Class.File, in.B, true)
	if exc != nil {
		return exc
	}
	if err := vm.InitializeClass(t, fld.Class); err != nil {
		return vm.errorThrowable(t, err)
	}
	if in.Op <= dex.OpSgetShort {
		f.Set(int(in.A), fld.Type, fld.Class.GetStatic(fld))
	} else {
		fld.Class.SetStatic(fld, f.Get(int(in.A), fld.Type))
	}
	return nil
}

func (vm *VM) invokeOp(t *Thread, f *Frame, in dex.Instruction) *Object {
	m, exc := vm.resolveMethod(t, f.Method.Class.File, in.B)
	if exc != nil {
		return exc
	}
	args := make([]Reg, len(in.Args))
	for i, r := range in.Args {
		args[i] = f.Regs[r]
	}
	op := in.Op
	if op >= dex.OpInvokeVirtualRange {
		op -= dex.OpInvokeVirtualRange - dex.OpInvokeVirtual
	}

	if op != dex.OpInvokeStatic && (len(args) == 0 || args[0].Ref == nil) {
		return vm.throwable(t, "Ljava/lang/NullPointerException;",
			fmt.Sprintf("Attempt to invoke method '%s' on a null object reference", m.Key()))
	}
	target := m
	switch op {
	case dex.OpInvokeStatic:
		if !m.IsStatic() {
			return vm.throwable(t, "Ljava/lang/LinkageError;", m.Key()+" is not static")
		}
		if err := vm.InitializeClass(t, m.Class); err != nil {
			return vm.errorThrowable(t, err)
		}
	case dex.OpInvokeVirtual:
		target = virtualTarget(args[0].Ref.Class, m)
	case dex.OpInvokeSuper:
		if sup := f.Method.Class.Super; sup != nil {
			target = virtualTarget(sup, m)
		}
	case dex.OpInvokeInterface:
		if target = args[0].Ref.Class.FindVirtual(m.Name, m.Descriptor); target == nil {
			return vm.throwable(t, "Ljava/lang/AbstractMethodError;", m.Key())
		}
	}
	if target.IsAbstract() {
		return vm.throwable(t, "Ljava/lang/AbstractMethodError;", target.Key())
	}

	v, exc := vm.invokeMethod(t, target, args)
	if exc != nil {
		return exc
	}
	f.result = v
	return nil
}

// virtualTarget selects the implementation of m in class c, using the
// vtable slot when it still names m.
func virtualTarget(c *Class, m *Method) *Method {
	if i := m.VTableIndex; i >= 0 && i < len(c.VTable) {
		if v := c.VTable[i]; v.Name == m.Name && v.Descriptor == m.Descriptor {
			return v
		}
	}
	if v := c.FindVirtual(m.Name, m.Descriptor); v != nil {
		return v
	}
	return m
}

// testCond evaluates if-test kind k (eq, ne, lt, ge, gt, le).
func testCond(k int, a, b Reg) bool {
	switch k {
	case 0:
		return a == b
	case 1:
		return a != b
	}
	x, y := int32(a.Bits), int32(b.Bits)
	switch k {
	case 2:
		return x < y
	case 3:
		return x >= y
	case 4:
		return x > y
	}
	return x <= y
}

func unop(regs []Reg, in dex.Instruction) {
	a, b := in.A, in.B
	switch in.Op {
	case dex.OpNegInt:
		setI(regs, a, -getI(regs, b))
	case dex.OpNotInt:
		setI(regs, a, ^getI(regs, b))
	case dex.OpNegLong:
		setJ(regs, a, -getJ(regs, b))
	case dex.OpNotLong:
		setJ(regs, a, ^getJ(regs, b))
	case dex.OpNegFloat:
		setF(regs, a, -getF(regs, b))
	case dex.OpNegDouble:
		setD(regs, a, -getD(regs, b))
	case dex.OpIntToLong:
		setJ(regs, a, int64(getI(regs, b)))
	case dex.OpIntToFloat:
		setF(regs, a, float32(getI(regs, b)))
	case dex.OpIntToDouble:
		setD(regs, a, float64(getI(regs, b)))
	case dex.OpLongToInt:
		setI(regs, a, int32(getJ(regs, b)))
	case dex.OpLongToFloat:
		setF(regs, a, float32(getJ(regs, b)))
	case dex.OpLongToDouble:
		setD(regs, a, float64(getJ(regs, b)))
	case dex.OpFloatToInt:
		setI(regs, a, toInt(float64(getF(regs, b))))
	case dex.OpFloatToLong:
		setJ(regs, a, toLong(float64(getF(regs, b))))
	case dex.OpFloatToDouble:
		setD(regs, a, float64(getF(regs, b)))
	case dex.OpDoubleToInt:
		setI(regs, a, toInt(getD(regs, b)))
	case dex.OpDoubleToLong:
		setJ(regs, a, toLong(getD(regs, b)))
	case dex.OpDoubleToFloat:
		setF(regs, a, float32(getD(regs, b)))
	case dex.OpIntToByte:
		setI(regs, a, int32(int8(getI(regs, b))))
	case dex.OpIntToChar:
		setI(regs, a, int32(uint16(getI(regs, b))))
	case dex.OpIntToShort:
		setI(regs, a, int32(int16(getI(regs, b))))
	}
}

// binop executes a three-register or /2addr arithmetic instruction. It
// returns false on integer division by zero.
func binop(regs []Reg, in dex.Instruction) bool {
	op := in.Op
	dst, x, y := in.A, in.B, in.C
	if op >= dex.OpAddInt2Addr {
		op -= dex.OpAddInt2Addr - dex.OpAddInt
		dst, x, y = in.A, in.A, in.B
	}
	switch {
	case op <= dex.OpUshrInt:
		v, ok := intBinop(int(op-dex.OpAddInt), getI(regs, x), getI(regs, y))
		if !ok {
			return false
		}
		setI(regs, dst, v)
	case op <= dex.OpUshrLong:
		k := int(op - dex.OpAddLong)
		var b int64
		if k >= binShl {
			b = int64(getI(regs, y))
		} else {
			b = getJ(regs, y)
		}
		v, ok := longBinop(k, getJ(regs, x), b)
		if !ok {
			return false
		}
		setJ(regs, dst, v)
	case op <= dex.OpRemFloat:
		setF(regs, dst, floatBinop(int(op-dex.OpAddFloat), getF(regs, x), getF(regs, y)))
	default:
		setD(regs, dst, doubleBinop(int(op-dex.OpAddDouble), getD(regs, x), getD(regs, y)))
	}
	return true
}

// ---------------------------------------------------------------------------
// Register access
// ---------------------------------------------------------------------------

func boolBits(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func getI(regs []Reg, r uint32) int32 { return int32(regs[r].Bits) }

func setI(regs []Reg, r uint32, v int32) { regs[r] = Reg{Bits: uint32(v)} }

func getJ(regs []Reg, r uint32) int64 {
	return int64(uint64(regs[r].Bits) | uint64(regs[r+1].Bits)<<32)
}

func setJ(regs []Reg, r uint32, v int64) {
	regs[r] = Reg{Bits: uint32(v)}
	regs[r+1] = Reg{Bits: uint32(uint64(v) >> 32)}
}

func getF(regs []Reg, r uint32) float32 { return math.Float32frombits(regs[r].Bits) }

func setF(regs []Reg, r uint32, v float32) { regs[r] = Reg{Bits: math.Float32bits(v)} }

func getD(regs []Reg, r uint32) float64 { return math.Float64frombits(uint64(getJ(regs, r))) }

func setD(regs []Reg, r uint32, v float64) { setJ(regs, r, int64(math.Float64bits(v))) }

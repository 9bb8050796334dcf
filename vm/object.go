package vm

import (
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

// Object is a heap instance. Primitive fields live in Prims at offsets
// computed by the class layout; reference fields live in Refs. Arrays keep
// primitive elements packed in Prims and reference elements in Refs.
type Object struct {
	Class *Class
	Prims []byte
	Refs  []*Object

	// Length is the element count of an array.
	Length int

	// Str is the value of a java.lang.String instance.
	Str string

	// Mirror is the class a java.lang.Class instance represents.
	Mirror *Class

	// Peer is the thread a java.lang.Thread instance represents.
	Peer *Thread

	hash   uint32
	size   int
	marked bool
}

// IsArray reports whether o is an array instance.
func (o *Object) IsArray() bool {
	return o.Class.IsArray()
}

// IdentityHash returns the object's identity hash code.
func (o *Object) IdentityHash() int32 {
	return int32(o.hash)
}

// Size returns the accounted heap size of o in bytes.
func (o *Object) Size() int {
	return o.size
}

// Message returns the detail message of a Throwable, or "".
func (o *Object) Message() string {
	f := o.Class.FindField("detailMessage", "Ljava/lang/String;", false)
	if f == nil {
		return ""
	}
	if s := o.Refs[f.Offset]; s != nil {
		return s.Str
	}
	return ""
}

// GetField reads an instance field.
func (o *Object) GetField(f *Field) Value {
	return loadField(f, o.Prims, o.Refs)
}

// SetField writes an instance field.
func (o *Object) SetField(f *Field, v Value) {
	storeField(f, o.Prims, o.Refs, v)
}

func loadField(f *Field, prims []byte, refs []*Object) Value {
	if f.IsRef() {
		return Value{Ref: refs[f.Offset]}
	}
	return Value{Bits: loadPrim(prims[f.Offset:], f.Type)}
}

func storeField(f *Field, prims []byte, refs []*Object, v Value) {
	if f.IsRef() {
		refs[f.Offset] = v.Ref
		return
	}
	storePrim(prims[f.Offset:], f.Type, v.Bits)
}

// loadPrim reads a primitive of descriptor desc, sign-extending the
// narrow signed types to 32 bits.
func loadPrim(b []byte, desc string) uint64 {
	le := binary.LittleEndian
	switch desc {
	case "J", "D":
		return le.Uint64(b)
	case "I", "F":
		return uint64(le.Uint32(b))
	case "S":
		return uint64(uint32(int32(int16(le.Uint16(b)))))
	case "C":
		return uint64(le.Uint16(b))
	case "B":
		return uint64(uint32(int32(int8(b[0]))))
	case "Z":
		return uint64(b[0])
	}
	return 0
}

func storePrim(b []byte, desc string, v uint64) {
	le := binary.LittleEndian
	switch desc {
	case "J", "D":
		le.PutUint64(b, v)
	case "I", "F":
		le.PutUint32(b, uint32(v))
	case "S", "C":
		le.PutUint16(b, uint16(v))
	case "B":
		b[0] = byte(v)
	case "Z":
		b[0] = byte(v & 1)
	}
}

// ---------------------------------------------------------------------------
// Array access
// ---------------------------------------------------------------------------

// ElementType returns the component descriptor of an array.
func (o *Object) ElementType() string {
	return o.Class.Descriptor[1:]
}

// Get returns element i of an array. The caller checks bounds.
func (o *Object) Get(i int) Value {
	elem := o.ElementType()
	if isRef(elem) {
		return Value{Ref: o.Refs[i]}
	}
	w := primWidth(elem)
	return Value{Bits: loadPrim(o.Prims[i*w:], elem)}
}

// Set stores element i of an array. The caller checks bounds and
// assignability.
func (o *Object) Set(i int, v Value) {
	elem := o.ElementType()
	if isRef(elem) {
		o.Refs[i] = v.Ref
		return
	}
	w := primWidth(elem)
	storePrim(o.Prims[i*w:], elem, v.Bits)
}

// Ints returns the elements of an int[] as Go values.
func (o *Object) Ints() []int32 {
	out := make([]int32, o.Length)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(o.Prims[i*4:]))
	}
	return out
}

// Doubles returns the elements of a double[] as Go values.
func (o *Object) Doubles() []float64 {
	out := make([]float64, o.Length)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(o.Prims[i*8:]))
	}
	return out
}

// children calls visit for every reference held by o.
func (o *Object) children(visit func(*Object)) {
	for _, r := range o.Refs {
		if r != nil {
			visit(r)
		}
	}
}

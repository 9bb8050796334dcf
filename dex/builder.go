package dex

import (
	"cmp"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"google.golang.org/protobuf/encoding/protowire"
)

// ---------------------------------------------------------------------------
// Builder: assembles well-formed containers
// ---------------------------------------------------------------------------

// Builder assembles a container from class specifications. Identifier
// tables are collected from every reference the classes make, sorted the
// way the verifier requires, and laid out with a map, checksum and
// signature.
type Builder struct {
	// PreserveStringOrder keeps strings in first-seen order instead of
	// sorting them. The result fails cross verification.
	PreserveStringOrder bool

	classes []*ClassSpec
	strs    []string
}

// ClassSpec describes one class definition.
type ClassSpec struct {
	Descriptor     string
	AccessFlags    uint32
	Superclass     string
	Interfaces     []string
	SourceFile     string
	StaticFields   []FieldSpec
	InstanceFields []FieldSpec
	DirectMethods  []MethodSpec
	VirtualMethods []MethodSpec
}

// FieldSpec describes a field. Owner overrides the defining class recorded
// in the field id and defaults to the enclosing class.
type FieldSpec struct {
	Name        string
	Type        string
	AccessFlags uint32
	Owner       string
	Value       *StaticValue
}

// MethodSpec describes a method. Descriptor is the full method descriptor,
// such as "(I)V".
type MethodSpec struct {
	Name        string
	Descriptor  string
	AccessFlags uint32
	Owner       string
	Code        *CodeSpec
}

// CodeSpec describes a code_item. Either Insns is given directly, or
// Assemble produces it from resolved indices. Assemble runs twice, once to
// collect references and once with final indices, and must emit the same
// number of code units both times.
type CodeSpec struct {
	Registers  uint16
	Ins        uint16
	Outs       uint16
	Insns      []uint16
	Assemble   func(ix *Index) []uint16
	Tries      []TrySpec
	Lines      []LineSpec
	ParamNames []string
}

// TrySpec is one try range and its handler.
type TrySpec struct {
	Start        uint32
	Count        uint16
	Handlers     []HandlerSpec
	CatchAll     bool
	CatchAllAddr uint32
}

// HandlerSpec catches exceptions assignable to Type at Addr.
type HandlerSpec struct {
	Type string
	Addr uint32
}

// LineSpec maps an address to a source line.
type LineSpec struct {
	Addr uint32
	Line uint32
}

// StaticValue is the initial value of a static field. Str is used for
// ValueString.
type StaticValue struct {
	Type byte
	Bits uint64
	Str  string
}

// IntValue returns a static int initializer.
func IntValue(v int32) *StaticValue { return &StaticValue{Type: ValueInt, Bits: uint64(int64(v))} }

// LongValue returns a static long initializer.
func LongValue(v int64) *StaticValue { return &StaticValue{Type: ValueLong, Bits: uint64(v)} }

// FloatValue returns a static float initializer.
func FloatValue(v float32) *StaticValue {
	return &StaticValue{Type: ValueFloat, Bits: uint64(math.Float32bits(v))}
}

// DoubleValue returns a static double initializer.
func DoubleValue(v float64) *StaticValue { return &StaticValue{Type: ValueDouble, Bits: math.Float64bits(v)} }

// BoolValue returns a static boolean initializer.
func BoolValue(v bool) *StaticValue {
	sv := &StaticValue{Type: ValueBoolean}
	if v {
		sv.Bits = 1
	}
	return sv
}

// StringValue returns a static String initializer.
func StringValue(s string) *StaticValue { return &StaticValue{Type: ValueString, Str: s} }

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClass adds a class definition. Classes are emitted in the order
// added.
func (b *Builder) AddClass(c *ClassSpec) *ClassSpec {
	b.classes = append(b.classes, c)
	return c
}

// AddString adds a string that no class refers to.
func (b *Builder) AddString(s string) {
	b.strs = append(b.strs, s)
}

// ---------------------------------------------------------------------------
// Index: reference collection and resolution
// ---------------------------------------------------------------------------

type fieldKey struct{ class, name, typ string }
type methodKey struct{ class, name, desc string }

type protoEntry struct {
	desc   string
	shorty string
	ret    string
	params []string
}

// Index resolves references to table indices while a container is built.
type Index struct {
	collecting bool

	strSeen   map[string]bool
	strOrder  []string
	typeSeen  map[string]bool
	protoSeen map[string]*protoEntry
	fieldSet  map[fieldKey]bool
	methodSet map[methodKey]bool
	err       error

	strIdx    map[string]uint32
	typeIdx   map[string]uint32
	protoIdx  map[string]uint32
	fieldIdx  map[fieldKey]uint32
	methodIdx map[methodKey]uint32

	strings []string
	types   []string
	protos  []*protoEntry
	fields  []fieldKey
	methods []methodKey
}

func newIndex() *Index {
	return &Index{
		collecting: true,
		strSeen:    make(map[string]bool),
		typeSeen:   make(map[string]bool),
		protoSeen:  make(map[string]*protoEntry),
		fieldSet:   make(map[fieldKey]bool),
		methodSet:  make(map[methodKey]bool),
	}
}

// String returns the index of string s.
func (ix *Index) String(s string) uint32 {
	if ix.collecting {
		if !ix.strSeen[s] {
			ix.strSeen[s] = true
			ix.strOrder = append(ix.strOrder, s)
		}
		return 0
	}
	return ix.strIdx[s]
}

// Type returns the index of type descriptor desc.
func (ix *Index) Type(desc string) uint32 {
	if ix.collecting {
		ix.String(desc)
		ix.typeSeen[desc] = true
		return 0
	}
	return ix.typeIdx[desc]
}

func (ix *Index) proto(desc string) uint32 {
	if ix.collecting {
		if _, ok := ix.protoSeen[desc]; ok {
			return 0
		}
		params, ret, ok := ParameterDescriptors(desc)
		if !ok {
			if ix.err == nil {
				ix.err = fmt.Errorf("bad method descriptor %q", desc)
			}
			return 0
		}
		shorty := []byte{ShortyChar(ret)}
		for _, p := range params {
			shorty = append(shorty, ShortyChar(p))
		}
		pe := &protoEntry{desc: desc, shorty: string(shorty), ret: ret, params: params}
		ix.protoSeen[desc] = pe
		ix.String(pe.shorty)
		ix.Type(ret)
		for _, p := range params {
			ix.Type(p)
		}
		return 0
	}
	return ix.protoIdx[desc]
}

// Field returns the index of the field class.name:typ.
func (ix *Index) Field(class, name, typ string) uint32 {
	k := fieldKey{class, name, typ}
	if ix.collecting {
		ix.fieldSet[k] = true
		ix.Type(class)
		ix.String(name)
		ix.Type(typ)
		return 0
	}
	return ix.fieldIdx[k]
}

// Method returns the index of the method class.name with descriptor desc.
func (ix *Index) Method(class, name, desc string) uint32 {
	k := methodKey{class, name, desc}
	if ix.collecting {
		ix.methodSet[k] = true
		ix.Type(class)
		ix.String(name)
		ix.proto(desc)
		return 0
	}
	return ix.methodIdx[k]
}

// finish sorts every table and switches the index to resolution mode.
func (ix *Index) finish(preserveStrings bool) {
	ix.collecting = false

	ix.strings = append([]string(nil), ix.strOrder...)
	if !preserveStrings {
		slices.SortStableFunc(ix.strings, compareStrings)
	}
	ix.strIdx = make(map[string]uint32, len(ix.strings))
	for i, s := range ix.strings {
		ix.strIdx[s] = uint32(i)
	}

	for t := range ix.typeSeen {
		ix.types = append(ix.types, t)
	}
	slices.SortFunc(ix.types, func(x, y string) int { return cmp.Compare(ix.strIdx[x], ix.strIdx[y]) })
	ix.typeIdx = make(map[string]uint32, len(ix.types))
	for i, t := range ix.types {
		ix.typeIdx[t] = uint32(i)
	}

	for _, p := range ix.protoSeen {
		ix.protos = append(ix.protos, p)
	}
	slices.SortFunc(ix.protos, func(a, b *protoEntry) int {
		if c := cmp.Compare(ix.typeIdx[a.ret], ix.typeIdx[b.ret]); c != 0 {
			return c
		}
		pa, pb := ix.typeIndices(a.params), ix.typeIndices(b.params)
		return lessToCompare(typeListLess(pa, pb), typeListLess(pb, pa))
	})
	ix.protoIdx = make(map[string]uint32, len(ix.protos))
	for i, p := range ix.protos {
		ix.protoIdx[p.desc] = uint32(i)
	}

	for k := range ix.fieldSet {
		ix.fields = append(ix.fields, k)
	}
	slices.SortFunc(ix.fields, func(a, b fieldKey) int {
		ka := [3]uint32{ix.typeIdx[a.class], ix.strIdx[a.name], ix.typeIdx[a.typ]}
		kb := [3]uint32{ix.typeIdx[b.class], ix.strIdx[b.name], ix.typeIdx[b.typ]}
		return compareMembers(ka, kb)
	})
	ix.fieldIdx = make(map[fieldKey]uint32, len(ix.fields))
	for i, k := range ix.fields {
		ix.fieldIdx[k] = uint32(i)
	}

	for k := range ix.methodSet {
		ix.methods = append(ix.methods, k)
	}
	slices.SortFunc(ix.methods, func(a, b methodKey) int {
		ka := [3]uint32{ix.typeIdx[a.class], ix.strIdx[a.name], ix.protoIdx[a.desc]}
		kb := [3]uint32{ix.typeIdx[b.class], ix.strIdx[b.name], ix.protoIdx[b.desc]}
		return compareMembers(ka, kb)
	})
	ix.methodIdx = make(map[methodKey]uint32, len(ix.methods))
	for i, k := range ix.methods {
		ix.methodIdx[k] = uint32(i)
	}
}

// compareMembers orders field and method ids by (class, name, type).
func compareMembers(a, b [3]uint32) int {
	for i := range a {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func lessToCompare(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func (ix *Index) typeIndices(descs []string) []uint16 {
	out := make([]uint16, len(descs))
	for i, d := range descs {
		out[i] = uint16(ix.typeIdx[d])
	}
	return out
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

type writer struct {
	buf []byte
}

func (w *writer) pos() uint32 { return uint32(len(w.buf)) }

func (w *writer) align4() {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) u1(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) u2(v uint16)  { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u4(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) uleb(v uint32) { w.buf = protowire.AppendVarint(w.buf, uint64(v)) }

func (w *writer) sleb(v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf = append(w.buf, b)
			return
		}
		w.buf = append(w.buf, b|0x80)
	}
}

func (w *writer) put4(at, v uint32) { binary.LittleEndian.PutUint32(w.buf[at:], v) }
func (w *writer) put2(at uint32, v uint16) { binary.LittleEndian.PutUint16(w.buf[at:], v) }

type section struct {
	typ   uint16
	off   uint32
	count uint32
}

// codeRef ties a method's code to its owning method index.
type codeRef struct {
	spec      *CodeSpec
	methodKey methodKey
}

func (b *Builder) owner(class, override string) string {
	if override != "" {
		return override
	}
	return class
}

// collect registers every reference the classes make.
func (b *Builder) collect(ix *Index) error {
	for _, s := range b.strs {
		ix.String(s)
	}
	for _, c := range b.classes {
		ix.Type(c.Descriptor)
		if c.Superclass != "" {
			ix.Type(c.Superclass)
		}
		for _, i := range c.Interfaces {
			ix.Type(i)
		}
		if c.SourceFile != "" {
			ix.String(c.SourceFile)
		}
		for _, fl := range [][]FieldSpec{c.StaticFields, c.InstanceFields} {
			for _, f := range fl {
				ix.Field(b.owner(c.Descriptor, f.Owner), f.Name, f.Type)
				if f.Value != nil && f.Value.Type == ValueString {
					ix.String(f.Value.Str)
				}
			}
		}
		for _, ml := range [][]MethodSpec{c.DirectMethods, c.VirtualMethods} {
			for _, m := range ml {
				ix.Method(b.owner(c.Descriptor, m.Owner), m.Name, m.Descriptor)
				if m.Code == nil {
					continue
				}
				if m.Code.Assemble != nil {
					m.Code.Assemble(ix)
				}
				for _, t := range m.Code.Tries {
					for _, h := range t.Handlers {
						ix.Type(h.Type)
					}
				}
				for _, n := range m.Code.ParamNames {
					if n != "" {
						ix.String(n)
					}
				}
			}
		}
	}
	return ix.err
}

// Build lays out the container and returns its bytes.
func (b *Builder) Build() ([]byte, error) {
	ix := newIndex()
	if err := b.collect(ix); err != nil {
		return nil, err
	}
	ix.finish(b.PreserveStringOrder)

	w := &writer{buf: make([]byte, HeaderSize, 4096)}
	var sections []section
	sections = append(sections, section{TypeHeaderItem, 0, 1})
	addIDs := func(typ uint16, count, size uint32) uint32 {
		if count == 0 {
			return 0
		}
		off := w.pos()
		w.buf = append(w.buf, make([]byte, count*size)...)
		sections = append(sections, section{typ, off, count})
		return off
	}
	stringIDsOff := addIDs(TypeStringIDItem, uint32(len(ix.strings)), stringIDItemSize)
	typeIDsOff := addIDs(TypeTypeIDItem, uint32(len(ix.types)), typeIDItemSize)
	protoIDsOff := addIDs(TypeProtoIDItem, uint32(len(ix.protos)), protoIDItemSize)
	fieldIDsOff := addIDs(TypeFieldIDItem, uint32(len(ix.fields)), fieldIDItemSize)
	methodIDsOff := addIDs(TypeMethodIDItem, uint32(len(ix.methods)), methodIDItemSize)
	classDefsOff := addIDs(TypeClassDefItem, uint32(len(b.classes)), classDefItemSize)
	dataOff := w.pos()

	// type_list: proto parameters and interface lists, deduplicated.
	typeLists := make(map[string]uint32)
	var typeListCount uint32
	typeListStart := w.pos()
	typeList := func(descs []string) uint32 {
		if len(descs) == 0 {
			return 0
		}
		key := strings.Join(descs, ",")
		if off, ok := typeLists[key]; ok {
			return off
		}
		w.align4()
		off := w.pos()
		w.u4(uint32(len(descs)))
		for _, idx := range ix.typeIndices(descs) {
			w.u2(idx)
		}
		typeLists[key] = off
		typeListCount++
		return off
	}
	protoParams := make([]uint32, len(ix.protos))
	for i, p := range ix.protos {
		protoParams[i] = typeList(p.params)
	}
	classIfaces := make([]uint32, len(b.classes))
	for i, c := range b.classes {
		classIfaces[i] = typeList(c.Interfaces)
	}
	if typeListCount > 0 {
		sections = append(sections, section{TypeTypeList, typeListStart, typeListCount})
	}

	// string_data
	stringDataOff := make([]uint32, len(ix.strings))
	if len(ix.strings) > 0 {
		start := w.pos()
		for i, s := range ix.strings {
			stringDataOff[i] = w.pos()
			enc, units := EncodeModifiedUTF8(s)
			w.uleb(uint32(units))
			w.buf = append(w.buf, enc...)
			w.u1(0)
		}
		sections = append(sections, section{TypeStringDataItem, start, uint32(len(ix.strings))})
	}

	// debug_info, then code_item
	var codes []codeRef
	for _, c := range b.classes {
		for _, ml := range [][]MethodSpec{c.DirectMethods, c.VirtualMethods} {
			for _, m := range ml {
				if m.Code != nil {
					codes = append(codes, codeRef{m.Code, methodKey{b.owner(c.Descriptor, m.Owner), m.Name, m.Descriptor}})
				}
			}
		}
	}
	debugOff := make(map[*CodeSpec]uint32)
	var debugCount uint32
	debugStart := w.pos()
	for _, cr := range codes {
		if len(cr.spec.Lines) == 0 && len(cr.spec.ParamNames) == 0 {
			continue
		}
		debugOff[cr.spec] = w.pos()
		params := ix.protoSeen[cr.methodKey.desc].params
		b.writeDebugInfo(w, ix, cr.spec, len(params))
		debugCount++
	}
	if debugCount > 0 {
		sections = append(sections, section{TypeDebugInfoItem, debugStart, debugCount})
	}

	codeOff := make(map[*CodeSpec]uint32)
	if len(codes) > 0 {
		w.align4()
		start := w.pos()
		for _, cr := range codes {
			w.align4()
			codeOff[cr.spec] = w.pos()
			if err := b.writeCode(w, ix, cr.spec, debugOff[cr.spec]); err != nil {
				return nil, fmt.Errorf("method %s.%s: %w", cr.methodKey.class, cr.methodKey.name, err)
			}
		}
		sections = append(sections, section{TypeCodeItem, start, uint32(len(codes))})
	}

	// encoded_array_item: static values
	staticOff := make([]uint32, len(b.classes))
	var arrays uint32
	arrayStart := w.pos()
	for i, c := range b.classes {
		vals := b.staticValues(ix, c)
		if len(vals) == 0 {
			continue
		}
		staticOff[i] = w.pos()
		w.uleb(uint32(len(vals)))
		for _, v := range vals {
			writeValue(w, ix, v)
		}
		arrays++
	}
	if arrays > 0 {
		sections = append(sections, section{TypeEncodedArrayItem, arrayStart, arrays})
	}

	// class_data_item
	classDataOff := make([]uint32, len(b.classes))
	var classData uint32
	classDataStart := w.pos()
	for i, c := range b.classes {
		if len(c.StaticFields)+len(c.InstanceFields)+len(c.DirectMethods)+len(c.VirtualMethods) == 0 {
			continue
		}
		classDataOff[i] = w.pos()
		b.writeClassData(w, ix, c, codeOff)
		classData++
	}
	if classData > 0 {
		sections = append(sections, section{TypeClassDataItem, classDataStart, classData})
	}

	// map_list
	w.align4()
	mapOff := w.pos()
	sections = append(sections, section{TypeMapList, mapOff, 1})
	w.u4(uint32(len(sections)))
	for _, s := range sections {
		w.u2(s.typ)
		w.u2(0)
		w.u4(s.count)
		w.u4(s.off)
	}

	// Identifier tables.
	for i := range ix.strings {
		w.put4(stringIDsOff+uint32(i)*stringIDItemSize, stringDataOff[i])
	}
	for i, t := range ix.types {
		w.put4(typeIDsOff+uint32(i)*typeIDItemSize, ix.strIdx[t])
	}
	for i, p := range ix.protos {
		at := protoIDsOff + uint32(i)*protoIDItemSize
		w.put4(at, ix.strIdx[p.shorty])
		w.put4(at+4, ix.typeIdx[p.ret])
		w.put4(at+8, protoParams[i])
	}
	for i, f := range ix.fields {
		at := fieldIDsOff + uint32(i)*fieldIDItemSize
		w.put2(at, uint16(ix.typeIdx[f.class]))
		w.put2(at+2, uint16(ix.typeIdx[f.typ]))
		w.put4(at+4, ix.strIdx[f.name])
	}
	for i, m := range ix.methods {
		at := methodIDsOff + uint32(i)*methodIDItemSize
		w.put2(at, uint16(ix.typeIdx[m.class]))
		w.put2(at+2, uint16(ix.protoIdx[m.desc]))
		w.put4(at+4, ix.strIdx[m.name])
	}
	for i, c := range b.classes {
		at := classDefsOff + uint32(i)*classDefItemSize
		w.put4(at, ix.typeIdx[c.Descriptor])
		w.put4(at+4, c.AccessFlags)
		super := NoIndex
		if c.Superclass != "" {
			super = ix.typeIdx[c.Superclass]
		}
		w.put4(at+8, super)
		w.put4(at+12, classIfaces[i])
		source := NoIndex
		if c.SourceFile != "" {
			source = ix.strIdx[c.SourceFile]
		}
		w.put4(at+16, source)
		w.put4(at+20, 0)
		w.put4(at+24, classDataOff[i])
		w.put4(at+28, staticOff[i])
	}

	// Header.
	fileSize := w.pos()
	copy(w.buf, Magic)
	fields := []uint32{
		fileSize, HeaderSize, EndianConstant, 0, 0, mapOff,
		uint32(len(ix.strings)), stringIDsOff,
		uint32(len(ix.types)), typeIDsOff,
		uint32(len(ix.protos)), protoIDsOff,
		uint32(len(ix.fields)), fieldIDsOff,
		uint32(len(ix.methods)), methodIDsOff,
		uint32(len(b.classes)), classDefsOff,
		fileSize - dataOff, dataOff,
	}
	for i, v := range fields {
		w.put4(32+uint32(i)*4, v)
	}
	sig := sha1.Sum(w.buf[signatureStart:])
	copy(w.buf[checksumStart:], sig[:])
	w.put4(8, Checksum(w.buf))
	return w.buf, nil
}

func (b *Builder) writeDebugInfo(w *writer, ix *Index, c *CodeSpec, params int) {
	var line, addr uint32
	if len(c.Lines) > 0 {
		line = c.Lines[0].Line
	}
	w.uleb(line)
	w.uleb(uint32(params))
	for i := 0; i < params; i++ {
		if i < len(c.ParamNames) && c.ParamNames[i] != "" {
			w.uleb(ix.String(c.ParamNames[i]) + 1)
		} else {
			w.uleb(0)
		}
	}
	for _, l := range c.Lines {
		addrDiff := l.Addr - addr
		lineDiff := int32(l.Line) - int32(line)
		if lineDiff < dbgLineBase || lineDiff >= dbgLineBase+dbgLineRange {
			w.u1(dbgAdvanceLine)
			w.sleb(lineDiff)
			lineDiff = 0
		}
		adjusted := uint32(lineDiff-dbgLineBase) + addrDiff*dbgLineRange
		if adjusted+dbgFirstSpecial > 0xff {
			w.u1(dbgAdvancePC)
			w.uleb(addrDiff)
			adjusted = uint32(lineDiff - dbgLineBase)
		}
		w.u1(byte(adjusted + dbgFirstSpecial))
		addr, line = l.Addr, l.Line
	}
	w.u1(dbgEndSequence)
}

func (b *Builder) writeCode(w *writer, ix *Index, c *CodeSpec, debugOff uint32) error {
	insns := c.Insns
	if c.Assemble != nil {
		insns = c.Assemble(ix)
	}
	if c.Ins > c.Registers {
		return fmt.Errorf("ins %d exceeds registers %d", c.Ins, c.Registers)
	}
	w.u2(c.Registers)
	w.u2(c.Ins)
	w.u2(c.Outs)
	w.u2(uint16(len(c.Tries)))
	w.u4(debugOff)
	w.u4(uint32(len(insns)))
	for _, u := range insns {
		w.u2(u)
	}
	if len(c.Tries) == 0 {
		return nil
	}
	if len(insns)%2 != 0 {
		w.u2(0)
	}

	// Handlers are encoded first so the tries can point at them.
	hw := &writer{}
	hw.uleb(uint32(len(c.Tries)))
	handlerOff := make([]uint16, len(c.Tries))
	for i, t := range c.Tries {
		handlerOff[i] = uint16(hw.pos())
		n := int32(len(t.Handlers))
		if t.CatchAll {
			n = -n
		}
		hw.sleb(n)
		for _, h := range t.Handlers {
			hw.uleb(ix.Type(h.Type))
			hw.uleb(h.Addr)
		}
		if t.CatchAll {
			hw.uleb(t.CatchAllAddr)
		}
	}
	for i, t := range c.Tries {
		w.u4(t.Start)
		w.u2(t.Count)
		w.u2(handlerOff[i])
	}
	w.buf = append(w.buf, hw.buf...)
	return nil
}

// staticValues returns the initializers of c's static fields in field
// index order, trimmed after the last explicit value.
func (b *Builder) staticValues(ix *Index, c *ClassSpec) []*StaticValue {
	fields := append([]FieldSpec(nil), c.StaticFields...)
	slices.SortFunc(fields, func(x, y FieldSpec) int {
		return cmp.Compare(ix.fieldIdx[fieldKey{b.owner(c.Descriptor, x.Owner), x.Name, x.Type}],
			ix.fieldIdx[fieldKey{b.owner(c.Descriptor, y.Owner), y.Name, y.Type}])
	})
	last := -1
	for i, f := range fields {
		if f.Value != nil {
			last = i
		}
	}
	vals := make([]*StaticValue, 0, last+1)
	for _, f := range fields[:last+1] {
		v := f.Value
		if v == nil {
			v = zeroValue(f.Type)
		}
		vals = append(vals, v)
	}
	return vals
}

func zeroValue(desc string) *StaticValue {
	switch desc {
	case "Z":
		return &StaticValue{Type: ValueBoolean}
	case "B":
		return &StaticValue{Type: ValueByte}
	case "S":
		return &StaticValue{Type: ValueShort}
	case "C":
		return &StaticValue{Type: ValueChar}
	case "I":
		return &StaticValue{Type: ValueInt}
	case "J":
		return &StaticValue{Type: ValueLong}
	case "F":
		return &StaticValue{Type: ValueFloat}
	case "D":
		return &StaticValue{Type: ValueDouble}
	}
	return &StaticValue{Type: ValueNull}
}

func writeValue(w *writer, ix *Index, v *StaticValue) {
	fixed := func(typ byte, n int, bits uint64) {
		w.u1(byte(n-1)<<5 | typ)
		for i := 0; i < n; i++ {
			w.u1(byte(bits >> (8 * uint(i))))
		}
	}
	switch v.Type {
	case ValueByte:
		fixed(ValueByte, 1, v.Bits)
	case ValueShort, ValueChar:
		fixed(v.Type, 2, v.Bits)
	case ValueInt, ValueFloat:
		fixed(v.Type, 4, v.Bits)
	case ValueLong, ValueDouble:
		fixed(v.Type, 8, v.Bits)
	case ValueString:
		fixed(ValueString, 4, uint64(ix.String(v.Str)))
	case ValueBoolean:
		w.u1(byte(v.Bits&1)<<5 | ValueBoolean)
	default:
		w.u1(ValueNull)
	}
}

func (b *Builder) writeClassData(w *writer, ix *Index, c *ClassSpec, codeOff map[*CodeSpec]uint32) {
	type member struct {
		idx   uint32
		flags uint32
		code  uint32
	}
	fieldList := func(fs []FieldSpec) []member {
		out := make([]member, len(fs))
		for i, f := range fs {
			out[i] = member{idx: ix.fieldIdx[fieldKey{b.owner(c.Descriptor, f.Owner), f.Name, f.Type}], flags: f.AccessFlags}
		}
		slices.SortFunc(out, func(x, y member) int { return cmp.Compare(x.idx, y.idx) })
		return out
	}
	methodList := func(ms []MethodSpec) []member {
		out := make([]member, len(ms))
		for i, m := range ms {
			out[i] = member{
				idx:   ix.methodIdx[methodKey{b.owner(c.Descriptor, m.Owner), m.Name, m.Descriptor}],
				flags: m.AccessFlags,
			}
			if m.Code != nil {
				out[i].code = codeOff[m.Code]
			}
		}
		slices.SortFunc(out, func(x, y member) int { return cmp.Compare(x.idx, y.idx) })
		return out
	}
	sf, inf := fieldList(c.StaticFields), fieldList(c.InstanceFields)
	dm, vm := methodList(c.DirectMethods), methodList(c.VirtualMethods)
	w.uleb(uint32(len(sf)))
	w.uleb(uint32(len(inf)))
	w.uleb(uint32(len(dm)))
	w.uleb(uint32(len(vm)))
	for _, fl := range [][]member{sf, inf} {
		var prev uint32
		for _, m := range fl {
			w.uleb(m.idx - prev)
			w.uleb(m.flags)
			prev = m.idx
		}
	}
	for _, ml := range [][]member{dm, vm} {
		var prev uint32
		for _, m := range ml {
			w.uleb(m.idx - prev)
			w.uleb(m.flags)
			w.uleb(m.code)
			prev = m.idx
		}
	}
}

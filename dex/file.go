package dex

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// File is a verified container. All tables are decoded from the
// little-endian normalized buffer and never change after parsing.
type File struct {
	Header    Header
	Map       []MapItem
	StringIDs []uint32
	TypeIDs   []uint32
	Protos    []ProtoID
	FieldIDs  []FieldID
	MethodIDs []MethodID
	ClassDefs []ClassDef

	data        []byte
	strings     []string
	dataMap     map[uint32]uint16
	itemOffsets map[uint16][]uint32
	classIndex  map[string]int
}

// parse builds the table set of a buffer that has passed pass 1.
func parse(buf []byte, hdr *Header, items []MapItem, c *checker) *File {
	le := binary.LittleEndian
	f := &File{
		Header:      *hdr,
		Map:         items,
		data:        buf,
		dataMap:     c.dataMap,
		itemOffsets: c.itemOffsets,
		classIndex:  make(map[string]int, hdr.ClassDefsSize),
	}

	f.StringIDs = make([]uint32, hdr.StringIDsSize)
	f.strings = make([]string, hdr.StringIDsSize)
	for i := range f.StringIDs {
		off := le.Uint32(buf[hdr.StringIDsOff+uint32(i)*stringIDItemSize:])
		f.StringIDs[i] = off
		f.strings[i] = DecodeModifiedUTF8(f.rawString(off))
	}

	f.TypeIDs = make([]uint32, hdr.TypeIDsSize)
	for i := range f.TypeIDs {
		f.TypeIDs[i] = le.Uint32(buf[hdr.TypeIDsOff+uint32(i)*typeIDItemSize:])
	}

	f.Protos = make([]ProtoID, hdr.ProtoIDsSize)
	for i := range f.Protos {
		p := hdr.ProtoIDsOff + uint32(i)*protoIDItemSize
		f.Protos[i] = ProtoID{
			ShortyIdx:     le.Uint32(buf[p:]),
			ReturnTypeIdx: le.Uint32(buf[p+4:]),
			ParametersOff: le.Uint32(buf[p+8:]),
		}
	}

	f.FieldIDs = make([]FieldID, hdr.FieldIDsSize)
	for i := range f.FieldIDs {
		p := hdr.FieldIDsOff + uint32(i)*fieldIDItemSize
		f.FieldIDs[i] = FieldID{
			ClassIdx: le.Uint16(buf[p:]),
			TypeIdx:  le.Uint16(buf[p+2:]),
			NameIdx:  le.Uint32(buf[p+4:]),
		}
	}

	f.MethodIDs = make([]MethodID, hdr.MethodIDsSize)
	for i := range f.MethodIDs {
		p := hdr.MethodIDsOff + uint32(i)*methodIDItemSize
		f.MethodIDs[i] = MethodID{
			ClassIdx: le.Uint16(buf[p:]),
			ProtoIdx: le.Uint16(buf[p+2:]),
			NameIdx:  le.Uint32(buf[p+4:]),
		}
	}

	f.ClassDefs = make([]ClassDef, hdr.ClassDefsSize)
	for i := range f.ClassDefs {
		p := hdr.ClassDefsOff + uint32(i)*classDefItemSize
		def := ClassDef{
			ClassIdx:        le.Uint32(buf[p:]),
			AccessFlags:     le.Uint32(buf[p+4:]),
			SuperclassIdx:   le.Uint32(buf[p+8:]),
			InterfacesOff:   le.Uint32(buf[p+12:]),
			SourceFileIdx:   le.Uint32(buf[p+16:]),
			AnnotationsOff:  le.Uint32(buf[p+20:]),
			ClassDataOff:    le.Uint32(buf[p+24:]),
			StaticValuesOff: le.Uint32(buf[p+28:]),
		}
		f.ClassDefs[i] = def
		if _, dup := f.classIndex[f.TypeDescriptor(def.ClassIdx)]; !dup {
			f.classIndex[f.TypeDescriptor(def.ClassIdx)] = i
		}
	}
	return f
}

// rawString returns the modified UTF-8 bytes, NUL included, of the
// string_data_item at off.
func (f *File) rawString(off uint32) []byte {
	_, p, ok := ReadULEB128(f.data, int(off))
	if !ok {
		return nil
	}
	end := p
	for end < len(f.data) && f.data[end] != 0 {
		end++
	}
	if end < len(f.data) {
		end++
	}
	return f.data[p:end]
}

// Bytes returns the normalized little-endian container bytes.
func (f *File) Bytes() []byte {
	return f.data
}

// ItemTypeAt reports the type of the data item that starts at off.
func (f *File) ItemTypeAt(off uint32) (uint16, bool) {
	t, ok := f.dataMap[off]
	return t, ok
}

// String returns string idx, or "" when idx is out of range.
func (f *File) String(idx uint32) string {
	if idx >= uint32(len(f.strings)) {
		return ""
	}
	return f.strings[idx]
}

// TypeDescriptor returns the descriptor of type idx, or "" when idx is out
// of range.
func (f *File) TypeDescriptor(idx uint32) string {
	if idx >= uint32(len(f.TypeIDs)) {
		return ""
	}
	return f.String(f.TypeIDs[idx])
}

// ProtoShorty returns the shorty descriptor of proto idx.
func (f *File) ProtoShorty(idx uint32) string {
	if idx >= uint32(len(f.Protos)) {
		return ""
	}
	return f.String(f.Protos[idx].ShortyIdx)
}

func (f *File) typeList(off uint32) []uint16 {
	if off == 0 || uint64(off)+4 > uint64(len(f.data)) {
		return nil
	}
	le := binary.LittleEndian
	n := le.Uint32(f.data[off:])
	list := make([]uint16, n)
	for i := range list {
		list[i] = le.Uint16(f.data[off+4+uint32(i)*2:])
	}
	return list
}

// ProtoParameters returns the parameter descriptors of proto idx.
func (f *File) ProtoParameters(idx uint32) []string {
	if idx >= uint32(len(f.Protos)) {
		return nil
	}
	types := f.typeList(f.Protos[idx].ParametersOff)
	params := make([]string, len(types))
	for i, t := range types {
		params[i] = f.TypeDescriptor(uint32(t))
	}
	return params
}

// ProtoDescriptor returns the method descriptor of proto idx, such as
// "(ILjava/lang/String;)V".
func (f *File) ProtoDescriptor(idx uint32) string {
	if idx >= uint32(len(f.Protos)) {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range f.ProtoParameters(idx) {
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	sb.WriteString(f.TypeDescriptor(f.Protos[idx].ReturnTypeIdx))
	return sb.String()
}

// FieldRef resolves field idx to its class descriptor, name and type
// descriptor.
func (f *File) FieldRef(idx uint32) (class, name, typ string) {
	if idx >= uint32(len(f.FieldIDs)) {
		return "", "", ""
	}
	fid := f.FieldIDs[idx]
	return f.TypeDescriptor(uint32(fid.ClassIdx)), f.String(fid.NameIdx), f.TypeDescriptor(uint32(fid.TypeIdx))
}

// MethodRef resolves method idx to its class descriptor, name and method
// descriptor.
func (f *File) MethodRef(idx uint32) (class, name, desc string) {
	if idx >= uint32(len(f.MethodIDs)) {
		return "", "", ""
	}
	mid := f.MethodIDs[idx]
	return f.TypeDescriptor(uint32(mid.ClassIdx)), f.String(mid.NameIdx), f.ProtoDescriptor(uint32(mid.ProtoIdx))
}

// ClassDescriptor returns the descriptor of the class a definition defines.
func (f *File) ClassDescriptor(def *ClassDef) string {
	return f.TypeDescriptor(def.ClassIdx)
}

// Superclass returns the superclass descriptor of def, or "" for a root
// class.
func (f *File) Superclass(def *ClassDef) string {
	if def.SuperclassIdx == NoIndex {
		return ""
	}
	return f.TypeDescriptor(def.SuperclassIdx)
}

// Interfaces returns the descriptors of the interfaces def implements.
func (f *File) Interfaces(def *ClassDef) []string {
	types := f.typeList(def.InterfacesOff)
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = f.TypeDescriptor(uint32(t))
	}
	return out
}

// SourceFile returns the source file name recorded for def, if any.
func (f *File) SourceFile(def *ClassDef) string {
	if def.SourceFileIdx == NoIndex {
		return ""
	}
	return f.String(def.SourceFileIdx)
}

// ClassData decodes the class_data_item of def. A class without one
// yields an empty ClassData.
func (f *File) ClassData(def *ClassDef) (*ClassData, error) {
	if def.ClassDataOff == 0 {
		return &ClassData{}, nil
	}
	cd, _, err := readClassData(f.data, int(def.ClassDataOff))
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", f.ClassDescriptor(def), err)
	}
	return cd, nil
}

// Code decodes the code_item at off.
func (f *File) Code(off uint32) (*Code, error) {
	if off == 0 {
		return nil, nil
	}
	return readCode(f.data, off, uint32(len(f.TypeIDs)))
}

// StaticValues decodes the static initial values of def, in the order of
// its static fields. Fields past the end of the array take their zero
// value.
func (f *File) StaticValues(def *ClassDef) []EncodedValue {
	if def.StaticValuesOff == 0 {
		return nil
	}
	vals, _ := decodeArray(f.data, int(def.StaticValuesOff))
	return vals
}

// FindClassDef returns the definition of the class with the given
// descriptor.
func (f *File) FindClassDef(descriptor string) (*ClassDef, bool) {
	i, ok := f.classIndex[descriptor]
	if !ok {
		return nil, false
	}
	return &f.ClassDefs[i], true
}

// ArrayData is the payload of a fill-array-data pseudo-instruction.
type ArrayData struct {
	ElementWidth int
	Data         []byte
}

// Array payload and switch table identifiers.
const (
	packedSwitchIdent = 0x0100
	sparseSwitchIdent = 0x0200
	fillArrayIdent    = 0x0300
)

// PackedSwitch decodes the packed-switch payload at insns[off:]. Returns
// the first key and the relative branch targets.
func PackedSwitch(insns []uint16, off int) (int32, []int32, bool) {
	if off < 0 || off+4 > len(insns) || insns[off] != packedSwitchIdent {
		return 0, nil, false
	}
	size := int(insns[off+1])
	first := int32(uint32(insns[off+2]) | uint32(insns[off+3])<<16)
	if off+4+size*2 > len(insns) {
		return 0, nil, false
	}
	targets := make([]int32, size)
	for i := range targets {
		p := off + 4 + i*2
		targets[i] = int32(uint32(insns[p]) | uint32(insns[p+1])<<16)
	}
	return first, targets, true
}

// SparseSwitch decodes the sparse-switch payload at insns[off:] into its
// sorted keys and the matching relative branch targets.
func SparseSwitch(insns []uint16, off int) ([]int32, []int32, bool) {
	if off < 0 || off+2 > len(insns) || insns[off] != sparseSwitchIdent {
		return nil, nil, false
	}
	size := int(insns[off+1])
	if off+2+size*4 > len(insns) {
		return nil, nil, false
	}
	keys := make([]int32, size)
	targets := make([]int32, size)
	for i := 0; i < size; i++ {
		k := off + 2 + i*2
		t := off + 2 + size*2 + i*2
		keys[i] = int32(uint32(insns[k]) | uint32(insns[k+1])<<16)
		targets[i] = int32(uint32(insns[t]) | uint32(insns[t+1])<<16)
	}
	return keys, targets, true
}

// FillArrayData decodes the fill-array-data payload at insns[off:].
func FillArrayData(insns []uint16, off int) (*ArrayData, bool) {
	if off < 0 || off+4 > len(insns) || insns[off] != fillArrayIdent {
		return nil, false
	}
	width := int(insns[off+1])
	count := int(uint32(insns[off+2]) | uint32(insns[off+3])<<16)
	n := width * count
	if off+4+(n+1)/2 > len(insns) {
		return nil, false
	}
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		u := insns[off+4+i/2]
		if i%2 == 0 {
			data[i] = byte(u)
		} else {
			data[i] = byte(u >> 8)
		}
	}
	return &ArrayData{ElementWidth: width, Data: data}, true
}

package dex

import "encoding/binary"

// ---------------------------------------------------------------------------
// Pass 2: cross-item verification
// ---------------------------------------------------------------------------

// CrossVerify checks every constraint that relates one item to another:
// table ordering, descriptor syntax, member ownership and the kind of item
// each offset refers to. It only reads f.
func CrossVerify(f *File) error {
	x := &crossChecker{f: f, le: binary.LittleEndian}
	for _, it := range f.Map {
		var err error
		switch it.Type {
		case TypeStringIDItem:
			err = x.stringIDs()
		case TypeTypeIDItem:
			err = x.typeIDs()
		case TypeProtoIDItem:
			err = x.protoIDs()
		case TypeFieldIDItem:
			err = x.fieldIDs()
		case TypeMethodIDItem:
			err = x.methodIDs()
		case TypeClassDefItem:
			err = x.classDefs()
		case TypeAnnotationSetRefList:
			err = x.each(TypeAnnotationSetRefList, x.annotationSetRefList)
		case TypeAnnotationSetItem:
			err = x.each(TypeAnnotationSetItem, x.annotationSet)
		case TypeClassDataItem:
			err = x.each(TypeClassDataItem, x.classData)
		case TypeAnnotationsDirectoryItem:
			err = x.each(TypeAnnotationsDirectoryItem, x.annotationsDirectory)
		case TypeAnnotationItem:
			err = x.each(TypeAnnotationItem, x.annotationItem)
		}
		if err != nil {
			log.Errorf("cross-item verify of section type %04x failed", it.Type)
			return err
		}
	}
	return nil
}

type crossChecker struct {
	f  *File
	le binary.ByteOrder
}

func (x *crossChecker) each(typ uint16, fn func(off uint32) error) error {
	for _, off := range x.f.itemOffsets[typ] {
		if err := fn(off); err != nil {
			return err
		}
	}
	return nil
}

// kind checks that off names an item of type typ. Zero is accepted when
// zeroOK is set.
func (x *crossChecker) kind(off uint32, typ uint16, zeroOK bool, at uint32, item, field string) error {
	if off == 0 && zeroOK {
		return nil
	}
	got, ok := x.f.dataMap[off]
	if !ok || got != typ {
		return verifyErr(at, item, field, ErrWrongItemType,
			"offset 0x%x: expected %s, found %s", off, ItemTypeName(typ), ItemTypeName(got))
	}
	return nil
}

func (x *crossChecker) stringIDs() error {
	f := x.f
	off := f.Header.StringIDsOff
	for i, dataOff := range f.StringIDs {
		at := off + uint32(i)*stringIDItemSize
		if err := x.kind(dataOff, TypeStringDataItem, false, at, "string_id_item", "string_data_off"); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := f.rawString(f.StringIDs[i-1])
		cur := f.rawString(dataOff)
		if CompareModifiedUTF8(prev, cur) >= 0 {
			return verifyErr(at, "string_id_item", "order", ErrOutOfOrder,
				"out-of-order string_ids: %q then %q", f.strings[i-1], f.strings[i])
		}
	}
	return nil
}

func (x *crossChecker) typeIDs() error {
	f := x.f
	for i, descIdx := range f.TypeIDs {
		at := f.Header.TypeIDsOff + uint32(i)*typeIDItemSize
		if d := f.String(descIdx); !IsValidTypeDescriptor(d) {
			return verifyErr(at, "type_id_item", "descriptor_idx", ErrBadDescriptor, "invalid type descriptor: %q", d)
		}
		if i > 0 && f.TypeIDs[i-1] >= descIdx {
			return verifyErr(at, "type_id_item", "order", ErrOutOfOrder,
				"out-of-order type_ids: 0x%x then 0x%x", f.TypeIDs[i-1], descIdx)
		}
	}
	return nil
}

// shortyMatches checks one shorty character against a type descriptor.
func shortyMatches(shorty byte, desc string, isReturn bool) bool {
	switch shorty {
	case 'V':
		if !isReturn {
			return false
		}
		return desc == "V"
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return len(desc) == 1 && desc[0] == shorty
	case 'L':
		return len(desc) > 0 && (desc[0] == 'L' || desc[0] == '[')
	}
	return false
}

func (x *crossChecker) protoIDs() error {
	const item = "proto_id_item"
	f := x.f
	for i, p := range f.Protos {
		at := f.Header.ProtoIDsOff + uint32(i)*protoIDItemSize
		if err := x.kind(p.ParametersOff, TypeTypeList, true, at+8, item, "parameters_off"); err != nil {
			return err
		}
		shorty := f.String(p.ShortyIdx)
		if shorty == "" || !shortyMatches(shorty[0], f.TypeDescriptor(p.ReturnTypeIdx), true) {
			return verifyErr(at, item, "shorty", ErrBadDescriptor,
				"shorty %q vs return type %q", shorty, f.TypeDescriptor(p.ReturnTypeIdx))
		}
		params := f.typeList(p.ParametersOff)
		if len(shorty)-1 != len(params) {
			return verifyErr(at, item, "shorty", ErrBadDescriptor,
				"shorty %q has %d parameters, type list %d", shorty, len(shorty)-1, len(params))
		}
		for j, t := range params {
			if d := f.TypeDescriptor(uint32(t)); !shortyMatches(shorty[j+1], d, false) {
				return verifyErr(at, item, "shorty", ErrBadDescriptor,
					"shorty vs. type mismatch: %q, %q", shorty[j+1], d)
			}
		}
		if i == 0 {
			continue
		}
		prev := f.Protos[i-1]
		if prev.ReturnTypeIdx > p.ReturnTypeIdx {
			return verifyErr(at, item, "order", ErrOutOfOrder, "out-of-order proto_id return types")
		}
		if prev.ReturnTypeIdx == p.ReturnTypeIdx && !typeListLess(f.typeList(prev.ParametersOff), params) {
			return verifyErr(at, item, "order", ErrOutOfOrder, "out-of-order proto_id arguments")
		}
	}
	return nil
}

// typeListLess orders parameter lists by type index, a proper prefix
// sorting first.
func typeListLess(a, b []uint16) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (x *crossChecker) fieldIDs() error {
	const item = "field_id_item"
	f := x.f
	for i, fid := range f.FieldIDs {
		at := f.Header.FieldIDsOff + uint32(i)*fieldIDItemSize
		if d := f.TypeDescriptor(uint32(fid.ClassIdx)); !IsValidClassDescriptor(d) {
			return verifyErr(at, item, "class_idx", ErrBadDescriptor, "invalid descriptor for class_idx: %q", d)
		}
		if d := f.TypeDescriptor(uint32(fid.TypeIdx)); !IsValidFieldDescriptor(d) {
			return verifyErr(at+2, item, "type_idx", ErrBadDescriptor, "invalid descriptor for type_idx: %q", d)
		}
		if n := f.String(fid.NameIdx); !IsValidMemberName(n) {
			return verifyErr(at+4, item, "name_idx", ErrBadDescriptor, "invalid name: %q", n)
		}
		if i == 0 {
			continue
		}
		prev := f.FieldIDs[i-1]
		if !memberLess(uint32(prev.ClassIdx), prev.NameIdx, uint32(prev.TypeIdx),
			uint32(fid.ClassIdx), fid.NameIdx, uint32(fid.TypeIdx)) {
			return verifyErr(at, item, "order", ErrOutOfOrder, "out-of-order field_ids")
		}
	}
	return nil
}

func (x *crossChecker) methodIDs() error {
	const item = "method_id_item"
	f := x.f
	for i, mid := range f.MethodIDs {
		at := f.Header.MethodIDsOff + uint32(i)*methodIDItemSize
		if d := f.TypeDescriptor(uint32(mid.ClassIdx)); !IsValidReferenceDescriptor(d) {
			return verifyErr(at, item, "class_idx", ErrBadDescriptor, "invalid descriptor for class_idx: %q", d)
		}
		if n := f.String(mid.NameIdx); !IsValidMemberName(n) {
			return verifyErr(at+4, item, "name_idx", ErrBadDescriptor, "invalid name: %q", n)
		}
		if i == 0 {
			continue
		}
		prev := f.MethodIDs[i-1]
		if !memberLess(uint32(prev.ClassIdx), prev.NameIdx, uint32(prev.ProtoIdx),
			uint32(mid.ClassIdx), mid.NameIdx, uint32(mid.ProtoIdx)) {
			return verifyErr(at, item, "order", ErrOutOfOrder, "out-of-order method_ids")
		}
	}
	return nil
}

// memberLess orders member ids by (class, name, type-or-proto).
func memberLess(c0, n0, t0, c1, n1, t1 uint32) bool {
	if c0 != c1 {
		return c0 < c1
	}
	if n0 != n1 {
		return n0 < n1
	}
	return t0 < t1
}

func (x *crossChecker) fieldOwner(idx uint32) uint32 {
	return uint32(x.f.FieldIDs[idx].ClassIdx)
}

func (x *crossChecker) methodOwner(idx uint32) uint32 {
	return uint32(x.f.MethodIDs[idx].ClassIdx)
}

// classDataDefiner returns the class owning the first member of cd, or
// NoIndex when cd is empty.
func (x *crossChecker) classDataDefiner(cd *ClassData) uint32 {
	switch {
	case len(cd.StaticFields) > 0:
		return x.fieldOwner(cd.StaticFields[0].FieldIdx)
	case len(cd.InstanceFields) > 0:
		return x.fieldOwner(cd.InstanceFields[0].FieldIdx)
	case len(cd.DirectMethods) > 0:
		return x.methodOwner(cd.DirectMethods[0].MethodIdx)
	case len(cd.VirtualMethods) > 0:
		return x.methodOwner(cd.VirtualMethods[0].MethodIdx)
	}
	return NoIndex
}

type annotationsDirectory struct {
	classAnnotationsOff uint32
	fields              [][2]uint32
	methods             [][2]uint32
	params              [][2]uint32
}

func (x *crossChecker) readDirectory(off uint32) *annotationsDirectory {
	buf := x.f.data
	d := &annotationsDirectory{classAnnotationsOff: x.le.Uint32(buf[off:])}
	counts := [3]uint32{x.le.Uint32(buf[off+4:]), x.le.Uint32(buf[off+8:]), x.le.Uint32(buf[off+12:])}
	lists := [3]*[][2]uint32{&d.fields, &d.methods, &d.params}
	p := off + 16
	for i, n := range counts {
		for j := uint32(0); j < n; j++ {
			*lists[i] = append(*lists[i], [2]uint32{x.le.Uint32(buf[p:]), x.le.Uint32(buf[p+4:])})
			p += 8
		}
	}
	return d
}

func (x *crossChecker) directoryDefiner(d *annotationsDirectory) uint32 {
	switch {
	case len(d.fields) > 0:
		return x.fieldOwner(d.fields[0][0])
	case len(d.methods) > 0:
		return x.methodOwner(d.methods[0][0])
	case len(d.params) > 0:
		return x.methodOwner(d.params[0][0])
	}
	return NoIndex
}

func (x *crossChecker) classDefs() error {
	const item = "class_def_item"
	f := x.f
	defined := make([]bool, len(f.TypeIDs))
	for i := range f.ClassDefs {
		def := &f.ClassDefs[i]
		at := f.Header.ClassDefsOff + uint32(i)*classDefItemSize
		desc := f.TypeDescriptor(def.ClassIdx)
		if !IsValidClassDescriptor(desc) {
			return verifyErr(at, item, "class_idx", ErrBadDescriptor, "invalid class: %q", desc)
		}
		if defined[def.ClassIdx] {
			return verifyErr(at, item, "class_idx", ErrDuplicate, "duplicate class definition: %q", desc)
		}
		defined[def.ClassIdx] = true

		refs := []struct {
			off   uint32
			typ   uint16
			field string
			at    uint32
		}{
			{def.InterfacesOff, TypeTypeList, "interfaces_off", at + 12},
			{def.AnnotationsOff, TypeAnnotationsDirectoryItem, "annotations_off", at + 20},
			{def.ClassDataOff, TypeClassDataItem, "class_data_off", at + 24},
			{def.StaticValuesOff, TypeEncodedArrayItem, "static_values_off", at + 28},
		}
		for _, r := range refs {
			if err := x.kind(r.off, r.typ, true, r.at, item, r.field); err != nil {
				return err
			}
		}

		if def.SuperclassIdx != NoIndex {
			if s := f.TypeDescriptor(def.SuperclassIdx); !IsValidClassDescriptor(s) {
				return verifyErr(at+8, item, "superclass_idx", ErrBadDescriptor, "invalid superclass: %q", s)
			}
		}

		ifaces := f.typeList(def.InterfacesOff)
		for j, t := range ifaces {
			if s := f.TypeDescriptor(uint32(t)); !IsValidClassDescriptor(s) {
				return verifyErr(at+12, item, "interfaces", ErrBadDescriptor, "invalid interface: %q", s)
			}
			for k := 0; k < j; k++ {
				if ifaces[k] == t {
					return verifyErr(at+12, item, "interfaces", ErrDuplicate,
						"duplicate interface: %q", f.TypeDescriptor(uint32(t)))
				}
			}
		}

		if def.ClassDataOff != 0 {
			cd, _, err := readClassData(f.data, int(def.ClassDataOff))
			if err != nil {
				return verifyErr(at+24, item, "class_data_off", ErrBadEncoding, "%v", err)
			}
			if owner := x.classDataDefiner(cd); owner != NoIndex && owner != def.ClassIdx {
				return verifyErr(at+24, item, "class_data_off", ErrWrongOwner,
					"class_data_item of %q defines members of %q", desc, f.TypeDescriptor(owner))
			}
		}
		if def.AnnotationsOff != 0 {
			d := x.readDirectory(def.AnnotationsOff)
			if owner := x.directoryDefiner(d); owner != NoIndex && owner != def.ClassIdx {
				return verifyErr(at+20, item, "annotations_off", ErrWrongOwner,
					"annotations_directory_item of %q annotates members of %q", desc, f.TypeDescriptor(owner))
			}
		}
	}
	return nil
}

func (x *crossChecker) classData(off uint32) error {
	const item = "class_data_item"
	cd, _, err := readClassData(x.f.data, int(off))
	if err != nil {
		return verifyErr(off, item, "encoding", ErrBadEncoding, "%v", err)
	}
	definer := x.classDataDefiner(cd)
	for _, fl := range [][]EncodedField{cd.StaticFields, cd.InstanceFields} {
		for _, fd := range fl {
			if owner := x.fieldOwner(fd.FieldIdx); owner != definer {
				return verifyErr(off, item, "field_idx", ErrWrongOwner,
					"field %d owned by %q, expected %q", fd.FieldIdx,
					x.f.TypeDescriptor(owner), x.f.TypeDescriptor(definer))
			}
		}
	}
	for _, ml := range [][]EncodedMethod{cd.DirectMethods, cd.VirtualMethods} {
		for _, m := range ml {
			if err := x.kind(m.CodeOff, TypeCodeItem, true, off, item, "code_off"); err != nil {
				return err
			}
			if owner := x.methodOwner(m.MethodIdx); owner != definer {
				return verifyErr(off, item, "method_idx", ErrWrongOwner,
					"method %d owned by %q, expected %q", m.MethodIdx,
					x.f.TypeDescriptor(owner), x.f.TypeDescriptor(definer))
			}
		}
	}
	return nil
}

func (x *crossChecker) annotationSetRefList(off uint32) error {
	n := x.le.Uint32(x.f.data[off:])
	for i := uint32(0); i < n; i++ {
		p := off + 4 + i*4
		if err := x.kind(x.le.Uint32(x.f.data[p:]), TypeAnnotationSetItem, true, p,
			"annotation_set_ref_list", "annotations_off"); err != nil {
			return err
		}
	}
	return nil
}

func (x *crossChecker) annotationSet(off uint32) error {
	const item = "annotation_set_item"
	n := x.le.Uint32(x.f.data[off:])
	var last uint32
	for i := uint32(0); i < n; i++ {
		p := off + 4 + i*4
		entry := x.le.Uint32(x.f.data[p:])
		if err := x.kind(entry, TypeAnnotationItem, true, p, item, "entry"); err != nil {
			return err
		}
		if entry == 0 {
			continue
		}
		typeIdx, _, _ := ReadULEB128(x.f.data, int(entry)+1)
		if i > 0 && last >= typeIdx {
			return verifyErr(p, item, "order", ErrOutOfOrder,
				"out-of-order entry types: 0x%x then 0x%x", last, typeIdx)
		}
		last = typeIdx
	}
	return nil
}

func (x *crossChecker) annotationsDirectory(off uint32) error {
	const item = "annotations_directory_item"
	d := x.readDirectory(off)
	definer := x.directoryDefiner(d)
	if err := x.kind(d.classAnnotationsOff, TypeAnnotationSetItem, true, off, item, "class_annotations_off"); err != nil {
		return err
	}
	groups := []struct {
		entries [][2]uint32
		owner   func(uint32) uint32
		typ     uint16
		field   string
	}{
		{d.fields, x.fieldOwner, TypeAnnotationSetItem, "field_annotations"},
		{d.methods, x.methodOwner, TypeAnnotationSetItem, "method_annotations"},
		{d.params, x.methodOwner, TypeAnnotationSetRefList, "parameter_annotations"},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			if owner := g.owner(e[0]); owner != definer {
				return verifyErr(off, item, g.field, ErrWrongOwner,
					"member %d owned by %q, expected %q", e[0],
					x.f.TypeDescriptor(owner), x.f.TypeDescriptor(definer))
			}
			if err := x.kind(e[1], g.typ, false, off, item, g.field); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *crossChecker) annotationItem(off uint32) error {
	v := &valueVerifier{buf: x.f.data, hdr: &x.f.Header, file: x.f}
	_, err := v.annotation(int(off) + 1)
	return err
}

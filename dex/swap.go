package dex

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Pass 1: byte-swap and intra-item verification
// ---------------------------------------------------------------------------
//
// The checker walks every section named by the map, rewrites each
// fixed-width field from the source byte order into the destination byte
// order in place, and checks every constraint that does not depend on
// other items. Variable-length items are recorded in the data map so the
// cross-verification pass can check "offset X holds an item of type T" in
// constant time.

type checker struct {
	buf []byte
	src binary.ByteOrder
	dst binary.ByteOrder
	hdr *Header

	dataMap     map[uint32]uint16
	itemOffsets map[uint16][]uint32
}

func newChecker(buf []byte, src, dst binary.ByteOrder) *checker {
	return &checker{
		buf:         buf,
		src:         src,
		dst:         dst,
		dataMap:     make(map[uint32]uint16),
		itemOffsets: make(map[uint16][]uint32),
	}
}

// u2 reads a 16-bit field in the source order and rewrites it in the
// destination order.
func (c *checker) u2(off uint32) uint16 {
	v := c.src.Uint16(c.buf[off:])
	c.dst.PutUint16(c.buf[off:], v)
	return v
}

// u4 reads a 32-bit field in the source order and rewrites it in the
// destination order.
func (c *checker) u4(off uint32) uint32 {
	v := c.src.Uint32(c.buf[off:])
	c.dst.PutUint32(c.buf[off:], v)
	return v
}

// need reports an error unless [off, off+n) lies inside the file.
func (c *checker) need(off uint32, n uint64, item, field string) error {
	if uint64(off)+n > uint64(len(c.buf)) {
		return verifyErr(off, item, field, ErrOutOfRange,
			"range 0x%x..0x%x beyond file size 0x%x", off, uint64(off)+n, len(c.buf))
	}
	return nil
}

func (c *checker) index(v, limit uint32, off uint32, item, field string) error {
	if v >= limit {
		return verifyErr(off, item, field, ErrBadIndex, "%d >= %d", v, limit)
	}
	return nil
}

func (c *checker) indexOrNone(v, limit uint32, off uint32, item, field string) error {
	if v != NoIndex && v >= limit {
		return verifyErr(off, item, field, ErrBadIndex, "%d >= %d", v, limit)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Header and map
// ---------------------------------------------------------------------------

// swapHeader rewrites the header fields and decodes them into c.hdr.
func (c *checker) swapHeader() (*Header, error) {
	if err := c.need(0, HeaderSize, "header_item", "size"); err != nil {
		return nil, err
	}
	h := &Header{}
	copy(h.Magic[:], c.buf[0:8])
	h.Checksum = c.u4(8)
	copy(h.Signature[:], c.buf[12:32])
	h.FileSize = c.u4(32)
	h.HeaderSize = c.u4(36)
	h.EndianTag = c.u4(40)
	h.LinkSize = c.u4(44)
	h.LinkOff = c.u4(48)
	h.MapOff = c.u4(52)
	h.StringIDsSize = c.u4(56)
	h.StringIDsOff = c.u4(60)
	h.TypeIDsSize = c.u4(64)
	h.TypeIDsOff = c.u4(68)
	h.ProtoIDsSize = c.u4(72)
	h.ProtoIDsOff = c.u4(76)
	h.FieldIDsSize = c.u4(80)
	h.FieldIDsOff = c.u4(84)
	h.MethodIDsSize = c.u4(88)
	h.MethodIDsOff = c.u4(92)
	h.ClassDefsSize = c.u4(96)
	h.ClassDefsOff = c.u4(100)
	h.DataSize = c.u4(104)
	h.DataOff = c.u4(108)

	if h.EndianTag != EndianConstant {
		return nil, verifyErr(40, "header_item", "endian_tag", ErrBadEndianTag, "0x%x", h.EndianTag)
	}
	if err := c.need(h.LinkOff, uint64(h.LinkSize), "header_item", "link"); err != nil {
		return nil, err
	}
	if err := c.need(h.DataOff, uint64(h.DataSize), "header_item", "data"); err != nil {
		return nil, err
	}
	if h.HeaderSize < HeaderSize {
		return nil, verifyErr(36, "header_item", "header_size", ErrBadHeader,
			"small header size %d, struct %d", h.HeaderSize, HeaderSize)
	} else if h.HeaderSize > HeaderSize {
		log.Warningf("large header size %d, struct %d", h.HeaderSize, HeaderSize)
	}
	c.hdr = h
	return h, nil
}

// swapMap rewrites the map_list and checks the shape of the section
// directory.
func (c *checker) swapMap() ([]MapItem, error) {
	h := c.hdr
	if h.MapOff == 0 {
		return nil, verifyErr(52, "header_item", "map_off", ErrBadMap, "no map found")
	}
	if h.MapOff&3 != 0 {
		return nil, verifyErr(h.MapOff, "map_list", "offset", ErrMisaligned, "")
	}
	if err := c.need(h.MapOff, 4, "map_list", "size"); err != nil {
		return nil, err
	}
	count := c.u4(h.MapOff)
	if err := c.need(h.MapOff+4, uint64(count)*mapItemSize, "map_list", "list"); err != nil {
		return nil, err
	}

	items := make([]MapItem, 0, count)
	dataItemsLeft := h.DataSize
	var dataItemCount uint32
	var usedBits uint32
	var lastOffset uint32
	for i := uint32(0); i < count; i++ {
		p := h.MapOff + 4 + i*mapItemSize
		it := MapItem{
			Type:   c.u2(p),
			Unused: c.u2(p + 2),
			Size:   c.u4(p + 4),
			Offset: c.u4(p + 8),
		}
		if i > 0 && lastOffset >= it.Offset {
			return nil, verifyErr(p, "map_list", "offset", ErrOutOfOrder,
				"out-of-order map item: 0x%x then 0x%x", lastOffset, it.Offset)
		}
		if it.Offset >= h.FileSize {
			return nil, verifyErr(p, "map_list", "offset", ErrOutOfRange,
				"map item after end of file: 0x%x, size 0x%x", it.Offset, h.FileSize)
		}
		if isDataSectionType(it.Type) {
			if it.Size > dataItemsLeft {
				return nil, verifyErr(p, "map_list", "size", ErrBadMap,
					"unrealistically many items in the data section: at least %d",
					dataItemCount+it.Size)
			}
			dataItemsLeft -= it.Size
			dataItemCount += it.Size
		}
		bit := typeBit(it.Type)
		if bit == 0 {
			return nil, verifyErr(p, "map_list", "type", ErrBadMap, "unknown map item type 0x%04x", it.Type)
		}
		if usedBits&bit != 0 {
			return nil, verifyErr(p, "map_list", "type", ErrDuplicate,
				"duplicate map section of type 0x%04x", it.Type)
		}
		usedBits |= bit
		lastOffset = it.Offset
		items = append(items, it)
	}

	if usedBits&typeBit(TypeHeaderItem) == 0 {
		return nil, verifyErr(h.MapOff, "map_list", "header", ErrBadMap, "map is missing header entry")
	}
	if usedBits&typeBit(TypeMapList) == 0 {
		return nil, verifyErr(h.MapOff, "map_list", "map_list", ErrBadMap, "map is missing map_list entry")
	}
	mandatory := []struct {
		t         uint16
		off, size uint32
	}{
		{TypeStringIDItem, h.StringIDsOff, h.StringIDsSize},
		{TypeTypeIDItem, h.TypeIDsOff, h.TypeIDsSize},
		{TypeProtoIDItem, h.ProtoIDsOff, h.ProtoIDsSize},
		{TypeFieldIDItem, h.FieldIDsOff, h.FieldIDsSize},
		{TypeMethodIDItem, h.MethodIDsOff, h.MethodIDsSize},
		{TypeClassDefItem, h.ClassDefsOff, h.ClassDefsSize},
	}
	for _, m := range mandatory {
		if usedBits&typeBit(m.t) == 0 && (m.off != 0 || m.size != 0) {
			return nil, verifyErr(h.MapOff, "map_list", ItemTypeName(m.t), ErrBadMap,
				"map is missing %s entry", ItemTypeName(m.t))
		}
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Section iteration
// ---------------------------------------------------------------------------

type itemFunc func(off uint32) (uint32, error)

// iterate walks count concatenated items starting at off, checking the
// zero padding inserted for alignment. When record is true every item is
// added to the data map under typ.
func (c *checker) iterate(typ uint16, off, count, align uint32, fn itemFunc, record bool) (uint32, error) {
	mask := align - 1
	name := ItemTypeName(typ)
	for i := uint32(0); i < count; i++ {
		aligned := (off + mask) &^ mask
		if aligned < off || uint64(aligned) > uint64(len(c.buf)) {
			return 0, verifyErr(off, name, "alignment", ErrOutOfRange, "")
		}
		for p := off; p < aligned; p++ {
			if c.buf[p] != 0 {
				return 0, verifyErr(p, name, "padding", ErrBadPadding, "non-zero padding 0x%02x", c.buf[p])
			}
		}
		off = aligned
		next, err := fn(off)
		if err != nil {
			log.Errorf("trouble with %s %d @ offset 0x%x", name, i, off)
			return 0, err
		}
		if uint64(next) > uint64(len(c.buf)) {
			return 0, verifyErr(off, name, "end", ErrOutOfRange, "item %d ends out of bounds", i)
		}
		if record {
			c.dataMap[off] = typ
			c.itemOffsets[typ] = append(c.itemOffsets[typ], off)
		}
		off = next
	}
	return off, nil
}

func (c *checker) iterateIDs(it MapItem, expectOff, expectCount uint32, fn itemFunc) (uint32, error) {
	name := ItemTypeName(it.Type)
	if it.Offset != expectOff {
		return 0, verifyErr(it.Offset, name, "offset", ErrBadMap,
			"bogus offset for section: got 0x%x; expected 0x%x", it.Offset, expectOff)
	}
	if it.Size != expectCount {
		return 0, verifyErr(it.Offset, name, "size", ErrBadMap,
			"bogus size for section: got 0x%x; expected 0x%x", it.Size, expectCount)
	}
	return c.iterate(it.Type, it.Offset, it.Size, 4, fn, false)
}

func (c *checker) iterateData(it MapItem, fn itemFunc) (uint32, error) {
	start := c.hdr.DataOff
	end := uint64(c.hdr.DataOff) + uint64(c.hdr.DataSize)
	name := ItemTypeName(it.Type)
	if it.Offset < start || uint64(it.Offset) >= end {
		return 0, verifyErr(it.Offset, name, "offset", ErrOutOfRange,
			"bogus offset for data subsection: 0x%x", it.Offset)
	}
	next, err := c.iterate(it.Type, it.Offset, it.Size, itemAlignment(it.Type), fn, true)
	if err != nil {
		return 0, err
	}
	if uint64(next) > end {
		return 0, verifyErr(next, name, "end", ErrOutOfRange,
			"out-of-bounds end of data subsection: 0x%x", next)
	}
	return next, nil
}

// swapEverything runs pass 1 over every map section except the header and
// the map itself, both already swapped.
func (c *checker) swapEverything(items []MapItem) error {
	h := c.hdr
	var lastOffset uint32
	for _, it := range items {
		name := ItemTypeName(it.Type)
		if lastOffset < it.Offset {
			if err := c.need(lastOffset, uint64(it.Offset-lastOffset), name, "padding"); err != nil {
				return err
			}
			for p := lastOffset; p < it.Offset; p++ {
				if c.buf[p] != 0 {
					return verifyErr(p, name, "padding", ErrBadPadding,
						"non-zero padding 0x%02x before section start", c.buf[p])
				}
			}
		} else if lastOffset > it.Offset {
			return verifyErr(it.Offset, name, "offset", ErrOutOfOrder,
				"section overlap or out-of-order map: 0x%x, 0x%x", lastOffset, it.Offset)
		}

		var err error
		switch it.Type {
		case TypeHeaderItem:
			if it.Size != 1 {
				return verifyErr(it.Offset, name, "size", ErrBadMap, "multiple header items")
			}
			if it.Offset != 0 {
				return verifyErr(it.Offset, name, "offset", ErrBadMap, "header not at start of file")
			}
			lastOffset = h.HeaderSize
		case TypeStringIDItem:
			lastOffset, err = c.iterateIDs(it, h.StringIDsOff, h.StringIDsSize, c.swapStringID)
		case TypeTypeIDItem:
			lastOffset, err = c.iterateIDs(it, h.TypeIDsOff, h.TypeIDsSize, c.swapTypeID)
		case TypeProtoIDItem:
			lastOffset, err = c.iterateIDs(it, h.ProtoIDsOff, h.ProtoIDsSize, c.swapProtoID)
		case TypeFieldIDItem:
			lastOffset, err = c.iterateIDs(it, h.FieldIDsOff, h.FieldIDsSize, c.swapFieldID)
		case TypeMethodIDItem:
			lastOffset, err = c.iterateIDs(it, h.MethodIDsOff, h.MethodIDsSize, c.swapMethodID)
		case TypeClassDefItem:
			lastOffset, err = c.iterateIDs(it, h.ClassDefsOff, h.ClassDefsSize, c.swapClassDef)
		case TypeMapList:
			if it.Size != 1 {
				return verifyErr(it.Offset, name, "size", ErrBadMap, "multiple map list items")
			}
			if it.Offset != h.MapOff {
				return verifyErr(it.Offset, name, "offset", ErrBadMap,
					"map not at header-defined offset: 0x%x, expected 0x%x", it.Offset, h.MapOff)
			}
			lastOffset = it.Offset + 4 + uint32(len(items))*mapItemSize
		case TypeTypeList:
			lastOffset, err = c.iterateData(it, c.swapTypeList)
		case TypeAnnotationSetRefList:
			lastOffset, err = c.iterateData(it, c.swapAnnotationSetRefList)
		case TypeAnnotationSetItem:
			lastOffset, err = c.iterateData(it, c.swapAnnotationSet)
		case TypeClassDataItem:
			lastOffset, err = c.iterateData(it, c.verifyClassData)
		case TypeCodeItem:
			lastOffset, err = c.iterateData(it, c.swapCode)
		case TypeStringDataItem:
			lastOffset, err = c.iterateData(it, c.verifyStringData)
		case TypeDebugInfoItem:
			lastOffset, err = c.iterateData(it, c.verifyDebugInfo)
		case TypeAnnotationItem:
			lastOffset, err = c.iterateData(it, c.verifyAnnotationItem)
		case TypeEncodedArrayItem:
			lastOffset, err = c.iterateData(it, c.verifyEncodedArrayItem)
		case TypeAnnotationsDirectoryItem:
			lastOffset, err = c.iterateData(it, c.swapAnnotationsDirectory)
		default:
			return verifyErr(it.Offset, "map_list", "type", ErrBadMap, "unknown map item type 0x%04x", it.Type)
		}
		if err != nil {
			log.Errorf("swap of section type %04x failed", it.Type)
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Identifier sections
// ---------------------------------------------------------------------------

func (c *checker) swapStringID(off uint32) (uint32, error) {
	if err := c.need(off, stringIDItemSize, "string_id_item", "string_data_off"); err != nil {
		return 0, err
	}
	c.u4(off)
	return off + stringIDItemSize, nil
}

func (c *checker) swapTypeID(off uint32) (uint32, error) {
	if err := c.need(off, typeIDItemSize, "type_id_item", "descriptor_idx"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off), c.hdr.StringIDsSize, off, "type_id_item", "descriptor_idx"); err != nil {
		return 0, err
	}
	return off + typeIDItemSize, nil
}

func (c *checker) swapProtoID(off uint32) (uint32, error) {
	const item = "proto_id_item"
	if err := c.need(off, protoIDItemSize, item, "size"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off), c.hdr.StringIDsSize, off, item, "shorty_idx"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off+4), c.hdr.TypeIDsSize, off+4, item, "return_type_idx"); err != nil {
		return 0, err
	}
	c.u4(off + 8)
	return off + protoIDItemSize, nil
}

func (c *checker) swapFieldID(off uint32) (uint32, error) {
	const item = "field_id_item"
	if err := c.need(off, fieldIDItemSize, item, "size"); err != nil {
		return 0, err
	}
	if err := c.index(uint32(c.u2(off)), c.hdr.TypeIDsSize, off, item, "class_idx"); err != nil {
		return 0, err
	}
	if err := c.index(uint32(c.u2(off+2)), c.hdr.TypeIDsSize, off+2, item, "type_idx"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off+4), c.hdr.StringIDsSize, off+4, item, "name_idx"); err != nil {
		return 0, err
	}
	return off + fieldIDItemSize, nil
}

func (c *checker) swapMethodID(off uint32) (uint32, error) {
	const item = "method_id_item"
	if err := c.need(off, methodIDItemSize, item, "size"); err != nil {
		return 0, err
	}
	if err := c.index(uint32(c.u2(off)), c.hdr.TypeIDsSize, off, item, "class_idx"); err != nil {
		return 0, err
	}
	if err := c.index(uint32(c.u2(off+2)), c.hdr.ProtoIDsSize, off+2, item, "proto_idx"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off+4), c.hdr.StringIDsSize, off+4, item, "name_idx"); err != nil {
		return 0, err
	}
	return off + methodIDItemSize, nil
}

func (c *checker) swapClassDef(off uint32) (uint32, error) {
	const item = "class_def_item"
	if err := c.need(off, classDefItemSize, item, "size"); err != nil {
		return 0, err
	}
	if err := c.index(c.u4(off), c.hdr.TypeIDsSize, off, item, "class_idx"); err != nil {
		return 0, err
	}
	c.u4(off + 4)
	if err := c.indexOrNone(c.u4(off+8), c.hdr.TypeIDsSize, off+8, item, "superclass_idx"); err != nil {
		return 0, err
	}
	c.u4(off + 12)
	if err := c.indexOrNone(c.u4(off+16), c.hdr.StringIDsSize, off+16, item, "source_file_idx"); err != nil {
		return 0, err
	}
	c.u4(off + 20)
	c.u4(off + 24)
	c.u4(off + 28)
	return off + classDefItemSize, nil
}

// ---------------------------------------------------------------------------
// Data section items
// ---------------------------------------------------------------------------

func (c *checker) swapTypeList(off uint32) (uint32, error) {
	const item = "type_list"
	if err := c.need(off, 4, item, "size"); err != nil {
		return 0, err
	}
	n := c.u4(off)
	if err := c.need(off+4, uint64(n)*2, item, "list"); err != nil {
		return 0, err
	}
	for i := uint32(0); i < n; i++ {
		p := off + 4 + i*2
		if err := c.index(uint32(c.u2(p)), c.hdr.TypeIDsSize, p, item, "type_idx"); err != nil {
			return 0, err
		}
	}
	return off + 4 + n*2, nil
}

func (c *checker) swapAnnotationSetRefList(off uint32) (uint32, error) {
	const item = "annotation_set_ref_list"
	if err := c.need(off, 4, item, "size"); err != nil {
		return 0, err
	}
	n := c.u4(off)
	if err := c.need(off+4, uint64(n)*4, item, "list"); err != nil {
		return 0, err
	}
	for i := uint32(0); i < n; i++ {
		c.u4(off + 4 + i*4)
	}
	return off + 4 + n*4, nil
}

func (c *checker) swapAnnotationSet(off uint32) (uint32, error) {
	const item = "annotation_set_item"
	if err := c.need(off, 4, item, "size"); err != nil {
		return 0, err
	}
	n := c.u4(off)
	if err := c.need(off+4, uint64(n)*4, item, "entries"); err != nil {
		return 0, err
	}
	for i := uint32(0); i < n; i++ {
		c.u4(off + 4 + i*4)
	}
	return off + 4 + n*4, nil
}

func (c *checker) verifyClassData(off uint32) (uint32, error) {
	const item = "class_data_item"
	cd, next, err := readClassData(c.buf, int(off))
	if err != nil {
		return 0, verifyErr(off, item, "encoding", ErrBadEncoding, "unable to parse class_data_item")
	}
	if err := c.verifyFields(off, cd.StaticFields, true); err != nil {
		log.Errorf("trouble with static fields")
		return 0, err
	}
	if err := c.verifyFields(off, cd.InstanceFields, false); err != nil {
		log.Errorf("trouble with instance fields")
		return 0, err
	}
	if err := c.verifyMethods(off, cd.DirectMethods, true); err != nil {
		log.Errorf("trouble with direct methods")
		return 0, err
	}
	if err := c.verifyMethods(off, cd.VirtualMethods, false); err != nil {
		log.Errorf("trouble with virtual methods")
		return 0, err
	}
	return uint32(next), nil
}

func (c *checker) verifyFields(off uint32, fields []EncodedField, expectStatic bool) error {
	const item = "class_data_item"
	for i, f := range fields {
		if err := c.index(f.FieldIdx, c.hdr.FieldIDsSize, off, item, "field_idx"); err != nil {
			return err
		}
		isStatic := f.AccessFlags&AccStatic != 0
		if isStatic != expectStatic {
			return verifyErr(off, item, "fields", ErrBadFlags, "field in wrong list @ %d", i)
		}
		if f.AccessFlags&^AccFieldMask != 0 {
			return verifyErr(off, item, "access_flags", ErrBadFlags,
				"bogus field access flags %x @ %d", f.AccessFlags, i)
		}
	}
	return nil
}

func (c *checker) verifyMethods(off uint32, methods []EncodedMethod, expectDirect bool) error {
	const item = "class_data_item"
	for i, m := range methods {
		if err := c.index(m.MethodIdx, c.hdr.MethodIDsSize, off, item, "method_idx"); err != nil {
			return err
		}
		flags := m.AccessFlags
		isDirect := flags&(AccStatic|AccPrivate|AccConstructor) != 0
		expectCode := flags&(AccNative|AccAbstract) == 0
		isSynchronized := flags&AccSynchronized != 0
		allowSynchronized := flags&AccNative != 0
		if isDirect != expectDirect {
			return verifyErr(off, item, "methods", ErrBadFlags, "method in wrong list @ %d", i)
		}
		if flags&^AccMethodMask != 0 || (isSynchronized && !allowSynchronized) {
			return verifyErr(off, item, "access_flags", ErrBadFlags,
				"bogus method access flags %x @ %d", flags, i)
		}
		if expectCode && m.CodeOff == 0 {
			return verifyErr(off, item, "code_off", ErrBadFlags,
				"unexpected zero code_off for access_flags %x", flags)
		}
		if !expectCode && m.CodeOff != 0 {
			return verifyErr(off, item, "code_off", ErrBadFlags,
				"unexpected non-zero code_off 0x%x for access_flags %x", m.CodeOff, flags)
		}
	}
	return nil
}

func (c *checker) swapCode(off uint32) (uint32, error) {
	const item = "code_item"
	if err := c.need(off, codeItemHeader, item, "header"); err != nil {
		return 0, err
	}
	registers := c.u2(off)
	ins := c.u2(off + 2)
	c.u2(off + 4)
	triesSize := c.u2(off + 6)
	c.u4(off + 8)
	insnsSize := c.u4(off + 12)
	if ins > registers {
		return 0, verifyErr(off+2, item, "ins_size", ErrBadIndex,
			"ins_size %d exceeds registers_size %d", ins, registers)
	}

	insns := off + codeItemHeader
	if err := c.need(insns, uint64(insnsSize)*2, item, "insns"); err != nil {
		return 0, err
	}
	for i := uint32(0); i < insnsSize; i++ {
		c.u2(insns + i*2)
	}
	end := insns + insnsSize*2
	if triesSize == 0 {
		return end, nil
	}
	if end&3 != 0 {
		if err := c.need(end, 2, item, "padding"); err != nil {
			return 0, err
		}
		if c.buf[end] != 0 || c.buf[end+1] != 0 {
			return 0, verifyErr(end, item, "padding", ErrBadPadding, "non-zero padding")
		}
		end += 2
	}
	return c.swapTriesAndCatches(end, uint32(triesSize), insnsSize)
}

// swapTriesAndCatches handles the try table at triesOff and the encoded
// catch handler list that follows it. Returns the offset past the handlers.
func (c *checker) swapTriesAndCatches(triesOff, triesSize, insnsSize uint32) (uint32, error) {
	const item = "code_item"
	if err := c.need(triesOff, uint64(triesSize)*tryItemSize, item, "tries"); err != nil {
		return 0, err
	}
	base := triesOff + triesSize*tryItemSize
	handlers, end, err := readCatchHandlers(c.buf, base, insnsSize, c.hdr.TypeIDsSize)
	if err != nil {
		return 0, err
	}
	offsets := make(map[uint32]bool, len(handlers))
	for _, h := range handlers {
		offsets[h.Offset] = true
	}

	var lastEnd uint32
	for i := uint32(0); i < triesSize; i++ {
		p := triesOff + i*tryItemSize
		start := c.u4(p)
		count := c.u2(p + 4)
		handlerOff := c.u2(p + 6)
		if start < lastEnd {
			return 0, verifyErr(p, item, "try", ErrOutOfOrder, "out-of-order try")
		}
		if start >= insnsSize {
			return 0, verifyErr(p, item, "start_addr", ErrBadTryRange, "invalid start_addr: 0x%x", start)
		}
		if !offsets[uint32(handlerOff)] {
			return 0, verifyErr(p+6, item, "handler_off", ErrBadHandler, "bogus handler offset: 0x%x", handlerOff)
		}
		lastEnd = start + uint32(count)
		if lastEnd > insnsSize {
			return 0, verifyErr(p+4, item, "insn_count", ErrBadTryRange,
				"invalid insn_count: 0x%x (end addr 0x%x, insns_size 0x%x)", count, lastEnd, insnsSize)
		}
	}
	return end, nil
}

func (c *checker) verifyStringData(off uint32) (uint32, error) {
	next, err := checkStringData(c.buf, int(off))
	if err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func (c *checker) verifyDebugInfo(off uint32) (uint32, error) {
	next, err := checkDebugInfo(c.buf, int(off), c.hdr.StringIDsSize)
	if err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func (c *checker) verifyAnnotationItem(off uint32) (uint32, error) {
	const item = "annotation_item"
	if err := c.need(off, 1, item, "visibility"); err != nil {
		return 0, err
	}
	switch c.buf[off] {
	case VisibilityBuild, VisibilityRuntime, VisibilitySystem:
	default:
		return 0, verifyErr(off, item, "visibility", ErrBadAnnotation,
			"bogus annotation visibility: 0x%x", c.buf[off])
	}
	v := c.valueVerifier(nil)
	next, err := v.annotation(int(off) + 1)
	if err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func (c *checker) verifyEncodedArrayItem(off uint32) (uint32, error) {
	v := c.valueVerifier(nil)
	next, err := v.array(int(off))
	if err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func (c *checker) valueVerifier(f *File) *valueVerifier {
	return &valueVerifier{buf: c.buf, hdr: c.hdr, file: f}
}

func (c *checker) swapAnnotationsDirectory(off uint32) (uint32, error) {
	const item = "annotations_directory_item"
	if err := c.need(off, 16, item, "header"); err != nil {
		return 0, err
	}
	c.u4(off)
	fieldsSize := c.u4(off + 4)
	methodsSize := c.u4(off + 8)
	paramsSize := c.u4(off + 12)
	p := off + 16

	lists := []struct {
		count uint32
		limit uint32
		name  string
	}{
		{fieldsSize, c.hdr.FieldIDsSize, "field_idx"},
		{methodsSize, c.hdr.MethodIDsSize, "method_idx"},
		{paramsSize, c.hdr.MethodIDsSize, "method_idx"},
	}
	for _, l := range lists {
		if err := c.need(p, uint64(l.count)*8, item, l.name); err != nil {
			return 0, err
		}
		var last uint32
		for i := uint32(0); i < l.count; i++ {
			idx := c.u4(p)
			if err := c.index(idx, l.limit, p, item, l.name); err != nil {
				return 0, err
			}
			c.u4(p + 4)
			if i > 0 && last >= idx {
				return 0, verifyErr(p, item, l.name, ErrOutOfOrder,
					"out-of-order %s: 0x%x then 0x%x", l.name, last, idx)
			}
			last = idx
			p += 8
		}
	}
	return p, nil
}

package dex

// ---------------------------------------------------------------------------
// Container format constants
// ---------------------------------------------------------------------------

const (
	// Magic is the 8-byte magic/version tag at the start of every container.
	Magic = "dex\n035\x00"

	// HeaderSize is the size in bytes of the fixed header_item.
	HeaderSize = 0x70

	// EndianConstant is the value of endian_tag in a container whose
	// multi-byte fields are little-endian.
	EndianConstant uint32 = 0x12345678

	// ReverseEndianConstant is the value read from endian_tag (as
	// little-endian) when the container is big-endian.
	ReverseEndianConstant uint32 = 0x78563412

	// NoIndex marks an absent index in 32-bit index fields.
	NoIndex uint32 = 0xffffffff

	// signatureSize is the length of the SHA-1 signature field.
	signatureSize = 20

	// checksumStart is the first byte covered by the Adler-32 checksum.
	checksumStart = 12

	// signatureStart is the first byte covered by the SHA-1 signature.
	signatureStart = 32
)

// Map item type codes.
const (
	TypeHeaderItem               uint16 = 0x0000
	TypeStringIDItem             uint16 = 0x0001
	TypeTypeIDItem               uint16 = 0x0002
	TypeProtoIDItem              uint16 = 0x0003
	TypeFieldIDItem              uint16 = 0x0004
	TypeMethodIDItem             uint16 = 0x0005
	TypeClassDefItem             uint16 = 0x0006
	TypeMapList                  uint16 = 0x1000
	TypeTypeList                 uint16 = 0x1001
	TypeAnnotationSetRefList     uint16 = 0x1002
	TypeAnnotationSetItem        uint16 = 0x1003
	TypeClassDataItem            uint16 = 0x2000
	TypeCodeItem                 uint16 = 0x2001
	TypeStringDataItem           uint16 = 0x2002
	TypeDebugInfoItem            uint16 = 0x2003
	TypeAnnotationItem           uint16 = 0x2004
	TypeEncodedArrayItem         uint16 = 0x2005
	TypeAnnotationsDirectoryItem uint16 = 0x2006
)

// ItemTypeName returns a human-readable name for a map item type.
func ItemTypeName(t uint16) string {
	switch t {
	case TypeHeaderItem:
		return "header_item"
	case TypeStringIDItem:
		return "string_id_item"
	case TypeTypeIDItem:
		return "type_id_item"
	case TypeProtoIDItem:
		return "proto_id_item"
	case TypeFieldIDItem:
		return "field_id_item"
	case TypeMethodIDItem:
		return "method_id_item"
	case TypeClassDefItem:
		return "class_def_item"
	case TypeMapList:
		return "map_list"
	case TypeTypeList:
		return "type_list"
	case TypeAnnotationSetRefList:
		return "annotation_set_ref_list"
	case TypeAnnotationSetItem:
		return "annotation_set_item"
	case TypeClassDataItem:
		return "class_data_item"
	case TypeCodeItem:
		return "code_item"
	case TypeStringDataItem:
		return "string_data_item"
	case TypeDebugInfoItem:
		return "debug_info_item"
	case TypeAnnotationItem:
		return "annotation_item"
	case TypeEncodedArrayItem:
		return "encoded_array_item"
	case TypeAnnotationsDirectoryItem:
		return "annotations_directory_item"
	}
	return "unknown"
}

// typeBit maps an item type onto a bit so each type can be seen at most
// once in the map. Returns 0 for unknown types.
func typeBit(t uint16) uint32 {
	switch t {
	case TypeHeaderItem:
		return 1 << 0
	case TypeStringIDItem:
		return 1 << 1
	case TypeTypeIDItem:
		return 1 << 2
	case TypeProtoIDItem:
		return 1 << 3
	case TypeFieldIDItem:
		return 1 << 4
	case TypeMethodIDItem:
		return 1 << 5
	case TypeClassDefItem:
		return 1 << 6
	case TypeMapList:
		return 1 << 7
	case TypeTypeList:
		return 1 << 8
	case TypeAnnotationSetRefList:
		return 1 << 9
	case TypeAnnotationSetItem:
		return 1 << 10
	case TypeClassDataItem:
		return 1 << 11
	case TypeCodeItem:
		return 1 << 12
	case TypeStringDataItem:
		return 1 << 13
	case TypeDebugInfoItem:
		return 1 << 14
	case TypeAnnotationItem:
		return 1 << 15
	case TypeEncodedArrayItem:
		return 1 << 16
	case TypeAnnotationsDirectoryItem:
		return 1 << 17
	}
	return 0
}

// isDataSectionType reports whether items of this type live in the data
// section.
func isDataSectionType(t uint16) bool {
	switch t {
	case TypeHeaderItem, TypeStringIDItem, TypeTypeIDItem, TypeProtoIDItem,
		TypeFieldIDItem, TypeMethodIDItem, TypeClassDefItem:
		return false
	}
	return true
}

// itemAlignment is the required byte alignment of items of the given type.
func itemAlignment(t uint16) uint32 {
	switch t {
	case TypeClassDataItem, TypeStringDataItem, TypeDebugInfoItem,
		TypeAnnotationItem, TypeEncodedArrayItem:
		return 1
	}
	return 4
}

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

const (
	AccPublic               uint32 = 0x00001
	AccPrivate              uint32 = 0x00002
	AccProtected            uint32 = 0x00004
	AccStatic               uint32 = 0x00008
	AccFinal                uint32 = 0x00010
	AccSynchronized         uint32 = 0x00020
	AccSuper                uint32 = 0x00020
	AccVolatile             uint32 = 0x00040
	AccBridge               uint32 = 0x00040
	AccTransient            uint32 = 0x00080
	AccVarargs              uint32 = 0x00080
	AccNative               uint32 = 0x00100
	AccInterface            uint32 = 0x00200
	AccAbstract             uint32 = 0x00400
	AccStrict               uint32 = 0x00800
	AccSynthetic            uint32 = 0x01000
	AccAnnotation           uint32 = 0x02000
	AccEnum                 uint32 = 0x04000
	AccConstructor          uint32 = 0x10000
	AccDeclaredSynchronized uint32 = 0x20000

	AccClassMask = AccPublic | AccFinal | AccInterface | AccAbstract |
		AccSynthetic | AccAnnotation | AccEnum
	AccFieldMask = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal |
		AccVolatile | AccTransient | AccSynthetic | AccEnum
	AccMethodMask = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal |
		AccSynchronized | AccBridge | AccVarargs | AccNative | AccAbstract |
		AccStrict | AccSynthetic | AccConstructor | AccDeclaredSynchronized
)

// ---------------------------------------------------------------------------
// Fixed-width items
// ---------------------------------------------------------------------------

// Header is the decoded header_item. Fields are host values after byte-order
// normalization.
type Header struct {
	Magic         [8]byte
	Checksum      uint32
	Signature     [signatureSize]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	LinkSize      uint32
	LinkOff       uint32
	MapOff        uint32
	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	FieldIDsSize  uint32
	FieldIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
	DataSize      uint32
	DataOff       uint32
}

// MapItem is one entry of the map_list.
type MapItem struct {
	Type   uint16
	Unused uint16
	Size   uint32
	Offset uint32
}

// ProtoID is a decoded proto_id_item.
type ProtoID struct {
	ShortyIdx     uint32
	ReturnTypeIdx uint32
	ParametersOff uint32
}

// FieldID is a decoded field_id_item.
type FieldID struct {
	ClassIdx uint16
	TypeIdx  uint16
	NameIdx  uint32
}

// MethodID is a decoded method_id_item.
type MethodID struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

// ClassDef is a decoded class_def_item.
type ClassDef struct {
	ClassIdx        uint32
	AccessFlags     uint32
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

// Byte sizes of the fixed-width items.
const (
	stringIDItemSize = 4
	typeIDItemSize   = 4
	protoIDItemSize  = 12
	fieldIDItemSize  = 8
	methodIDItemSize = 8
	classDefItemSize = 32
	mapItemSize      = 12
	tryItemSize      = 8
	codeItemHeader   = 16
)

package jdwp

import (
	"fmt"

	"github.com/chazu/dexvm/vm"
)

// Tag is the one-byte type tag that precedes a value on the wire.
type Tag byte

const (
	TagArray       Tag = '['
	TagByte        Tag = 'B'
	TagChar        Tag = 'C'
	TagObject      Tag = 'L'
	TagFloat       Tag = 'F'
	TagDouble      Tag = 'D'
	TagInt         Tag = 'I'
	TagLong        Tag = 'J'
	TagShort       Tag = 'S'
	TagVoid        Tag = 'V'
	TagBoolean     Tag = 'Z'
	TagString      Tag = 's'
	TagThread      Tag = 't'
	TagThreadGroup Tag = 'g'
	TagClassLoader Tag = 'l'
	TagClassObject Tag = 'c'
)

// idSize is the width of every id on the wire.
const idSize = 8

func (t Tag) String() string {
	return string(rune(t))
}

// TagWidth returns the number of value bytes that follow tag, or -1 for
// an unknown tag.
func TagWidth(t Tag) int {
	switch t {
	case TagVoid:
		return 0
	case TagByte, TagBoolean:
		return 1
	case TagChar, TagShort:
		return 2
	case TagFloat, TagInt:
		return 4
	case TagDouble, TagLong:
		return 8
	case TagArray, TagObject, TagString, TagThread, TagThreadGroup, TagClassLoader, TagClassObject:
		return idSize
	}
	return -1
}

// IsPrimitive reports whether t tags a primitive value.
func (t Tag) IsPrimitive() bool {
	switch t {
	case TagByte, TagChar, TagFloat, TagDouble, TagInt, TagLong, TagShort, TagVoid, TagBoolean:
		return true
	}
	return false
}

// TagFromDescriptor returns the tag for a field or return type
// descriptor. Well-known reference types get their specific tags.
func TagFromDescriptor(desc string) (Tag, error) {
	switch desc {
	case "Ljava/lang/String;":
		return TagString, nil
	case "Ljava/lang/Class;":
		return TagClassObject, nil
	case "Ljava/lang/Thread;":
		return TagThread, nil
	case "Ljava/lang/ThreadGroup;":
		return TagThreadGroup, nil
	case "Ljava/lang/ClassLoader;":
		return TagClassLoader, nil
	}
	if desc == "" {
		return 0, fmt.Errorf("empty descriptor: %w", ErrTypeMismatch)
	}
	switch t := Tag(desc[0]); t {
	case TagArray, TagByte, TagChar, TagObject, TagFloat, TagDouble, TagInt, TagLong, TagShort, TagVoid, TagBoolean:
		return t, nil
	}
	return 0, fmt.Errorf("descriptor %q: %w", desc, ErrTypeMismatch)
}

// RefineTag narrows TagObject by the runtime class of obj, so an Object
// field holding a String is reported as a string. It is applied only to
// values sent to the debugger.
func RefineTag(obj *vm.Object) Tag {
	if obj == nil {
		return TagObject
	}
	switch d := obj.Class.Descriptor; d {
	case "Ljava/lang/String;", "Ljava/lang/Class;", "Ljava/lang/Thread;",
		"Ljava/lang/ThreadGroup;", "Ljava/lang/ClassLoader;":
		t, _ := TagFromDescriptor(d)
		return t
	}
	if obj.IsArray() {
		return TagArray
	}
	return TagObject
}

// objectTag returns the wire tag for a reference of declared type desc.
func objectTag(desc string, obj *vm.Object) Tag {
	t, err := TagFromDescriptor(desc)
	if err != nil || t == TagObject {
		return RefineTag(obj)
	}
	return t
}

// TypeTag classifies a reference type on the wire.
type TypeTag byte

const (
	TypeClass     TypeTag = 1
	TypeInterface TypeTag = 2
	TypeArray     TypeTag = 3
)

func typeTagOf(c *vm.Class) TypeTag {
	switch {
	case c.IsArray():
		return TypeArray
	case c.IsInterface():
		return TypeInterface
	}
	return TypeClass
}

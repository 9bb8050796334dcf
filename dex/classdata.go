package dex

import "fmt"

// EncodedField is one field entry of a class_data_item with its index
// already un-delta'd.
type EncodedField struct {
	FieldIdx    uint32
	AccessFlags uint32
}

// EncodedMethod is one method entry of a class_data_item with its index
// already un-delta'd.
type EncodedMethod struct {
	MethodIdx   uint32
	AccessFlags uint32
	CodeOff     uint32
}

// ClassData is a decoded class_data_item.
type ClassData struct {
	StaticFields   []EncodedField
	InstanceFields []EncodedField
	DirectMethods  []EncodedMethod
	VirtualMethods []EncodedMethod
}

func (cd *ClassData) isEmpty() bool {
	return len(cd.StaticFields) == 0 && len(cd.InstanceFields) == 0 &&
		len(cd.DirectMethods) == 0 && len(cd.VirtualMethods) == 0
}

// readClassData decodes a class_data_item at off. Member indices are stored
// as deltas from the previous entry in the same list.
func readClassData(buf []byte, off int) (*ClassData, int, error) {
	var sizes [4]uint32
	p := off
	for i := range sizes {
		v, next, ok := ReadULEB128(buf, p)
		if !ok {
			return nil, 0, fmt.Errorf("class_data header: %w", ErrBadEncoding)
		}
		sizes[i] = v
		p = next
	}
	// Each entry takes at least two bytes; reject sizes the file cannot hold.
	for _, n := range sizes {
		if uint64(n)*2 > uint64(len(buf)) {
			return nil, 0, fmt.Errorf("class_data list size %d: %w", n, ErrOutOfRange)
		}
	}

	cd := &ClassData{}
	var err error
	if cd.StaticFields, p, err = readFields(buf, p, sizes[0]); err != nil {
		return nil, 0, err
	}
	if cd.InstanceFields, p, err = readFields(buf, p, sizes[1]); err != nil {
		return nil, 0, err
	}
	if cd.DirectMethods, p, err = readMethods(buf, p, sizes[2]); err != nil {
		return nil, 0, err
	}
	if cd.VirtualMethods, p, err = readMethods(buf, p, sizes[3]); err != nil {
		return nil, 0, err
	}
	return cd, p, nil
}

func readFields(buf []byte, p int, n uint32) ([]EncodedField, int, error) {
	fields := make([]EncodedField, 0, n)
	var idx uint32
	for i := uint32(0); i < n; i++ {
		diff, next, ok := ReadULEB128(buf, p)
		if !ok {
			return nil, 0, fmt.Errorf("field_idx_diff: %w", ErrBadEncoding)
		}
		flags, next2, ok := ReadULEB128(buf, next)
		if !ok {
			return nil, 0, fmt.Errorf("field access_flags: %w", ErrBadEncoding)
		}
		idx += diff
		fields = append(fields, EncodedField{FieldIdx: idx, AccessFlags: flags})
		p = next2
	}
	return fields, p, nil
}

func readMethods(buf []byte, p int, n uint32) ([]EncodedMethod, int, error) {
	methods := make([]EncodedMethod, 0, n)
	var idx uint32
	for i := uint32(0); i < n; i++ {
		diff, next, ok := ReadULEB128(buf, p)
		if !ok {
			return nil, 0, fmt.Errorf("method_idx_diff: %w", ErrBadEncoding)
		}
		flags, next2, ok := ReadULEB128(buf, next)
		if !ok {
			return nil, 0, fmt.Errorf("method access_flags: %w", ErrBadEncoding)
		}
		codeOff, next3, ok := ReadULEB128(buf, next2)
		if !ok {
			return nil, 0, fmt.Errorf("method code_off: %w", ErrBadEncoding)
		}
		idx += diff
		methods = append(methods, EncodedMethod{MethodIdx: idx, AccessFlags: flags, CodeOff: codeOff})
		p = next3
	}
	return methods, p, nil
}

package dex

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Descriptor and member-name syntax
// ---------------------------------------------------------------------------

const maxArrayDims = 255

// isValidNameRune reports whether r may appear in a simple name.
func isValidNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '$' || r == '-' || r == '_':
		return true
	case r < 0xa1:
		return false
	case r >= 0x2000 && r <= 0x200f, r >= 0x2028 && r <= 0x202f:
		return false
	case r == 0x1680 || r == 0x205f || r == 0x3000:
		return false
	case r >= 0xd800 && r <= 0xdfff, r >= 0xfff0 && r <= 0xffff:
		return false
	}
	return r != utf8.RuneError
}

func isValidSimpleName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isValidNameRune(r) {
			return false
		}
	}
	return true
}

// IsValidMemberName reports whether s is a valid field or method name.
// Names enclosed in angle brackets, such as <init>, are accepted.
func IsValidMemberName(s string) bool {
	if strings.HasPrefix(s, "<") {
		if !strings.HasSuffix(s, ">") || len(s) < 3 {
			return false
		}
		return isValidSimpleName(s[1 : len(s)-1])
	}
	return isValidSimpleName(s)
}

// IsValidTypeDescriptor reports whether s is a syntactically valid type
// descriptor, including V.
func IsValidTypeDescriptor(s string) bool {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims > maxArrayDims {
		return false
	}
	rest := s[dims:]
	if len(rest) == 0 {
		return false
	}
	switch rest[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return len(rest) == 1
	case 'V':
		return len(rest) == 1 && dims == 0
	case 'L':
		if len(rest) < 3 || rest[len(rest)-1] != ';' {
			return false
		}
		for _, part := range strings.Split(rest[1:len(rest)-1], "/") {
			if !isValidSimpleName(part) {
				return false
			}
		}
		return true
	}
	return false
}

// IsValidClassDescriptor reports whether s names a class (L...;) type.
func IsValidClassDescriptor(s string) bool {
	return strings.HasPrefix(s, "L") && IsValidTypeDescriptor(s)
}

// IsValidReferenceDescriptor reports whether s names a class or array type.
func IsValidReferenceDescriptor(s string) bool {
	return (strings.HasPrefix(s, "L") || strings.HasPrefix(s, "[")) && IsValidTypeDescriptor(s)
}

// IsValidFieldDescriptor reports whether s is a valid field type (any type
// but V).
func IsValidFieldDescriptor(s string) bool {
	return s != "V" && IsValidTypeDescriptor(s)
}

// ShortyChar returns the shorty character for a type descriptor: the
// primitive letter, or L for every reference type.
func ShortyChar(descriptor string) byte {
	if descriptor == "" {
		return 0
	}
	switch descriptor[0] {
	case 'L', '[':
		return 'L'
	}
	return descriptor[0]
}

// ParameterDescriptors splits a method signature of the form
// "(II[Ljava/lang/String;)V" into its parameter descriptors and return
// descriptor.
func ParameterDescriptors(sig string) ([]string, string, bool) {
	if !strings.HasPrefix(sig, "(") {
		return nil, "", false
	}
	end := strings.IndexByte(sig, ')')
	if end < 0 {
		return nil, "", false
	}
	var params []string
	body := sig[1:end]
	for len(body) > 0 {
		i := 0
		for i < len(body) && body[i] == '[' {
			i++
		}
		if i >= len(body) {
			return nil, "", false
		}
		if body[i] == 'L' {
			semi := strings.IndexByte(body[i:], ';')
			if semi < 0 {
				return nil, "", false
			}
			i += semi
		}
		params = append(params, body[:i+1])
		body = body[i+1:]
	}
	return params, sig[end+1:], true
}

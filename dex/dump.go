package dex

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// DumpOptions selects the sections Dump prints.
type DumpOptions struct {
	Header      bool
	Disassemble bool
	// Class restricts output to one class descriptor.
	Class string
}

type flagKind int

const (
	classFlags flagKind = iota
	fieldFlags
	methodFlags
)

var flagNames = []struct {
	bit   uint32
	names [3]string
}{
	{AccPublic, [3]string{"PUBLIC", "PUBLIC", "PUBLIC"}},
	{AccPrivate, [3]string{"PRIVATE", "PRIVATE", "PRIVATE"}},
	{AccProtected, [3]string{"PROTECTED", "PROTECTED", "PROTECTED"}},
	{AccStatic, [3]string{"STATIC", "STATIC", "STATIC"}},
	{AccFinal, [3]string{"FINAL", "FINAL", "FINAL"}},
	{AccSynchronized, [3]string{"", "", "SYNCHRONIZED"}},
	{AccVolatile, [3]string{"", "VOLATILE", "BRIDGE"}},
	{AccTransient, [3]string{"", "TRANSIENT", "VARARGS"}},
	{AccNative, [3]string{"", "", "NATIVE"}},
	{AccInterface, [3]string{"INTERFACE", "", ""}},
	{AccAbstract, [3]string{"ABSTRACT", "", "ABSTRACT"}},
	{AccStrict, [3]string{"", "", "STRICT"}},
	{AccSynthetic, [3]string{"SYNTHETIC", "SYNTHETIC", "SYNTHETIC"}},
	{AccAnnotation, [3]string{"ANNOTATION", "", ""}},
	{AccEnum, [3]string{"ENUM", "ENUM", ""}},
	{AccConstructor, [3]string{"", "", "CONSTRUCTOR"}},
	{AccDeclaredSynchronized, [3]string{"", "", "DECLARED_SYNCHRONIZED"}},
}

// flagsString renders access flags the way dexdump does.
func flagsString(flags uint32, kind flagKind) string {
	var parts []string
	for _, fn := range flagNames {
		if flags&fn.bit != 0 && fn.names[kind] != "" {
			parts = append(parts, fn.names[kind])
		}
	}
	return fmt.Sprintf("0x%04x (%s)", flags, strings.Join(parts, " "))
}

// Dump writes a dexdump-style listing of f to w.
func Dump(w io.Writer, f *File, opts DumpOptions) error {
	d := &dumper{w: w, f: f, opts: opts}
	if opts.Header {
		d.header()
	}
	for i := range f.ClassDefs {
		def := &f.ClassDefs[i]
		if opts.Class != "" && f.ClassDescriptor(def) != opts.Class {
			continue
		}
		if err := d.class(i, def); err != nil {
			return err
		}
	}
	return d.err
}

type dumper struct {
	w    io.Writer
	f    *File
	opts DumpOptions
	err  error
}

func (d *dumper) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumper) header() {
	h := &d.f.Header
	d.printf("DEX file header:\n")
	d.printf("magic               : %q\n", string(h.Magic[:]))
	d.printf("checksum            : %08x\n", h.Checksum)
	d.printf("signature           : %x...%x\n", h.Signature[:2], h.Signature[len(h.Signature)-2:])
	d.printf("file_size           : %d (%s)\n", h.FileSize, humanize.IBytes(uint64(h.FileSize)))
	d.printf("header_size         : %d\n", h.HeaderSize)
	d.printf("link_size           : %d\n", h.LinkSize)
	d.printf("link_off            : %d (0x%06x)\n", h.LinkOff, h.LinkOff)
	d.printf("string_ids_size     : %d\n", h.StringIDsSize)
	d.printf("string_ids_off      : %d (0x%06x)\n", h.StringIDsOff, h.StringIDsOff)
	d.printf("type_ids_size       : %d\n", h.TypeIDsSize)
	d.printf("type_ids_off        : %d (0x%06x)\n", h.TypeIDsOff, h.TypeIDsOff)
	d.printf("proto_ids_size      : %d\n", h.ProtoIDsSize)
	d.printf("proto_ids_off       : %d (0x%06x)\n", h.ProtoIDsOff, h.ProtoIDsOff)
	d.printf("field_ids_size      : %d\n", h.FieldIDsSize)
	d.printf("field_ids_off       : %d (0x%06x)\n", h.FieldIDsOff, h.FieldIDsOff)
	d.printf("method_ids_size     : %d\n", h.MethodIDsSize)
	d.printf("method_ids_off      : %d (0x%06x)\n", h.MethodIDsOff, h.MethodIDsOff)
	d.printf("class_defs_size     : %d\n", h.ClassDefsSize)
	d.printf("class_defs_off      : %d (0x%06x)\n", h.ClassDefsOff, h.ClassDefsOff)
	d.printf("data_size           : %d (%s)\n", h.DataSize, humanize.IBytes(uint64(h.DataSize)))
	d.printf("data_off            : %d (0x%06x)\n", h.DataOff, h.DataOff)
	d.printf("map                 :\n")
	for _, it := range d.f.Map {
		d.printf("  0x%06x %-28s %d\n", it.Offset, ItemTypeName(it.Type), it.Size)
	}
	d.printf("\n")
}

func (d *dumper) class(i int, def *ClassDef) error {
	f := d.f
	d.printf("Class #%d            -\n", i)
	d.printf("  Class descriptor  : '%s'\n", f.ClassDescriptor(def))
	d.printf("  Access flags      : %s\n", flagsString(def.AccessFlags, classFlags))
	d.printf("  Superclass        : '%s'\n", f.Superclass(def))
	d.printf("  Interfaces        -\n")
	for j, iface := range f.Interfaces(def) {
		d.printf("    #%-14d : '%s'\n", j, iface)
	}
	cd, err := f.ClassData(def)
	if err != nil {
		return err
	}
	if cd == nil {
		cd = &ClassData{}
	}
	statics := f.StaticValues(def)
	d.printf("  Static fields     -\n")
	for j, ef := range cd.StaticFields {
		d.field(j, ef)
		if j < len(statics) {
			d.printf("      value         : %s\n", d.value(statics[j]))
		}
	}
	d.printf("  Instance fields   -\n")
	for j, ef := range cd.InstanceFields {
		d.field(j, ef)
	}
	d.printf("  Direct methods    -\n")
	for j, em := range cd.DirectMethods {
		if err := d.method(j, em); err != nil {
			return err
		}
	}
	d.printf("  Virtual methods   -\n")
	for j, em := range cd.VirtualMethods {
		if err := d.method(j, em); err != nil {
			return err
		}
	}
	if src := f.SourceFile(def); src != "" {
		d.printf("  source_file_idx   : %d (%s)\n", def.SourceFileIdx, src)
	}
	d.printf("\n")
	return nil
}

func (d *dumper) field(j int, ef EncodedField) {
	class, name, typ := d.f.FieldRef(ef.FieldIdx)
	d.printf("    #%-14d : (in %s)\n", j, class)
	d.printf("      name          : '%s'\n", name)
	d.printf("      type          : '%s'\n", typ)
	d.printf("      access        : %s\n", flagsString(ef.AccessFlags, fieldFlags))
}

func (d *dumper) value(v EncodedValue) string {
	switch v.Type {
	case ValueString:
		return fmt.Sprintf("%q", d.f.String(uint32(v.Bits)))
	case ValueType:
		return d.f.TypeDescriptor(uint32(v.Bits))
	case ValueNull:
		return "null"
	case ValueBoolean:
		return fmt.Sprint(v.Bool())
	case ValueFloat:
		return fmt.Sprint(v.Float())
	case ValueDouble:
		return fmt.Sprint(v.Double())
	case ValueLong:
		return fmt.Sprint(v.Long())
	}
	return fmt.Sprint(v.Int())
}

func (d *dumper) method(j int, em EncodedMethod) error {
	f := d.f
	class, name, desc := f.MethodRef(em.MethodIdx)
	d.printf("    #%-14d : (in %s)\n", j, class)
	d.printf("      name          : '%s'\n", name)
	d.printf("      type          : '%s'\n", desc)
	d.printf("      access        : %s\n", flagsString(em.AccessFlags, methodFlags))
	code, err := f.Code(em.CodeOff)
	if err != nil {
		return err
	}
	if code == nil {
		d.printf("      code          : (none)\n")
		return nil
	}
	d.printf("      code          -\n")
	d.printf("      registers     : %d\n", code.RegistersSize)
	d.printf("      ins           : %d\n", code.InsSize)
	d.printf("      outs          : %d\n", code.OutsSize)
	d.printf("      insns size    : %d 16-bit code units\n", len(code.Insns))
	if d.opts.Disassemble {
		for pc := 0; pc < len(code.Insns); pc += Width(code.Insns, pc) {
			d.printf("%06x: %s\n", pc, Disassemble(f, code.Insns, pc))
		}
	}
	d.printf("      catches       : %d\n", len(code.Tries))
	for _, t := range code.Tries {
		d.printf("        0x%04x - 0x%04x\n", t.StartAddr, t.StartAddr+uint32(t.InsnCount))
		h := code.HandlerAt(t.HandlerOff)
		if h == nil {
			continue
		}
		for _, e := range h.Entries {
			d.printf("          %s -> 0x%04x\n", f.TypeDescriptor(e.TypeIdx), e.Addr)
		}
		if h.CatchAll {
			d.printf("          <any> -> 0x%04x\n", h.CatchAllPC)
		}
	}
	info := f.DebugInfo(code, em.MethodIdx, em.AccessFlags&AccStatic != 0)
	d.printf("      positions     :\n")
	for _, p := range info.Positions {
		d.printf("        0x%04x line=%d\n", p.Address, p.Line)
	}
	d.printf("      locals        :\n")
	for _, l := range info.Locals {
		d.printf("        0x%04x - 0x%04x reg=%d %s %s %s\n", l.StartAddr, l.EndAddr, l.Reg, l.Name, l.Descriptor, l.Signature)
	}
	return nil
}

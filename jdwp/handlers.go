package jdwp

import (
	"fmt"

	"github.com/chazu/dexvm/vm"
)

// Command sets.
const (
	cmdSetVM            = 1
	cmdSetReferenceType = 2
	cmdSetClassType     = 3
	cmdSetMethod        = 6
	cmdSetObjectRef     = 9
	cmdSetStringRef     = 10
	cmdSetThreadRef     = 11
	cmdSetThreadGroup   = 12
	cmdSetArrayRef      = 13
	cmdSetEventRequest  = 15
	cmdSetStackFrame    = 16
	cmdSetDDM           = 199
)

const (
	cmdVMDispose = 6
	cmdDDMChunk  = 1
)

// Protocol version reported by VirtualMachine.Version.
const (
	jdwpMajor = 1
	jdwpMinor = 6
)

// handler answers one command. It reads arguments from r and writes the
// reply payload to w; an error becomes the reply's error code.
type handler func(b *Bridge, r *Reader, w *Writer) error

type command struct {
	set, cmd byte
}

var handlers = map[command]handler{
	{cmdSetVM, 1}:  vmVersion,
	{cmdSetVM, 2}:  vmClassesBySignature,
	{cmdSetVM, 3}:  vmAllClasses,
	{cmdSetVM, 4}:  vmAllThreads,
	{cmdSetVM, 5}:  vmTopLevelThreadGroups,
	{cmdSetVM, 6}:  vmDispose,
	{cmdSetVM, 7}:  vmIDSizes,
	{cmdSetVM, 8}:  vmSuspend,
	{cmdSetVM, 9}:  vmResume,
	{cmdSetVM, 10}: vmExit,
	{cmdSetVM, 11}: vmCreateString,
	{cmdSetVM, 12}: vmCapabilities,
	{cmdSetVM, 14}: vmDisposeObjects,
	{cmdSetVM, 17}: vmCapabilitiesNew,
	{cmdSetVM, 20}: vmAllClassesWithGeneric,

	{cmdSetReferenceType, 1}:  rtSignature,
	{cmdSetReferenceType, 2}:  rtClassLoader,
	{cmdSetReferenceType, 3}:  rtModifiers,
	{cmdSetReferenceType, 4}:  rtFields(false),
	{cmdSetReferenceType, 5}:  rtMethods(false),
	{cmdSetReferenceType, 6}:  rtGetValues,
	{cmdSetReferenceType, 7}:  rtSourceFile,
	{cmdSetReferenceType, 9}:  rtStatus,
	{cmdSetReferenceType, 10}: rtInterfaces,
	{cmdSetReferenceType, 11}: rtClassObject,
	{cmdSetReferenceType, 13}: rtSignatureWithGeneric,
	{cmdSetReferenceType, 14}: rtFields(true),
	{cmdSetReferenceType, 15}: rtMethods(true),

	{cmdSetClassType, 1}: ctSuperclass,
	{cmdSetClassType, 2}: ctSetValues,
	{cmdSetClassType, 3}: ctInvokeMethod,
	{cmdSetClassType, 4}: ctNewInstance,

	{cmdSetMethod, 1}: mLineTable,
	{cmdSetMethod, 2}: mVariableTable(false),
	{cmdSetMethod, 5}: mVariableTable(true),

	{cmdSetObjectRef, 1}: orReferenceType,
	{cmdSetObjectRef, 2}: orGetValues,
	{cmdSetObjectRef, 3}: orSetValues,
	{cmdSetObjectRef, 6}: orInvokeMethod,
	{cmdSetObjectRef, 7}: orCollectionNoop,
	{cmdSetObjectRef, 8}: orCollectionNoop,
	{cmdSetObjectRef, 9}: orIsCollected,

	{cmdSetStringRef, 1}: srValue,

	{cmdSetThreadRef, 1}:  trName,
	{cmdSetThreadRef, 2}:  trSuspend,
	{cmdSetThreadRef, 3}:  trResume,
	{cmdSetThreadRef, 4}:  trStatus,
	{cmdSetThreadRef, 5}:  trThreadGroup,
	{cmdSetThreadRef, 6}:  trFrames,
	{cmdSetThreadRef, 7}:  trFrameCount,
	{cmdSetThreadRef, 12}: trSuspendCount,

	{cmdSetThreadGroup, 1}: tgName,
	{cmdSetThreadGroup, 2}: tgParent,
	{cmdSetThreadGroup, 3}: tgChildren,

	{cmdSetArrayRef, 1}: arLength,
	{cmdSetArrayRef, 2}: arGetValues,
	{cmdSetArrayRef, 3}: arSetValues,

	{cmdSetEventRequest, 1}: erSet,
	{cmdSetEventRequest, 2}: erClear,
	{cmdSetEventRequest, 3}: erClearAllBreakpoints,

	{cmdSetStackFrame, 1}: sfGetValues,
	{cmdSetStackFrame, 2}: sfSetValues,
	{cmdSetStackFrame, 3}: sfThisObject,

	{cmdSetDDM, cmdDDMChunk}: ddmChunk,
}

// Handle executes one command packet and returns the reply. Failures,
// including malformed arguments and handler panics, are reported as
// error codes.
func (b *Bridge) Handle(p *Packet) (reply *Packet) {
	b.touch()
	reply = &Packet{ID: p.ID, Flags: flagReply}
	h, ok := handlers[command{p.CommandSet, p.Command}]
	if !ok {
		log.Debugf("unsupported command %d/%d", p.CommandSet, p.Command)
		reply.ErrorCode = ErrCodeNotImplemented
		return reply
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("command %d/%d panicked: %v", p.CommandSet, p.Command, r)
			reply.ErrorCode = ErrCodeInternal
			reply.Data = nil
		}
	}()

	r := NewReader(p.Data)
	w := &Writer{}
	err := h(b, r, w)
	// A short read explains whatever the handler made of the zero values.
	if rerr := r.Err(); rerr != nil {
		err = rerr
	}
	if err != nil {
		reply.ErrorCode = CodeOf(err)
		log.Debugf("command %d/%d: %s (code %d)", p.CommandSet, p.Command, err, reply.ErrorCode)
		return reply
	}
	reply.Data = w.Bytes()
	return reply
}

// ---------------------------------------------------------------------------
// VirtualMachine
// ---------------------------------------------------------------------------

func vmVersion(b *Bridge, _ *Reader, w *Writer) error {
	w.Str("dexvm register interpreter")
	w.U4(jdwpMajor)
	w.U4(jdwpMinor)
	w.Str("1.0")
	w.Str("dexvm")
	return nil
}

func writeClasses(w *Writer, classes []ClassInfo, generic bool) {
	w.U4(uint32(len(classes)))
	for _, c := range classes {
		w.U1(byte(c.TypeTag))
		w.ID(c.ID)
		w.Str(c.Signature)
		if generic {
			w.Str("")
		}
		w.U4(c.Status)
	}
}

func vmClassesBySignature(b *Bridge, r *Reader, w *Writer) error {
	sig := r.Str()
	if err := r.Err(); err != nil {
		return err
	}
	matches := b.ClassBySignature(sig)
	w.U4(uint32(len(matches)))
	for _, c := range matches {
		w.U1(byte(c.TypeTag))
		w.ID(c.ID)
		w.U4(c.Status)
	}
	return nil
}

func vmAllClasses(b *Bridge, _ *Reader, w *Writer) error {
	writeClasses(w, b.AllClasses(), false)
	return nil
}

func vmAllClassesWithGeneric(b *Bridge, _ *Reader, w *Writer) error {
	writeClasses(w, b.AllClasses(), true)
	return nil
}

func vmAllThreads(b *Bridge, _ *Reader, w *Writer) error {
	ids := b.AllThreads()
	w.U4(uint32(len(ids)))
	for _, id := range ids {
		w.ID(id)
	}
	return nil
}

// vmDispose is answered normally; the session closes after replying.
func vmDispose(*Bridge, *Reader, *Writer) error {
	return nil
}

func vmTopLevelThreadGroups(b *Bridge, _ *Reader, w *Writer) error {
	ids := b.TopLevelThreadGroups()
	w.U4(uint32(len(ids)))
	for _, id := range ids {
		w.ID(id)
	}
	return nil
}

// vmExit replies before the embedder acts on the request.
func vmExit(b *Bridge, r *Reader, _ *Writer) error {
	code := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	b.Exit(code)
	return nil
}

func vmIDSizes(_ *Bridge, _ *Reader, w *Writer) error {
	for range 5 {
		w.U4(idSize)
	}
	return nil
}

func vmSuspend(b *Bridge, _ *Reader, _ *Writer) error {
	b.SuspendVM()
	return nil
}

func vmResume(b *Bridge, _ *Reader, _ *Writer) error {
	b.ResumeVM()
	return nil
}

func vmCreateString(b *Bridge, r *Reader, w *Writer) error {
	s := r.Str()
	if err := r.Err(); err != nil {
		return err
	}
	id, err := b.CreateString(s)
	if err != nil {
		return err
	}
	w.ID(id)
	return nil
}

func vmCapabilities(_ *Bridge, _ *Reader, w *Writer) error {
	// canWatchFieldModification, canWatchFieldAccess,
	// canGetBytecodes, canGetSyntheticAttribute,
	// canGetOwnedMonitorInfo, canGetCurrentContendedMonitor,
	// canGetMonitorInfo.
	for range 7 {
		w.Bool(false)
	}
	return nil
}

// vmCapabilitiesNew reports 32 flags: the seven above, then redefinition,
// pop-frames, monitor, source-debug-extension and reserved flags. None
// are supported.
func vmCapabilitiesNew(_ *Bridge, _ *Reader, w *Writer) error {
	for range 32 {
		w.Bool(false)
	}
	return nil
}

func vmDisposeObjects(b *Bridge, r *Reader, _ *Writer) error {
	n := r.Int()
	for i := 0; i < n && r.Err() == nil; i++ {
		id := r.ID()
		r.Int() // reference count
		if r.Err() == nil {
			b.DisposeObject(id)
		}
	}
	return r.Err()
}

// ---------------------------------------------------------------------------
// ReferenceType and ClassType
// ---------------------------------------------------------------------------

func rtSignature(b *Bridge, r *Reader, w *Writer) error {
	c, err := b.ClassInfo(r.ID())
	if err != nil {
		return err
	}
	w.Str(c.Signature)
	return nil
}

func rtSignatureWithGeneric(b *Bridge, r *Reader, w *Writer) error {
	if err := rtSignature(b, r, w); err != nil {
		return err
	}
	w.Str("")
	return nil
}

// rtClassLoader reports the boot loader for every class.
func rtClassLoader(b *Bridge, r *Reader, w *Writer) error {
	if _, err := b.ClassInfo(r.ID()); err != nil {
		return err
	}
	w.ID(0)
	return nil
}

func rtModifiers(b *Bridge, r *Reader, w *Writer) error {
	mods, err := b.Modifiers(r.ID())
	if err != nil {
		return err
	}
	w.U4(mods)
	return nil
}

func rtStatus(b *Bridge, r *Reader, w *Writer) error {
	c, err := b.ClassInfo(r.ID())
	if err != nil {
		return err
	}
	w.U4(c.Status)
	return nil
}

func rtFields(generic bool) handler {
	return func(b *Bridge, r *Reader, w *Writer) error {
		fields, err := b.Fields(r.ID())
		if err != nil {
			return err
		}
		w.U4(uint32(len(fields)))
		for _, f := range fields {
			w.ID(f.ID)
			w.Str(f.Name)
			w.Str(f.Signature)
			if generic {
				w.Str("")
			}
			w.U4(f.Modifiers)
		}
		return nil
	}
}

func rtMethods(generic bool) handler {
	return func(b *Bridge, r *Reader, w *Writer) error {
		methods, err := b.Methods(r.ID())
		if err != nil {
			return err
		}
		w.U4(uint32(len(methods)))
		for _, m := range methods {
			w.ID(m.ID)
			w.Str(m.Name)
			w.Str(m.Signature)
			if generic {
				w.Str("")
			}
			w.U4(m.Modifiers)
		}
		return nil
	}
}

func readIDs(r *Reader) []ObjectID {
	n := r.Int()
	if n < 0 || n > r.Remaining()/idSize {
		if r.err == nil {
			r.err = fmt.Errorf("%d ids: %w", n, ErrBadPacket)
		}
		return nil
	}
	ids := make([]ObjectID, n)
	for i := range ids {
		ids[i] = r.ID()
	}
	return ids
}

func writeValues(w *Writer, vals []Value) {
	w.U4(uint32(len(vals)))
	for _, v := range vals {
		w.Value(v)
	}
}

func rtGetValues(b *Bridge, r *Reader, w *Writer) error {
	class := r.ID()
	fields := readIDs(r)
	if err := r.Err(); err != nil {
		return err
	}
	vals, err := b.GetStaticFieldValues(class, fields)
	if err != nil {
		return err
	}
	writeValues(w, vals)
	return nil
}

func rtSourceFile(b *Bridge, r *Reader, w *Writer) error {
	s, err := b.SourceFile(r.ID())
	if err != nil {
		return err
	}
	w.Str(s)
	return nil
}

func rtInterfaces(b *Bridge, r *Reader, w *Writer) error {
	ids, err := b.Interfaces(r.ID())
	if err != nil {
		return err
	}
	w.U4(uint32(len(ids)))
	for _, id := range ids {
		w.ID(id)
	}
	return nil
}

func rtClassObject(b *Bridge, r *Reader, w *Writer) error {
	id, err := b.ClassObject(r.ID())
	if err != nil {
		return err
	}
	w.ID(id)
	return nil
}

func ctSuperclass(b *Bridge, r *Reader, w *Writer) error {
	id, err := b.Superclass(r.ID())
	if err != nil {
		return err
	}
	w.ID(id)
	return nil
}

// readFieldValues reads (fieldID, untagged value) pairs.
func readFieldValues(b *Bridge, r *Reader) ([]ObjectID, []Value, error) {
	n := r.Int()
	if n < 0 || n > r.Remaining()/idSize {
		return nil, nil, fmt.Errorf("%d field values: %w", n, ErrBadPacket)
	}
	ids := make([]ObjectID, n)
	vals := make([]Value, n)
	for i := range ids {
		ids[i] = r.ID()
		tag, err := b.FieldTag(ids[i])
		if err != nil {
			return nil, nil, err
		}
		vals[i] = r.Untagged(tag)
	}
	return ids, vals, r.Err()
}

func ctSetValues(b *Bridge, r *Reader, _ *Writer) error {
	class := r.ID()
	ids, vals, err := readFieldValues(b, r)
	if err != nil {
		return err
	}
	return b.SetStaticFieldValues(class, ids, vals)
}

func readInvoke(r *Reader) (thread, method ObjectID, args []Value, opts vm.InvokeOptions) {
	thread = r.ID()
	method = r.ID()
	n := r.Int()
	for i := 0; i < n && r.Err() == nil; i++ {
		args = append(args, r.Value())
	}
	opts = vm.InvokeOptions(r.U4())
	return
}

func writeInvoke(w *Writer, res InvokeResult) {
	w.Value(res.Value)
	w.Value(res.Exception)
}

func ctInvokeMethod(b *Bridge, r *Reader, w *Writer) error {
	class := r.ID()
	thread, method, args, opts := readInvoke(r)
	if err := r.Err(); err != nil {
		return err
	}
	res, err := b.InvokeMethod(thread, 0, class, method, args, opts)
	if err != nil {
		return err
	}
	writeInvoke(w, res)
	return nil
}

func ctNewInstance(b *Bridge, r *Reader, w *Writer) error {
	class := r.ID()
	thread, method, args, opts := readInvoke(r)
	if err := r.Err(); err != nil {
		return err
	}
	res, err := b.NewInstance(thread, class, method, args, opts)
	if err != nil {
		return err
	}
	writeInvoke(w, res)
	return nil
}

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

func mLineTable(b *Bridge, r *Reader, w *Writer) error {
	class, method := r.ID(), r.ID()
	if err := r.Err(); err != nil {
		return err
	}
	lt, err := b.LineTable(class, method)
	if err != nil {
		return err
	}
	w.U8(uint64(lt.Start))
	w.U8(uint64(lt.End))
	w.U4(uint32(len(lt.Lines)))
	for _, p := range lt.Lines {
		w.U8(uint64(p.Address))
		w.U4(p.Line)
	}
	return nil
}

func mVariableTable(generic bool) handler {
	return func(b *Bridge, r *Reader, w *Writer) error {
		class, method := r.ID(), r.ID()
		if err := r.Err(); err != nil {
			return err
		}
		args, vars, err := b.VariableTable(class, method)
		if err != nil {
			return err
		}
		w.U4(uint32(args))
		w.U4(uint32(len(vars)))
		for _, v := range vars {
			w.U8(v.CodeIndex)
			w.Str(v.Name)
			w.Str(v.Signature)
			if generic {
				w.Str(v.Generic)
			}
			w.U4(v.Length)
			w.U4(uint32(v.Slot))
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// ObjectReference and StringReference
// ---------------------------------------------------------------------------

func orReferenceType(b *Bridge, r *Reader, w *Writer) error {
	tag, id, err := b.ReferenceType(r.ID())
	if err != nil {
		return err
	}
	w.U1(byte(tag))
	w.ID(id)
	return nil
}

func orGetValues(b *Bridge, r *Reader, w *Writer) error {
	obj := r.ID()
	fields := readIDs(r)
	if err := r.Err(); err != nil {
		return err
	}
	vals, err := b.GetFieldValues(obj, fields)
	if err != nil {
		return err
	}
	writeValues(w, vals)
	return nil
}

func orSetValues(b *Bridge, r *Reader, _ *Writer) error {
	obj := r.ID()
	ids, vals, err := readFieldValues(b, r)
	if err != nil {
		return err
	}
	return b.SetFieldValues(obj, ids, vals)
}

func orInvokeMethod(b *Bridge, r *Reader, w *Writer) error {
	obj := r.ID()
	thread := r.ID()
	class := r.ID()
	method := r.ID()
	n := r.Int()
	var args []Value
	for i := 0; i < n && r.Err() == nil; i++ {
		args = append(args, r.Value())
	}
	opts := vm.InvokeOptions(r.U4())
	if err := r.Err(); err != nil {
		return err
	}
	res, err := b.InvokeMethod(thread, obj, class, method, args, opts)
	if err != nil {
		return err
	}
	writeInvoke(w, res)
	return nil
}

// orCollectionNoop answers DisableCollection and EnableCollection.
// Registered objects are already roots.
func orCollectionNoop(b *Bridge, r *Reader, _ *Writer) error {
	_, err := b.object(r.ID())
	return err
}

func orIsCollected(b *Bridge, r *Reader, w *Writer) error {
	gone, err := b.IsCollected(r.ID())
	if err != nil {
		return err
	}
	w.Bool(gone)
	return nil
}

func srValue(b *Bridge, r *Reader, w *Writer) error {
	s, err := b.StringValue(r.ID())
	if err != nil {
		return err
	}
	w.Str(s)
	return nil
}

// ---------------------------------------------------------------------------
// ThreadReference
// ---------------------------------------------------------------------------

func trName(b *Bridge, r *Reader, w *Writer) error {
	name, err := b.ThreadName(r.ID())
	if err != nil {
		return err
	}
	w.Str(name)
	return nil
}

func trSuspend(b *Bridge, r *Reader, _ *Writer) error {
	return b.SuspendThread(r.ID())
}

func trResume(b *Bridge, r *Reader, _ *Writer) error {
	return b.ResumeThread(r.ID())
}

func trStatus(b *Bridge, r *Reader, w *Writer) error {
	status, suspend, err := b.ThreadStatus(r.ID())
	if err != nil {
		return err
	}
	w.U4(status)
	w.U4(suspend)
	return nil
}

func trThreadGroup(b *Bridge, r *Reader, w *Writer) error {
	id, err := b.ThreadGroup(r.ID())
	if err != nil {
		return err
	}
	w.ID(id)
	return nil
}

func trFrames(b *Bridge, r *Reader, w *Writer) error {
	thread := r.ID()
	start := r.Int()
	length := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	frames, err := b.Frames(thread, start, length)
	if err != nil {
		return err
	}
	w.U4(uint32(len(frames)))
	for _, f := range frames {
		w.U8(uint64(f.ID))
		w.Location(f.Location)
	}
	return nil
}

func trFrameCount(b *Bridge, r *Reader, w *Writer) error {
	n, err := b.FrameCount(r.ID())
	if err != nil {
		return err
	}
	w.U4(uint32(n))
	return nil
}

func trSuspendCount(b *Bridge, r *Reader, w *Writer) error {
	n, err := b.SuspendCount(r.ID())
	if err != nil {
		return err
	}
	w.U4(uint32(n))
	return nil
}

// ---------------------------------------------------------------------------
// ThreadGroupReference
// ---------------------------------------------------------------------------

func tgName(b *Bridge, r *Reader, w *Writer) error {
	name, err := b.ThreadGroupName(r.ID())
	if err != nil {
		return err
	}
	w.Str(name)
	return nil
}

func tgParent(b *Bridge, r *Reader, w *Writer) error {
	id, err := b.ThreadGroupParent(r.ID())
	if err != nil {
		return err
	}
	w.ID(id)
	return nil
}

func tgChildren(b *Bridge, r *Reader, w *Writer) error {
	threads, groups, err := b.ThreadGroupChildren(r.ID())
	if err != nil {
		return err
	}
	w.U4(uint32(len(threads)))
	for _, id := range threads {
		w.ID(id)
	}
	w.U4(uint32(len(groups)))
	for _, id := range groups {
		w.ID(id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// ArrayReference
// ---------------------------------------------------------------------------

func arLength(b *Bridge, r *Reader, w *Writer) error {
	n, err := b.ArrayLength(r.ID())
	if err != nil {
		return err
	}
	w.U4(uint32(n))
	return nil
}

// arGetValues writes an array region: primitive elements untagged,
// reference elements tagged.
func arGetValues(b *Bridge, r *Reader, w *Writer) error {
	arr := r.ID()
	first := r.Int()
	count := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	tag, vals, err := b.ArrayValues(arr, first, count)
	if err != nil {
		return err
	}
	w.U1(byte(tag))
	w.U4(uint32(len(vals)))
	for _, v := range vals {
		if tag.IsPrimitive() {
			w.Untagged(v)
		} else {
			w.Value(v)
		}
	}
	return nil
}

func arSetValues(b *Bridge, r *Reader, _ *Writer) error {
	arr := r.ID()
	first := r.Int()
	n := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	tag, err := b.ArrayElementTag(arr)
	if err != nil {
		return err
	}
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("%d values: %w", n, ErrInvalidLength)
	}
	vals := make([]Value, n)
	for i := range vals {
		vals[i] = r.Untagged(tag)
		if !tag.IsPrimitive() {
			// Reference elements are written as plain object ids.
			vals[i].Tag = TagObject
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	return b.SetArrayValues(arr, first, vals)
}

// ---------------------------------------------------------------------------
// EventRequest
// ---------------------------------------------------------------------------

func erSet(b *Bridge, r *Reader, w *Writer) error {
	er := EventRequest{Kind: EventKind(r.U1()), Policy: SuspendPolicy(r.U1())}
	n := r.Int()
	for i := 0; i < n && r.Err() == nil; i++ {
		m, err := ReadModifier(r)
		if err != nil {
			return err
		}
		er.Modifiers = append(er.Modifiers, m)
	}
	if err := r.Err(); err != nil {
		return err
	}
	id, err := b.SetEvent(er)
	if err != nil {
		return err
	}
	w.U4(id)
	return nil
}

func erClear(b *Bridge, r *Reader, _ *Writer) error {
	kind := EventKind(r.U1())
	id := r.U4()
	if err := r.Err(); err != nil {
		return err
	}
	b.ClearEvent(kind, id)
	return nil
}

func erClearAllBreakpoints(b *Bridge, _ *Reader, _ *Writer) error {
	b.ClearAllBreakpoints()
	return nil
}

// ---------------------------------------------------------------------------
// StackFrame
// ---------------------------------------------------------------------------

func sfGetValues(b *Bridge, r *Reader, w *Writer) error {
	thread := r.ID()
	frame := FrameID(r.U8())
	n := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("%d slots: %w", n, ErrBadPacket)
	}
	vals := make([]Value, 0, n)
	for range n {
		slot := r.Int()
		tag := Tag(r.U1())
		if err := r.Err(); err != nil {
			return err
		}
		v, err := b.GetLocal(thread, frame, slot, tag)
		if err != nil {
			return err
		}
		vals = append(vals, v)
	}
	writeValues(w, vals)
	return nil
}

func sfSetValues(b *Bridge, r *Reader, _ *Writer) error {
	thread := r.ID()
	frame := FrameID(r.U8())
	n := r.Int()
	for i := 0; i < n && r.Err() == nil; i++ {
		slot := r.Int()
		v := r.Value()
		if err := r.Err(); err != nil {
			return err
		}
		if err := b.SetLocal(thread, frame, slot, v); err != nil {
			return err
		}
	}
	return r.Err()
}

func sfThisObject(b *Bridge, r *Reader, w *Writer) error {
	thread := r.ID()
	frame := FrameID(r.U8())
	if err := r.Err(); err != nil {
		return err
	}
	v, err := b.ThisObject(thread, frame)
	if err != nil {
		return err
	}
	w.Value(v)
	return nil
}

// ---------------------------------------------------------------------------
// DDM
// ---------------------------------------------------------------------------

func ddmChunk(b *Bridge, r *Reader, w *Writer) error {
	c, err := ParseChunk(r.take(r.Remaining()))
	if err != nil {
		return err
	}
	w.Raw(b.HandleChunk(c).Bytes())
	return nil
}

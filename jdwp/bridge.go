package jdwp

import (
	"cmp"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"

	"github.com/chazu/dexvm/dex"
	"github.com/chazu/dexvm/vm"
)

// ---------------------------------------------------------------------------
// Bridge
// ---------------------------------------------------------------------------

// State is the connection state of a Bridge.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// EventSink delivers a command packet from the VM to the debugger.
type EventSink func(cmdSet, cmd byte, payload []byte) error

// Bridge is the VM side of the debugger connection. Protocol handlers
// call its operations from the session goroutine; the VM calls its
// DebugHooks methods from the thread that caused an event.
type Bridge struct {
	vm   *vm.VM
	reg  *Registry
	self *vm.Thread

	state  atomic.Int32
	events *eventList
	chunks map[ChunkType]ChunkHandler

	sinkMu deadlock.Mutex
	sink   EventSink

	// session is the id of the attached session, reported by HELO.
	session      atomic.Value // string
	lastActivity atomic.Int64

	exit chan int
}

// NewBridge attaches a bridge thread to v and installs the bridge as
// v's debug hooks.
func NewBridge(v *vm.VM) (*Bridge, error) {
	self, err := v.AttachThread("JDWP")
	if err != nil {
		return nil, fmt.Errorf("attach debugger thread: %w", err)
	}
	b := &Bridge{
		vm:     v,
		reg:    NewRegistry(),
		self:   self,
		events: newEventList(),
		exit:   make(chan int, 1),
	}
	b.session.Store("")
	b.chunks = defaultChunkHandlers()
	v.Heap.AddRoots("debugger", b.reg.EnumerateRoots)
	v.SetDebugHooks(b)
	return b, nil
}

// Close uninstalls the bridge and detaches its thread.
func (b *Bridge) Close() {
	if b.State() != StateDisconnected {
		b.Disconnected()
	}
	b.vm.SetDebugHooks(nil)
	b.vm.Heap.RemoveRoots("debugger")
	b.vm.DetachThread(b.self)
}

// VM returns the runtime the bridge serves.
func (b *Bridge) VM() *vm.VM { return b.vm }

// Registry returns the id table.
func (b *Bridge) Registry() *Registry { return b.reg }

// State returns the connection state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// LastActivity returns the time of the last command, or the zero time.
func (b *Bridge) LastActivity() time.Time {
	ns := b.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (b *Bridge) touch() {
	b.lastActivity.Store(time.Now().UnixNano())
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connected records a newly attached debugger. Events are delivered
// through sink once the bridge is active.
func (b *Bridge) Connected(session string, sink EventSink) error {
	if !b.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnected)) {
		return fmt.Errorf("debugger already %s", b.State())
	}
	b.sinkMu.Lock()
	b.sink = sink
	b.sinkMu.Unlock()
	b.session.Store(session)
	b.reg.SetConnected(true)
	b.touch()
	log.Infof("debugger connected (session %s)", session)
	return nil
}

// Activate enables event delivery. It is called when the debugger sets
// its first event request.
func (b *Bridge) Activate() {
	if b.state.CompareAndSwap(int32(StateConnected), int32(StateActive)) {
		log.Debugf("debugger active")
	}
}

// Active reports whether the interpreter should report events: the
// debugger is active and has at least one request set.
func (b *Bridge) Active() bool {
	return b.State() == StateActive && b.events.Len() > 0
}

// Disconnected drops all debugger state: event requests, ids and the
// suspensions the debugger still holds.
func (b *Bridge) Disconnected() {
	old := State(b.state.Swap(int32(StateDisconnected)))
	if old == StateDisconnected {
		return
	}
	b.events.clear()
	b.sinkMu.Lock()
	b.sink = nil
	b.sinkMu.Unlock()
	b.reg.SetConnected(false)
	b.reg.Clear()
	b.vm.Threads.UndoDebugSuspensions()
	log.Infof("debugger disconnected (session %s)", b.session.Load())
	b.session.Store("")
}

// send delivers one command packet to the debugger.
func (b *Bridge) send(cmdSet, cmd byte, payload []byte) error {
	b.sinkMu.Lock()
	defer b.sinkMu.Unlock()
	if b.sink == nil {
		return ErrNotConnected
	}
	return b.sink(cmdSet, cmd, payload)
}

// ---------------------------------------------------------------------------
// Reference types
// ---------------------------------------------------------------------------

// Class status bits.
const (
	ClassStatusVerified    = 1
	ClassStatusPrepared    = 2
	ClassStatusInitialized = 4
	ClassStatusError       = 8
)

func classStatus(c *vm.Class) uint32 {
	switch c.Status() {
	case vm.ClassInitialized:
		return ClassStatusVerified | ClassStatusPrepared | ClassStatusInitialized
	case vm.ClassError:
		return ClassStatusError
	case vm.ClassVerified, vm.ClassInitializing:
		return ClassStatusVerified | ClassStatusPrepared
	}
	return 0
}

// ClassInfo describes a loaded reference type.
type ClassInfo struct {
	TypeTag   TypeTag
	ID        ObjectID
	Signature string
	Status    uint32
}

func (b *Bridge) classInfo(c *vm.Class) ClassInfo {
	return ClassInfo{
		TypeTag:   typeTagOf(c),
		ID:        b.reg.Register(c),
		Signature: c.Descriptor,
		Status:    classStatus(c),
	}
}

// AllClasses lists every loaded reference type. Primitive classes are
// left out.
func (b *Bridge) AllClasses() []ClassInfo {
	var out []ClassInfo
	for _, c := range b.vm.Classes.Classes() {
		if c.Primitive {
			continue
		}
		out = append(out, b.classInfo(c))
	}
	return out
}

// ClassBySignature returns the loaded classes with descriptor sig. It
// does not load anything.
func (b *Bridge) ClassBySignature(sig string) []ClassInfo {
	c := b.vm.Classes.Lookup(sig)
	if c == nil || c.Primitive {
		return nil
	}
	return []ClassInfo{b.classInfo(c)}
}

// ClassInfo returns the summary of one reference type.
func (b *Bridge) ClassInfo(id ObjectID) (ClassInfo, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return ClassInfo{}, err
	}
	return b.classInfo(c), nil
}

// Modifiers returns the access flags of a reference type.
func (b *Bridge) Modifiers(id ObjectID) (uint32, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return 0, err
	}
	return c.AccessFlags & 0xffff, nil
}

// Superclass returns the superclass id, or 0 for java.lang.Object and
// interfaces.
func (b *Bridge) Superclass(id ObjectID) (ObjectID, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return 0, err
	}
	if c.IsInterface() {
		return 0, nil
	}
	return b.reg.Register(c.Super), nil
}

// Interfaces returns the directly implemented interfaces.
func (b *Bridge) Interfaces(id ObjectID) ([]ObjectID, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return nil, err
	}
	out := make([]ObjectID, len(c.Interfaces))
	for i, iface := range c.Interfaces {
		out[i] = b.reg.Register(iface)
	}
	return out, nil
}

// SourceFile returns the source file name recorded for a class.
func (b *Bridge) SourceFile(id ObjectID) (string, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return "", err
	}
	if c.SourceFile == "" {
		return "", fmt.Errorf("%s: %w", c, ErrAbsentInfo)
	}
	return c.SourceFile, nil
}

// ClassObject returns the java.lang.Class instance of a reference type.
func (b *Bridge) ClassObject(id ObjectID) (ObjectID, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return 0, err
	}
	o, err := b.vm.ClassObject(b.self, c)
	if err != nil {
		return 0, err
	}
	oid := b.reg.Register(o)
	b.self.ReleasePending()
	return oid, nil
}

// ReferenceType returns the runtime class of an object.
func (b *Bridge) ReferenceType(id ObjectID) (TypeTag, ObjectID, error) {
	o, err := b.object(id)
	if err != nil {
		return 0, 0, err
	}
	return typeTagOf(o.Class), b.reg.Register(o.Class), nil
}

// FieldInfo describes a declared field.
type FieldInfo struct {
	ID        ObjectID
	Name      string
	Signature string
	Modifiers uint32
}

// Fields lists the fields a class declares, static fields first.
func (b *Bridge) Fields(id ObjectID) ([]FieldInfo, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return nil, err
	}
	var out []FieldInfo
	for _, list := range [][]*vm.Field{c.StaticFields, c.InstanceFields} {
		for _, f := range list {
			out = append(out, FieldInfo{
				ID:        b.reg.Register(f),
				Name:      f.Name,
				Signature: f.Type,
				Modifiers: f.AccessFlags & 0xffff,
			})
		}
	}
	return out, nil
}

// MethodInfo describes a declared method.
type MethodInfo struct {
	ID        ObjectID
	Name      string
	Signature string
	Modifiers uint32
}

// Methods lists the methods a class declares, direct methods first.
func (b *Bridge) Methods(id ObjectID) ([]MethodInfo, error) {
	c, err := b.reg.Class(id)
	if err != nil {
		return nil, err
	}
	var out []MethodInfo
	for _, list := range [][]*vm.Method{c.DirectMethods, c.VirtualMethods} {
		for _, m := range list {
			out = append(out, MethodInfo{
				ID:        b.reg.Register(m),
				Name:      m.Name,
				Signature: m.Descriptor,
				Modifiers: m.AccessFlags & 0xffff,
			})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func (b *Bridge) object(id ObjectID) (*vm.Object, error) {
	o, err := b.reg.Object(id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("null reference: %w", ErrInvalidObject)
	}
	return o, nil
}

// toWire converts a VM value of declared type desc to a tagged value.
// References are registered and their tags refined.
func (b *Bridge) toWire(desc string, v vm.Value) Value {
	if isRefDesc(desc) {
		return Value{Tag: objectTag(desc, v.Ref), Bits: uint64(b.reg.Register(v.Ref))}
	}
	t, err := TagFromDescriptor(desc)
	if err != nil {
		return Value{Tag: TagVoid}
	}
	return Value{Tag: t, Bits: v.Bits}
}

// fromWire converts a debugger value to a VM value of declared type
// desc. Narrow integers are sign or zero extended as the interpreter
// keeps them in registers.
func (b *Bridge) fromWire(desc string, v Value) (vm.Value, error) {
	if isRefDesc(desc) {
		if v.Tag.IsPrimitive() {
			return vm.Value{}, fmt.Errorf("%s value for %s: %w", v.Tag, desc, ErrTypeMismatch)
		}
		o, err := b.reg.Object(v.ID())
		if err != nil {
			return vm.Value{}, err
		}
		if o != nil {
			if target := b.vm.Classes.Lookup(desc); target != nil && !o.Class.IsAssignableTo(target) {
				return vm.Value{}, fmt.Errorf("%s is not a %s: %w", o.Class, desc, ErrTypeMismatch)
			}
		}
		return vm.Value{Ref: o}, nil
	}
	if Tag(desc[0]) != v.Tag {
		return vm.Value{}, fmt.Errorf("%s value for %s: %w", v.Tag, desc, ErrTypeMismatch)
	}
	switch v.Tag {
	case TagByte:
		return vm.IntValue(int32(int8(v.Bits))), nil
	case TagShort:
		return vm.IntValue(int32(int16(v.Bits))), nil
	case TagChar:
		return vm.Value{Bits: v.Bits & 0xffff}, nil
	case TagBoolean:
		return vm.Value{Bits: v.Bits & 1}, nil
	case TagInt, TagFloat:
		return vm.Value{Bits: v.Bits & 0xffffffff}, nil
	}
	return vm.Value{Bits: v.Bits}, nil
}

func isRefDesc(desc string) bool {
	return desc != "" && (desc[0] == 'L' || desc[0] == '[')
}

// FieldTag returns the wire tag of a field's declared type.
func (b *Bridge) FieldTag(id ObjectID) (Tag, error) {
	f, err := b.reg.Field(id)
	if err != nil {
		return 0, err
	}
	return TagFromDescriptor(f.Type)
}

func (b *Bridge) instanceField(o *vm.Object, id ObjectID) (*vm.Field, error) {
	f, err := b.reg.Field(id)
	if err != nil {
		return nil, err
	}
	if !f.IsStatic() && !o.Class.IsSubclassOf(f.Class) {
		return nil, fmt.Errorf("%s has no field %s: %w", o.Class, f.Name, ErrInvalidField)
	}
	return f, nil
}

// GetFieldValues reads fields of an object. Static fields may be mixed
// in and are read from their class.
func (b *Bridge) GetFieldValues(objID ObjectID, fields []ObjectID) ([]Value, error) {
	o, err := b.object(objID)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(fields))
	for i, id := range fields {
		f, err := b.instanceField(o, id)
		if err != nil {
			return nil, err
		}
		var v vm.Value
		if f.IsStatic() {
			v = f.Class.GetStatic(f)
		} else {
			v = o.GetField(f)
		}
		out[i] = b.toWire(f.Type, v)
	}
	return out, nil
}

// SetFieldValues writes fields of an object. values are in field order.
func (b *Bridge) SetFieldValues(objID ObjectID, fields []ObjectID, values []Value) error {
	o, err := b.object(objID)
	if err != nil {
		return err
	}
	if len(fields) != len(values) {
		return fmt.Errorf("%d fields, %d values: %w", len(fields), len(values), ErrBadPacket)
	}
	for i, id := range fields {
		f, err := b.instanceField(o, id)
		if err != nil {
			return err
		}
		v, err := b.fromWire(f.Type, values[i])
		if err != nil {
			return err
		}
		if f.IsStatic() {
			f.Class.SetStatic(f, v)
		} else {
			o.SetField(f, v)
		}
	}
	return nil
}

func (b *Bridge) staticField(c *vm.Class, id ObjectID) (*vm.Field, error) {
	f, err := b.reg.Field(id)
	if err != nil {
		return nil, err
	}
	if !f.IsStatic() || !c.IsSubclassOf(f.Class) && !c.Implements(f.Class) {
		return nil, fmt.Errorf("%s has no static field %s: %w", c, f.Name, ErrInvalidField)
	}
	return f, nil
}

// GetStaticFieldValues reads static fields visible from a class.
func (b *Bridge) GetStaticFieldValues(classID ObjectID, fields []ObjectID) ([]Value, error) {
	c, err := b.reg.Class(classID)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(fields))
	for i, id := range fields {
		f, err := b.staticField(c, id)
		if err != nil {
			return nil, err
		}
		out[i] = b.toWire(f.Type, f.Class.GetStatic(f))
	}
	return out, nil
}

// SetStaticFieldValues writes static fields of a class.
func (b *Bridge) SetStaticFieldValues(classID ObjectID, fields []ObjectID, values []Value) error {
	c, err := b.reg.Class(classID)
	if err != nil {
		return err
	}
	if len(fields) != len(values) {
		return fmt.Errorf("%d fields, %d values: %w", len(fields), len(values), ErrBadPacket)
	}
	for i, id := range fields {
		f, err := b.staticField(c, id)
		if err != nil {
			return err
		}
		v, err := b.fromWire(f.Type, values[i])
		if err != nil {
			return err
		}
		f.Class.SetStatic(f, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// thread resolves a thread id, which is the id of its peer object.
func (b *Bridge) thread(id ObjectID) (*vm.Thread, error) {
	o, err := b.reg.Object(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidThread, err)
	}
	if o == nil {
		return nil, fmt.Errorf("null thread: %w", ErrInvalidThread)
	}
	t := b.vm.Threads.FindByPeer(o)
	if t == nil {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidThread)
	}
	return t, nil
}

func (b *Bridge) threadID(t *vm.Thread) ObjectID {
	if t == nil {
		return 0
	}
	return b.reg.Register(t.Peer)
}

// AllThreads lists live threads other than the bridge's own, in id
// order.
func (b *Bridge) AllThreads() []ObjectID {
	threads := b.vm.Threads.Snapshot()
	slices.SortFunc(threads, func(x, y *vm.Thread) int { return cmp.Compare(x.ID, y.ID) })
	var out []ObjectID
	for _, t := range threads {
		if t == b.self || t.Peer == nil || t.Status() == vm.ThreadZombie {
			continue
		}
		out = append(out, b.threadID(t))
	}
	return out
}

// ThreadName returns a thread's name.
func (b *Bridge) ThreadName(id ObjectID) (string, error) {
	t, err := b.thread(id)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// Thread status values.
const (
	ThreadStatusZombie   = 0
	ThreadStatusRunning  = 1
	ThreadStatusSleeping = 2
	ThreadStatusMonitor  = 3
	ThreadStatusWait     = 4

	SuspendStatusSuspended = 1
)

func threadStatus(s vm.ThreadStatus) uint32 {
	switch s {
	case vm.ThreadRunning, vm.ThreadNative, vm.ThreadSuspended:
		return ThreadStatusRunning
	case vm.ThreadTimedWait:
		return ThreadStatusSleeping
	case vm.ThreadMonitor:
		return ThreadStatusMonitor
	case vm.ThreadWait, vm.ThreadVMWait:
		return ThreadStatusWait
	}
	return ThreadStatusZombie
}

// ThreadStatus returns the thread status and suspend status of a
// thread.
func (b *Bridge) ThreadStatus(id ObjectID) (status, suspend uint32, err error) {
	t, err := b.thread(id)
	if err != nil {
		return 0, 0, err
	}
	status = threadStatus(t.Status())
	if t.SuspendCount() > 0 {
		suspend = SuspendStatusSuspended
	}
	return status, suspend, nil
}

// SuspendCount returns a thread's total suspend count.
func (b *Bridge) SuspendCount(id ObjectID) (int, error) {
	t, err := b.thread(id)
	if err != nil {
		return 0, err
	}
	return t.SuspendCount(), nil
}

// SuspendThread suspends one thread for the debugger and waits until
// it stops.
func (b *Bridge) SuspendThread(id ObjectID) error {
	t, err := b.thread(id)
	if err != nil {
		return err
	}
	if t == b.self {
		return fmt.Errorf("cannot suspend the debugger thread: %w", ErrInvalidThread)
	}
	b.vm.Threads.SuspendDebug(t)
	b.vm.Threads.WaitUntilSuspended(t)
	return nil
}

// ResumeThread undoes one debugger suspension. Resuming a thread that is
// not suspended does nothing.
func (b *Bridge) ResumeThread(id ObjectID) error {
	t, err := b.thread(id)
	if err != nil {
		return err
	}
	if err := b.vm.Threads.ResumeDebug(t); err != nil && !errors.Is(err, vm.ErrNotSuspended) {
		return err
	}
	return nil
}

// SuspendVM suspends every thread except the bridge's own.
func (b *Bridge) SuspendVM() {
	b.vm.Threads.SuspendAllDebug(b.self)
}

// ResumeVM undoes one SuspendVM.
func (b *Bridge) ResumeVM() {
	b.vm.Threads.ResumeAllDebug(b.self)
}

// Exit asks the embedder to terminate the process with code. Only the
// first request is kept.
func (b *Bridge) Exit(code int) {
	log.Noticef("debugger requested exit with status %d", code)
	select {
	case b.exit <- code:
	default:
	}
}

// ExitRequests delivers the status passed to Exit.
func (b *Bridge) ExitRequests() <-chan int {
	return b.exit
}

// ---------------------------------------------------------------------------
// Thread groups
// ---------------------------------------------------------------------------

func (b *Bridge) threadGroup(id ObjectID) (*vm.Object, error) {
	o, err := b.reg.Object(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGroup, err)
	}
	if !b.vm.IsThreadGroup(o) {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidGroup)
	}
	return o, nil
}

// TopLevelThreadGroups lists the groups without a parent.
func (b *Bridge) TopLevelThreadGroups() []ObjectID {
	var out []ObjectID
	for _, g := range b.vm.TopLevelThreadGroups() {
		out = append(out, b.reg.Register(g))
	}
	return out
}

// ThreadGroup returns the group a thread belongs to.
func (b *Bridge) ThreadGroup(threadID ObjectID) (ObjectID, error) {
	t, err := b.thread(threadID)
	if err != nil {
		return 0, err
	}
	return b.reg.Register(t.ThreadGroup()), nil
}

// ThreadGroupName returns a group's name.
func (b *Bridge) ThreadGroupName(id ObjectID) (string, error) {
	g, err := b.threadGroup(id)
	if err != nil {
		return "", err
	}
	return b.vm.ThreadGroupName(g), nil
}

// ThreadGroupParent returns a group's parent, or 0 for a top-level group.
func (b *Bridge) ThreadGroupParent(id ObjectID) (ObjectID, error) {
	g, err := b.threadGroup(id)
	if err != nil {
		return 0, err
	}
	p := b.vm.ThreadGroupParent(g)
	if p == nil {
		return 0, nil
	}
	return b.reg.Register(p), nil
}

// ThreadGroupChildren lists the threads and subgroups directly in a
// group. The bridge's own thread is left out, as in AllThreads.
func (b *Bridge) ThreadGroupChildren(id ObjectID) (threads, groups []ObjectID, err error) {
	g, err := b.threadGroup(id)
	if err != nil {
		return nil, nil, err
	}
	ts, gs := b.vm.ThreadGroupChildren(g)
	for _, t := range ts {
		if t != b.self {
			threads = append(threads, b.threadID(t))
		}
	}
	for _, sub := range gs {
		groups = append(groups, b.reg.Register(sub))
	}
	return threads, groups, nil
}

// ---------------------------------------------------------------------------
// Strings, arrays and objects
// ---------------------------------------------------------------------------

// CreateString allocates a string in the VM and returns its id.
func (b *Bridge) CreateString(s string) (ObjectID, error) {
	o, err := b.vm.NewString(b.self, s)
	if err != nil {
		return 0, err
	}
	id := b.reg.Register(o)
	b.self.ReleasePending()
	return id, nil
}

// StringValue returns the contents of a string object.
func (b *Bridge) StringValue(id ObjectID) (string, error) {
	o, err := b.object(id)
	if err != nil {
		return "", err
	}
	if o.Class.Descriptor != "Ljava/lang/String;" {
		return "", fmt.Errorf("%s: %w", o.Class, ErrInvalidString)
	}
	return o.Str, nil
}

func (b *Bridge) array(id ObjectID) (*vm.Object, error) {
	o, err := b.object(id)
	if err != nil {
		return nil, err
	}
	if !o.IsArray() {
		return nil, fmt.Errorf("%s: %w", o.Class, ErrInvalidArray)
	}
	return o, nil
}

// ArrayLength returns the element count of an array.
func (b *Bridge) ArrayLength(id ObjectID) (int, error) {
	o, err := b.array(id)
	if err != nil {
		return 0, err
	}
	return o.Length, nil
}

// ArrayElementTag returns the tag of an array's component type.
func (b *Bridge) ArrayElementTag(id ObjectID) (Tag, error) {
	o, err := b.array(id)
	if err != nil {
		return 0, err
	}
	return TagFromDescriptor(o.ElementType())
}

func checkRegion(o *vm.Object, first, count int) error {
	if first < 0 || count < 0 || first > o.Length || count > o.Length-first {
		return fmt.Errorf("region [%d,+%d) of length %d: %w", first, count, o.Length, ErrInvalidIndex)
	}
	return nil
}

// ArrayValues reads count elements starting at first. Elements of
// reference arrays carry refined tags.
func (b *Bridge) ArrayValues(id ObjectID, first, count int) (Tag, []Value, error) {
	o, err := b.array(id)
	if err != nil {
		return 0, nil, err
	}
	if err := checkRegion(o, first, count); err != nil {
		return 0, nil, err
	}
	elem := o.ElementType()
	tag, err := TagFromDescriptor(elem)
	if err != nil {
		return 0, nil, err
	}
	out := make([]Value, count)
	for i := range out {
		out[i] = b.toWire(elem, o.Get(first+i))
	}
	return tag, out, nil
}

// SetArrayValues stores values starting at first.
func (b *Bridge) SetArrayValues(id ObjectID, first int, values []Value) error {
	o, err := b.array(id)
	if err != nil {
		return err
	}
	if err := checkRegion(o, first, len(values)); err != nil {
		return err
	}
	elem := o.ElementType()
	conv := make([]vm.Value, len(values))
	for i, v := range values {
		if conv[i], err = b.fromWire(elem, v); err != nil {
			return err
		}
	}
	for i, v := range conv {
		o.Set(first+i, v)
	}
	return nil
}

// IsCollected reports whether the object behind id is gone. A
// registered object is a root, so only released ids report true.
func (b *Bridge) IsCollected(id ObjectID) (bool, error) {
	o, err := b.reg.Object(id)
	if err != nil {
		if errors.Is(err, ErrInvalidObject) {
			return true, nil
		}
		return false, err
	}
	return o == nil || !b.vm.Heap.Contains(o), nil
}

// DisposeObject releases an id the debugger no longer needs.
func (b *Bridge) DisposeObject(id ObjectID) {
	b.reg.Release(id)
}

// ---------------------------------------------------------------------------
// Method metadata
// ---------------------------------------------------------------------------

func (b *Bridge) method(classID, methodID ObjectID) (*vm.Method, error) {
	m, err := b.reg.Method(methodID)
	if err != nil {
		return nil, err
	}
	if classID != 0 {
		c, err := b.reg.Class(classID)
		if err != nil {
			return nil, err
		}
		if !c.IsSubclassOf(m.Class) && !c.Implements(m.Class) {
			return nil, fmt.Errorf("%s not in %s: %w", m.Key(), c, ErrInvalidMethod)
		}
	}
	return m, nil
}

// LineTable is a method's code range and line mapping.
type LineTable struct {
	Start, End int64
	Lines      []dex.Position
}

// LineTable returns the line table of a method. Native and abstract
// methods report -1 for both ends.
func (b *Bridge) LineTable(classID, methodID ObjectID) (LineTable, error) {
	m, err := b.method(classID, methodID)
	if err != nil {
		return LineTable{}, err
	}
	if m.Code == nil {
		return LineTable{Start: -1, End: -1}, nil
	}
	return LineTable{
		Start: 0,
		End:   int64(len(m.Code.Insns)) - 1,
		Lines: m.DebugInfo().Positions,
	}, nil
}

// Variable is one local variable entry with a debugger slot.
type Variable struct {
	CodeIndex uint64
	Name      string
	Signature string
	Generic   string
	Length    uint32
	Slot      int
}

// VariableTable returns the argument word count and locals of a method,
// with slots remapped so "this" appears in slot 0.
func (b *Bridge) VariableTable(classID, methodID ObjectID) (int, []Variable, error) {
	m, err := b.method(classID, methodID)
	if err != nil {
		return 0, nil, err
	}
	if m.Code == nil {
		return 0, nil, fmt.Errorf("%s has no code: %w", m.Key(), ErrAbsentInfo)
	}
	var out []Variable
	for _, l := range m.DebugInfo().Locals {
		out = append(out, Variable{
			CodeIndex: uint64(l.StartAddr),
			Name:      l.Name,
			Signature: l.Descriptor,
			Generic:   l.Signature,
			Length:    l.EndAddr - l.StartAddr,
			Slot:      tweakSlot(m, int(l.Reg)),
		})
	}
	return int(m.Code.InsSize), out, nil
}

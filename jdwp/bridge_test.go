package jdwp

import (
	"errors"
	"testing"
)

func TestBridgeLifecycle(t *testing.T) {
	v := newTestVM(t, targetClass())
	b, err := NewBridge(v)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if b.State() != StateDisconnected || b.Active() {
		t.Fatalf("new bridge state %s", b.State())
	}
	if err := b.send(cmdSetEvent, cmdComposite, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send while disconnected = %v", err)
	}

	rec := newRecorder()
	if err := b.Connected("s1", rec.sink); err != nil {
		t.Fatal(err)
	}
	if err := b.Connected("s2", rec.sink); err == nil {
		t.Error("second Connected succeeded")
	}
	if b.State() != StateConnected || b.Active() {
		t.Errorf("state %s, active %t", b.State(), b.Active())
	}

	if _, err := b.SetEvent(EventRequest{Kind: EventThreadStart, Policy: SuspendNone}); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateActive || !b.Active() {
		t.Errorf("after SetEvent: state %s, active %t", b.State(), b.Active())
	}

	b.Disconnected()
	if b.State() != StateDisconnected || b.Active() {
		t.Errorf("after Disconnected: state %s", b.State())
	}
	if b.Registry().Register(v.MainThread().Peer) != 0 {
		t.Error("registry accepts ids after disconnect")
	}
	b.Disconnected() // idempotent
}

func TestClasses(t *testing.T) {
	v, b, _ := newTestBridge(t)
	id := classID(t, v, b, "LTarget;")

	found := false
	for _, c := range b.AllClasses() {
		if c.Signature == "I" {
			t.Error("AllClasses lists a primitive class")
		}
		if c.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("AllClasses misses LTarget;")
	}
	if got := b.ClassBySignature("LNope;"); got != nil {
		t.Errorf("ClassBySignature(LNope;) = %v", got)
	}

	info, err := b.ClassInfo(id)
	if err != nil {
		t.Fatal(err)
	}
	if info.TypeTag != TypeClass || info.Signature != "LTarget;" || info.Status&ClassStatusVerified == 0 {
		t.Errorf("ClassInfo = %+v", info)
	}

	src, err := b.SourceFile(id)
	if err != nil || src != "Target.java" {
		t.Errorf("SourceFile = %q, %v", src, err)
	}
	super, err := b.Superclass(id)
	if err != nil {
		t.Fatal(err)
	}
	if sc, _ := b.ClassInfo(super); sc.Signature != descObject {
		t.Errorf("superclass = %q", sc.Signature)
	}
	objID := classID(t, v, b, descObject)
	if _, err := b.SourceFile(objID); err != nil && CodeOf(err) != ErrCodeAbsentInfo {
		t.Errorf("SourceFile(Object) code %d", CodeOf(err))
	}

	methods, err := b.Methods(id)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, m := range methods {
		names = append(names, m.Name)
	}
	// Direct methods come back in method_idx order, then virtual methods.
	want := []string{"<init>", "add", "fail", "work", "get"}
	if len(names) != len(want) {
		t.Fatalf("methods = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("method %d = %s, want %s", i, names[i], want[i])
		}
	}

	fields, err := b.Fields(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 || fields[0].Name != "count" {
		t.Errorf("fields = %+v", fields)
	}

	cls, err := b.ClassObject(id)
	if err != nil || cls == 0 {
		t.Fatalf("ClassObject = %d, %v", cls, err)
	}
	tag, ref, err := b.ReferenceType(cls)
	if err != nil || tag != TypeClass {
		t.Fatalf("ReferenceType = %d, %d, %v", tag, ref, err)
	}
	if rc, _ := b.ClassInfo(ref); rc.Signature != "Ljava/lang/Class;" {
		t.Errorf("class object type %q", rc.Signature)
	}

	if _, err := b.ClassInfo(cls); CodeOf(err) != ErrCodeInvalidClass {
		t.Errorf("ClassInfo(object) code %d", CodeOf(err))
	}
}

func TestFieldValues(t *testing.T) {
	v, b, _ := newTestBridge(t)
	cid := classID(t, v, b, "LTarget;")
	count := fieldID(t, b, cid, "count")
	label := fieldID(t, b, cid, "label")
	total := fieldID(t, b, cid, "total")

	if err := b.SetStaticFieldValues(cid, []ObjectID{count}, []Value{intVal(41)}); err != nil {
		t.Fatal(err)
	}
	vals, err := b.GetStaticFieldValues(cid, []ObjectID{count})
	if err != nil || vals[0] != intVal(41) {
		t.Errorf("GetStaticFieldValues = %v, %v", vals, err)
	}
	if err := b.SetStaticFieldValues(cid, []ObjectID{count}, []Value{{Tag: TagLong, Bits: 1}}); CodeOf(err) != ErrCodeTypeMismatch {
		t.Errorf("long into int: code %d", CodeOf(err))
	}
	if _, err := b.GetStaticFieldValues(cid, []ObjectID{label}); CodeOf(err) != ErrCodeInvalidField {
		t.Errorf("instance field as static: code %d", CodeOf(err))
	}

	th := v.MainThread()
	obj, err := v.Heap.Alloc(th, mustClass(t, v, "LTarget;"))
	if err != nil {
		t.Fatal(err)
	}
	oid := b.Registry().Register(obj)
	th.ReleasePending()
	sid, err := b.CreateString("hi")
	if err != nil {
		t.Fatal(err)
	}

	err = b.SetFieldValues(oid, []ObjectID{label, total},
		[]Value{{Tag: TagString, Bits: uint64(sid)}, {Tag: TagLong, Bits: 1 << 33}})
	if err != nil {
		t.Fatal(err)
	}
	vals, err = b.GetFieldValues(oid, []ObjectID{label, total, count})
	if err != nil {
		t.Fatal(err)
	}
	if vals[0].Tag != TagString || vals[0].ID() != sid {
		t.Errorf("label = %+v", vals[0])
	}
	if vals[1] != (Value{Tag: TagLong, Bits: 1 << 33}) {
		t.Errorf("total = %+v", vals[1])
	}
	if vals[2] != intVal(41) {
		t.Errorf("static through object = %+v", vals[2])
	}

	// A Class object is not a String.
	clsObj, _ := b.ClassObject(cid)
	err = b.SetFieldValues(oid, []ObjectID{label}, []Value{{Tag: TagObject, Bits: uint64(clsObj)}})
	if CodeOf(err) != ErrCodeTypeMismatch {
		t.Errorf("class into string field: code %d, %v", CodeOf(err), err)
	}
	if _, err := b.GetFieldValues(0, []ObjectID{label}); CodeOf(err) != ErrCodeInvalidObject {
		t.Errorf("null object: code %d", CodeOf(err))
	}
}

func TestStringsAndArrays(t *testing.T) {
	v, b, _ := newTestBridge(t)

	sid, err := b.CreateString("héllo")
	if err != nil {
		t.Fatal(err)
	}
	if s, err := b.StringValue(sid); err != nil || s != "héllo" {
		t.Errorf("StringValue = %q, %v", s, err)
	}

	th := v.MainThread()
	arr, err := v.Heap.AllocArray(th, mustClass(t, v, "[I"), 4)
	if err != nil {
		t.Fatal(err)
	}
	aid := b.Registry().Register(arr)
	th.ReleasePending()

	if _, err := b.StringValue(aid); CodeOf(err) != ErrCodeInvalidString {
		t.Errorf("StringValue(array) code %d", CodeOf(err))
	}
	if _, err := b.ArrayLength(sid); CodeOf(err) != ErrCodeInvalidArray {
		t.Errorf("ArrayLength(string) code %d", CodeOf(err))
	}
	if n, err := b.ArrayLength(aid); err != nil || n != 4 {
		t.Errorf("ArrayLength = %d, %v", n, err)
	}
	if tag, err := b.ArrayElementTag(aid); err != nil || tag != TagInt {
		t.Errorf("ArrayElementTag = %s, %v", tag, err)
	}

	if err := b.SetArrayValues(aid, 1, []Value{intVal(-1), intVal(9)}); err != nil {
		t.Fatal(err)
	}
	tag, vals, err := b.ArrayValues(aid, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagInt {
		t.Errorf("tag = %s", tag)
	}
	want := []int32{0, -1, 9, 0}
	for i, w := range want {
		if int32(uint32(vals[i].Bits)) != w {
			t.Errorf("element %d = %d, want %d", i, int32(uint32(vals[i].Bits)), w)
		}
	}
	if got := arr.Ints(); got[1] != -1 || got[2] != 9 {
		t.Errorf("array contents %v", got)
	}

	for _, r := range []struct{ first, count int }{{-1, 1}, {3, 2}, {5, 0}, {0, -1}} {
		if _, _, err := b.ArrayValues(aid, r.first, r.count); CodeOf(err) != ErrCodeInvalidIndex {
			t.Errorf("ArrayValues(%d, %d) code %d", r.first, r.count, CodeOf(err))
		}
	}
	if err := b.SetArrayValues(aid, 0, []Value{{Tag: TagShort, Bits: 1}}); CodeOf(err) != ErrCodeTypeMismatch {
		t.Errorf("short into int[]: code %d", CodeOf(err))
	}

	objs, err := v.Heap.AllocArray(th, mustClass(t, v, "[Ljava/lang/Object;"), 1)
	if err != nil {
		t.Fatal(err)
	}
	oid := b.Registry().Register(objs)
	th.ReleasePending()
	if err := b.SetArrayValues(oid, 0, []Value{{Tag: TagString, Bits: uint64(sid)}}); err != nil {
		t.Fatal(err)
	}
	tag, vals, err = b.ArrayValues(oid, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagObject || vals[0].Tag != TagString || vals[0].ID() != sid {
		t.Errorf("object array = %s %+v", tag, vals)
	}
}

func TestDisposeAndCollected(t *testing.T) {
	_, b, _ := newTestBridge(t)
	sid, err := b.CreateString("x")
	if err != nil {
		t.Fatal(err)
	}
	if gone, _ := b.IsCollected(sid); gone {
		t.Error("live string reported collected")
	}
	b.DisposeObject(sid)
	if gone, err := b.IsCollected(sid); !gone || err != nil {
		t.Errorf("after dispose: %t, %v", gone, err)
	}
}

func TestMethodTables(t *testing.T) {
	v, b, _ := newTestBridge(t)
	cid := classID(t, v, b, "LTarget;")

	work := methodID(t, b, cid, "work")
	lt, err := b.LineTable(cid, work)
	if err != nil {
		t.Fatal(err)
	}
	if lt.Start != 0 || lt.End != 2 {
		t.Errorf("range [%d, %d], want [0, 2]", lt.Start, lt.End)
	}
	if len(lt.Lines) != 2 || lt.Lines[0].Line != 10 || lt.Lines[1].Address != 2 || lt.Lines[1].Line != 11 {
		t.Errorf("lines = %+v", lt.Lines)
	}

	args, vars, err := b.VariableTable(cid, work)
	if err != nil {
		t.Fatal(err)
	}
	if args != 1 || len(vars) != 1 || vars[0].Name != "n" || vars[0].Slot != 1 || vars[0].Signature != "I" {
		t.Errorf("work variables = %d %+v", args, vars)
	}

	get := methodID(t, b, cid, "get")
	_, vars, err = b.VariableTable(cid, get)
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 1 || vars[0].Name != "this" || vars[0].Slot != 0 {
		t.Errorf("get variables = %+v", vars)
	}

	objID := classID(t, v, b, descObject)
	if _, err := b.LineTable(objID, work); CodeOf(err) != ErrCodeInvalidMethod {
		t.Errorf("method of another class: code %d", CodeOf(err))
	}
}

func TestThreadControl(t *testing.T) {
	v, b, _ := newTestBridge(t)

	threads := b.AllThreads()
	if len(threads) != 1 {
		t.Fatalf("AllThreads = %v, want only main", threads)
	}
	main := threads[0]
	if name, err := b.ThreadName(main); err != nil || name != "main" {
		t.Errorf("ThreadName = %q, %v", name, err)
	}
	status, suspend, err := b.ThreadStatus(main)
	if err != nil || status != ThreadStatusRunning || suspend != 0 {
		t.Errorf("ThreadStatus = %d, %d, %v", status, suspend, err)
	}

	if err := b.SuspendThread(main); err != nil {
		t.Fatal(err)
	}
	if err := b.SuspendThread(main); err != nil {
		t.Fatal(err)
	}
	if n, _ := b.SuspendCount(main); n != 2 {
		t.Errorf("SuspendCount = %d, want 2", n)
	}
	if _, suspend, _ := b.ThreadStatus(main); suspend != SuspendStatusSuspended {
		t.Error("suspend status not reported")
	}
	if n, err := b.FrameCount(main); err != nil || n != 0 {
		t.Errorf("FrameCount = %d, %v", n, err)
	}

	for range 3 {
		if err := b.ResumeThread(main); err != nil {
			t.Fatalf("ResumeThread: %v", err)
		}
	}
	if n, _ := b.SuspendCount(main); n != 0 {
		t.Errorf("SuspendCount after resume = %d", n)
	}

	b.SuspendVM()
	if n := v.MainThread().DebugSuspendCount(); n != 1 {
		t.Errorf("debug suspend count after SuspendVM = %d", n)
	}
	b.Disconnected()
	if n := v.MainThread().SuspendCount(); n != 0 {
		t.Errorf("suspend count after disconnect = %d", n)
	}
	if _, err := b.ThreadName(main); CodeOf(err) != ErrCodeInvalidThread {
		t.Errorf("stale thread id: code %d", CodeOf(err))
	}
}

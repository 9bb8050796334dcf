package jdwp

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"

	"github.com/chazu/dexvm/vm"
)

// ---------------------------------------------------------------------------
// Event requests
// ---------------------------------------------------------------------------

// EventKind identifies an event type.
type EventKind byte

const (
	EventSingleStep   EventKind = 1
	EventBreakpoint   EventKind = 2
	EventException    EventKind = 4
	EventThreadStart  EventKind = 6
	EventThreadDeath  EventKind = 7
	EventClassPrepare EventKind = 8
	EventMethodEntry  EventKind = 40
	EventMethodExit   EventKind = 41
	EventVMStart      EventKind = 90
	EventVMDeath      EventKind = 99
)

var eventKindNames = map[EventKind]string{
	EventSingleStep:   "single-step",
	EventBreakpoint:   "breakpoint",
	EventException:    "exception",
	EventThreadStart:  "thread-start",
	EventThreadDeath:  "thread-death",
	EventClassPrepare: "class-prepare",
	EventMethodEntry:  "method-entry",
	EventMethodExit:   "method-exit",
	EventVMStart:      "vm-start",
	EventVMDeath:      "vm-death",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", byte(k))
}

// SuspendPolicy says which threads stop when an event fires.
type SuspendPolicy byte

const (
	SuspendNone   SuspendPolicy = 0
	SuspendThread SuspendPolicy = 1
	SuspendAll    SuspendPolicy = 2
)

// ModKind identifies an event request modifier.
type ModKind byte

const (
	ModCount         ModKind = 1
	ModConditional   ModKind = 2
	ModThreadOnly    ModKind = 3
	ModClassOnly     ModKind = 4
	ModClassMatch    ModKind = 5
	ModClassExclude  ModKind = 6
	ModLocationOnly  ModKind = 7
	ModExceptionOnly ModKind = 8
	ModFieldOnly     ModKind = 9
	ModStep          ModKind = 10
	ModInstanceOnly  ModKind = 11
)

// StepSize and StepDepth parameterize a Step modifier.
type (
	StepSize  uint32
	StepDepth uint32
)

const (
	StepMin  StepSize = 0
	StepLine StepSize = 1

	StepInto StepDepth = 0
	StepOver StepDepth = 1
	StepOut  StepDepth = 2
)

// Modifier narrows the events a request reports. Only the fields of
// its Kind are meaningful.
type Modifier struct {
	Kind     ModKind
	Count    int
	Thread   ObjectID
	Class    ObjectID
	Pattern  string
	Location Location
	Caught   bool
	Uncaught bool
	Size     StepSize
	Depth    StepDepth
	Instance ObjectID
}

// ReadModifier decodes one modifier.
func ReadModifier(r *Reader) (Modifier, error) {
	m := Modifier{Kind: ModKind(r.U1())}
	switch m.Kind {
	case ModCount:
		m.Count = r.Int()
	case ModConditional:
		r.U4()
		return m, fmt.Errorf("conditional modifier: %w", ErrNotImplemented)
	case ModThreadOnly:
		m.Thread = r.ID()
	case ModClassOnly:
		m.Class = r.ID()
	case ModClassMatch, ModClassExclude:
		m.Pattern = r.Str()
	case ModLocationOnly:
		m.Location = r.Location()
	case ModExceptionOnly:
		m.Class = r.ID()
		m.Caught = r.Bool()
		m.Uncaught = r.Bool()
	case ModFieldOnly:
		r.ID()
		r.ID()
		return m, fmt.Errorf("field modifier: %w", ErrNotImplemented)
	case ModStep:
		m.Thread = r.ID()
		m.Size = StepSize(r.U4())
		m.Depth = StepDepth(r.U4())
	case ModInstanceOnly:
		m.Instance = r.ID()
	default:
		return m, fmt.Errorf("modifier kind %d: %w", m.Kind, ErrInvalidEvent)
	}
	return m, r.Err()
}

// WriteTo encodes m.
func (m Modifier) WriteTo(w *Writer) {
	w.U1(byte(m.Kind))
	switch m.Kind {
	case ModCount:
		w.U4(uint32(m.Count))
	case ModThreadOnly:
		w.ID(m.Thread)
	case ModClassOnly:
		w.ID(m.Class)
	case ModClassMatch, ModClassExclude:
		w.Str(m.Pattern)
	case ModLocationOnly:
		w.Location(m.Location)
	case ModExceptionOnly:
		w.ID(m.Class)
		w.Bool(m.Caught)
		w.Bool(m.Uncaught)
	case ModStep:
		w.ID(m.Thread)
		w.U4(uint32(m.Size))
		w.U4(uint32(m.Depth))
	case ModInstanceOnly:
		w.ID(m.Instance)
	}
}

// EventRequest is a debugger's request to be told about events.
type EventRequest struct {
	Kind      EventKind
	Policy    SuspendPolicy
	Modifiers []Modifier
}

// stepState is the position a step started from. It moves forward
// each time the step fires.
type stepState struct {
	size   StepSize
	depth  StepDepth
	frames int
	method *vm.Method
	line   int
	pc     int
}

// request is an EventRequest with its ids resolved.
type request struct {
	id     uint32
	kind   EventKind
	policy SuspendPolicy

	count    int
	thread   *vm.Thread
	classes  []*vm.Class
	includes []string
	excludes []string

	hasLocation bool
	method      *vm.Method
	pc          uint32

	exception        *vm.Class
	caught, uncaught bool
	instance         *vm.Object
	step             *stepState
	expired          bool
}

// eventContext describes one occurrence offered to the request list.
type eventContext struct {
	kind   EventKind
	thread *vm.Thread
	loc    vm.Location
	class  *vm.Class
	this   *vm.Object

	exc      *vm.Object
	catchLoc vm.Location
	caught   bool

	// frame and depth are set for instruction events.
	frame *vm.Frame
	depth int
}

type eventList struct {
	mu   deadlock.Mutex
	next uint32
	reqs []*request
	n    atomic.Int32
}

func newEventList() *eventList {
	return &eventList{}
}

// Len returns the number of requests.
func (l *eventList) Len() int {
	return int(l.n.Load())
}

func (l *eventList) add(r *request) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	r.id = l.next
	l.reqs = append(l.reqs, r)
	l.n.Store(int32(len(l.reqs)))
	return r.id
}

// remove drops the request with the given kind and id. Clearing an
// unknown request is not an error.
func (l *eventList) remove(kind EventKind, id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter(func(r *request) bool { return r.kind != kind || r.id != id })
}

func (l *eventList) removeKind(kind EventKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter(func(r *request) bool { return r.kind != kind })
}

func (l *eventList) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter(func(*request) bool { return false })
}

// filter keeps the requests keep accepts. l.mu is held.
func (l *eventList) filter(keep func(*request) bool) {
	out := l.reqs[:0]
	for _, r := range l.reqs {
		if keep(r) {
			out = append(out, r)
		}
	}
	clear(l.reqs[len(out):])
	l.reqs = out
	l.n.Store(int32(len(out)))
}

// hit is one request matched by an event.
type hit struct {
	id  uint32
	ctx *eventContext
}

// match returns the requests ctxs satisfy and the strongest suspend
// policy among them. Count modifiers are consumed and expired requests
// removed.
func (l *eventList) match(ctxs ...*eventContext) ([]hit, SuspendPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		hits   []hit
		policy SuspendPolicy
		expire bool
	)
	for _, ctx := range ctxs {
		for _, r := range l.reqs {
			if r.kind != ctx.kind || r.expired || !r.accepts(ctx) {
				continue
			}
			if r.count > 0 {
				r.count--
				if r.count > 0 {
					continue
				}
				r.expired = true
				expire = true
			}
			hits = append(hits, hit{id: r.id, ctx: ctx})
			policy = max(policy, r.policy)
		}
	}
	if expire {
		l.filter(func(r *request) bool { return !r.expired })
	}
	return hits, policy
}

// accepts applies every modifier except Count.
func (r *request) accepts(ctx *eventContext) bool {
	if r.thread != nil && ctx.thread != r.thread {
		return false
	}
	for _, c := range r.classes {
		if ctx.class == nil || !ctx.class.IsSubclassOf(c) && !ctx.class.Implements(c) {
			return false
		}
	}
	if len(r.includes) > 0 || len(r.excludes) > 0 {
		if ctx.class == nil {
			return false
		}
		name := ctx.class.Name()
		for _, p := range r.includes {
			if !matchClassPattern(p, name) {
				return false
			}
		}
		for _, p := range r.excludes {
			if matchClassPattern(p, name) {
				return false
			}
		}
	}
	if r.hasLocation && (ctx.loc.Method != r.method || ctx.loc.PC != r.pc) {
		return false
	}
	if r.instance != nil && ctx.this != r.instance {
		return false
	}
	if ctx.kind == EventException {
		if r.exception != nil && (ctx.exc == nil || !ctx.exc.Class.IsAssignableTo(r.exception)) {
			return false
		}
		if ctx.caught && !r.caught || !ctx.caught && !r.uncaught {
			return false
		}
	}
	if r.step != nil {
		return r.step.advance(ctx)
	}
	return true
}

// advance reports whether ctx ends the step and, if so, makes it the
// new starting point.
func (s *stepState) advance(ctx *eventContext) bool {
	f := ctx.frame
	if f == nil {
		return false
	}
	line := f.Line()
	moved := f.PC != s.pc || f.Method != s.method
	if s.size == StepLine && s.line >= 0 {
		moved = line != s.line || f.Method != s.method
	}
	var stop bool
	switch s.depth {
	case StepInto:
		stop = ctx.depth != s.frames || moved
	case StepOver:
		stop = ctx.depth < s.frames || ctx.depth == s.frames && moved
	case StepOut:
		stop = ctx.depth < s.frames
	}
	if stop {
		s.frames, s.method, s.line, s.pc = ctx.depth, f.Method, line, f.PC
	}
	return stop
}

// matchClassPattern matches a class name against a pattern that may
// start or end with "*".
func matchClassPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return pattern == name
}

// ---------------------------------------------------------------------------
// Setting and clearing
// ---------------------------------------------------------------------------

// SetEvent resolves and installs a request, activating the bridge, and
// returns the request id.
func (b *Bridge) SetEvent(er EventRequest) (uint32, error) {
	switch er.Kind {
	case EventSingleStep, EventBreakpoint, EventException, EventThreadStart, EventThreadDeath,
		EventClassPrepare, EventMethodEntry, EventMethodExit, EventVMDeath:
	default:
		return 0, fmt.Errorf("event kind %d: %w", er.Kind, ErrInvalidEvent)
	}
	if er.Policy > SuspendAll {
		return 0, fmt.Errorf("suspend policy %d: %w", er.Policy, ErrInvalidEvent)
	}
	r := &request{kind: er.Kind, policy: er.Policy, caught: true, uncaught: true}
	for _, m := range er.Modifiers {
		if err := b.applyModifier(r, m); err != nil {
			return 0, err
		}
	}
	if er.Kind == EventSingleStep && r.step == nil {
		return 0, fmt.Errorf("single-step request without a step modifier: %w", ErrInvalidEvent)
	}
	id := b.events.add(r)
	b.Activate()
	log.Debugf("event request %d: %s, policy %d, %d modifiers", id, er.Kind, er.Policy, len(er.Modifiers))
	return id, nil
}

func (b *Bridge) applyModifier(r *request, m Modifier) error {
	var err error
	switch m.Kind {
	case ModCount:
		if m.Count <= 0 {
			return fmt.Errorf("count %d: %w", m.Count, ErrInvalidEvent)
		}
		r.count = m.Count
	case ModThreadOnly:
		r.thread, err = b.thread(m.Thread)
	case ModClassOnly:
		var c *vm.Class
		if c, err = b.reg.Class(m.Class); err == nil {
			r.classes = append(r.classes, c)
		}
	case ModClassMatch:
		r.includes = append(r.includes, m.Pattern)
	case ModClassExclude:
		r.excludes = append(r.excludes, m.Pattern)
	case ModLocationOnly:
		var meth *vm.Method
		if meth, err = b.reg.Method(m.Location.Method); err == nil {
			r.hasLocation, r.method, r.pc = true, meth, uint32(m.Location.Index)
		}
	case ModExceptionOnly:
		if m.Class != 0 {
			r.exception, err = b.reg.Class(m.Class)
		}
		r.caught, r.uncaught = m.Caught, m.Uncaught
	case ModStep:
		var t *vm.Thread
		if t, err = b.suspendedThread(m.Thread); err != nil {
			return err
		}
		r.thread = t
		r.step = newStepState(t, m.Size, m.Depth)
	case ModInstanceOnly:
		r.instance, err = b.object(m.Instance)
	default:
		err = fmt.Errorf("modifier kind %d: %w", m.Kind, ErrNotImplemented)
	}
	return err
}

func newStepState(t *vm.Thread, size StepSize, depth StepDepth) *stepState {
	s := &stepState{size: size, depth: depth, line: -1}
	frames := t.Frames()
	s.frames = len(frames)
	if n := len(frames); n > 0 {
		f := frames[n-1]
		s.method, s.pc, s.line = f.Method, f.PC, f.Line()
	}
	return s
}

// ClearEvent removes one request.
func (b *Bridge) ClearEvent(kind EventKind, id uint32) {
	b.events.remove(kind, id)
}

// ClearAllBreakpoints removes every breakpoint request.
func (b *Bridge) ClearAllBreakpoints() {
	b.events.removeKind(EventBreakpoint)
}

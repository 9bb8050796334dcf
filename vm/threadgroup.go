package vm

import "fmt"

// ---------------------------------------------------------------------------
// Thread groups
// ---------------------------------------------------------------------------

// The runtime has a fixed pair of groups: "system" at the top and "main"
// beneath it. Every attached thread belongs to main.
type threadGroups struct {
	system *Object
	main   *Object
}

func (vm *VM) createThreadGroups() error {
	c, err := vm.Classes.FindClass(descThreadGroup)
	if err != nil {
		return err
	}
	if vm.groups.system, err = vm.newThreadGroup(c, "system", nil); err != nil {
		return err
	}
	if vm.groups.main, err = vm.newThreadGroup(c, "main", vm.groups.system); err != nil {
		return err
	}
	return nil
}

func (vm *VM) newThreadGroup(c *Class, name string, parent *Object) (*Object, error) {
	s, err := vm.Intern(nil, name)
	if err != nil {
		return nil, err
	}
	g, err := vm.Heap.Alloc(nil, c)
	if err != nil {
		return nil, fmt.Errorf("thread group %s: %w", name, err)
	}
	g.SetField(c.FindField("name", descString, false), RefValue(s))
	g.SetField(c.FindField("parent", descThreadGroup, false), RefValue(parent))
	return g, nil
}

// SystemThreadGroup returns the top-level thread group.
func (vm *VM) SystemThreadGroup() *Object {
	return vm.groups.system
}

// MainThreadGroup returns the group attached threads belong to.
func (vm *VM) MainThreadGroup() *Object {
	return vm.groups.main
}

// TopLevelThreadGroups returns the groups without a parent.
func (vm *VM) TopLevelThreadGroups() []*Object {
	return []*Object{vm.groups.system}
}

// IsThreadGroup reports whether o is a java.lang.ThreadGroup.
func (vm *VM) IsThreadGroup(o *Object) bool {
	return o != nil && o.Class.Descriptor == descThreadGroup
}

// ThreadGroupName returns the name of group g.
func (vm *VM) ThreadGroupName(g *Object) string {
	if s := g.GetField(g.Class.FindField("name", descString, false)).Ref; s != nil {
		return s.Str
	}
	return ""
}

// ThreadGroupParent returns the parent of group g, or nil for a top-level
// group.
func (vm *VM) ThreadGroupParent(g *Object) *Object {
	return g.GetField(g.Class.FindField("parent", descThreadGroup, false)).Ref
}

// ThreadGroupChildren returns the live threads and the subgroups directly
// in group g.
func (vm *VM) ThreadGroupChildren(g *Object) (threads []*Thread, groups []*Object) {
	switch g {
	case vm.groups.system:
		groups = append(groups, vm.groups.main)
	case vm.groups.main:
		for _, t := range vm.Threads.Snapshot() {
			if t.Peer != nil && t.Status() != ThreadZombie {
				threads = append(threads, t)
			}
		}
	}
	return threads, groups
}

// ThreadGroup returns the group t belongs to.
func (t *Thread) ThreadGroup() *Object {
	return t.vm.groups.main
}

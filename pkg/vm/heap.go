package vm

import (
	"github.com/rs/zerolog"

	"loxvm/pkg/table"
	"loxvm/pkg/value"
)

// defaultNextGC is the byte threshold at which the first collection
// cycle runs: the heap grows to 1 MiB before the first sweep.
const defaultNextGC = 1024 * 1024

// gcHeapGrowFactor is applied to bytesAllocated after every collection
// to compute the next threshold.
const gcHeapGrowFactor = 2

// Heap is the VM's sole ownership spine for every heap Object: Objects
// is the allocation list the sweep phase walks, and Strings is the
// weak-reference intern set (see table.Table.RemoveWhiteStrings).
// Heap implements compiler.Heap so the compiler can intern strings and
// allocate Functions through the same collector the VM itself uses.
type Heap struct {
	objects []value.Obj

	strings *table.Table
	globals *table.Table

	bytesAllocated int
	nextGC         int
	stressGC       bool
	grayStack      []value.Obj

	// compilerFunctions is the GC-root channel for in-progress
	// compilation: the compiler pushes its current Function before
	// compiling nested bodies and pops it when done, so a collection
	// triggered mid-compile still marks every Function under
	// construction even though none are reachable from the VM stack yet.
	compilerFunctions []*value.ObjFunction

	initString *value.ObjString

	vm  *VM
	log zerolog.Logger
}

func newHeap(vm *VM, log zerolog.Logger) *Heap {
	h := &Heap{
		strings: table.New(),
		globals: table.New(),
		nextGC:  defaultNextGC,
		vm:      vm,
		log:     log,
	}
	h.initString = h.InternString("init")
	return h
}

// track accounts a fresh allocation, runs a collection if the stress
// flag is set or the byte threshold has been crossed, and only then
// appends the object to the ownership spine. The collection must come
// first: the new object has no roots yet, and sweeping it off the list
// during its own allocation would orphan it from every later cycle.
func (h *Heap) track(o value.Obj, size int) {
	h.bytesAllocated += size
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.collectGarbage()
	}
	h.objects = append(h.objects, o)
}

// InternString returns the canonical ObjString for s, probing the
// intern set first and allocating (and tracking) a new one only on a
// miss.
func (h *Heap) InternString(s string) *value.ObjString {
	hash := value.HashString(s)
	if existing := h.strings.FindString(s, hash); existing != nil {
		return existing
	}
	str := &value.ObjString{Chars: s, Hash: hash}
	// Pin before any further allocation (the table insert below may grow
	// the backing array): push onto the VM stack so a GC triggered by
	// track() cannot collect the string we're about to intern.
	h.vm.push(value.FromObj(str))
	h.track(str, len(s)+24)
	h.strings.Set(str, value.Nil())
	h.vm.pop()
	return str
}

// PushCompilerFunction registers fn as a GC root for the duration of its
// own compilation (see Heap.compilerFunctions doc).
func (h *Heap) PushCompilerFunction(fn *value.ObjFunction) {
	h.compilerFunctions = append(h.compilerFunctions, fn)
}

// PopCompilerFunction unregisters the most recently pushed compiler
// root, called once that function's body has finished compiling.
func (h *Heap) PopCompilerFunction() {
	h.compilerFunctions = h.compilerFunctions[:len(h.compilerFunctions)-1]
}

// NewFunction allocates a tracked, empty Function. Exported because the
// compiler builds Functions through the VM's heap (compiler.Heap): a
// Function allocated any other way would never be swept and, worse,
// would keep a stale mark bit after its first collection.
func (h *Heap) NewFunction() *value.ObjFunction {
	fn := &value.ObjFunction{}
	h.track(fn, 64)
	return fn
}

func (h *Heap) newClosure(fn *value.ObjFunction) *value.ObjClosure {
	c := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
	h.track(c, 32+8*len(c.Upvalues))
	return c
}

func (h *Heap) newNative(name string, arity int, fn value.NativeFn) *value.ObjNative {
	n := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	h.track(n, 32)
	return n
}

func (h *Heap) newUpvalue(stackSlot int) *value.ObjUpvalue {
	u := &value.ObjUpvalue{StackSlot: stackSlot}
	h.track(u, 24)
	return u
}

func (h *Heap) newClass(name *value.ObjString) *value.ObjClass {
	c := &value.ObjClass{Name: name, Methods: make(map[*value.ObjString]*value.ObjClosure)}
	h.track(c, 48)
	return c
}

func (h *Heap) newInstance(class *value.ObjClass) *value.ObjInstance {
	i := &value.ObjInstance{Class: class, Fields: make(map[*value.ObjString]value.Value)}
	h.track(i, 48)
	return i
}

func (h *Heap) newBoundMethod(receiver value.Value, method *value.ObjClosure) *value.ObjBoundMethod {
	b := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	h.track(b, 32)
	return b
}

// ---- garbage collection ----

// collectGarbage runs one full mark-sweep cycle: mark roots, trace the
// gray stack to blacken everything reachable, drop weak intern-table
// entries for unmarked strings, sweep the allocation list, then grow the
// next threshold. It is effectively stop-the-world: Go holds no other
// goroutine references into this VM's heap during Interpret.
func (h *Heap) collectGarbage() {
	before := h.bytesAllocated
	h.log.Debug().Int("bytes_allocated", before).Int("next_gc", h.nextGC).Msg("gc begin")

	h.markRoots()
	h.traceReferences()
	h.strings.RemoveWhiteStrings()
	h.sweep()

	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
	if h.nextGC < defaultNextGC {
		h.nextGC = defaultNextGC
	}
	h.log.Debug().
		Int("before", before).
		Int("after", h.bytesAllocated).
		Int("next_gc", h.nextGC).
		Msg("gc end")
}

func (h *Heap) markRoots() {
	vm := h.vm
	for i := 0; i < vm.stackTop; i++ {
		h.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.markObject(vm.frames[i].closure)
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		h.markObject(u)
	}
	h.markTableRoots(h.globals)
	// h.strings is deliberately NOT marked here: the intern set holds
	// its keys weakly so dead strings can be collected;
	// RemoveWhiteStrings runs after tracing, before sweep.
	h.markObject(h.initString)
	for _, fn := range h.compilerFunctions {
		h.markObject(fn)
	}
}

func (h *Heap) markTableRoots(t *table.Table) {
	for _, k := range t.Keys() {
		h.markObject(k)
	}
	for _, v := range t.Values() {
		h.markValue(v)
	}
}

func (h *Heap) markValue(v value.Value) {
	if v.Kind == value.KindObj {
		h.markObject(v.Obj)
	}
}

// markObject grays obj: sets its mark bit and pushes it onto the gray
// stack for traceReferences to blacken later. The marker never recurses
// directly -- newly discovered objects always go through this worklist
// so arbitrarily deep object graphs don't blow the Go call stack.
func (h *Heap) markObject(obj value.Obj) {
	if obj == nil {
		return
	}
	v := objMark(obj)
	if v == nil || *v {
		return
	}
	*v = true
	h.grayStack = append(h.grayStack, obj)
}

// objMark returns a pointer to obj's embedded mark bit, switching on its
// concrete type since Header itself isn't addressable through the Obj
// interface.
func objMark(obj value.Obj) *bool {
	switch o := obj.(type) {
	case *value.ObjString:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjFunction:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjNative:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjClosure:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjUpvalue:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjClass:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjInstance:
		if o == nil {
			return nil
		}
		return &o.Mark
	case *value.ObjBoundMethod:
		if o == nil {
			return nil
		}
		return &o.Mark
	}
	panic("unreachable object kind")
}

func (h *Heap) traceReferences() {
	for len(h.grayStack) > 0 {
		obj := h.grayStack[len(h.grayStack)-1]
		h.grayStack = h.grayStack[:len(h.grayStack)-1]
		h.blackenObject(obj)
	}
}

// blackenObject marks every object obj directly references. String and
// Native objects have no outgoing references and need no case here.
func (h *Heap) blackenObject(obj value.Obj) {
	switch o := obj.(type) {
	case *value.ObjUpvalue:
		h.markValue(o.Closed)
	case *value.ObjFunction:
		h.markObject(o.Name)
		for _, c := range o.Chunk.Constants {
			h.markValue(c)
		}
	case *value.ObjClosure:
		h.markObject(o.Function)
		for _, u := range o.Upvalues {
			h.markObject(u)
		}
	case *value.ObjClass:
		h.markObject(o.Name)
		for name, m := range o.Methods {
			h.markObject(name)
			h.markObject(m)
		}
	case *value.ObjInstance:
		h.markObject(o.Class)
		for name, v := range o.Fields {
			h.markObject(name)
			h.markValue(v)
		}
	case *value.ObjBoundMethod:
		h.markValue(o.Receiver)
		h.markObject(o.Method)
	}
}

// sweep walks the allocation list, drops every unmarked object, and
// resets the mark bit on everything that survives.
func (h *Heap) sweep() {
	live := h.objects[:0]
	for _, o := range h.objects {
		m := objMark(o)
		if *m {
			*m = false
			live = append(live, o)
		} else {
			h.bytesAllocated -= objSize(o)
		}
	}
	h.objects = live
}

func objSize(o value.Obj) int {
	switch v := o.(type) {
	case *value.ObjString:
		return len(v.Chars) + 24
	case *value.ObjFunction:
		return 64
	case *value.ObjNative:
		return 32
	case *value.ObjClosure:
		return 32 + 8*len(v.Upvalues)
	case *value.ObjUpvalue:
		return 24
	case *value.ObjClass:
		return 48
	case *value.ObjInstance:
		return 48
	case *value.ObjBoundMethod:
		return 32
	}
	return 0
}

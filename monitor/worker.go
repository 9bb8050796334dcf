package monitor

import (
	"fmt"

	"github.com/chazu/dexvm/vm"
)

// request is a unit of work to run on the worker goroutine.
type request struct {
	fn   func(*vm.VM) any
	done chan result
}

type result struct {
	value any
	err   error
}

// Worker serializes inspection calls onto one goroutine. Handlers go
// through it so concurrent HTTP requests never walk VM tables at the
// same time, and a panic in one call is returned as an error instead of
// taking the process down.
type Worker struct {
	vm       *vm.VM
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a worker for v and starts its goroutine.
func NewWorker(v *vm.VM) *Worker {
	w := &Worker{
		vm:       v,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func(*vm.VM) any) (res result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("inspection panicked: %v", r)
			res.err = fmt.Errorf("%v", r)
		}
	}()
	res.value = fn(w.vm)
	return res
}

// Do runs fn on the worker goroutine and waits for it.
func (w *Worker) Do(fn func(*vm.VM) any) (any, error) {
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	res := <-req.done
	return res.value, res.err
}

// Stop shuts the worker down. Calls made afterwards fail with
// ErrStopped.
func (w *Worker) Stop() {
	close(w.quit)
}

// VM returns the inspected runtime.
func (w *Worker) VM() *vm.VM {
	return w.vm
}

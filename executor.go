package compute

import (
	"sync"
)

// Executor is an execution context onto which event callbacks are
// delivered. An Executor stands in for the thread or loop a subscriber
// wants its callback to run on: Subscribe captures one, and the
// completion machinery hands the callback to it instead of invoking the
// callback directly.
//
// Implementations must run scheduled functions asynchronously with
// respect to the Schedule call, and must never run them on the
// goroutine performing the backend wait. Ordering of callbacks for a
// single event is guaranteed only if the Executor runs functions in
// Schedule order; [Dispatcher] does.
type Executor interface {
	// Schedule queues fn for execution. It must not run fn inline.
	Schedule(fn func())
}

// Dispatcher is a serial Executor: a single goroutine that runs
// scheduled functions one at a time, in Schedule order. It is the Go
// analogue of delivering callbacks on a subscriber's own event loop.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
// Close must be called to stop the goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Schedule queues fn for execution on the dispatcher goroutine.
// Functions run in Schedule order. Scheduling on a closed dispatcher
// drops fn.
func (d *Dispatcher) Schedule(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.cond.Signal()
}

// Close stops the dispatcher after draining functions already scheduled.
// Close is idempotent and returns once the delivery goroutine has exited.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.cond.Signal()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		// Pop a batch so callbacks scheduled from callbacks keep FIFO
		// order without re-locking per function.
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// defaultExec is the package-level dispatcher backing plain Subscribe
// calls. Started lazily on first use and never closed.
var (
	defaultExecOnce sync.Once
	defaultExec     *Dispatcher
)

func defaultExecutor() Executor {
	defaultExecOnce.Do(func() {
		defaultExec = NewDispatcher()
	})
	return defaultExec
}

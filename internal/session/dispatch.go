package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher is the delivery context listener callbacks run on. Dispatch must
// not block on the task itself and must preserve submission order.
type Dispatcher interface {
	Dispatch(task func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(task func())

func (f DispatcherFunc) Dispatch(task func()) { f(task) }

// SerialDispatcher runs tasks one at a time in FIFO order. A worker goroutine
// exists only while the queue is non-empty, so an idle dispatcher holds no
// resources and needs no Close.
type SerialDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	idle    *sync.Cond
	log     zerolog.Logger
}

// NewSerialDispatcher returns an empty dispatcher. log may be nil.
func NewSerialDispatcher(log *zerolog.Logger) *SerialDispatcher {
	d := &SerialDispatcher{log: zerolog.Nop()}
	if log != nil {
		d.log = *log
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

func (d *SerialDispatcher) Dispatch(task func()) {
	if task == nil {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, task)
	if !d.running {
		d.running = true
		go d.drain()
	}
	d.mu.Unlock()
}

// Flush blocks until every task dispatched before the call has run.
func (d *SerialDispatcher) Flush() {
	d.mu.Lock()
	for d.running {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

func (d *SerialDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.run(task)
	}
}

// run shields the queue from a panicking listener.
func (d *SerialDispatcher) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanics.Inc()
			d.log.Error().Str("event", "listener_panic").Str("panic", fmt.Sprint(r)).Msg("listener panicked")
		}
	}()
	task()
}

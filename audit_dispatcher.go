package autosubmit

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples event emission from sink latency. Events are
// queued on a buffered channel and delivered by one background goroutine;
// Close drains the queue before returning. A greeter emits a handful of
// events per login attempt, so the queue exists to absorb a slow sink,
// not sustained throughput.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	ch         chan AuditEvent
	done       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		ch:         make(chan AuditEvent, size),
		done:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	d.sink.Emit(context.Background(), event)
}

// Emit queues an event. With DropIfFull set it never blocks; otherwise it
// waits for buffer space, giving up only when the dispatcher shuts down.
func (d *auditDispatcher) Emit(event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.ch <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-d.done:
	}
}

// Close stops the dispatcher after draining queued events. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering of a Dispatcher.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit return immediately instead of waiting for room.
	DropIfFull bool
	// OnDrop, if set, is called synchronously for every event that was not queued.
	OnDrop func(Event)
	Logger *zap.Logger
}

// Dispatcher relays events to a sink on one background goroutine so the
// request path never waits on sink I/O. A nil *Dispatcher is a valid no-op.
type Dispatcher struct {
	sink   Sink
	queue  chan Event
	stop   chan struct{}
	drop   bool
	onDrop func(Event)
	log    *zap.Logger

	running  sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool

	dropped    atomic.Uint64
	sinkPanics atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan Event, max(cfg.BufferSize, 1)),
		stop:   make(chan struct{}),
		drop:   cfg.DropIfFull,
		onDrop: cfg.OnDrop,
		log:    log,
	}
	d.running.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.running.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Flush what was queued before Close.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			d.log.Error("audit sink panicked",
				zap.String("event", string(ev.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev and reports whether it was accepted. Without DropIfFull it
// waits for room until ctx ends. Events emitted after Close are discarded
// without counting as drops.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) bool {
	if d == nil || d.stopped.Load() {
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if d.drop {
		select {
		case d.queue <- ev:
			return true
		case <-d.stop:
			return false
		default:
			d.dropEvent(ev)
			return false
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
		return true
	case <-d.stop:
		return false
	case <-ctx.Done():
		d.dropEvent(ev)
		return false
	}
}

func (d *Dispatcher) dropEvent(ev Event) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(ev)
	}
}

// Close stops accepting events and waits until queued ones reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.running.Wait()
	})
}

// Dropped reports events refused because the buffer was full or the caller
// gave up waiting.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics reports events whose delivery panicked inside the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}

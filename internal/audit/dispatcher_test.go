package audit

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, &countingSink{}); d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{Kind: "ignored"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Kind: "signin_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{Kind: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Kind: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, &countingSink{})

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Kind: "e2"})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		Kind:      "signin_success",
		UserID:    "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte(`"event":"signin_success"`)) {
		t.Fatalf("missing event type in %q", out)
	}
	if !bytes.Contains([]byte(out), []byte(`"user_id":"u1"`)) {
		t.Fatalf("missing user id in %q", out)
	}
	if out[len(out)-1] != '\n' {
		t.Fatal("expected newline-terminated record")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{Kind: "signin_success", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{Kind: "signin_failure", Error: "UserNotFound", Metadata: map[string]string{"email": "a@b.com"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "signin_success" {
		t.Fatalf("unexpected success entry: %+v", entries[0].Entry)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("failures should log at warn, got %v", entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["error"] != "UserNotFound" || fields["meta.email"] != "a@b.com" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if entries[0].LoggerName != "audit" {
		t.Fatalf("expected audit logger name, got %q", entries[0].LoggerName)
	}
}

type panicSink struct {
	delivered atomic.Int64
}

func (s *panicSink) Emit(_ context.Context, ev Event) {
	if ev.Kind == "boom" {
		panic("sink failure")
	}
	s.delivered.Add(1)
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, sink)

	d.Emit(context.Background(), Event{Kind: "boom"})
	d.Emit(context.Background(), Event{Kind: "signin_success"})
	d.Close()

	if got := sink.delivered.Load(); got != 1 {
		t.Fatalf("expected the event after the panic to be delivered, got %d", got)
	}
	if d.SinkPanics() != 1 {
		t.Fatalf("expected 1 sink panic, got %d", d.SinkPanics())
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("sink panic must be logged")
	}
}

func TestDispatcherReportsDrops(t *testing.T) {
	sink := newGateSink()
	var mu sync.Mutex
	var dropped []Kind
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		OnDrop: func(ev Event) {
			mu.Lock()
			dropped = append(dropped, ev.Kind)
			mu.Unlock()
		},
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if d.Emit(ctx, Event{Kind: "e3"}) {
		t.Fatal("emit must give up once the caller context ends")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 || dropped[0] != "e3" {
		t.Fatalf("expected e3 reported as dropped, got %v", dropped)
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", d.Dropped())
	}
}

func TestEmitStampsMissingTimestamp(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{Kind: "signout"})
	d.Close()

	ev := <-sink.Events()
	if ev.Timestamp.IsZero() {
		t.Fatal("dispatcher must stamp events without a timestamp")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestJSONWriterSinkCountsFailures(t *testing.T) {
	sink := NewJSONWriterSink(failingWriter{})
	sink.Emit(context.Background(), Event{Kind: "signout"})
	if sink.Failures() != 1 {
		t.Fatalf("expected 1 failure, got %d", sink.Failures())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	var seen Kind
	m := MultiSink{a, nil, b, SinkFunc(func(_ context.Context, ev Event) { seen = ev.Kind })}
	m.Emit(context.Background(), Event{Kind: "signin_success"})
	if a.count.Load() != 1 || b.count.Load() != 1 || seen != "signin_success" {
		t.Fatal("every sink must receive the event")
	}
}

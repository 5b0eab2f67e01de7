// Package audit dispatches security-relevant engine events to sinks.
//
// # Components
//
//   - [Sink] receives events. Channel, JSON lines, zap and no-op sinks are
//     provided; [SinkFunc] and [MultiSink] compose them.
//   - [Dispatcher] relays events on one goroutine, isolates sink panics and
//     reports drops through [Config].OnDrop.
//   - [Event] is the record: kind, user, session, request origin, outcome.
//
// # What this package must NOT do
//
//   - Decide which [Kind] values exist. The Engine owns that.
//   - Import authcore or sibling internal packages.
package audit

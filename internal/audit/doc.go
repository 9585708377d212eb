// Package audit provides the structured security event type, pluggable sinks,
// and the asynchronous dispatcher used by the signet engine.
//
// # Design
//
// The engine never blocks on event delivery: events are handed to a bounded
// channel drained by a single goroutine. When the channel is full and
// DropIfFull is set, the event is counted as dropped instead of stalling the
// signin path. Publication failure never rolls back an authentication
// decision already committed to the backing stores.
//
// # What this package must NOT do
//
//   - Carry passwords, codes, or raw token text in events.
//   - Import the root signet package.
package audit

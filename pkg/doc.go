// Package pkg provides shared infrastructure for the USB device stack:
// the error taxonomy used across all layers, and component-tagged
// structured logging built on [log/slog].
//
// The error values mirror the protocol's three failure classes: a request
// that cannot be honored ([ErrInvalidRequest] and its refinements, answered
// with a stall), an operation that conflicts with an in-flight transfer
// ([ErrBusy], caller retries after completion), and a state or ownership
// mismatch ([ErrInvalidState], [ErrInvalidEndpoint]).
package pkg

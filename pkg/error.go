package pkg

import "errors"

// USB device stack errors.
var (
	// ErrInvalidRequest indicates a malformed or unsupported request.
	// The implicated endpoint is stalled in response.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBusy indicates an operation rejected because a conflicting
	// transfer is already in progress.
	ErrBusy = errors.New("resource busy")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrInvalidEndpoint indicates an invalid or unowned endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrNoMemory indicates a fixed-capacity table is full.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrQueueOverflow indicates a dropped peripheral event.
	ErrQueueOverflow = errors.New("event queue overflow")
)

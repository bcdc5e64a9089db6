// Package usbd implements the device-side core of a USB Full/High-Speed
// protocol stack: enumeration, standard request handling, three-stage
// control transfers, descriptor assembly, and class driver dispatch.
//
// It is platform-agnostic and drives hardware through the
// [hal.PeripheralDriver] command interface defined in the
// [github.com/fuxunyang/USBDevice/usbd/hal] package. Completions and bus
// conditions flow back in as events through [Stack], which serializes all
// core processing onto one goroutine.
//
// # Architecture
//
//   - [Device] owns the enumeration state machine, descriptors, interface
//     slots, and both endpoint tables
//   - [Stack] queues peripheral events and dispatches them into the core
//   - [Endpoint] tracks one direction of one endpoint number and its
//     transfer progress
//   - [Interface] binds a [Class] function driver into a device slot
//   - [SetupPacket] decodes the 8-byte control request header
//
// # Control Transfers
//
// EP0 runs the USB 2.0 three-stage machine:
//
//	Setup → DataIn|DataOut → StatusIn|StatusOut → Idle
//
// Standard requests for the device, interface, and endpoint recipients are
// handled internally; class and vendor requests are routed to the owning
// interface's [Class.SetupStage]. Rejected requests stall EP0 without
// touching device state, and the next setup packet recovers the endpoint.
//
// # Zero-Allocation Design
//
// The steady state allocates nothing: fixed-size endpoint and interface
// tables, a shared control data buffer, MarshalTo(buf) serialization, and
// Parse functions with output parameters. Descriptor strings are encoded
// at query time directly into the destination buffer.
package usbd

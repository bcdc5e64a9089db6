// Package hal defines the boundary between the USB device protocol core and
// the peripheral controller driver.
//
// The core issues commands through [PeripheralDriver] (arm an endpoint for a
// transfer, stall, set the bus address) and consumes the controller's events
// (setup packet received, transfer complete, bus reset) through the event
// queue in the usbd package. Platform vendors implement [PeripheralDriver]
// for their controller hardware; an in-memory implementation for tests and
// simulation lives in [github.com/fuxunyang/USBDevice/usbd/hal/loopback].
package hal

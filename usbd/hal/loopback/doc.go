// Package loopback provides an in-memory [hal.PeripheralDriver] for tests
// and bus simulation.
//
// Every command issued by the core is appended to an ordered log that tests
// can inspect, and armed buffers are retained so a simulated host can
// deliver OUT data and collect IN data without real hardware.
package loopback

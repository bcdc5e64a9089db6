package loopback

import (
	"fmt"
	"sync"

	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd/hal"
)

// MaxEndpoints is the number of endpoint numbers tracked per direction.
const MaxEndpoints = 16

// Op identifies a recorded peripheral command.
type Op uint8

// Peripheral command kinds.
const (
	OpArmReceive Op = iota
	OpArmTransmit
	OpStall
	OpUnstall
	OpSetAddress
)

// String returns a human-readable op name.
func (o Op) String() string {
	switch o {
	case OpArmReceive:
		return "ArmReceive"
	case OpArmTransmit:
		return "ArmTransmit"
	case OpStall:
		return "Stall"
	case OpUnstall:
		return "Unstall"
	case OpSetAddress:
		return "SetAddress"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Command is one recorded peripheral command.
type Command struct {
	Op   Op
	Ep   uint8  // Endpoint number (Arm*) or address (Stall/Unstall)
	Addr uint8  // Device address for OpSetAddress
	Data []byte // Payload copy for OpArmTransmit
	Len  int    // Armed capacity for OpArmReceive
}

// Driver implements hal.PeripheralDriver by recording commands in memory.
type Driver struct {
	mutex    sync.Mutex
	commands []Command

	// Armed OUT buffers, live references into the core's memory
	armedRecv [MaxEndpoints][]byte

	stalled map[uint8]bool
	address uint8
	speed   hal.Speed
}

// New creates a loopback peripheral driver.
func New() *Driver {
	return &Driver{
		stalled: make(map[uint8]bool),
		speed:   hal.SpeedFull,
	}
}

// ArmReceive records the armed OUT buffer.
func (d *Driver) ArmReceive(epNum uint8, buf []byte) error {
	if epNum >= MaxEndpoints {
		return pkg.ErrInvalidEndpoint
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.armedRecv[epNum] = buf
	d.commands = append(d.commands, Command{Op: OpArmReceive, Ep: epNum, Len: len(buf)})
	pkg.LogDebug(pkg.ComponentHAL, "arm receive", "ep", epNum, "len", len(buf))
	return nil
}

// ArmTransmit records the queued IN payload.
func (d *Driver) ArmTransmit(epNum uint8, data []byte) error {
	if epNum >= MaxEndpoints {
		return pkg.ErrInvalidEndpoint
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	payload := make([]byte, len(data))
	copy(payload, data)
	d.commands = append(d.commands, Command{Op: OpArmTransmit, Ep: epNum, Data: payload})
	pkg.LogDebug(pkg.ComponentHAL, "arm transmit", "ep", epNum, "len", len(data))
	return nil
}

// Stall records a stall command.
func (d *Driver) Stall(epAddr uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stalled[epAddr] = true
	d.commands = append(d.commands, Command{Op: OpStall, Ep: epAddr})
	return nil
}

// Unstall records an unstall command.
func (d *Driver) Unstall(epAddr uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stalled[epAddr] = false
	d.commands = append(d.commands, Command{Op: OpUnstall, Ep: epAddr})
	return nil
}

// SetDeviceAddress records the programmed bus address.
func (d *Driver) SetDeviceAddress(addr uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.address = addr
	d.commands = append(d.commands, Command{Op: OpSetAddress, Addr: addr})
	pkg.LogDebug(pkg.ComponentHAL, "device address programmed", "address", addr)
	return nil
}

// Address returns the last programmed bus address.
func (d *Driver) Address() uint8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.address
}

// IsStalled reports whether the endpoint address is currently stalled.
func (d *Driver) IsStalled(epAddr uint8) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stalled[epAddr]
}

// Commands returns a copy of the recorded command log.
func (d *Driver) Commands() []Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]Command, len(d.commands))
	copy(out, d.commands)
	return out
}

// CommandsSince returns a copy of the commands recorded at or after index i.
func (d *Driver) CommandsSince(i int) []Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if i < 0 || i > len(d.commands) {
		return nil
	}
	out := make([]Command, len(d.commands)-i)
	copy(out, d.commands[i:])
	return out
}

// CommandCount returns the number of recorded commands.
func (d *Driver) CommandCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.commands)
}

// Transmits returns the payloads queued on an IN endpoint, in order.
func (d *Driver) Transmits(epNum uint8) [][]byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var out [][]byte
	for _, c := range d.commands {
		if c.Op == OpArmTransmit && c.Ep == epNum {
			out = append(out, c.Data)
		}
	}
	return out
}

// LastTransmit returns the most recent payload queued on an IN endpoint,
// or nil.
func (d *Driver) LastTransmit(epNum uint8) []byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for i := len(d.commands) - 1; i >= 0; i-- {
		c := d.commands[i]
		if c.Op == OpArmTransmit && c.Ep == epNum {
			return c.Data
		}
	}
	return nil
}

// DrainTransmits removes and returns the payloads queued on an IN endpoint,
// concatenated in order. Other recorded commands are preserved.
func (d *Driver) DrainTransmits(epNum uint8) []byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var out []byte
	kept := d.commands[:0]
	for _, c := range d.commands {
		if c.Op == OpArmTransmit && c.Ep == epNum {
			out = append(out, c.Data...)
			continue
		}
		kept = append(kept, c)
	}
	d.commands = kept
	return out
}

// ArmedReceive returns the most recently armed OUT buffer for the endpoint.
// The returned slice aliases the core's receive buffer: a simulated host
// writes OUT data into it before signaling OutTransferComplete.
func (d *Driver) ArmedReceive(epNum uint8) []byte {
	if epNum >= MaxEndpoints {
		return nil
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.armedRecv[epNum]
}

// ResetLog clears the recorded command log. Armed buffers and the stall and
// address state are preserved.
func (d *Driver) ResetLog() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.commands = d.commands[:0]
}

// Compile-time interface check
var _ hal.PeripheralDriver = (*Driver)(nil)

package usbd

import (
	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd/hal"
)

// noInterface marks an endpoint not bound to any interface slot.
const noInterface = 0xFF

// Transfer tracks the progress of one endpoint transfer. Progress never
// exceeds Length.
type Transfer struct {
	data     []byte
	length   int
	progress int

	// needZLP terminates an IN transfer with a zero-length packet when the
	// payload is shorter than the host asked for and a multiple of the max
	// packet size.
	needZLP bool
}

// Endpoint is one direction of one endpoint number. The zero value is a
// disabled endpoint.
type Endpoint struct {
	addr          uint8 // Address including the direction bit
	epType        EndpointType
	maxPacketSize uint16
	state         EpState
	ifNum         uint8 // Owning interface slot, noInterface if unbound

	transfer Transfer
}

// Address returns the endpoint address including the direction bit.
func (e *Endpoint) Address() uint8 { return e.addr }

// Number returns the endpoint number without the direction bit.
func (e *Endpoint) Number() uint8 { return e.addr &^ EndpointDirectionIn }

// IsIn reports whether this is an IN (device-to-host) endpoint.
func (e *Endpoint) IsIn() bool { return e.addr&EndpointDirectionIn != 0 }

// Type returns the endpoint transfer type.
func (e *Endpoint) Type() EndpointType { return e.epType }

// MaxPacketSize returns the endpoint max packet size.
func (e *Endpoint) MaxPacketSize() uint16 { return e.maxPacketSize }

// State returns the current endpoint transfer state.
func (e *Endpoint) State() EpState { return e.state }

// InterfaceNumber returns the owning interface slot, or noInterface.
func (e *Endpoint) InterfaceNumber() uint8 { return e.ifNum }

// Data returns the bytes transferred so far. For a completed OUT transfer
// this is the received payload.
func (e *Endpoint) Data() []byte {
	if e.transfer.data == nil {
		return nil
	}
	return e.transfer.data[:e.transfer.progress]
}

// Length returns the total transfer length.
func (e *Endpoint) Length() int { return e.transfer.length }

// Progress returns the number of bytes transferred so far.
func (e *Endpoint) Progress() int { return e.transfer.progress }

// open configures the endpoint for use and readies it for transfers.
func (e *Endpoint) open(addr uint8, epType EndpointType, mps uint16, ifNum uint8) {
	e.addr = addr
	e.epType = epType
	e.maxPacketSize = mps
	e.ifNum = ifNum
	e.state = EpStateIdle
	e.transfer = Transfer{}
}

// close disables the endpoint and drops any transfer in progress.
func (e *Endpoint) close() {
	e.state = EpStateDisabled
	e.transfer = Transfer{}
}

// send begins an IN transfer, arming the first chunk. The data slice must
// stay valid until the transfer completes. needZLP requests a terminating
// zero-length packet after the final full-size chunk.
func (e *Endpoint) send(port hal.PeripheralDriver, data []byte, needZLP bool) error {
	e.transfer.data = data
	e.transfer.length = len(data)
	e.transfer.progress = 0
	e.transfer.needZLP = needZLP
	return e.armTransmitChunk(port)
}

// armTransmitChunk queues the next max-packet-size chunk of the IN transfer.
func (e *Endpoint) armTransmitChunk(port hal.PeripheralDriver) error {
	n := e.transfer.length - e.transfer.progress
	if mps := int(e.maxPacketSize); n > mps {
		n = mps
	}
	start := e.transfer.progress
	return port.ArmTransmit(e.Number(), e.transfer.data[start:start+n])
}

// advanceTransmit consumes an IN completion of count drained bytes. It arms
// the next chunk (or the terminating ZLP) if the transfer has more to send.
// Returns true when the transfer is finished.
func (e *Endpoint) advanceTransmit(port hal.PeripheralDriver, count int) (bool, error) {
	if remaining := e.transfer.length - e.transfer.progress; count > remaining {
		count = remaining
	}
	e.transfer.progress += count
	if e.transfer.progress < e.transfer.length {
		return false, e.armTransmitChunk(port)
	}
	if e.transfer.needZLP {
		e.transfer.needZLP = false
		return false, port.ArmTransmit(e.Number(), nil)
	}
	return true, nil
}

// receive begins an OUT transfer, arming the whole buffer at once.
func (e *Endpoint) receive(port hal.PeripheralDriver, buf []byte) error {
	e.transfer.data = buf
	e.transfer.length = len(buf)
	e.transfer.progress = 0
	e.transfer.needZLP = false
	return port.ArmReceive(e.Number(), buf)
}

// finishReceive records the received byte count of a completed OUT transfer.
func (e *Endpoint) finishReceive(count int) {
	if count > e.transfer.length {
		count = e.transfer.length
	}
	e.transfer.progress = count
}

// validTransferState reports whether the endpoint can start a new class
// transfer.
func (e *Endpoint) validTransferState() error {
	switch e.state {
	case EpStateDisabled:
		return pkg.ErrInvalidEndpoint
	case EpStateStalled:
		return pkg.ErrInvalidState
	case EpStateTransmit, EpStateReceive:
		return pkg.ErrBusy
	}
	return nil
}

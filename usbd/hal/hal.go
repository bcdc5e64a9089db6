package hal

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// MaxPacketSize0 returns the control endpoint max packet size for this speed.
func (s Speed) MaxPacketSize0() uint16 {
	if s == SpeedLow {
		return 8
	}
	return 64
}

// PeripheralDriver is the command interface the protocol core uses to drive
// the USB peripheral controller. Implementations must not call back into the
// core; completions are reported asynchronously as events.
//
// Endpoint addresses carry the direction bit (0x80 = IN). ArmReceive and
// ArmTransmit take the endpoint number only; the direction is implied.
type PeripheralDriver interface {
	// ArmReceive prepares an OUT endpoint to accept up to len(buf) bytes.
	// The controller reports completion via an OutTransferComplete event
	// carrying the number of bytes actually received.
	ArmReceive(epNum uint8, buf []byte) error

	// ArmTransmit queues data on an IN endpoint. An empty slice queues a
	// zero-length packet. The controller reports the buffer drained via an
	// InTransferComplete event.
	ArmTransmit(epNum uint8, data []byte) error

	// Stall sets the STALL handshake on the endpoint.
	Stall(epAddr uint8) error

	// Unstall clears the STALL handshake on the endpoint.
	Unstall(epAddr uint8) error

	// SetDeviceAddress programs the bus address into the controller.
	// The core issues this only after the SET_ADDRESS status stage.
	SetDeviceAddress(addr uint8) error
}

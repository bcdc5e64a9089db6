package usbd

import "fmt"

// Fixed capacities. The tables are sized at construction and never
// reallocated during operation.
const (
	// MaxInterfaces is the maximum number of interface slots per device.
	MaxInterfaces = 8

	// MaxEndpoints is the number of endpoint numbers per direction (0..7).
	MaxEndpoints = 8

	// EP0MaxPacketSize is the control endpoint max packet size.
	EP0MaxPacketSize = 64

	// ControlBufferSize is the shared control data stage buffer size.
	ControlBufferSize = 512

	// SerialNumberSize is the raw serial identifier size in bytes. It is
	// rendered as twice as many BCD digits in the serial number string.
	SerialNumberSize = 6
)

// Device enumeration states (USB 2.0 Spec section 9.1).
const (
	StateDefault    State = iota // Reset received, default address in use
	StateAddressed               // Unique address assigned
	StateConfigured              // Configuration selected, operational
)

// State represents the device enumeration state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateAddressed:
		return "Addressed"
	case StateConfigured:
		return "Configured"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// Link power states, an overlay orthogonal to the enumeration state.
const (
	LinkStateOff       LinkState = iota // No bus power
	LinkStateActive                     // Powered and active
	LinkStateSleep                      // L1 sleep (LPM)
	LinkStateSuspended                  // L2 suspend
)

// LinkState represents the USB link power state.
type LinkState uint8

// String returns a human-readable link state description.
func (s LinkState) String() string {
	switch s {
	case LinkStateOff:
		return "Off"
	case LinkStateActive:
		return "Active"
	case LinkStateSleep:
		return "Sleep"
	case LinkStateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown LinkState (%d)", s)
	}
}

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     EndpointType = 0x00
	EndpointTypeIsochronous EndpointType = 0x01
	EndpointTypeBulk        EndpointType = 0x02
	EndpointTypeInterrupt   EndpointType = 0x03
)

// EndpointType represents the endpoint transfer type.
type EndpointType uint8

// String returns a human-readable transfer type name.
func (t EndpointType) String() string {
	switch t {
	case EndpointTypeControl:
		return "Control"
	case EndpointTypeIsochronous:
		return "Isochronous"
	case EndpointTypeBulk:
		return "Bulk"
	case EndpointTypeInterrupt:
		return "Interrupt"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Endpoint states. The control sub-stages apply to EP0 only.
const (
	EpStateDisabled  EpState = iota // Not part of the active alternate setting
	EpStateIdle                     // Enabled, no transfer in progress
	EpStateStalled                  // STALL handshake set
	EpStateSetup                    // EP0: setup packet captured
	EpStateDataIn                   // EP0: transmitting the data stage
	EpStateDataOut                  // EP0: receiving the data stage
	EpStateStatusIn                 // EP0: transmitting the status ZLP
	EpStateStatusOut                // EP0: awaiting the status ZLP
	EpStateTransmit                 // Class endpoint: IN transfer in progress
	EpStateReceive                  // Class endpoint: OUT transfer in progress
)

// EpState represents the endpoint transfer state.
type EpState uint8

// String returns a human-readable endpoint state description.
func (s EpState) String() string {
	switch s {
	case EpStateDisabled:
		return "Disabled"
	case EpStateIdle:
		return "Idle"
	case EpStateStalled:
		return "Stalled"
	case EpStateSetup:
		return "Setup"
	case EpStateDataIn:
		return "DataIn"
	case EpStateDataOut:
		return "DataOut"
	case EpStateStatusIn:
		return "StatusIn"
	case EpStateStatusOut:
		return "StatusOut"
	case EpStateTransmit:
		return "Transmit"
	case EpStateReceive:
		return "Receive"
	default:
		return fmt.Sprintf("Unknown EpState (%d)", s)
	}
}

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

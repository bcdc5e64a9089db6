package usbd

// Class is the capability set an interface's function driver implements.
// All callbacks run on the stack's event goroutine; they must not block and
// must not re-enter the device from another goroutine.
type Class interface {
	// GetDescriptor writes the interface's descriptor chain for its active
	// alternate setting into dest, starting with the interface descriptor
	// itself. Returns the number of bytes written. The interface number and
	// any string indices must be patched using ifNum before writing.
	GetDescriptor(itf *Interface, ifNum uint8, dest []byte) (int, error)

	// GetString resolves an interface-local string index. The second return
	// value reports whether the index is defined.
	GetString(itf *Interface, index uint8) (string, bool)

	// Init activates the interface's current alternate setting, opening its
	// endpoints. Called on SET_CONFIGURATION and after an alternate setting
	// change. Calls are balanced: a configured interface sees exactly one
	// Deinit before its next Init.
	Init(itf *Interface)

	// Deinit deactivates the interface, closing its endpoints.
	Deinit(itf *Interface)

	// SetupStage offers a routed control request to the interface. The
	// captured setup packet is available from the device. Returning an error
	// rejects the request and stalls EP0.
	SetupStage(itf *Interface) error

	// DataStage delivers the completed OUT data stage of a control request
	// previously accepted by SetupStage.
	DataStage(itf *Interface)

	// OutData delivers a completed OUT transfer on a class endpoint.
	// The received payload is ep.Data().
	OutData(itf *Interface, ep *Endpoint)

	// InData reports a completed IN transfer on a class endpoint.
	InData(itf *Interface, ep *Endpoint)
}

// ClassBase is a no-op Class implementation for embedding. Drivers override
// only the callbacks they need.
type ClassBase struct{}

func (ClassBase) GetDescriptor(itf *Interface, ifNum uint8, dest []byte) (int, error) {
	return 0, nil
}
func (ClassBase) GetString(itf *Interface, index uint8) (string, bool) { return "", false }
func (ClassBase) Init(itf *Interface)                                  {}
func (ClassBase) Deinit(itf *Interface)                                {}
func (ClassBase) SetupStage(itf *Interface) error                      { return nil }
func (ClassBase) DataStage(itf *Interface)                             {}
func (ClassBase) OutData(itf *Interface, ep *Endpoint)                 {}
func (ClassBase) InData(itf *Interface, ep *Endpoint)                  {}

// Interface is one mounted interface slot. Slots are assigned in mount order
// and their indices are stable for the lifetime of the device.
type Interface struct {
	device *Device
	class  Class
	num    uint8

	altCount    uint8
	altSelector uint8
}

// Device returns the owning device.
func (i *Interface) Device() *Device { return i.device }

// Class returns the interface's function driver.
func (i *Interface) Class() Class { return i.class }

// Number returns the interface's slot index.
func (i *Interface) Number() uint8 { return i.num }

// AltCount returns the number of alternate settings.
func (i *Interface) AltCount() uint8 { return i.altCount }

// AltSetting returns the active alternate setting. Always less than
// AltCount.
func (i *Interface) AltSetting() uint8 { return i.altSelector }

package usbd

import (
	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd/hal"
)

// Device is a USB device protocol core. It owns the enumeration state
// machine, the interface slots, and both endpoint tables, and drives the
// peripheral through the HAL command interface.
//
// The device is not safe for concurrent use; all event processing is
// serialized by the Stack.
type Device struct {
	desc  Description
	port  hal.PeripheralDriver
	speed hal.Speed

	state     State
	linkState LinkState

	address     uint8
	pendingAddr uint8
	addrPending bool

	configSelector uint8
	remoteWakeup   bool

	ifaces    [MaxInterfaces]Interface
	numIfaces uint8

	epIn  [MaxEndpoints]Endpoint
	epOut [MaxEndpoints]Endpoint

	setup    SetupPacket
	ctrlData [ControlBufferSize]byte

	// Interface slot owning the current class control request, or
	// noInterface when the request is handled internally.
	ctrlOwner uint8

	// Data stage staging set by request handlers during setup processing.
	ctrlStaged  bool
	ctrlRecvBuf []byte
}

// New creates a device with the given identity, driven through port.
// The device starts unpowered; a bus reset brings it to the Default state.
func New(desc Description, port hal.PeripheralDriver) *Device {
	d := &Device{
		desc:      desc,
		port:      port,
		speed:     hal.SpeedFull,
		linkState: LinkStateOff,
		ctrlOwner: noInterface,
	}
	d.epOut[0].open(0, EndpointTypeControl, EP0MaxPacketSize, noInterface)
	d.epIn[0].open(EndpointDirectionIn, EndpointTypeControl, EP0MaxPacketSize, noInterface)
	return d
}

// Description returns the device identity.
func (d *Device) Description() Description { return d.desc }

// State returns the enumeration state.
func (d *Device) State() State { return d.state }

// LinkState returns the link power state.
func (d *Device) LinkState() LinkState { return d.linkState }

// Speed returns the negotiated connection speed.
func (d *Device) Speed() hal.Speed { return d.speed }

// SetSpeed records the speed negotiated at bus reset. Call before delivering
// the reset event.
func (d *Device) SetSpeed(speed hal.Speed) { d.speed = speed }

// Address returns the assigned bus address (0 in the Default state).
func (d *Device) Address() uint8 { return d.address }

// Setup returns the captured setup packet of the control transfer in
// progress. Valid inside class callbacks until the transfer's terminal
// stage.
func (d *Device) Setup() *SetupPacket { return &d.setup }

// AddInterface mounts a class driver into the next free interface slot.
// Slots are index-addressed and stable; interfaces cannot be unmounted.
// Mounting is only valid before the device is configured.
func (d *Device) AddInterface(class Class, altCount uint8) (*Interface, error) {
	if d.state == StateConfigured {
		return nil, pkg.ErrInvalidState
	}
	if d.numIfaces >= MaxInterfaces {
		return nil, pkg.ErrNoMemory
	}
	if class == nil || altCount == 0 {
		return nil, pkg.ErrInvalidRequest
	}
	itf := &d.ifaces[d.numIfaces]
	*itf = Interface{
		device:   d,
		class:    class,
		num:      d.numIfaces,
		altCount: altCount,
	}
	d.numIfaces++
	pkg.LogInfo(pkg.ComponentInterface, "interface mounted",
		"interface", itf.num, "altCount", altCount)
	return itf, nil
}

// Interface returns the interface in slot num, or nil.
func (d *Device) Interface(num uint8) *Interface {
	if num >= d.numIfaces {
		return nil
	}
	return &d.ifaces[num]
}

// InterfaceCount returns the number of mounted interfaces.
func (d *Device) InterfaceCount() uint8 { return d.numIfaces }

// Reset handles a bus reset: the device returns to the Default state with
// address 0, the configuration is torn down with the usual Deinit
// discipline, all class endpoints close, and EP0 recovers from any stall or
// half-finished transfer. Safe to call in any state, any number of times.
func (d *Device) Reset() {
	if d.state == StateConfigured {
		d.deconfigure()
	}
	d.state = StateDefault
	d.linkState = LinkStateActive
	d.address = 0
	d.addrPending = false
	d.configSelector = 0
	d.remoteWakeup = false
	d.ctrlOwner = noInterface
	for i := 1; i < MaxEndpoints; i++ {
		d.epIn[i].close()
		d.epOut[i].close()
	}
	d.epOut[0].open(0, EndpointTypeControl, EP0MaxPacketSize, noInterface)
	d.epIn[0].open(EndpointDirectionIn, EndpointTypeControl, EP0MaxPacketSize, noInterface)
	pkg.LogInfo(pkg.ComponentDevice, "bus reset", "speed", d.speed.String())
}

// Suspend records bus suspend. The enumeration state is preserved; only the
// link state changes.
func (d *Device) Suspend() {
	if d.linkState != LinkStateActive {
		return
	}
	d.linkState = LinkStateSuspended
	pkg.LogInfo(pkg.ComponentDevice, "suspended", "state", d.state.String())
}

// Resume records bus resume, restoring the Active link state.
func (d *Device) Resume() {
	if d.linkState != LinkStateSuspended && d.linkState != LinkStateSleep {
		return
	}
	d.linkState = LinkStateActive
	pkg.LogInfo(pkg.ComponentDevice, "resumed", "state", d.state.String())
}

// SetRemoteWakeup signals remote wakeup to the host. Valid only while
// suspended and only when the host has enabled the remote wakeup feature.
func (d *Device) SetRemoteWakeup() error {
	if !d.remoteWakeup {
		return pkg.ErrNotSupported
	}
	if d.linkState != LinkStateSuspended {
		return pkg.ErrInvalidState
	}
	d.linkState = LinkStateActive
	pkg.LogInfo(pkg.ComponentDevice, "remote wakeup signaled")
	return nil
}

// ConfigValue returns the selected configuration value (0 = unconfigured).
func (d *Device) ConfigValue() uint8 { return d.configSelector }

// setConfiguration applies a SET_CONFIGURATION request. Selecting the
// active configuration again tears it down first, so every Init is preceded
// by exactly one Deinit.
func (d *Device) setConfiguration(value uint8) error {
	if d.state == StateDefault {
		return pkg.ErrInvalidState
	}
	switch value {
	case 0:
		if d.state == StateConfigured {
			d.deconfigure()
		}
		d.configSelector = 0
		d.state = StateAddressed
	case 1:
		if d.state == StateConfigured {
			d.deconfigure()
		}
		d.configSelector = value
		d.configure()
		d.state = StateConfigured
	default:
		return pkg.ErrInvalidRequest
	}
	pkg.LogInfo(pkg.ComponentDevice, "configuration set",
		"config", value, "state", d.state.String())
	return nil
}

// configure activates every interface at alternate setting zero.
func (d *Device) configure() {
	for i := uint8(0); i < d.numIfaces; i++ {
		itf := &d.ifaces[i]
		itf.altSelector = 0
		itf.class.Init(itf)
	}
}

// deconfigure deactivates every interface and closes the class endpoints.
func (d *Device) deconfigure() {
	for i := uint8(0); i < d.numIfaces; i++ {
		itf := &d.ifaces[i]
		itf.class.Deinit(itf)
	}
	for i := 1; i < MaxEndpoints; i++ {
		d.epIn[i].close()
		d.epOut[i].close()
	}
}

// setInterface applies a SET_INTERFACE request, swapping the alternate
// setting through the Deinit/Init discipline. Unaffected interfaces are not
// touched.
func (d *Device) setInterface(ifNum, alt uint8) error {
	if d.state != StateConfigured {
		return pkg.ErrInvalidState
	}
	itf := d.Interface(ifNum)
	if itf == nil {
		return pkg.ErrInvalidRequest
	}
	if alt >= itf.altCount {
		return pkg.ErrInvalidRequest
	}
	if alt == itf.altSelector {
		return nil
	}
	itf.class.Deinit(itf)
	itf.altSelector = alt
	itf.class.Init(itf)
	pkg.LogInfo(pkg.ComponentInterface, "alternate setting changed",
		"interface", ifNum, "alt", alt)
	return nil
}

// endpointAt returns the endpoint for addr, or nil if the number is out of
// range.
func (d *Device) endpointAt(addr uint8) *Endpoint {
	num := addr &^ EndpointDirectionIn
	if num >= MaxEndpoints {
		return nil
	}
	if addr&EndpointDirectionIn != 0 {
		return &d.epIn[num]
	}
	return &d.epOut[num]
}

// EpOpen configures a class endpoint for the calling interface's alternate
// setting. EP0 is owned by the core and cannot be reassigned.
func (d *Device) EpOpen(addr uint8, epType EndpointType, mps uint16, ifNum uint8) error {
	if addr&^EndpointDirectionIn == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil || epType == EndpointTypeControl {
		return pkg.ErrInvalidEndpoint
	}
	if ep.state != EpStateDisabled {
		return pkg.ErrBusy
	}
	ep.open(addr, epType, mps, ifNum)
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint opened",
		"addr", addr, "type", epType.String(), "mps", mps, "interface", ifNum)
	return nil
}

// EpClose disables a class endpoint, dropping any transfer in progress.
func (d *Device) EpClose(addr uint8) error {
	if addr&^EndpointDirectionIn == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil {
		return pkg.ErrInvalidEndpoint
	}
	ep.close()
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint closed", "addr", addr)
	return nil
}

// EpSend starts an IN transfer on a class endpoint. The data slice must stay
// valid until the interface's InData callback fires.
func (d *Device) EpSend(addr uint8, data []byte) error {
	if addr&EndpointDirectionIn == 0 || addr&^EndpointDirectionIn == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil {
		return pkg.ErrInvalidEndpoint
	}
	if err := ep.validTransferState(); err != nil {
		return err
	}
	ep.state = EpStateTransmit
	return ep.send(d.port, data, false)
}

// EpReceive starts an OUT transfer on a class endpoint. Received data lands
// in buf; completion is reported through the interface's OutData callback.
func (d *Device) EpReceive(addr uint8, buf []byte) error {
	if addr&EndpointDirectionIn != 0 || addr == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil {
		return pkg.ErrInvalidEndpoint
	}
	if err := ep.validTransferState(); err != nil {
		return err
	}
	ep.state = EpStateReceive
	return ep.receive(d.port, buf)
}

// EpSetStall sets the halt feature on a class endpoint.
func (d *Device) EpSetStall(addr uint8) error {
	if addr&^EndpointDirectionIn == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil || ep.state == EpStateDisabled {
		return pkg.ErrInvalidEndpoint
	}
	if err := d.port.Stall(addr); err != nil {
		return err
	}
	ep.state = EpStateStalled
	return nil
}

// EpClearStall clears the halt feature, returning the endpoint to Idle.
func (d *Device) EpClearStall(addr uint8) error {
	if addr&^EndpointDirectionIn == 0 {
		return pkg.ErrInvalidEndpoint
	}
	ep := d.endpointAt(addr)
	if ep == nil || ep.state == EpStateDisabled {
		return pkg.ErrInvalidEndpoint
	}
	if err := d.port.Unstall(addr); err != nil {
		return err
	}
	ep.state = EpStateIdle
	ep.transfer = Transfer{}
	return nil
}

// deviceStatus builds the GET_STATUS response bits for the device recipient.
func (d *Device) deviceStatus() uint16 {
	var status uint16
	if d.desc.Config.SelfPowered {
		status |= 0x0001
	}
	if d.remoteWakeup {
		status |= 0x0002
	}
	return status
}

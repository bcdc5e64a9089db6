package usbd

import (
	"encoding/binary"

	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd/hal"
)

// handleSetup processes a captured setup packet, running the request through
// the routing table and starting the appropriate data or status stage.
// A new setup packet silently aborts any control transfer in flight,
// including recovery from a stalled EP0 (the controller clears the stall
// when it accepts the SETUP token).
func (d *Device) handleSetup(raw [SetupPacketSize]byte) {
	ep0In, ep0Out := &d.epIn[0], &d.epOut[0]
	ep0In.state = EpStateIdle
	ep0In.transfer = Transfer{}
	ep0Out.state = EpStateIdle
	ep0Out.transfer = Transfer{}
	d.ctrlOwner = noInterface
	d.ctrlStaged = false
	d.ctrlRecvBuf = nil

	if err := ParseSetupPacket(raw[:], &d.setup); err != nil {
		d.stallControl()
		return
	}
	s := &d.setup
	pkg.LogDebug(pkg.ComponentControl, "setup received", "packet", s.String())
	ep0Out.state = EpStateSetup

	if s.IsHostToDevice() && int(s.Length) > ControlBufferSize {
		pkg.LogWarn(pkg.ComponentControl, "data stage exceeds control buffer",
			"length", s.Length)
		d.stallControl()
		return
	}

	if err := d.processRequest(); err != nil {
		pkg.LogDebug(pkg.ComponentControl, "request rejected",
			"packet", s.String(), "error", err)
		d.stallControl()
		return
	}

	switch {
	case s.Length == 0:
		d.startStatusIn()
	case s.IsDeviceToHost():
		// Data stage armed by CtrlSendData during processing.
		if !d.ctrlStaged {
			d.stallControl()
		}
	default:
		buf := d.ctrlRecvBuf
		if buf == nil {
			buf = d.ctrlData[:s.Length]
		}
		ep0Out.state = EpStateDataOut
		if err := ep0Out.receive(d.port, buf); err != nil {
			d.stallControl()
		}
	}
}

// handleInComplete consumes an IN transfer completion of count drained
// bytes.
func (d *Device) handleInComplete(epNum uint8, count int) {
	if epNum == 0 {
		d.handleControlInComplete(count)
		return
	}
	if epNum >= MaxEndpoints {
		return
	}
	ep := &d.epIn[epNum]
	if ep.state != EpStateTransmit {
		return
	}
	done, err := ep.advanceTransmit(d.port, count)
	if err != nil {
		pkg.LogError(pkg.ComponentEndpoint, "transmit failed",
			"ep", epNum, "error", err)
		ep.state = EpStateIdle
		return
	}
	if !done {
		return
	}
	ep.state = EpStateIdle
	if itf := d.Interface(ep.ifNum); itf != nil {
		itf.class.InData(itf, ep)
	}
}

// handleOutComplete consumes an OUT transfer completion of count received
// bytes.
func (d *Device) handleOutComplete(epNum uint8, count int) {
	if epNum == 0 {
		d.handleControlOutComplete(count)
		return
	}
	if epNum >= MaxEndpoints {
		return
	}
	ep := &d.epOut[epNum]
	if ep.state != EpStateReceive {
		return
	}
	ep.finishReceive(count)
	ep.state = EpStateIdle
	if itf := d.Interface(ep.ifNum); itf != nil {
		itf.class.OutData(itf, ep)
	}
}

// handleControlInComplete advances EP0 through the IN side of the stage
// machine. The address latched by SET_ADDRESS is applied here, strictly
// after the status stage completes.
func (d *Device) handleControlInComplete(count int) {
	ep0 := &d.epIn[0]
	switch ep0.state {
	case EpStateDataIn:
		done, err := ep0.advanceTransmit(d.port, count)
		if err != nil {
			d.stallControl()
			return
		}
		if done {
			d.startStatusOut()
		}
	case EpStateStatusIn:
		if d.addrPending {
			d.addrPending = false
			d.address = d.pendingAddr
			if err := d.port.SetDeviceAddress(d.address); err != nil {
				pkg.LogError(pkg.ComponentDevice, "address programming failed",
					"address", d.address, "error", err)
			}
			if d.address != 0 {
				d.state = StateAddressed
			} else {
				d.state = StateDefault
			}
			pkg.LogInfo(pkg.ComponentDevice, "address assigned",
				"address", d.address, "state", d.state.String())
		}
		d.finishControl()
	}
}

// handleControlOutComplete advances EP0 through the OUT side of the stage
// machine. A completed data stage runs the owning interface's DataStage
// callback before the status stage is armed.
func (d *Device) handleControlOutComplete(count int) {
	ep0 := &d.epOut[0]
	switch ep0.state {
	case EpStateDataOut:
		ep0.finishReceive(count)
		if itf := d.Interface(d.ctrlOwner); itf != nil {
			itf.class.DataStage(itf)
		}
		d.startStatusIn()
	case EpStateStatusOut:
		d.finishControl()
	}
}

// startStatusIn arms the zero-length status handshake of an OUT or no-data
// transfer.
func (d *Device) startStatusIn() {
	d.epIn[0].state = EpStateStatusIn
	if err := d.port.ArmTransmit(0, nil); err != nil {
		d.stallControl()
	}
}

// startStatusOut arms the zero-length status handshake of an IN transfer.
func (d *Device) startStatusOut() {
	d.epOut[0].state = EpStateStatusOut
	if err := d.port.ArmReceive(0, nil); err != nil {
		d.stallControl()
	}
}

// finishControl returns EP0 to idle after a transfer's terminal stage.
func (d *Device) finishControl() {
	d.epIn[0].state = EpStateIdle
	d.epIn[0].transfer = Transfer{}
	d.epOut[0].state = EpStateIdle
	d.epOut[0].transfer = Transfer{}
	d.ctrlOwner = noInterface
	d.ctrlStaged = false
	d.ctrlRecvBuf = nil
}

// stallControl rejects the current control transfer by stalling EP0 in both
// directions. Device state is never modified on the rejection path; the
// next setup packet clears the stall.
func (d *Device) stallControl() {
	d.port.Stall(EndpointDirectionIn)
	d.port.Stall(EndpointDirectionOut)
	d.epIn[0].state = EpStateStalled
	d.epOut[0].state = EpStateStalled
	d.ctrlOwner = noInterface
	d.ctrlStaged = false
	d.ctrlRecvBuf = nil
}

// CtrlSendData stages the data stage reply of an IN control request.
// Called by request handlers, including class SetupStage callbacks, during
// setup processing. The reply is truncated to wLength and chunked to the
// EP0 max packet size; a terminating zero-length packet is appended exactly
// when the reply is shorter than wLength and a multiple of the max packet
// size.
func (d *Device) CtrlSendData(data []byte) error {
	s := &d.setup
	if !s.IsDeviceToHost() {
		return pkg.ErrInvalidRequest
	}
	if d.ctrlStaged {
		return pkg.ErrBusy
	}
	n := len(data)
	if n > int(s.Length) {
		n = int(s.Length)
	}
	mps := int(d.epIn[0].maxPacketSize)
	needZLP := n > 0 && n < int(s.Length) && n%mps == 0
	d.ctrlStaged = true
	ep0 := &d.epIn[0]
	ep0.state = EpStateDataIn
	return ep0.send(d.port, data[:n], needZLP)
}

// CtrlReceiveData stages the destination buffer for the data stage of an
// OUT control request. Called by class SetupStage callbacks that want the
// payload delivered into their own memory; without it the core receives
// into its shared control buffer.
func (d *Device) CtrlReceiveData(buf []byte) error {
	s := &d.setup
	if s.IsDeviceToHost() || s.Length == 0 {
		return pkg.ErrInvalidRequest
	}
	if d.ctrlStaged {
		return pkg.ErrBusy
	}
	if len(buf) < int(s.Length) {
		return pkg.ErrBufferTooSmall
	}
	d.ctrlRecvBuf = buf[:s.Length]
	d.ctrlStaged = true
	return nil
}

// CtrlData returns the data stage payload received into the shared control
// buffer. Valid inside a DataStage callback when no destination was staged.
func (d *Device) CtrlData() []byte {
	return d.epOut[0].Data()
}

// processRequest routes the captured setup packet per the recipient and
// type bits. Any error return rejects the request.
func (d *Device) processRequest() error {
	s := &d.setup
	if s.IsStandard() {
		switch s.Recipient() {
		case RequestRecipientDevice:
			return d.standardDeviceRequest()
		case RequestRecipientInterface:
			return d.standardInterfaceRequest()
		case RequestRecipientEndpoint:
			return d.standardEndpointRequest()
		}
		return pkg.ErrInvalidRequest
	}
	switch s.Recipient() {
	case RequestRecipientInterface:
		return d.routeToInterface(s.InterfaceNumber())
	case RequestRecipientEndpoint:
		ep := d.endpointAt(s.EndpointAddress())
		if ep == nil || ep.state == EpStateDisabled {
			return pkg.ErrInvalidEndpoint
		}
		return d.routeToInterface(ep.ifNum)
	case RequestRecipientDevice:
		// No interface is named; offer the request to each until one
		// accepts.
		for i := uint8(0); i < d.numIfaces; i++ {
			if d.routeToInterface(i) == nil {
				return nil
			}
		}
		return pkg.ErrInvalidRequest
	}
	return pkg.ErrInvalidRequest
}

// routeToInterface offers the captured request to one interface's
// SetupStage.
func (d *Device) routeToInterface(num uint8) error {
	itf := d.Interface(num)
	if itf == nil {
		return pkg.ErrInvalidRequest
	}
	if err := itf.class.SetupStage(itf); err != nil {
		return err
	}
	d.ctrlOwner = num
	return nil
}

func (d *Device) standardDeviceRequest() error {
	s := &d.setup
	switch s.Request {
	case RequestGetStatus:
		binary.LittleEndian.PutUint16(d.ctrlData[:2], d.deviceStatus())
		return d.CtrlSendData(d.ctrlData[:2])

	case RequestSetAddress:
		if d.state == StateConfigured || s.Value > 127 {
			return pkg.ErrInvalidRequest
		}
		d.pendingAddr = uint8(s.Value)
		d.addrPending = true
		return nil

	case RequestGetDescriptor:
		return d.descriptorRequest()

	case RequestGetConfiguration:
		if d.state == StateDefault {
			return pkg.ErrInvalidState
		}
		d.ctrlData[0] = d.configSelector
		return d.CtrlSendData(d.ctrlData[:1])

	case RequestSetConfiguration:
		return d.setConfiguration(uint8(s.Value))

	case RequestSetFeature:
		if s.Value == FeatureDeviceRemoteWakeup && d.desc.Config.RemoteWakeup {
			d.remoteWakeup = true
			return nil
		}
		return pkg.ErrInvalidRequest

	case RequestClearFeature:
		if s.Value == FeatureDeviceRemoteWakeup && d.desc.Config.RemoteWakeup {
			d.remoteWakeup = false
			return nil
		}
		return pkg.ErrInvalidRequest

	case RequestSetDescriptor, RequestSynchFrame:
		return pkg.ErrNotSupported
	}
	return pkg.ErrInvalidRequest
}

func (d *Device) standardInterfaceRequest() error {
	s := &d.setup
	switch s.Request {
	case RequestGetStatus:
		if d.Interface(s.InterfaceNumber()) == nil {
			return pkg.ErrInvalidRequest
		}
		d.ctrlData[0], d.ctrlData[1] = 0, 0
		return d.CtrlSendData(d.ctrlData[:2])

	case RequestGetInterface:
		if d.state != StateConfigured {
			return pkg.ErrInvalidState
		}
		itf := d.Interface(s.InterfaceNumber())
		if itf == nil {
			return pkg.ErrInvalidRequest
		}
		d.ctrlData[0] = itf.altSelector
		return d.CtrlSendData(d.ctrlData[:1])

	case RequestSetInterface:
		return d.setInterface(s.InterfaceNumber(), uint8(s.Value))
	}
	// Unclaimed standard interface requests fall through to the class.
	return d.routeToInterface(s.InterfaceNumber())
}

func (d *Device) standardEndpointRequest() error {
	s := &d.setup
	addr := s.EndpointAddress()
	ep := d.endpointAt(addr)
	if ep == nil {
		return pkg.ErrInvalidEndpoint
	}
	if addr&^EndpointDirectionIn != 0 && ep.state == EpStateDisabled {
		return pkg.ErrInvalidEndpoint
	}
	switch s.Request {
	case RequestGetStatus:
		var status uint16
		if ep.state == EpStateStalled {
			status = 0x0001
		}
		binary.LittleEndian.PutUint16(d.ctrlData[:2], status)
		return d.CtrlSendData(d.ctrlData[:2])

	case RequestSetFeature:
		if s.Value != FeatureEndpointHalt {
			return pkg.ErrInvalidRequest
		}
		return d.EpSetStall(addr)

	case RequestClearFeature:
		if s.Value != FeatureEndpointHalt {
			return pkg.ErrInvalidRequest
		}
		return d.EpClearStall(addr)
	}
	return pkg.ErrInvalidRequest
}

// descriptorRequest answers GET_DESCRIPTOR for the device recipient.
func (d *Device) descriptorRequest() error {
	s := &d.setup
	switch s.DescriptorType() {
	case DescriptorTypeDevice:
		dd := d.deviceDescriptor()
		n := dd.MarshalTo(d.ctrlData[:])
		return d.CtrlSendData(d.ctrlData[:n])

	case DescriptorTypeConfiguration:
		n, err := d.ConfigDescriptor(d.ctrlData[:])
		if err != nil {
			return err
		}
		return d.CtrlSendData(d.ctrlData[:n])

	case DescriptorTypeString:
		n, err := d.StringDescriptor(s.DescriptorIndex(), d.ctrlData[:])
		if err != nil {
			return err
		}
		return d.CtrlSendData(d.ctrlData[:n])

	case DescriptorTypeDeviceQualifier:
		// Full-speed-only devices stall the qualifier request.
		if d.speed != hal.SpeedHigh {
			return pkg.ErrInvalidRequest
		}
		n := d.deviceQualifierTo(d.ctrlData[:])
		return d.CtrlSendData(d.ctrlData[:n])
	}
	return pkg.ErrInvalidRequest
}

// deviceDescriptor synthesizes the device descriptor from the Description.
func (d *Device) deviceDescriptor() DeviceDescriptor {
	return DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    EP0MaxPacketSize,
		VendorID:          d.desc.Vendor.ID,
		ProductID:         d.desc.Product.ID,
		DeviceVersion:     uint16(d.desc.Product.Version),
		ManufacturerIndex: StringIndexVendor,
		ProductIndex:      StringIndexProduct,
		SerialNumberIndex: StringIndexSerial,
		NumConfigurations: 1,
	}
}

// deviceQualifierTo writes the 10-byte device qualifier descriptor.
func (d *Device) deviceQualifierTo(buf []byte) int {
	const size = 10
	if len(buf) < size {
		return 0
	}
	buf[0] = size
	buf[1] = DescriptorTypeDeviceQualifier
	binary.LittleEndian.PutUint16(buf[2:4], 0x0200)
	buf[4] = 0 // class
	buf[5] = 0 // subclass
	buf[6] = 0 // protocol
	buf[7] = EP0MaxPacketSize
	buf[8] = 1 // configurations
	buf[9] = 0 // reserved
	return size
}

// ConfigDescriptor assembles the full configuration descriptor: the 9-byte
// header followed by every interface's descriptor chain in slot order.
// Nothing is written to dest unless the whole descriptor fits.
func (d *Device) ConfigDescriptor(dest []byte) (int, error) {
	var scratch [ControlBufferSize]byte
	total := ConfigurationDescriptorSize
	for i := uint8(0); i < d.numIfaces; i++ {
		itf := &d.ifaces[i]
		n, err := itf.class.GetDescriptor(itf, i, scratch[total:])
		if err != nil {
			return 0, err
		}
		total += n
	}
	attrs := uint8(ConfigAttrBusPowered)
	if d.desc.Config.SelfPowered {
		attrs |= ConfigAttrSelfPowered
	}
	if d.desc.Config.RemoteWakeup {
		attrs |= ConfigAttrRemoteWakeup
	}
	cfg := ConfigurationDescriptor{
		TotalLength:        uint16(total),
		NumInterfaces:      d.numIfaces,
		ConfigurationValue: 1,
		ConfigurationIndex: StringIndexConfiguration,
		Attributes:         attrs,
		MaxPower:           uint8(d.desc.Config.MaxCurrentMA / 2),
	}
	cfg.MarshalTo(scratch[:])
	if total > len(dest) {
		return 0, pkg.ErrInvalidRequest
	}
	copy(dest, scratch[:total])
	return total, nil
}

// StringDescriptor assembles the string descriptor for index. Indices 0
// through 4 are owned by the core; higher indices split into an interface
// selector (high nibble) and an interface-internal index (low nibble) and
// are resolved through the interface's GetString.
func (d *Device) StringDescriptor(index uint8, dest []byte) (int, error) {
	switch index {
	case StringIndexLangID:
		return d.stringResult(LanguageDescriptorTo(dest, LangIDUSEnglish))
	case StringIndexVendor:
		return d.stringResult(StringDescriptorTo(dest, d.desc.Vendor.Name))
	case StringIndexProduct:
		return d.stringResult(StringDescriptorTo(dest, d.desc.Product.Name))
	case StringIndexSerial:
		return SerialDescriptorTo(dest, d.desc.SerialNumber[:])
	case StringIndexConfiguration:
		return d.stringResult(StringDescriptorTo(dest, d.desc.Config.Name))
	}
	itf := d.Interface(index >> 4)
	if itf == nil {
		return 0, pkg.ErrInvalidRequest
	}
	s, ok := itf.class.GetString(itf, index&0x0F)
	if !ok {
		return 0, pkg.ErrInvalidRequest
	}
	return d.stringResult(StringDescriptorTo(dest, s))
}

func (d *Device) stringResult(n int) (int, error) {
	if n == 0 {
		return 0, pkg.ErrBufferTooSmall
	}
	return n, nil
}

package serial

import (
	"encoding/binary"

	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd"
)

// LineCodingSize is the wire size of a line coding block.
const LineCodingSize = 7

// LineCoding is the serial line configuration exchanged by the line coding
// requests.
type LineCoding struct {
	BaudRate uint32 // Data terminal rate in bits per second
	StopBits uint8  // 0=1, 1=1.5, 2=2
	Parity   uint8  // 0=None, 1=Odd, 2=Even, 3=Mark, 4=Space
	DataBits uint8  // 5, 6, 7, 8, or 16
}

// DefaultLineCoding is 115200 8N1.
var DefaultLineCoding = LineCoding{BaudRate: 115200, DataBits: 8}

// MarshalTo serializes the line coding to buf.
// Returns the number of bytes written (always 7 if buf is large enough).
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], lc.BaudRate)
	buf[4] = lc.StopBits
	buf[5] = lc.Parity
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses a line coding block from 7 bytes into out.
func ParseLineCoding(data []byte, out *LineCoding) error {
	if len(data) < LineCodingSize {
		return pkg.ErrBufferTooSmall
	}
	out.BaudRate = binary.LittleEndian.Uint32(data[0:4])
	out.StopBits = data[4]
	out.Parity = data[5]
	out.DataBits = data[6]
	return nil
}

// strIndexFunction is the interface-local string index of the function
// name. Kept above the core-owned descriptor string indices.
const strIndexFunction = 5

// Driver is a CDC-ACM-style serial function with two alternate settings:
// setting 0 exposes only the notification endpoint, setting 1 adds the bulk
// data pair. Received bulk data is echoed back to the host.
type Driver struct {
	itf *usbd.Interface

	lineCoding    LineCoding
	lineCodingBuf [LineCodingSize]byte
	controlState  uint16

	rxBuf [BufferSize]byte
	txBuf [BufferSize]byte

	onLineCodingChange   func(LineCoding)
	onControlStateChange func(dtr, rts bool)
}

// AltCount is the number of alternate settings the driver mounts with.
const AltCount = 2

// New creates a serial function driver.
func New() *Driver {
	return &Driver{lineCoding: DefaultLineCoding}
}

// Mount binds the driver into the next free interface slot of dev.
func (s *Driver) Mount(dev *usbd.Device) (*usbd.Interface, error) {
	return dev.AddInterface(s, AltCount)
}

// LineCoding returns the line coding last set by the host.
func (s *Driver) LineCoding() LineCoding { return s.lineCoding }

// DTR returns the Data Terminal Ready state.
func (s *Driver) DTR() bool { return s.controlState&ControlLineDTR != 0 }

// RTS returns the Request To Send state.
func (s *Driver) RTS() bool { return s.controlState&ControlLineRTS != 0 }

// SetOnLineCodingChange sets the callback for line coding changes.
func (s *Driver) SetOnLineCodingChange(cb func(LineCoding)) {
	s.onLineCodingChange = cb
}

// SetOnControlStateChange sets the callback for control line state changes.
func (s *Driver) SetOnControlStateChange(cb func(dtr, rts bool)) {
	s.onControlStateChange = cb
}

// Send transmits data to the host on the bulk IN endpoint. Valid only while
// the full alternate setting is active.
func (s *Driver) Send(data []byte) error {
	if s.itf == nil || s.itf.AltSetting() != AltFull {
		return pkg.ErrInvalidState
	}
	if len(data) > len(s.txBuf) {
		return pkg.ErrBufferTooSmall
	}
	n := copy(s.txBuf[:], data)
	return s.itf.Device().EpSend(DataInEpAddr, s.txBuf[:n])
}

// GetDescriptor writes the interface descriptors for both alternate
// settings, each followed by its endpoint descriptors.
func (s *Driver) GetDescriptor(itf *usbd.Interface, ifNum uint8, dest []byte) (int, error) {
	const total = 2*usbd.InterfaceDescriptorSize + 4*usbd.EndpointDescriptorSize
	if len(dest) < total {
		return 0, pkg.ErrBufferTooSmall
	}
	strIndex := ifNum<<4 | strIndexFunction

	pos := 0
	alt0 := usbd.InterfaceDescriptor{
		InterfaceNumber:   ifNum,
		AlternateSetting:  AltNotifyOnly,
		NumEndpoints:      1,
		InterfaceClass:    ClassCDC,
		InterfaceSubClass: SubclassACM,
		InterfaceProtocol: ProtocolNone,
		InterfaceIndex:    strIndex,
	}
	pos += alt0.MarshalTo(dest[pos:])
	pos += s.notifyEpDescriptor().MarshalTo(dest[pos:])

	alt1 := alt0
	alt1.AlternateSetting = AltFull
	alt1.NumEndpoints = 3
	pos += alt1.MarshalTo(dest[pos:])
	pos += s.notifyEpDescriptor().MarshalTo(dest[pos:])
	pos += (&usbd.EndpointDescriptor{
		EndpointAddress: DataInEpAddr,
		Attributes:      uint8(usbd.EndpointTypeBulk),
		MaxPacketSize:   DataPacketSize,
	}).MarshalTo(dest[pos:])
	pos += (&usbd.EndpointDescriptor{
		EndpointAddress: DataOutEpAddr,
		Attributes:      uint8(usbd.EndpointTypeBulk),
		MaxPacketSize:   DataPacketSize,
	}).MarshalTo(dest[pos:])
	return pos, nil
}

func (s *Driver) notifyEpDescriptor() *usbd.EndpointDescriptor {
	return &usbd.EndpointDescriptor{
		EndpointAddress: NotifyEpAddr,
		Attributes:      uint8(usbd.EndpointTypeInterrupt),
		MaxPacketSize:   NotifyPacketSize,
		Interval:        16,
	}
}

// GetString resolves the interface-local string indices.
func (s *Driver) GetString(itf *usbd.Interface, index uint8) (string, bool) {
	if index == strIndexFunction {
		return "Virtual Serial Port", true
	}
	return "", false
}

// Init opens the endpoints of the active alternate setting. For the full
// setting the bulk OUT endpoint is armed immediately.
func (s *Driver) Init(itf *usbd.Interface) {
	s.itf = itf
	dev := itf.Device()
	num := itf.Number()
	dev.EpOpen(NotifyEpAddr, usbd.EndpointTypeInterrupt, NotifyPacketSize, num)
	if itf.AltSetting() == AltFull {
		dev.EpOpen(DataInEpAddr, usbd.EndpointTypeBulk, DataPacketSize, num)
		dev.EpOpen(DataOutEpAddr, usbd.EndpointTypeBulk, DataPacketSize, num)
		dev.EpReceive(DataOutEpAddr, s.rxBuf[:])
	}
}

// Deinit closes every endpoint the driver may have opened.
func (s *Driver) Deinit(itf *usbd.Interface) {
	dev := itf.Device()
	dev.EpClose(NotifyEpAddr)
	dev.EpClose(DataInEpAddr)
	dev.EpClose(DataOutEpAddr)
}

// SetupStage handles the line coding and control line state requests.
func (s *Driver) SetupStage(itf *usbd.Interface) error {
	dev := itf.Device()
	setup := dev.Setup()
	if !setup.IsClass() {
		return pkg.ErrNotSupported
	}
	switch setup.Request {
	case RequestSetLineCoding:
		if setup.Length != LineCodingSize {
			return pkg.ErrInvalidRequest
		}
		return dev.CtrlReceiveData(s.lineCodingBuf[:])

	case RequestGetLineCoding:
		n := s.lineCoding.MarshalTo(s.lineCodingBuf[:])
		return dev.CtrlSendData(s.lineCodingBuf[:n])

	case RequestSetControlLineState:
		if setup.Length != 0 {
			return pkg.ErrInvalidRequest
		}
		s.controlState = setup.Value
		if s.onControlStateChange != nil {
			s.onControlStateChange(s.DTR(), s.RTS())
		}
		return nil
	}
	return pkg.ErrNotSupported
}

// DataStage applies the line coding delivered by SET_LINE_CODING.
func (s *Driver) DataStage(itf *usbd.Interface) {
	if itf.Device().Setup().Request != RequestSetLineCoding {
		return
	}
	if err := ParseLineCoding(s.lineCodingBuf[:], &s.lineCoding); err != nil {
		return
	}
	if s.onLineCodingChange != nil {
		s.onLineCodingChange(s.lineCoding)
	}
}

// OutData echoes received bulk data back to the host. The receive endpoint
// is re-armed after the echo transmit completes.
func (s *Driver) OutData(itf *usbd.Interface, ep *usbd.Endpoint) {
	if ep.Address() != DataOutEpAddr {
		return
	}
	data := ep.Data()
	if len(data) == 0 {
		itf.Device().EpReceive(DataOutEpAddr, s.rxBuf[:])
		return
	}
	n := copy(s.txBuf[:], data)
	if err := itf.Device().EpSend(DataInEpAddr, s.txBuf[:n]); err != nil {
		itf.Device().EpReceive(DataOutEpAddr, s.rxBuf[:])
	}
}

// InData re-arms the bulk OUT endpoint once the echo transmit drains.
func (s *Driver) InData(itf *usbd.Interface, ep *usbd.Endpoint) {
	if ep.Address() != DataInEpAddr {
		return
	}
	if itf.AltSetting() == AltFull {
		itf.Device().EpReceive(DataOutEpAddr, s.rxBuf[:])
	}
}

package serial

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fuxunyang/USBDevice/usbd"
	"github.com/fuxunyang/USBDevice/usbd/hal/loopback"
)

func testDescription() usbd.Description {
	var desc usbd.Description
	desc.Vendor.Name = "ACME"
	desc.Vendor.ID = 0x1234
	desc.Product.Name = "Widget"
	desc.Product.ID = 0x5678
	desc.SerialNumber = [usbd.SerialNumberSize]byte{1, 2, 3, 4, 5, 6}
	desc.Config.Name = "Main"
	desc.Config.MaxCurrentMA = 100
	return desc
}

// host pumps control transfers against the loopback command log.
type host struct {
	t      *testing.T
	stack  *usbd.Stack
	port   *loopback.Driver
	cursor int
}

func newHost(t *testing.T) (*host, *Driver) {
	t.Helper()
	port := loopback.New()
	dev := usbd.New(testDescription(), port)
	stack := usbd.NewStack(dev, 0)

	ser := New()
	if _, err := ser.Mount(dev); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	stack.Process(usbd.Event{Kind: usbd.EventBusReset})
	h := &host{t: t, stack: stack, port: port, cursor: port.CommandCount()}
	return h, ser
}

func (h *host) submit(sp usbd.SetupPacket, outData []byte) ([]byte, error) {
	var raw [usbd.SetupPacketSize]byte
	sp.MarshalTo(raw[:])
	h.stack.Process(usbd.Event{Kind: usbd.EventSetup, Setup: raw})

	var reply []byte
	for {
		cmds := h.port.CommandsSince(h.cursor)
		if len(cmds) == 0 {
			return reply, nil
		}
		for _, c := range cmds {
			h.cursor++
			switch c.Op {
			case loopback.OpStall:
				h.cursor = h.port.CommandCount()
				return reply, fmt.Errorf("endpoint 0x%02X stalled", c.Ep)
			case loopback.OpArmTransmit:
				if c.Ep != 0 {
					continue
				}
				reply = append(reply, c.Data...)
				h.stack.Process(usbd.Event{Kind: usbd.EventInComplete, Count: len(c.Data)})
			case loopback.OpArmReceive:
				if c.Ep != 0 {
					continue
				}
				n := 0
				if c.Len > 0 {
					n = copy(h.port.ArmedReceive(0), outData)
					outData = nil
				}
				h.stack.Process(usbd.Event{Kind: usbd.EventOutComplete, Count: n})
			}
		}
	}
}

func (h *host) mustSubmit(sp usbd.SetupPacket, outData []byte) []byte {
	h.t.Helper()
	data, err := h.submit(sp, outData)
	if err != nil {
		h.t.Fatalf("%s: %v", sp.String(), err)
	}
	return data
}

func (h *host) configure() {
	h.t.Helper()
	var sp usbd.SetupPacket
	usbd.SetAddressSetup(&sp, 5)
	h.mustSubmit(sp, nil)
	usbd.SetConfigurationSetup(&sp, 1)
	h.mustSubmit(sp, nil)
}

func classInterfaceSetup(request uint8, value, length uint16) usbd.SetupPacket {
	rt := uint8(usbd.RequestDirectionHostToDevice)
	if request == RequestGetLineCoding {
		rt = usbd.RequestDirectionDeviceToHost
	}
	return usbd.SetupPacket{
		RequestType: rt | usbd.RequestTypeClass | usbd.RequestRecipientInterface,
		Request:     request,
		Value:       value,
		Length:      length,
	}
}

func TestLineCodingRoundTrip(t *testing.T) {
	lc := LineCoding{BaudRate: 921600, StopBits: 2, Parity: 1, DataBits: 7}
	var buf [LineCodingSize]byte
	if n := lc.MarshalTo(buf[:]); n != LineCodingSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, LineCodingSize)
	}
	var got LineCoding
	if err := ParseLineCoding(buf[:], &got); err != nil {
		t.Fatalf("ParseLineCoding() error = %v", err)
	}
	if got != lc {
		t.Errorf("round trip = %+v, want %+v", got, lc)
	}
	if err := ParseLineCoding(buf[:4], &got); err == nil {
		t.Error("ParseLineCoding(short) error = nil, want error")
	}
}

func TestSetLineCoding(t *testing.T) {
	h, ser := newHost(t)
	h.configure()

	var changed LineCoding
	ser.SetOnLineCodingChange(func(lc LineCoding) { changed = lc })

	want := LineCoding{BaudRate: 9600, DataBits: 8}
	var payload [LineCodingSize]byte
	want.MarshalTo(payload[:])
	h.mustSubmit(classInterfaceSetup(RequestSetLineCoding, 0, LineCodingSize), payload[:])

	if got := ser.LineCoding(); got != want {
		t.Errorf("LineCoding() = %+v, want %+v", got, want)
	}
	if changed != want {
		t.Errorf("change callback got %+v, want %+v", changed, want)
	}
}

func TestGetLineCoding(t *testing.T) {
	h, ser := newHost(t)
	h.configure()

	data := h.mustSubmit(classInterfaceSetup(RequestGetLineCoding, 0, LineCodingSize), nil)
	if len(data) != LineCodingSize {
		t.Fatalf("reply length = %d, want %d", len(data), LineCodingSize)
	}
	var got LineCoding
	if err := ParseLineCoding(data, &got); err != nil {
		t.Fatalf("ParseLineCoding() error = %v", err)
	}
	if got != ser.LineCoding() {
		t.Errorf("reply = %+v, want %+v", got, ser.LineCoding())
	}
}

func TestSetControlLineState(t *testing.T) {
	h, ser := newHost(t)
	h.configure()

	var gotDTR, gotRTS bool
	ser.SetOnControlStateChange(func(dtr, rts bool) { gotDTR, gotRTS = dtr, rts })

	h.mustSubmit(classInterfaceSetup(RequestSetControlLineState, ControlLineDTR|ControlLineRTS, 0), nil)

	if !ser.DTR() || !ser.RTS() {
		t.Errorf("DTR() = %v, RTS() = %v, want true, true", ser.DTR(), ser.RTS())
	}
	if !gotDTR || !gotRTS {
		t.Errorf("callback got dtr=%v rts=%v, want true, true", gotDTR, gotRTS)
	}

	h.mustSubmit(classInterfaceSetup(RequestSetControlLineState, 0, 0), nil)
	if ser.DTR() || ser.RTS() {
		t.Error("control lines still asserted after clear")
	}
}

func TestInvalidLineCodingLengthStalls(t *testing.T) {
	h, _ := newHost(t)
	h.configure()

	if _, err := h.submit(classInterfaceSetup(RequestSetLineCoding, 0, 3), []byte{1, 2, 3}); err == nil {
		t.Error("submit() error = nil, want stall for bad wLength")
	}
}

func TestAlternateSettingsAndEcho(t *testing.T) {
	h, _ := newHost(t)
	h.configure()

	// Alternate setting 0 has no bulk data endpoints armed.
	if got := h.port.ArmedReceive(DataOutEpAddr); got != nil {
		t.Fatalf("bulk OUT armed in alt 0: %d bytes", len(got))
	}

	var sp usbd.SetupPacket
	usbd.SetInterfaceSetup(&sp, 0, AltFull)
	h.mustSubmit(sp, nil)

	armed := h.port.ArmedReceive(DataOutEpAddr)
	if len(armed) != BufferSize {
		t.Fatalf("bulk OUT armed %d bytes, want %d", len(armed), BufferSize)
	}

	// Host writes bulk data; the driver echoes it on the IN endpoint.
	msg := []byte("ping")
	copy(armed, msg)
	h.stack.Process(usbd.Event{Kind: usbd.EventOutComplete, EpNum: DataOutEpAddr, Count: len(msg)})

	echo := h.port.LastTransmit(DataInEpAddr & 0x0F)
	if !bytes.Equal(echo, msg) {
		t.Fatalf("echo = %q, want %q", echo, msg)
	}

	// Draining the echo re-arms the OUT endpoint.
	mark := h.port.CommandCount()
	h.stack.Process(usbd.Event{Kind: usbd.EventInComplete, EpNum: DataInEpAddr & 0x0F, Count: len(msg)})
	rearmed := false
	for _, c := range h.port.CommandsSince(mark) {
		if c.Op == loopback.OpArmReceive && c.Ep == DataOutEpAddr {
			rearmed = true
		}
	}
	if !rearmed {
		t.Error("bulk OUT endpoint not re-armed after echo completed")
	}
}

func TestGetDescriptorChain(t *testing.T) {
	h, ser := newHost(t)

	var buf [128]byte
	dev := h.stack.Device()
	n, err := ser.GetDescriptor(dev.Interface(0), 0, buf[:])
	if err != nil {
		t.Fatalf("GetDescriptor() error = %v", err)
	}
	want := 2*usbd.InterfaceDescriptorSize + 4*usbd.EndpointDescriptorSize
	if n != want {
		t.Fatalf("GetDescriptor() = %d bytes, want %d", n, want)
	}

	// Alt 0 header: 1 endpoint; alt 1 header: 3 endpoints.
	if buf[3] != AltNotifyOnly || buf[4] != 1 {
		t.Errorf("alt 0 header = alt %d, %d endpoints, want 0, 1", buf[3], buf[4])
	}
	alt1 := usbd.InterfaceDescriptorSize + usbd.EndpointDescriptorSize
	if buf[alt1+3] != AltFull || buf[alt1+4] != 3 {
		t.Errorf("alt 1 header = alt %d, %d endpoints, want 1, 3", buf[alt1+3], buf[alt1+4])
	}

	if _, err := ser.GetDescriptor(dev.Interface(0), 0, buf[:10]); err == nil {
		t.Error("GetDescriptor(short) error = nil, want error")
	}
}

func TestSendRequiresFullAltSetting(t *testing.T) {
	h, ser := newHost(t)
	h.configure()

	if err := ser.Send([]byte("x")); err == nil {
		t.Error("Send() in alt 0 error = nil, want error")
	}

	var sp usbd.SetupPacket
	usbd.SetInterfaceSetup(&sp, 0, AltFull)
	h.mustSubmit(sp, nil)

	if err := ser.Send([]byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := h.port.LastTransmit(DataInEpAddr & 0x0F); string(got) != "hello" {
		t.Errorf("transmitted %q, want %q", got, "hello")
	}
}

func TestGetString(t *testing.T) {
	_, ser := newHost(t)
	if s, ok := ser.GetString(nil, strIndexFunction); !ok || s == "" {
		t.Errorf("GetString(%d) = %q, %v, want non-empty, true", strIndexFunction, s, ok)
	}
	if _, ok := ser.GetString(nil, 9); ok {
		t.Error("GetString(9) ok = true, want false")
	}
}

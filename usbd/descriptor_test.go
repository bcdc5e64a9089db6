package usbd

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDeviceDescriptorMarshalTo(t *testing.T) {
	d := DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    64,
		VendorID:          0x1234,
		ProductID:         0x5678,
		DeviceVersion:     0x0102,
		ManufacturerIndex: StringIndexVendor,
		ProductIndex:      StringIndexProduct,
		SerialNumberIndex: StringIndexSerial,
		NumConfigurations: 1,
	}

	var buf [DeviceDescriptorSize]byte
	n := d.MarshalTo(buf[:])
	if n != DeviceDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, DeviceDescriptorSize)
	}
	if buf[0] != DeviceDescriptorSize || buf[1] != DescriptorTypeDevice {
		t.Errorf("header = [% X], want [12 01]", buf[:2])
	}
	if got := binary.LittleEndian.Uint16(buf[8:10]); got != 0x1234 {
		t.Errorf("VendorID = 0x%04X, want 0x1234", got)
	}
	if got := binary.LittleEndian.Uint16(buf[10:12]); got != 0x5678 {
		t.Errorf("ProductID = 0x%04X, want 0x5678", got)
	}
	if buf[14] != StringIndexVendor || buf[15] != StringIndexProduct || buf[16] != StringIndexSerial {
		t.Errorf("string indices = %v, want [1 2 3]", buf[14:17])
	}

	if n := d.MarshalTo(buf[:10]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
}

func TestConfigurationDescriptorMarshalTo(t *testing.T) {
	c := ConfigurationDescriptor{
		TotalLength:        41,
		NumInterfaces:      1,
		ConfigurationValue: 1,
		ConfigurationIndex: StringIndexConfiguration,
		Attributes:         ConfigAttrBusPowered | ConfigAttrSelfPowered,
		MaxPower:           50,
	}

	var buf [ConfigurationDescriptorSize]byte
	n := c.MarshalTo(buf[:])
	if n != ConfigurationDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, ConfigurationDescriptorSize)
	}
	if got := binary.LittleEndian.Uint16(buf[2:4]); got != 41 {
		t.Errorf("TotalLength = %d, want 41", got)
	}
	if buf[7] != 0xC0 {
		t.Errorf("Attributes = 0x%02X, want 0xC0", buf[7])
	}
	if buf[8] != 50 {
		t.Errorf("MaxPower = %d, want 50", buf[8])
	}
}

func TestEndpointDescriptorMarshalTo(t *testing.T) {
	e := EndpointDescriptor{
		EndpointAddress: 0x81,
		Attributes:      uint8(EndpointTypeBulk),
		MaxPacketSize:   64,
		Interval:        0,
	}

	var buf [EndpointDescriptorSize]byte
	n := e.MarshalTo(buf[:])
	if n != EndpointDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, EndpointDescriptorSize)
	}
	want := []byte{0x07, 0x05, 0x81, 0x02, 0x40, 0x00, 0x00}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = [% X], want [% X]", buf[:], want)
	}
}

func TestStringDescriptorTo(t *testing.T) {
	var buf [64]byte
	n := StringDescriptorTo(buf[:], "AB")
	if n != 6 {
		t.Fatalf("StringDescriptorTo() = %d, want 6", n)
	}
	want := []byte{0x06, DescriptorTypeString, 'A', 0x00, 'B', 0x00}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("StringDescriptorTo() = [% X], want [% X]", buf[:n], want)
	}

	if n := StringDescriptorTo(buf[:4], "AB"); n != 0 {
		t.Errorf("StringDescriptorTo(short) = %d, want 0", n)
	}
}

func TestLanguageDescriptorTo(t *testing.T) {
	var buf [8]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	if n != 4 {
		t.Fatalf("LanguageDescriptorTo() = %d, want 4", n)
	}
	want := []byte{0x04, DescriptorTypeString, 0x09, 0x04}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("LanguageDescriptorTo() = [% X], want [% X]", buf[:n], want)
	}
}

func TestSerialDescriptorTo(t *testing.T) {
	serial := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	var buf [64]byte
	n, err := SerialDescriptorTo(buf[:], serial)
	if err != nil {
		t.Fatalf("SerialDescriptorTo() error = %v", err)
	}
	// 2 header bytes plus 12 UTF-16 digits
	if n != 2+12*2 {
		t.Fatalf("SerialDescriptorTo() = %d, want %d", n, 2+12*2)
	}

	var digits []byte
	for i := 2; i < n; i += 2 {
		digits = append(digits, buf[i])
	}
	if got, want := string(digits), "DEADBEEF0001"; got != want {
		t.Errorf("digits = %q, want %q", got, want)
	}

	if _, err := SerialDescriptorTo(buf[:10], serial); err == nil {
		t.Error("SerialDescriptorTo(short) error = nil, want error")
	}
}

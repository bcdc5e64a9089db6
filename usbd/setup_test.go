package usbd

import (
	"testing"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr bool
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
			want: SetupPacket{
				RequestType: 0x80,
				Request:     0x06,
				Value:       0x0100,
				Index:       0x0000,
				Length:      18,
			},
		},
		{
			name: "SET_ADDRESS",
			data: []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{
				RequestType: 0x00,
				Request:     0x05,
				Value:       5,
				Index:       0,
				Length:      0,
			},
		},
		{
			name: "class interface OUT",
			data: []byte{0x21, 0x20, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00},
			want: SetupPacket{
				RequestType: 0x21,
				Request:     0x20,
				Value:       0,
				Index:       0,
				Length:      7,
			},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSetupPacket() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSetupPacket() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetupPacketMarshalTo(t *testing.T) {
	sp := SetupPacket{
		RequestType: 0x80,
		Request:     RequestGetDescriptor,
		Value:       0x0100,
		Index:       0,
		Length:      18,
	}

	var buf [SetupPacketSize]byte
	n := sp.MarshalTo(buf[:])
	if n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}

	var got SetupPacket
	if err := ParseSetupPacket(buf[:], &got); err != nil {
		t.Fatalf("ParseSetupPacket() error = %v", err)
	}
	if got != sp {
		t.Errorf("round trip = %+v, want %+v", got, sp)
	}

	if n := sp.MarshalTo(buf[:4]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
}

func TestSetupPacketPredicates(t *testing.T) {
	sp := SetupPacket{RequestType: 0xA1} // IN, class, interface
	if !sp.IsDeviceToHost() {
		t.Error("IsDeviceToHost() = false, want true")
	}
	if sp.IsHostToDevice() {
		t.Error("IsHostToDevice() = true, want false")
	}
	if !sp.IsClass() {
		t.Error("IsClass() = false, want true")
	}
	if sp.IsStandard() || sp.IsVendor() {
		t.Error("type predicates misreport a class request")
	}
	if sp.Recipient() != RequestRecipientInterface {
		t.Errorf("Recipient() = %d, want %d", sp.Recipient(), RequestRecipientInterface)
	}
}

func TestSetupPacketValueHelpers(t *testing.T) {
	sp := SetupPacket{Value: 0x0302, Index: 0x0081}
	if sp.DescriptorType() != 0x03 {
		t.Errorf("DescriptorType() = %d, want 3", sp.DescriptorType())
	}
	if sp.DescriptorIndex() != 0x02 {
		t.Errorf("DescriptorIndex() = %d, want 2", sp.DescriptorIndex())
	}
	if sp.EndpointAddress() != 0x81 {
		t.Errorf("EndpointAddress() = 0x%02X, want 0x81", sp.EndpointAddress())
	}
}

func TestSetupBuilders(t *testing.T) {
	var sp SetupPacket

	GetDescriptorSetup(&sp, DescriptorTypeDevice, 0, 18)
	if sp.RequestType != 0x80 || sp.Request != RequestGetDescriptor || sp.Value != 0x0100 || sp.Length != 18 {
		t.Errorf("GetDescriptorSetup() = %+v", sp)
	}

	SetAddressSetup(&sp, 5)
	if sp.RequestType != 0x00 || sp.Request != RequestSetAddress || sp.Value != 5 || sp.Length != 0 {
		t.Errorf("SetAddressSetup() = %+v", sp)
	}

	SetInterfaceSetup(&sp, 2, 1)
	if sp.Request != RequestSetInterface || sp.Value != 1 || sp.Index != 2 {
		t.Errorf("SetInterfaceSetup() = %+v", sp)
	}

	GetStatusSetup(&sp, RequestRecipientEndpoint, 0x81)
	if sp.RequestType != 0x82 || sp.Request != RequestGetStatus || sp.Index != 0x81 || sp.Length != 2 {
		t.Errorf("GetStatusSetup() = %+v", sp)
	}
}

package serial

// CDC class, subclass, and protocol codes used by the interface descriptor.
const (
	ClassCDC     = 0x02 // Communications Device Class
	SubclassACM  = 0x02 // Abstract Control Model
	ProtocolNone = 0x00 // No protocol
)

// CDC-ACM class request codes.
const (
	RequestSetLineCoding       = 0x20
	RequestGetLineCoding       = 0x21
	RequestSetControlLineState = 0x22
)

// Control line state bits (SET_CONTROL_LINE_STATE wValue).
const (
	ControlLineDTR = 0x0001 // Data Terminal Ready
	ControlLineRTS = 0x0002 // Request To Send
)

// Alternate settings.
const (
	AltNotifyOnly = 0 // Notification endpoint only
	AltFull       = 1 // Notification plus bulk data endpoints
)

// Default endpoint addresses.
const (
	NotifyEpAddr  = 0x81 // Interrupt IN
	DataInEpAddr  = 0x82 // Bulk IN
	DataOutEpAddr = 0x02 // Bulk OUT
)

// Endpoint max packet sizes.
const (
	NotifyPacketSize = 16
	DataPacketSize   = 64
)

// BufferSize is the size of the echo data buffers.
const BufferSize = 512

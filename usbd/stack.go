package usbd

import (
	"context"

	"github.com/fuxunyang/USBDevice/pkg"
)

// DefaultQueueDepth is the event queue capacity used by NewStack when the
// caller passes zero.
const DefaultQueueDepth = 64

// EventKind identifies a peripheral event.
type EventKind uint8

// Peripheral event kinds.
const (
	EventSetup EventKind = iota
	EventOutComplete
	EventInComplete
	EventBusReset
	EventSuspend
	EventResume
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSetup:
		return "Setup"
	case EventOutComplete:
		return "OutComplete"
	case EventInComplete:
		return "InComplete"
	case EventBusReset:
		return "BusReset"
	case EventSuspend:
		return "Suspend"
	case EventResume:
		return "Resume"
	default:
		return "Unknown"
	}
}

// Event is one peripheral notification. Events are fixed-size values; the
// setup payload is carried inline.
type Event struct {
	Kind  EventKind
	EpNum uint8
	Count int
	Setup [SetupPacketSize]byte
}

// Stack serializes peripheral events into the device core. Producers are
// the peripheral driver's interrupt or reader goroutines; the single
// consumer is Run (or a test calling Process directly). The core itself is
// never entered concurrently.
type Stack struct {
	device *Device
	events chan Event
}

// NewStack creates an event queue feeding device. queueDepth 0 selects
// DefaultQueueDepth.
func NewStack(device *Device, queueDepth int) *Stack {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Stack{
		device: device,
		events: make(chan Event, queueDepth),
	}
}

// Device returns the device driven by this stack.
func (s *Stack) Device() *Device { return s.device }

// push enqueues an event without blocking. On overflow the event is dropped
// with a warning; the host's retry mechanisms recover the transfer.
func (s *Stack) push(ev Event) {
	select {
	case s.events <- ev:
	default:
		pkg.LogWarn(pkg.ComponentStack, "event queue overflow, event dropped",
			"kind", ev.Kind.String(), "ep", ev.EpNum)
	}
}

// SetupReceived reports a captured setup packet on EP0.
func (s *Stack) SetupReceived(raw [SetupPacketSize]byte) {
	s.push(Event{Kind: EventSetup, Setup: raw})
}

// OutTransferComplete reports count bytes received on an OUT endpoint.
func (s *Stack) OutTransferComplete(epNum uint8, count int) {
	s.push(Event{Kind: EventOutComplete, EpNum: epNum, Count: count})
}

// InTransferComplete reports an IN endpoint buffer of count bytes drained.
func (s *Stack) InTransferComplete(epNum uint8, count int) {
	s.push(Event{Kind: EventInComplete, EpNum: epNum, Count: count})
}

// BusReset reports a bus reset condition.
func (s *Stack) BusReset() {
	s.push(Event{Kind: EventBusReset})
}

// Suspend reports bus suspend.
func (s *Stack) Suspend() {
	s.push(Event{Kind: EventSuspend})
}

// Resume reports bus resume.
func (s *Stack) Resume() {
	s.push(Event{Kind: EventResume})
}

// Run consumes events until ctx is canceled. All device and class callback
// code runs on this goroutine.
func (s *Stack) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.Process(ev)
		}
	}
}

// Process dispatches one event into the core synchronously. Tests and
// simulators call it directly for deterministic stepping; it must not be
// called concurrently with Run.
func (s *Stack) Process(ev Event) {
	switch ev.Kind {
	case EventSetup:
		s.device.handleSetup(ev.Setup)
	case EventOutComplete:
		s.device.handleOutComplete(ev.EpNum, ev.Count)
	case EventInComplete:
		s.device.handleInComplete(ev.EpNum, ev.Count)
	case EventBusReset:
		s.device.Reset()
	case EventSuspend:
		s.device.Suspend()
	case EventResume:
		s.device.Resume()
	}
}

// ProcessPending synchronously drains every queued event and returns the
// number processed.
func (s *Stack) ProcessPending() int {
	n := 0
	for {
		select {
		case ev := <-s.events:
			s.Process(ev)
			n++
		default:
			return n
		}
	}
}

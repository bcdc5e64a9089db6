// Command usbd-sim runs a scripted host enumeration against the usbd core
// bound to the loopback HAL and prints the results.
package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/umputun/go-flags"

	"github.com/fuxunyang/USBDevice/config"
	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd"
	"github.com/fuxunyang/USBDevice/usbd/class/serial"
	"github.com/fuxunyang/USBDevice/usbd/hal/loopback"
)

var opts struct {
	ConfigFile string `short:"c" long:"config" env:"USBD_CONFIG" description:"path to device description (YAML)"`
	Address    uint8  `short:"a" long:"address" env:"USBD_ADDRESS" description:"bus address to assign" default:"5"`
	Debug      bool   `long:"dbg" env:"DEBUG" description:"debug mode"`
	JSONLog    bool   `long:"json-log" env:"JSON_LOG" description:"JSON log output"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if opts.Debug {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if opts.JSONLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	desc, err := loadDescription()
	if err != nil {
		fmt.Fprintf(os.Stderr, "usbd-sim: %v\n", err)
		os.Exit(1)
	}

	if err := run(desc); err != nil {
		fmt.Fprintf(os.Stderr, "usbd-sim: enumeration failed: %v\n", err)
		os.Exit(1)
	}
}

func loadDescription() (*usbd.Description, error) {
	if opts.ConfigFile != "" {
		return config.Load(opts.ConfigFile)
	}
	var desc usbd.Description
	desc.Vendor.Name = "Example Vendor"
	desc.Vendor.ID = 0x1234
	desc.Product.Name = "Loopback Serial"
	desc.Product.ID = 0x5678
	desc.Product.Version = usbd.NewVersion(1, 0)
	desc.SerialNumber = [usbd.SerialNumberSize]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	desc.Config.Name = "Default"
	desc.Config.MaxCurrentMA = 100
	return &desc, nil
}

// host drives the device synchronously through the stack's Process path,
// playing the controller role against the loopback command log.
type host struct {
	port  *loopback.Driver
	stack *usbd.Stack

	// Next unconsumed index in the loopback command log
	cursor int

	// Payload delivered on the next EP0 OUT data stage
	outData []byte
}

// submit injects a setup packet and pumps the resulting transfer to its
// terminal stage. It returns the concatenated IN data stage bytes.
func (h *host) submit(sp *usbd.SetupPacket, outData []byte) ([]byte, error) {
	var raw [usbd.SetupPacketSize]byte
	sp.MarshalTo(raw[:])
	h.outData = outData
	h.stack.Process(usbd.Event{Kind: usbd.EventSetup, Setup: raw})
	return h.pump()
}

// pump consumes loopback commands until the device goes quiet, simulating
// the host side of each armed transfer.
func (h *host) pump() ([]byte, error) {
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
				h.stack.Process(usbd.Event{
					Kind: usbd.EventInComplete, Count: len(c.Data),
				})
			case loopback.OpArmReceive:
				if c.Ep != 0 {
					continue
				}
				n := 0
				if c.Len > 0 {
					n = copy(h.port.ArmedReceive(0), h.outData)
					h.outData = nil
				}
				h.stack.Process(usbd.Event{
					Kind: usbd.EventOutComplete, Count: n,
				})
			}
		}
	}
}

func run(desc *usbd.Description) error {
	port := loopback.New()
	dev := usbd.New(*desc, port)
	stack := usbd.NewStack(dev, 0)

	ser := serial.New()
	if _, err := ser.Mount(dev); err != nil {
		return fmt.Errorf("mount serial interface: %w", err)
	}

	h := &host{port: port, stack: stack}
	var results [][]string
	step := func(name string, fn func() (string, error)) error {
		detail, err := fn()
		if err != nil {
			results = append(results, []string{name, "FAIL", err.Error()})
			printResults(results)
			return fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, []string{name, "OK", detail})
		return nil
	}

	var sp usbd.SetupPacket

	if err := step("BUS_RESET", func() (string, error) {
		stack.Process(usbd.Event{Kind: usbd.EventBusReset})
		h.cursor = port.CommandCount()
		return dev.State().String(), nil
	}); err != nil {
		return err
	}

	if err := step("GET_DESCRIPTOR(device)", func() (string, error) {
		usbd.GetDescriptorSetup(&sp, usbd.DescriptorTypeDevice, 0, usbd.DeviceDescriptorSize)
		data, err := h.submit(&sp, nil)
		if err != nil {
			return "", err
		}
		if len(data) != usbd.DeviceDescriptorSize {
			return "", fmt.Errorf("got %d bytes, want %d", len(data), usbd.DeviceDescriptorSize)
		}
		vid := binary.LittleEndian.Uint16(data[8:10])
		pid := binary.LittleEndian.Uint16(data[10:12])
		return fmt.Sprintf("VID=0x%04X PID=0x%04X", vid, pid), nil
	}); err != nil {
		return err
	}

	if err := step("SET_ADDRESS", func() (string, error) {
		usbd.SetAddressSetup(&sp, opts.Address)
		if _, err := h.submit(&sp, nil); err != nil {
			return "", err
		}
		if got := port.Address(); got != opts.Address {
			return "", fmt.Errorf("controller address %d, want %d", got, opts.Address)
		}
		return fmt.Sprintf("address=%d state=%s", dev.Address(), dev.State()), nil
	}); err != nil {
		return err
	}

	var configDesc []byte
	if err := step("GET_DESCRIPTOR(config)", func() (string, error) {
		usbd.GetDescriptorSetup(&sp, usbd.DescriptorTypeConfiguration, 0, usbd.ConfigurationDescriptorSize)
		head, err := h.submit(&sp, nil)
		if err != nil {
			return "", err
		}
		total := binary.LittleEndian.Uint16(head[2:4])
		usbd.GetDescriptorSetup(&sp, usbd.DescriptorTypeConfiguration, 0, total)
		configDesc, err = h.submit(&sp, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("wTotalLength=%d interfaces=%d", total, configDesc[4]), nil
	}); err != nil {
		return err
	}

	if err := step("GET_DESCRIPTOR(strings)", func() (string, error) {
		count := 0
		for _, idx := range []uint8{
			usbd.StringIndexLangID,
			usbd.StringIndexVendor,
			usbd.StringIndexProduct,
			usbd.StringIndexSerial,
			usbd.StringIndexConfiguration,
		} {
			usbd.GetDescriptorSetup(&sp, usbd.DescriptorTypeString, idx, 255)
			if _, err := h.submit(&sp, nil); err != nil {
				return "", fmt.Errorf("index %d: %w", idx, err)
			}
			count++
		}
		return fmt.Sprintf("%d descriptors read", count), nil
	}); err != nil {
		return err
	}

	if err := step("SET_CONFIGURATION", func() (string, error) {
		usbd.SetConfigurationSetup(&sp, 1)
		if _, err := h.submit(&sp, nil); err != nil {
			return "", err
		}
		if dev.State() != usbd.StateConfigured {
			return "", fmt.Errorf("state %s, want Configured", dev.State())
		}
		return dev.State().String(), nil
	}); err != nil {
		return err
	}

	if err := step("SET_LINE_CODING", func() (string, error) {
		lc := serial.LineCoding{BaudRate: 9600, DataBits: 8}
		var payload [serial.LineCodingSize]byte
		lc.MarshalTo(payload[:])
		sp = usbd.SetupPacket{
			RequestType: usbd.RequestDirectionHostToDevice | usbd.RequestTypeClass | usbd.RequestRecipientInterface,
			Request:     serial.RequestSetLineCoding,
			Length:      serial.LineCodingSize,
		}
		if _, err := h.submit(&sp, payload[:]); err != nil {
			return "", err
		}
		if got := ser.LineCoding().BaudRate; got != 9600 {
			return "", fmt.Errorf("baud rate %d, want 9600", got)
		}
		return fmt.Sprintf("baud=%d", ser.LineCoding().BaudRate), nil
	}); err != nil {
		return err
	}

	printResults(results)
	printDevice(dev, configDesc)
	return nil
}

func printResults(results [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Step", "Result", "Detail"})
	for _, row := range results {
		table.Append(row)
	}
	table.Render()
}

func printDevice(dev *usbd.Device, configDesc []byte) {
	desc := dev.Description()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Vendor", fmt.Sprintf("%s (0x%04X)", desc.Vendor.Name, desc.Vendor.ID)})
	table.Append([]string{"Product", fmt.Sprintf("%s (0x%04X)", desc.Product.Name, desc.Product.ID)})
	table.Append([]string{"Serial", fmt.Sprintf("%X", desc.SerialNumber)})
	table.Append([]string{"Speed", dev.Speed().String()})
	table.Append([]string{"State", dev.State().String()})
	table.Append([]string{"Address", fmt.Sprintf("%d", dev.Address())})
	table.Append([]string{"Interfaces", fmt.Sprintf("%d", dev.InterfaceCount())})
	table.Append([]string{"Config descriptor", fmt.Sprintf("%d bytes", len(configDesc))})
	table.Render()
}

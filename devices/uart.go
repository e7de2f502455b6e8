// Package devices implements the peripheral devices: a UART, a Timer, a
// DMA engine, and a read-only ROM, all wired onto the bus as MMIO Device
// implementations.
package devices

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

// IRQSink is the minimal surface a device needs to raise/lower its
// optional interrupt line on an attached PLIC source id.
type IRQSink interface {
	Raise(id int)
	Lower(id int)
}

const (
	uartRegionSize = 16

	uartData   = 0x00
	uartStatus = 0x04
	uartCtrl   = 0x08
)

const (
	uartStatusTXReady = 1 << 0
	uartStatusRXReady = 1 << 1
	uartCtrlRXEnable  = 1 << 0
)

// UART is a 16-byte-region serial device with a software RX FIFO and an
// optional transmit callback.
type UART struct {
	base uint64

	rx []byte
	tx func(b byte)

	ctrl uint32

	sink   IRQSink
	sinkID int
}

// UARTConfig configures a new UART.
type UARTConfig struct {
	Base uint64
	// TX is called for every byte written to DATA. If nil, writes are
	// dropped (no stdout fallback is assumed by the core).
	TX func(b byte)
}

// NewUART constructs a UART at cfg.Base.
func NewUART(cfg UARTConfig) *UART {
	return &UART{base: cfg.Base, tx: cfg.TX}
}

// AttachIRQ wires sinkID on sink as this UART's RX-ready interrupt line.
func (u *UART) AttachIRQ(sink IRQSink, sinkID int) { u.sink, u.sinkID = sink, sinkID }

// PushRX appends a byte to the RX FIFO, as if received from the wire, and
// updates the IRQ sink.
func (u *UART) PushRX(b byte) {
	u.rx = append(u.rx, b)
	u.syncIRQ()
}

func (u *UART) rxNonEmpty() bool { return len(u.rx) > 0 }

func (u *UART) syncIRQ() {
	if u.sink == nil {
		return
	}
	if u.ctrl&uartCtrlRXEnable != 0 && u.rxNonEmpty() {
		u.sink.Raise(u.sinkID)
	} else {
		u.sink.Lower(u.sinkID)
	}
}

// Region implements bus.Device.
func (u *UART) Region() (base, size uint64) { return u.base, uartRegionSize }

// Caps implements bus.Device: 1-byte DATA, 4-byte STATUS/CTRL.
func (u *UART) Caps() bus.Caps { return bus.Caps{Align: 1, Widths: []uint64{1, 4}} }

// Read implements bus.Device. Widths are enforced per-register here since
// bus.Caps only constrains the whole region: DATA is strictly 1 byte,
// STATUS/CTRL strictly 4.
func (u *UART) Read(offset, count uint64) ([]byte, error) {
	if err := u.checkWidth(offset, count); err != nil {
		return nil, err
	}
	switch offset {
	case uartData:
		if u.rxNonEmpty() {
			b := u.rx[0]
			u.rx = u.rx[1:]
			u.syncIRQ()
			return []byte{b}, nil
		}
		return []byte{0}, nil
	case uartStatus:
		var v uint32 = uartStatusTXReady
		if u.rxNonEmpty() {
			v |= uartStatusRXReady
		}
		return le32(v), nil
	case uartCtrl:
		return le32(u.ctrl), nil
	default:
		return nil, werr.New(werr.MMIOConstraint, "uart.read", offset)
	}
}

func (u *UART) checkWidth(offset, n uint64) error {
	want := uint64(4)
	if offset == uartData {
		want = 1
	}
	if n != want {
		return werr.New(werr.MMIOConstraint, "uart.width", offset)
	}
	return nil
}

// Write implements bus.Device.
func (u *UART) Write(offset uint64, data []byte) error {
	if err := u.checkWidth(offset, uint64(len(data))); err != nil {
		return err
	}
	switch offset {
	case uartData:
		if u.tx != nil {
			u.tx(data[0])
		}
		return nil
	case uartStatus:
		return nil // read-only.
	case uartCtrl:
		u.ctrl = decodeLE32(data)
		u.syncIRQ()
		return nil
	default:
		return werr.New(werr.MMIOConstraint, "uart.write", offset)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeLE32(data []byte) uint32 {
	var v uint32
	for i := 0; i < len(data) && i < 4; i++ {
		v |= uint32(data[i]) << (uint(i) * 8)
	}
	return v
}

func decodeLE64(data []byte) uint64 {
	var v uint64
	for i := 0; i < len(data) && i < 8; i++ {
		v |= uint64(data[i]) << (uint(i) * 8)
	}
	return v
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (uint(i) * 8))
	}
	return out
}

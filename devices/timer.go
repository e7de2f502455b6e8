package devices

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

const (
	timerRegionSize = 32

	timerCntLo = 0x00
	timerCntHi = 0x04
	timerCmpLo = 0x08
	timerCmpHi = 0x0C
	timerCtrl  = 0x10
	timerStatus = 0x14
	timerTick  = 0x18
)

const (
	timerCtrlEnable     = 1 << 0
	timerCtrlIRQEnable  = 1 << 1
	timerCtrlAutoReload = 1 << 2

	timerStatusPending = 1 << 0
)

// Timer is a 32-byte-region 64-bit counter/compare device with an
// optional auto-reload and IRQ sink.
type Timer struct {
	base uint64

	counter uint64
	compare uint64
	ctrl    uint32
	status  uint32
	tick    uint64

	sink   IRQSink
	sinkID int
}

// TimerConfig configures a new Timer.
type TimerConfig struct {
	Base uint64
	Tick uint64 // counter units per Advance step; 0 defaults to 1.
}

// NewTimer constructs a Timer at cfg.Base.
func NewTimer(cfg TimerConfig) *Timer {
	tick := cfg.Tick
	if tick == 0 {
		tick = 1
	}
	return &Timer{base: cfg.Base, tick: tick}
}

// AttachIRQ wires sinkID on sink as this Timer's pending-interrupt line.
func (t *Timer) AttachIRQ(sink IRQSink, sinkID int) { t.sink, t.sinkID = sink, sinkID }

// Advance steps the counter forward by n ticks when enabled. When compare
// is non-zero and the counter reaches or exceeds it, STATUS.pending is set
// and, if auto-reload is set, the counter resets to zero.
func (t *Timer) Advance(n uint64) {
	if t.ctrl&timerCtrlEnable == 0 {
		return
	}
	t.counter += n * t.tick
	if t.compare != 0 && t.counter >= t.compare {
		t.status |= timerStatusPending
		if t.ctrl&timerCtrlAutoReload != 0 {
			t.counter = 0
		}
	}
	t.syncIRQ()
}

func (t *Timer) syncIRQ() {
	if t.sink == nil {
		return
	}
	if t.ctrl&timerCtrlIRQEnable != 0 && t.status&timerStatusPending != 0 {
		t.sink.Raise(t.sinkID)
	} else {
		t.sink.Lower(t.sinkID)
	}
}

// Region implements bus.Device.
func (t *Timer) Region() (base, size uint64) { return t.base, timerRegionSize }

// Caps implements bus.Device: 4-byte naturally-aligned registers.
func (t *Timer) Caps() bus.Caps { return bus.Caps{Align: 4, Widths: []uint64{4}} }

// Read implements bus.Device.
func (t *Timer) Read(offset, count uint64) ([]byte, error) {
	switch offset {
	case timerCntLo:
		return le32(uint32(t.counter)), nil
	case timerCntHi:
		return le32(uint32(t.counter >> 32)), nil
	case timerCmpLo:
		return le32(uint32(t.compare)), nil
	case timerCmpHi:
		return le32(uint32(t.compare >> 32)), nil
	case timerCtrl:
		return le32(t.ctrl), nil
	case timerStatus:
		return le32(t.status), nil
	case timerTick:
		return le32(uint32(t.tick)), nil
	default:
		return nil, werr.New(werr.MMIOConstraint, "timer.read", offset)
	}
}

// Write implements bus.Device. Writing a 1 to STATUS clears the pending
// bit; all other registers are plain stores.
func (t *Timer) Write(offset uint64, data []byte) error {
	v := decodeLE32(data)
	switch offset {
	case timerCntLo:
		t.counter = (t.counter &^ 0xFFFFFFFF) | uint64(v)
	case timerCntHi:
		t.counter = (t.counter & 0xFFFFFFFF) | (uint64(v) << 32)
	case timerCmpLo:
		t.compare = (t.compare &^ 0xFFFFFFFF) | uint64(v)
	case timerCmpHi:
		t.compare = (t.compare & 0xFFFFFFFF) | (uint64(v) << 32)
	case timerCtrl:
		t.ctrl = v
		t.syncIRQ()
	case timerStatus:
		if v&timerStatusPending != 0 {
			t.status &^= timerStatusPending
			t.syncIRQ()
		}
	case timerTick:
		if v != 0 {
			t.tick = uint64(v)
		}
	default:
		return werr.New(werr.MMIOConstraint, "timer.write", offset)
	}
	return nil
}

package devices

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

const (
	dmaRegionSize = 32

	dmaSrcLo  = 0x00
	dmaSrcHi  = 0x04
	dmaDstLo  = 0x08
	dmaDstHi  = 0x0C
	dmaLen    = 0x10
	dmaCtrl   = 0x14
	dmaStatus = 0x18
)

const (
	dmaCtrlStart = 1 << 0
	dmaCtrlIRQEn = 1 << 1

	dmaStatusBusy = 1 << 0
	dmaStatusDone = 1 << 1
	dmaStatusErr  = 1 << 2

	dmaChunkSize = 256
)

// DMABus is the subset of *bus.Bus the DMA engine copies through.
type DMABus interface {
	ReadBytes(pa, n uint64) ([]byte, error)
	WriteBytes(pa uint64, data []byte) error
	Regions() []bus.Region
}

// DMARecorder receives a best-effort notification of DMA completions for
// telemetry; a nil recorder disables recording entirely.
type DMARecorder interface {
	RecordDMADone(src, dst, length uint64, ok bool)
}

// DMA is a 32-byte-region bus-to-bus copy engine. A START write performs
// the whole transfer synchronously, in chunks of at most 256 bytes.
type DMA struct {
	base    uint64
	bus     DMABus
	ramOnly bool
	rec     DMARecorder

	src, dst, length uint64
	ctrl, status     uint32

	sink   IRQSink
	sinkID int
}

// SetRecorder attaches (or clears, with nil) a telemetry recorder.
func (d *DMA) SetRecorder(r DMARecorder) { d.rec = r }

// DMAConfig configures a new DMA engine. RAMOnly, when set, requires every
// START to validate that the full source and destination ranges cover
// only RAM regions before copying.
type DMAConfig struct {
	Base    uint64
	Bus     DMABus
	RAMOnly bool
}

// NewDMA constructs a DMA engine driving copies through cfg.Bus.
func NewDMA(cfg DMAConfig) *DMA {
	return &DMA{base: cfg.Base, bus: cfg.Bus, ramOnly: cfg.RAMOnly}
}

// AttachIRQ wires sinkID on sink as this DMA's done/error interrupt line.
func (d *DMA) AttachIRQ(sink IRQSink, sinkID int) { d.sink, d.sinkID = sink, sinkID }

func (d *DMA) isRAM(addr, n uint64) bool {
	remaining := n
	cur := addr
	for remaining > 0 {
		found := false
		for _, r := range d.bus.Regions() {
			if cur >= r.Base && cur <= r.End() {
				if r.Kind != bus.RAM {
					return false
				}
				chunk := r.End() - cur + 1
				if chunk > remaining {
					chunk = remaining
				}
				cur += chunk
				remaining -= chunk
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// start performs the synchronous bus-to-bus copy: validates ram_only if
// set, copies in chunks of at most 256 bytes, surfaces bus faults as ERR,
// and sets DONE/raises the IRQ sink on success.
func (d *DMA) start() {
	d.status |= dmaStatusBusy

	if d.ramOnly {
		if !d.isRAM(d.src, d.length) || !d.isRAM(d.dst, d.length) {
			d.finish(false)
			return
		}
	}

	remaining := d.length
	cur := uint64(0)
	for remaining > 0 {
		chunk := uint64(dmaChunkSize)
		if chunk > remaining {
			chunk = remaining
		}
		data, err := d.bus.ReadBytes(d.src+cur, chunk)
		if err != nil {
			d.finish(false)
			return
		}
		if err := d.bus.WriteBytes(d.dst+cur, data); err != nil {
			d.finish(false)
			return
		}
		cur += chunk
		remaining -= chunk
	}

	d.finish(true)
}

// finish transitions out of BUSY into DONE or ERR, raises the IRQ sink, and
// mirrors the outcome to the attached recorder, if any.
func (d *DMA) finish(ok bool) {
	if ok {
		d.status = (d.status &^ dmaStatusBusy) | dmaStatusDone
	} else {
		d.status = (d.status &^ dmaStatusBusy) | dmaStatusErr
	}
	d.syncIRQ()
	if d.rec != nil {
		d.rec.RecordDMADone(d.src, d.dst, d.length, ok)
	}
}

func (d *DMA) syncIRQ() {
	if d.sink == nil {
		return
	}
	if d.ctrl&dmaCtrlIRQEn != 0 && d.status&(dmaStatusDone|dmaStatusErr) != 0 {
		d.sink.Raise(d.sinkID)
	} else {
		d.sink.Lower(d.sinkID)
	}
}

// Region implements bus.Device.
func (d *DMA) Region() (base, size uint64) { return d.base, dmaRegionSize }

// Caps implements bus.Device: 4-byte naturally-aligned registers.
func (d *DMA) Caps() bus.Caps { return bus.Caps{Align: 4, Widths: []uint64{4}} }

// Read implements bus.Device.
func (d *DMA) Read(offset, count uint64) ([]byte, error) {
	switch offset {
	case dmaSrcLo:
		return le32(uint32(d.src)), nil
	case dmaSrcHi:
		return le32(uint32(d.src >> 32)), nil
	case dmaDstLo:
		return le32(uint32(d.dst)), nil
	case dmaDstHi:
		return le32(uint32(d.dst >> 32)), nil
	case dmaLen:
		return le32(uint32(d.length)), nil
	case dmaCtrl:
		return le32(d.ctrl), nil
	case dmaStatus:
		return le32(d.status), nil
	default:
		return nil, werr.New(werr.MMIOConstraint, "dma.read", offset)
	}
}

// Write implements bus.Device. Writing CTRL with START triggers a
// synchronous copy; writes of 1 to STATUS.DONE/ERR clear those bits.
func (d *DMA) Write(offset uint64, data []byte) error {
	v := decodeLE32(data)
	switch offset {
	case dmaSrcLo:
		d.src = (d.src &^ 0xFFFFFFFF) | uint64(v)
	case dmaSrcHi:
		d.src = (d.src & 0xFFFFFFFF) | (uint64(v) << 32)
	case dmaDstLo:
		d.dst = (d.dst &^ 0xFFFFFFFF) | uint64(v)
	case dmaDstHi:
		d.dst = (d.dst & 0xFFFFFFFF) | (uint64(v) << 32)
	case dmaLen:
		d.length = uint64(v)
	case dmaCtrl:
		d.ctrl = v
		if v&dmaCtrlStart != 0 {
			d.start()
		}
	case dmaStatus:
		if v&dmaStatusDone != 0 {
			d.status &^= dmaStatusDone
		}
		if v&dmaStatusErr != 0 {
			d.status &^= dmaStatusErr
		}
		d.syncIRQ()
	default:
		return werr.New(werr.MMIOConstraint, "dma.write", offset)
	}
	return nil
}

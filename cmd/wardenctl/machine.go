package main

import (
	"fmt"
	"os"
	"time"

	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/cache"
	"github.com/edujime23/warden/cpu"
	"github.com/edujime23/warden/devices"
	"github.com/edujime23/warden/dram"
	"github.com/edujime23/warden/firmware"
	"github.com/edujime23/warden/irq"
	"github.com/edujime23/warden/mmu"
	"github.com/edujime23/warden/telemetry"
)

const (
	ramBase   = 0x8000_0000
	uartBase  = 0x1000_0000
	timerBase = 0x1001_0000
	dmaBase   = 0x1002_0000
	plicBase  = 0x0c00_0000
	clintBase = 0x0200_0000
)

// machine bundles every wired-up component a boot/inspect/monitor command
// needs, built from a flat set of CLI flags.
type machine struct {
	dram  *dram.DRAM
	bus   *bus.Bus
	mmu   *mmu.MMU
	cache *cache.Controller
	cpu   *cpu.CPU

	plic *irq.PLIC
	clint *irq.CLINT

	uart  *devices.UART
	timer *devices.Timer
	dma   *devices.DMA
	rom   *devices.ROM

	recorder *telemetry.Recorder
	vars     *firmware.VariableStore
	clock    *firmware.Clock
	alloc    *firmware.PageAllocator
}

type machineOpts struct {
	ramSize     uint64
	plicSources int
	plicContexts int
	varStorePath string
	romImage     []byte
}

func buildMachine(opts machineOpts) (*machine, error) {
	m := &machine{}

	m.recorder = telemetry.New(1024)

	m.dram = dram.New(opts.ramSize)
	m.bus = bus.New(bus.WithRecorder(m.recorder))
	if err := m.bus.MapRAM("ram", ramBase, opts.ramSize, m.dram, 0); err != nil {
		return nil, fmt.Errorf("wardenctl: mapping ram: %w", err)
	}

	var err error
	m.mmu, err = mmu.New(mmu.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("wardenctl: constructing mmu: %w", err)
	}

	m.cache, err = cache.New(m.bus, cache.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("wardenctl: constructing cache: %w", err)
	}
	m.cache.SetRecorder(m.recorder)

	m.cpu = cpu.New(cpu.Config{
		Target: cpu.DefaultTarget(),
		Bus:    m.bus,
		MMU:    m.mmu,
		Cache:  m.cache,
	})

	m.plic, err = irq.NewPLIC(irq.PLICConfig{
		Sources:  opts.plicSources,
		Contexts: opts.plicContexts,
		Layout:   irq.Compact,
		Mode:     irq.LevelMode,
		Base:     plicBase,
	})
	if err != nil {
		return nil, fmt.Errorf("wardenctl: constructing plic: %w", err)
	}
	m.plic.SetRecorder(m.recorder)
	if err := m.bus.RegisterMMIO("plic", m.plic); err != nil {
		return nil, fmt.Errorf("wardenctl: registering plic: %w", err)
	}

	m.clint, err = irq.NewCLINT(irq.CLINTConfig{Harts: 1, Base: clintBase})
	if err != nil {
		return nil, fmt.Errorf("wardenctl: constructing clint: %w", err)
	}
	if err := m.bus.RegisterMMIO("clint", m.clint); err != nil {
		return nil, fmt.Errorf("wardenctl: registering clint: %w", err)
	}

	m.uart = devices.NewUART(devices.UARTConfig{
		Base: uartBase,
		TX:   func(b byte) { os.Stdout.Write([]byte{b}) },
	})
	m.uart.AttachIRQ(m.plic, 1)
	if err := m.bus.RegisterMMIO("uart", m.uart); err != nil {
		return nil, fmt.Errorf("wardenctl: registering uart: %w", err)
	}

	m.timer = devices.NewTimer(devices.TimerConfig{Base: timerBase})
	m.timer.AttachIRQ(m.plic, 2)
	if err := m.bus.RegisterMMIO("timer", m.timer); err != nil {
		return nil, fmt.Errorf("wardenctl: registering timer: %w", err)
	}

	m.dma = devices.NewDMA(devices.DMAConfig{Base: dmaBase, Bus: m.bus})
	m.dma.SetRecorder(m.recorder)
	m.dma.AttachIRQ(m.plic, 3)
	if err := m.bus.RegisterMMIO("dma", m.dma); err != nil {
		return nil, fmt.Errorf("wardenctl: registering dma: %w", err)
	}

	m.cpu.AttachPLIC(m.plic, cpu.PLICAttachment{Base: plicBase, Layout: irq.Compact, CtxID: 0})
	m.cpu.AttachCLINT(m.clint, cpu.CLINTAttachment{Hart: 0})

	if len(opts.romImage) > 0 {
		m.rom = devices.NewROM(devices.ROMConfig{Base: 0, Image: opts.romImage, Strict: true})
		if err := m.bus.RegisterMMIO("rom", m.rom); err != nil {
			return nil, fmt.Errorf("wardenctl: registering rom: %w", err)
		}
	}

	m.alloc = firmware.NewPageAllocator(m.dram, 0, m.mmu.PageSize(), opts.ramSize/m.mmu.PageSize())
	m.vars = firmware.NewVariableStore(m.recorder)
	if opts.varStorePath != "" {
		if err := m.vars.Load(opts.varStorePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("wardenctl: loading variable store: %w", err)
		}
	}
	m.clock = firmware.NewClock(m.clint, 1, time.Now())

	return m, nil
}

func loadImage(m *machine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("wardenctl: reading image %s: %w", path, err)
	}
	if err := m.bus.WriteBytes(ramBase, data); err != nil {
		return fmt.Errorf("wardenctl: loading image into ram: %w", err)
	}
	return nil
}

func (m *machine) snapshot() any {
	type busStats struct {
		Reads, Writes, Faults uint64
	}
	bs := m.bus.Stats()
	return map[string]any{
		"bus": busStats{Reads: bs.Reads, Writes: bs.Writes, Faults: bs.Faults},
		"cache": map[string]cache.Stats{
			"l1d": m.cache.Stats(cache.L1D),
			"l1i": m.cache.Stats(cache.L1I),
			"l2":  m.cache.Stats(cache.L2),
			"l3":  m.cache.Stats(cache.L3),
		},
		"mmu_tlb_misses": m.mmu.TLBMisses(),
		"mtime":          m.clint.MTime(),
		"since_boot_ns":  m.clock.SinceBoot().Nanoseconds(),
	}
}

func (m *machine) teardown(varStorePath string) {
	if varStorePath != "" {
		if err := m.vars.Save(varStorePath); err != nil {
			fmt.Fprintf(os.Stderr, "wardenctl: saving variable store: %v\n", err)
		}
	}
	if err := m.recorder.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "wardenctl: closing telemetry recorder: %v\n", err)
	}
}

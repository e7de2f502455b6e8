package main

import (
	"fmt"
	"log"

	"github.com/edujime23/warden/cpu"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	flagRAMSize      uint64
	flagPLICSources  int
	flagPLICContexts int
	flagVarStore     string
	flagSteps        uint64
	flagTick         uint64
)

var bootCmd = &cobra.Command{
	Use:   "boot <image>",
	Short: "Wire up a machine and load a flat binary image into RAM.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := buildMachine(machineOpts{
			ramSize:      flagRAMSize,
			plicSources:  flagPLICSources,
			plicContexts: flagPLICContexts,
			varStorePath: flagVarStore,
		})
		if err != nil {
			log.Fatalf("wardenctl boot: %v", err)
		}
		atexit.Register(func() { m.teardown(flagVarStore) })

		if err := loadImage(m, args[0]); err != nil {
			log.Fatalf("wardenctl boot: %v", err)
		}

		runStepLoop(m, flagSteps, flagTick)
		fmt.Printf("wardenctl: ran %d steps, mtime=%d\n", flagSteps, m.clint.MTime())
		atexit.Exit(0)
	},
}

// runStepLoop advances the CLINT/timer by tick per step and samples the
// CPU's interrupt lines, polling and completing any PLIC claim it finds.
// This is the caller-supplied step callback loop the boot command wires
// for scripted runs; real firmware would drive fetch/execute here instead.
func runStepLoop(m *machine, steps, tick uint64) {
	for i := uint64(0); i < steps; i++ {
		m.clint.Advance(tick)
		m.timer.Advance(tick)
		m.cpu.SampleIRQs()
		if cause, ok := m.cpu.MaybeTakeInterrupt(); ok {
			if cause == cpu.CauseMEIE {
				_, _ = m.cpu.PollInterrupts(func(id int) error { return nil })
			}
			m.cpu.CompleteTrap()
		}
	}
}

func init() {
	rootCmd.AddCommand(bootCmd)
	bootCmd.Flags().Uint64Var(&flagRAMSize, "ram-size", 1<<24, "RAM size in bytes")
	bootCmd.Flags().IntVar(&flagPLICSources, "plic-sources", 8, "PLIC interrupt source count")
	bootCmd.Flags().IntVar(&flagPLICContexts, "plic-contexts", 1, "PLIC context count")
	bootCmd.Flags().StringVar(&flagVarStore, "var-store", "", "path to persist the firmware variable store")
	bootCmd.Flags().Uint64Var(&flagSteps, "steps", 1000, "number of step-loop iterations to run")
	bootCmd.Flags().Uint64Var(&flagTick, "tick", 1, "mtime units advanced per step")
}

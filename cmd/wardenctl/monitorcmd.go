package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/edujime23/warden/monitor"
)

var flagMonitorPort int

var monitorCmd = &cobra.Command{
	Use:   "monitor <image>",
	Short: "Boot a machine and start the read-only monitor HTTP server.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := buildMachine(machineOpts{
			ramSize:      flagRAMSize,
			plicSources:  flagPLICSources,
			plicContexts: flagPLICContexts,
			varStorePath: flagVarStore,
		})
		if err != nil {
			log.Fatalf("wardenctl monitor: %v", err)
		}
		atexit.Register(func() { m.teardown(flagVarStore) })

		if err := loadImage(m, args[0]); err != nil {
			log.Fatalf("wardenctl monitor: %v", err)
		}

		mon := monitor.New(monitor.Config{
			Snapshot: m.snapshot,
			Recorder: m.recorder,
			Port:     flagMonitorPort,
		})
		addr, err := mon.StartServer()
		if err != nil {
			log.Fatalf("wardenctl monitor: %v", err)
		}
		atexit.Register(func() { log.Printf("wardenctl: monitor at %s shutting down", addr) })
		log.Printf("wardenctl: monitoring at http://%s", addr)

		go runStepLoop(m, flagSteps, flagTick)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		atexit.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Uint64Var(&flagRAMSize, "ram-size", 1<<24, "RAM size in bytes")
	monitorCmd.Flags().IntVar(&flagPLICSources, "plic-sources", 8, "PLIC interrupt source count")
	monitorCmd.Flags().IntVar(&flagPLICContexts, "plic-contexts", 1, "PLIC context count")
	monitorCmd.Flags().StringVar(&flagVarStore, "var-store", "", "path to persist the firmware variable store")
	monitorCmd.Flags().Uint64Var(&flagSteps, "steps", 1_000_000, "number of step-loop iterations to run")
	monitorCmd.Flags().Uint64Var(&flagTick, "tick", 1, "mtime units advanced per step")
	monitorCmd.Flags().IntVar(&flagMonitorPort, "port", 0, "monitor server port (0 picks a random port)")
}

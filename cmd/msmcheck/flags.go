package main

import (
	"github.com/consensys/gnark/logger"
	"github.com/spf13/cobra"

	"github.com/Han-16/msmcheck/internal/device"
	"github.com/Han-16/msmcheck/internal/gpu"
	"github.com/Han-16/msmcheck/internal/worker"
)

// runtimeFlags are shared by every subcommand that builds a pool and kernel.
type runtimeFlags struct {
	workers  int
	devices  int
	units    int
	maxChunk int
	quiet    bool
}

func (f *runtimeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.workers, "workers", 0, "worker pool size (0: GOMAXPROCS)")
	fs.IntVar(&f.devices, "devices", 1, "number of emulated host devices")
	fs.IntVar(&f.units, "units", 0, "compute units per device (0: auto)")
	fs.IntVar(&f.maxChunk, "max-chunk", 0, "largest dispatch per device (0: unbounded)")
	fs.BoolVar(&f.quiet, "quiet", false, "disable logging")
}

// setup creates the pool and the kernel, once per run.
func (f *runtimeFlags) setup() (*worker.Worker, *gpu.Kernel, error) {
	if f.quiet {
		logger.Disable()
	}
	backends := device.Available(device.Host{Count: f.devices, Units: f.units, MaxChunk: f.maxChunk})
	devs, err := device.All(backends...)
	if err != nil {
		return nil, nil, err
	}
	kern, err := gpu.NewKernel(devs, backends...)
	if err != nil {
		return nil, nil, err
	}
	return worker.New(f.workers), kern, nil
}

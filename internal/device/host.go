package device

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/Han-16/msmcheck/internal/msm"
)

// HostBackendName names devices emulated on the host.
const HostBackendName = "host"

// Host emulates accelerator devices on the host CPU. Its program is
// gnark-crypto's MultiExp, independent of the bucket engine in package msm.
type Host struct {
	// Count is the number of emulated devices. <= 0 => 1.
	Count int
	// Units is the number of goroutines per device. <= 0 => GOMAXPROCS/Count.
	Units int
	// MaxChunk bounds one dispatch. <= 0 => unbounded.
	MaxChunk int
}

func (h Host) Name() string { return HostBackendName }

func (h Host) Devices() ([]Device, error) {
	count := h.Count
	if count <= 0 {
		count = 1
	}
	units := h.Units
	if units <= 0 {
		units = runtime.GOMAXPROCS(0) / count
	}
	if units < 1 {
		units = 1
	}
	devs := make([]Device, count)
	for i := range devs {
		devs[i] = Device{
			ID:           i,
			Backend:      HostBackendName,
			Name:         fmt.Sprintf("host-%d", i),
			ComputeUnits: units,
			MaxChunk:     h.MaxChunk,
		}
	}
	return devs, nil
}

func (h Host) Compile(d Device) (Program, error) {
	if d.Backend != HostBackendName {
		return nil, fmt.Errorf("host backend cannot compile for %s", d)
	}
	return &hostProgram{dev: d}, nil
}

type hostProgram struct {
	dev    Device
	closed atomic.Bool
}

func (p *hostProgram) Device() Device { return p.dev }

func (p *hostProgram) Multiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error) {
	if p.closed.Load() {
		return bn254.G1Jac{}, ErrClosed
	}
	if p.dev.MaxChunk > 0 && len(exps) > p.dev.MaxChunk {
		return bn254.G1Jac{}, fmt.Errorf("%w: %d terms > %d", ErrOutOfMemory, len(exps), p.dev.MaxChunk)
	}
	return msm.MultiExpJac(bases, exps, p.dev.ComputeUnits)
}

func (p *hostProgram) Close() error {
	p.closed.Store(true)
	return nil
}

//go:build icicle

package device

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	icicle_core "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/core"
	icicle_bn254 "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254"
	icicle_msm "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254/msm"
	icicle_runtime "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/runtime"
)

// IcicleBackendName names CUDA devices driven through ICICLE.
const IcicleBackendName = "icicle"

var loadIcicle sync.Once

// Icicle drives CUDA devices through icicle-gnark.
type Icicle struct {
	// Units weights every CUDA device against host devices.
	Units int
	// MaxChunk bounds one dispatch. <= 0 => unbounded.
	MaxChunk int
}

func (Icicle) Name() string { return IcicleBackendName }

func (ic Icicle) Devices() ([]Device, error) {
	var loadErr icicle_runtime.EIcicleError = icicle_runtime.Success
	loadIcicle.Do(func() { loadErr = icicle_runtime.LoadBackendFromEnvOrDefault() })
	if loadErr != icicle_runtime.Success {
		return nil, fmt.Errorf("load icicle backend: %s", loadErr.AsString())
	}
	count, err := icicle_runtime.GetDeviceCount()
	if err != icicle_runtime.Success {
		return nil, fmt.Errorf("icicle device count: %s", err.AsString())
	}
	units := ic.Units
	if units <= 0 {
		units = 64
	}
	devs := make([]Device, count)
	for i := range devs {
		devs[i] = Device{
			ID:           i,
			Backend:      IcicleBackendName,
			Name:         fmt.Sprintf("cuda-%d", i),
			ComputeUnits: units,
			MaxChunk:     ic.MaxChunk,
		}
	}
	return devs, nil
}

func (Icicle) Compile(d Device) (Program, error) {
	if d.Backend != IcicleBackendName {
		return nil, fmt.Errorf("icicle backend cannot compile for %s", d)
	}
	dev := icicle_runtime.CreateDevice("CUDA", d.ID)
	if err := icicle_runtime.SetDevice(&dev); err != icicle_runtime.Success {
		return nil, fmt.Errorf("set device %s: %s", d, err.AsString())
	}
	return &icicleProgram{dev: d, cuda: dev}, nil
}

type icicleProgram struct {
	mu     sync.Mutex
	dev    Device
	cuda   icicle_runtime.Device
	closed bool
}

func (p *icicleProgram) Device() Device { return p.dev }

func (p *icicleProgram) Multiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return bn254.G1Jac{}, ErrClosed
	}

	var res bn254.G1Jac
	var runErr error
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&p.cuda, func(args ...any) {
		defer close(done)
		res, runErr = icicleMultiexp(bases, exps)
	})
	<-done
	return res, runErr
}

func (p *icicleProgram) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func icicleMultiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error) {
	var basesDevice, scalarsDevice icicle_core.DeviceSlice

	basesHost := (icicle_core.HostSlice[bn254.G1Affine])(bases)
	basesHost.CopyToDevice(&basesDevice, true)
	defer basesDevice.Free()

	scalarsHost := icicle_core.HostSliceFromElements(exps)
	scalarsHost.CopyToDevice(&scalarsDevice, true)
	defer scalarsDevice.Free()

	if err := icicle_bn254.AffineFromMontgomery(basesDevice); err != icicle_runtime.Success {
		return bn254.G1Jac{}, icicleError(err)
	}
	if err := icicle_bn254.FromMontgomery(scalarsDevice); err != icicle_runtime.Success {
		return bn254.G1Jac{}, icicleError(err)
	}

	out := make(icicle_core.HostSlice[icicle_bn254.Projective], 1)
	cfg := icicle_msm.GetDefaultMSMConfig()
	if err := icicle_msm.Msm(scalarsDevice, basesDevice, &cfg, out); err != icicle_runtime.Success {
		return bn254.G1Jac{}, icicleError(err)
	}
	return projectiveToJac(out[0]), nil
}

func icicleError(err icicle_runtime.EIcicleError) error {
	switch err {
	case icicle_runtime.OutOfMemory, icicle_runtime.AllocationFailed:
		return fmt.Errorf("%w: %s", ErrOutOfMemory, err.AsString())
	case icicle_runtime.InvalidDevice:
		return fmt.Errorf("%w: %s", ErrLost, err.AsString())
	default:
		return fmt.Errorf("icicle: %s", err.AsString())
	}
}

// projectiveToJac maps ICICLE's homogeneous projective (X:Y:Z) to gnark's
// Jacobian form through the affine point.
func projectiveToJac(p icicle_bn254.Projective) bn254.G1Jac {
	px, _ := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.X.ToBytesLittleEndian()))
	py, _ := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.Y.ToBytesLittleEndian()))
	pz, _ := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.Z.ToBytesLittleEndian()))

	var out bn254.G1Jac
	if pz.IsZero() {
		return out
	}
	var x, y, zInv fp.Element
	zInv.Inverse(&pz)
	x.Mul(&px, &zInv)
	y.Mul(&py, &zInv)

	aff := bn254.G1Affine{X: x, Y: y}
	out.FromAffine(&aff)
	return out
}

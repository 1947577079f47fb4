// Package device enumerates compute devices and compiles the MSM program
// for them.
package device

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrOutOfMemory is returned by a program when a batch does not fit on
	// its device.
	ErrOutOfMemory = errors.New("device out of memory")
	// ErrLost is returned by a program whose device is no longer usable.
	ErrLost = errors.New("device lost")
	// ErrClosed is returned by a program used after Close.
	ErrClosed = errors.New("program closed")
)

// Device describes one physical (or emulated) compute unit.
type Device struct {
	ID      int
	Backend string
	Name    string
	// ComputeUnits weights the share of work the device receives.
	ComputeUnits int
	// MaxChunk is the largest number of terms the device handles in one
	// dispatch. <= 0 means unbounded.
	MaxChunk int
}

func (d Device) String() string {
	return fmt.Sprintf("%s:%d(%s)", d.Backend, d.ID, d.Name)
}

// Program is the MSM program compiled for, and bound to, one device.
type Program interface {
	Device() Device
	// Multiexp computes sum_i exps[i] * bases[i]. len(bases) == len(exps).
	Multiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error)
	Close() error
}

// Backend discovers devices and builds programs for them.
type Backend interface {
	Name() string
	Devices() ([]Device, error)
	Compile(d Device) (Program, error)
}

// All enumerates the devices of every backend, in backend order.
func All(backends ...Backend) ([]Device, error) {
	var out []Device
	for _, b := range backends {
		devs, err := b.Devices()
		if err != nil {
			return nil, fmt.Errorf("enumerate %s devices: %w", b.Name(), err)
		}
		out = append(out, devs...)
	}
	return out, nil
}

// Compile builds the program of every device with the backend that
// enumerated it. On failure the programs already built are closed.
func Compile(devs []Device, backends ...Backend) ([]Program, error) {
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	progs := make([]Program, 0, len(devs))
	for _, d := range devs {
		b, ok := byName[d.Backend]
		if !ok {
			closeAll(progs)
			return nil, fmt.Errorf("device %s: no backend %q", d, d.Backend)
		}
		p, err := b.Compile(d)
		if err != nil {
			closeAll(progs)
			return nil, fmt.Errorf("device %s: %w", d, err)
		}
		progs = append(progs, p)
	}
	return progs, nil
}

func closeAll(progs []Program) {
	for _, p := range progs {
		_ = p.Close()
	}
}

// Package gpu offloads multi-scalar multiplication to one or more compute
// devices.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/logger"

	"github.com/Han-16/msmcheck/internal/device"
	"github.com/Han-16/msmcheck/internal/msm"
	"github.com/Han-16/msmcheck/internal/source"
	"github.com/Han-16/msmcheck/internal/worker"
)

// ComputationError is the failure of one Multiexp call on one device.
// errors.Is matches both msm.ErrComputation and the device cause.
type ComputationError struct {
	Device device.Device
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s on %s: %v", msm.ErrComputation, e.Device, e.Err)
}

func (e *ComputationError) Unwrap() []error {
	errs := []error{msm.ErrComputation, e.Err}
	if errors.Is(e.Err, device.ErrLost) {
		errs = append(errs, msm.ErrDeviceLost)
	}
	return errs
}

// Kernel binds compiled programs to their devices. It keeps no state
// between calls other than which devices were lost. Calls are serialized.
type Kernel struct {
	mu    sync.Mutex
	progs []device.Program
	lost  []bool
}

// NewKernel compiles the program for every device with the given backends.
func NewKernel(devs []device.Device, backends ...device.Backend) (*Kernel, error) {
	if len(devs) == 0 {
		return nil, msm.ErrNoDevices
	}
	progs, err := device.Compile(devs, backends...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", msm.ErrProgramBuild, err)
	}
	return NewKernelFromPrograms(progs)
}

// NewKernelFromPrograms binds already built programs.
func NewKernelFromPrograms(progs []device.Program) (*Kernel, error) {
	if len(progs) == 0 {
		return nil, msm.ErrNoDevices
	}
	log := logger.Logger().With().Str("component", "msm-gpu").Logger()
	for _, p := range progs {
		d := p.Device()
		log.Info().Str("device", d.String()).Int("units", d.ComputeUnits).Int("max_chunk", d.MaxChunk).Msg("device bound")
	}
	return &Kernel{progs: progs, lost: make([]bool, len(progs))}, nil
}

// Devices returns the devices still usable by the kernel.
func (k *Kernel) Devices() []device.Device {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []device.Device
	for i, p := range k.progs {
		if !k.lost[i] {
			out = append(out, p.Device())
		}
	}
	return out
}

// Multiexp computes sum_i exps[i] * bases[skip+i] on the bound devices.
// It blocks until every device has finished.
func (k *Kernel) Multiexp(pool *worker.Worker, bases []bn254.G1Affine, exps []fr.Element, skip int) (bn254.G1Affine, error) {
	return k.MultiexpContext(context.Background(), pool, bases, exps, skip)
}

// MultiexpContext is Multiexp with cancellation. ctx is checked between
// device dispatches; a dispatch in flight runs to completion.
func (k *Kernel) MultiexpContext(ctx context.Context, pool *worker.Worker, bases []bn254.G1Affine, exps []fr.Element, skip int) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	src := source.Window{Bases: bases, Skip: skip}
	if err := source.Check(src, len(exps)); err != nil {
		return out, err
	}
	if len(exps) == 0 {
		return out, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var progs []device.Program
	var idx []int
	var weights []int
	for i, p := range k.progs {
		if k.lost[i] {
			continue
		}
		progs = append(progs, p)
		idx = append(idx, i)
		weights = append(weights, p.Device().ComputeUnits)
	}
	if len(progs) == 0 {
		return out, fmt.Errorf("%w: every device was lost", msm.ErrNoDevices)
	}

	ranges := source.SplitWeighted(len(exps), weights)
	partial := make([]bn254.G1Jac, len(progs))
	errs := make([]error, len(progs))

	// every device runs to the end of its range; failures are collected
	// so that each lost device is recorded
	_ = pool.Parallel(ctx, len(progs), func(ctx context.Context, i int) error {
		partial[i], errs[i] = runDevice(ctx, progs[i], src, exps, ranges[i])
		return nil
	})

	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, msm.ErrDeviceLost) {
			k.lost[idx[i]] = true
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return out, firstErr
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	var acc bn254.G1Jac
	for i := range partial {
		acc.AddAssign(&partial[i])
	}
	out.FromJacobian(&acc)
	return out, nil
}

// runDevice feeds r to one program in batches of at most MaxChunk terms.
func runDevice(ctx context.Context, p device.Program, src source.Source, exps []fr.Element, r source.Range) (bn254.G1Jac, error) {
	var acc bn254.G1Jac
	step := p.Device().MaxChunk
	if step <= 0 {
		step = r.Len()
	}
	for lo := r.Lo; lo < r.Hi; lo += step {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		hi := min(lo+step, r.Hi)
		bases, es, err := source.Take(src, exps, source.Range{Lo: lo, Hi: hi})
		if err != nil {
			return acc, err
		}
		res, err := p.Multiexp(bases, es)
		if err != nil {
			return acc, &ComputationError{Device: p.Device(), Err: err}
		}
		acc.AddAssign(&res)
	}
	return acc, nil
}

// Close releases every program.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var errs []error
	for _, p := range k.progs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package gpu

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/device"
	"github.com/Han-16/msmcheck/internal/msm"
	"github.com/Han-16/msmcheck/internal/randutil"
	"github.com/Han-16/msmcheck/internal/source"
	"github.com/Han-16/msmcheck/internal/worker"
)

// fakeProgram computes the right answer until it is told to fail.
type fakeProgram struct {
	dev   device.Device
	err   error
	calls atomic.Int32
}

func (p *fakeProgram) Device() device.Device { return p.dev }

func (p *fakeProgram) Multiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error) {
	p.calls.Add(1)
	if p.err != nil {
		return bn254.G1Jac{}, p.err
	}
	return msm.MultiExpJac(bases, exps, 1)
}

func (p *fakeProgram) Close() error { return nil }

func scenario(t *testing.T, seed uint64, n int) ([]bn254.G1Affine, []fr.Element) {
	t.Helper()
	rng := randutil.NewRand(seed)
	points, err := randutil.RandomPointsG1(rng, n)
	require.NoError(t, err)
	scalars, err := randutil.RandomScalars(rng, n)
	require.NoError(t, err)
	return points, scalars
}

func hostKernel(t *testing.T, h device.Host) *Kernel {
	t.Helper()
	devs, err := device.All(h)
	require.NoError(t, err)
	k, err := NewKernel(devs, h)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, k.Close()) })
	return k
}

func TestNewKernelWithoutDevices(t *testing.T) {
	_, err := NewKernel(nil, device.Host{})
	require.ErrorIs(t, err, msm.ErrNoDevices)

	_, err = NewKernelFromPrograms(nil)
	require.ErrorIs(t, err, msm.ErrNoDevices)
}

func TestNewKernelBuildFailure(t *testing.T) {
	devs := []device.Device{{ID: 0, Backend: "missing", ComputeUnits: 1}}
	_, err := NewKernel(devs, device.Host{})
	require.ErrorIs(t, err, msm.ErrProgramBuild)
	require.NotErrorIs(t, err, msm.ErrComputation)
}

func TestKernelMatchesCPU(t *testing.T) {
	pool := worker.New(4)
	points, scalars := scenario(t, 11, 300)

	want, err := msm.MultiexpCPU(pool, source.Slice(points), density.Full{}, scalars).Wait()
	require.NoError(t, err)

	for _, h := range []device.Host{
		{Count: 1},
		{Count: 3, Units: 1},
		{Count: 2, Units: 2, MaxChunk: 17},
	} {
		k := hostKernel(t, h)
		got, err := k.Multiexp(pool, points, scalars, 0)
		require.NoError(t, err)
		require.True(t, got.Equal(&want), "%+v", h)
	}
}

func TestKernelSkip(t *testing.T) {
	pool := worker.New(2)
	points, scalars := scenario(t, 12, 64)
	k := hostKernel(t, device.Host{Count: 2})

	want, err := msm.MultiExpMSM(points[10:50], scalars[:40])
	require.NoError(t, err)
	got, err := k.Multiexp(pool, points, scalars[:40], 10)
	require.NoError(t, err)
	require.True(t, got.Equal(&want))

	_, err = k.Multiexp(pool, points, scalars, 1)
	require.ErrorIs(t, err, msm.ErrMisaligned)
	require.True(t, msm.IsConfigError(err))
	require.NotErrorIs(t, err, msm.ErrComputation)
}

func TestMultiexpGPUSparse(t *testing.T) {
	pool := worker.New(2)
	points, scalars := scenario(t, 13, 90)
	k := hostKernel(t, device.Host{Count: 2})

	d := density.NewBits(len(scalars))
	for i := 0; i < len(scalars); i += 2 {
		d.Set(i)
	}
	compact := density.Compact(d, points)

	want, err := msm.MultiexpCPU(pool, source.Slice(compact), d, scalars).Wait()
	require.NoError(t, err)
	got, err := MultiexpGPU(context.Background(), pool, source.Slice(compact), d, scalars, k)
	require.NoError(t, err)
	require.True(t, got.Equal(&want))
}

func TestKernelEmpty(t *testing.T) {
	k := hostKernel(t, device.Host{})
	got, err := k.Multiexp(worker.New(1), nil, nil, 0)
	require.NoError(t, err)
	require.True(t, got.IsInfinity())
}

func TestKernelComputationFailure(t *testing.T) {
	pool := worker.New(2)
	points, scalars := scenario(t, 14, 40)

	good := &fakeProgram{dev: device.Device{ID: 0, Backend: "fake", ComputeUnits: 1}}
	oom := &fakeProgram{dev: device.Device{ID: 1, Backend: "fake", ComputeUnits: 1}, err: device.ErrOutOfMemory}
	k, err := NewKernelFromPrograms([]device.Program{good, oom})
	require.NoError(t, err)

	_, err = k.Multiexp(pool, points, scalars, 0)
	require.ErrorIs(t, err, msm.ErrComputation)
	require.ErrorIs(t, err, device.ErrOutOfMemory)
	require.NotErrorIs(t, err, msm.ErrDeviceLost)
	require.False(t, msm.IsConfigError(err))

	var cerr *ComputationError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, 1, cerr.Device.ID)

	// the device is still in use
	require.Len(t, k.Devices(), 2)
	oom.err = nil
	want, err := msm.MultiExpMSM(points, scalars)
	require.NoError(t, err)
	got, err := k.Multiexp(pool, points, scalars, 0)
	require.NoError(t, err)
	require.True(t, got.Equal(&want))
}

func TestKernelDeviceLost(t *testing.T) {
	pool := worker.New(2)
	points, scalars := scenario(t, 15, 40)

	good := &fakeProgram{dev: device.Device{ID: 0, Backend: "fake", ComputeUnits: 1}}
	gone := &fakeProgram{dev: device.Device{ID: 1, Backend: "fake", ComputeUnits: 1}, err: device.ErrLost}
	k, err := NewKernelFromPrograms([]device.Program{good, gone})
	require.NoError(t, err)

	_, err = k.Multiexp(pool, points, scalars, 0)
	require.ErrorIs(t, err, msm.ErrComputation)
	require.ErrorIs(t, err, msm.ErrDeviceLost)
	require.Equal(t, []device.Device{good.dev}, k.Devices())

	calls := gone.calls.Load()
	want, err := msm.MultiExpMSM(points, scalars)
	require.NoError(t, err)
	got, err := k.Multiexp(pool, points, scalars, 0)
	require.NoError(t, err)
	require.True(t, got.Equal(&want))
	require.Equal(t, calls, gone.calls.Load())

	good.err = device.ErrLost
	_, err = k.Multiexp(pool, points, scalars, 0)
	require.ErrorIs(t, err, msm.ErrDeviceLost)
	_, err = k.Multiexp(pool, points, scalars, 0)
	require.ErrorIs(t, err, msm.ErrNoDevices)
}

func TestKernelCanceled(t *testing.T) {
	points, scalars := scenario(t, 16, 20)
	k := hostKernel(t, device.Host{Count: 2, MaxChunk: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.MultiexpContext(ctx, worker.New(2), points, scalars, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, msm.ErrComputation)
}

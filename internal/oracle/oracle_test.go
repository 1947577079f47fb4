package oracle

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/device"
	"github.com/Han-16/msmcheck/internal/gpu"
	"github.com/Han-16/msmcheck/internal/msm"
	"github.com/Han-16/msmcheck/internal/randutil"
	"github.com/Han-16/msmcheck/internal/worker"
)

// skewedProgram adds the generator to every correct answer.
type skewedProgram struct{ dev device.Device }

func (p skewedProgram) Device() device.Device { return p.dev }

func (p skewedProgram) Multiexp(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Jac, error) {
	res, err := msm.MultiExpJac(bases, exps, 1)
	g, _, _, _ := bn254.Generators()
	res.AddAssign(&g)
	return res, err
}

func (skewedProgram) Close() error { return nil }

func hostKernel(t *testing.T, h device.Host) *gpu.Kernel {
	t.Helper()
	devs, err := device.All(h)
	require.NoError(t, err)
	k, err := gpu.NewKernel(devs, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func initialBases(t *testing.T, logD int) []bn254.G1Affine {
	t.Helper()
	b, err := randutil.RandomPointsG1Par(randutil.NewRand(99), 1<<logD, 4)
	require.NoError(t, err)
	return b
}

func TestLadderBackendsAgree(t *testing.T) {
	pool := worker.New(4)
	reg := prometheus.NewRegistry()
	cfg := Config{StartLogD: 4, MaxLogD: 7, Repeat: 1, Seed: 1}
	o, err := New(cfg, pool, hostKernel(t, device.Host{Count: 2, MaxChunk: 50}), reg)
	require.NoError(t, err)

	bases := initialBases(t, 4)
	reports, err := o.Run(context.Background(), bases)
	require.NoError(t, err)
	require.Len(t, reports, 8)
	require.Len(t, bases, 16)

	for i, r := range reports {
		require.Equal(t, i/4, r.Repetition)
		require.Equal(t, 4+i%4, r.LogD)
		require.Equal(t, 1<<r.LogD, r.Samples)
		require.GreaterOrEqual(t, r.Bases, r.Samples)
		require.False(t, r.Result.IsInfinity())
	}
	// bases grow only during the first pass
	require.Equal(t, 16, reports[0].Bases)
	require.Equal(t, 128, reports[3].Bases)
	require.Equal(t, 256, reports[4].Bases)
	require.Equal(t, 256, reports[7].Bases)

	// a fresh pass at the same size draws fresh exponents
	require.False(t, reports[0].Result.Equal(&reports[4].Result))

	require.Equal(t, 8.0, testutil.ToFloat64(o.metrics.steps))
	require.Equal(t, 0.0, testutil.ToFloat64(o.metrics.mismatches))
	require.Equal(t, 2, testutil.CollectAndCount(o.metrics.duration))

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, reports))
	require.Contains(t, buf.String(), "2^7")
}

func TestLadderIsReproducible(t *testing.T) {
	pool := worker.New(2)
	k := hostKernel(t, device.Host{})
	cfg := Config{StartLogD: 3, MaxLogD: 5, Seed: 42}
	bases := initialBases(t, 3)

	run := func() []StepReport {
		o, err := New(cfg, pool, k, nil)
		require.NoError(t, err)
		reports, err := o.Run(context.Background(), bases)
		require.NoError(t, err)
		return reports
	}
	a, b := run(), run()
	require.Len(t, b, len(a))
	for i := range a {
		require.True(t, a[i].Result.Equal(&b[i].Result))
	}
}

func TestLadderFreshBasesAndSparseDensity(t *testing.T) {
	pool := worker.New(2)
	cfg := Config{
		StartLogD:  3,
		MaxLogD:    6,
		Seed:       7,
		FreshBases: true,
		Density: func(n int) density.QueryDensity {
			d := density.NewBits(n)
			for i := 0; i < n; i += 3 {
				d.Set(i)
			}
			return d
		},
	}
	o, err := New(cfg, pool, hostKernel(t, device.Host{Count: 2}), nil)
	require.NoError(t, err)

	reports, err := o.Run(context.Background(), initialBases(t, 3))
	require.NoError(t, err)
	require.Len(t, reports, 4)
	require.Equal(t, 64, reports[3].Bases)
}

func TestLadderMismatchIsFatal(t *testing.T) {
	pool := worker.New(2)
	k, err := gpu.NewKernelFromPrograms([]device.Program{skewedProgram{dev: device.Device{Backend: "skewed", ComputeUnits: 1}}})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	o, err := New(Config{StartLogD: 3, MaxLogD: 6}, pool, k, reg)
	require.NoError(t, err)

	reports, err := o.Run(context.Background(), initialBases(t, 3))
	require.ErrorIs(t, err, msm.ErrInconsistent)
	require.Empty(t, reports)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, 3, mismatch.LogD)
	require.False(t, mismatch.CPU.Equal(&mismatch.GPU))
	require.Equal(t, 1.0, testutil.ToFloat64(o.metrics.mismatches))
}

func TestLadderRejectsShortBases(t *testing.T) {
	o, err := New(Config{StartLogD: 4, MaxLogD: 4}, worker.New(1), hostKernel(t, device.Host{}), nil)
	require.NoError(t, err)
	_, err = o.Run(context.Background(), initialBases(t, 3))
	require.ErrorIs(t, err, msm.ErrMisaligned)
}

func TestLadderCanceled(t *testing.T) {
	o, err := New(Config{StartLogD: 2, MaxLogD: 4}, worker.New(1), hostKernel(t, device.Host{}), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx, initialBases(t, 2))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidation(t *testing.T) {
	for _, cfg := range []Config{
		{StartLogD: 5, MaxLogD: 4},
		{StartLogD: -1, MaxLogD: 4},
		{StartLogD: 1, MaxLogD: 31},
		{StartLogD: 1, MaxLogD: 2, Repeat: -1},
	} {
		_, err := New(cfg, worker.New(1), nil, nil)
		require.Error(t, err, "%+v", cfg)
	}
}

func TestMetricsRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.Error(t, err)
}

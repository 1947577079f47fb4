// Package oracle checks the CPU and accelerator MSM engines against each
// other over an escalating ladder of problem sizes.
package oracle

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/logger"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/gpu"
	"github.com/Han-16/msmcheck/internal/msm"
	"github.com/Han-16/msmcheck/internal/randutil"
	"github.com/Han-16/msmcheck/internal/source"
	"github.com/Han-16/msmcheck/internal/worker"
)

// Config describes one validation run.
type Config struct {
	// StartLogD and MaxLogD bound the ladder: 2^StartLogD .. 2^MaxLogD exponents.
	StartLogD int
	MaxLogD   int
	// Repeat is the number of extra passes over the ladder, each with fresh
	// exponents. Bases grow only during the first pass.
	Repeat int
	// Seed feeds the exponent stream, and the base stream when FreshBases.
	Seed uint64
	// FreshBases extends the base set with new random points instead of
	// duplicating it.
	FreshBases bool
	// Density builds the query for a step of n exponents. nil => full density.
	Density func(n int) density.QueryDensity
}

func DefaultConfig() Config {
	return Config{StartLogD: 10, MaxLogD: 16}
}

func (c Config) validate() error {
	if c.StartLogD < 0 || c.MaxLogD < c.StartLogD || c.MaxLogD > 30 {
		return fmt.Errorf("invalid ladder [%d, %d]", c.StartLogD, c.MaxLogD)
	}
	if c.Repeat < 0 {
		return fmt.Errorf("invalid repeat %d", c.Repeat)
	}
	return nil
}

// StepReport is the outcome of one rung of the ladder.
type StepReport struct {
	Repetition int
	LogD       int
	Samples    int
	Bases      int
	CPU        time.Duration
	GPU        time.Duration
	Result     bn254.G1Affine
}

// Speedup returns CPU time over accelerator time.
func (r StepReport) Speedup() float64 {
	if r.GPU <= 0 {
		return 0
	}
	return float64(r.CPU) / float64(r.GPU)
}

// MismatchError reports a step where the two engines disagreed.
type MismatchError struct {
	Repetition int
	LogD       int
	CPU, GPU   bn254.G1Affine
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s at 2^%d (repetition %d): cpu=%s gpu=%s", msm.ErrInconsistent, e.LogD, e.Repetition, e.CPU.String(), e.GPU.String())
}

func (e *MismatchError) Unwrap() error { return msm.ErrInconsistent }

// Oracle drives both engines. The pool and kernel are owned by the caller.
type Oracle struct {
	cfg     Config
	pool    *worker.Worker
	kern    *gpu.Kernel
	rng     io.Reader
	metrics *Metrics
}

// New returns an oracle. reg may be nil, in which case metrics are kept but
// not registered.
func New(cfg Config, pool *worker.Worker, kern *gpu.Kernel, reg prometheus.Registerer) (*Oracle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Oracle{
		cfg:     cfg,
		pool:    pool,
		kern:    kern,
		rng:     randutil.NewRand(cfg.Seed),
		metrics: m,
	}, nil
}

// Run walks the ladder starting from bases, which must hold at least
// 2^StartLogD points. The caller's slice is never modified. Reports of the
// steps completed so far are returned along with any error.
func (o *Oracle) Run(ctx context.Context, bases []bn254.G1Affine) ([]StepReport, error) {
	if need := 1 << o.cfg.StartLogD; len(bases) < need {
		return nil, fmt.Errorf("%w: %d bases for 2^%d exponents", msm.ErrMisaligned, len(bases), o.cfg.StartLogD)
	}
	log := logger.Logger().With().Str("component", "oracle").Logger()

	var reports []StepReport
	for rep := 0; rep <= o.cfg.Repeat; rep++ {
		for logD := o.cfg.StartLogD; logD <= o.cfg.MaxLogD; logD++ {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			r, err := o.step(ctx, rep, logD, bases)
			if err != nil {
				return reports, err
			}
			reports = append(reports, r)
			log.Info().
				Int("repetition", rep).
				Int("log_d", logD).
				Int("bases", len(bases)).
				Dur("cpu", r.CPU).
				Dur("gpu", r.GPU).
				Float64("speedup", r.Speedup()).
				Msg("backends agree")

			if rep == 0 {
				if bases, err = o.grow(bases); err != nil {
					return reports, err
				}
			}
		}
	}
	return reports, nil
}

func (o *Oracle) step(ctx context.Context, rep, logD int, bases []bn254.G1Affine) (StepReport, error) {
	samples := 1 << logD
	r := StepReport{Repetition: rep, LogD: logD, Samples: samples, Bases: len(bases)}

	exps, err := randutil.RandomScalars(o.rng, samples)
	if err != nil {
		return r, err
	}
	var d density.QueryDensity = density.Full{}
	if o.cfg.Density != nil {
		d = o.cfg.Density(samples)
	}
	src := source.Slice(bases)

	now := time.Now()
	gpuRes, err := gpu.MultiexpGPU(ctx, o.pool, src, d, exps, o.kern)
	if err != nil {
		return r, fmt.Errorf("accelerator at 2^%d: %w", logD, err)
	}
	r.GPU = time.Since(now)
	o.metrics.observe(backendGPU, r.GPU)

	now = time.Now()
	cpuRes, err := msm.MultiexpCPU(o.pool, src, d, exps).Wait()
	if err != nil {
		return r, fmt.Errorf("cpu at 2^%d: %w", logD, err)
	}
	r.CPU = time.Since(now)
	o.metrics.observe(backendCPU, r.CPU)

	o.metrics.steps.Inc()
	if !cpuRes.Equal(&gpuRes) {
		o.metrics.mismatches.Inc()
		return r, &MismatchError{Repetition: rep, LogD: logD, CPU: cpuRes, GPU: gpuRes}
	}
	r.Result = cpuRes
	return r, nil
}

// grow doubles the base set.
func (o *Oracle) grow(bases []bn254.G1Affine) ([]bn254.G1Affine, error) {
	if !o.cfg.FreshBases {
		return source.Repeat(bases, 1), nil
	}
	extra, err := randutil.RandomPointsG1Par(o.rng, len(bases), o.pool.Size())
	if err != nil {
		return nil, err
	}
	return slices.Concat(bases, extra), nil
}

package msm

import (
	"context"
	"fmt"
	"math"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/logger"

	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/source"
	"github.com/Han-16/msmcheck/internal/worker"
)

// MaxWindowBits bounds the bucket window; 2^16 Jacobian buckets per job is
// already several megabytes.
const MaxWindowBits = 16

// Config tunes the CPU engine. Zero values pick defaults.
type Config struct {
	// Partitions is the number of contiguous chunks the exponents are cut
	// into. <= 0 => pool size.
	Partitions int
	// WindowBits is the bucket window c. <= 0 => WindowSize(n).
	WindowBits int
}

// WindowSize returns the default window for n exponents.
func WindowSize(n int) int {
	if n < 32 {
		return 3
	}
	c := int(math.Ceil(math.Log(float64(n))))
	if c > MaxWindowBits {
		c = MaxWindowBits
	}
	return c
}

// MultiexpCPU computes sum_i exps[i] * bases[skip+i] over the exponents
// selected by d, on the pool. The returned task resolves to the affine
// result; callers must Wait on it.
func MultiexpCPU(pool *worker.Worker, src source.Source, d density.QueryDensity, exps []fr.Element) *worker.Task[bn254.G1Affine] {
	return MultiexpCPUWithConfig(pool, src, d, exps, Config{})
}

// MultiexpCPUWithConfig is MultiexpCPU with explicit partitioning and window
// size. The result does not depend on either.
func MultiexpCPUWithConfig(pool *worker.Worker, src source.Source, d density.QueryDensity, exps []fr.Element, cfg Config) *worker.Task[bn254.G1Affine] {
	filtered := density.GenerateExps(d, exps)
	n := len(filtered)
	if err := source.Check(src, n); err != nil {
		return worker.Done(bn254.G1Affine{}, err)
	}

	c := cfg.WindowBits
	if c <= 0 {
		c = WindowSize(n)
	}
	if c > MaxWindowBits {
		return worker.Done(bn254.G1Affine{}, fmt.Errorf("window of %d bits exceeds %d", c, MaxWindowBits))
	}
	parts := cfg.Partitions
	if parts <= 0 {
		parts = pool.Size()
	}
	ranges := source.Split(n, parts)
	nbWindows := (fr.Bits + c - 1) / c

	log := logger.Logger().With().Str("component", "msm-cpu").Int("n", n).Int("c", c).Int("partitions", len(ranges)).Logger()

	return worker.Compute(pool, func() (bn254.G1Affine, error) {
		var out bn254.G1Affine
		if n == 0 {
			return out, nil
		}
		ctx := context.Background()

		// canonical limbs, computed once per partition
		digits := make([][4]uint64, n)
		err := pool.Parallel(ctx, len(ranges), func(_ context.Context, p int) error {
			for i := ranges[p].Lo; i < ranges[p].Hi; i++ {
				digits[i] = filtered[i].Bits()
			}
			return nil
		})
		if err != nil {
			return out, err
		}

		// one job per (partition, window)
		sums := make([]bn254.G1Jac, len(ranges)*nbWindows)
		err = pool.Parallel(ctx, len(sums), func(_ context.Context, job int) error {
			p, w := job/nbWindows, job%nbWindows
			bases, scalars, err := source.Take(src, digits, ranges[p])
			if err != nil {
				return err
			}
			sums[job] = windowSum(bases, scalars, w*c, c)
			return nil
		})
		if err != nil {
			return out, err
		}

		var acc bn254.G1Jac
		for w := nbWindows - 1; w >= 0; w-- {
			for k := 0; k < c; k++ {
				acc.DoubleAssign()
			}
			for p := range ranges {
				acc.AddAssign(&sums[p*nbWindows+w])
			}
		}
		out.FromJacobian(&acc)
		log.Debug().Msg("cpu multiexp done")
		return out, nil
	})
}

// windowSum accumulates each base into the bucket of its c-bit digit at bit
// offset off, then folds the buckets as sum_j j*bucket[j] with a running sum.
func windowSum(bases []bn254.G1Affine, scalars [][4]uint64, off, c int) bn254.G1Jac {
	buckets := make([]bn254.G1Jac, (1<<c)-1)
	for i := range scalars {
		d := digit(&scalars[i], off, c)
		if d == 0 {
			continue
		}
		buckets[d-1].AddMixed(&bases[i])
	}

	var running, sum bn254.G1Jac
	for j := len(buckets) - 1; j >= 0; j-- {
		running.AddAssign(&buckets[j])
		sum.AddAssign(&running)
	}
	return sum
}

// digit extracts c bits of the little-endian limbs s starting at bit off.
func digit(s *[4]uint64, off, c int) uint64 {
	limb, shift := off/64, uint(off%64)
	if limb >= len(s) {
		return 0
	}
	v := s[limb] >> shift
	if int(shift)+c > 64 && limb+1 < len(s) {
		v |= s[limb+1] << (64 - shift)
	}
	return v & (1<<uint(c) - 1)
}

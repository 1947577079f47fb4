package main

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/spf13/cobra"

	"github.com/Han-16/msmcheck/internal/cache"
	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/msm"
	"github.com/Han-16/msmcheck/internal/randutil"
	"github.com/Han-16/msmcheck/internal/source"
)

// benchCommand times both engines on n = 2^exp terms and appends
// "exp | n | iters | Best | Avg" lines, one per backend, to
// <mode>_<backend>_procs<workers>.txt.
//
//	mode const : scalars = [s, ..., s], points = [g, ..., g], expected (n*s)*g
//	mode rand  : random scalars and points, engines checked against each other
func benchCommand() *cobra.Command {
	var (
		rt       runtimeFlags
		iters    int
		mode     string
		seed     uint64
		cacheDir string
	)
	cmd := &cobra.Command{
		Use:   "bench <exp>",
		Short: "Benchmark the CPU engine and the kernel on 2^exp terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			exp, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			if exp < 0 || exp > 30 {
				return fmt.Errorf("exp must be in [0, 30], got %d", exp)
			}
			n := 1 << exp
			if iters <= 0 {
				iters = 1
			}
			mode = strings.ToLower(mode)
			if mode != "const" && mode != "rand" {
				return fmt.Errorf(`mode must be "const" or "rand"`)
			}

			pool, kern, err := rt.setup()
			if err != nil {
				return err
			}
			defer kern.Close()

			// ---- prepare scalars & points ----
			var scalars []fr.Element
			var points []bn254.G1Affine
			var expected bn254.G1Affine

			switch mode {
			case "const":
				rng := randutil.NewRand(seed)
				s, err := randutil.RandomScalar(rng)
				if err != nil {
					return err
				}
				scalars = make([]fr.Element, n)
				for i := range scalars {
					scalars[i] = s
				}

				_, _, g, _ := bn254.Generators()
				points = make([]bn254.G1Affine, n)
				for i := range points {
					points[i] = g
				}

				// expected = (n*s) * g
				var ns fr.Element
				ns.SetUint64(uint64(n))
				ns.Mul(&ns, &s)
				expected.ScalarMultiplication(&g, ns.BigInt(new(big.Int)))

			case "rand":
				rng := randutil.NewRand(seed)
				genScalars := func(n int) ([]fr.Element, error) { return randutil.RandomScalars(rng, n) }
				genPoints := func(n int) ([]bn254.G1Affine, error) { return randutil.RandomPointsG1Par(rng, n, pool.Size()) }
				if cacheDir != "" {
					if scalars, _, err = cache.LoadOrCreateScalars(cacheDir, exp, n, genScalars); err != nil {
						return err
					}
					if points, _, err = cache.LoadOrCreatePoints(cacheDir, exp, n, genPoints); err != nil {
						return err
					}
				} else {
					if scalars, err = genScalars(n); err != nil {
						return err
					}
					if points, err = genPoints(n); err != nil {
						return err
					}
				}
			}

			backends := []struct {
				name string
				run  func() (bn254.G1Affine, error)
			}{
				{"cpu", func() (bn254.G1Affine, error) {
					return msm.MultiexpCPU(pool, source.Slice(points), density.Full{}, scalars).Wait()
				}},
				{"gpu", func() (bn254.G1Affine, error) {
					return kern.Multiexp(pool, points, scalars, 0)
				}},
			}

			results := make([]bn254.G1Affine, len(backends))
			for b, backend := range backends {
				var best, total time.Duration
				for it := 0; it < iters; it++ {
					start := time.Now()
					res, err := backend.run()
					if err != nil {
						return fmt.Errorf("%s iter %d: %w", backend.name, it, err)
					}
					elapsed := time.Since(start)

					if mode == "const" && !res.Equal(&expected) {
						return fmt.Errorf("%s iter %d: MSM result mismatch with (n*s)*g", backend.name, it)
					}
					results[b] = res

					if it == 0 || elapsed < best {
						best = elapsed
					}
					total += elapsed
				}
				avg := time.Duration(int64(total) / int64(iters))
				if err := appendResult(mode, backend.name, pool.Size(), exp, n, iters, best, avg); err != nil {
					return err
				}
			}
			if !results[0].Equal(&results[1]) {
				return fmt.Errorf("%w: cpu and gpu results differ at 2^%d", msm.ErrInconsistent, exp)
			}

			fmt.Printf("Appended: mode=%s, procs=%d, exp=%d, iters=%d\n", mode, pool.Size(), exp, iters)
			return nil
		},
	}
	rt.register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&iters, "iters", 5, "number of iterations")
	fs.StringVar(&mode, "mode", "const", `"const" or "rand"`)
	fs.Uint64Var(&seed, "seed", 0, "seed of the scenario")
	fs.StringVar(&cacheDir, "cache-dir", "", "directory caching rand-mode inputs")
	return cmd
}

func appendResult(mode, backend string, procs, exp, n, iters int, best, avg time.Duration) error {
	filename := fmt.Sprintf("%s_%s_procs%d.txt", mode, backend, procs)
	out, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if fi, err := out.Stat(); err == nil && fi.Size() == 0 {
		fmt.Fprintf(out, "# MSM Benchmark Results (mode=%s, backend=%s, procs=%d)\n", mode, backend, procs)
		fmt.Fprintln(out, "# exp | n | iters | Best | Avg")
	}
	_, err = fmt.Fprintf(out, "%d | %d | %d | %s | %s\n", exp, n, iters, best, avg)
	return err
}

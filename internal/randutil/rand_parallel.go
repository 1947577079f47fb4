package randutil

import (
	"io"
	"math/big"
	"runtime"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// RandomPointsG1Par is RandomPointsG1 with the scalar multiplications spread
// over workers goroutines. Scalars are still drawn in order from r, so a
// seeded stream gives the same points as RandomPointsG1.
// If workers <= 0, it defaults to runtime.NumCPU().
func RandomPointsG1Par(r io.Reader, n, workers int) ([]bn254.G1Affine, error) {
	if n <= 0 {
		return []bn254.G1Affine{}, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ks, err := RandomScalars(r, n)
	if err != nil {
		return nil, err
	}

	out := make([]bn254.G1Affine, n)
	jobs := make(chan int, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// point = k_i * G
				out[i].ScalarMultiplicationBase(ks[i].BigInt(new(big.Int)))
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out, nil
}

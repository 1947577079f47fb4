package gpu

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/Han-16/msmcheck/internal/density"
	"github.com/Han-16/msmcheck/internal/source"
	"github.com/Han-16/msmcheck/internal/worker"
)

// MultiexpGPU filters exps through d and runs the result on the kernel
// against the window of src. It mirrors msm.MultiexpCPU so that both
// backends take the same (window, density, exponents) triple.
func MultiexpGPU(ctx context.Context, pool *worker.Worker, src source.Source, d density.QueryDensity, exps []fr.Element, k *Kernel) (bn254.G1Affine, error) {
	filtered := density.GenerateExps(d, exps)
	bases, skip := src.Get()
	return k.MultiexpContext(ctx, pool, bases, filtered, skip)
}

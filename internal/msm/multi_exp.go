package msm

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MultiExpJac computes sum_i scalars[i] * points[i] with gnark-crypto's
// MultiExp and leaves the result in Jacobian form. nbTasks <= 0 lets
// gnark-crypto pick.
func MultiExpJac(points []bn254.G1Affine, scalars []fr.Element, nbTasks int) (bn254.G1Jac, error) {
	var acc bn254.G1Jac
	if len(points) != len(scalars) {
		return acc, ErrLenMismatch
	}
	if len(points) == 0 {
		return acc, nil
	}
	if nbTasks > 1024 {
		nbTasks = 1024
	}
	if _, err := acc.MultiExp(points, scalars, ecc.MultiExpConfig{NbTasks: nbTasks}); err != nil {
		return bn254.G1Jac{}, err
	}
	return acc, nil
}

// MultiExpMSM computes sum_i scalars[i] * points[i] using gnark-crypto MultiExp (fast MSM).
func MultiExpMSM(points []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	acc, err := MultiExpJac(points, scalars, 0)
	if err != nil {
		return bn254.G1Affine{}, err
	}

	var out bn254.G1Affine
	out.FromJacobian(&acc)
	return out, nil
}

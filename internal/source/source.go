// Package source supplies the bases of a multi-scalar multiplication and
// partitions them, together with their exponents, into aligned ranges.
package source

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// ErrMisaligned is returned when a base window cannot supply one base per
// exponent.
var ErrMisaligned = errors.New("base window and exponents are misaligned")

// Source returns the base sequence to use and the offset of its first entry.
type Source interface {
	Get() (bases []bn254.G1Affine, skip int)
}

// Slice is a single buffer used from its first entry.
type Slice []bn254.G1Affine

func (s Slice) Get() ([]bn254.G1Affine, int) { return s, 0 }

// Window is a buffer used from entry Skip onwards.
type Window struct {
	Bases []bn254.G1Affine
	Skip  int
}

func (w Window) Get() ([]bn254.G1Affine, int) { return w.Bases, w.Skip }

// At returns a window over the same buffer shifted by off entries.
func (w Window) At(off int) Window {
	return Window{Bases: w.Bases, Skip: w.Skip + off}
}

// Range is a half-open interval [Lo, Hi) of positions in the exponent
// sequence.
type Range struct {
	Lo, Hi int
}

func (r Range) Len() int { return r.Hi - r.Lo }

// Split cuts [0, n) into at most parts contiguous ranges of near equal size.
// Empty ranges are never returned.
func Split(n, parts int) []Range {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	out := make([]Range, 0, parts)
	chunk := (n + parts - 1) / parts
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		out = append(out, Range{Lo: lo, Hi: hi})
	}
	return out
}

// SplitWeighted cuts [0, n) into one range per weight, sized in proportion
// to the weights. Ranges may be empty when n is small.
func SplitWeighted(n int, weights []int) []Range {
	total := 0
	for _, w := range weights {
		if w < 1 {
			w = 1
		}
		total += w
	}
	out := make([]Range, len(weights))
	lo, acc := 0, 0
	for i, w := range weights {
		if w < 1 {
			w = 1
		}
		acc += w
		hi := n * acc / total
		if i == len(weights)-1 {
			hi = n
		}
		out[i] = Range{Lo: lo, Hi: hi}
		lo = hi
	}
	return out
}

// Check verifies that src holds n bases past its offset.
func Check(src Source, n int) error {
	bases, skip := src.Get()
	if skip < 0 || skip+n > len(bases) {
		return fmt.Errorf("%w: skip %d + %d exponents > %d bases", ErrMisaligned, skip, n, len(bases))
	}
	return nil
}

// Take returns the bases and exponents that belong to r. Both slices are
// cut from the same range so that base i of the result always pairs with
// exponent i.
func Take[E any](src Source, exps []E, r Range) ([]bn254.G1Affine, []E, error) {
	if r.Lo < 0 || r.Hi > len(exps) || r.Lo > r.Hi {
		return nil, nil, fmt.Errorf("%w: range [%d,%d) outside %d exponents", ErrMisaligned, r.Lo, r.Hi, len(exps))
	}
	bases, skip := src.Get()
	if skip < 0 || skip+r.Hi > len(bases) {
		return nil, nil, fmt.Errorf("%w: range [%d,%d) at skip %d outside %d bases", ErrMisaligned, r.Lo, r.Hi, skip, len(bases))
	}
	return bases[skip+r.Lo : skip+r.Hi], exps[r.Lo:r.Hi], nil
}

// Repeat returns the base set concatenated with itself times times, so the
// result holds len(bases) << times entries.
func Repeat(bases []bn254.G1Affine, times int) []bn254.G1Affine {
	out := bases
	for i := 0; i < times; i++ {
		next := make([]bn254.G1Affine, 2*len(out))
		copy(next, out)
		copy(next[len(out):], out)
		out = next
	}
	return out
}

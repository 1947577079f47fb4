// Package density decides which (base, exponent) pairs take part in a
// multi-scalar multiplication.
package density

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// QueryDensity reports, per index, whether the exponent at that index
// participates in the sum.
type QueryDensity interface {
	// Len returns the number of indices described. ok is false when the
	// density covers any length (full density).
	Len() (n int, ok bool)
	// Test reports whether index i participates.
	Test(i int) bool
	// Count returns the number of participating indices among the first n.
	Count(n int) int
}

// Full is the density where every index participates.
type Full struct{}

func (Full) Len() (int, bool) { return 0, false }
func (Full) Test(int) bool { return true }
func (Full) Count(n int) int { return n }

// Bits is a sparse density backed by a bitset.
// The zero value describes an empty query.
type Bits struct {
	set *bitset.BitSet
	n   int
}

// NewBits returns a density of length n with no index set.
func NewBits(n int) *Bits {
	return &Bits{set: bitset.New(uint(n)), n: n}
}

// FromBools builds a density from a per-index indicator.
func FromBools(b []bool) *Bits {
	d := NewBits(len(b))
	for i, v := range b {
		if v {
			d.set.Set(uint(i))
		}
	}
	return d
}

// Add appends one index to the density and marks it as participating or not.
func (d *Bits) Add(v bool) {
	if d.set == nil {
		d.set = bitset.New(0)
	}
	if v {
		d.set.Set(uint(d.n))
	}
	d.n++
}

// Set marks index i as participating.
func (d *Bits) Set(i int) {
	d.checkIndex(i)
	d.set.Set(uint(i))
}

// Clear marks index i as not participating.
func (d *Bits) Clear(i int) {
	d.checkIndex(i)
	d.set.Clear(uint(i))
}

func (d *Bits) Len() (int, bool) { return d.n, true }

func (d *Bits) Test(i int) bool {
	if d.set == nil {
		return false
	}
	return d.set.Test(uint(i))
}

// Count returns the number of set bits. n must equal Len.
func (d *Bits) Count(n int) int {
	mustMatch(d, n)
	if d.set == nil {
		return 0
	}
	return int(d.set.Count())
}

func (d *Bits) checkIndex(i int) {
	if i < 0 || i >= d.n {
		panic(fmt.Sprintf("density: index %d out of range [0,%d)", i, d.n))
	}
}

// GenerateExps returns the exponents whose density bit is set, in their
// original relative order. Under full density the input slice is returned
// as is; it is shared, not copied.
//
// A sparse density whose length differs from len(exps) is a programming
// error and panics.
func GenerateExps[E any](d QueryDensity, exps []E) []E {
	return Compact(d, exps)
}

// Compact applies the density to any per-index slice. Callers use it to
// build the base set matching a sparse query.
func Compact[T any](d QueryDensity, s []T) []T {
	if _, sparse := d.Len(); !sparse {
		return s
	}
	out := make([]T, 0, d.Count(len(s)))
	for i := range s {
		if d.Test(i) {
			out = append(out, s[i])
		}
	}
	return out
}

func mustMatch(d QueryDensity, n int) {
	if l, ok := d.Len(); ok && l != n {
		panic(fmt.Sprintf("density: length %d does not match %d exponents", l, n))
	}
}

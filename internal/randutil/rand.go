// Package randutil generates the random scalars and points of a test
// scenario from an explicit, optionally seeded, byte stream.
package randutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"math/rand/v2"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// NewRand returns a reproducible stream for the given seed.
// crypto/rand.Reader can be used wherever a stream is expected.
func NewRand(seed uint64) io.Reader {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return rand.NewChaCha8(key)
}

// RandomScalar draws a uniform element of Fr by rejection sampling.
func RandomScalar(r io.Reader) (fr.Element, error) {
	var e fr.Element
	var buf [fr.Bytes]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return e, fmt.Errorf("read scalar bytes: %w", err)
		}
		buf[0] &= 0x3f // big-endian, keep fr.Bits bits
		if err := e.SetBytesCanonical(buf[:]); err == nil {
			return e, nil
		}
	}
}

func RandomScalars(r io.Reader, n int) ([]fr.Element, error) {
	res := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		e, err := RandomScalar(r)
		if err != nil {
			return nil, err
		}
		res[i] = e
	}
	return res, nil
}

// RandomPointsG1 returns n points k_i * G1 for random k_i.
func RandomPointsG1(r io.Reader, n int) ([]bn254.G1Affine, error) {
	ks, err := RandomScalars(r, n)
	if err != nil {
		return nil, err
	}
	res := make([]bn254.G1Affine, n)
	for i := range ks {
		res[i].ScalarMultiplicationBase(ks[i].BigInt(new(big.Int)))
	}
	return res, nil
}

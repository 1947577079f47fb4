// Package cache keeps generated scenario inputs on disk so that large base
// sets are not regenerated on every run.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/logger"
	"github.com/fxamacker/cbor/v2"
)

type scalarFile struct {
	Exp     int      `cbor:"exp"`
	N       int      `cbor:"n"`
	Scalars [][]byte `cbor:"scalars"` // fr.Element.Bytes(), big-endian canonical
}

type pointFile struct {
	Exp    int      `cbor:"exp"`
	N      int      `cbor:"n"`
	Points [][]byte `cbor:"points"` // G1Affine.RawBytes()
}

func ScalarPath(dir string, exp int) (string, error) {
	dir = filepath.Join(dir, "scalars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("make scalars dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("exp_%d_scalar.cbor", exp)), nil
}

func PointPath(dir string, exp int) (string, error) {
	dir = filepath.Join(dir, "points")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("make points dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("exp_%d_point.cbor", exp)), nil
}

func SaveScalars(path string, exp int, scalars []fr.Element) error {
	sf := scalarFile{
		Exp:     exp,
		N:       len(scalars),
		Scalars: make([][]byte, len(scalars)),
	}
	for i := range scalars {
		b := scalars[i].Bytes()
		sf.Scalars[i] = b[:]
	}
	data, err := cbor.Marshal(&sf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadScalars(path string) ([]fr.Element, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var sf scalarFile
	if err := cbor.Unmarshal(data, &sf); err != nil {
		return nil, 0, err
	}
	if sf.N != len(sf.Scalars) {
		return nil, sf.Exp, fmt.Errorf("scalar cache malformed: n=%d, got %d scalars", sf.N, len(sf.Scalars))
	}
	out := make([]fr.Element, sf.N)
	for i := range out {
		if err := out[i].SetBytesCanonical(sf.Scalars[i]); err != nil {
			return nil, sf.Exp, fmt.Errorf("invalid scalar at %d: %w", i, err)
		}
	}
	return out, sf.Exp, nil
}

func SavePoints(path string, exp int, points []bn254.G1Affine) error {
	pf := pointFile{
		Exp:    exp,
		N:      len(points),
		Points: make([][]byte, len(points)),
	}
	for i := range points {
		b := points[i].RawBytes()
		pf.Points[i] = b[:]
	}
	data, err := cbor.Marshal(&pf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadPoints(path string) ([]bn254.G1Affine, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var pf pointFile
	if err := cbor.Unmarshal(data, &pf); err != nil {
		return nil, 0, err
	}
	if pf.N != len(pf.Points) {
		return nil, pf.Exp, fmt.Errorf("point cache malformed: n=%d, got %d points", pf.N, len(pf.Points))
	}
	out := make([]bn254.G1Affine, pf.N)
	for i := range out {
		if _, err := out[i].SetBytes(pf.Points[i]); err != nil {
			return nil, pf.Exp, fmt.Errorf("unmarshal point %d: %w", i, err)
		}
	}
	return out, pf.Exp, nil
}

func LoadOrCreateScalars(
	dir string, exp, n int,
	genScalars func(int) ([]fr.Element, error),
) ([]fr.Element, bool, error) {
	log := logger.Logger().With().Str("component", "cache").Int("exp", exp).Logger()

	spath, err := ScalarPath(dir, exp)
	if err != nil {
		return nil, false, err
	}

	if fi, err := os.Stat(spath); err == nil && !fi.IsDir() {
		sc, fileExp, err := LoadScalars(spath)
		if err == nil && len(sc) == n && fileExp == exp {
			log.Debug().Str("path", spath).Msg("scalars loaded from cache")
			return sc, true, nil
		}
		log.Warn().Err(err).Str("path", spath).Msg("scalar cache invalid; regenerating")
	}

	scalars, err := genScalars(n)
	if err != nil {
		return nil, false, err
	}
	if err := SaveScalars(spath, exp, scalars); err != nil {
		return nil, false, err
	}
	log.Debug().Str("path", spath).Msg("scalars saved")
	return scalars, false, nil
}

func LoadOrCreatePoints(
	dir string, exp, n int,
	genPoints func(int) ([]bn254.G1Affine, error),
) ([]bn254.G1Affine, bool, error) {
	log := logger.Logger().With().Str("component", "cache").Int("exp", exp).Logger()

	ppath, err := PointPath(dir, exp)
	if err != nil {
		return nil, false, err
	}

	if fi, err := os.Stat(ppath); err == nil && !fi.IsDir() {
		pt, fileExp, err := LoadPoints(ppath)
		if err == nil && len(pt) == n && fileExp == exp {
			log.Debug().Str("path", ppath).Msg("points loaded from cache")
			return pt, true, nil
		}
		log.Warn().Err(err).Str("path", ppath).Msg("point cache invalid; regenerating")
	}

	points, err := genPoints(n)
	if err != nil {
		return nil, false, err
	}
	if err := SavePoints(ppath, exp, points); err != nil {
		return nil, false, err
	}
	log.Debug().Str("path", ppath).Msg("points saved")
	return points, false, nil
}

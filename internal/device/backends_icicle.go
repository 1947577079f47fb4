//go:build icicle

package device

// Available returns the backends compiled into this binary.
func Available(host Host) []Backend {
	return []Backend{Icicle{Units: host.Units, MaxChunk: host.MaxChunk}}
}

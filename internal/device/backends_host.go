//go:build !icicle

package device

// Available returns the backends compiled into this binary.
func Available(host Host) []Backend {
	return []Backend{host}
}

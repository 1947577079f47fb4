package oracle

import (
	"fmt"
	"io"
	"time"
)

// WriteTable prints one line per step: size, timings and speedup.
func WriteTable(w io.Writer, reports []StepReport) error {
	if _, err := fmt.Fprintf(w, "%-5s %-8s %-12s %-12s %-12s %s\n", "rep", "degree", "size", "cpu", "gpu", "speedup"); err != nil {
		return err
	}
	for _, r := range reports {
		_, err := fmt.Fprintf(w, "%-5d 2^%-6d %-12d %-12s %-12s x%.2f\n",
			r.Repetition, r.LogD, r.Samples,
			r.CPU.Round(time.Microsecond), r.GPU.Round(time.Microsecond), r.Speedup())
		if err != nil {
			return err
		}
	}
	return nil
}

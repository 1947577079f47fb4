// msmcheck cross-checks the CPU and accelerator MSM engines.
//
//	go run ./cmd/msmcheck check --start 10 --max 16
//	go run ./cmd/msmcheck bench 20 --iters 5
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "msmcheck",
		Short:         "Multi-scalar multiplication consistency checks and benchmarks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(checkCommand(), benchCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

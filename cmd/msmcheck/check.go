package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Han-16/msmcheck/internal/cache"
	"github.com/Han-16/msmcheck/internal/oracle"
	"github.com/Han-16/msmcheck/internal/randutil"
)

func checkCommand() *cobra.Command {
	var (
		rt          runtimeFlags
		cfg         = oracle.DefaultConfig()
		cacheDir    string
		timeout     time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the CPU vs accelerator consistency ladder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, kern, err := rt.setup()
			if err != nil {
				return err
			}
			defer kern.Close()

			reg := prometheus.NewRegistry()
			if metricsAddr != "" {
				go serveMetrics(metricsAddr, reg)
			}
			o, err := oracle.New(cfg, pool, kern, reg)
			if err != nil {
				return err
			}

			log := logger.Logger().With().Str("component", "msmcheck").Logger()
			n := 1 << cfg.StartLogD
			gen := func(n int) ([]bn254.G1Affine, error) {
				return randutil.RandomPointsG1Par(randutil.NewRand(cfg.Seed^0x9e3779b97f4a7c15), n, pool.Size())
			}
			var bases []bn254.G1Affine
			if cacheDir != "" {
				bases, _, err = cache.LoadOrCreatePoints(cacheDir, cfg.StartLogD, n, gen)
			} else {
				bases, err = gen(n)
			}
			if err != nil {
				return err
			}
			log.Info().Int("bases", len(bases)).Msg("bases ready")

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			reports, err := o.Run(ctx, bases)
			if werr := oracle.WriteTable(os.Stdout, reports); werr != nil {
				return errors.Join(err, werr)
			}
			return err
		},
	}
	rt.register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&cfg.StartLogD, "start", cfg.StartLogD, "log2 of the first problem size")
	fs.IntVar(&cfg.MaxLogD, "max", cfg.MaxLogD, "log2 of the last problem size")
	fs.IntVar(&cfg.Repeat, "repeat", cfg.Repeat, "extra passes over the ladder")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed of the exponent stream")
	fs.BoolVar(&cfg.FreshBases, "fresh-bases", false, "extend bases with new random points instead of duplicating them")
	fs.StringVar(&cacheDir, "cache-dir", "", "directory caching the initial base set")
	fs.DurationVar(&timeout, "timeout", 0, "abort the run after this long (0: none)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log := logger.Logger().With().Str("component", "metrics").Logger()
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	variantcache "github.com/Skryldev/variant-cache"
	"github.com/Skryldev/variant-cache/config"
	"github.com/Skryldev/variant-cache/hooks"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "variantcache",
	Short: "On-demand image variant cache",
	Long: `variantcache resizes, crops and re-encodes images on request and keeps
every generated variant on disk, so each one is produced only once.

Example usage:
  variantcache serve                           # serve <route_prefix>/<preset>/<path>
  variantcache warm --preset w320-h240-c a.jpg # generate variants ahead of time
  variantcache version`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./variantcache.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, warmCmd, versionCmd)
}

func initConfig() error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger = hooks.NewLogger(level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return nil
}

// instruments bundles what newService wires into the Service.
type instruments struct {
	registry *prometheus.Registry
	metrics  *hooks.InMemoryMetrics
	latency  *hooks.LatencyTracker
}

func newService() (*variantcache.Service, *instruments, error) {
	ins := &instruments{
		registry: prometheus.NewRegistry(),
		metrics:  hooks.NewInMemoryMetrics(),
		latency:  hooks.NewLatencyTracker(0.01),
	}
	ins.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	all := hooks.Collectors{hooks.NewPrometheusCollector(ins.registry), ins.metrics}
	log := hooks.NewSlogLogger(logger)

	svc, err := variantcache.New(cfg,
		variantcache.WithLogger(log),
		variantcache.WithMetrics(all),
		variantcache.WithHook(hooks.NewLoggingHook(log)),
		variantcache.WithHook(hooks.NewMetricsHook(all)),
		variantcache.WithHook(hooks.NewLatencyHook(ins.latency)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("building service: %w", err)
	}
	return svc, ins, nil
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "variantcache", version)
	},
}

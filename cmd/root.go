// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"reelscout/internal/config"
	"reelscout/internal/fetch"
	"reelscout/internal/log"
	"reelscout/internal/metrics"
	"reelscout/internal/provider"
	"reelscout/internal/providers"
	"reelscout/internal/runner"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagProxy    string
	flagLogLevel string
	flagLogJSON  bool
	flagTable    bool
	flagDebug    bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

var (
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "reelscout",
	Short: "Resolve movies and TV episodes to playable streams",
	Long: `Reelscout tries a ranked set of source and embed scrapers until one yields a
playable stream, and reports every attempt along the way.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLog,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/reelscout/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagProxy, "proxy", "", "Simple-proxy URL for proxied requests")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug | info | warn | error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagTable, "table", "t", false, "Print a short table instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagProxy != "" {
		cfg.ProxyURL = flagProxy
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogJSON {
		cfg.LogJSON = true
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err = log.Setup(log.Options{
		Level: cfg.LogLevel,
		Debug: cfg.Debug,
		JSON:  cfg.LogJSON,
		Dir:   cfg.LogDir,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	return nil
}

func closeLog(cmd *cobra.Command, args []string) error {
	if logCloser == nil {
		return nil
	}
	return logCloser.Close()
}

// engine is everything a run needs, built from cfg.
type engine struct {
	registry *provider.Registry
	runner   *runner.Runner
	direct   *fetch.Client
	gatherer prometheus.Gatherer
}

func newEngine() (*engine, error) {
	prom := prometheus.NewRegistry()
	m := metrics.New(prom)

	reg, err := providers.Build(cfg, m)
	if err != nil {
		return nil, err
	}

	direct := fetch.NewClient(fetch.ClientConfig{
		Timeout:           cfg.FetchTimeout.Duration,
		RequestsPerSecond: cfg.RequestsPerSecond,
		BrowserTLS:        cfg.BrowserTLS,
	})

	opts := runner.Options{
		Fetcher: direct,
		Logger:  logger,
		Metrics: m,
		Retry: runner.RetryPolicy{
			Attempts: cfg.Retries + 1,
			Backoff:  cfg.RetryBackoff.Duration,
		},
		ProviderTimeout: cfg.ProviderTimeout.Duration,
	}
	if cfg.ProxyURL != "" {
		proxied, err := fetch.NewProxied(cfg.ProxyURL, direct)
		if err != nil {
			return nil, err
		}
		opts.ProxiedFetcher = proxied
	} else {
		logger.Debug("no proxy configured, proxied requests go direct")
	}

	return &engine{
		registry: reg,
		runner:   runner.New(reg, opts),
		direct:   direct,
		gatherer: prom,
	}, nil
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

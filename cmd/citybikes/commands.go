package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/citybike-scraper/client"
	"github.com/aluiziolira/citybike-scraper/config"
	"github.com/aluiziolira/citybike-scraper/presenter"
	"github.com/aluiziolira/citybike-scraper/scraper"
	"github.com/aluiziolira/citybike-scraper/server"
	"github.com/spf13/cobra"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "citybikes",
	Short:         "citybikes summarises bike-share networks from the citybik.es API by country.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML configuration file")
	flags.String("api-host", defaults.APIHost, "citybik.es API host")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.Int("max-attempts", defaults.MaxAttempts, "Attempts per URL on 5xx responses")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	flags.Duration("retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header sent to the API")
	flags.Int("cache-size", defaults.CacheSize, "Response cache entries (0 disables)")
	flags.String("progress", defaults.ProgressMode, "Progress denominator: listing or matched")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	scrapeCmd.Flags().String("country", "", "Country code to scrape (e.g. FR)")
	scrapeCmd.Flags().String("output", defaults.OutputFile, "Output file path")
	scrapeCmd.Flags().String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	scrapeCmd.Flags().Bool("live-table", false, "Redraw the table after every network")
	_ = scrapeCmd.MarkFlagRequired("country")

	serveCmd.Flags().String("listen", defaults.ListenAddr, "HTTP listen address")

	rootCmd.AddCommand(countriesCmd, scrapeCmd, serveCmd)
}

// loadConfig layers defaults, the config file, the environment and flags,
// in increasing precedence.
func loadConfig(cmd *cobra.Command) error {
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("api-host") {
		cfg.APIHost, _ = flags.GetString("api-host")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("max-attempts") {
		cfg.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("retry-backoff") {
		cfg.RetryBackoff, _ = flags.GetDuration("retry-backoff")
	}
	if flags.Changed("retry-backoff-max") {
		cfg.RetryBackoffMax, _ = flags.GetDuration("retry-backoff-max")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("cache-size") {
		cfg.CacheSize, _ = flags.GetInt("cache-size")
	}
	if flags.Changed("progress") {
		mode, _ := flags.GetString("progress")
		cfg.ProgressMode = strings.ToLower(mode)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Lookup("output") != nil && flags.Changed("output") {
		cfg.OutputFile, _ = flags.GetString("output")
	}
	if flags.Lookup("format") != nil && flags.Changed("format") {
		format, _ := flags.GetString("format")
		cfg.OutputFormat = strings.ToLower(format)
	}
	if flags.Lookup("listen") != nil && flags.Changed("listen") {
		cfg.ListenAddr, _ = flags.GetString("listen")
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func newSession() (*scraper.Session, error) {
	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialising client: %w", err)
	}
	return scraper.NewSession(c), nil
}

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List the country codes that have at least one network.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession()
		if err != nil {
			return err
		}
		codes, err := session.Countries(cmd.Context())
		if err != nil {
			return err
		}
		for _, code := range codes {
			fmt.Fprintln(cmd.OutOrStdout(), code)
		}
		return nil
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --country <code> [--output city_bike.csv] [--format csv]",
	Short: "Summarise every network of one country and write the result table.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		country, _ := cmd.Flags().GetString("country")
		liveTable, _ := cmd.Flags().GetBool("live-table")

		session, err := newSession()
		if err != nil {
			return err
		}
		stopMetrics := startMetricsServer(cfg.MetricsAddr, session.Client().Metrics)
		defer stopMetrics()

		term := presenter.NewTerminal(cmd.OutOrStdout(), cfg.OutputFormat, cfg.OutputFile)
		term.LiveTable = liveTable

		result, err := session.Run(cmd.Context(), country, term)
		if err != nil {
			return fmt.Errorf("scraping failed: %w", err)
		}
		if err := term.Err(); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		printSummary(result, term.Written())
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [--listen :8080]",
	Short: "Serve the scraper over HTTP.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession()
		if err != nil {
			return err
		}
		stopMetrics := startMetricsServer(cfg.MetricsAddr, session.Client().Metrics)
		defer stopMetrics()

		srv := server.New(session)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.ListenAddr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
			slog.Info("shutdown signal received, stopping http server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "http server shutdown:", err)
			return err
		}
		return <-errCh
	},
}

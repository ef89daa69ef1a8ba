// Command dataset-sync fetches the complete remote dataset and publishes
// versioned JSON and CSV snapshots when the content changed.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/dataset-sync/pkg/client"
	"github.com/Sternrassler/dataset-sync/pkg/config"
	"github.com/Sternrassler/dataset-sync/pkg/logging"
	"github.com/Sternrassler/dataset-sync/pkg/pagination"
	"github.com/Sternrassler/dataset-sync/pkg/runlock"
	"github.com/Sternrassler/dataset-sync/pkg/snapshot"
	"github.com/Sternrassler/dataset-sync/pkg/syncer"
)

// buildVersion is set via -ldflags at release time.
var buildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "dataset-sync",
	Short: "Sync a paginated remote dataset into versioned snapshots",
	Long: `dataset-sync fetches the complete record collection from the remote
records API with a bounded worker pool, reassembles it in a deterministic
order, and writes data.json plus data.csv — bumping the patch version in
version.json — only when the serialized content actually changed.

Configuration is taken from DATASET_SYNC_* environment variables;
DATASET_SYNC_TOKEN is required.`,
	SilenceUsage: true,
	RunE:         runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dataset-sync build version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(buildVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.PrettyLogs,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	sourceClient, err := client.New(client.Config{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		UserAgent:         "dataset-sync/" + buildVersion,
		PageSize:          cfg.PageSize,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	pool := pagination.NewBatchFetcher(sourceClient, pagination.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		PageSize:       cfg.PageSize,
		Timeout:        cfg.RequestTimeout,
	})

	gate := snapshot.Gate{JSONPath: cfg.JSONPath(), CSVPath: cfg.CSVPath()}
	publisher := snapshot.NewPublisher(cfg.JSONPath(), cfg.CSVPath(), cfg.VersionPath())

	run := syncer.New(pool, gate, publisher)

	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.RedisURL).Msg("Redis connection failed")
			return err
		}

		run.Lock = runlock.New(redisClient, runlock.DefaultKey, 10*time.Minute)
	}

	summary, err := run.Run(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("pages", summary.Pages).
		Int("records", summary.Records).
		Bool("changed", summary.Changed).
		Str("version", summary.Version).
		Dur("duration", summary.Duration).
		Msg("Sync run finished")

	return nil
}

// serveMetrics exposes Prometheus metrics for scrape-during-run. Errors are
// logged, not fatal: metrics are observability, not the pipeline.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Msg("Metrics listener stopped")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

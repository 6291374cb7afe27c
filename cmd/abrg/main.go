// Command abrg geocodes Japanese addresses against the address base registry.
//
// Two subcommands:
//
//	abrg download   fetch the registry datasets and build the local database
//	abrg geocode    resolve addresses read from a file or stdin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	httpadapter "github.com/LunaInsidious/abr-geocoder/internal/adapter/http"
	kafkaadapter "github.com/LunaInsidious/abr-geocoder/internal/adapter/kafka"
	"github.com/LunaInsidious/abr-geocoder/internal/adapter/sqlite"
	"github.com/LunaInsidious/abr-geocoder/internal/config"
	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/downloader"
	"github.com/LunaInsidious/abr-geocoder/internal/format"
	"github.com/LunaInsidious/abr-geocoder/internal/observability"
	"github.com/LunaInsidious/abr-geocoder/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "download":
		err = runDownload(ctx, cfg, os.Args[2:])
	case "geocode":
		err = runGeocode(ctx, cfg, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: abrg <command> [flags]

commands:
  download   fetch the address base registry datasets and build the local database
  geocode    geocode addresses from a file or stdin (one address per line)

run "abrg <command> -h" for command flags
`)
}

func runDownload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for database and cache")
	fs.StringVar(&cfg.ResourceID, "resource-id", cfg.ResourceID, "catalog package to download")
	fs.IntVar(&cfg.MaxInFlight, "max-in-flight", cfg.MaxInFlight, "concurrent downloads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := sqlite.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	catalog := downloader.NewCatalogClient(cfg.CatalogBaseURL, cfg.DownloadTimeout, logger)
	pkg, err := catalog.PackageShow(ctx, cfg.ResourceID)
	if err != nil {
		return err
	}

	cache, err := downloader.NewCache(cfg.CacheDir(), cfg.CacheEntries)
	if err != nil {
		return err
	}
	pool := downloader.NewPool(ctx, &http.Client{Timeout: cfg.DownloadTimeout}, cache, cfg.MaxInFlight, logger, metrics)

	// Submit every resource the geocoder knows how to load, remembering its
	// catalog entry for the load step.
	byURL := make(map[string]downloader.Resource)
	submitted := 0
	for _, res := range pkg.Resources {
		kind := sqlite.KindForResource(res.Name)
		if kind == "" {
			logger.Debug("skipping resource", "name", res.Name)
			continue
		}
		stored, err := store.DatasetLastModified(ctx, res.ID)
		if err != nil {
			return err
		}
		if stored != "" && stored == res.LastModified {
			logger.Info("resource unchanged, skipping", "name", res.Name)
			continue
		}
		byURL[res.URL] = res
		pool.Submit(downloader.Request{ID: res.ID, URL: res.URL})
		submitted++
	}
	pool.Final()
	logger.Info("downloads submitted", "package", pkg.Name, "resources", submitted)

	loaded, failed := 0, 0
	for result := range pool.Results() {
		if result.Err != nil {
			logger.Error("resource download failed", "url", result.Err.Request.URL, "error", result.Err)
			failed++
			continue
		}
		payload := result.Payload
		res := byURL[payload.Request.URL]
		kind := sqlite.KindForResource(res.Name)
		if _, err := store.LoadResource(ctx, kind, payload.Path); err != nil {
			logger.Error("resource load failed", "name", res.Name, "error", err)
			failed++
			continue
		}
		if err := store.RecordDataset(ctx, res.ID, res.URL, res.LastModified); err != nil {
			return err
		}
		loaded++
	}

	logger.Info("download complete", "loaded", loaded, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d resources failed", failed, submitted)
	}
	return nil
}

func runGeocode(ctx context.Context, cfg *config.Config, args []string) error {
	var fuzzy, columns string
	fs := flag.NewFlagSet("geocode", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the reference database")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format: csv, json, or ndjson")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "input file, - for stdin")
	fs.StringVar(&fuzzy, "fuzzy", "", "single wildcard character for uncertain input positions")
	fs.StringVar(&columns, "columns", "", "comma-separated CSV column subset")
	fs.BoolVar(&cfg.NoHeader, "no-header", cfg.NoHeader, "suppress the CSV header row")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve /metrics, /healthz, /readyz on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fuzzy != "" {
		if err := cfg.SetFuzzy(fuzzy); err != nil {
			return err
		}
	}
	if columns != "" {
		cfg.Columns = strings.Split(columns, ",")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, err := sqlite.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stages, err := pipeline.BuildStages(ctx, store, pipeline.Options{
		Fuzzy:     cfg.Fuzzy,
		TrieCache: cfg.TrieCache,
	}, logger)
	if err != nil {
		return err
	}
	p := pipeline.New(stages, logger, metrics)

	input, err := openSource(cfg.Source)
	if err != nil {
		return err
	}
	defer input.Close()

	writer, err := format.New(cfg.Format, os.Stdout, format.Options{
		Columns:  cfg.Columns,
		NoHeader: cfg.NoHeader,
	})
	if err != nil {
		return err
	}

	var sink pipeline.Sink = writer
	if len(cfg.KafkaBrokers) > 0 {
		kw := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kw.Close()
		sink = teeSink{primary: writer, kafka: kw, ctx: ctx}
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	if err := p.Run(ctx, input, sink); err != nil {
		return err
	}
	return writer.Close()
}

func openSource(source string) (io.ReadCloser, error) {
	if source == "" || source == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// teeSink writes each record to the primary sink and publishes it to Kafka.
type teeSink struct {
	primary pipeline.Sink
	kafka   *kafkaadapter.Writer
	ctx     context.Context
}

func (t teeSink) Write(q domain.Query) error {
	if err := t.primary.Write(q); err != nil {
		return err
	}
	return t.kafka.PublishBatch(t.ctx, []domain.Query{q})
}

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Noofbiz/seriesfeed/config"
	"github.com/Noofbiz/seriesfeed/datasets"
)

var tracer = otel.Tracer("github.com/Noofbiz/seriesfeed/cmd/seriesfeed")

// rootOptions carries the loaded config from the root command to its
// subcommands.
type rootOptions struct {
	configPath string
	debug      bool
	cfg        config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "seriesfeed:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "seriesfeed",
		Short: "Stream windowed training batches from time series tables",
		Long: `seriesfeed reads a time-ordered parquet or CSV table in chunks and serves
(window, label) batches without loading the table into memory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.AddCommand(newGenCmd(), newInspectCmd(opts), newTrainCmd(opts))
	return cmd
}

// setup loads the config file and installs the command logger in the
// command context.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	o.cfg = config.Default()
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	if o.debug {
		o.cfg.Logging.Level = "debug"
		o.cfg.Logging.Format = "console"
	}

	logger := config.NewLogger(o.cfg.Logging, cmd.ErrOrStderr()).
		With().
		Str("component", "cli").
		Logger()
	cmd.SetContext(logger.WithContext(cmd.Context()))
	logger.Debug().Str("command", cmd.Name()).Str("config", o.configPath).Msg("command started")
	return nil
}

// datasetFlags are the dataset settings that can be overridden on the
// command line.
type datasetFlags struct {
	file       string
	batchSize  int
	timeWindow int
	offset     int
	prediction string
	chunkSize  int
	rowLimit   int64
	timeIndex  string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "table to read (overrides dataset.file)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "examples per batch (overrides dataset.batch_size)")
	cmd.Flags().IntVar(&f.timeWindow, "time-window", 0, "rows per window (overrides dataset.time_window)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "look-ahead rows per label (overrides dataset.offset)")
	cmd.Flags().StringVar(&f.prediction, "prediction-column", "", "label column (overrides dataset.prediction_column)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-read-size", 0, "rows per read (overrides dataset.chunk_read_size)")
	cmd.Flags().StringVar(&f.timeIndex, "time-index-column", "", "time index column (overrides dataset.time_index_column)")
	cmd.Flags().Int64Var(&f.rowLimit, "row-limit", 0, "rows used per epoch, 0 for all (overrides dataset.row_limit)")
}

func (f *datasetFlags) apply(cmd *cobra.Command, d *config.DatasetConfig) {
	changed := cmd.Flags().Changed
	if changed("file") {
		d.File = f.file
	}
	if changed("batch-size") {
		d.BatchSize = f.batchSize
	}
	if changed("time-window") {
		d.TimeWindow = f.timeWindow
	}
	if changed("offset") {
		d.Offset = f.offset
	}
	if changed("prediction-column") {
		d.PredictionColumn = f.prediction
	}
	if changed("chunk-read-size") {
		d.ChunkReadSize = f.chunkSize
	}
	if changed("row-limit") {
		d.RowLimit = f.rowLimit
	}
	if changed("time-index-column") {
		d.TimeIndexColumn = f.timeIndex
	}
}

// openDataset validates cfg and opens the dataset it describes.
func openDataset(cfg config.Config, logger *zerolog.Logger) (*datasets.WindowDataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.Dataset.DatasetOptions(logger)
	if err != nil {
		return nil, err
	}
	return datasets.NewWindowDataset(opts)
}

// startSpan starts a span for a dataset command, tagged with its dataset
// settings.
func startSpan(cmd *cobra.Command, cfg config.Config) trace.Span {
	ctx, span := tracer.Start(cmd.Context(), "seriesfeed."+cmd.Name(),
		trace.WithAttributes(
			attribute.String("dataset.file", cfg.Dataset.File),
			attribute.Int("dataset.time_window", cfg.Dataset.TimeWindow),
			attribute.Int("dataset.offset", cfg.Dataset.Offset),
			attribute.Int("dataset.batch_size", cfg.Dataset.BatchSize),
		))
	cmd.SetContext(ctx)
	return span
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// serveMetrics exposes the prometheus default registry on addr until the
// process exits.
func serveMetrics(addr string, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(addr, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
}

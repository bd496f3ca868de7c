// Package config loads the YAML file shared by the seriesfeed commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/seriesfeed/condition"
	"github.com/Noofbiz/seriesfeed/datasets"
	"github.com/Noofbiz/seriesfeed/table"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level config file.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Training TrainingConfig `yaml:"training"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatasetConfig mirrors datasets.Config in file form.
type DatasetConfig struct {
	File             string   `yaml:"file"`
	Format           string   `yaml:"format"`
	TimeWindow       int      `yaml:"time_window"`
	Offset           int      `yaml:"offset"`
	PredictionColumn string   `yaml:"prediction_column"`
	BatchSize        int      `yaml:"batch_size"`
	RowLimit         int64    `yaml:"row_limit"`
	TimeIndexColumn  string   `yaml:"time_index_column"`
	ChunkReadSize    int      `yaml:"chunk_read_size"`
	FeatureColumns   []string `yaml:"feature_columns"`
	Hooks            []string `yaml:"hooks"`
	EpochEOF         bool     `yaml:"epoch_eof"`
}

// TrainingConfig holds the simple trainer's settings.
type TrainingConfig struct {
	HiddenSizes  []int   `yaml:"hidden_sizes"`
	LearningRate float64 `yaml:"learning_rate"`
	Steps        int     `yaml:"steps"`
	Seed         int64   `yaml:"seed"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the values used for keys missing from the file.
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			TimeWindow:    9,
			Offset:        7,
			BatchSize:     5,
			ChunkReadSize: table.DefaultChunkSize,
		},
		Training: TrainingConfig{
			HiddenSizes:  []int{32},
			LearningRate: 0.001,
			Steps:        200,
			Seed:         1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over Default. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML from %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	d := c.Dataset
	switch {
	case d.File == "":
		return fmt.Errorf("%w: dataset.file is required", ErrInvalid)
	case d.PredictionColumn == "":
		return fmt.Errorf("%w: dataset.prediction_column is required", ErrInvalid)
	case d.TimeWindow < 1:
		return fmt.Errorf("%w: dataset.time_window must be positive", ErrInvalid)
	case d.Offset < 1:
		return fmt.Errorf("%w: dataset.offset must be positive", ErrInvalid)
	case d.BatchSize < 1:
		return fmt.Errorf("%w: dataset.batch_size must be positive", ErrInvalid)
	case d.ChunkReadSize < 1:
		return fmt.Errorf("%w: dataset.chunk_read_size must be positive", ErrInvalid)
	case d.RowLimit < 0:
		return fmt.Errorf("%w: dataset.row_limit must not be negative", ErrInvalid)
	}
	switch d.format() {
	case "parquet", "pq", "csv":
	default:
		return fmt.Errorf("%w: dataset.format %q is not parquet or csv", ErrInvalid, d.format())
	}
	if _, err := condition.FromNames(d.Hooks); err != nil {
		return fmt.Errorf("%w: dataset.hooks: %w", ErrInvalid, err)
	}

	t := c.Training
	if t.Steps < 0 {
		return fmt.Errorf("%w: training.steps must not be negative", ErrInvalid)
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("%w: training.learning_rate must be positive", ErrInvalid)
	}
	for _, h := range t.HiddenSizes {
		if h < 1 {
			return fmt.Errorf("%w: training.hidden_sizes must be positive, got %d", ErrInvalid, h)
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q is not console or json", ErrInvalid, c.Logging.Format)
	}
	return nil
}

func (d DatasetConfig) format() string {
	if d.Format != "" {
		return strings.ToLower(d.Format)
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.File)), ".")
}

// DatasetOptions converts d into the options of datasets.NewWindowDataset.
func (d DatasetConfig) DatasetOptions(logger *zerolog.Logger) (datasets.Config, error) {
	hook, err := condition.FromNames(d.Hooks)
	if err != nil {
		return datasets.Config{}, err
	}
	return datasets.Config{
		Filename:         d.File,
		Format:           d.format(),
		TimeWindow:       d.TimeWindow,
		Offset:           d.Offset,
		PredictionColumn: d.PredictionColumn,
		Condition:        hook,
		BatchSize:        d.BatchSize,
		RowLimit:         d.RowLimit,
		TimeIndexColumn:  d.TimeIndexColumn,
		FeatureColumns:   d.FeatureColumns,
		ChunkReadSize:    d.ChunkReadSize,
		EpochEOF:         d.EpochEOF,
		Logger:           logger,
	}, nil
}

package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Noofbiz/seriesfeed/condition"
	"github.com/Noofbiz/seriesfeed/table"
	"github.com/Noofbiz/seriesfeed/window"
)

// Config describes a WindowDataset.
type Config struct {
	// Filename is the table to read. It is used to build Open when Open is
	// nil and to name the dataset.
	Filename string

	// Format selects the reader for Filename: "parquet" or "csv". Empty
	// infers it from the file extension.
	Format string

	// Open re-opens the table at every epoch. Optional when Filename is set.
	Open table.Opener

	// TimeWindow is the number of rows in one example's input.
	TimeWindow int

	// Offset is the number of rows after a window used to compute its label.
	Offset int

	// PredictionColumn names the (conditioned) column the label is computed from.
	PredictionColumn string

	// Condition is applied to every chunk before it is buffered. Defaults to
	// condition.Identity.
	Condition condition.Func

	// BatchSize is the number of examples per batch. Defaults to 1.
	BatchSize int

	// RowLimit caps the rows used from the table. Zero uses every row.
	RowLimit int64

	// TimeIndexColumn names the column holding the time index, if any.
	TimeIndexColumn string

	// FeatureColumns selects the input columns, in order. Empty uses every
	// value column of the conditioned chunks.
	FeatureColumns []string

	// ChunkReadSize is the number of rows requested per read. Defaults to
	// table.DefaultChunkSize.
	ChunkReadSize int

	// EpochEOF makes Yield return io.EOF once at the end of every epoch
	// instead of rewinding, for training loops that count epochs.
	EpochEOF bool

	// Logger receives refill and epoch events. Nil disables logging.
	Logger *zerolog.Logger
}

func (c *Config) normalize() error {
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	if c.ChunkReadSize == 0 {
		c.ChunkReadSize = table.DefaultChunkSize
	}
	if c.Condition == nil {
		c.Condition = condition.Identity
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	switch {
	case c.TimeWindow < 1:
		return fmt.Errorf("%w: time window must be positive, got %d", ErrInvalidConfig, c.TimeWindow)
	case c.Offset < 1:
		return fmt.Errorf("%w: offset must be positive, got %d", ErrInvalidConfig, c.Offset)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.ChunkReadSize < 1:
		return fmt.Errorf("%w: chunk read size must be positive, got %d", ErrInvalidConfig, c.ChunkReadSize)
	case c.RowLimit < 0:
		return fmt.Errorf("%w: row limit must not be negative, got %d", ErrInvalidConfig, c.RowLimit)
	case c.PredictionColumn == "":
		return fmt.Errorf("%w: prediction column is required", ErrInvalidConfig)
	}
	if c.Open == nil {
		if c.Filename == "" {
			return fmt.Errorf("%w: filename or opener is required", ErrInvalidConfig)
		}
		open, err := OpenerFor(context.Background(), c.Filename, c.Format, c.TimeIndexColumn)
		if err != nil {
			return err
		}
		c.Open = open
	}
	return nil
}

// OpenerFor returns the table.Opener for path in the given format. An empty
// format is inferred from the extension.
func OpenerFor(ctx context.Context, path, format, timeIndex string) (table.Opener, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch strings.ToLower(format) {
	case "parquet", "pq":
		return table.ParquetOpener(ctx, path, timeIndex), nil
	case "csv":
		return table.CSVOpener(path, timeIndex), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q for %s", ErrInvalidConfig, format, path)
	}
}

// State is the position of a WindowDataset in its epoch cycle.
type State int

const (
	AwaitingFirstBatch State = iota
	Streaming
	RefillNeeded
	EpochExhausted
)

func (s State) String() string {
	switch s {
	case AwaitingFirstBatch:
		return "awaiting-first-batch"
	case Streaming:
		return "streaming"
	case RefillNeeded:
		return "refill-needed"
	case EpochExhausted:
		return "epoch-exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// WindowDataset streams windowed batches from a table that is never fully
// loaded. It is not safe for concurrent use: one consumer pulls batches.
type WindowDataset struct {
	cfg    Config
	log    zerolog.Logger
	layout window.Layout

	src       table.Source
	buf       *window.Buffer
	totalRows int64
	fetched   int64
	lastTime  time.Time

	// localX is the buffer row of the last look-ahead row of the most
	// recently served example; globalX is the same row in the table.
	localX  int
	globalX int64

	state     State
	epoch     int
	maxBuffer int
	resetErr  error
}

// NewWindowDataset validates cfg, opens the table and fills the buffer for
// the first batch.
func NewWindowDataset(cfg Config) (*WindowDataset, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	d := &WindowDataset{
		cfg: cfg,
		log: cfg.Logger.With().Str("dataset", cfg.Filename).Logger(),
	}
	if err := d.Restart(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Restart closes the current source, re-opens the table and rewinds to the
// first example. It may be called at any time.
func (d *WindowDataset) Restart() error {
	if d.state == EpochExhausted {
		d.epoch++
	}
	d.state = AwaitingFirstBatch
	if err := d.closeSource(); err != nil {
		d.log.Warn().Err(err).Msg("closing previous source")
	}

	src, err := d.cfg.Open(d.cfg.ChunkReadSize)
	if err != nil {
		return err
	}
	d.src = src
	d.buf = window.NewBuffer()
	d.fetched = 0
	d.lastTime = time.Time{}

	tw, off := d.cfg.TimeWindow, d.cfg.Offset
	d.totalRows = src.NumRows()
	if d.cfg.RowLimit > 0 && d.cfg.RowLimit < d.totalRows {
		d.totalRows = d.cfg.RowLimit
	}
	need := tw + off + d.cfg.BatchSize - 1
	if d.totalRows < int64(need) {
		return fmt.Errorf("%w: %d rows cannot fill a window of %d, offset %d and batch of %d",
			ErrInsufficientData, d.totalRows, tw, off, d.cfg.BatchSize)
	}
	for d.buf.Len() < need {
		if _, err := d.readChunk(); err != nil {
			return d.readErr(err)
		}
	}
	if err := d.resolveLayout(); err != nil {
		return err
	}

	d.localX = tw + off - 2
	d.globalX = int64(d.localX)
	d.state = Streaming
	bufferRowsGauge.Set(float64(d.buf.Len()))
	d.log.Info().
		Int64("total_rows", d.totalRows).
		Int("examples", d.ExamplesPerEpoch()).
		Int("epoch", d.epoch).
		Msg("source opened")
	return nil
}

// NextBatch returns the next batch of examples. After the last batch of an
// epoch it rewinds, so it never reports an end of data; Batch.EndOfEpoch
// marks the last batch of each epoch.
func (d *WindowDataset) NextBatch() (*window.Batch, error) {
	if d.state == EpochExhausted || d.state == AwaitingFirstBatch {
		if err := d.Restart(); err != nil {
			return nil, err
		}
	}

	tw, off := d.cfg.TimeWindow, d.cfg.Offset
	n := int(min(int64(d.cfg.BatchSize), d.totalRows-1-d.globalX))
	if d.localX+n >= d.buf.Len() {
		d.state = RefillNeeded
		if err := d.refill(); err != nil {
			return nil, err
		}
		d.state = Streaming
	}

	d.localX += n
	d.globalX += int64(n)
	b, err := window.Build(d.buf, d.localX, n, d.layout)
	if err != nil {
		return nil, fmt.Errorf("build batch ending at row %d: %w", d.globalX, err)
	}
	b.FirstRow = d.globalX - int64(n+off+tw-2)
	b.Epoch = d.epoch
	batchesTotal.Inc()
	if d.globalX >= d.totalRows-1 {
		b.EndOfEpoch = true
		d.state = EpochExhausted
		epochsTotal.Inc()
		d.log.Debug().Int("epoch", d.epoch).Msg("epoch exhausted")
	}
	return b, nil
}

// refill drops the buffer head no longer needed by upcoming examples and
// reads chunks until a full batch is covered or the table is exhausted.
func (d *WindowDataset) refill() error {
	timer := prometheus.NewTimer(refillDuration)
	defer timer.ObserveDuration()
	tw, off, bs := d.cfg.TimeWindow, d.cfg.Offset, d.cfg.BatchSize

	// Rows from localX to the end are not yet the top of any example. The
	// next example's window starts tw+off-2 rows before localX+1.
	uncoveredHead := d.buf.Len() - d.localX
	tail := tw + off - 2 + uncoveredHead
	dropped, err := d.buf.TrimToTail(tail)
	if err != nil {
		return err
	}
	d.localX -= dropped

	read := 0
	for d.buf.Len() < tw+off+bs-1 && d.fetched < d.totalRows {
		n, err := d.readChunk()
		if err != nil {
			return d.readErr(err)
		}
		read += n
	}
	refillsTotal.Inc()
	bufferRowsGauge.Set(float64(d.buf.Len()))
	d.log.Debug().
		Int("tail", tail).
		Int("dropped", dropped).
		Int("read", read).
		Int("buffer_len", d.buf.Len()).
		Int64("global_x", d.globalX).
		Msg("buffer refilled")
	return nil
}

// readChunk reads, conditions and buffers one chunk, never buffering rows
// past totalRows. It returns the number of rows buffered.
func (d *WindowDataset) readChunk() (int, error) {
	raw, err := d.src.Next()
	if err != nil {
		return 0, err
	}
	c, next, err := d.cfg.Condition(raw, d.lastTime)
	if err != nil {
		return 0, fmt.Errorf("condition chunk at row %d: %w", d.fetched, err)
	}
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("condition chunk at row %d: %w", d.fetched, err)
	}
	d.lastTime = next

	if left := d.totalRows - d.fetched; int64(c.Len()) > left {
		c = c.Head(int(left))
	}
	if err := d.buf.Append(c); err != nil {
		return 0, err
	}
	d.fetched += int64(c.Len())
	rowsReadTotal.Add(float64(c.Len()))
	d.maxBuffer = max(d.maxBuffer, d.buf.Len())
	return c.Len(), nil
}

func (d *WindowDataset) readErr(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: source ended after %d of %d rows", ErrInsufficientData, d.fetched, d.totalRows)
	}
	return err
}

func (d *WindowDataset) resolveLayout() error {
	pred := d.buf.ColumnIndex(d.cfg.PredictionColumn)
	if pred < 0 {
		return fmt.Errorf("%w: prediction column %q", table.ErrColumnNotFound, d.cfg.PredictionColumn)
	}
	var features []int
	if len(d.cfg.FeatureColumns) == 0 {
		features = make([]int, len(d.buf.Columns()))
		for i := range features {
			features[i] = i
		}
	} else {
		for _, name := range d.cfg.FeatureColumns {
			idx := d.buf.ColumnIndex(name)
			if idx < 0 {
				return fmt.Errorf("%w: feature column %q", table.ErrColumnNotFound, name)
			}
			features = append(features, idx)
		}
	}
	d.layout = window.Layout{
		TimeWindow: d.cfg.TimeWindow,
		Offset:     d.cfg.Offset,
		Features:   features,
		Prediction: pred,
	}
	return nil
}

// Name returns the name of the dataset
func (d *WindowDataset) Name() string {
	if d.cfg.Filename != "" {
		return "WindowDataset(" + filepath.Base(d.cfg.Filename) + ")"
	}
	return "WindowDataset"
}

// Yield returns the next batch for the gomlx Dataset interface. With
// EpochEOF set it returns io.EOF after the last batch of an epoch until
// Reset is called.
func (d *WindowDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.resetErr != nil {
		err, d.resetErr = d.resetErr, nil
		return nil, nil, nil, err
	}
	if d.cfg.EpochEOF && d.state == EpochExhausted {
		return nil, nil, nil, io.EOF
	}
	b, err := d.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	in, la, err := b.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Reset implements gomlx's train.Dataset. A failed restart is reported by
// the next Yield.
func (d *WindowDataset) Reset() {
	if err := d.Restart(); err != nil {
		d.log.Error().Err(err).Msg("reset failed")
		d.resetErr = err
	}
}

// Close releases the open source.
func (d *WindowDataset) Close() error {
	return d.closeSource()
}

func (d *WindowDataset) closeSource() error {
	if d.src == nil {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	return err
}

// ExamplesPerEpoch returns the number of examples served per epoch.
func (d *WindowDataset) ExamplesPerEpoch() int {
	return int(d.totalRows) - d.cfg.TimeWindow - d.cfg.Offset + 1
}

// NumFeatures returns the number of feature columns per window step.
func (d *WindowDataset) NumFeatures() int { return len(d.layout.Features) }

// TotalRows returns the number of table rows used per epoch.
func (d *WindowDataset) TotalRows() int64 { return d.totalRows }

// BufferLen returns the number of rows currently buffered.
func (d *WindowDataset) BufferLen() int { return d.buf.Len() }

// MaxBufferLen returns the largest buffer length seen since construction.
func (d *WindowDataset) MaxBufferLen() int { return d.maxBuffer }

// State returns the current position in the epoch cycle.
func (d *WindowDataset) State() State { return d.state }

// Cursor returns the buffer and table cursors.
func (d *WindowDataset) Cursor() (local int, global int64) { return d.localX, d.globalX }

// Epoch returns how many times the stream has wrapped.
func (d *WindowDataset) Epoch() int { return d.epoch }

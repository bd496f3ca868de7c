package datasets_test

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/seriesfeed/condition"
	"github.com/Noofbiz/seriesfeed/datasets"
	"github.com/Noofbiz/seriesfeed/table"
	"github.com/Noofbiz/seriesfeed/window"
)

// rampChunk builds a = 0..rows-1 and b = 10..rows+9.
func rampChunk(t *testing.T, rows int) *table.Chunk {
	t.Helper()
	a := make([]float64, rows)
	b := make([]float64, rows)
	for i := range rows {
		a[i] = float64(i)
		b[i] = float64(i + 10)
	}
	c, err := table.NewChunk([]string{"a", "b"}, [][]float64{a, b}, nil)
	require.NoError(t, err)
	return c
}

// walkChunk builds two random-walk columns so look-ahead maxima are not
// always the last row of the look-ahead span.
func walkChunk(t *testing.T, rows int, seed int64) *table.Chunk {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, rows)
	y := make([]float64, rows)
	for i := 1; i < rows; i++ {
		x[i] = x[i-1] + rng.NormFloat64()
		y[i] = y[i-1] + float64(rng.Intn(7)-3)
	}
	c, err := table.NewChunk([]string{"x", "y"}, [][]float64{x, y}, nil)
	require.NoError(t, err)
	return c
}

func writeParquet(t *testing.T, c *table.Chunk) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.parquet")
	require.NoError(t, table.WriteParquet(path, c, "", 0))
	return path
}

func writeSeriesCSV(t *testing.T, path string, times []time.Time, vals []float64) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("ts,v\n")
	for i := range times {
		sb.WriteString(times[i].Format(time.RFC3339Nano))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(vals[i], 'g', -1, 64))
		sb.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}

// checkBatch compares b against a direct computation over data.
func checkBatch(t *testing.T, data *table.Chunk, pred, tw, off int, b *window.Batch) {
	t.Helper()
	p := data.Values[pred]
	for i := 0; i < b.Size; i++ {
		first := int(b.FirstRow) + i
		for k := 0; k < tw; k++ {
			for f := range data.Values {
				require.Equal(t, float32(data.Values[f][first+k]), b.Feature(i, k, f),
					"example %d (row %d) step %d feature %d", i, first, k, f)
			}
		}
		last := first + tw - 1
		want := p[last+1]
		for _, v := range p[last+1 : last+off+1] {
			want = max(want, v)
		}
		require.Equal(t, float32(want-p[last]), b.Labels[i], "label of example starting at row %d", first)
	}
}

func TestWindowDataset_FiftyRowScenario(t *testing.T) {
	data := rampChunk(t, 50)
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Filename:         writeParquet(t, data),
		TimeWindow:       9,
		Offset:           7,
		PredictionColumn: "b",
		BatchSize:        5,
	})
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, 35, ds.ExamplesPerEpoch())

	var first *window.Batch
	for j := 0; j < 7; j++ {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		require.Equal(t, 5, b.Size)
		assert.EqualValues(t, j*5, b.FirstRow)
		assert.Equal(t, j == 6, b.EndOfEpoch, "batch %d", j)
		for i := 0; i < 5; i++ {
			for k := 0; k < 9; k++ {
				assert.Equal(t, float32(j*5+i+k), b.Feature(i, k, 0))
				assert.Equal(t, float32(j*5+i+k+10), b.Feature(i, k, 1))
			}
			assert.Equal(t, float32(7), b.Labels[i])
		}
		if j == 0 {
			first = b
		}
	}
	assert.Equal(t, datasets.EpochExhausted, ds.State())

	again, err := ds.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, first.Features, again.Features)
	assert.Equal(t, first.Labels, again.Labels)
	assert.Equal(t, 1, again.Epoch)
	assert.Equal(t, datasets.Streaming, ds.State())
}

func TestWindowDataset_SixtySevenRowsForcedRefill(t *testing.T) {
	data := rampChunk(t, 67)
	const tw, off, bs, chunk = 11, 9, 8, 15
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Filename:         writeParquet(t, data),
		TimeWindow:       tw,
		Offset:           off,
		PredictionColumn: "b",
		BatchSize:        bs,
		ChunkReadSize:    chunk,
	})
	require.NoError(t, err)
	defer ds.Close()

	var first *window.Batch
	total := 0
	for j := 0; j < 6; j++ {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		require.Equal(t, bs, b.Size)
		checkBatch(t, data, 1, tw, off, b)
		for i := range b.Labels {
			assert.Equal(t, float32(off), b.Labels[i])
		}
		total += b.Size
		if j == 0 {
			first = b
		}
	}
	assert.Equal(t, 48, total)
	assert.Less(t, ds.MaxBufferLen(), 67, "the whole table should never be buffered")
	assert.LessOrEqual(t, ds.MaxBufferLen(), tw+off+bs+chunk-1)

	again, err := ds.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, first.Features, again.Features)
	assert.Equal(t, first.Labels, again.Labels)
}

func TestWindowDataset_AnyChunkSize(t *testing.T) {
	data := walkChunk(t, 83, 7)
	shapes := []struct{ tw, off, bs int }{
		{1, 1, 1},
		{3, 2, 4},
		{9, 7, 5},
		{5, 12, 3},
		{11, 9, 8},
		{4, 4, 30},
	}
	for _, s := range shapes {
		for chunk := 1; chunk <= 40; chunk += 3 {
			name := fmt.Sprintf("tw%d_off%d_bs%d_chunk%d", s.tw, s.off, s.bs, chunk)
			t.Run(name, func(t *testing.T) {
				ds, err := datasets.NewWindowDataset(datasets.Config{
					Open:             table.SliceOpener(data),
					TimeWindow:       s.tw,
					Offset:           s.off,
					PredictionColumn: "x",
					BatchSize:        s.bs,
					ChunkReadSize:    chunk,
				})
				require.NoError(t, err)

				examples := data.Len() - s.tw - s.off + 1
				require.Equal(t, examples, ds.ExamplesPerEpoch())

				var first *window.Batch
				served := 0
				for served < examples {
					b, err := ds.NextBatch()
					require.NoError(t, err)
					require.LessOrEqual(t, b.Size, s.bs)
					require.EqualValues(t, served, b.FirstRow, "no gap or duplicate across batches")
					checkBatch(t, data, 0, s.tw, s.off, b)
					served += b.Size
					require.Equal(t, served == examples, b.EndOfEpoch)
					require.LessOrEqual(t, ds.BufferLen(), s.tw+s.off+s.bs+chunk-1)
					if first == nil {
						first = b
					}
				}
				assert.Equal(t, examples, served)
				assert.LessOrEqual(t, ds.MaxBufferLen(), s.tw+s.off+s.bs+chunk-1)

				again, err := ds.NextBatch()
				require.NoError(t, err)
				assert.Equal(t, first.Features, again.Features)
				assert.Equal(t, first.Labels, again.Labels)
			})
		}
	}
}

func TestWindowDataset_CursorInvariant(t *testing.T) {
	data := walkChunk(t, 60, 3)
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(data),
		TimeWindow:       4,
		Offset:           3,
		PredictionColumn: "y",
		BatchSize:        6,
		ChunkReadSize:    5,
	})
	require.NoError(t, err)

	for range 20 {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		local, global := ds.Cursor()
		top := int64(b.Size) + b.FirstRow + 4 + 3 - 2
		assert.Equal(t, top, global)
		assert.GreaterOrEqual(t, local, 4+3-2)
		assert.LessOrEqual(t, local, ds.BufferLen()-1)
	}
}

func TestWindowDataset_RowLimitShortFinalBatch(t *testing.T) {
	data := rampChunk(t, 50)
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(data),
		TimeWindow:       5,
		Offset:           3,
		PredictionColumn: "b",
		BatchSize:        4,
		RowLimit:         30,
		ChunkReadSize:    7,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 30, ds.TotalRows())
	require.Equal(t, 23, ds.ExamplesPerEpoch())

	var sizes []int
	for {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		checkBatch(t, data, 1, 5, 3, b)
		sizes = append(sizes, b.Size)
		if b.EndOfEpoch {
			break
		}
	}
	assert.Equal(t, []int{4, 4, 4, 4, 4, 3}, sizes)
	assert.LessOrEqual(t, ds.BufferLen(), 30)
}

func TestWindowDataset_BatchLargerThanEpoch(t *testing.T) {
	// 12 rows hold 8 examples of window 3 and offset 2; a batch of 10 needs 14.
	_, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 12)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        10,
	})
	assert.ErrorIs(t, err, datasets.ErrInsufficientData)

	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 14)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        10,
	})
	require.NoError(t, err)
	for range 3 {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		assert.Equal(t, 10, b.Size)
		assert.True(t, b.EndOfEpoch)
		assert.EqualValues(t, 0, b.FirstRow)
	}
	assert.Equal(t, 2, ds.Epoch())
}

func TestWindowDataset_RowLimitBelowOneBatch(t *testing.T) {
	_, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 50)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        10,
		RowLimit:         13,
	})
	assert.ErrorIs(t, err, datasets.ErrInsufficientData)
}

func TestWindowDataset_InsufficientData(t *testing.T) {
	_, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 10)),
		TimeWindow:       6,
		Offset:           5,
		PredictionColumn: "b",
	})
	assert.ErrorIs(t, err, datasets.ErrInsufficientData)
}

// shortSource reports more rows than it yields.
type shortSource struct {
	table.Source
	claimed int64
}

func (s shortSource) NumRows() int64 { return s.claimed }

func TestWindowDataset_SourceEndsEarly(t *testing.T) {
	data := rampChunk(t, 20)
	open := func(chunkSize int) (table.Source, error) {
		return shortSource{Source: table.NewSliceSource(data, chunkSize), claimed: 40}, nil
	}
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             open,
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        4,
		ChunkReadSize:    6,
	})
	require.NoError(t, err)

	for {
		_, err = ds.NextBatch()
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, datasets.ErrInsufficientData)
}

var errDisk = errors.New("disk on fire")

// failingSource fails after serving `after` chunks.
type failingSource struct {
	table.Source
	after int
}

func (f *failingSource) Next() (*table.Chunk, error) {
	if f.after == 0 {
		return nil, fmt.Errorf("%w: %w", table.ErrSourceRead, errDisk)
	}
	f.after--
	return f.Source.Next()
}

func TestWindowDataset_ReadErrorPropagates(t *testing.T) {
	data := rampChunk(t, 40)
	open := func(chunkSize int) (table.Source, error) {
		return &failingSource{Source: table.NewSliceSource(data, chunkSize), after: 2}, nil
	}
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             open,
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        2,
		ChunkReadSize:    5,
	})
	require.NoError(t, err)

	for {
		_, err = ds.NextBatch()
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, table.ErrSourceRead)
	assert.ErrorIs(t, err, errDisk)
	assert.NotErrorIs(t, err, datasets.ErrInsufficientData)
}

func TestWindowDataset_InvalidConfig(t *testing.T) {
	base := datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 30)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
	}
	tests := []struct {
		name   string
		mutate func(c *datasets.Config)
	}{
		{"zero window", func(c *datasets.Config) { c.TimeWindow = 0 }},
		{"zero offset", func(c *datasets.Config) { c.Offset = 0 }},
		{"negative batch", func(c *datasets.Config) { c.BatchSize = -1 }},
		{"negative chunk", func(c *datasets.Config) { c.ChunkReadSize = -4 }},
		{"negative limit", func(c *datasets.Config) { c.RowLimit = -1 }},
		{"no prediction", func(c *datasets.Config) { c.PredictionColumn = "" }},
		{"no source", func(c *datasets.Config) { c.Open = nil }},
		{"unknown format", func(c *datasets.Config) { c.Open = nil; c.Filename = "series.xlsx" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := datasets.NewWindowDataset(cfg)
			assert.ErrorIs(t, err, datasets.ErrInvalidConfig)
		})
	}
}

func TestWindowDataset_FormatIgnoresCase(t *testing.T) {
	data := rampChunk(t, 30)
	path := filepath.Join(t.TempDir(), "series")
	require.NoError(t, table.WriteParquet(path, data, "", 0))

	for _, format := range []string{"Parquet", "PQ"} {
		ds, err := datasets.NewWindowDataset(datasets.Config{
			Filename:         path,
			Format:           format,
			TimeWindow:       3,
			Offset:           2,
			PredictionColumn: "b",
		})
		require.NoError(t, err, format)
		assert.Equal(t, 26, ds.ExamplesPerEpoch())
		require.NoError(t, ds.Close())
	}
}

func TestWindowDataset_UnknownColumns(t *testing.T) {
	_, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 30)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "price",
	})
	assert.ErrorIs(t, err, table.ErrColumnNotFound)

	_, err = datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 30)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		FeatureColumns:   []string{"b", "volume"},
	})
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestWindowDataset_FeatureSelection(t *testing.T) {
	data := rampChunk(t, 30)
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(data),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "a",
		FeatureColumns:   []string{"b"},
		BatchSize:        2,
	})
	require.NoError(t, err)

	b, err := ds.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, 1, b.NumFeatures)
	assert.Equal(t, []float32{10, 11, 12}, b.Window(0))
	assert.Equal(t, []float32{2, 2}, b.Labels)
}

func TestWindowDataset_CSVWithTimeDeltaHook(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := 25
	times := make([]time.Time, rows)
	vals := make([]float64, rows)
	for i := range rows {
		// gaps alternate 1s and 2s
		times[i] = start.Add(time.Duration(i+i/2) * time.Second)
		vals[i] = float64(i)
	}
	path := filepath.Join(t.TempDir(), "series.csv")
	writeSeriesCSV(t, path, times, vals)

	ds, err := datasets.NewWindowDataset(datasets.Config{
		Filename:         path,
		TimeIndexColumn:  "ts",
		Condition:        condition.TimeDelta("dt"),
		TimeWindow:       4,
		Offset:           2,
		PredictionColumn: "v",
		BatchSize:        3,
		ChunkReadSize:    4,
	})
	require.NoError(t, err)
	defer ds.Close()

	for {
		b, err := ds.NextBatch()
		require.NoError(t, err)
		require.Equal(t, 2, b.NumFeatures)
		for i := 0; i < b.Size; i++ {
			for k := 0; k < 4; k++ {
				row := int(b.FirstRow) + i + k
				want := float32(0)
				if row > 0 {
					want = float32(times[row].Sub(times[row-1]).Seconds())
				}
				assert.Equal(t, want, b.Feature(i, k, 1), "dt at row %d", row)
			}
		}
		if b.EndOfEpoch {
			break
		}
	}
}

func TestWindowDataset_YieldEpochEOF(t *testing.T) {
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 50)),
		TimeWindow:       9,
		Offset:           7,
		PredictionColumn: "b",
		BatchSize:        5,
		EpochEOF:         true,
	})
	require.NoError(t, err)

	yields := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		assert.Equal(t, []int{5, 9, 2}, inputs[0].Shape().Dimensions)
		yields++
	}
	assert.Equal(t, 7, yields)

	_, _, _, err = ds.Yield()
	assert.ErrorIs(t, err, io.EOF, "stays at end of epoch until Reset")

	ds.Reset()
	_, inputs, _, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{5, 9, 2}, inputs[0].Shape().Dimensions)
	assert.Equal(t, 1, ds.Epoch())
}

func TestWindowDataset_YieldWrapsByDefault(t *testing.T) {
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(rampChunk(t, 20)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "b",
		BatchSize:        4,
	})
	require.NoError(t, err)

	for range 20 {
		_, _, _, err := ds.Yield()
		require.NoError(t, err)
	}
	assert.Contains(t, ds.Name(), "WindowDataset")
}

func TestWindowDataset_RestartMidEpoch(t *testing.T) {
	ds, err := datasets.NewWindowDataset(datasets.Config{
		Open:             table.SliceOpener(walkChunk(t, 40, 11)),
		TimeWindow:       3,
		Offset:           2,
		PredictionColumn: "x",
		BatchSize:        4,
		ChunkReadSize:    3,
	})
	require.NoError(t, err)

	first, err := ds.NextBatch()
	require.NoError(t, err)
	for range 3 {
		_, err := ds.NextBatch()
		require.NoError(t, err)
	}
	require.NoError(t, ds.Restart())
	again, err := ds.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, first.Features, again.Features)
	assert.Equal(t, 0, again.Epoch, "a manual restart is not a wrap")
}

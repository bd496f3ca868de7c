package table

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// ParquetSource reads a parquet file as a sequence of arrow records and
// converts every record into a Chunk of float64 columns.
type ParquetSource struct {
	path      string
	timeIndex string
	rdr       *file.Reader
	records   pqarrow.RecordReader
}

// OpenParquet opens path and prepares a record reader producing chunkSize
// rows per record. timeIndex names the column holding the time index and may
// be empty.
func OpenParquet(ctx context.Context, path, timeIndex string, chunkSize int) (*ParquetSource, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, sourceErr(path, "open", err)
	}
	props := pqarrow.ArrowReadProperties{BatchSize: int64(chunkSize)}
	fr, err := pqarrow.NewFileReader(rdr, props, memory.DefaultAllocator)
	if err != nil {
		_ = rdr.Close()
		return nil, sourceErr(path, "open", err)
	}
	records, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		_ = rdr.Close()
		return nil, sourceErr(path, "open", err)
	}
	return &ParquetSource{path: path, timeIndex: timeIndex, rdr: rdr, records: records}, nil
}

// ParquetOpener returns an Opener for the parquet file at path.
func ParquetOpener(ctx context.Context, path, timeIndex string) Opener {
	return func(chunkSize int) (Source, error) {
		return OpenParquet(ctx, path, timeIndex, chunkSize)
	}
}

// NumRows is read from the file footer.
func (p *ParquetSource) NumRows() int64 { return p.rdr.NumRows() }

func (p *ParquetSource) Next() (*Chunk, error) {
	if !p.records.Next() {
		if err := p.records.Err(); err != nil && err != io.EOF {
			return nil, sourceErr(p.path, "read", err)
		}
		return nil, io.EOF
	}
	chunk, err := recordToChunk(p.records.Record(), p.timeIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return chunk, nil
}

func (p *ParquetSource) Close() error {
	p.records.Release()
	if err := p.rdr.Close(); err != nil {
		return sourceErr(p.path, "close", err)
	}
	return nil
}

// recordToChunk copies rec into a Chunk. The time index column, when named,
// is moved out of the value columns.
func recordToChunk(rec arrow.Record, timeIndex string) (*Chunk, error) {
	n := int(rec.NumRows())
	c := &Chunk{}
	found := timeIndex == ""
	for i := 0; i < int(rec.NumCols()); i++ {
		name := rec.ColumnName(i)
		col := rec.Column(i)
		if name == timeIndex {
			times, err := timeValues(col)
			if err != nil {
				return nil, fmt.Errorf("time index %q: %w", name, err)
			}
			c.Times = times
			found = true
			continue
		}
		vals, err := floatValues(col)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		c.Columns = append(c.Columns, name)
		c.Values = append(c.Values, vals)
	}
	if !found {
		return nil, fmt.Errorf("%w: time index %q", ErrColumnNotFound, timeIndex)
	}
	if len(c.Values) == 0 && c.Times == nil {
		c.Times = make([]time.Time, n)
	}
	return c, c.Validate()
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func widen[T number](arr arrow.Array, vals []T) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if arr.IsNull(i) {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(v)
	}
	return out
}

func floatValues(arr arrow.Array) ([]float64, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return widen(a, a.Float64Values()), nil
	case *array.Float32:
		return widen(a, a.Float32Values()), nil
	case *array.Int8:
		return widen(a, a.Int8Values()), nil
	case *array.Int16:
		return widen(a, a.Int16Values()), nil
	case *array.Int32:
		return widen(a, a.Int32Values()), nil
	case *array.Int64:
		return widen(a, a.Int64Values()), nil
	case *array.Uint8:
		return widen(a, a.Uint8Values()), nil
	case *array.Uint16:
		return widen(a, a.Uint16Values()), nil
	case *array.Uint32:
		return widen(a, a.Uint32Values()), nil
	case *array.Uint64:
		return widen(a, a.Uint64Values()), nil
	case *array.Boolean:
		out := make([]float64, a.Len())
		for i := range out {
			switch {
			case a.IsNull(i):
				out[i] = math.NaN()
			case a.Value(i):
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedColumn, arr.DataType())
	}
}

// timeValues reads a timestamp column, or a numeric column holding unix
// seconds.
func timeValues(arr arrow.Array) ([]time.Time, error) {
	if ts, ok := arr.(*array.Timestamp); ok {
		unit := ts.DataType().(*arrow.TimestampType).Unit
		out := make([]time.Time, ts.Len())
		for i, v := range ts.TimestampValues() {
			out[i] = v.ToTime(unit)
		}
		return out, nil
	}
	secs, err := floatValues(arr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(secs))
	for i, s := range secs {
		whole, frac := math.Modf(s)
		out[i] = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}
	return out, nil
}

// WriteParquet writes c to path as a parquet file with float64 value columns
// and, when c has a time index, a nanosecond timestamp column named
// timeIndex. rowGroupLen bounds the rows per row group; zero keeps the
// library default.
func WriteParquet(path string, c *Chunk, timeIndex string, rowGroupLen int64) error {
	if err := c.Validate(); err != nil {
		return err
	}
	fields := make([]arrow.Field, 0, len(c.Columns)+1)
	for _, name := range c.Columns {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
	}
	withTime := c.Times != nil && timeIndex != ""
	if withTime {
		fields = append(fields, arrow.Field{Name: timeIndex, Type: &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}})
	}
	schema := arrow.NewSchema(fields, nil)

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bldr.Release()
	for i, vals := range c.Values {
		bldr.Field(i).(*array.Float64Builder).AppendValues(vals, nil)
	}
	if withTime {
		ts := make([]arrow.Timestamp, len(c.Times))
		for i, t := range c.Times {
			ts[i] = arrow.Timestamp(t.UnixNano())
		}
		bldr.Field(len(c.Values)).(*array.TimestampBuilder).AppendValues(ts, nil)
	}
	rec := bldr.NewRecord()
	defer rec.Release()

	return writeRecord(path, schema, rec, rowGroupLen)
}

func writeRecord(path string, schema *arrow.Schema, rec arrow.Record, rowGroupLen int64) error {
	var opts []parquet.WriterProperty
	if rowGroupLen > 0 {
		opts = append(opts, parquet.WithMaxRowGroupLength(rowGroupLen))
	}
	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(opts...), pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		return fmt.Errorf("write parquet record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

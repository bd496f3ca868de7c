// Package table reads time-ordered tables from disk in fixed-size chunks.
//
// A Source yields successive Chunks until it returns io.EOF and reports the
// total number of rows from file metadata, so callers can plan an epoch
// without scanning the file. Three implementations are provided:
//
//   - ParquetSource reads a parquet file through arrow-go's record reader.
//   - CSVSource reads a headered CSV file of numeric cells.
//   - SliceSource serves an in-memory Chunk, mostly for tests.
//
// Sources are single-use: at the end of an epoch the caller closes the
// source and opens a fresh one through an Opener.
package table

import (
	"fmt"
	"io"
)

// DefaultChunkSize is the number of rows requested per read when the caller
// does not choose one. It matches arrow's default record batch size.
const DefaultChunkSize = 65536

// Source yields successive chunks of a table.
type Source interface {
	// NumRows returns the total number of rows in the table.
	NumRows() int64
	// Next returns the next chunk, or io.EOF once the table is exhausted.
	Next() (*Chunk, error)
	// Close releases the underlying file.
	Close() error
}

// Opener opens a fresh Source that reads chunkSize rows per call.
type Opener func(chunkSize int) (Source, error)

// SliceSource serves a pre-loaded chunk in pieces of at most chunkSize rows.
type SliceSource struct {
	data      *Chunk
	chunkSize int
	pos       int
}

// NewSliceSource wraps data. A non-positive chunkSize uses DefaultChunkSize.
func NewSliceSource(data *Chunk, chunkSize int) *SliceSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SliceSource{data: data, chunkSize: chunkSize}
}

// SliceOpener returns an Opener over the same in-memory chunk.
func SliceOpener(data *Chunk) Opener {
	return func(chunkSize int) (Source, error) {
		if err := data.Validate(); err != nil {
			return nil, err
		}
		return NewSliceSource(data, chunkSize), nil
	}
}

func (s *SliceSource) NumRows() int64 { return int64(s.data.Len()) }

func (s *SliceSource) Next() (*Chunk, error) {
	n := s.data.Len()
	if s.pos >= n {
		return nil, io.EOF
	}
	end := min(s.pos+s.chunkSize, n)
	out := &Chunk{Columns: s.data.Columns, Values: make([][]float64, len(s.data.Values))}
	for i, col := range s.data.Values {
		out.Values[i] = col[s.pos:end:end]
	}
	if s.data.Times != nil {
		out.Times = s.data.Times[s.pos:end:end]
	}
	s.pos = end
	return out, nil
}

func (s *SliceSource) Close() error { return nil }

// sourceErr wraps err so it matches both ErrSourceRead and err.
func sourceErr(path, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrSourceRead, op, path, err)
}

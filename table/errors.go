package table

import "errors"

var (
	// ErrSourceRead wraps any I/O or decoding failure of the backing file.
	ErrSourceRead = errors.New("table: source read failed")
	// ErrUnsupportedColumn indicates a column whose type cannot be read as numbers.
	ErrUnsupportedColumn = errors.New("table: unsupported column type")
	// ErrColumnNotFound indicates a named column is absent from a chunk.
	ErrColumnNotFound = errors.New("table: column not found")
	// ErrRaggedChunk indicates columns of differing lengths.
	ErrRaggedChunk = errors.New("table: columns have differing lengths")
)

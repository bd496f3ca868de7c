package window

import (
	"fmt"
	"slices"

	"github.com/Noofbiz/seriesfeed/table"
)

// Buffer is the rolling, column-major row store between chunk reads and
// batch building. Rows are addressed by their offset from the buffer start;
// trimming moves the start forward.
type Buffer struct {
	columns []string
	values  [][]float64
}

// NewBuffer returns an empty buffer. Its schema is fixed by the first
// appended chunk.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the number of rows held.
func (b *Buffer) Len() int {
	if len(b.values) == 0 {
		return 0
	}
	return len(b.values[0])
}

// Columns returns the buffer's column names.
func (b *Buffer) Columns() []string { return b.columns }

// ColumnIndex returns the position of the named column or -1.
func (b *Buffer) ColumnIndex(name string) int {
	return slices.Index(b.columns, name)
}

// Append copies the chunk's rows onto the end of the buffer.
func (b *Buffer) Append(c *table.Chunk) error {
	if b.columns == nil {
		b.columns = slices.Clone(c.Columns)
		b.values = make([][]float64, len(c.Columns))
	} else if !slices.Equal(b.columns, c.Columns) {
		return fmt.Errorf("%w: have %v, got %v", ErrSchemaMismatch, b.columns, c.Columns)
	}
	for i, col := range c.Values {
		b.values[i] = append(b.values[i], col...)
	}
	return nil
}

// TrimToTail keeps only the last n rows, moving them to the front of the
// existing storage, and returns the number of rows dropped.
func (b *Buffer) TrimToTail(n int) (int, error) {
	size := b.Len()
	if n < 0 || n > size {
		return 0, fmt.Errorf("%w: keep %d of %d rows", ErrOutOfRange, n, size)
	}
	dropped := size - n
	if dropped == 0 {
		return 0, nil
	}
	for i, col := range b.values {
		copy(col, col[dropped:])
		b.values[i] = col[:n]
	}
	return dropped, nil
}

// Slice returns a read-only view of length rows of column col starting at
// offset.
func (b *Buffer) Slice(col, offset, length int) ([]float64, error) {
	if col < 0 || col >= len(b.values) {
		return nil, fmt.Errorf("%w: column %d of %d", ErrOutOfRange, col, len(b.values))
	}
	if offset < 0 || length < 0 || offset+length > b.Len() {
		return nil, fmt.Errorf("%w: rows [%d, %d) of %d", ErrOutOfRange, offset, offset+length, b.Len())
	}
	return b.values[col][offset : offset+length : offset+length], nil
}

package table

import (
	"fmt"
	"time"
)

// Chunk is a contiguous run of rows read from a source in one call.
//
// Values are stored column-major: Values[c][r] is row r of column
// Columns[c]. Times holds the time index of each row and is nil when the
// source has no time index column. A chunk is treated as immutable once it
// has been handed out; hooks that change it return a new Chunk.
type Chunk struct {
	Columns []string
	Values  [][]float64
	Times   []time.Time
}

// NewChunk builds a chunk and checks that every column has the same length.
func NewChunk(columns []string, values [][]float64, times []time.Time) (*Chunk, error) {
	c := &Chunk{Columns: columns, Values: values, Times: times}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of rows.
func (c *Chunk) Len() int {
	if c == nil {
		return 0
	}
	if len(c.Values) > 0 {
		return len(c.Values[0])
	}
	return len(c.Times)
}

// Validate reports ErrRaggedChunk when column lengths disagree.
func (c *Chunk) Validate() error {
	if len(c.Columns) != len(c.Values) {
		return fmt.Errorf("%w: %d names for %d columns", ErrRaggedChunk, len(c.Columns), len(c.Values))
	}
	n := c.Len()
	for i, col := range c.Values {
		if len(col) != n {
			return fmt.Errorf("%w: column %q has %d rows, expected %d", ErrRaggedChunk, c.Columns[i], len(col), n)
		}
	}
	if c.Times != nil && len(c.Times) != n {
		return fmt.Errorf("%w: time index has %d rows, expected %d", ErrRaggedChunk, len(c.Times), n)
	}
	return nil
}

// ColumnIndex returns the position of the named column or -1.
func (c *Chunk) ColumnIndex(name string) int {
	for i, col := range c.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (c *Chunk) Column(name string) ([]float64, error) {
	idx := c.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return c.Values[idx], nil
}

// Head returns a chunk holding the first n rows. The returned chunk shares
// storage with c.
func (c *Chunk) Head(n int) *Chunk {
	if n >= c.Len() {
		return c
	}
	if n < 0 {
		n = 0
	}
	out := &Chunk{Columns: c.Columns, Values: make([][]float64, len(c.Values))}
	for i, col := range c.Values {
		out.Values[i] = col[:n:n]
	}
	if c.Times != nil {
		out.Times = c.Times[:n:n]
	}
	return out
}

// LastTime returns the time index of the final row, or the zero time when
// the chunk is empty or has no time index.
func (c *Chunk) LastTime() time.Time {
	if c == nil || len(c.Times) == 0 {
		return time.Time{}
	}
	return c.Times[len(c.Times)-1]
}

// WithColumn returns a copy of c with an extra column appended. An existing
// column of the same name is replaced.
func (c *Chunk) WithColumn(name string, values []float64) (*Chunk, error) {
	if len(values) != c.Len() {
		return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrRaggedChunk, name, len(values), c.Len())
	}
	out := &Chunk{
		Columns: append([]string(nil), c.Columns...),
		Values:  append([][]float64(nil), c.Values...),
		Times:   c.Times,
	}
	if idx := out.ColumnIndex(name); idx >= 0 {
		out.Values[idx] = values
		return out, nil
	}
	out.Columns = append(out.Columns, name)
	out.Values = append(out.Values, values)
	return out, nil
}

// Select returns a chunk holding only the named columns, in the given order.
func (c *Chunk) Select(names ...string) (*Chunk, error) {
	out := &Chunk{
		Columns: make([]string, 0, len(names)),
		Values:  make([][]float64, 0, len(names)),
		Times:   c.Times,
	}
	for _, name := range names {
		col, err := c.Column(name)
		if err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, name)
		out.Values = append(out.Values, col)
	}
	return out, nil
}

// Package condition holds per-chunk transforms applied between reading a
// chunk from disk and appending it to the rolling buffer.
//
// A hook is a pure function of the raw chunk and the last timestamp of the
// previous chunk. It returns the conditioned chunk together with the
// timestamp to hand to the next call, so hooks compose without hidden state.
package condition

import (
	"fmt"
	"time"

	"github.com/Noofbiz/seriesfeed/table"
)

// Func conditions one chunk. prev is the zero time for the first chunk of an
// epoch.
type Func func(c *table.Chunk, prev time.Time) (*table.Chunk, time.Time, error)

// Identity returns the chunk unchanged along with its last timestamp.
func Identity(c *table.Chunk, _ time.Time) (*table.Chunk, time.Time, error) {
	return c, c.LastTime(), nil
}

// Chain applies fns left to right. Every hook sees the same prev; the
// timestamp returned by the last hook is returned.
func Chain(fns ...Func) Func {
	return func(c *table.Chunk, prev time.Time) (*table.Chunk, time.Time, error) {
		next := c.LastTime()
		for _, fn := range fns {
			var err error
			c, next, err = fn(c, prev)
			if err != nil {
				return nil, time.Time{}, err
			}
		}
		return c, next, nil
	}
}

// TimeDelta appends a column holding the seconds elapsed since the previous
// row. The first row of a chunk is measured against prev, and gets 0 when
// prev is the zero time. Chunks without a time index are rejected.
func TimeDelta(column string) Func {
	return func(c *table.Chunk, prev time.Time) (*table.Chunk, time.Time, error) {
		if c.Times == nil {
			return nil, time.Time{}, fmt.Errorf("condition: %s needs a time index column", column)
		}
		deltas := make([]float64, len(c.Times))
		last := prev
		for i, t := range c.Times {
			if !last.IsZero() {
				deltas[i] = t.Sub(last).Seconds()
			}
			last = t
		}
		out, err := c.WithColumn(column, deltas)
		if err != nil {
			return nil, time.Time{}, err
		}
		return out, c.LastTime(), nil
	}
}

// Select keeps only the named value columns.
func Select(columns ...string) Func {
	return func(c *table.Chunk, _ time.Time) (*table.Chunk, time.Time, error) {
		out, err := c.Select(columns...)
		if err != nil {
			return nil, time.Time{}, err
		}
		return out, c.LastTime(), nil
	}
}

// ByName resolves the hooks that can be named in a config file.
func ByName(name string) (Func, error) {
	switch name {
	case "", "identity":
		return Identity, nil
	case "time_delta":
		return TimeDelta("dt"), nil
	default:
		return nil, fmt.Errorf("condition: unknown hook %q", name)
	}
}

// FromNames chains the named hooks. An empty list yields Identity.
func FromNames(names []string) (Func, error) {
	if len(names) == 0 {
		return Identity, nil
	}
	fns := make([]Func, 0, len(names))
	for _, name := range names {
		fn, err := ByName(name)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return Chain(fns...), nil
}

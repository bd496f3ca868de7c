package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/seriesfeed/window"
)

// This package turns a single time-ordered table on disk into an endless
// stream of (feature window, label) batches for a training loop.
//
// Only a bounded tail of the table is ever held in memory: rows are read in
// chunks, windows are cut from a rolling buffer, and the buffer is trimmed to
// the rows still needed by upcoming examples before each refill. When the
// last example of the table has been served the stream rewinds to the first
// row instead of ending, so a polling trainer never sees an end condition.
//
// Layout and intended usage:
//
// WindowDataset
//   - Reads chunks through a table.Opener (parquet or CSV)
//   - Conditions each chunk with a condition.Func hook
//   - Yields window.Batch values: inputs shaped [batch, time_window, features]
//     and labels shaped [batch]
//   - Label per example: max of the prediction column over the next Offset
//     rows minus its value at the window's last row
//
// The dataset implements this interface in order to interact with GoMLX
// training loops and with the simple trainer in this repository.
type Stream interface {
	// NextBatch returns the next batch, rewinding at the end of an epoch.
	NextBatch() (*window.Batch, error)
	// Restart re-opens the source and rewinds to the first example.
	Restart() error

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}

var _ Stream = (*WindowDataset)(nil)
